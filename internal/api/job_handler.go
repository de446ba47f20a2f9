package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"careerHub/internal/catalog"
	"careerHub/internal/checkout"
	"careerHub/internal/database"
	"careerHub/internal/entitlement"
	"careerHub/internal/errcode"
	"careerHub/internal/profile"
)

// JobHandler 负责职位浏览与申请。
type JobHandler struct {
	catalog      *catalog.Service
	entitlements *entitlement.Service
	workflow     *checkout.Workflow
	assets       *AssetHandler
	logger       *slog.Logger
	cookieDomain string
	sessionTTL   time.Duration
}

// NewJobHandler 构造 JobHandler。
func NewJobHandler(catalogSvc *catalog.Service, entitlements *entitlement.Service, workflow *checkout.Workflow, assets *AssetHandler, logger *slog.Logger, cookieDomain string, sessionTTL time.Duration) *JobHandler {
	return &JobHandler{
		catalog:      catalogSvc,
		entitlements: entitlements,
		workflow:     workflow,
		assets:       assets,
		logger:       logger,
		cookieDomain: cookieDomain,
		sessionTTL:   sessionTTL,
	}
}

func jobJSON(job database.Job) gin.H {
	return gin.H{
		"id":              job.ID,
		"title":           job.Title,
		"company":         job.Company,
		"location":        job.Location,
		"job_type":        job.JobType,
		"salary_range":    job.SalaryRange,
		"posted_days":     job.PostedDays,
		"openings":        job.Openings,
		"applicants":      job.Applicants,
		"role":            job.Role,
		"candidate_type":  job.CandidateType,
		"employment_type": job.EmploymentType,
		"education":       job.Education,
		"skills":          job.SkillList(),
		"about_company":   job.AboutCompany,
	}
}

func jobsJSON(jobs []database.Job) []gin.H {
	out := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobJSON(job))
	}
	return out
}

// ListJobs 返回职位列表以及当前用户的套餐额度。
func (h *JobHandler) ListJobs(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	log := loggerFrom(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	jobs, err := h.catalog.ListJobs(ctx)
	if err != nil {
		log.Error("list jobs failed", slog.Any("error", err))
		Internal(c, "failed to list jobs")
		return
	}

	p, err := h.entitlements.ProfileFor(ctx, nil, userID)
	if err != nil {
		log.Error("load profile failed", slog.Any("error", err))
		Internal(c, "failed to load profile")
		return
	}
	quota, err := h.entitlements.RemainingApplicationsToday(ctx, nil, p)
	if err != nil {
		log.Error("load quota failed", slog.Any("error", err))
		Internal(c, "failed to load profile")
		return
	}
	now := h.entitlements.Now()

	c.JSON(http.StatusOK, gin.H{
		"jobs": jobsJSON(jobs),
		"profile": gin.H{
			"plan":            entitlement.PlanName(p),
			"active_plan":     entitlement.HasActivePlan(p, now),
			"remaining_days":  entitlement.RemainingDays(p, now),
			"remaining_today": quota.Value(),
		},
	})
}

// SearchJobs 按关键字、课程、地点、薪资筛选职位。
func (h *JobHandler) SearchJobs(c *gin.Context) {
	var filter catalog.JobFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		BadRequest(c, err.Error())
		return
	}

	jobs, err := h.catalog.SearchJobs(c.Request.Context(), filter)
	if err != nil {
		loggerFrom(c, h.logger).Error("search jobs failed", slog.Any("error", err))
		Internal(c, "failed to search jobs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobsJSON(jobs), "filter": filter})
}

// JobDetail 返回职位详情、关联课程以及登录用户的套餐名（小写）。
func (h *JobHandler) JobDetail(c *gin.Context) {
	jobID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid job id")
		return
	}
	ctx := c.Request.Context()
	log := loggerFrom(c, h.logger)

	job, err := h.catalog.GetJob(ctx, jobID)
	if err != nil {
		writeWorkflowError(c, log, err, jobID)
		return
	}

	body := jobJSON(*job)
	body["responsibilities"] = job.ResponsibilityList()
	body["course"] = nil
	body["user_plan"] = nil

	course, err := h.catalog.ResolveCourse(ctx, job)
	switch {
	case err == nil:
		body["course"] = gin.H{"id": course.ID, "name": course.Name}
	case errors.Is(err, catalog.ErrCourseNotResolved):
	default:
		log.Error("resolve course failed", slog.Any("error", err))
		Internal(c, "failed to load job")
		return
	}

	if userID, ok := userIDFromContext(c); ok {
		p, err := h.entitlements.ProfileFor(ctx, nil, userID)
		if err != nil {
			log.Error("load profile failed", slog.Any("error", err))
			Internal(c, "failed to load job")
			return
		}
		if name := entitlement.PlanName(p); name != "" {
			body["user_plan"] = strings.ToLower(name)
		}
	}

	c.JSON(http.StatusOK, body)
}

type applyRequest struct {
	FullName        string `form:"full_name" binding:"required,max=100"`
	Email           string `form:"email" binding:"required,email,max=254"`
	Mobile          string `form:"mobile" binding:"required,max=15"`
	City            string `form:"city" binding:"max=100"`
	Gender          string `form:"gender" binding:"max=10"`
	Languages       string `form:"languages" binding:"max=200"`
	WorkStatus      string `form:"work_status" binding:"max=20"`
	ExperienceYears string `form:"experience_years" binding:"max=20"`
	Qualification   string `form:"qualification" binding:"max=200"`
	PassedOutYear   string `form:"passed_out_year"`
	UpdatesOptIn    string `form:"updates_optin"`
}

// Apply 保存职位申请并返回下一步。
func (h *JobHandler) Apply(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid job id")
		return
	}
	log := loggerFrom(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("job_id", uint64(jobID)),
	)

	var req applyRequest
	if err := c.ShouldBind(&req); err != nil {
		Fail(c, http.StatusBadRequest, errcode.InvalidInput, err.Error(), "")
		return
	}

	var passedOut *int
	if raw := strings.TrimSpace(req.PassedOutYear); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1950 || year > 2100 {
			Fail(c, http.StatusBadRequest, errcode.InvalidInput, "invalid passed_out_year", "")
			return
		}
		passedOut = &year
	}

	// 配额已满时不上传附件。
	if err := h.workflow.CheckQuota(c.Request.Context(), userID); err != nil {
		writeWorkflowError(c, log, err, jobID)
		return
	}

	files, err := h.assets.storeUploads(c, userID, applicationPrefix, []string{profile.FileProfileImage, profile.FileResume})
	if err != nil {
		writeUploadError(c, log, err)
		return
	}

	form := checkout.ApplicationForm{
		FullName:        strings.TrimSpace(req.FullName),
		Email:           strings.TrimSpace(req.Email),
		Mobile:          strings.TrimSpace(req.Mobile),
		City:            strings.TrimSpace(req.City),
		Gender:          strings.TrimSpace(req.Gender),
		Languages:       strings.TrimSpace(req.Languages),
		WorkStatus:      strings.TrimSpace(req.WorkStatus),
		ExperienceYears: strings.TrimSpace(req.ExperienceYears),
		Qualification:   strings.TrimSpace(req.Qualification),
		PassedOutYear:   passedOut,
		Updates:         isChecked(req.UpdatesOptIn),
		ProfileImageKey: files[profile.FileProfileImage].Key,
		ResumeKey:       files[profile.FileResume].Key,
	}

	result, err := h.workflow.Apply(c.Request.Context(), userID, jobID, form)
	if result == nil {
		h.assets.discard(c.Request.Context(), files)
	}
	if result != nil {
		writeCookie(c, checkoutCookieName, result.Session.Token, h.sessionTTL, h.cookieDomain)
	}
	if err != nil {
		writeWorkflowError(c, log, err, jobID)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"application_id": result.Application.ID,
		"checkout_token": result.Session.Token,
		"next_step":      result.NextStep,
		"course_id":      result.CourseID,
		"redirect":       stepRedirect(result.NextStep, result.CourseID),
	})
}

func isChecked(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}
