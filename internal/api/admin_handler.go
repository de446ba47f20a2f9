package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"careerHub/internal/database"
	"careerHub/internal/profile"
	"careerHub/internal/storage"
)

// coursePrefix 课程资料（面试题 PDF）的对象前缀。
const coursePrefix = "courses"

const (
	defaultAdminPageSize = 50
	maxAdminPageSize     = 200
)

// AdminHandler 提供套餐、职位、课程及其内容的后台维护接口。
type AdminHandler struct {
	db     *gorm.DB
	assets *AssetHandler
	logger *slog.Logger
}

// NewAdminHandler 构造 AdminHandler。
func NewAdminHandler(db *gorm.DB, assets *AssetHandler, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{db: db, assets: assets, logger: logger}
}

type planRequest struct {
	Name      string  `form:"name" json:"name" binding:"required,max=100"`
	Price     float64 `form:"price" json:"price" binding:"gte=0"`
	Duration  string  `form:"duration" json:"duration" binding:"max=50"`
	Features  string  `form:"features" json:"features"`
	IsCurrent bool    `form:"is_current" json:"is_current"`
}

func (r planRequest) applyTo(plan *database.Plan) {
	plan.Name = strings.TrimSpace(r.Name)
	plan.Price = r.Price
	plan.Duration = strings.TrimSpace(r.Duration)
	if plan.Duration == "" {
		plan.Duration = "Yearly"
	}
	plan.Features = strings.TrimSpace(r.Features)
	plan.IsCurrent = r.IsCurrent
}

type jobRequest struct {
	Title            string `form:"title" json:"title" binding:"required,max=200"`
	Company          string `form:"company" json:"company" binding:"required,max=200"`
	Location         string `form:"location" json:"location" binding:"max=100"`
	JobType          string `form:"job_type" json:"job_type" binding:"max=50"`
	SalaryRange      string `form:"salary_range" json:"salary_range" binding:"max=100"`
	PostedDays       int    `form:"posted_days" json:"posted_days" binding:"gte=0"`
	Openings         int    `form:"openings" json:"openings" binding:"gte=0"`
	Applicants       int    `form:"applicants" json:"applicants" binding:"gte=0"`
	Responsibilities string `form:"responsibilities" json:"responsibilities"`
	Role             string `form:"role" json:"role" binding:"max=200"`
	CandidateType    string `form:"candidate_type" json:"candidate_type" binding:"max=100"`
	EmploymentType   string `form:"employment_type" json:"employment_type" binding:"max=100"`
	Education        string `form:"education" json:"education" binding:"max=200"`
	Skills           string `form:"skills" json:"skills"`
	AboutCompany     string `form:"about_company" json:"about_company"`
	CourseID         *uint  `form:"course_id" json:"course_id"`
}

func (r jobRequest) applyTo(job *database.Job) {
	job.Title = strings.TrimSpace(r.Title)
	job.Company = strings.TrimSpace(r.Company)
	job.Location = strings.TrimSpace(r.Location)
	job.JobType = strings.TrimSpace(r.JobType)
	job.SalaryRange = strings.TrimSpace(r.SalaryRange)
	job.PostedDays = r.PostedDays
	job.Openings = r.Openings
	job.Applicants = r.Applicants
	job.Responsibilities = strings.TrimSpace(r.Responsibilities)
	job.Role = strings.TrimSpace(r.Role)
	job.CandidateType = strings.TrimSpace(r.CandidateType)
	job.EmploymentType = strings.TrimSpace(r.EmploymentType)
	job.Education = strings.TrimSpace(r.Education)
	job.Skills = strings.TrimSpace(r.Skills)
	job.AboutCompany = strings.TrimSpace(r.AboutCompany)
	job.CourseID = r.CourseID
}

type courseRequest struct {
	Name        string `form:"name" json:"name" binding:"required,max=200"`
	Description string `form:"description" json:"description"`
}

type topicRequest struct {
	Title string `form:"title" json:"title" binding:"required,max=200"`
}

type videoRequest struct {
	Title    string `form:"title" json:"title" binding:"required,max=200"`
	VideoURL string `form:"video_url" json:"video_url" binding:"required,url,max=500"`
}

type sessionRequest struct {
	Title       string `form:"title" json:"title" binding:"required,max=200"`
	SessionDate string `form:"session_date" json:"session_date" binding:"required"`
	SessionTime string `form:"session_time" json:"session_time" binding:"max=20"`
	MeetLink    string `form:"meet_link" json:"meet_link" binding:"omitempty,url,max=500"`
}

// ListPlans 返回全部套餐。
func (h *AdminHandler) ListPlans(c *gin.Context) {
	var plans []database.Plan
	if err := h.db.WithContext(c.Request.Context()).Order("id ASC").Find(&plans).Error; err != nil {
		h.internal(c, "list plans failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// CreatePlan 新增套餐。
func (h *AdminHandler) CreatePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	var plan database.Plan
	req.applyTo(&plan)
	if err := h.db.WithContext(c.Request.Context()).Create(&plan).Error; err != nil {
		h.internal(c, "create plan failed", err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

// UpdatePlan 覆盖更新套餐。
func (h *AdminHandler) UpdatePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	var plan database.Plan
	if !h.load(c, &plan, "plan") {
		return
	}
	req.applyTo(&plan)
	if err := h.db.WithContext(c.Request.Context()).Save(&plan).Error; err != nil {
		h.internal(c, "update plan failed", err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// ListJobs 返回全部职位。
func (h *AdminHandler) ListJobs(c *gin.Context) {
	var jobs []database.Job
	if err := h.db.WithContext(c.Request.Context()).Order("id DESC").Find(&jobs).Error; err != nil {
		h.internal(c, "list jobs failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// CreateJob 新增职位，course_id 可选。
func (h *AdminHandler) CreateJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !h.courseExists(c, req.CourseID) {
		return
	}
	var job database.Job
	req.applyTo(&job)
	if err := h.db.WithContext(c.Request.Context()).Create(&job).Error; err != nil {
		h.internal(c, "create job failed", err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// UpdateJob 覆盖更新职位。
func (h *AdminHandler) UpdateJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !h.courseExists(c, req.CourseID) {
		return
	}
	var job database.Job
	if !h.load(c, &job, "job") {
		return
	}
	req.applyTo(&job)
	if err := h.db.WithContext(c.Request.Context()).Omit("Course").Save(&job).Error; err != nil {
		h.internal(c, "update job failed", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListCourses 返回全部课程及其知识点。
func (h *AdminHandler) ListCourses(c *gin.Context) {
	var courses []database.Course
	err := h.db.WithContext(c.Request.Context()).Preload("Topics").Order("id ASC").Find(&courses).Error
	if err != nil {
		h.internal(c, "list courses failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

// CreateCourse 新增课程。
func (h *AdminHandler) CreateCourse(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	course := database.Course{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&course).Error; err != nil {
		h.internal(c, "create course failed", err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

// UpdateCourse 更新课程名称与简介。
func (h *AdminHandler) UpdateCourse(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	var course database.Course
	if !h.load(c, &course, "course") {
		return
	}
	course.Name = strings.TrimSpace(req.Name)
	course.Description = strings.TrimSpace(req.Description)
	if err := h.db.WithContext(c.Request.Context()).Save(&course).Error; err != nil {
		h.internal(c, "update course failed", err)
		return
	}
	c.JSON(http.StatusOK, course)
}

// CreateTopic 为课程添加知识点。
func (h *AdminHandler) CreateTopic(c *gin.Context) {
	var req topicRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	courseID, ok := h.courseParam(c)
	if !ok {
		return
	}
	topic := database.Topic{CourseID: courseID, Title: strings.TrimSpace(req.Title)}
	h.create(c, &topic, "create topic failed")
}

// CreateVideo 为课程添加视频。
func (h *AdminHandler) CreateVideo(c *gin.Context) {
	var req videoRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	courseID, ok := h.courseParam(c)
	if !ok {
		return
	}
	video := database.JobVideo{
		CourseID: courseID,
		Title:    strings.TrimSpace(req.Title),
		VideoURL: strings.TrimSpace(req.VideoURL),
	}
	h.create(c, &video, "create video failed")
}

// CreatePlacementSession 为课程添加就业辅导场次，日期格式 YYYY-MM-DD。
func (h *AdminHandler) CreatePlacementSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(req.SessionDate))
	if err != nil {
		BadRequest(c, "invalid session_date")
		return
	}
	courseID, ok := h.courseParam(c)
	if !ok {
		return
	}
	session := database.PlacementSession{
		CourseID:    courseID,
		Title:       strings.TrimSpace(req.Title),
		SessionDate: date,
		SessionTime: strings.TrimSpace(req.SessionTime),
		MeetLink:    strings.TrimSpace(req.MeetLink),
	}
	h.create(c, &session, "create placement session failed")
}

// CreateInterviewQuestion 上传面试题 PDF 并登记到课程。
func (h *AdminHandler) CreateInterviewQuestion(c *gin.Context) {
	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" || len(title) > 200 {
		BadRequest(c, "title is required")
		return
	}
	file, err := c.FormFile("pdf")
	if err != nil {
		BadRequest(c, "pdf is required")
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		BadRequest(c, "only pdf files are accepted")
		return
	}
	if file.Size <= 0 || file.Size > profile.MaxUploadBytes {
		BadRequest(c, fmt.Sprintf("pdf exceeds %d bytes", profile.MaxUploadBytes))
		return
	}
	courseID, ok := h.courseParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	reader, err := file.Open()
	if err != nil {
		h.internal(c, "open interview pdf failed", err)
		return
	}
	defer reader.Close()
	data, err := io.ReadAll(io.LimitReader(reader, profile.MaxUploadBytes+1))
	if err != nil {
		h.internal(c, "read interview pdf failed", err)
		return
	}

	if h.assets.Scanner != nil {
		if err := h.assets.Scanner.Scan(bytes.NewReader(data)); err != nil {
			if errors.Is(err, storage.ErrMaliciousFile) {
				BadRequest(c, err.Error())
				return
			}
			h.internal(c, "scan interview pdf failed", err)
			return
		}
	}

	key := fmt.Sprintf("%s/%d/questions/%s.pdf", coursePrefix, courseID, uuid.NewString())
	if _, err := h.assets.Storage.UploadFile(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		h.internal(c, "upload interview pdf failed", err)
		return
	}

	question := database.InterviewQuestion{CourseID: courseID, Title: title, PDFKey: key}
	if err := h.db.WithContext(ctx).Create(&question).Error; err != nil {
		if delErr := h.assets.Storage.DeleteObjects(ctx, []string{key}); delErr != nil {
			loggerFrom(c, h.logger).Warn("discard interview pdf failed", slog.Any("error", delErr))
		}
		h.internal(c, "create interview question failed", err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

// ListDoubts 分页返回用户提交的课程问题。
func (h *AdminHandler) ListDoubts(c *gin.Context) {
	limit, offset := pageParams(c)
	query := h.db.WithContext(c.Request.Context()).Order("id DESC").Limit(limit).Offset(offset)
	if raw := c.Query("course_id"); raw != "" {
		courseID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			BadRequest(c, "invalid course_id")
			return
		}
		query = query.Where("course_id = ?", courseID)
	}
	var doubts []database.Doubt
	if err := query.Find(&doubts).Error; err != nil {
		h.internal(c, "list doubts failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doubts": doubts, "limit": limit, "offset": offset})
}

// ListPayments 分页返回支付记录，可按状态过滤。
func (h *AdminHandler) ListPayments(c *gin.Context) {
	limit, offset := pageParams(c)
	query := h.db.WithContext(c.Request.Context()).Order("id DESC").Limit(limit).Offset(offset)
	if status := strings.ToUpper(strings.TrimSpace(c.Query("status"))); status != "" {
		switch status {
		case database.PaymentStatusCreated, database.PaymentStatusSuccess, database.PaymentStatusFailed:
		default:
			BadRequest(c, "invalid status")
			return
		}
		query = query.Where("status = ?", status)
	}
	var payments []database.Payment
	if err := query.Find(&payments).Error; err != nil {
		h.internal(c, "list payments failed", err)
		return
	}

	out := make([]gin.H, 0, len(payments))
	for _, p := range payments {
		out = append(out, gin.H{
			"id":               p.ID,
			"user_id":          p.UserID,
			"plan_id":          p.PlanID,
			"provider":         p.Provider,
			"gateway_order_id": p.GatewayOrderID,
			"gateway_pay_id":   p.GatewayPayID,
			"amount":           p.Amount,
			"currency":         p.Currency,
			"status":           p.Status,
			"created_at":       p.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"payments": out, "limit": limit, "offset": offset})
}

func pageParams(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultAdminPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultAdminPageSize
	}
	if limit > maxAdminPageSize {
		limit = maxAdminPageSize
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// load 按路径 :id 读取记录，失败时已写入响应。
func (h *AdminHandler) load(c *gin.Context, dest any, name string) bool {
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid "+name+" id")
		return false
	}
	if err := h.db.WithContext(c.Request.Context()).First(dest, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, name+" not found")
			return false
		}
		h.internal(c, "load "+name+" failed", err)
		return false
	}
	return true
}

// courseParam 解析路径 :id 并确认课程存在。
func (h *AdminHandler) courseParam(c *gin.Context) (uint, bool) {
	var course database.Course
	if !h.load(c, &course, "course") {
		return 0, false
	}
	return course.ID, true
}

func (h *AdminHandler) courseExists(c *gin.Context, courseID *uint) bool {
	if courseID == nil {
		return true
	}
	var count int64
	err := h.db.WithContext(c.Request.Context()).Model(&database.Course{}).Where("id = ?", *courseID).Count(&count).Error
	if err != nil {
		h.internal(c, "check course failed", err)
		return false
	}
	if count == 0 {
		BadRequest(c, "course not found")
		return false
	}
	return true
}

func (h *AdminHandler) create(c *gin.Context, value any, msg string) {
	if err := h.db.WithContext(c.Request.Context()).Create(value).Error; err != nil {
		h.internal(c, msg, err)
		return
	}
	c.JSON(http.StatusCreated, value)
}

func (h *AdminHandler) internal(c *gin.Context, msg string, err error) {
	loggerFrom(c, h.logger).Error(msg, slog.Any("error", err))
	_ = c.Error(err)
	Internal(c, "internal error")
}
