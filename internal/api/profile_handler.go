package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"careerHub/internal/database"
	"careerHub/internal/errcode"
	"careerHub/internal/profile"
)

// ProfileHandler 负责个人中心的读取与分区更新。
type ProfileHandler struct {
	profiles *profile.Service
	assets   *AssetHandler
	logger   *slog.Logger
}

// NewProfileHandler 构造 ProfileHandler。
func NewProfileHandler(profiles *profile.Service, assets *AssetHandler, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, assets: assets, logger: logger}
}

func profileJSON(p *database.Profile) gin.H {
	body := gin.H{
		"full_name":         p.FullName,
		"email":             p.Email,
		"mobile":            p.Mobile,
		"city":              p.City,
		"gender":            p.Gender,
		"languages":         p.Languages,
		"work_status":       p.WorkStatus,
		"degree":            p.Degree,
		"specialization":    p.Specialization,
		"college":           p.College,
		"passing_year":      p.PassingYear,
		"percentage":        p.Percentage,
		"skills":            p.Skills,
		"software":          p.Software,
		"skill_experience":  p.SkillExperience,
		"project_title":     p.ProjectTitle,
		"project_link":      p.ProjectLink,
		"project_details":   p.ProjectDetails,
		"project_file_key":  p.ProjectFileKey,
		"company_name":      p.CompanyName,
		"job_title":         p.JobTitle,
		"experience_years":  p.ExperienceYears,
		"joining_date":      nil,
		"responsibilities":  p.Responsibilities,
		"certificate_key":   p.CertificateKey,
		"resume_key":        p.ResumeKey,
		"profile_image_key": p.ProfileImageKey,
		"thumbnail_key":     p.ThumbnailKey,
		"plan":              nil,
	}
	if p.JoiningDate != nil {
		body["joining_date"] = p.JoiningDate.Format(time.DateOnly)
	}
	if p.Plan != nil {
		plan := gin.H{"id": p.Plan.ID, "name": p.Plan.Name}
		if p.PlanStart != nil && p.PlanEnd != nil {
			plan["plan_start"] = p.PlanStart.Format(time.DateOnly)
			plan["plan_end"] = p.PlanEnd.Format(time.DateOnly)
		}
		body["plan"] = plan
	}
	return body
}

// GetProfile 返回资料、套餐剩余天数、今日剩余申请数与完成度。
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	dash, err := h.profiles.Dashboard(c.Request.Context(), userID)
	if err != nil {
		loggerFrom(c, h.logger).Error("load profile dashboard failed", slog.Any("error", err))
		Internal(c, "failed to load profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":         profileJSON(dash.Profile),
		"remaining_days":  dash.RemainingDays,
		"remaining_today": dash.RemainingToday.Value(),
		"completion":      dash.Completion,
		"active_plan":     dash.ActivePlan,
	})
}

// UpdateProfile 按 section 更新一个分区，只接受该分区声明的字段与文件。
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()

	section, err := profile.NewSection(c.PostForm("section"))
	if err != nil {
		Fail(c, http.StatusBadRequest, errcode.InvalidInput, err.Error(), "/profile")
		return
	}
	log := loggerFrom(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.String("section", string(section.Kind())),
	)

	if err := c.ShouldBind(section); err != nil {
		Fail(c, http.StatusBadRequest, errcode.InvalidInput, err.Error(), "/profile")
		return
	}

	files, err := h.assets.storeUploads(c, userID, profile.StoragePrefix, section.FileFields())
	if err != nil {
		writeUploadError(c, log, err)
		return
	}

	result, err := h.profiles.Update(ctx, userID, section, files)
	if err != nil {
		h.assets.discard(ctx, files)
		switch {
		case errors.Is(err, profile.ErrDuplicateMobile):
			Fail(c, http.StatusConflict, errcode.DuplicateMobile, err.Error(), "/profile")
		case errors.Is(err, profile.ErrInvalidField), errors.Is(err, profile.ErrFileNotAllowed):
			Fail(c, http.StatusBadRequest, errcode.InvalidInput, err.Error(), "/profile")
		default:
			log.Error("update profile failed", slog.Any("error", err))
			_ = c.Error(err)
			Internal(c, "failed to update profile")
		}
		return
	}

	if len(result.Replaced) > 0 {
		if err := h.assets.Storage.DeleteObjects(ctx, result.Replaced); err != nil {
			log.Warn("delete replaced files failed", slog.Any("error", err))
		}
	}

	log.Info("profile section updated")
	c.JSON(http.StatusOK, gin.H{
		"profile":    profileJSON(result.Profile),
		"completion": profile.CompletionPercentage(result.Profile),
	})
}
