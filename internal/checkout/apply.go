package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"careerHub/internal/database"
	"careerHub/internal/entitlement"
	"careerHub/internal/metrics"
)

// ApplicationForm 投递表单中的申请人信息。
type ApplicationForm struct {
	FullName        string
	Email           string
	Mobile          string
	City            string
	Gender          string
	Languages       string
	WorkStatus      string
	ExperienceYears string
	Qualification   string
	PassedOutYear   *int
	Updates         bool
	ProfileImageKey string
	ResumeKey       string
}

// ApplyResult 描述已保存的投递及下一步去向。
type ApplyResult struct {
	Application *database.Application
	Session     *database.CheckoutSession
	NextStep    Step
	CourseID    *uint
}

// Apply 为 jobID 保存一次投递。Basic 套餐按自然日限额，已有有效套餐的用户跳过选套餐与支付。
// 资料行在事务内加锁，同一用户的并发投递不会同时通过配额检查。
func (w *Workflow) Apply(ctx context.Context, userID, jobID uint, form ApplicationForm) (*ApplyResult, error) {
	job, err := w.catalog.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	now := w.entitlements.Now()
	var (
		app    database.Application
		sess   database.CheckoutSession
		active bool
	)

	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := w.entitlements.LockProfile(ctx, tx, userID)
		if err != nil {
			return err
		}

		quota, err := w.entitlements.RemainingApplicationsToday(ctx, tx, profile)
		if err != nil {
			return err
		}
		if !quota.Allows() {
			return ErrDailyLimitReached
		}

		app = database.Application{
			CreatedAt:       now,
			UserID:          userID,
			JobID:           job.ID,
			FullName:        form.FullName,
			Email:           form.Email,
			Mobile:          form.Mobile,
			City:            form.City,
			Gender:          form.Gender,
			Languages:       form.Languages,
			WorkStatus:      form.WorkStatus,
			ExperienceYears: form.ExperienceYears,
			Qualification:   form.Qualification,
			PassedOutYear:   form.PassedOutYear,
			Updates:         form.Updates,
			ProfileImageKey: form.ProfileImageKey,
			ResumeKey:       form.ResumeKey,
		}
		if err := tx.Create(&app).Error; err != nil {
			return fmt.Errorf("create application: %w", err)
		}

		active = entitlement.HasActivePlan(profile, now)
		state := StatePlanPending
		if active {
			state = StatePaymentVerified
		}
		sess = database.CheckoutSession{
			Token:          uuid.NewString(),
			UserID:         userID,
			JobID:          job.ID,
			ApplicationID:  app.ID,
			SelectedPlanID: profile.PlanID,
			State:          string(state),
			ExpiresAt:      now.Add(w.sessionTTL),
		}
		if err := tx.Create(&sess).Error; err != nil {
			return fmt.Errorf("create checkout session: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDailyLimitReached) {
			metrics.ObserveApplication("quota_exceeded")
		}
		return nil, err
	}
	metrics.ObserveApplication("accepted")

	log := w.logger.With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("application_id", uint64(app.ID)),
	)

	result := &ApplyResult{
		Application: &app,
		Session:     &sess,
		NextStep:    NextStep(State(sess.State)),
	}
	if !active {
		log.Info("application stored, plan selection required")
		return result, nil
	}

	confirmation, err := w.Confirm(ctx, userID, sess.Token)
	if err != nil {
		if errors.Is(err, ErrCourseNotResolved) {
			log.Warn("active plan but no course for job", slog.Uint64("job_id", uint64(job.ID)))
			result.NextStep = StepSearch
		}
		return result, err
	}
	result.Session = confirmation.Session
	result.NextStep = StepCourse
	result.CourseID = &confirmation.CourseID
	log.Info("application stored, plan already active", slog.Uint64("course_id", uint64(confirmation.CourseID)))
	return result, nil
}

// CheckQuota 在落库前快速检查今日配额，耗尽时返回 ErrDailyLimitReached。
// 只作预检，Apply 仍会在事务内加锁复核。
func (w *Workflow) CheckQuota(ctx context.Context, userID uint) error {
	profile, err := w.entitlements.ProfileFor(ctx, nil, userID)
	if err != nil {
		return err
	}
	quota, err := w.entitlements.RemainingApplicationsToday(ctx, nil, profile)
	if err != nil {
		return err
	}
	if !quota.Allows() {
		metrics.ObserveApplication("quota_exceeded")
		return ErrDailyLimitReached
	}
	return nil
}
