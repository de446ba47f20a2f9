package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"careerHub/internal/catalog"
	"careerHub/internal/database"
	"careerHub/internal/entitlement"
)

// Confirmation 确认课程的结果。
type Confirmation struct {
	Session  *database.CheckoutSession
	CourseID uint
}

// Confirm 解析会话所投职位对应的课程，并把用户当前套餐有效期快照到投递记录上。
// 已确认过的会话直接返回已保存的课程。
func (w *Workflow) Confirm(ctx context.Context, userID uint, token string) (*Confirmation, error) {
	sess, err := w.Session(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if State(sess.State) == StateCourseConfirmed && sess.CourseID != nil {
		return &Confirmation{Session: sess, CourseID: *sess.CourseID}, nil
	}
	if err := requireState(sess, StatePaymentVerified); err != nil {
		return nil, err
	}

	job, err := w.catalog.GetJob(ctx, sess.JobID)
	if err != nil {
		return nil, err
	}
	course, err := w.catalog.ResolveCourse(ctx, job)
	if err != nil {
		return nil, err
	}

	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := w.entitlements.ProfileFor(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := tx.Model(&database.Application{}).
			Where("id = ?", sess.ApplicationID).
			Updates(map[string]any{
				"plan_id":    profile.PlanID,
				"plan_start": profile.PlanStart,
				"plan_end":   profile.PlanEnd,
			}).Error; err != nil {
			return fmt.Errorf("snapshot plan onto application: %w", err)
		}
		if err := tx.Model(sess).Updates(map[string]any{
			"state":     string(StateCourseConfirmed),
			"course_id": course.ID,
		}).Error; err != nil {
			return fmt.Errorf("confirm checkout session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sess.State = string(StateCourseConfirmed)
	sess.CourseID = &course.ID

	w.logger.Info("course confirmed",
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("application_id", uint64(sess.ApplicationID)),
		slog.Uint64("course_id", uint64(course.ID)),
	)
	return &Confirmation{Session: sess, CourseID: course.ID}, nil
}

// CourseView 按权益裁剪的课程页。
type CourseView struct {
	Course        *database.Course
	Job           *database.Job
	UserPlan      string
	Active        bool
	RemainingDays int
	Locked        bool
	Content       *catalog.CourseContent
}

// CourseView 为 userID 构造课程页，套餐状态取自用户权益，无有效套餐时只返回课程主题。
// token 对应的会话已确认本课程时展示其职位，否则按课程关联顺序选取职位。
func (w *Workflow) CourseView(ctx context.Context, userID, courseID uint, token string) (*CourseView, error) {
	course, err := w.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	job, err := w.jobForCourse(ctx, userID, course, token)
	if err != nil {
		return nil, err
	}

	profile, err := w.entitlements.ProfileFor(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	now := w.entitlements.Now()

	content, err := w.catalog.CourseContent(ctx, course.ID)
	if err != nil {
		return nil, err
	}

	view := &CourseView{
		Course:        course,
		Job:           job,
		UserPlan:      entitlement.PlanName(profile),
		Active:        entitlement.HasActivePlan(profile, now),
		RemainingDays: entitlement.RemainingDays(profile, now),
		Content:       content,
	}
	if !view.Active {
		view.Locked = true
		view.Content = &catalog.CourseContent{Topics: content.Topics}
	}
	return view, nil
}

func (w *Workflow) jobForCourse(ctx context.Context, userID uint, course *database.Course, token string) (*database.Job, error) {
	if token != "" {
		sess, err := w.Session(ctx, userID, token)
		switch {
		case err == nil:
			if sess.CourseID != nil && *sess.CourseID == course.ID {
				return w.catalog.GetJob(ctx, sess.JobID)
			}
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
		default:
			return nil, err
		}
	}
	return w.catalog.FindJobForCourse(ctx, course)
}

// DoubtForm 课程页上的提问表单。
type DoubtForm struct {
	Name     string
	Email    string
	Question string
}

// SubmitDoubt 保存针对 courseID 的提问，问题为空时不写入并返回 false。
func (w *Workflow) SubmitDoubt(ctx context.Context, courseID uint, form DoubtForm) (bool, error) {
	question := strings.TrimSpace(form.Question)
	if question == "" {
		return false, nil
	}
	if _, err := w.catalog.GetCourse(ctx, courseID); err != nil {
		return false, err
	}
	doubt := database.Doubt{
		CourseID: courseID,
		Name:     strings.TrimSpace(form.Name),
		Email:    strings.TrimSpace(form.Email),
		Question: question,
	}
	if err := w.catalog.CreateDoubt(ctx, &doubt); err != nil {
		return false, err
	}
	return true, nil
}
