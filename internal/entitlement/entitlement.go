// Package entitlement 管理用户的套餐权益：当前套餐、有效期以及由此决定的每日投递配额。
// 以 Profile 行为准，Application 上的套餐信息只是投递时的快照。
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"careerHub/internal/database"
)

const (
	// PlanValidityDays 套餐有效天数。
	PlanValidityDays = 365
	// BasicPlanName 唯一限额套餐的规范化名称。
	BasicPlanName = "basic"
	// BasicDailyApplications Basic 套餐每个自然日可投递的次数。
	BasicDailyApplications = 5
)

// Quota 今日剩余可投递次数。
type Quota struct {
	Unlimited bool
	Remaining int
}

// UnlimitedQuota 表示不限次数。
func UnlimitedQuota() Quota { return Quota{Unlimited: true} }

// Allows 报告是否还能再投递一次。
func (q Quota) Allows() bool { return q.Unlimited || q.Remaining > 0 }

// Value 不限次数时返回 nil，否则返回剩余次数，供 JSON 输出。
func (q Quota) Value() *int {
	if q.Unlimited {
		return nil
	}
	v := q.Remaining
	return &v
}

// IsBasicPlan 去除首尾空白并转小写后比较套餐名。
func IsBasicPlan(name string) bool {
	return strings.ToLower(strings.TrimSpace(name)) == BasicPlanName
}

// Today 返回 now 所在的自然日，编码为 UTC 零点。
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func storedDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AssignPlan 设置套餐，plan_start 为今天，plan_end 为今天加 365 天。
func AssignPlan(profile *database.Profile, plan *database.Plan, now time.Time) {
	start := Today(now)
	end := start.AddDate(0, 0, PlanValidityDays)
	planID := plan.ID
	profile.PlanID = &planID
	profile.Plan = plan
	profile.PlanStart = &start
	profile.PlanEnd = &end
}

// RemainingDays 返回 max(plan_end - today, 0)，无套餐时为 0。
func RemainingDays(profile *database.Profile, now time.Time) int {
	if profile == nil || profile.PlanID == nil || profile.PlanEnd == nil {
		return 0
	}
	days := int(storedDate(*profile.PlanEnd).Sub(Today(now)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// HasActivePlan 报告套餐有效期是否仍覆盖今天。
func HasActivePlan(profile *database.Profile, now time.Time) bool {
	if profile == nil || profile.PlanID == nil || profile.PlanEnd == nil {
		return false
	}
	return !Today(now).After(storedDate(*profile.PlanEnd))
}

// PlanName 返回套餐显示名，无套餐时为空串。
func PlanName(profile *database.Profile) string {
	if profile == nil || profile.PlanID == nil || profile.Plan == nil {
		return ""
	}
	return profile.Plan.Name
}

// Service 持久化权益变更并回答配额查询。
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService 构造 Service，now 为 nil 时使用 time.Now。
func NewService(db *gorm.DB, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{db: db, now: now}
}

// Now 返回注入的时钟，调用方据此共用同一个“今天”。
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// ProfileFor 读取用户资料及其套餐，首次使用时创建空资料。
func (s *Service) ProfileFor(ctx context.Context, tx *gorm.DB, userID uint) (*database.Profile, error) {
	db := s.conn(ctx, tx)

	var profile database.Profile
	err := db.Preload("Plan").Where("user_id = ?", userID).First(&profile).Error
	switch {
	case err == nil:
		return &profile, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		profile = database.Profile{UserID: userID}
		if err := db.Create(&profile).Error; err != nil {
			return nil, fmt.Errorf("create profile: %w", err)
		}
		return &profile, nil
	default:
		return nil, fmt.Errorf("load profile: %w", err)
	}
}

// LockProfile 与 ProfileFor 相同，但在 tx 内对资料行加 FOR UPDATE 锁，
// 同一用户的并发投递因此串行完成配额检查与写入。
func (s *Service) LockProfile(ctx context.Context, tx *gorm.DB, userID uint) (*database.Profile, error) {
	if _, err := s.ProfileFor(ctx, tx, userID); err != nil {
		return nil, err
	}

	var profile database.Profile
	if err := s.conn(ctx, tx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("user_id = ?", userID).
		First(&profile).Error; err != nil {
		return nil, fmt.Errorf("lock profile: %w", err)
	}
	if profile.PlanID != nil {
		var plan database.Plan
		err := s.conn(ctx, tx).First(&plan, *profile.PlanID).Error
		switch {
		case err == nil:
			profile.Plan = &plan
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, fmt.Errorf("load plan: %w", err)
		}
	}
	return &profile, nil
}

// AssignPlan 为资料授予套餐并持久化新的有效期。
func (s *Service) AssignPlan(ctx context.Context, tx *gorm.DB, profile *database.Profile, plan *database.Plan) error {
	if plan == nil || plan.ID == 0 {
		return errors.New("assign plan: plan is required")
	}
	AssignPlan(profile, plan, s.now())

	if err := s.conn(ctx, tx).Model(&database.Profile{}).
		Where("id = ?", profile.ID).
		Updates(map[string]any{
			"plan_id":    profile.PlanID,
			"plan_start": profile.PlanStart,
			"plan_end":   profile.PlanEnd,
		}).Error; err != nil {
		return fmt.Errorf("persist plan assignment: %w", err)
	}
	return nil
}

// CountApplicationsToday 统计用户当天创建的投递数。
func (s *Service) CountApplicationsToday(ctx context.Context, tx *gorm.DB, userID uint) (int64, error) {
	now := s.now()
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)

	var count int64
	if err := s.conn(ctx, tx).Model(&database.Application{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start, end).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count applications today: %w", err)
	}
	return count, nil
}

// RemainingApplicationsToday 无套餐或非 Basic 套餐不限次数，
// Basic 套餐为 max(5 - 今日投递数, 0)。
func (s *Service) RemainingApplicationsToday(ctx context.Context, tx *gorm.DB, profile *database.Profile) (Quota, error) {
	if profile == nil || profile.PlanID == nil {
		return UnlimitedQuota(), nil
	}

	plan := profile.Plan
	if plan == nil {
		var loaded database.Plan
		if err := s.conn(ctx, tx).First(&loaded, *profile.PlanID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return UnlimitedQuota(), nil
			}
			return Quota{}, fmt.Errorf("load plan: %w", err)
		}
		plan = &loaded
	}
	if !IsBasicPlan(plan.Name) {
		return UnlimitedQuota(), nil
	}

	count, err := s.CountApplicationsToday(ctx, tx, profile.UserID)
	if err != nil {
		return Quota{}, err
	}
	remaining := BasicDailyApplications - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Quota{Remaining: remaining}, nil
}
