package profile

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"careerHub/internal/database"
	"careerHub/internal/entitlement"
)

// StoragePrefix 个人资料上传文件的对象前缀。
const StoragePrefix = "profiles"

// Dashboard 个人中心页面数据。
type Dashboard struct {
	Profile        *database.Profile
	RemainingDays  int
	RemainingToday entitlement.Quota
	Completion     int
	ActivePlan     bool
}

// UpdateResult 返回更新后的资料以及被替换掉的旧文件。
type UpdateResult struct {
	Profile  *database.Profile
	Replaced []string
}

// Service 读写用户资料。
type Service struct {
	db           *gorm.DB
	entitlements *entitlement.Service
}

// NewService 构造 Service。
func NewService(db *gorm.DB, entitlements *entitlement.Service) *Service {
	return &Service{db: db, entitlements: entitlements}
}

// Dashboard 汇总资料、套餐剩余天数、今日剩余申请数与完成度。
func (s *Service) Dashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	p, err := s.entitlements.ProfileFor(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	quota, err := s.entitlements.RemainingApplicationsToday(ctx, nil, p)
	if err != nil {
		return nil, err
	}
	now := s.entitlements.Now()
	return &Dashboard{
		Profile:        p,
		RemainingDays:  entitlement.RemainingDays(p, now),
		RemainingToday: quota,
		Completion:     CompletionPercentage(p),
		ActivePlan:     entitlement.HasActivePlan(p, now),
	}, nil
}

// Update 应用单个分区的修改，只写入该分区的列。
func (s *Service) Update(ctx context.Context, userID uint, section Section, files map[string]StoredFile) (*UpdateResult, error) {
	for field := range files {
		if !acceptsFile(section, field) {
			return nil, fmt.Errorf("%w: %s does not accept %q", ErrFileNotAllowed, section.Kind(), field)
		}
	}

	p, err := s.entitlements.ProfileFor(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	before := fileKeys(p)

	if err := section.apply(p, files); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.Mobile != nil {
			var taken int64
			if err := tx.Model(&database.Profile{}).
				Where("mobile = ? AND id <> ?", *p.Mobile, p.ID).
				Count(&taken).Error; err != nil {
				return fmt.Errorf("check mobile: %w", err)
			}
			if taken > 0 {
				return ErrDuplicateMobile
			}
		}
		if err := tx.Model(p).Select(section.columns()).Updates(p).Error; err != nil {
			return fmt.Errorf("update profile %s: %w", section.Kind(), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{Profile: p}
	after := fileKeys(p)
	for i, key := range before {
		if key != "" && key != after[i] {
			result.Replaced = append(result.Replaced, key)
		}
	}
	return result, nil
}

func acceptsFile(section Section, field string) bool {
	for _, f := range section.FileFields() {
		if f == field {
			return true
		}
	}
	return false
}

func fileKeys(p *database.Profile) [5]string {
	return [5]string{p.ProjectFileKey, p.CertificateKey, p.ResumeKey, p.ProfileImageKey, p.ThumbnailKey}
}

// CompletionPercentage counts how many of the 14 tracked fields are filled.
func CompletionPercentage(p *database.Profile) int {
	if p == nil {
		return 0
	}
	mobile := ""
	if p.Mobile != nil {
		mobile = *p.Mobile
	}
	fields := []string{
		p.FullName, p.Email, mobile, p.City,
		p.Degree, p.College, p.Specialization,
		p.Skills, p.Software,
		p.ProjectTitle, p.ProjectDetails,
		p.CompanyName, p.JobTitle,
		p.ResumeKey,
	}
	filled := 0
	for _, f := range fields {
		if f != "" {
			filled++
		}
	}
	return filled * 100 / len(fields)
}
