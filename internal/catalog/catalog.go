package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"careerHub/internal/database"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrPlanNotFound      = errors.New("plan not found")
	ErrCourseNotFound    = errors.New("course not found")
	ErrCourseNotResolved = errors.New("course not resolved for job")
)

// Service 提供职位、套餐与课程内容的只读查询。
type Service struct {
	db *gorm.DB
}

// NewService 构造 Service。
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// JobFilter 对应职位搜索页的筛选项，空字段不参与过滤。
type JobFilter struct {
	Keyword  string `form:"keyword"`
	Course   string `form:"course"`
	Location string `form:"location"`
	Salary   string `form:"salary"`
}

// CourseContent 课程页展示的全部内容。
type CourseContent struct {
	Topics           []database.Topic
	Videos           []database.JobVideo
	Questions        []database.InterviewQuestion
	PlacementSession *database.PlacementSession
}

// ListJobs 按发布时间倒序返回职位。
func (s *Service) ListJobs(ctx context.Context) ([]database.Job, error) {
	var jobs []database.Job
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// SearchJobs 按关键字、课程、地点、薪资做不区分大小写的包含匹配。
func (s *Service) SearchJobs(ctx context.Context, filter JobFilter) ([]database.Job, error) {
	q := s.db.WithContext(ctx).Model(&database.Job{})

	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		like := containsPattern(kw)
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(skills) LIKE ?)", like, like)
	}
	if course := strings.TrimSpace(filter.Course); course != "" {
		like := containsPattern(course)
		q = q.Where("(LOWER(role) LIKE ? OR LOWER(skills) LIKE ?)", like, like)
	}
	if loc := strings.TrimSpace(filter.Location); loc != "" {
		q = q.Where("LOWER(location) LIKE ?", containsPattern(loc))
	}
	if salary := strings.TrimSpace(filter.Salary); salary != "" {
		q = q.Where("LOWER(salary_range) LIKE ?", containsPattern(salary))
	}

	var jobs []database.Job
	if err := q.Order("id DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("search jobs: %w", err)
	}
	return jobs, nil
}

func containsPattern(value string) string {
	escaped := strings.NewReplacer("%", "", "_", "").Replace(strings.ToLower(value))
	return "%" + escaped + "%"
}

// GetJob 按 ID 查询职位。
func (s *Service) GetJob(ctx context.Context, id uint) (*database.Job, error) {
	var job database.Job
	if err := s.db.WithContext(ctx).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job: %w", err)
	}
	return &job, nil
}

// ListPlans 返回全部套餐，价格从低到高。
func (s *Service) ListPlans(ctx context.Context) ([]database.Plan, error) {
	var plans []database.Plan
	if err := s.db.WithContext(ctx).Order("price ASC, id ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// GetPlan 按 ID 查询套餐。
func (s *Service) GetPlan(ctx context.Context, id uint) (*database.Plan, error) {
	var plan database.Plan
	if err := s.db.WithContext(ctx).First(&plan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("load plan: %w", err)
	}
	return &plan, nil
}

// GetCourse 按 ID 查询课程。
func (s *Service) GetCourse(ctx context.Context, id uint) (*database.Course, error) {
	var course database.Course
	if err := s.db.WithContext(ctx).First(&course, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("load course: %w", err)
	}
	return &course, nil
}

// ResolveCourse 依次尝试：职位直接关联的课程、课程名等于 role、课程名等于 title（均不区分大小写）。
func (s *Service) ResolveCourse(ctx context.Context, job *database.Job) (*database.Course, error) {
	if job == nil {
		return nil, ErrCourseNotResolved
	}
	if job.CourseID != nil {
		course, err := s.GetCourse(ctx, *job.CourseID)
		if err == nil {
			return course, nil
		}
		if !errors.Is(err, ErrCourseNotFound) {
			return nil, err
		}
	}

	for _, name := range []string{job.Role, job.Title} {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var course database.Course
		err := s.db.WithContext(ctx).
			Where("LOWER(name) = ?", strings.ToLower(name)).
			Order("id ASC").
			First(&course).Error
		if err == nil {
			return &course, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("match course by name: %w", err)
		}
	}
	return nil, ErrCourseNotResolved
}

// FindJobForCourse 反查与课程关联的职位，优先级与 ResolveCourse 一致：
// 直接关联 course_id 的职位、role 等于课程名、title 等于课程名。未找到时返回 nil。
func (s *Service) FindJobForCourse(ctx context.Context, course *database.Course) (*database.Job, error) {
	name := strings.ToLower(strings.TrimSpace(course.Name))

	lookups := []struct {
		query string
		arg   any
	}{
		{"course_id = ?", course.ID},
		{"LOWER(role) = ?", name},
		{"LOWER(title) = ?", name},
	}
	for i, l := range lookups {
		if i > 0 && name == "" {
			break
		}
		var job database.Job
		err := s.db.WithContext(ctx).Where(l.query, l.arg).Order("id ASC").First(&job).Error
		if err == nil {
			return &job, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find job for course: %w", err)
		}
	}
	return nil, nil
}

// CourseContent 加载课程的知识点、视频、面试题与最近一场就业辅导。
func (s *Service) CourseContent(ctx context.Context, courseID uint) (*CourseContent, error) {
	db := s.db.WithContext(ctx)
	content := &CourseContent{}

	if err := db.Where("course_id = ?", courseID).Order("id ASC").Find(&content.Topics).Error; err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}
	if err := db.Where("course_id = ?", courseID).Order("id ASC").Find(&content.Videos).Error; err != nil {
		return nil, fmt.Errorf("load videos: %w", err)
	}
	if err := db.Where("course_id = ?", courseID).Order("id ASC").Find(&content.Questions).Error; err != nil {
		return nil, fmt.Errorf("load interview questions: %w", err)
	}

	var session database.PlacementSession
	err := db.Where("course_id = ?", courseID).Order("session_date ASC, id ASC").First(&session).Error
	switch {
	case err == nil:
		content.PlacementSession = &session
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("load placement session: %w", err)
	}
	return content, nil
}

// CreateDoubt 保存课程页提交的问题。
func (s *Service) CreateDoubt(ctx context.Context, doubt *database.Doubt) error {
	if err := s.db.WithContext(ctx).Create(doubt).Error; err != nil {
		return fmt.Errorf("create doubt: %w", err)
	}
	return nil
}
