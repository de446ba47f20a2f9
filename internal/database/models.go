package database

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 用户角色。
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 支付状态。
const (
	PaymentStatusCreated = "CREATED"
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Email              string   `gorm:"uniqueIndex;size:254"`
	FirstName          string   `gorm:"size:150"`
	PasswordHash       string   `gorm:"size:255"`
	Role               string   `gorm:"size:16;default:user"`
	MustChangePassword bool     `gorm:"default:false"`
	Profile            *Profile `gorm:"constraint:OnDelete:CASCADE"`
}

// IsAdmin 判断是否管理员账号。
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Profile 记录用户资料，同时承载套餐授权（Entitlement）。
// 套餐状态以本表为准，Application 上的套餐字段只是快照。
type Profile struct {
	gorm.Model
	UserID uint `gorm:"uniqueIndex"`

	PlanID    *uint
	Plan      *Plan `gorm:"constraint:OnDelete:SET NULL"`
	PlanStart *time.Time
	PlanEnd   *time.Time

	// personal
	FullName   string  `gorm:"size:100"`
	Email      string  `gorm:"size:254"`
	Mobile     *string `gorm:"uniqueIndex;size:15"`
	City       string  `gorm:"size:100"`
	Gender     string  `gorm:"size:10"`
	Languages  string  `gorm:"size:200"`
	WorkStatus string  `gorm:"size:20"`

	// education
	Degree         string `gorm:"size:100"`
	Specialization string `gorm:"size:100"`
	College        string `gorm:"size:100"`
	PassingYear    *int
	Percentage     *float64

	// skills
	Skills          string `gorm:"type:text"`
	Software        string `gorm:"size:200"`
	SkillExperience string `gorm:"size:100"`

	// projects
	ProjectTitle   string `gorm:"size:200"`
	ProjectLink    string `gorm:"size:500"`
	ProjectDetails string `gorm:"type:text"`
	ProjectFileKey string `gorm:"size:512"`

	// career
	CompanyName      string `gorm:"size:200"`
	JobTitle         string `gorm:"size:200"`
	ExperienceYears  string `gorm:"size:20"`
	JoiningDate      *time.Time
	Responsibilities string `gorm:"type:text"`
	CertificateKey   string `gorm:"size:512"`

	// resume
	ResumeKey       string `gorm:"size:512"`
	ProfileImageKey string `gorm:"size:512"`
	ThumbnailKey    string `gorm:"size:512"`
}

// Plan 表示可购买的订阅套餐。
type Plan struct {
	gorm.Model
	Name      string  `gorm:"size:100"`
	Price     float64 `gorm:"type:numeric(10,2)"`
	Duration  string  `gorm:"size:50;default:Yearly"`
	Features  string  `gorm:"type:text"`
	IsCurrent bool    `gorm:"default:false"`
}

// FeatureList 按逗号拆分套餐权益。
func (p Plan) FeatureList() []string {
	return splitTrimmed(p.Features, ",")
}

// Course 表示职业课程。
type Course struct {
	gorm.Model
	Name        string  `gorm:"size:200;index"`
	Description string  `gorm:"type:text"`
	Topics      []Topic `gorm:"constraint:OnDelete:CASCADE"`
}

// Topic 课程下的知识点。
type Topic struct {
	gorm.Model
	CourseID uint   `gorm:"index"`
	Title    string `gorm:"size:200"`
}

// Job 表示职位信息。
type Job struct {
	gorm.Model
	Title            string `gorm:"size:200;index"`
	Company          string `gorm:"size:200"`
	Location         string `gorm:"size:100"`
	JobType          string `gorm:"size:50"`
	SalaryRange      string `gorm:"size:100"`
	PostedDays       int
	Openings         int
	Applicants       int
	Responsibilities string `gorm:"type:text"`
	Role             string `gorm:"size:200"`
	CandidateType    string `gorm:"size:100"`
	EmploymentType   string `gorm:"size:100"`
	Education        string `gorm:"size:200"`
	Skills           string `gorm:"type:text"`
	AboutCompany     string `gorm:"type:text"`
	CourseID         *uint
	Course           *Course `gorm:"constraint:OnDelete:SET NULL"`
}

// ResponsibilityList 按行拆分岗位职责。
func (j Job) ResponsibilityList() []string {
	return splitTrimmed(j.Responsibilities, "\n")
}

// SkillList 按逗号拆分技能要求。
func (j Job) SkillList() []string {
	return splitTrimmed(j.Skills, ",")
}

// Application 表示一次职位申请。PlanID/PlanStart/PlanEnd 为申请时的套餐快照。
type Application struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	UserID uint `gorm:"index"`
	User   User `gorm:"constraint:OnDelete:CASCADE"`
	JobID  uint `gorm:"index"`
	Job    Job  `gorm:"constraint:OnDelete:CASCADE"`

	FullName        string `gorm:"size:100"`
	Email           string `gorm:"size:254"`
	Mobile          string `gorm:"size:15"`
	City            string `gorm:"size:100"`
	Gender          string `gorm:"size:10"`
	Languages       string `gorm:"size:200"`
	WorkStatus      string `gorm:"size:20"`
	ExperienceYears string `gorm:"size:20"`
	Qualification   string `gorm:"size:200"`
	PassedOutYear   *int
	Updates         bool
	ProfileImageKey string `gorm:"size:512"`
	ResumeKey       string `gorm:"size:512"`

	PlanID    *uint
	Plan      *Plan `gorm:"constraint:OnDelete:SET NULL"`
	PlanStart *time.Time
	PlanEnd   *time.Time
}

// JobVideo 课程配套视频。
type JobVideo struct {
	gorm.Model
	CourseID uint   `gorm:"index"`
	Title    string `gorm:"size:200"`
	VideoURL string `gorm:"size:500"`
}

// InterviewQuestion 课程配套的面试题 PDF。
type InterviewQuestion struct {
	gorm.Model
	CourseID uint   `gorm:"index"`
	Title    string `gorm:"size:200"`
	PDFKey   string `gorm:"size:512"`
}

// PlacementSession 课程的就业辅导场次。
type PlacementSession struct {
	gorm.Model
	CourseID    uint   `gorm:"index"`
	Title       string `gorm:"size:200"`
	SessionDate time.Time
	SessionTime string `gorm:"size:20"`
	MeetLink    string `gorm:"size:500"`
}

// Doubt 用户在课程页提交的问题。
type Doubt struct {
	gorm.Model
	CourseID uint   `gorm:"index"`
	Name     string `gorm:"size:100"`
	Email    string `gorm:"size:254"`
	Question string `gorm:"type:text"`
}

// Payment 记录一次网关订单及其结果。
type Payment struct {
	gorm.Model
	UserID uint  `gorm:"index"`
	User   User  `gorm:"constraint:OnDelete:CASCADE"`
	PlanID *uint
	Plan   *Plan `gorm:"constraint:OnDelete:SET NULL"`

	// CheckoutSessionID 是下单时所属的流程会话，重复选套餐不会改写。
	CheckoutSessionID *uint   `gorm:"index"`
	Provider          string  `gorm:"size:20"`
	GatewayOrderID    string  `gorm:"uniqueIndex;size:100"`
	GatewayPayID      string  `gorm:"size:100"`
	Signature         string  `gorm:"size:255"`
	Amount            float64 `gorm:"type:numeric(10,2)"`
	Currency          string  `gorm:"size:10"`
	Status            string  `gorm:"size:20;index;default:CREATED"`
}

// CheckoutSession 保存申请到课程确认之间的流程状态，以不透明 token 标识。
type CheckoutSession struct {
	gorm.Model
	Token          string `gorm:"uniqueIndex;size:64"`
	UserID         uint   `gorm:"index"`
	JobID          uint
	ApplicationID  uint
	SelectedPlanID *uint
	PaymentID      *uint `gorm:"index"`
	CourseID       *uint
	State          string    `gorm:"size:32"`
	ExpiresAt      time.Time `gorm:"index"`
}

// ResumeDraft 简历生成器产出的结构化简历。
type ResumeDraft struct {
	gorm.Model
	UserID  uint           `gorm:"index"`
	User    User           `gorm:"constraint:OnDelete:CASCADE"`
	Title   string         `gorm:"size:255"`
	Content datatypes.JSON `gorm:"type:jsonb"`
	PdfKey  string         `gorm:"size:512"`
	Status  string         `gorm:"size:32"`
}

// AllModels 返回需要自动迁移的全部模型。
func AllModels() []any {
	return []any{
		&User{},
		&Plan{},
		&Profile{},
		&Course{},
		&Topic{},
		&Job{},
		&Application{},
		&JobVideo{},
		&InterviewQuestion{},
		&PlacementSession{},
		&Doubt{},
		&Payment{},
		&CheckoutSession{},
		&ResumeDraft{},
	}
}

func splitTrimmed(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
