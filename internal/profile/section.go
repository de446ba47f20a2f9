// Package profile edits the user profile one section at a time. Every section
// is its own type with a fixed set of form fields and upload fields, so a
// request can never touch columns outside the section it names.
package profile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"careerHub/internal/database"
)

// Kind is the value of the "section" form field.
type Kind string

const (
	KindPersonal  Kind = "personal"
	KindEducation Kind = "education"
	KindSkills    Kind = "skills"
	KindProjects  Kind = "projects"
	KindCareer    Kind = "career"
	KindResume    Kind = "resume"
)

const (
	FileProjectFile  = "project_file"
	FileCertificate  = "certificate"
	FileResume       = "resume"
	FileProfileImage = "profile_image"
)

var (
	ErrUnknownSection  = errors.New("unknown profile section")
	ErrInvalidField    = errors.New("invalid profile field")
	ErrDuplicateMobile = errors.New("mobile number already registered")
)

// StoredFile is an upload that already sits in object storage.
type StoredFile struct {
	Key          string
	ThumbnailKey string
}

// Section is one editable group of profile fields.
type Section interface {
	Kind() Kind
	// FileFields lists the multipart fields this section accepts.
	FileFields() []string
	columns() []string
	apply(p *database.Profile, files map[string]StoredFile) error
}

// NewSection returns an empty section of the given kind for form binding.
func NewSection(kind string) (Section, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindPersonal:
		return &PersonalSection{}, nil
	case KindEducation:
		return &EducationSection{}, nil
	case KindSkills:
		return &SkillsSection{}, nil
	case KindProjects:
		return &ProjectsSection{}, nil
	case KindCareer:
		return &CareerSection{}, nil
	case KindResume:
		return &ResumeSection{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, kind)
	}
}

type PersonalSection struct {
	FullName   string `form:"full_name" binding:"max=100"`
	Email      string `form:"email" binding:"omitempty,email,max=254"`
	Mobile     string `form:"mobile" binding:"omitempty,numeric,min=7,max=15"`
	City       string `form:"city" binding:"max=100"`
	Gender     string `form:"gender" binding:"max=10"`
	Languages  string `form:"languages" binding:"max=200"`
	WorkStatus string `form:"work_status" binding:"max=20"`
}

func (*PersonalSection) Kind() Kind           { return KindPersonal }
func (*PersonalSection) FileFields() []string { return nil }

func (*PersonalSection) columns() []string {
	return []string{"full_name", "email", "mobile", "city", "gender", "languages", "work_status"}
}

func (s *PersonalSection) apply(p *database.Profile, _ map[string]StoredFile) error {
	p.FullName = strings.TrimSpace(s.FullName)
	p.Email = strings.TrimSpace(s.Email)
	p.Mobile = nil
	if mobile := strings.TrimSpace(s.Mobile); mobile != "" {
		p.Mobile = &mobile
	}
	p.City = strings.TrimSpace(s.City)
	p.Gender = strings.TrimSpace(s.Gender)
	p.Languages = strings.TrimSpace(s.Languages)
	p.WorkStatus = strings.TrimSpace(s.WorkStatus)
	return nil
}

type EducationSection struct {
	Degree         string `form:"degree" binding:"max=100"`
	Specialization string `form:"specialization" binding:"max=100"`
	College        string `form:"college" binding:"max=100"`
	PassingYear    string `form:"passing_year"`
	Percentage     string `form:"percentage"`
}

func (*EducationSection) Kind() Kind           { return KindEducation }
func (*EducationSection) FileFields() []string { return nil }

func (*EducationSection) columns() []string {
	return []string{"degree", "specialization", "college", "passing_year", "percentage"}
}

func (s *EducationSection) apply(p *database.Profile, _ map[string]StoredFile) error {
	year, err := optionalInt(s.PassingYear)
	if err != nil {
		return fmt.Errorf("%w: passing_year", ErrInvalidField)
	}
	if year != nil && (*year < 1950 || *year > 2100) {
		return fmt.Errorf("%w: passing_year out of range", ErrInvalidField)
	}
	pct, err := optionalFloat(s.Percentage)
	if err != nil {
		return fmt.Errorf("%w: percentage", ErrInvalidField)
	}
	if pct != nil && (*pct < 0 || *pct > 100) {
		return fmt.Errorf("%w: percentage out of range", ErrInvalidField)
	}

	p.Degree = strings.TrimSpace(s.Degree)
	p.Specialization = strings.TrimSpace(s.Specialization)
	p.College = strings.TrimSpace(s.College)
	p.PassingYear = year
	p.Percentage = pct
	return nil
}

type SkillsSection struct {
	Skills          string `form:"skills"`
	Software        string `form:"software" binding:"max=200"`
	SkillExperience string `form:"skill_experience" binding:"max=100"`
}

func (*SkillsSection) Kind() Kind           { return KindSkills }
func (*SkillsSection) FileFields() []string { return nil }

func (*SkillsSection) columns() []string {
	return []string{"skills", "software", "skill_experience"}
}

func (s *SkillsSection) apply(p *database.Profile, _ map[string]StoredFile) error {
	p.Skills = strings.Join(splitList(s.Skills), ", ")
	p.Software = strings.Join(splitList(s.Software), ", ")
	p.SkillExperience = strings.TrimSpace(s.SkillExperience)
	return nil
}

type ProjectsSection struct {
	ProjectTitle   string `form:"project_title" binding:"max=200"`
	ProjectLink    string `form:"project_link" binding:"omitempty,url,max=500"`
	ProjectDetails string `form:"project_details"`
}

func (*ProjectsSection) Kind() Kind           { return KindProjects }
func (*ProjectsSection) FileFields() []string { return []string{FileProjectFile} }

func (*ProjectsSection) columns() []string {
	return []string{"project_title", "project_link", "project_details", "project_file_key"}
}

func (s *ProjectsSection) apply(p *database.Profile, files map[string]StoredFile) error {
	p.ProjectTitle = strings.TrimSpace(s.ProjectTitle)
	p.ProjectLink = strings.TrimSpace(s.ProjectLink)
	p.ProjectDetails = strings.TrimSpace(s.ProjectDetails)
	if f, ok := files[FileProjectFile]; ok {
		p.ProjectFileKey = f.Key
	}
	return nil
}

type CareerSection struct {
	CompanyName      string `form:"company_name" binding:"max=200"`
	JobTitle         string `form:"job_title" binding:"max=200"`
	ExperienceYears  string `form:"experience_years" binding:"max=20"`
	JoiningDate      string `form:"joining_date"`
	Responsibilities string `form:"responsibilities"`
}

func (*CareerSection) Kind() Kind           { return KindCareer }
func (*CareerSection) FileFields() []string { return []string{FileCertificate} }

func (*CareerSection) columns() []string {
	return []string{"company_name", "job_title", "experience_years", "joining_date", "responsibilities", "certificate_key"}
}

func (s *CareerSection) apply(p *database.Profile, files map[string]StoredFile) error {
	var joined *time.Time
	if raw := strings.TrimSpace(s.JoiningDate); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return fmt.Errorf("%w: joining_date must be YYYY-MM-DD", ErrInvalidField)
		}
		joined = &t
	}

	p.CompanyName = strings.TrimSpace(s.CompanyName)
	p.JobTitle = strings.TrimSpace(s.JobTitle)
	p.ExperienceYears = strings.TrimSpace(s.ExperienceYears)
	p.JoiningDate = joined
	p.Responsibilities = strings.TrimSpace(s.Responsibilities)
	if f, ok := files[FileCertificate]; ok {
		p.CertificateKey = f.Key
	}
	return nil
}

// ResumeSection only carries uploads.
type ResumeSection struct{}

func (*ResumeSection) Kind() Kind { return KindResume }
func (*ResumeSection) FileFields() []string {
	return []string{FileResume, FileProfileImage}
}

func (*ResumeSection) columns() []string {
	return []string{"resume_key", "profile_image_key", "thumbnail_key"}
}

func (*ResumeSection) apply(p *database.Profile, files map[string]StoredFile) error {
	if f, ok := files[FileResume]; ok {
		p.ResumeKey = f.Key
	}
	if f, ok := files[FileProfileImage]; ok {
		p.ProfileImageKey = f.Key
		p.ThumbnailKey = f.ThumbnailKey
	}
	return nil
}

func optionalInt(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optionalFloat(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
