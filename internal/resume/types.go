package resume

import (
	"strings"
)

// Content 表示存储在 ResumeDraft.Content(JSONB) 中的结构化数据。
type Content struct {
	FullName         string   `json:"full_name"`
	ExperienceLevel  string   `json:"experience_level"`
	Skills           []string `json:"skills"`
	CareerHighlights string   `json:"career_highlights"`
	Keywords         []string `json:"keywords"`
}

// Form 简历生成器表单，skills 与 keywords 为逗号分隔文本。
type Form struct {
	Title            string `form:"title" json:"title" binding:"max=255"`
	FullName         string `form:"full_name" json:"full_name" binding:"required,max=100"`
	ExperienceLevel  string `form:"experience_level" json:"experience_level" binding:"max=100"`
	Skills           string `form:"skills" json:"skills"`
	CareerHighlights string `form:"career_highlights" json:"career_highlights"`
	Keywords         string `form:"keywords" json:"keywords"`
}

// BuildDraft 拆分技能与关键词，去除空白项。
func BuildDraft(form Form) Content {
	return Content{
		FullName:         strings.TrimSpace(form.FullName),
		ExperienceLevel:  strings.TrimSpace(form.ExperienceLevel),
		Skills:           splitList(form.Skills),
		CareerHighlights: strings.TrimSpace(form.CareerHighlights),
		Keywords:         splitList(form.Keywords),
	}
}

// DraftTitle 未填写标题时以姓名生成。
func DraftTitle(form Form) string {
	if title := strings.TrimSpace(form.Title); title != "" {
		return title
	}
	return strings.TrimSpace(form.FullName) + " - Resume"
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
