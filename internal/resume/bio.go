package resume

import (
	"fmt"
	"strings"
)

// BioForm 个人简介生成器表单。
type BioForm struct {
	FullName   string `form:"fullName" json:"fullName" binding:"required"`
	Experience string `form:"experience" json:"experience"`
	Skills     string `form:"skills" json:"skills"`
	Highlights string `form:"highlights" json:"highlights"`
	Tone       string `form:"tone" json:"tone"`
	Length     string `form:"length" json:"length"`
	Language   string `form:"language" json:"language"`
}

// Bios 两个候选简介。
type Bios struct {
	Bio1 string `json:"bio1"`
	Bio2 string `json:"bio2"`
}

// GenerateBios 按固定模板生成两段简介，语气与篇幅统一小写。
func GenerateBios(form BioForm) Bios {
	name := strings.TrimSpace(form.FullName)
	exp := strings.TrimSpace(form.Experience)
	skills := strings.TrimSpace(form.Skills)
	highlights := strings.TrimSpace(form.Highlights)
	tone := strings.ToLower(strings.TrimSpace(form.Tone))
	length := strings.ToLower(strings.TrimSpace(form.Length))
	lang := strings.TrimSpace(form.Language)

	return Bios{
		Bio1: fmt.Sprintf("%s is a %s professional skilled in %s. %s. Known for a %s approach with %s impactful communication. (%s)",
			name, exp, skills, highlights, tone, length, lang),
		Bio2: fmt.Sprintf("With experience at the %s, %s specializes in %s. %s. Delivering results with a %s style and %s summaries. (%s)",
			exp, name, skills, highlights, tone, length, lang),
	}
}
