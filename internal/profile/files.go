package profile

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxUploadBytes 单个上传文件的大小上限。
const MaxUploadBytes = 5 << 20

var ErrFileNotAllowed = errors.New("file type not allowed")

// FileRule 描述一个上传字段允许的扩展名，Image 表示需要生成缩略图。
type FileRule struct {
	Extensions []string
	Image      bool
}

var fileRules = map[string]FileRule{
	FileProjectFile:  {Extensions: []string{".pdf", ".zip", ".doc", ".docx", ".ppt", ".pptx"}},
	FileCertificate:  {Extensions: []string{".pdf", ".jpg", ".jpeg", ".png"}},
	FileResume:       {Extensions: []string{".pdf", ".doc", ".docx"}},
	FileProfileImage: {Extensions: []string{".jpg", ".jpeg", ".png"}, Image: true},
}

// RuleFor 返回字段的上传规则。
func RuleFor(field string) (FileRule, bool) {
	rule, ok := fileRules[field]
	return rule, ok
}

// ValidateFile 校验字段、扩展名与大小。
func ValidateFile(field, filename string, size int64) error {
	rule, ok := fileRules[field]
	if !ok {
		return fmt.Errorf("%w: unexpected field %q", ErrFileNotAllowed, field)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(rule.Extensions, ext) {
		return fmt.Errorf("%w: %s does not accept %q", ErrFileNotAllowed, field, ext)
	}
	if size <= 0 || size > MaxUploadBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrFileNotAllowed, field, MaxUploadBytes)
	}
	return nil
}

// ObjectKey 生成对象存储路径：{prefix}/{user}/{field}/{uuid}{ext}。
func ObjectKey(prefix string, userID uint, field, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%d/%s/%s%s", prefix, userID, field, uuid.NewString(), ext)
}

// ThumbnailKey 缩略图与原图同目录，固定为 jpg。
func ThumbnailKey(objectKey string) string {
	return strings.TrimSuffix(objectKey, filepath.Ext(objectKey)) + "_thumb.jpg"
}

// OwnsKey 判断对象是否位于该用户的目录下，并拒绝路径穿越。
func OwnsKey(userID uint, key string, prefixes ...string) bool {
	if key == "" || len(key) > 512 || !utf8.ValidString(key) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, fmt.Sprintf("%s/%d/", prefix, userID)) {
			return true
		}
	}
	return false
}
