package resume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"careerHub/internal/database"
)

// 简历 PDF 的处理状态。
const (
	StatusDraft     = "draft"
	StatusRendering = "rendering"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var ErrDraftNotFound = errors.New("resume draft not found")

// Store 持久化简历草稿。
type Store struct {
	db *gorm.DB
}

// NewStore 构造 Store。
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create 根据表单生成并保存草稿。
func (s *Store) Create(ctx context.Context, userID uint, form Form) (*database.ResumeDraft, Content, error) {
	content := BuildDraft(form)
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, Content{}, fmt.Errorf("encode resume content: %w", err)
	}
	draft := database.ResumeDraft{
		UserID:  userID,
		Title:   DraftTitle(form),
		Content: datatypes.JSON(raw),
		Status:  StatusDraft,
	}
	if err := s.db.WithContext(ctx).Create(&draft).Error; err != nil {
		return nil, Content{}, fmt.Errorf("create resume draft: %w", err)
	}
	return &draft, content, nil
}

// ForUser 读取属于该用户的草稿。
func (s *Store) ForUser(ctx context.Context, userID, id uint) (*database.ResumeDraft, error) {
	var draft database.ResumeDraft
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("load resume draft: %w", err)
	}
	return &draft, nil
}

// Load 按 ID 读取草稿并解析内容，供后台任务使用。
func (s *Store) Load(ctx context.Context, id uint) (*database.ResumeDraft, Content, error) {
	var draft database.ResumeDraft
	if err := s.db.WithContext(ctx).First(&draft, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Content{}, ErrDraftNotFound
		}
		return nil, Content{}, fmt.Errorf("load resume draft: %w", err)
	}
	content, err := Decode(draft.Content)
	if err != nil {
		return nil, Content{}, err
	}
	return &draft, content, nil
}

// SetStatus 更新处理状态。
func (s *Store) SetStatus(ctx context.Context, id uint, status string) error {
	if err := s.db.WithContext(ctx).Model(&database.ResumeDraft{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("update resume status: %w", err)
	}
	return nil
}

// MarkCompleted 记录 PDF 对象键并标记完成。
func (s *Store) MarkCompleted(ctx context.Context, id uint, pdfKey string) error {
	if err := s.db.WithContext(ctx).Model(&database.ResumeDraft{}).
		Where("id = ?", id).
		Updates(map[string]any{"pdf_key": pdfKey, "status": StatusCompleted}).Error; err != nil {
		return fmt.Errorf("mark resume completed: %w", err)
	}
	return nil
}

// Decode 解析 JSONB 内容。
func Decode(raw datatypes.JSON) (Content, error) {
	var content Content
	if len(raw) == 0 {
		return content, nil
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		return Content{}, fmt.Errorf("decode resume content: %w", err)
	}
	return content, nil
}
