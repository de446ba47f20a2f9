package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"careerHub/internal/api/middleware"
	"careerHub/internal/database"
	"careerHub/internal/resume"
	"careerHub/internal/tasks"
)

// TaskEnqueuer 将后台任务写入队列，*asynq.Client 实现该接口。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ResumeHandler 负责简历生成器、个人简介生成与 PDF 导出。
type ResumeHandler struct {
	store   *resume.Store
	queue   TaskEnqueuer
	storage ObjectStore
	logger  *slog.Logger
}

// NewResumeHandler 构造 ResumeHandler。
func NewResumeHandler(store *resume.Store, queue TaskEnqueuer, storageClient ObjectStore, logger *slog.Logger) *ResumeHandler {
	return &ResumeHandler{
		store:   store,
		queue:   queue,
		storage: storageClient,
		logger:  logger,
	}
}

type resumeResponse struct {
	ID        uint           `json:"id"`
	Title     string         `json:"title"`
	Content   resume.Content `json:"content"`
	Status    string         `json:"status"`
	HasPDF    bool           `json:"has_pdf"`
	CreatedAt time.Time      `json:"created_at"`
}

func newResumeResponse(draft *database.ResumeDraft, content resume.Content) resumeResponse {
	return resumeResponse{
		ID:        draft.ID,
		Title:     draft.Title,
		Content:   content,
		Status:    draft.Status,
		HasPDF:    draft.PdfKey != "",
		CreatedAt: draft.CreatedAt,
	}
}

// GenerateBio 根据表单生成两段个人简介。
func (h *ResumeHandler) GenerateBio(c *gin.Context) {
	var form resume.BioForm
	if err := c.ShouldBind(&form); err != nil {
		BadRequest(c, err.Error())
		return
	}
	bios := resume.GenerateBios(form)
	c.JSON(http.StatusOK, gin.H{"bio1": bios.Bio1, "bio2": bios.Bio2})
}

// CreateDraft 保存简历生成器表单，技能与关键词按逗号拆分。
func (h *ResumeHandler) CreateDraft(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var form resume.Form
	if err := c.ShouldBind(&form); err != nil {
		BadRequest(c, err.Error())
		return
	}

	draft, content, err := h.store.Create(c.Request.Context(), userID, form)
	if err != nil {
		loggerFrom(c, h.logger).Error("create resume draft failed", slog.Uint64("user_id", uint64(userID)), slog.Any("error", err))
		Internal(c, "failed to create resume")
		return
	}

	c.JSON(http.StatusCreated, newResumeResponse(draft, content))
}

// GetDraft 返回用户自己的简历草稿。
func (h *ResumeHandler) GetDraft(c *gin.Context) {
	draft, ok := h.draftForRequest(c)
	if !ok {
		return
	}
	content, err := resume.Decode(draft.Content)
	if err != nil {
		loggerFrom(c, h.logger).Error("decode resume draft failed", slog.Any("error", err))
		Internal(c, "failed to read resume")
		return
	}
	c.JSON(http.StatusOK, newResumeResponse(draft, content))
}

// RequestPDF 将 PDF 生成任务入队并立即返回 202。
func (h *ResumeHandler) RequestPDF(c *gin.Context) {
	draft, ok := h.draftForRequest(c)
	if !ok {
		return
	}
	log := loggerFrom(c, h.logger).With(slog.Uint64("draft_id", uint64(draft.ID)))

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewResumePDFTask(draft.ID, draft.UserID, correlationID)
	if err != nil {
		log.Error("create pdf task failed", slog.Any("error", err))
		Internal(c, "failed to create task")
		return
	}

	info, err := h.queue.EnqueueContext(c.Request.Context(), task, asynq.MaxRetry(5))
	if err != nil {
		log.Error("enqueue pdf task failed", slog.Any("error", err))
		Internal(c, "failed to enqueue pdf generation")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "PDF generation request accepted",
		"task_id": info.ID,
	})
}

// GetDownloadLink 生成简历 PDF 的预签名下载链接。
func (h *ResumeHandler) GetDownloadLink(c *gin.Context) {
	draft, ok := h.draftForRequest(c)
	if !ok {
		return
	}

	if draft.PdfKey == "" {
		Conflict(c, "pdf not ready")
		return
	}

	params := map[string]string{
		"response-content-disposition": fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("resume-%d.pdf", draft.ID)),
	}
	signedURL, err := h.storage.GeneratePresignedURLWithParams(c.Request.Context(), draft.PdfKey, 5*time.Minute, params)
	if err != nil {
		loggerFrom(c, h.logger).Error("presign resume pdf failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// draftForRequest 解析路径 ID 并加载当前用户的草稿，失败时已写入响应。
func (h *ResumeHandler) draftForRequest(c *gin.Context) (*database.ResumeDraft, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid resume id")
		return nil, false
	}

	draft, err := h.store.ForUser(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, resume.ErrDraftNotFound) {
			NotFound(c, "resume not found")
			return nil, false
		}
		loggerFrom(c, h.logger).Error("load resume draft failed", slog.Any("error", err))
		Internal(c, "failed to query resume")
		return nil, false
	}
	return draft, true
}
