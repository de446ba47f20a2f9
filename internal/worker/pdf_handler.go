package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"careerHub/internal/errcode"
	"careerHub/internal/notify"
	"careerHub/internal/pdf"
	"careerHub/internal/resume"
	"careerHub/internal/tasks"
)

// Uploader 上传生成的 PDF。
type Uploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
}

// ResumePDFHandler 负责消费简历 PDF 生成任务。
type ResumePDFHandler struct {
	store    *resume.Store
	storage  Uploader
	renderer pdf.Renderer
	notifier notify.Publisher
	logger   *slog.Logger
}

// NewResumePDFHandler 创建任务处理器。
func NewResumePDFHandler(store *resume.Store, storage Uploader, renderer pdf.Renderer, notifier notify.Publisher, logger *slog.Logger) *ResumePDFHandler {
	return &ResumePDFHandler{
		store:    store,
		storage:  storage,
		renderer: renderer,
		notifier: notifier,
		logger:   logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *ResumePDFHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.ResumePDFPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("draft_id", uint64(payload.DraftID)),
	)
	log.Info("resume pdf generation started")

	draft, content, err := h.store.Load(ctx, payload.DraftID)
	if err != nil {
		if errors.Is(err, resume.ErrDraftNotFound) {
			log.Warn("resume draft not found, skipping task")
			return nil
		}
		log.Error("load resume draft failed", slog.Any("error", err))
		return err
	}

	log = log.With(slog.Uint64("user_id", uint64(draft.UserID)))

	defer func() {
		if retErr == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		if err := h.store.SetStatus(ctx, draft.ID, resume.StatusFailed); err != nil {
			log.Error("mark resume draft failed", slog.Any("error", err))
		}
		msg := PDFGenerationNotifyMessage{
			Type:          notifyTypeResumePDF,
			Status:        "error",
			DraftID:       draft.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.notifier.Publish(ctx, draft.UserID, msg); err != nil {
			log.Error("publish pdf error notification failed", slog.Any("error", err))
		}
	}()

	if err := h.store.SetStatus(ctx, draft.ID, resume.StatusRendering); err != nil {
		return err
	}

	html, err := resume.RenderHTML(draft.Title, content)
	if err != nil {
		log.Error("render resume html failed", slog.Any("error", err))
		return err
	}

	pdfBytes, err := h.renderer.Render(ctx, html)
	if err != nil {
		log.Error("print resume pdf failed", slog.Any("error", err))
		return err
	}

	objectName := fmt.Sprintf("resumes/%d/%s.pdf", draft.UserID, uuid.NewString())
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload pdf to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.store.MarkCompleted(ctx, draft.ID, objectName); err != nil {
		log.Error("update resume draft failed", slog.Any("error", err))
		return err
	}

	msg := PDFGenerationNotifyMessage{
		Type:          notifyTypeResumePDF,
		Status:        "completed",
		DraftID:       draft.ID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if err := h.notifier.Publish(ctx, draft.UserID, msg); err != nil {
		log.Warn("publish redis notification failed", slog.Any("error", err))
	}

	log.Info("resume pdf generation completed", slog.String("object", objectName))
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
