package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"careerHub/internal/checkout"
	"careerHub/internal/metrics"
)

// ReconcileHandler 将超过 pendingTTL 仍为 CREATED 的支付标记为 FAILED。
type ReconcileHandler struct {
	db         *gorm.DB
	pendingTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewReconcileHandler 构造 ReconcileHandler。
func NewReconcileHandler(db *gorm.DB, pendingTTL time.Duration, now func() time.Time, logger *slog.Logger) *ReconcileHandler {
	if now == nil {
		now = time.Now
	}
	return &ReconcileHandler{db: db, pendingTTL: pendingTTL, now: now, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *ReconcileHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	cutoff := h.now().Add(-h.pendingTTL)
	n, err := checkout.ExpireStalePayments(ctx, h.db, cutoff)
	if err != nil {
		h.logger.Error("reconcile payments failed", slog.Any("error", err))
		return err
	}
	metrics.ObserveReconciled(n)
	if n > 0 {
		h.logger.Info("stale payments marked failed", slog.Int64("count", n), slog.Time("cutoff", cutoff))
	}
	return nil
}

// PurgeHandler 删除过期的结算会话。
type PurgeHandler struct {
	db     *gorm.DB
	now    func() time.Time
	logger *slog.Logger
}

// NewPurgeHandler 构造 PurgeHandler。
func NewPurgeHandler(db *gorm.DB, now func() time.Time, logger *slog.Logger) *PurgeHandler {
	if now == nil {
		now = time.Now
	}
	return &PurgeHandler{db: db, now: now, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *PurgeHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	n, err := checkout.PurgeExpiredSessions(ctx, h.db, h.now())
	if err != nil {
		h.logger.Error("purge checkout sessions failed", slog.Any("error", err))
		return err
	}
	if n > 0 {
		h.logger.Info("expired checkout sessions purged", slog.Int64("count", n))
	}
	return nil
}
