package checkout

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"careerHub/internal/database"
)

// ExpireStalePayments 将创建时间早于 cutoff 仍为 CREATED 的支付标记为 FAILED。
// 之后到达的有效回调仍可将其改为 SUCCESS。
func ExpireStalePayments(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&database.Payment{}).
		Where("status = ? AND created_at < ?", database.PaymentStatusCreated, cutoff).
		Update("status", database.PaymentStatusFailed)
	if res.Error != nil {
		return 0, fmt.Errorf("expire stale payments: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeExpiredSessions 硬删除已过期的结算会话。
func PurgeExpiredSessions(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Unscoped().
		Where("expires_at < ?", now).
		Delete(&database.CheckoutSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge checkout sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
