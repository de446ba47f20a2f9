package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeResumePDF        = "resume:pdf"
	TypePaymentReconcile = "payment:reconcile"
	TypeCheckoutPurge    = "checkout:purge"
)

// ResumePDFPayload 描述生成简历 PDF 所需的最小信息。
type ResumePDFPayload struct {
	DraftID       uint   `json:"draft_id"`
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewResumePDFTask 构造一个新的简历 PDF 生成任务。
func NewResumePDFTask(draftID, userID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ResumePDFPayload{
		DraftID:       draftID,
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeResumePDF, payload), nil
}

// NewPaymentReconcileTask 周期任务：将超时未回调的支付标记为失败。
func NewPaymentReconcileTask() *asynq.Task {
	return asynq.NewTask(TypePaymentReconcile, nil)
}

// NewCheckoutPurgeTask 周期任务：清理过期的结算会话。
func NewCheckoutPurgeTask() *asynq.Task {
	return asynq.NewTask(TypeCheckoutPurge, nil)
}
