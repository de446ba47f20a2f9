package worker

const notifyTypeResumePDF = "resume_pdf"

// PDFGenerationNotifyMessage 通过 Redis Pub/Sub 转发给前端的 PDF 结果。
// 注意：这里的字段名与前端解析保持一致。
type PDFGenerationNotifyMessage struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	DraftID       uint   `json:"draft_id"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}
