package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（客户端可按 redirect 提示继续流程）
// - 5xxx：系统错误（需要中断流程）
const (
	OK              = 0
	InvalidInput    = 4000
	DuplicateEmail  = 4001
	DuplicateMobile = 4002
	ResourceMissing = 4004
	SessionMissing  = 4009
	QuotaExceeded   = 4029
	SignatureFailed = 4030
	CourseMissing   = 4040
	GatewayError    = 5020
	SystemError     = 5000
)
