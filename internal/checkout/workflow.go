// Package checkout 驱动投递流程：选择套餐、支付、确认课程。
// 进度保存在以不透明 token 标识的 CheckoutSession 中，任一请求都能接着上一步继续。
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"careerHub/internal/catalog"
	"careerHub/internal/database"
	"careerHub/internal/entitlement"
	"careerHub/internal/notify"
	"careerHub/internal/payment"
)

// State 是 CheckoutSession 所处阶段。没有会话的用户处于隐含的“未投递”阶段。
type State string

const (
	// StateApplied 只在 Apply 的事务内短暂存在，提交时已推进为
	// plan_pending 或 payment_verified，不会落库。
	StateApplied         State = "applied"
	StatePlanPending     State = "plan_pending"
	StatePaymentPending  State = "payment_pending"
	StatePaymentVerified State = "payment_verified"
	StateCourseConfirmed State = "course_confirmed"
)

// Step 告诉客户端下一步展示哪个页面。
type Step string

const (
	StepSelectPlan Step = "select_plan"
	StepPay        Step = "pay"
	StepConfirm    Step = "confirm_course"
	StepCourse     Step = "course"
	StepSearch     Step = "job_search"
)

var (
	ErrDailyLimitReached = errors.New("daily application limit reached")
	ErrSessionNotFound   = errors.New("checkout session not found")
	ErrSessionExpired    = errors.New("checkout session expired")
	ErrInvalidState      = errors.New("checkout session is not at this step")
	ErrSignatureInvalid  = errors.New("payment signature invalid")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrGateway           = errors.New("payment gateway error")
	ErrCourseNotResolved = catalog.ErrCourseNotResolved
)

// Options 可选依赖与参数。
type Options struct {
	Currency   string
	SessionTTL time.Duration
	Notifier   notify.Publisher
	Logger     *slog.Logger
}

// Workflow 串联课程目录、权益与支付网关。
type Workflow struct {
	db           *gorm.DB
	catalog      *catalog.Service
	entitlements *entitlement.Service
	gateway      payment.Gateway
	notifier     notify.Publisher
	currency     string
	sessionTTL   time.Duration
	logger       *slog.Logger
}

// NewWorkflow 构造 Workflow。
func NewWorkflow(db *gorm.DB, catalogSvc *catalog.Service, entitlements *entitlement.Service, gateway payment.Gateway, opts Options) *Workflow {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 2 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Workflow{
		db:           db,
		catalog:      catalogSvc,
		entitlements: entitlements,
		gateway:      gateway,
		notifier:     opts.Notifier,
		currency:     opts.Currency,
		sessionTTL:   opts.SessionTTL,
		logger:       opts.Logger,
	}
}

// Gateway 返回当前配置的支付网关。
func (w *Workflow) Gateway() payment.Gateway {
	return w.gateway
}

// Session 读取属于 userID 且未过期的会话。
func (w *Workflow) Session(ctx context.Context, userID uint, token string) (*database.CheckoutSession, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	var sess database.CheckoutSession
	if err := w.db.WithContext(ctx).Where("token = ?", token).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load checkout session: %w", err)
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	if w.entitlements.Now().After(sess.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return &sess, nil
}

func requireState(sess *database.CheckoutSession, allowed ...State) error {
	for _, state := range allowed {
		if State(sess.State) == state {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidState, sess.State)
}

// NextStep 把会话状态映射为客户端应展示的页面。
func NextStep(state State) Step {
	switch state {
	case StateApplied, StatePlanPending:
		return StepSelectPlan
	case StatePaymentPending:
		return StepPay
	case StatePaymentVerified:
		return StepConfirm
	case StateCourseConfirmed:
		return StepCourse
	default:
		return StepSearch
	}
}
