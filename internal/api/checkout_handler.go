package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"careerHub/internal/catalog"
	"careerHub/internal/checkout"
	"careerHub/internal/database"
	"careerHub/internal/errcode"
	"careerHub/internal/payment"
)

const (
	checkoutHeaderName = "X-Checkout-Session"

	jobSearchRedirect = "/jobs/search"
	plansRedirect     = "/plans"
	callbackPath      = "/payment/callback"
	paymentSuccessURL = "/payment-success"

	maxWebhookBytes = 64 << 10
)

// webhookParser 由支持事件回调的网关实现（Stripe）。
type webhookParser interface {
	ParseWebhook(payload []byte, sigHeader string) (*payment.WebhookPayment, error)
}

// CheckoutHandler 负责套餐选择、支付回调与课程页。
type CheckoutHandler struct {
	catalog  *catalog.Service
	workflow *checkout.Workflow
	storage  ObjectStore
	logger   *slog.Logger
}

// NewCheckoutHandler 构造 CheckoutHandler。
func NewCheckoutHandler(catalogSvc *catalog.Service, workflow *checkout.Workflow, storageClient ObjectStore, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		catalog:  catalogSvc,
		workflow: workflow,
		storage:  storageClient,
		logger:   logger,
	}
}

// checkoutToken 优先读取 Header，其次读取 Cookie。
func checkoutToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(checkoutHeaderName)); token != "" {
		return token
	}
	if token, err := c.Cookie(checkoutCookieName); err == nil {
		return strings.TrimSpace(token)
	}
	return ""
}

func courseRedirect(courseID uint) string {
	return fmt.Sprintf("/confirm-courses/%d", courseID)
}

func stepRedirect(step checkout.Step, courseID *uint) string {
	switch step {
	case checkout.StepSelectPlan, checkout.StepPay:
		return plansRedirect
	case checkout.StepConfirm:
		return paymentSuccessURL
	case checkout.StepCourse:
		if courseID != nil {
			return courseRedirect(*courseID)
		}
	}
	return jobSearchRedirect
}

// writeWorkflowError 将流程错误映射为带 code/redirect 的响应。
func writeWorkflowError(c *gin.Context, log *slog.Logger, err error, jobID uint) {
	switch {
	case errors.Is(err, checkout.ErrDailyLimitReached):
		Fail(c, http.StatusTooManyRequests, errcode.QuotaExceeded,
			"You have reached the daily limit of 5 job applications for Basic plan. You can apply again tomorrow.",
			fmt.Sprintf("/job/%d", jobID))
	case errors.Is(err, checkout.ErrSessionNotFound),
		errors.Is(err, checkout.ErrSessionExpired),
		errors.Is(err, checkout.ErrInvalidState):
		Fail(c, http.StatusConflict, errcode.SessionMissing, err.Error(), jobSearchRedirect)
	case errors.Is(err, checkout.ErrSignatureInvalid):
		Fail(c, http.StatusBadRequest, errcode.SignatureFailed, "Payment verification failed", "")
	case errors.Is(err, checkout.ErrCourseNotResolved):
		Fail(c, http.StatusNotFound, errcode.CourseMissing, err.Error(), jobSearchRedirect)
	case errors.Is(err, catalog.ErrJobNotFound),
		errors.Is(err, catalog.ErrPlanNotFound),
		errors.Is(err, catalog.ErrCourseNotFound),
		errors.Is(err, checkout.ErrPaymentNotFound):
		Fail(c, http.StatusNotFound, errcode.ResourceMissing, err.Error(), "")
	case errors.Is(err, checkout.ErrGateway):
		log.Error("payment gateway failed", slog.Any("error", err))
		_ = c.Error(err)
		Fail(c, http.StatusBadGateway, errcode.GatewayError, "payment gateway unavailable", plansRedirect)
	default:
		log.Error("checkout step failed", slog.Any("error", err))
		_ = c.Error(err)
		Fail(c, http.StatusInternalServerError, errcode.SystemError, "internal error", "")
	}
}

func planJSON(plan database.Plan) gin.H {
	return gin.H{
		"id":         plan.ID,
		"name":       plan.Name,
		"price":      plan.Price,
		"duration":   plan.Duration,
		"features":   plan.FeatureList(),
		"is_current": plan.IsCurrent,
	}
}

// ListPlans 返回全部套餐。
func (h *CheckoutHandler) ListPlans(c *gin.Context) {
	plans, err := h.catalog.ListPlans(c.Request.Context())
	if err != nil {
		loggerFrom(c, h.logger).Error("list plans failed", slog.Any("error", err))
		Internal(c, "failed to list plans")
		return
	}
	items := make([]gin.H, 0, len(plans))
	for _, plan := range plans {
		items = append(items, planJSON(plan))
	}
	c.JSON(http.StatusOK, gin.H{"plans": items})
}

type choosePlanRequest struct {
	PlanID string `form:"plan_id" json:"plan_id"`
}

// ChoosePlan 对应套餐列表页的表单提交，plan_id 来自表单。
func (h *CheckoutHandler) ChoosePlan(c *gin.Context) {
	var req choosePlanRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	id, err := strconv.ParseUint(strings.TrimSpace(req.PlanID), 10, 64)
	if err != nil || id == 0 {
		Fail(c, http.StatusBadRequest, errcode.InvalidInput, "Please select a plan.", plansRedirect)
		return
	}
	h.selectPlan(c, uint(id))
}

// SelectPlan 创建支付订单。
func (h *CheckoutHandler) SelectPlan(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid plan id")
		return
	}
	h.selectPlan(c, id)
}

func (h *CheckoutHandler) selectPlan(c *gin.Context, planID uint) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	log := loggerFrom(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	result, err := h.workflow.SelectPlan(c.Request.Context(), userID, checkoutToken(c), planID)
	if err != nil {
		writeWorkflowError(c, log, err, 0)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"plan":          planJSON(*result.Plan),
		"payment_id":    result.Payment.ID,
		"order_id":      result.Order.ID,
		"amount":        result.Order.AmountMinor,
		"currency":      result.Order.Currency,
		"provider":      result.Provider,
		"key_id":        result.KeyID,
		"client_secret": result.Order.ClientSecret,
		"callback_url":  callbackPath,
		"next_step":     checkout.NextStep(checkout.State(result.Session.State)),
	})
}

type callbackRequest struct {
	OrderID   string `form:"razorpay_order_id" json:"razorpay_order_id"`
	PaymentID string `form:"razorpay_payment_id" json:"razorpay_payment_id"`
	Signature string `form:"razorpay_signature" json:"razorpay_signature"`
}

// PaymentCallback 校验网关签名并完成支付。
func (h *CheckoutHandler) PaymentCallback(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, "Invalid request")
		return
	}
	if req.OrderID == "" {
		BadRequest(c, "Invalid request")
		return
	}
	log := loggerFrom(c, h.logger).With(slog.String("order_id", req.OrderID))

	result, err := h.workflow.HandleCallback(c.Request.Context(), checkout.Callback{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		writeWorkflowError(c, log, err, 0)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     result.Payment.Status,
		"payment_id": result.Payment.ID,
		"replayed":   result.Replayed,
		"next":       paymentSuccessURL,
	})
}

// StripeWebhook 处理 Stripe 的 payment_intent.succeeded 事件。
func (h *CheckoutHandler) StripeWebhook(c *gin.Context) {
	parser, ok := h.workflow.Gateway().(webhookParser)
	if !ok {
		NotFound(c, "webhook not supported by payment provider")
		return
	}
	log := loggerFrom(c, h.logger)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		BadRequest(c, "failed to read body")
		return
	}

	event, err := parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrSignatureMismatch) {
			log.Warn("stripe webhook signature rejected")
			Fail(c, http.StatusBadRequest, errcode.SignatureFailed, "invalid signature", "")
			return
		}
		log.Error("parse stripe webhook failed", slog.Any("error", err))
		Internal(c, "failed to parse webhook")
		return
	}
	if event == nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	log = log.With(slog.String("order_id", event.OrderID), slog.String("event_id", event.EventID))
	result, err := h.workflow.FinalizeVerified(c.Request.Context(), checkout.Callback{
		OrderID:   event.OrderID,
		PaymentID: event.PaymentID,
		Signature: event.EventID,
	})
	if err != nil {
		if errors.Is(err, checkout.ErrPaymentNotFound) {
			log.Warn("stripe webhook for unknown order ignored")
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
			return
		}
		writeWorkflowError(c, log, err, 0)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "replayed": result.Replayed})
}

// PaymentSuccess 支付完成后确认课程。
func (h *CheckoutHandler) PaymentSuccess(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	log := loggerFrom(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	confirmation, err := h.workflow.Confirm(c.Request.Context(), userID, checkoutToken(c))
	if err != nil {
		writeWorkflowError(c, log, err, 0)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"course_id": confirmation.CourseID,
		"redirect":  courseRedirect(confirmation.CourseID),
	})
}

// CourseView 返回课程页内容，未开通套餐时仅含知识点。
func (h *CheckoutHandler) CourseView(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	courseID, err := parseIDParam(c, "course_id")
	if err != nil {
		Fail(c, http.StatusBadRequest, errcode.InvalidInput, "invalid course id", jobSearchRedirect)
		return
	}
	log := loggerFrom(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	view, err := h.workflow.CourseView(c.Request.Context(), userID, courseID, checkoutToken(c))
	if err != nil {
		writeWorkflowError(c, log, err, 0)
		return
	}

	var userPlan *string
	if view.UserPlan != "" {
		name := strings.ToLower(strings.TrimSpace(view.UserPlan))
		userPlan = &name
	}

	body := gin.H{
		"course": gin.H{
			"id":          view.Course.ID,
			"name":        view.Course.Name,
			"description": view.Course.Description,
		},
		"user_plan":      userPlan,
		"active":         view.Active,
		"remaining_days": view.RemainingDays,
		"locked":         view.Locked,
		"topics":         topicsJSON(view.Content.Topics),
	}
	if view.Job != nil {
		body["job"] = jobJSON(*view.Job)
	}
	if !view.Locked {
		body["videos"] = videosJSON(view.Content.Videos)
		body["interview_questions"] = h.questionsJSON(c, view.Content.Questions)
		if s := view.Content.PlacementSession; s != nil {
			body["placement_session"] = gin.H{
				"title":        s.Title,
				"session_date": s.SessionDate.Format(time.DateOnly),
				"session_time": s.SessionTime,
				"meet_link":    s.MeetLink,
			}
		}
	}
	c.JSON(http.StatusOK, body)
}

type doubtRequest struct {
	Name  string `form:"name" json:"name" binding:"max=100"`
	Email string `form:"email" json:"email" binding:"omitempty,email,max=254"`
	Doubt string `form:"doubt" json:"doubt"`
}

// SubmitDoubt 保存课程页提交的问题，内容为空时不保存。
func (h *CheckoutHandler) SubmitDoubt(c *gin.Context) {
	courseID, err := parseIDParam(c, "course_id")
	if err != nil {
		BadRequest(c, "invalid course id")
		return
	}
	var req doubtRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	log := loggerFrom(c, h.logger)

	saved, err := h.workflow.SubmitDoubt(c.Request.Context(), courseID, checkout.DoubtForm{
		Name:     req.Name,
		Email:    req.Email,
		Question: req.Doubt,
	})
	if err != nil {
		writeWorkflowError(c, log, err, 0)
		return
	}

	status := http.StatusOK
	if saved {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"submitted": saved, "redirect": courseRedirect(courseID)})
}

func topicsJSON(topics []database.Topic) []gin.H {
	out := make([]gin.H, 0, len(topics))
	for _, t := range topics {
		out = append(out, gin.H{"id": t.ID, "title": t.Title})
	}
	return out
}

func videosJSON(videos []database.JobVideo) []gin.H {
	out := make([]gin.H, 0, len(videos))
	for _, v := range videos {
		out = append(out, gin.H{"id": v.ID, "title": v.Title, "video_url": v.VideoURL})
	}
	return out
}

// questionsJSON 为面试题 PDF 附上限时下载链接。
func (h *CheckoutHandler) questionsJSON(c *gin.Context, questions []database.InterviewQuestion) []gin.H {
	out := make([]gin.H, 0, len(questions))
	for _, q := range questions {
		item := gin.H{"id": q.ID, "title": q.Title}
		if q.PDFKey != "" && h.storage != nil {
			url, err := h.storage.GeneratePresignedURL(c.Request.Context(), q.PDFKey, 15*time.Minute)
			if err != nil {
				loggerFrom(c, h.logger).Warn("presign interview pdf failed", slog.String("key", q.PDFKey), slog.Any("error", err))
			} else {
				item["pdf_url"] = url
			}
		}
		out = append(out, item)
	}
	return out
}
