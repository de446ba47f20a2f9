package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"careerHub/internal/database"
	"careerHub/internal/metrics"
	"careerHub/internal/notify"
	"careerHub/internal/payment"
)

// Checkout 是客户端打开网关支付表单所需的全部信息。
type Checkout struct {
	Session  *database.CheckoutSession
	Payment  *database.Payment
	Plan     *database.Plan
	Order    payment.Order
	Provider string
	KeyID    string
}

// SelectPlan 把套餐挂到待处理的申请上，按 price × 100 的最小货币单位向网关下单，
// 网关受理后记录一条 CREATED 支付。支付未完成时重新选择会另开新订单。
func (w *Workflow) SelectPlan(ctx context.Context, userID uint, token string, planID uint) (*Checkout, error) {
	sess, err := w.Session(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if err := requireState(sess, StateApplied, StatePlanPending, StatePaymentPending); err != nil {
		return nil, err
	}

	plan, err := w.catalog.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	if err := w.db.WithContext(ctx).Model(&database.Application{}).
		Where("id = ?", sess.ApplicationID).
		Update("plan_id", plan.ID).Error; err != nil {
		return nil, fmt.Errorf("attach plan to application: %w", err)
	}

	provider := w.gateway.Provider()
	order, err := w.gateway.CreateOrder(ctx, payment.MinorUnits(plan.Price), w.currency, sess.Token)
	if err != nil {
		metrics.ObservePayment(provider, "gateway_error")
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	p := database.Payment{
		UserID:            userID,
		PlanID:            &plan.ID,
		CheckoutSessionID: &sess.ID,
		Provider:          provider,
		GatewayOrderID:    order.ID,
		Amount:            plan.Price,
		Currency:          w.currency,
		Status:            database.PaymentStatusCreated,
	}
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		updates := map[string]any{
			"state":            string(StatePaymentPending),
			"selected_plan_id": plan.ID,
			"payment_id":       p.ID,
		}
		if err := tx.Model(sess).Updates(updates).Error; err != nil {
			return fmt.Errorf("advance checkout session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sess.State = string(StatePaymentPending)
	sess.SelectedPlanID = &plan.ID
	sess.PaymentID = &p.ID
	metrics.ObservePayment(provider, "created")

	w.logger.Info("payment order created",
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("payment_id", uint64(p.ID)),
		slog.String("order_id", order.ID),
	)

	return &Checkout{
		Session:  sess,
		Payment:  &p,
		Plan:     plan,
		Order:    order,
		Provider: provider,
		KeyID:    w.gateway.KeyID(),
	}, nil
}

// Callback 是用户付款后网关回传的签名数据。
type Callback struct {
	OrderID   string
	PaymentID string
	Signature string
}

// CallbackResult 返回落定后的支付。订单已被先前的回调处理过时 Replayed 为 true。
type CallbackResult struct {
	Payment  *database.Payment
	Replayed bool
}

// HandleCallback 校验网关签名后落定支付，签名不符时支付保持 CREATED。
func (w *Workflow) HandleCallback(ctx context.Context, cb Callback) (*CallbackResult, error) {
	if err := w.gateway.VerifySignature(ctx, cb.OrderID, cb.PaymentID, cb.Signature); err != nil {
		metrics.ObservePayment(w.gateway.Provider(), "signature_invalid")
		if errors.Is(err, payment.ErrSignatureMismatch) || errors.Is(err, payment.ErrNotCaptured) {
			w.logger.Warn("payment signature rejected", slog.String("order_id", cb.OrderID))
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return nil, fmt.Errorf("verify signature: %w", err)
	}
	return w.FinalizeVerified(ctx, cb)
}

// FinalizeVerified 在同一事务内把订单对应的支付置为 SUCCESS、授予套餐，
// 并推进下单时所属的流程会话。支付只按网关订单号匹配。
func (w *Workflow) FinalizeVerified(ctx context.Context, cb Callback) (*CallbackResult, error) {
	result := &CallbackResult{}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p database.Payment
		if err := tx.Where("gateway_order_id = ?", cb.OrderID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("load payment: %w", err)
		}

		res := tx.Model(&database.Payment{}).
			Where("id = ? AND status IN ?", p.ID, []string{database.PaymentStatusCreated, database.PaymentStatusFailed}).
			Updates(map[string]any{
				"status":         database.PaymentStatusSuccess,
				"gateway_pay_id": cb.PaymentID,
				"signature":      cb.Signature,
			})
		if res.Error != nil {
			return fmt.Errorf("mark payment success: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			result.Replayed = true
			result.Payment = &p
			return nil
		}

		if p.PlanID == nil {
			return fmt.Errorf("payment %d has no plan", p.ID)
		}
		var plan database.Plan
		if err := tx.First(&plan, *p.PlanID).Error; err != nil {
			return fmt.Errorf("load paid plan: %w", err)
		}

		profile, err := w.entitlements.ProfileFor(ctx, tx, p.UserID)
		if err != nil {
			return err
		}
		if err := w.entitlements.AssignPlan(ctx, tx, profile, &plan); err != nil {
			return err
		}

		if err := advancePaidSession(tx, &p); err != nil {
			return err
		}

		if err := tx.First(&p, p.ID).Error; err != nil {
			return fmt.Errorf("reload payment: %w", err)
		}
		p.Plan = &plan
		result.Payment = &p
		return nil
	})
	if err != nil {
		return nil, err
	}

	provider := result.Payment.Provider
	log := w.logger.With(
		slog.Uint64("payment_id", uint64(result.Payment.ID)),
		slog.String("order_id", cb.OrderID),
	)
	if result.Replayed {
		metrics.ObservePayment(provider, "replayed")
		log.Info("payment callback replayed", slog.String("status", result.Payment.Status))
		return result, nil
	}
	metrics.ObservePayment(provider, "success")
	log.Info("payment verified, plan granted")

	if w.notifier != nil {
		msg := notify.PaymentMessage{
			Type:      "payment",
			Status:    result.Payment.Status,
			PaymentID: result.Payment.ID,
		}
		if result.Payment.Plan != nil {
			msg.PlanID = result.Payment.Plan.ID
			msg.PlanName = result.Payment.Plan.Name
		}
		if err := w.notifier.Publish(ctx, result.Payment.UserID, msg); err != nil {
			log.Warn("publish payment notification failed", slog.Any("error", err))
		}
	}
	return result, nil
}

// advancePaidSession 把支付所属的会话推进到 payment_verified，并让会话指向这笔已付款的支付。
// 用户重新选套餐后又支付了旧订单时，会话当前指向的是新订单，仍按下单时记录的会话推进。
func advancePaidSession(tx *gorm.DB, p *database.Payment) error {
	q := tx.Model(&database.CheckoutSession{}).Where("state = ?", string(StatePaymentPending))
	if p.CheckoutSessionID != nil {
		q = q.Where("id = ?", *p.CheckoutSessionID)
	} else {
		q = q.Where("payment_id = ?", p.ID)
	}
	if err := q.Updates(map[string]any{
		"state":            string(StatePaymentVerified),
		"payment_id":       p.ID,
		"selected_plan_id": p.PlanID,
	}).Error; err != nil {
		return fmt.Errorf("advance checkout session: %w", err)
	}
	return nil
}
