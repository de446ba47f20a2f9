package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"careerHub/internal/catalog"
	"careerHub/internal/database"
	"careerHub/internal/database/dbtest"
	"careerHub/internal/entitlement"
	"careerHub/internal/payment"
)

type fakeGateway struct {
	mu      sync.Mutex
	orders  int
	failing bool
}

func (g *fakeGateway) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string) (payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing {
		return payment.Order{}, errors.New("gateway down")
	}
	g.orders++
	return payment.Order{
		ID:          fmt.Sprintf("order_%d", g.orders),
		AmountMinor: amountMinor,
		Currency:    currency,
		Receipt:     receipt,
		Status:      "created",
	}, nil
}

func (g *fakeGateway) VerifySignature(_ context.Context, orderID, paymentID, signature string) error {
	if signature != fakeSignature(orderID, paymentID) {
		return payment.ErrSignatureMismatch
	}
	return nil
}

func (g *fakeGateway) Provider() string { return "fake" }
func (g *fakeGateway) KeyID() string    { return "fake_key" }

func fakeSignature(orderID, paymentID string) string {
	return "sig:" + orderID + "|" + paymentID
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages map[uint][]any
}

func (n *recordingNotifier) Publish(_ context.Context, userID uint, message any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.messages == nil {
		n.messages = make(map[uint][]any)
	}
	n.messages[userID] = append(n.messages[userID], message)
	return nil
}

func (n *recordingNotifier) count(userID uint) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages[userID])
}

type fixture struct {
	db       *gorm.DB
	wf       *Workflow
	gateway  *fakeGateway
	notifier *recordingNotifier
	now      time.Time
	user     database.User
	course   database.Course
	job      database.Job
	basic    database.Plan
	premium  database.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       dbtest.Open(t),
		gateway:  &fakeGateway{},
		notifier: &recordingNotifier{},
		now:      time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
	}

	f.user = database.User{Email: "asha@example.com", FirstName: "Asha"}
	require.NoError(t, f.db.Create(&f.user).Error)
	f.course = database.Course{Name: "Data Analyst", Topics: []database.Topic{{Title: "SQL"}, {Title: "Excel"}}}
	require.NoError(t, f.db.Create(&f.course).Error)
	f.job = database.Job{Title: "Junior Analyst", Company: "Acme", Role: "data analyst"}
	require.NoError(t, f.db.Create(&f.job).Error)
	f.basic = database.Plan{Name: "Basic", Price: 499}
	f.premium = database.Plan{Name: "Premium", Price: 1999.5}
	require.NoError(t, f.db.Create(&f.basic).Error)
	require.NoError(t, f.db.Create(&f.premium).Error)

	require.NoError(t, f.db.Create(&database.JobVideo{CourseID: f.course.ID, Title: "Intro", VideoURL: "https://video.example/1"}).Error)
	require.NoError(t, f.db.Create(&database.PlacementSession{
		CourseID:    f.course.ID,
		Title:       "Mock interview",
		SessionDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}).Error)

	entitlements := entitlement.NewService(f.db, func() time.Time { return f.now })
	f.wf = NewWorkflow(f.db, catalog.NewService(f.db), entitlements, f.gateway, Options{
		Currency:   "INR",
		SessionTTL: time.Hour,
		Notifier:   f.notifier,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func (f *fixture) grant(t *testing.T, plan *database.Plan) {
	t.Helper()
	ctx := context.Background()
	profile, err := f.wf.entitlements.ProfileFor(ctx, nil, f.user.ID)
	require.NoError(t, err)
	require.NoError(t, f.wf.entitlements.AssignPlan(ctx, nil, profile, plan))
}

func form() ApplicationForm {
	return ApplicationForm{FullName: "Asha Rao", Email: "asha@example.com", Mobile: "9876543210"}
}

func TestApply_WithoutPlanRoutesToPlanSelection(t *testing.T) {
	f := newFixture(t)

	res, err := f.wf.Apply(context.Background(), f.user.ID, f.job.ID, form())
	require.NoError(t, err)

	assert.Equal(t, StepSelectPlan, res.NextStep)
	assert.Equal(t, string(StatePlanPending), res.Session.State)
	assert.NotEmpty(t, res.Session.Token)
	assert.Equal(t, f.now, res.Application.CreatedAt)
	assert.Nil(t, res.CourseID)

	var stored database.CheckoutSession
	require.NoError(t, f.db.Where("token = ?", res.Session.Token).First(&stored).Error)
	assert.Equal(t, string(StatePlanPending), stored.State)

	var transient int64
	require.NoError(t, f.db.Model(&database.CheckoutSession{}).Where("state = ?", string(StateApplied)).Count(&transient).Error)
	assert.Zero(t, transient)
	assert.Equal(t, StepSelectPlan, NextStep(StateApplied))
}

func TestApply_UnknownJob(t *testing.T) {
	f := newFixture(t)

	_, err := f.wf.Apply(context.Background(), f.user.ID, 9999, form())
	assert.ErrorIs(t, err, catalog.ErrJobNotFound)
}

func TestCheckout_FullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	applied, err := f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
	require.NoError(t, err)
	token := applied.Session.Token

	co, err := f.wf.SelectPlan(ctx, f.user.ID, token, f.premium.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(199950), co.Order.AmountMinor)
	assert.Equal(t, database.PaymentStatusCreated, co.Payment.Status)
	assert.Equal(t, 1999.5, co.Payment.Amount)
	assert.Equal(t, "fake_key", co.KeyID)
	assert.Equal(t, string(StatePaymentPending), co.Session.State)

	var app database.Application
	require.NoError(t, f.db.First(&app, applied.Application.ID).Error)
	require.NotNil(t, app.PlanID)
	assert.Equal(t, f.premium.ID, *app.PlanID)

	cb := Callback{OrderID: co.Order.ID, PaymentID: "pay_1", Signature: fakeSignature(co.Order.ID, "pay_1")}
	result, err := f.wf.HandleCallback(ctx, cb)
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, database.PaymentStatusSuccess, result.Payment.Status)
	assert.Equal(t, "pay_1", result.Payment.GatewayPayID)
	assert.Equal(t, 1, f.notifier.count(f.user.ID))

	profile, err := f.wf.entitlements.ProfileFor(ctx, nil, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.PlanID)
	assert.Equal(t, f.premium.ID, *profile.PlanID)
	assert.Equal(t, 365, entitlement.RemainingDays(profile, f.now))

	sess, err := f.wf.Session(ctx, f.user.ID, token)
	require.NoError(t, err)
	assert.Equal(t, string(StatePaymentVerified), sess.State)

	confirmation, err := f.wf.Confirm(ctx, f.user.ID, token)
	require.NoError(t, err)
	assert.Equal(t, f.course.ID, confirmation.CourseID)

	require.NoError(t, f.db.First(&app, applied.Application.ID).Error)
	require.NotNil(t, app.PlanStart)
	require.NotNil(t, app.PlanEnd)
	assert.Equal(t, entitlement.Today(f.now), app.PlanStart.UTC())
	assert.Equal(t, entitlement.Today(f.now).AddDate(0, 0, 365), app.PlanEnd.UTC())

	again, err := f.wf.Confirm(ctx, f.user.ID, token)
	require.NoError(t, err)
	assert.Equal(t, f.course.ID, again.CourseID)
}

func TestHandleCallback_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	applied, err := f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
	require.NoError(t, err)
	co, err := f.wf.SelectPlan(ctx, f.user.ID, applied.Session.Token, f.basic.ID)
	require.NoError(t, err)

	cb := Callback{OrderID: co.Order.ID, PaymentID: "pay_9", Signature: fakeSignature(co.Order.ID, "pay_9")}
	_, err = f.wf.HandleCallback(ctx, cb)
	require.NoError(t, err)

	replay, err := f.wf.HandleCallback(ctx, cb)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, database.PaymentStatusSuccess, replay.Payment.Status)
	assert.Equal(t, 1, f.notifier.count(f.user.ID))

	var count int64
	require.NoError(t, f.db.Model(&database.Payment{}).Where("status = ?", database.PaymentStatusSuccess).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandleCallback_BadSignatureLeavesPaymentCreated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	applied, err := f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
	require.NoError(t, err)
	co, err := f.wf.SelectPlan(ctx, f.user.ID, applied.Session.Token, f.basic.ID)
	require.NoError(t, err)

	_, err = f.wf.HandleCallback(ctx, Callback{OrderID: co.Order.ID, PaymentID: "pay_1", Signature: "forged"})
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	var p database.Payment
	require.NoError(t, f.db.First(&p, co.Payment.ID).Error)
	assert.Equal(t, database.PaymentStatusCreated, p.Status)

	profile, err := f.wf.entitlements.ProfileFor(ctx, nil, f.user.ID)
	require.NoError(t, err)
	assert.Nil(t, profile.PlanID)
	assert.Zero(t, f.notifier.count(f.user.ID))
}

func TestHandleCallback_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.wf.HandleCallback(context.Background(), Callback{
		OrderID:   "order_missing",
		PaymentID: "pay_1",
		Signature: fakeSignature("order_missing", "pay_1"),
	})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestHandleCallback_LateCallbackAfterReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	applied, err := f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
	require.NoError(t, err)
	co, err := f.wf.SelectPlan(ctx, f.user.ID, applied.Session.Token, f.premium.ID)
	require.NoError(t, err)

	expired, err := ExpireStalePayments(ctx, f.db, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	result, err := f.wf.HandleCallback(ctx, Callback{
		OrderID:   co.Order.ID,
		PaymentID: "pay_late",
		Signature: fakeSignature(co.Order.ID, "pay_late"),
	})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, database.PaymentStatusSuccess, result.Payment.Status)
}

func TestSelectPlan_GatewayFailureStoresNoPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	applied, err := f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
	require.NoError(t, err)

	f.gateway.failing = true
	_, err = f.wf.SelectPlan(ctx, f.user.ID, applied.Session.Token, f.basic.ID)
	assert.ErrorIs(t, err, ErrGateway)

	var count int64
	require.NoError(t, f.db.Model(&database.Payment{}).Count(&count).Error)
	assert.Zero(t, count)

	sess, err := f.wf.Session(ctx, f.user.ID, applied.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, string(StatePlanPending), sess.State)
}

func TestSelectPlan_ReselectOpensNewOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	applied, err := f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
	require.NoError(t, err)
	first, err := f.wf.SelectPlan(ctx, f.user.ID, applied.Session.Token, f.basic.ID)
	require.NoError(t, err)
	second, err := f.wf.SelectPlan(ctx, f.user.ID, applied.Session.Token, f.premium.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.Order.ID, second.Order.ID)
	sess, err := f.wf.Session(ctx, f.user.ID, applied.Session.Token)
	require.NoError(t, err)
	require.NotNil(t, sess.PaymentID)
	assert.Equal(t, second.Payment.ID, *sess.PaymentID)
}

func TestHandleCallback_PayingEarlierOrderAfterReselect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	applied, err := f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
	require.NoError(t, err)
	token := applied.Session.Token
	first, err := f.wf.SelectPlan(ctx, f.user.ID, token, f.premium.ID)
	require.NoError(t, err)
	_, err = f.wf.SelectPlan(ctx, f.user.ID, token, f.basic.ID)
	require.NoError(t, err)

	require.NotNil(t, first.Payment.CheckoutSessionID)
	assert.Equal(t, applied.Session.ID, *first.Payment.CheckoutSessionID)

	result, err := f.wf.HandleCallback(ctx, Callback{
		OrderID:   first.Order.ID,
		PaymentID: "pay_old_tab",
		Signature: fakeSignature(first.Order.ID, "pay_old_tab"),
	})
	require.NoError(t, err)
	assert.Equal(t, database.PaymentStatusSuccess, result.Payment.Status)

	sess, err := f.wf.Session(ctx, f.user.ID, token)
	require.NoError(t, err)
	assert.Equal(t, string(StatePaymentVerified), sess.State)
	require.NotNil(t, sess.PaymentID)
	assert.Equal(t, first.Payment.ID, *sess.PaymentID)
	require.NotNil(t, sess.SelectedPlanID)
	assert.Equal(t, f.premium.ID, *sess.SelectedPlanID)

	confirmation, err := f.wf.Confirm(ctx, f.user.ID, token)
	require.NoError(t, err)
	assert.Equal(t, f.course.ID, confirmation.CourseID)

	var app database.Application
	require.NoError(t, f.db.First(&app, applied.Application.ID).Error)
	require.NotNil(t, app.PlanID)
	assert.Equal(t, f.premium.ID, *app.PlanID)
}

func TestSession_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	applied, err := f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
	require.NoError(t, err)
	token := applied.Session.Token

	t.Run("missing token", func(t *testing.T) {
		_, err := f.wf.SelectPlan(ctx, f.user.ID, "", f.basic.ID)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
	t.Run("other user", func(t *testing.T) {
		_, err := f.wf.SelectPlan(ctx, f.user.ID+100, token, f.basic.ID)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
	t.Run("confirm before payment", func(t *testing.T) {
		_, err := f.wf.Confirm(ctx, f.user.ID, token)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
	t.Run("expired", func(t *testing.T) {
		f.now = f.now.Add(2 * time.Hour)
		_, err := f.wf.SelectPlan(ctx, f.user.ID, token, f.basic.ID)
		assert.ErrorIs(t, err, ErrSessionExpired)
	})
}

func TestApply_ActivePlanSkipsToCourse(t *testing.T) {
	f := newFixture(t)
	f.grant(t, &f.premium)

	res, err := f.wf.Apply(context.Background(), f.user.ID, f.job.ID, form())
	require.NoError(t, err)
	assert.Equal(t, StepCourse, res.NextStep)
	require.NotNil(t, res.CourseID)
	assert.Equal(t, f.course.ID, *res.CourseID)
	assert.Equal(t, string(StateCourseConfirmed), res.Session.State)
	assert.Zero(t, f.gateway.orders)
}

func TestApply_ActivePlanWithoutCourse(t *testing.T) {
	f := newFixture(t)
	f.grant(t, &f.premium)

	orphan := database.Job{Title: "Astronaut", Role: "space"}
	require.NoError(t, f.db.Create(&orphan).Error)

	res, err := f.wf.Apply(context.Background(), f.user.ID, orphan.ID, form())
	assert.ErrorIs(t, err, ErrCourseNotResolved)
	require.NotNil(t, res)
	assert.Equal(t, StepSearch, res.NextStep)
	assert.NotZero(t, res.Application.ID)
}

func TestApply_BasicPlanDailyLimit(t *testing.T) {
	f := newFixture(t)
	f.grant(t, &f.basic)
	ctx := context.Background()

	for i := 0; i < entitlement.BasicDailyApplications; i++ {
		_, err := f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
		require.NoError(t, err, "application %d", i+1)
	}

	assert.ErrorIs(t, f.wf.CheckQuota(ctx, f.user.ID), ErrDailyLimitReached)
	_, err := f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
	assert.ErrorIs(t, err, ErrDailyLimitReached)

	var count int64
	require.NoError(t, f.db.Model(&database.Application{}).Count(&count).Error)
	assert.Equal(t, int64(entitlement.BasicDailyApplications), count)

	f.now = f.now.AddDate(0, 0, 1)
	require.NoError(t, f.wf.CheckQuota(ctx, f.user.ID))
	_, err = f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
	assert.NoError(t, err)
}

func TestCourseView_Gating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	locked, err := f.wf.CourseView(ctx, f.user.ID, f.course.ID, "")
	require.NoError(t, err)
	assert.True(t, locked.Locked)
	assert.False(t, locked.Active)
	assert.Len(t, locked.Content.Topics, 2)
	assert.Empty(t, locked.Content.Videos)
	assert.Nil(t, locked.Content.PlacementSession)
	require.NotNil(t, locked.Job)
	assert.Equal(t, f.job.ID, locked.Job.ID)

	f.grant(t, &f.premium)
	open, err := f.wf.CourseView(ctx, f.user.ID, f.course.ID, "")
	require.NoError(t, err)
	assert.False(t, open.Locked)
	assert.Equal(t, "Premium", open.UserPlan)
	assert.Equal(t, 365, open.RemainingDays)
	assert.Len(t, open.Content.Videos, 1)
	require.NotNil(t, open.Content.PlacementSession)
	assert.Equal(t, "Mock interview", open.Content.PlacementSession.Title)
}

func TestSubmitDoubt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saved, err := f.wf.SubmitDoubt(ctx, f.course.ID, DoubtForm{Name: "Asha", Question: "   "})
	require.NoError(t, err)
	assert.False(t, saved)

	saved, err = f.wf.SubmitDoubt(ctx, f.course.ID, DoubtForm{Name: "Asha", Email: "asha@example.com", Question: "Is SQL covered?"})
	require.NoError(t, err)
	assert.True(t, saved)

	_, err = f.wf.SubmitDoubt(ctx, 9999, DoubtForm{Question: "?"})
	assert.ErrorIs(t, err, catalog.ErrCourseNotFound)

	var count int64
	require.NoError(t, f.db.Model(&database.Doubt{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPurgeExpiredSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wf.Apply(ctx, f.user.ID, f.job.ID, form())
	require.NoError(t, err)

	removed, err := PurgeExpiredSessions(ctx, f.db, f.now)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = PurgeExpiredSessions(ctx, f.db, f.now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
