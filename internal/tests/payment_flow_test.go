package tests

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"shambascan/internal/domain"
	"shambascan/internal/mpesa"
	"shambascan/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastSessionConfig() service.SessionConfig {
	return service.SessionConfig{
		Countdown:    50 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		GraceDelay:   10 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

type paymentFlowFixture struct {
	txRepo   *MockTransactionRepository
	subRepo  *MockSubscriptionRepository
	gateway  *MockGateway
	locks    *MockLockStore
	history  *MockHistoryStore
	payments *service.PaymentService
	subs     *service.SubscriptionService
}

func newPaymentFlowFixture(t *testing.T) *paymentFlowFixture {
	t.Helper()
	logger := zap.NewNop()

	txRepo := NewMockTransactionRepository()
	subRepo := NewMockSubscriptionRepository()
	gateway := &MockGateway{Response: &mpesa.InitiateResponse{
		Success:           true,
		Message:           "Success. Request accepted for processing",
		MerchantRequestID: "MR-1",
		CheckoutRequestID: "CRQ-1",
		ResponseCode:      "0",
	}}
	locks := NewMockLockStore()
	history := NewMockHistoryStore()

	notifier := service.NewNotificationService(history, logger)
	checker := service.NewRepoStatusChecker(txRepo)
	payments := service.NewPaymentService(gateway, txRepo, checker, locks, notifier, fastSessionConfig(), logger)
	t.Cleanup(payments.Shutdown)
	subs := service.NewSubscriptionService(subRepo, txRepo, nil, payments, logger)

	return &paymentFlowFixture{
		txRepo:   txRepo,
		subRepo:  subRepo,
		gateway:  gateway,
		locks:    locks,
		history:  history,
		payments: payments,
		subs:     subs,
	}
}

func TestSubscriptionPaymentConfirmationFlow(t *testing.T) {
	f := newPaymentFlowFixture(t)
	ctx := context.Background()

	// Step 1: subscribe, which initiates the STK push.
	result, err := f.subs.Subscribe(ctx, service.SubscribeRequest{
		UserID:      "farmer-1",
		PlanID:      "pro-monthly",
		PhoneNumber: "0712345678",
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if result.Session.Status != domain.SessionStatusPending {
		t.Fatalf("session status = %s, want %s", result.Session.Status, domain.SessionStatusPending)
	}
	if result.Subscription.Status != domain.SubscriptionStatusPending {
		t.Fatalf("subscription status = %s, want %s", result.Subscription.Status, domain.SubscriptionStatusPending)
	}

	// The gateway saw the canonical phone and the plan price.
	push := f.gateway.GetLastRequest()
	if push.PhoneNumber != "254712345678" {
		t.Fatalf("push phone = %q, want 254712345678", push.PhoneNumber)
	}
	if push.Amount != 999 {
		t.Fatalf("push amount = %v, want 999", push.Amount)
	}
	if push.AccountReference != "SUB-pro-monthly" {
		t.Fatalf("push account reference = %q", push.AccountReference)
	}

	// The pending transaction is keyed by the gateway correlation ID.
	tx := f.txRepo.GetTransaction("CRQ-1")
	if tx == nil || tx.Status != domain.TransactionStatusPending {
		t.Fatalf("pending transaction not recorded: %+v", tx)
	}
	if !f.locks.Held("farmer-1") {
		t.Fatal("payment lock not held while session is live")
	}

	// Step 2: the gateway result callback confirms the charge.
	if err := f.payments.RecordCallback(ctx, &mpesa.CallbackResult{
		CheckoutRequestID: "CRQ-1",
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		MpesaReceipt:      "QHX12345",
		Amount:            999,
		PhoneNumber:       "254712345678",
	}); err != nil {
		t.Fatalf("RecordCallback() error = %v", err)
	}

	// Step 3: the next poll observes the completed record, the session
	// confirms, and after the grace delay the subscription activates.
	waitFor(t, 2*time.Second, func() bool {
		sub := f.subRepo.GetSubscription(result.Subscription.ID)
		return sub != nil && sub.Status == domain.SubscriptionStatusActive
	}, "subscription never activated after payment confirmation")

	sub := f.subRepo.GetSubscription(result.Subscription.ID)
	window := sub.ExpiresAt.Sub(sub.StartsAt)
	if window < 29*24*time.Hour || window > 31*24*time.Hour {
		t.Fatalf("activation window = %v, want about 30 days", window)
	}

	// Step 4: the session is torn down and the lock released.
	waitFor(t, time.Second, func() bool {
		_, err := f.payments.GetSession(result.Session.ID, "farmer-1")
		return err != nil
	}, "session not removed after teardown")
	waitFor(t, time.Second, func() bool { return !f.locks.Held("farmer-1") }, "payment lock never released")

	// The user got a success notification.
	if f.history.ListLen("notifications:farmer-1") == 0 {
		t.Fatal("no payment notification recorded")
	}
}

func TestSubscriptionPaymentTimeoutNotifiesButKeepsPolling(t *testing.T) {
	f := newPaymentFlowFixture(t)
	ctx := context.Background()

	result, err := f.subs.Subscribe(ctx, service.SubscribeRequest{
		UserID:      "farmer-1",
		PlanID:      "pro-monthly",
		PhoneNumber: "0712345678",
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// No callback arrives; the countdown runs out.
	waitFor(t, 2*time.Second, func() bool {
		got, err := f.payments.GetSession(result.Session.ID, "farmer-1")
		return err == nil && got.TimedOut
	}, "countdown never expired")

	waitFor(t, time.Second, func() bool {
		return f.history.ListLen("notifications:farmer-1") > 0
	}, "timeout notification never recorded")

	// The session still answers pending and a late callback still confirms.
	got, err := f.payments.GetSession(result.Session.ID, "farmer-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != domain.SessionStatusPending {
		t.Fatalf("status after timeout = %s, want %s", got.Status, domain.SessionStatusPending)
	}

	if err := f.payments.RecordCallback(ctx, &mpesa.CallbackResult{
		CheckoutRequestID: "CRQ-1",
		ResultCode:        0,
		MpesaReceipt:      "QHX99999",
	}); err != nil {
		t.Fatalf("RecordCallback() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		sub := f.subRepo.GetSubscription(result.Subscription.ID)
		return sub != nil && sub.Status == domain.SubscriptionStatusActive
	}, "late confirmation never activated the subscription")
}

func TestSubscriptionDeclinedCallbackLeavesSubscriptionPending(t *testing.T) {
	f := newPaymentFlowFixture(t)
	ctx := context.Background()

	result, err := f.subs.Subscribe(ctx, service.SubscribeRequest{
		UserID:      "farmer-1",
		PlanID:      "pro-monthly",
		PhoneNumber: "0712345678",
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// User cancelled on the handset.
	if err := f.payments.RecordCallback(ctx, &mpesa.CallbackResult{
		CheckoutRequestID: "CRQ-1",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	}); err != nil {
		t.Fatalf("RecordCallback() error = %v", err)
	}

	tx := f.txRepo.GetTransaction("CRQ-1")
	if tx.Status != domain.TransactionStatusFailed {
		t.Fatalf("transaction status = %s, want %s", tx.Status, domain.TransactionStatusFailed)
	}

	// A failed charge never activates; the user cancels the session.
	time.Sleep(30 * time.Millisecond)
	sub := f.subRepo.GetSubscription(result.Subscription.ID)
	if sub.Status != domain.SubscriptionStatusPending {
		t.Fatalf("subscription status = %s, want still %s", sub.Status, domain.SubscriptionStatusPending)
	}

	if err := f.payments.Cancel(result.Session.ID, "farmer-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if f.locks.Held("farmer-1") {
		t.Fatal("payment lock still held after cancel")
	}
}

func TestSubscribeRejectsUnknownPlan(t *testing.T) {
	f := newPaymentFlowFixture(t)

	_, err := f.subs.Subscribe(context.Background(), service.SubscribeRequest{
		UserID:      "farmer-1",
		PlanID:      "platinum",
		PhoneNumber: "0712345678",
	})
	if err != service.ErrUnknownPlan {
		t.Fatalf("Subscribe() error = %v, want %v", err, service.ErrUnknownPlan)
	}
	if atomic.LoadInt32(&f.gateway.PushCallCount) != 0 {
		t.Fatal("gateway called for unknown plan")
	}
}
