package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"shambascan/internal/domain"
	"shambascan/internal/mpesa"
	"shambascan/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fastConfig returns timing bounds suitable for tests: a full countdown of
// 10 ticks, with everything measured in milliseconds.
func fastConfig() SessionConfig {
	return SessionConfig{
		Countdown:    50 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		GraceDelay:   10 * time.Millisecond,
	}
}

type stubInitiator struct {
	calls int32
	resp  *mpesa.InitiateResponse
	err   error
}

func (s *stubInitiator) STKPush(ctx context.Context, req mpesa.InitiateRequest) (*mpesa.InitiateResponse, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubInitiator) callCount() int {
	return int(atomic.LoadInt32(&s.calls))
}

type stubChecker struct {
	mu     sync.Mutex
	calls  int
	status domain.TransactionStatus
	txID   string
	err    error
}

func (s *stubChecker) CheckStatus(ctx context.Context, checkoutRequestID string) (domain.TransactionStatus, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", "", s.err
	}
	return s.status, s.txID, nil
}

func (s *stubChecker) set(status domain.TransactionStatus, txID string) {
	s.mu.Lock()
	s.status = status
	s.txID = txID
	s.err = nil
	s.mu.Unlock()
}

func (s *stubChecker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeTransactionRepo struct {
	mu         sync.Mutex
	byCheckout map[string]*domain.Transaction
	createErr  error
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{byCheckout: make(map[string]*domain.Transaction)}
}

func (r *fakeTransactionRepo) Create(ctx context.Context, tx *domain.Transaction) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	r.byCheckout[tx.CheckoutRequestID] = &cp
	return nil
}

func (r *fakeTransactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.byCheckout {
		if tx.ID == id {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTransactionRepo) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byCheckout[checkoutRequestID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *fakeTransactionRepo) UpdateResult(ctx context.Context, checkoutRequestID string, status domain.TransactionStatus, receipt, resultDesc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byCheckout[checkoutRequestID]
	if !ok {
		return repository.ErrNotFound
	}
	tx.Status = status
	tx.MpesaReceipt = receipt
	tx.ResultDesc = resultDesc
	return nil
}

func okPushResponse(checkoutID string) *mpesa.InitiateResponse {
	return &mpesa.InitiateResponse{
		Success:           true,
		Message:           "Success. Request accepted for processing",
		MerchantRequestID: "MR-" + checkoutID,
		CheckoutRequestID: checkoutID,
		ResponseCode:      "0",
	}
}

func newTestService(t *testing.T, gateway mpesa.Initiator, checker StatusChecker, cfg SessionConfig) (*PaymentService, *fakeTransactionRepo) {
	t.Helper()
	repo := newFakeTransactionRepo()
	svc := NewPaymentService(gateway, repo, checker, nil, nil, cfg, zap.NewNop())
	t.Cleanup(svc.Shutdown)
	return svc, repo
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

func TestSubmitRejectsInvalidInputBeforeGatewayCall(t *testing.T) {
	gateway := &stubInitiator{resp: okPushResponse("CRQ-1")}
	svc, _ := newTestService(t, gateway, &stubChecker{status: domain.TransactionStatusPending}, fastConfig())

	tests := []struct {
		name    string
		req     SubmitPaymentRequest
		wantErr error
	}{
		{
			name:    "missing user",
			req:     SubmitPaymentRequest{PhoneNumber: "0712345678", Amount: 100},
			wantErr: ErrInvalidUserID,
		},
		{
			name:    "zero amount",
			req:     SubmitPaymentRequest{UserID: "user-1", PhoneNumber: "0712345678", Amount: 0},
			wantErr: ErrInvalidPaymentAmount,
		},
		{
			name:    "negative amount",
			req:     SubmitPaymentRequest{UserID: "user-1", PhoneNumber: "0712345678", Amount: -5},
			wantErr: ErrInvalidPaymentAmount,
		},
		{
			name:    "short phone",
			req:     SubmitPaymentRequest{UserID: "user-1", PhoneNumber: "07123", Amount: 100},
			wantErr: ErrInvalidPhoneNumber,
		},
		{
			name:    "foreign phone",
			req:     SubmitPaymentRequest{UserID: "user-1", PhoneNumber: "+15551234567", Amount: 100},
			wantErr: ErrInvalidPhoneNumber,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if gateway.callCount() != 0 {
		t.Fatalf("gateway called %d times for invalid input, want 0", gateway.callCount())
	}
}

func TestSubmitInitiationFailureProducesFailedSession(t *testing.T) {
	gateway := &stubInitiator{err: errors.New("connection refused")}
	svc, _ := newTestService(t, gateway, &stubChecker{status: domain.TransactionStatusPending}, fastConfig())

	snapshot, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0712345678",
		Amount:      999,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if snapshot.Status != domain.SessionStatusFailed {
		t.Fatalf("session status = %s, want %s", snapshot.Status, domain.SessionStatusFailed)
	}

	// A failed initiation keeps the session retrievable so the client can
	// show the failure and offer a retry.
	got, err := svc.GetSession(snapshot.ID, "user-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != domain.SessionStatusFailed {
		t.Fatalf("retrieved status = %s, want %s", got.Status, domain.SessionStatusFailed)
	}
}

func TestSubmitGatewayDeclinePropagatesMessage(t *testing.T) {
	gateway := &stubInitiator{resp: &mpesa.InitiateResponse{
		Success: false,
		Message: "Invalid Amount",
	}}
	svc, _ := newTestService(t, gateway, &stubChecker{status: domain.TransactionStatusPending}, fastConfig())

	snapshot, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0712345678",
		Amount:      999,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if snapshot.Status != domain.SessionStatusFailed {
		t.Fatalf("session status = %s, want %s", snapshot.Status, domain.SessionStatusFailed)
	}
	if snapshot.Message != "Invalid Amount" {
		t.Fatalf("session message = %q, want gateway message", snapshot.Message)
	}
}

func TestSessionConfirmsAndTearsDownAfterGrace(t *testing.T) {
	gateway := &stubInitiator{resp: okPushResponse("CRQ-1")}
	checker := &stubChecker{status: domain.TransactionStatusPending}
	svc, repo := newTestService(t, gateway, checker, fastConfig())

	reloaded := make(chan string, 1)
	svc.SetReloadHook(func(userID string) { reloaded <- userID })

	snapshot, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0712345678",
		Amount:      999,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if snapshot.Status != domain.SessionStatusPending {
		t.Fatalf("session status = %s, want %s", snapshot.Status, domain.SessionStatusPending)
	}

	if tx, err := repo.GetByCheckoutRequestID(context.Background(), "CRQ-1"); err != nil {
		t.Fatalf("transaction not persisted: %v", err)
	} else if tx.Status != domain.TransactionStatusPending {
		t.Fatalf("transaction status = %s, want %s", tx.Status, domain.TransactionStatusPending)
	}

	// Let a few polls observe the pending record, then flip it.
	waitFor(t, time.Second, func() bool { return checker.callCount() >= 2 }, "checker never polled")
	checker.set(domain.TransactionStatusCompleted, "TX-9")

	waitFor(t, time.Second, func() bool {
		got, err := svc.GetSession(snapshot.ID, "user-1")
		return err == nil && got.Status == domain.SessionStatusSuccess
	}, "session never reached success")

	select {
	case userID := <-reloaded:
		if userID != "user-1" {
			t.Fatalf("reload hook fired for %q, want user-1", userID)
		}
	case <-time.After(time.Second):
		t.Fatal("reload hook never fired after grace delay")
	}

	// After the grace delay the session is gone.
	waitFor(t, time.Second, func() bool {
		_, err := svc.GetSession(snapshot.ID, "user-1")
		return errors.Is(err, ErrSessionNotFound)
	}, "session not removed after teardown")
}

func TestCountdownExpiryIsAdvisoryAndPollingContinues(t *testing.T) {
	cfg := SessionConfig{
		Countdown:    20 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		GraceDelay:   10 * time.Millisecond,
	}
	gateway := &stubInitiator{resp: okPushResponse("CRQ-1")}
	checker := &stubChecker{status: domain.TransactionStatusPending}
	svc, _ := newTestService(t, gateway, checker, cfg)

	snapshot, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0712345678",
		Amount:      999,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Wait out the countdown while the charge stays pending.
	waitFor(t, time.Second, func() bool {
		got, err := svc.GetSession(snapshot.ID, "user-1")
		return err == nil && got.TimedOut
	}, "countdown never expired")

	got, err := svc.GetSession(snapshot.ID, "user-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != domain.SessionStatusPending {
		t.Fatalf("status after countdown expiry = %s, want still %s", got.Status, domain.SessionStatusPending)
	}

	// A late confirmation must still land.
	polled := checker.callCount()
	checker.set(domain.TransactionStatusCompleted, "TX-late")

	waitFor(t, time.Second, func() bool {
		got, err := svc.GetSession(snapshot.ID, "user-1")
		if errors.Is(err, ErrSessionNotFound) {
			return true // already torn down after success
		}
		return err == nil && got.Status == domain.SessionStatusSuccess
	}, "late confirmation never observed")

	if checker.callCount() <= polled {
		t.Fatal("polling stopped after countdown expiry")
	}
}

func TestPollErrorsNeverTerminateSession(t *testing.T) {
	gateway := &stubInitiator{resp: okPushResponse("CRQ-1")}
	checker := &stubChecker{err: errors.New("status backend down")}
	svc, _ := newTestService(t, gateway, checker, fastConfig())

	snapshot, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0712345678",
		Amount:      999,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Let well more than three polls fail.
	waitFor(t, time.Second, func() bool { return checker.callCount() >= 5 }, "checker never polled")

	got, err := svc.GetSession(snapshot.ID, "user-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != domain.SessionStatusPending {
		t.Fatalf("status after failed polls = %s, want %s", got.Status, domain.SessionStatusPending)
	}

	// Recovery on a later poll still confirms.
	checker.set(domain.TransactionStatusCompleted, "TX-9")
	waitFor(t, time.Second, func() bool {
		got, err := svc.GetSession(snapshot.ID, "user-1")
		if errors.Is(err, ErrSessionNotFound) {
			return true
		}
		return err == nil && got.Status == domain.SessionStatusSuccess
	}, "session never recovered after poll errors cleared")
}

func TestNewSubmitDisposesPriorSession(t *testing.T) {
	gateway := &stubInitiator{resp: okPushResponse("CRQ-1")}
	checker := &stubChecker{status: domain.TransactionStatusPending}
	svc, _ := newTestService(t, gateway, checker, fastConfig())

	first, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0712345678",
		Amount:      999,
	})
	if err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	gateway.resp = okPushResponse("CRQ-2")
	second, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0712345678",
		Amount:      999,
	})
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}

	if _, err := svc.GetSession(first.ID, "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("prior session still tracked, GetSession error = %v", err)
	}
	if _, err := svc.GetSession(second.ID, "user-1"); err != nil {
		t.Fatalf("new session not retrievable: %v", err)
	}
}

func TestCancelEnforcesOwnership(t *testing.T) {
	gateway := &stubInitiator{resp: okPushResponse("CRQ-1")}
	svc, _ := newTestService(t, gateway, &stubChecker{status: domain.TransactionStatusPending}, fastConfig())

	snapshot, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0712345678",
		Amount:      999,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := svc.Cancel(snapshot.ID, "someone-else"); !errors.Is(err, ErrSessionOwnership) {
		t.Fatalf("Cancel() by stranger error = %v, want %v", err, ErrSessionOwnership)
	}
	if err := svc.Cancel("no-such-session", "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Cancel() unknown session error = %v, want %v", err, ErrSessionNotFound)
	}

	if err := svc.Cancel(snapshot.ID, "user-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := svc.GetSession(snapshot.ID, "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("cancelled session still tracked, error = %v", err)
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	gateway := &stubInitiator{resp: okPushResponse("CRQ-1")}
	svc, _ := newTestService(t, gateway, &stubChecker{status: domain.TransactionStatusPending}, fastConfig())

	snapshot, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0712345678",
		Amount:      999,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := svc.Cancel(snapshot.ID, "user-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	// Shutdown after cancel exercises a second and third Dispose on the
	// same session without panicking.
	svc.Shutdown()
	svc.Shutdown()
}

func TestRecordCallbackUpdatesTransaction(t *testing.T) {
	gateway := &stubInitiator{resp: okPushResponse("CRQ-1")}
	svc, repo := newTestService(t, gateway, &stubChecker{status: domain.TransactionStatusPending}, fastConfig())

	if _, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0712345678",
		Amount:      999,
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	err := svc.RecordCallback(context.Background(), &mpesa.CallbackResult{
		CheckoutRequestID: "CRQ-1",
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		MpesaReceipt:      "TX-9",
	})
	if err != nil {
		t.Fatalf("RecordCallback() error = %v", err)
	}

	tx, err := repo.GetByCheckoutRequestID(context.Background(), "CRQ-1")
	if err != nil {
		t.Fatalf("GetByCheckoutRequestID() error = %v", err)
	}
	if tx.Status != domain.TransactionStatusCompleted {
		t.Fatalf("transaction status = %s, want %s", tx.Status, domain.TransactionStatusCompleted)
	}
	if tx.MpesaReceipt != "TX-9" {
		t.Fatalf("receipt = %q, want TX-9", tx.MpesaReceipt)
	}

	// A declined callback marks the record failed.
	gateway.resp = okPushResponse("CRQ-2")
	if _, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-2",
		PhoneNumber: "0712345679",
		Amount:      500,
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := svc.RecordCallback(context.Background(), &mpesa.CallbackResult{
		CheckoutRequestID: "CRQ-2",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	}); err != nil {
		t.Fatalf("RecordCallback() error = %v", err)
	}
	tx, err = repo.GetByCheckoutRequestID(context.Background(), "CRQ-2")
	if err != nil {
		t.Fatalf("GetByCheckoutRequestID() error = %v", err)
	}
	if tx.Status != domain.TransactionStatusFailed {
		t.Fatalf("transaction status = %s, want %s", tx.Status, domain.TransactionStatusFailed)
	}
}

func TestCountdownRemainingDecrements(t *testing.T) {
	cfg := SessionConfig{
		Countdown:    100 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		PollInterval: time.Hour, // keep polling out of the way
		GraceDelay:   10 * time.Millisecond,
	}
	gateway := &stubInitiator{resp: okPushResponse("CRQ-1")}
	svc, _ := newTestService(t, gateway, &stubChecker{status: domain.TransactionStatusPending}, cfg)

	snapshot, err := svc.Submit(context.Background(), SubmitPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0712345678",
		Amount:      999,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if snapshot.RemainingSeconds != 20 {
		t.Fatalf("initial remaining = %d, want 20 ticks", snapshot.RemainingSeconds)
	}

	waitFor(t, time.Second, func() bool {
		got, err := svc.GetSession(snapshot.ID, "user-1")
		return err == nil && got.RemainingSeconds < snapshot.RemainingSeconds
	}, "remaining never decremented")
}
