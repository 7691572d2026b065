package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shambascan/internal/domain"
	"shambascan/internal/logging"
	"shambascan/internal/mpesa"
	"shambascan/internal/repository"
)

// StatusChecker is the payment status collaborator: it answers what the
// gateway currently knows about a checkout request. Any status equal to
// domain.TransactionStatusCompleted counts as success; everything else is
// still-pending.
type StatusChecker interface {
	CheckStatus(ctx context.Context, checkoutRequestID string) (domain.TransactionStatus, string, error)
}

// repoStatusChecker reads the transaction record kept current by the
// gateway result callback.
type repoStatusChecker struct {
	repo repository.TransactionRepository
}

// NewRepoStatusChecker builds a StatusChecker over the transaction repository.
func NewRepoStatusChecker(repo repository.TransactionRepository) StatusChecker {
	return &repoStatusChecker{repo: repo}
}

func (c *repoStatusChecker) CheckStatus(ctx context.Context, checkoutRequestID string) (domain.TransactionStatus, string, error) {
	tx, err := c.repo.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return "", "", err
	}
	return tx.Status, tx.MpesaReceipt, nil
}

// SessionConfig holds the timing bounds of one confirmation session.
type SessionConfig struct {
	Countdown    time.Duration
	TickInterval time.Duration
	PollInterval time.Duration
	GraceDelay   time.Duration
}

// DefaultSessionConfig returns the production timing bounds: a 120 second
// countdown ticking every second, a status poll every 5 seconds, and a
// 3 second grace delay between confirmation and teardown.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Countdown:    120 * time.Second,
		TickInterval: time.Second,
		PollInterval: 5 * time.Second,
		GraceDelay:   3 * time.Second,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	def := DefaultSessionConfig()
	if c.Countdown <= 0 {
		c.Countdown = def.Countdown
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = def.GraceDelay
	}
	return c
}

// sessionHooks are fired by the session's run loop. All hooks are optional.
type sessionHooks struct {
	onTick    func(remaining int)
	onTimeout func()
	onSuccess func(transactionID string)
	onClosed  func()
}

// Session drives a single push-payment attempt from initiation through
// confirmation or timeout. It owns exactly two periodic tasks, a countdown
// tick and a status poll, plus an optional grace timer scheduled on
// success. Dispose cancels all of them idempotently; every path that ends
// the session goes through it.
type Session struct {
	ID                string
	UserID            string
	CheckoutRequestID string
	AccountReference  string
	CreatedAt         time.Time

	cfg     SessionConfig
	checker StatusChecker
	hooks   sessionHooks
	logger  *zap.Logger

	mu            sync.Mutex
	status        domain.SessionStatus
	message       string
	remaining     int
	timedOut      bool
	transactionID string
	graceTimer    *time.Timer

	ctx         context.Context
	cancel      context.CancelFunc
	disposeOnce sync.Once
	done        chan struct{}
}

func newSession(userID, checkoutRequestID, accountRef string, cfg SessionConfig, checker StatusChecker, hooks sessionHooks, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	s := &Session{
		ID:                id,
		UserID:            userID,
		CheckoutRequestID: checkoutRequestID,
		AccountReference:  accountRef,
		CreatedAt:         time.Now().UTC(),
		cfg:               cfg,
		checker:           checker,
		hooks:             hooks,
		logger:            logging.WithOperation(logger, "payment_confirmation", id),
		status:            domain.SessionStatusPending,
		message:           "Payment request sent. Enter your M-Pesa PIN on your phone.",
		remaining:         int(cfg.Countdown / cfg.TickInterval),
		ctx:               ctx,
		cancel:            cancel,
		done:              make(chan struct{}),
	}
	return s
}

// start launches the countdown and poll loops.
func (s *Session) start() {
	go s.run()
}

func (s *Session) run() {
	defer close(s.done)

	countdown := time.NewTicker(s.cfg.TickInterval)
	defer countdown.Stop()
	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	countdownActive := true

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-countdown.C:
			if !countdownActive {
				continue
			}
			s.mu.Lock()
			if s.remaining > 0 {
				s.remaining--
			}
			remaining := s.remaining
			s.mu.Unlock()

			if s.hooks.onTick != nil {
				s.hooks.onTick(remaining)
			}

			if remaining <= 0 {
				// The countdown expiring is advisory: polling keeps
				// going because the payment may still complete
				// out-of-band.
				countdownActive = false
				countdown.Stop()
				s.mu.Lock()
				s.timedOut = true
				s.message = "Still waiting for confirmation. If you completed the payment, check your subscription status in a moment."
				s.mu.Unlock()
				s.logger.Info("countdown expired while pending",
					zap.String("checkout_request_id", s.CheckoutRequestID))
				if s.hooks.onTimeout != nil {
					s.hooks.onTimeout()
				}
			}

		case <-poll.C:
			status, transactionID, err := s.checker.CheckStatus(s.ctx, s.CheckoutRequestID)
			if err != nil {
				// A single failed poll never terminates the session.
				s.logger.Warn("status poll failed, retrying on next tick",
					zap.String("checkout_request_id", s.CheckoutRequestID),
					zap.Error(err))
				continue
			}
			if status != domain.TransactionStatusCompleted {
				continue
			}
			s.complete(transactionID)
			return
		}
	}
}

// complete transitions the session to success, stops both periodic tasks,
// and schedules the grace-delayed teardown.
func (s *Session) complete(transactionID string) {
	s.mu.Lock()
	s.status = domain.SessionStatusSuccess
	s.transactionID = transactionID
	s.message = "Payment confirmed. Thank you!"
	s.graceTimer = time.AfterFunc(s.cfg.GraceDelay, func() {
		if s.hooks.onClosed != nil {
			s.hooks.onClosed()
		}
	})
	s.mu.Unlock()

	s.logger.Info("payment confirmed",
		zap.String("checkout_request_id", s.CheckoutRequestID),
		zap.String("transaction_id", transactionID))

	if s.hooks.onSuccess != nil {
		s.hooks.onSuccess(transactionID)
	}
}

// failImmediately marks the session failed before any timer starts. Used
// for initiation failures, which never begin polling.
func (s *Session) failImmediately(message string) {
	s.mu.Lock()
	s.status = domain.SessionStatusFailed
	s.message = message
	s.mu.Unlock()
	close(s.done)
}

// Dispose idempotently cancels the countdown task, the poll task, and any
// scheduled grace timer. Safe to call from any goroutine, any number of
// times, on any terminal path.
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		if s.graceTimer != nil {
			s.graceTimer.Stop()
			s.graceTimer = nil
		}
		s.mu.Unlock()
	})
}

// markCancelled returns the session to idle after a user-initiated close.
func (s *Session) markCancelled() {
	s.mu.Lock()
	if s.status == domain.SessionStatusPending {
		s.status = domain.SessionStatusIdle
		s.message = "Payment cancelled."
	}
	s.mu.Unlock()
}

// Snapshot returns a point-in-time view of the session.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionSnapshot{
		ID:                s.ID,
		UserID:            s.UserID,
		CheckoutRequestID: s.CheckoutRequestID,
		Status:            s.status,
		Message:           s.message,
		RemainingSeconds:  s.remaining,
		TimedOut:          s.timedOut,
		TransactionID:     s.transactionID,
		CreatedAt:         s.CreatedAt,
	}
}

// PaymentService manages confirmation sessions: at most one active session
// per user, each owning its own timers.
type PaymentService struct {
	gateway  mpesa.Initiator
	txRepo   repository.TransactionRepository
	checker  StatusChecker
	locks    PaymentLocker
	notifier *NotificationService
	cfg      SessionConfig
	logger   *zap.Logger

	// onReload is fired after the grace delay following a confirmed
	// payment; it refreshes dependent subscription state.
	onReload func(userID string)

	mu      sync.Mutex
	byID    map[string]*Session
	byOwner map[string]*Session
}

// PaymentLocker guards the one-active-session-per-user invariant across
// instances. Optional; nil disables cross-instance locking.
type PaymentLocker interface {
	AcquirePaymentLock(ctx context.Context, userID string, ttl time.Duration) (bool, error)
	ReleasePaymentLock(ctx context.Context, userID string) error
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	gateway mpesa.Initiator,
	txRepo repository.TransactionRepository,
	checker StatusChecker,
	locks PaymentLocker,
	notifier *NotificationService,
	cfg SessionConfig,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		gateway:  gateway,
		txRepo:   txRepo,
		checker:  checker,
		locks:    locks,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   logger.Named("payment"),
		byID:     make(map[string]*Session),
		byOwner:  make(map[string]*Session),
	}
}

// SetReloadHook installs the subscription-state reload fired after the
// grace delay on payment success.
func (s *PaymentService) SetReloadHook(fn func(userID string)) {
	s.onReload = fn
}

// SubmitPaymentRequest contains the parameters for starting a payment attempt.
type SubmitPaymentRequest struct {
	UserID           string
	PhoneNumber      string
	Amount           float64
	AccountReference string
	TransactionDesc  string
}

// Submit validates the request, initiates an STK push, and on success
// starts a confirmation session. Validation failures reject the request
// before any gateway call; initiation failures produce a failed session
// the user may retry from.
func (s *PaymentService) Submit(ctx context.Context, req SubmitPaymentRequest) (domain.SessionSnapshot, error) {
	if req.UserID == "" {
		return domain.SessionSnapshot{}, ErrInvalidUserID
	}
	if req.Amount <= 0 {
		return domain.SessionSnapshot{}, ErrInvalidPaymentAmount
	}

	phone := mpesa.NormalizePhone(req.PhoneNumber)
	if !mpesa.ValidPhone(phone) {
		return domain.SessionSnapshot{}, ErrInvalidPhoneNumber
	}

	// A new submission replaces the prior session's timers before anything
	// else starts; orphaned tickers must never outlive their owner.
	s.disposeOwnerSession(req.UserID)

	if s.locks != nil {
		ttl := s.cfg.Countdown + s.cfg.PollInterval + s.cfg.GraceDelay
		ok, err := s.locks.AcquirePaymentLock(ctx, req.UserID, ttl)
		if err != nil {
			s.logger.Warn("payment lock unavailable, continuing without it", zap.Error(err))
		} else if !ok {
			return domain.SessionSnapshot{}, ErrPaymentInProgress
		}
	}

	resp, err := s.gateway.STKPush(ctx, mpesa.InitiateRequest{
		PhoneNumber:      phone,
		Amount:           req.Amount,
		AccountReference: req.AccountReference,
		TransactionDesc:  req.TransactionDesc,
		UserID:           req.UserID,
	})
	if err != nil || !resp.Success || resp.CheckoutRequestID == "" {
		message := "Payment initiation failed. Please try again."
		if err == nil && resp.Message != "" {
			message = resp.Message
		}
		if err != nil {
			s.logger.Error("stk push initiation failed", zap.Error(err))
		}
		s.releaseLock(req.UserID)
		session := newSession(req.UserID, "", req.AccountReference, s.cfg, s.checker, sessionHooks{}, s.logger)
		session.failImmediately(message)
		s.track(session)
		if s.notifier != nil {
			s.notifier.NotifyPaymentFailed(ctx, req.UserID, message)
		}
		return session.Snapshot(), nil
	}

	now := time.Now().UTC()
	tx := &domain.Transaction{
		ID:                uuid.New().String(),
		UserID:            req.UserID,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		PhoneNumber:       phone,
		Amount:            req.Amount,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.TransactionDesc,
		Status:            domain.TransactionStatusPending,
		CreatedAt:         now,
	}
	if err := s.txRepo.Create(ctx, tx); err != nil {
		s.releaseLock(req.UserID)
		return domain.SessionSnapshot{}, err
	}

	session := newSession(req.UserID, resp.CheckoutRequestID, req.AccountReference, s.cfg, s.checker, sessionHooks{}, s.logger)
	session.hooks = sessionHooks{
		onTimeout: func() {
			if s.notifier != nil {
				s.notifier.NotifyPaymentTimeout(context.Background(), req.UserID, resp.CheckoutRequestID)
			}
		},
		onSuccess: func(transactionID string) {
			if s.notifier != nil {
				s.notifier.NotifyPaymentSuccess(context.Background(), req.UserID, req.Amount, transactionID)
			}
		},
		onClosed: func() {
			s.closeSession(session)
		},
	}
	s.track(session)
	session.start()

	return session.Snapshot(), nil
}

// GetSession returns a snapshot of the identified session.
func (s *PaymentService) GetSession(sessionID, userID string) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	session, ok := s.byID[sessionID]
	s.mu.Unlock()
	if !ok {
		return domain.SessionSnapshot{}, ErrSessionNotFound
	}
	if session.UserID != userID {
		return domain.SessionSnapshot{}, ErrSessionOwnership
	}
	return session.Snapshot(), nil
}

// Cancel tears down a session on user request: both periodic tasks are
// cancelled and the correlation state discarded unconditionally.
func (s *PaymentService) Cancel(sessionID, userID string) error {
	s.mu.Lock()
	session, ok := s.byID[sessionID]
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if session.UserID != userID {
		return ErrSessionOwnership
	}

	session.markCancelled()
	session.Dispose()
	s.untrack(session)
	s.releaseLock(userID)
	return nil
}

// Shutdown disposes every live session. Called on process teardown so no
// timer outlives the service.
func (s *PaymentService) Shutdown() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.byID))
	for _, session := range s.byID {
		sessions = append(sessions, session)
	}
	s.byID = make(map[string]*Session)
	s.byOwner = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Dispose()
	}
}

// closeSession finishes the success path after the grace delay: the session
// is removed, the lock released, and dependent subscription state reloaded.
func (s *PaymentService) closeSession(session *Session) {
	session.Dispose()
	s.untrack(session)
	s.releaseLock(session.UserID)
	if s.onReload != nil {
		s.onReload(session.UserID)
	}
}

func (s *PaymentService) disposeOwnerSession(userID string) {
	s.mu.Lock()
	prior, ok := s.byOwner[userID]
	s.mu.Unlock()
	if !ok {
		return
	}
	prior.Dispose()
	s.untrack(prior)
	s.releaseLock(userID)
}

func (s *PaymentService) track(session *Session) {
	s.mu.Lock()
	s.byID[session.ID] = session
	s.byOwner[session.UserID] = session
	s.mu.Unlock()
}

func (s *PaymentService) untrack(session *Session) {
	s.mu.Lock()
	delete(s.byID, session.ID)
	if current, ok := s.byOwner[session.UserID]; ok && current == session {
		delete(s.byOwner, session.UserID)
	}
	s.mu.Unlock()
}

func (s *PaymentService) releaseLock(userID string) {
	if s.locks == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.locks.ReleasePaymentLock(ctx, userID); err != nil {
		s.logger.Warn("failed to release payment lock", zap.String("user_id", userID), zap.Error(err))
	}
}

// RecordCallback applies a gateway result callback to the transaction
// record. Confirmation sessions observe the update on their next poll.
func (s *PaymentService) RecordCallback(ctx context.Context, result *mpesa.CallbackResult) error {
	status := domain.TransactionStatusFailed
	if result.Completed() {
		status = domain.TransactionStatusCompleted
	}
	return s.txRepo.UpdateResult(ctx, result.CheckoutRequestID, status, result.MpesaReceipt, result.ResultDesc)
}
