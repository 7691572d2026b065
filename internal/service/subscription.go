package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shambascan/internal/domain"
	"shambascan/internal/redis"
	"shambascan/internal/repository"
)

// Plans is the fixed subscription plan catalog.
var Plans = []domain.Plan{
	{ID: "free", Name: "Free", PriceKES: 0, DurationDays: 0},
	{ID: "pro-monthly", Name: "Pro Monthly", PriceKES: 999, DurationDays: 30},
	{ID: "pro-yearly", Name: "Pro Yearly", PriceKES: 9999, DurationDays: 365},
}

// PlanByID looks up a plan in the catalog.
func PlanByID(id string) (domain.Plan, bool) {
	for _, plan := range Plans {
		if plan.ID == id {
			return plan, true
		}
	}
	return domain.Plan{}, false
}

// SubscriptionService manages the mock subscription flow: a pending
// subscription is created alongside a payment attempt and activated once
// the payment confirms.
type SubscriptionService struct {
	repo    repository.SubscriptionRepository
	txRepo  repository.TransactionRepository
	cache   *redis.CacheStore
	payment *PaymentService
	logger  *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService and installs
// itself as the payment service's post-confirmation reload hook.
func NewSubscriptionService(
	repo repository.SubscriptionRepository,
	txRepo repository.TransactionRepository,
	cache *redis.CacheStore,
	payment *PaymentService,
	logger *zap.Logger,
) *SubscriptionService {
	s := &SubscriptionService{
		repo:    repo,
		txRepo:  txRepo,
		cache:   cache,
		payment: payment,
		logger:  logger.Named("subscription"),
	}
	if payment != nil {
		payment.SetReloadHook(s.ReloadForUser)
	}
	return s
}

// SubscribeRequest contains the parameters for starting a subscription.
type SubscribeRequest struct {
	UserID      string
	PlanID      string
	PhoneNumber string
}

// SubscribeResult pairs the pending subscription with the payment session
// driving its confirmation.
type SubscribeResult struct {
	Subscription *domain.Subscription
	Session      domain.SessionSnapshot
}

// Subscribe creates a pending subscription and submits the STK push that
// pays for it. Validation failures surface before any gateway call.
func (s *SubscriptionService) Subscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error) {
	if req.UserID == "" {
		return nil, ErrInvalidUserID
	}

	plan, ok := PlanByID(req.PlanID)
	if !ok {
		return nil, ErrUnknownPlan
	}

	snapshot, err := s.payment.Submit(ctx, SubmitPaymentRequest{
		UserID:           req.UserID,
		PhoneNumber:      req.PhoneNumber,
		Amount:           plan.PriceKES,
		AccountReference: "SUB-" + plan.ID,
		TransactionDesc:  plan.Name + " subscription",
	})
	if err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		PlanID:    plan.ID,
		Status:    domain.SubscriptionStatusPending,
		PaymentID: snapshot.CheckoutRequestID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	return &SubscribeResult{Subscription: sub, Session: snapshot}, nil
}

// GetStatus returns the user's current subscription, cache first.
func (s *SubscriptionService) GetStatus(ctx context.Context, userID string) (*domain.Subscription, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	if s.cache != nil {
		cached, err := s.cache.GetSubscription(ctx, userID)
		if err != nil {
			s.logger.Warn("subscription cache read failed", zap.Error(err))
		} else if cached != nil {
			return &domain.Subscription{
				ID:        cached.ID,
				UserID:    cached.UserID,
				PlanID:    cached.PlanID,
				Status:    domain.SubscriptionStatus(cached.Status),
				ExpiresAt: cached.ExpiresAt,
			}, nil
		}
	}

	sub, err := s.repo.GetCurrentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	if s.cache != nil {
		_ = s.cache.SetSubscription(ctx, &redis.CachedSubscription{
			ID:        sub.ID,
			UserID:    sub.UserID,
			PlanID:    sub.PlanID,
			Status:    string(sub.Status),
			ExpiresAt: sub.ExpiresAt,
		})
	}
	return sub, nil
}

// ReloadForUser refreshes dependent subscription state after a confirmed
// payment: the pending subscription is activated and the cache entry
// invalidated so the next read sees the new state.
func (s *SubscriptionService) ReloadForUser(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.cache != nil {
		if err := s.cache.InvalidateSubscription(ctx, userID); err != nil {
			s.logger.Warn("subscription cache invalidation failed", zap.Error(err))
		}
	}

	sub, err := s.repo.GetCurrentByUser(ctx, userID)
	if err != nil {
		s.logger.Error("subscription reload failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if sub == nil || sub.Status != domain.SubscriptionStatusPending {
		return
	}

	tx, err := s.txRepo.GetByCheckoutRequestID(ctx, sub.PaymentID)
	if err != nil || tx.Status != domain.TransactionStatusCompleted {
		return
	}

	plan, ok := PlanByID(sub.PlanID)
	if !ok {
		return
	}

	now := time.Now().UTC()
	expires := now.AddDate(0, 0, plan.DurationDays)
	if err := s.repo.Activate(ctx, sub.ID, now, expires); err != nil {
		s.logger.Error("subscription activation failed", zap.String("subscription_id", sub.ID), zap.Error(err))
		return
	}

	s.logger.Info("subscription activated",
		zap.String("user_id", userID),
		zap.String("plan_id", sub.PlanID),
		zap.Time("expires_at", expires))
}
