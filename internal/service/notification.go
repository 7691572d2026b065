package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shambascan/internal/domain"
	"shambascan/internal/redis"
)

// NotificationService persists in-app notifications through the history
// store. Delivery failures are logged and swallowed: a notification must
// never break the flow that produced it.
type NotificationService struct {
	history redis.HistoryStoreInterface
	logger  *zap.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(history redis.HistoryStoreInterface, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		history: history,
		logger:  logger.Named("notify"),
	}
}

func notificationKey(userID string) string {
	return "notifications:" + userID
}

func (s *NotificationService) push(ctx context.Context, n domain.Notification) {
	n.ID = uuid.New().String()
	n.CreatedAt = time.Now().UTC()

	if s.history == nil {
		return
	}
	if err := s.history.Append(ctx, notificationKey(n.UserID), n); err != nil {
		s.logger.Warn("failed to persist notification",
			zap.String("user_id", n.UserID),
			zap.String("type", string(n.Type)),
			zap.Error(err))
	}
}

// NotifyScanReady records that a scan's diagnosis is available.
func (s *NotificationService) NotifyScanReady(ctx context.Context, scan *domain.Scan) {
	s.push(ctx, domain.Notification{
		Type:    domain.NotificationScanReady,
		UserID:  scan.UserID,
		Title:   "Diagnosis ready",
		Message: fmt.Sprintf("Your scan result is in: %s", scan.DiseaseName),
		Data: map[string]interface{}{
			"scan_id":    scan.ID,
			"disease":    scan.DiseaseName,
			"confidence": scan.Confidence,
		},
	})
}

// NotifyPaymentSuccess records a confirmed payment.
func (s *NotificationService) NotifyPaymentSuccess(ctx context.Context, userID string, amount float64, transactionID string) {
	s.push(ctx, domain.Notification{
		Type:    domain.NotificationPaymentSuccess,
		UserID:  userID,
		Title:   "Payment received",
		Message: fmt.Sprintf("Your payment of KES %.0f was confirmed.", amount),
		Data: map[string]interface{}{
			"transaction_id": transactionID,
			"amount":         amount,
		},
	})
}

// NotifyPaymentFailed records a failed payment attempt.
func (s *NotificationService) NotifyPaymentFailed(ctx context.Context, userID, reason string) {
	s.push(ctx, domain.Notification{
		Type:    domain.NotificationPaymentFailed,
		UserID:  userID,
		Title:   "Payment failed",
		Message: reason,
	})
}

// NotifyPaymentTimeout records that a payment is still unconfirmed after
// the countdown expired.
func (s *NotificationService) NotifyPaymentTimeout(ctx context.Context, userID, checkoutRequestID string) {
	s.push(ctx, domain.Notification{
		Type:    domain.NotificationPaymentTimeout,
		UserID:  userID,
		Title:   "Payment still pending",
		Message: "We have not received confirmation yet. If you completed the payment it will reflect shortly.",
		Data: map[string]interface{}{
			"checkout_request_id": checkoutRequestID,
		},
	})
}

// ListForUser returns the user's newest notifications as raw JSON entries.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if s.history == nil {
		return nil, nil
	}
	raw, err := s.history.List(ctx, notificationKey(userID), limit)
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(raw))
	for _, entry := range raw {
		var n domain.Notification
		if err := json.Unmarshal(entry, &n); err != nil {
			s.logger.Warn("skipping undecodable notification entry", zap.Error(err))
			continue
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}
