package domain

import "time"

// NotificationType classifies an in-app notification.
type NotificationType string

const (
	NotificationScanReady      NotificationType = "SCAN_READY"
	NotificationPaymentSuccess NotificationType = "PAYMENT_SUCCESS"
	NotificationPaymentFailed  NotificationType = "PAYMENT_FAILED"
	NotificationPaymentTimeout NotificationType = "PAYMENT_TIMEOUT"
)

// Notification is an in-app message persisted in the history store.
type Notification struct {
	ID        string                 `json:"id"`
	Type      NotificationType       `json:"type"`
	UserID    string                 `json:"user_id"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
