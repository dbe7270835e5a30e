// Package queue defines the message payloads exchanged over the broker
// and the background consumer that delivers them.
package queue

// NotificationQueueName is the durable queue notifications travel over.
const NotificationQueueName = "notification.dispatch"

// NotificationEvent asks the notification collaborator to deliver a
// message to a user.  Dispatch is fire-and-forget: delivery failures are
// never allowed to roll back the settlement that produced the event.
type NotificationEvent struct {
	UserID  uint64         `json:"user_id"`
	Kind    string         `json:"kind"` // e.g. "booking_confirmed", "withdrawal_processed"
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	SentAt  string         `json:"sent_at"` // RFC3339
}
