package models

// Notification types.
const (
	NotificationPaymentDue         = "payment_due"
	NotificationPaymentReceived    = "payment_received"
	NotificationCircleInvitation   = "circle_invitation"
	NotificationMemberJoined       = "member_joined"
	NotificationTransactionCreated = "transaction_created"
)

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Type          string `json:"type"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	IsRead        bool   `json:"is_read"`
	TransactionID string `json:"transaction_id,omitempty"`
	CircleID      string `json:"circle_id,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}
