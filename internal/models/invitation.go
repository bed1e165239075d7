package models

// Invitation statuses.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRejected = "rejected"
	InvitationExpired  = "expired"
)

// Invitation asks a user (or an email address) to join a circle.
type Invitation struct {
	ID        string `json:"id"`
	CircleID  string `json:"circle_id"`
	InviterID string `json:"inviter_id"`

	// InviteeID is set when the invitee is a registered user; Email otherwise.
	InviteeID string `json:"invitee_id,omitempty"`
	Email     string `json:"email,omitempty"`

	Status      string `json:"status"`
	ExpiresAt   int64  `json:"expires_at"`
	CreatedAt   int64  `json:"created_at"`
	RespondedAt int64  `json:"responded_at,omitempty"`

	// Populated via JOIN for list views.
	CircleName  string `json:"circle_name,omitempty"`
	InviterName string `json:"inviter_name,omitempty"`
}

// Expired reports whether the invitation's expiry has passed at now.
func (i *Invitation) Expired(now int64) bool {
	return i.ExpiresAt <= now
}
