package models

// Audit actions.
const (
	AuditCreate       = "create"
	AuditUpdate       = "update"
	AuditDelete       = "delete"
	AuditInvite       = "invite"
	AuditAccept       = "accept"
	AuditRemoveMember = "remove_member"
	AuditChangeRole   = "change_role"
	AuditExpire       = "expire"
	AuditPurge        = "purge"
)

// AuditLog is an append-only record of an administrative action.
// ActorID is empty for actions taken by scheduled jobs. CircleID scopes the
// entry to a circle's audit trail when set.
type AuditLog struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id,omitempty"`
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	CircleID   string `json:"circle_id,omitempty"`
	Details    string `json:"details,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}
