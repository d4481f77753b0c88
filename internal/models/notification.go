package models

import "time"

type NotificationType string

const (
	NotifOrder        NotificationType = "order"
	NotifGig          NotificationType = "gig"
	NotifMessage      NotificationType = "message"
	NotifWallet       NotificationType = "wallet"
	NotifVerification NotificationType = "verification"
	NotifSupport      NotificationType = "support"
	NotifSystem       NotificationType = "system"
)

// Notification is a role-addressed inbox entry. ReceiverID narrows delivery to
// one account when set.
type Notification struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Message      string           `json:"message"`
	Type         NotificationType `json:"type"`
	ReceiverRole Role             `json:"receiver_role"`
	ReceiverID   string           `json:"receiver_id,omitempty"`
	Read         bool             `json:"read"`
	CreatedAt    time.Time        `json:"created_at"`
	ActionRoute  string           `json:"action_route,omitempty"`
	RelatedID    string           `json:"related_id,omitempty"`
}
