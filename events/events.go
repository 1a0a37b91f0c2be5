// Package events maintains the real-time surface: per-user notification channels and
// per-lobby chat rooms. Delivery is at-most-once and fire-and-forget; events sent to
// a user with no joined session are dropped.
package events

// Type identifies the kind of notification pushed to a user's channel.
type Type string

const (
	TypeTeamInvitation       Type = "team-invitation"
	TypeTeamInvitationAccept Type = "team-invitation-accept"
	TypeTeamInvitationReject Type = "team-invitation-reject"
	TypeFoundMatch           Type = "found-match"
)

// Message is the human-readable body of a notification, with an optional structured
// payload.
type Message struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notification is the wire shape delivered on a user's channel.
type Notification struct {
	Type    Type    `json:"type"`
	Message Message `json:"message"`
}
