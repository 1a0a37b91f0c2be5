package events

import (
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const notificationChannelPrefix = "notifications-room-"

// Hub maintains the per-user notification channels. A session explicitly joins the
// channel for a user id; Send fans a typed event out to every session currently in
// that channel.
type Hub struct {
	fanout *fanout
}

func NewHub() *Hub {
	return &Hub{fanout: newFanout("notification-hub")}
}

// Join subscribes the session to the user's channel and returns the channel name.
// The session receives a joined-room acknowledgement carrying the channel name,
// written on the fan-out goroutine like every other delivery. Joining is
// idempotent.
func (h *Hub) Join(userID string, sess Session) string {
	channel := notificationChannelPrefix + userID
	h.fanout.Join(channel, sess, joinAckPayload(channel))
	return channel
}

func (h *Hub) Leave(sess Session) {
	h.fanout.Leave(sess)
}

// Send emits a typed event to the user's channel. Delivery is at-most-once: if no
// session is joined for that user the event is dropped, and that is not an error
// from the sender's perspective.
func (h *Hub) Send(userID string, eventType Type, msg Message) {
	payload, err := json.Marshal(Notification{Type: eventType, Message: msg})
	if err != nil {
		log.Error().Err(err).Str("type", string(eventType)).
			Msg("failed to encode notification")
		return
	}
	log.Debug().Str("type", string(eventType)).Str("user_id", userID).
		Msg("sending notification")
	h.fanout.Broadcast(notificationChannelPrefix+userID, payload)
}

// Sessions reports how many sessions are joined for the user.
func (h *Hub) Sessions(userID string) int {
	return h.fanout.Count(notificationChannelPrefix + userID)
}

func (h *Hub) Shutdown() {
	h.fanout.Shutdown()
}
