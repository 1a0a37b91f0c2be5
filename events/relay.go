package events

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const chatRoomPrefix = "chats-room-"

// ChatMessage is the wire shape relayed to a chat room.
type ChatMessage struct {
	Event   string `json:"event"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// ChatRelay maintains the per-lobby chat rooms. It only relays; persistence of the
// chat log belongs to the lobby registry.
type ChatRelay struct {
	fanout *fanout
}

func NewChatRelay() *ChatRelay {
	return &ChatRelay{fanout: newFanout("chat-relay")}
}

// JoinRoom subscribes the session to the lobby's room and returns the room name.
// The joined-room acknowledgement is written on the fan-out goroutine.
func (r *ChatRelay) JoinRoom(lobbyID string, sess Session) string {
	room := chatRoomPrefix + lobbyID
	r.fanout.Join(room, sess, joinAckPayload(room))
	return room
}

func (r *ChatRelay) Leave(sess Session) {
	r.fanout.Leave(sess)
}

// Broadcast relays a message to every session in the lobby's room.
func (r *ChatRelay) Broadcast(lobbyID, senderID, message string) {
	payload, err := json.Marshal(ChatMessage{Event: "message", Sender: senderID, Message: message})
	if err != nil {
		log.Error().Err(err).Msg("failed to encode chat message")
		return
	}
	r.fanout.Broadcast(chatRoomPrefix+lobbyID, payload)
}

// Sessions reports how many sessions are in the lobby's room.
func (r *ChatRelay) Sessions(lobbyID string) int {
	return r.fanout.Count(chatRoomPrefix + lobbyID)
}

func (r *ChatRelay) Shutdown() {
	r.fanout.Shutdown()
}

// LobbyIDFromRoom strips the room prefix, returning the lobby id a room refers to.
func LobbyIDFromRoom(room string) string {
	return strings.TrimPrefix(room, chatRoomPrefix)
}
