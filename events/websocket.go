package events

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// envelope is the client-to-server message shape shared by both websocket surfaces.
type envelope struct {
	Event   string `json:"event"`
	UserID  string `json:"userId,omitempty"`
	LobbyID string `json:"lobbyId,omitempty"`
	Room    string `json:"room,omitempty"`
	Message string `json:"message,omitempty"`
}

// WebSocketUpgrader rejects plain HTTP requests on websocket-only routes.
func WebSocketUpgrader(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return eris.Wrap(c.Next(), "")
	}
	return fiber.ErrUpgradeRequired
}

// NotificationsHandler serves a notification session: the client joins its user
// channel with {"event":"room","userId":...}, receives a joined-room ack, then gets
// notification events until it disconnects. This goroutine only reads; the hub's
// fan-out goroutine is the connection's single writer.
func NotificationsHandler(hub *Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		defer hub.Leave(conn)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg envelope
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Debug().Err(err).Msg("ignoring malformed notification message")
				continue
			}
			if msg.Event != "room" || msg.UserID == "" {
				continue
			}
			hub.Join(msg.UserID, conn)
		}
	}
}

// ChatHandler serves a lobby chat session. Messages are persisted through persist
// before being relayed to the room; a persistence failure is logged and the message
// is still relayed. Like the notifications handler, this goroutine never writes to
// the connection; the relay's fan-out goroutine does.
func ChatHandler(
	relay *ChatRelay,
	persist func(ctx context.Context, lobbyID, userID, message string) error,
) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		defer relay.Leave(conn)
		var userID string
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg envelope
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Debug().Err(err).Msg("ignoring malformed chat message")
				continue
			}
			switch msg.Event {
			case "room":
				if msg.LobbyID == "" {
					continue
				}
				userID = msg.UserID
				relay.JoinRoom(msg.LobbyID, conn)
			case "leave-room":
				relay.Leave(conn)
			case "message":
				lobbyID := LobbyIDFromRoom(msg.Room)
				if lobbyID == "" {
					continue
				}
				if err := persist(context.Background(), lobbyID, userID, msg.Message); err != nil {
					log.Warn().Err(err).Str("lobby_id", lobbyID).
						Msg("failed to persist chat message")
				}
				relay.Broadcast(lobbyID, userID, msg.Message)
			}
		}
	}
}
