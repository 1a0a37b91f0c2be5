// Package server exposes the matchmaking operations over HTTP and websockets.
package server

import (
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/lobby/events"
	"pkg.world.dev/lobby/invite"
	"pkg.world.dev/lobby/lobby"
	"pkg.world.dev/lobby/player"
	"pkg.world.dev/lobby/team"
)

const defaultPort = "4040"

// Server wires the registries, the invitation issuer, and the real-time hub behind
// the exposed operations. Authentication itself is delegated to the configured
// Authenticator; this server only enforces the per-route capability list.
type Server struct {
	app  *fiber.App
	port string

	teams    *team.Registry
	lobbies  *lobby.Registry
	issuer   *invite.Issuer
	hub      *events.Hub
	relay    *events.ChatRelay
	players  player.Directory
	auth     Authenticator
	capacity int

	running atomic.Bool
}

type Option func(*Server)

func WithPort(port string) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithAuthenticator replaces the caller-identity resolver.
func WithAuthenticator(auth Authenticator) Option {
	return func(s *Server) {
		s.auth = auth
	}
}

func New(
	teams *team.Registry,
	lobbies *lobby.Registry,
	issuer *invite.Issuer,
	hub *events.Hub,
	relay *events.ChatRelay,
	players player.Directory,
	capacity int,
	opts ...Option,
) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		port:     defaultPort,
		teams:    teams,
		lobbies:  lobbies,
		issuer:   issuer,
		hub:      hub,
		relay:    relay,
		players:  players,
		capacity: capacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth == nil {
		s.auth = NewHeaderAuthenticator(players)
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	authed := s.requireCapability(CapabilityMatchMake)
	s.app.Post("/teams/register", authed, s.handleRegisterTeam)
	s.app.Patch("/teams", authed, s.handleUpdateTeam)
	s.app.Get("/teams", authed, s.handleFetchTeam)
	s.app.Get("/teams/invite", authed, s.handleInviteSend)
	s.app.Get("/teams/invitation/accept", authed, s.handleInvitationAccept)
	s.app.Get("/teams/invitation/reject", authed, s.handleInvitationReject)
	s.app.Get("/lobbies", authed, s.handleFetchLobby)

	s.app.Use("/events", events.WebSocketUpgrader)
	s.app.Get("/events", websocket.New(events.NotificationsHandler(s.hub)))

	s.app.Use("/chat", events.WebSocketUpgrader)
	s.app.Get("/chat", websocket.New(events.ChatHandler(s.relay, s.persistChat)))
}

// Serve blocks until the server stops.
func (s *Server) Serve() error {
	s.running.Store(true)
	defer s.running.Store(false)
	log.Info().Msgf("Serving matchmaking API at port %s", s.port)
	return eris.Wrap(s.app.Listen(":"+s.port), "server terminated")
}

func (s *Server) Shutdown() error {
	if !s.running.Load() {
		return nil
	}
	return eris.Wrap(s.app.Shutdown(), "failed to shut down server")
}

// App exposes the underlying fiber app. Tests use it with app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}
