// Package lobby wires the matchmaking engine together: the team and lobby
// registries on the ephemeral store, the invitation issuer, the recurring match
// scheduler, the real-time hub, and the HTTP/websocket server.
package lobby

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/lobby/events"
	"pkg.world.dev/lobby/invite"
	room "pkg.world.dev/lobby/lobby"
	"pkg.world.dev/lobby/match"
	"pkg.world.dev/lobby/player"
	"pkg.world.dev/lobby/server"
	"pkg.world.dev/lobby/storage"
	"pkg.world.dev/lobby/team"
)

const redisDialTimeout = 15 * time.Second

// Engine is the top-level object tying the matchmaking modules together. Create one
// with NewEngine, then call Start to serve until a shutdown signal or an explicit
// Shutdown.
type Engine struct {
	cfg *Config

	store   storage.Store
	teams   *team.Registry
	lobbies *room.Registry
	issuer  *invite.Issuer
	hub     *events.Hub
	relay   *events.ChatRelay
	players player.Directory

	scheduler *match.Scheduler
	server    *server.Server

	schedulerCancel context.CancelFunc
	running         atomic.Bool
	shutdownOnce    atomic.Bool
}

// NewEngine loads the configuration from the environment, applies the options, and
// builds the engine. Nothing is served until Start is called.
func NewEngine(opts ...Option) (*Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid config")
	}
	zerolog.SetGlobalLevel(cfg.logLevel)

	serverOptions, schedulerOptions, engineOptions := separateOptions(opts)

	e := &Engine{
		cfg:     cfg,
		players: player.StaticDirectory{},
	}
	for _, opt := range engineOptions {
		opt(e)
	}

	if e.store == nil {
		e.store = storage.NewRedis(storage.Options{
			Addr:        cfg.RedisAddress,
			Password:    cfg.RedisPassword,
			DB:          0, // use default DB
			DialTimeout: redisDialTimeout,
		}, cfg.Namespace, cfg.storeTTL)
	}

	e.teams = team.NewRegistry(e.store)
	e.lobbies = room.NewRegistry(e.store)
	e.issuer = invite.NewIssuer([]byte(cfg.InvitationSecret), cfg.InvitationLink, cfg.invitationExpiry)
	e.hub = events.NewHub()
	e.relay = events.NewChatRelay()

	schedulerOptions = append(
		[]match.Option{match.WithTickChannel(time.Tick(cfg.matchInterval))}, //nolint:staticcheck // scheduler lives for the process
		schedulerOptions...,
	)
	e.scheduler = match.NewScheduler(e.teams, e.lobbies, e.hub, schedulerOptions...)

	serverOptions = append([]server.Option{server.WithPort(cfg.Port)}, serverOptions...)
	e.server = server.New(e.teams, e.lobbies, e.issuer, e.hub, e.relay, e.players,
		cfg.PlayerLimit, serverOptions...)

	return e, nil
}

// Start runs the scheduler and serves the API, blocking until the server stops.
// SIGINT and SIGTERM trigger a clean Shutdown.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine has already been started")
	}
	log.Info().Str("namespace", e.cfg.Namespace).Msg("Starting matchmaking engine")

	ctx, cancel := context.WithCancel(context.Background())
	e.schedulerCancel = cancel
	e.scheduler.Start(ctx)
	e.handleShutdownSignal()

	return e.server.Serve()
}

// Shutdown stops the scheduler, the server, and the real-time channels, then closes
// the store. Safe to call more than once.
func (e *Engine) Shutdown() error {
	if !e.shutdownOnce.CompareAndSwap(false, true) {
		return nil
	}
	log.Info().Msg("Shutting down matchmaking engine")

	if e.schedulerCancel != nil {
		e.schedulerCancel()
	}
	e.scheduler.Shutdown()
	if err := e.server.Shutdown(); err != nil {
		return err
	}
	e.hub.Shutdown()
	e.relay.Shutdown()
	if err := e.store.Close(); err != nil {
		return eris.Wrap(err, "failed to close storage connection")
	}
	log.Info().Msg("Engine shut down")
	return nil
}

// IsRunning reports whether Start has been called and Shutdown has not.
func (e *Engine) IsRunning() bool {
	return e.running.Load() && !e.shutdownOnce.Load()
}

// Server exposes the HTTP surface. Tests use Server().App().Test to issue requests
// without listening on a port.
func (e *Engine) Server() *server.Server {
	return e.server
}

func (e *Engine) handleShutdownSignal() {
	signalChannel := make(chan os.Signal, 1)
	go func() {
		signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
		for sig := range signalChannel {
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				if err := e.Shutdown(); err != nil {
					log.Err(err).Msg("There was an error during shutdown.")
				}
				return
			}
		}
	}()
}
