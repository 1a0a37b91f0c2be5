package lobby

import (
	"math/rand"
	"time"

	"pkg.world.dev/lobby/match"
	"pkg.world.dev/lobby/player"
	"pkg.world.dev/lobby/server"
	"pkg.world.dev/lobby/storage"
)

// Option augments how the engine is assembled. Options wrap the sub-package options
// so callers configure everything in one place.
type Option struct {
	serverOption    server.Option
	schedulerOption match.Option
	engineOption    func(*Engine)
}

// WithPort overrides the port the API listens on. The default comes from LOBBY_PORT.
func WithPort(port string) Option {
	return Option{
		serverOption: server.WithPort(port),
	}
}

// WithAuthenticator replaces the caller-identity resolver on the server.
func WithAuthenticator(auth server.Authenticator) Option {
	return Option{
		serverOption: server.WithAuthenticator(auth),
	}
}

// WithPlayers sets the identity directory used to resolve user ids. The default is
// an empty in-memory directory, only useful for local experiments.
func WithPlayers(players player.Directory) Option {
	return Option{
		engineOption: func(e *Engine) {
			e.players = players
		},
	}
}

// WithStore replaces the Redis-backed store. Anything satisfying storage.Store
// works; the registries never reach around the interface.
func WithStore(store storage.Store) Option {
	return Option{
		engineOption: func(e *Engine) {
			e.store = store
		},
	}
}

// WithTickChannel sets the channel that drives match scheduler ticks. If unset, the
// scheduler ticks at the configured MATCH_INTERVAL. Tests pass in a channel they
// control for fine-grained control over when pairing scans run.
func WithTickChannel(ch <-chan time.Time) Option {
	return Option{
		schedulerOption: match.WithTickChannel(ch),
	}
}

// WithTickDoneChannel sets a channel that receives the number of lobbies created
// after each completed scheduler tick. Useful in tests when assertions need to be
// performed at the end of a tick.
func WithTickDoneChannel(ch chan<- int) Option {
	return Option{
		schedulerOption: match.WithTickDoneChannel(ch),
	}
}

// WithRand sets the randomness source for the pairing shuffle.
func WithRand(rng *rand.Rand) Option {
	return Option{
		schedulerOption: match.WithRand(rng),
	}
}

func separateOptions(opts []Option) (
	serverOptions []server.Option,
	schedulerOptions []match.Option,
	engineOptions []func(*Engine),
) {
	for _, opt := range opts {
		if opt.serverOption != nil {
			serverOptions = append(serverOptions, opt.serverOption)
		}
		if opt.schedulerOption != nil {
			schedulerOptions = append(schedulerOptions, opt.schedulerOption)
		}
		if opt.engineOption != nil {
			engineOptions = append(engineOptions, opt.engineOption)
		}
	}
	return serverOptions, schedulerOptions, engineOptions
}
