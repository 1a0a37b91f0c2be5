// Package match pairs waiting teams on a recurring tick, producing lobbies.
package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/lobby/events"
	"pkg.world.dev/lobby/lobby"
	"pkg.world.dev/lobby/storage"
	"pkg.world.dev/lobby/team"
)

const DefaultTickInterval = time.Second

// Notifier pushes typed events to a user's real-time channel.
type Notifier interface {
	Send(userID string, eventType events.Type, msg events.Message)
}

// Scheduler is the recurring background task that scans for teams waiting to be
// matched, pairs them, and creates lobbies. Ticks are processed one at a time on a
// single goroutine, so a slow tick delays the next firing instead of overlapping it;
// time.Tick drops firings that were missed in the meantime.
type Scheduler struct {
	teams    *team.Registry
	lobbies  *lobby.Registry
	notifier Notifier

	tickChannel <-chan time.Time
	// tickDone, if set, receives the number of lobbies created after every tick.
	// Tests use it to drive ticks deterministically.
	tickDone chan<- int
	rng      *rand.Rand

	started  atomic.Bool
	shutdown chan struct{}
	stopped  chan struct{}

	log zerolog.Logger
}

type Option func(*Scheduler)

// WithTickChannel sets the channel whose messages drive scheduler ticks. Without
// this option the scheduler ticks at DefaultTickInterval.
func WithTickChannel(ch <-chan time.Time) Option {
	return func(s *Scheduler) {
		s.tickChannel = ch
	}
}

// WithTickDoneChannel sets a channel that receives the number of lobbies created
// after each completed tick.
func WithTickDoneChannel(ch chan<- int) Option {
	return func(s *Scheduler) {
		s.tickDone = ch
	}
}

// WithRand sets the randomness source used for the pairing shuffle.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) {
		s.rng = rng
	}
}

func NewScheduler(teams *team.Registry, lobbies *lobby.Registry, notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		teams:       teams,
		lobbies:     lobbies,
		notifier:    notifier,
		tickChannel: time.Tick(DefaultTickInterval), //nolint:staticcheck // scheduler lives for the process
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		shutdown:    make(chan struct{}),
		stopped:     make(chan struct{}),
		log:         log.With().Str("component", "match-scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scheduler loop. Each message on the tick channel triggers one
// pairing scan. Failures inside a tick are logged and the tick abandoned; the
// scheduler self-heals on the next interval.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.log.Info().Msg("Match scheduler started")
	go func() {
		defer close(s.stopped)
		for {
			select {
			case <-s.shutdown:
				return
			case <-ctx.Done():
				return
			case _, ok := <-s.tickChannel:
				if !ok {
					s.log.Warn().Msg("tick channel closed; match scheduler stopping")
					return
				}
				created, err := s.runTick(ctx)
				if err != nil {
					s.log.Error().Err(err).Msg("matchmaking tick abandoned")
				}
				if s.tickDone != nil {
					// A stalled reader must never hold up shutdown.
					select {
					case s.tickDone <- created:
					case <-s.shutdown:
						return
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
}

// Shutdown stops the loop and waits for it to exit. Safe to call more than once.
func (s *Scheduler) Shutdown() {
	if !s.started.Load() {
		return
	}
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
	<-s.stopped
	s.log.Info().Msg("Match scheduler stopped")
}

// runTick performs one pairing scan. It returns the number of lobbies created and
// the first hard error encountered; pairs not yet processed when an error occurs
// are left untouched for the next tick.
func (s *Scheduler) runTick(ctx context.Context) (int, error) {
	candidates, err := s.teams.Searching(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "failed to scan for searching teams")
	}
	s.log.Debug().Int("teams_available", len(candidates)).Msg("teams available for match")
	if len(candidates) < 2 {
		return 0, nil
	}

	// A uniform shuffle keeps pairing fair across ticks; without it, teams near the
	// end of a scan would be perpetually disadvantaged by positional bias.
	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	created := 0
	for i := 0; i+1 < len(candidates); i += 2 {
		if err := s.pair(ctx, candidates[i], candidates[i+1]); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				// One of the teams changed between the scan and the claim (an
				// invitation accept, a manual status change). Skip the pair; both
				// teams are reconsidered next tick.
				s.log.Debug().Str("team1", candidates[i].ID).Str("team2", candidates[i+1].ID).
					Msg("pair skipped, team changed since scan")
				continue
			}
			return created, err
		}
		created++
	}
	// With an odd candidate count the last team stays searching and is reconsidered
	// on the next tick.
	return created, nil
}

// pair claims both teams for the match, creates the lobby, and notifies both
// leaders. Claims use compare-and-swap so a concurrent writer can't be silently
// overwritten; if the second claim fails the first is released.
func (s *Scheduler) pair(ctx context.Context, team1, team2 *team.Team) error {
	claimed1 := team1.Clone()
	claimed1.Status = team.StatusMatchFound
	if err := s.teams.SaveCAS(ctx, team1, claimed1); err != nil {
		return err
	}

	claimed2 := team2.Clone()
	claimed2.Status = team.StatusMatchFound
	if err := s.teams.SaveCAS(ctx, team2, claimed2); err != nil {
		release := claimed1.Clone()
		release.Status = team.StatusSearching
		if relErr := s.teams.SaveCAS(ctx, claimed1, release); relErr != nil {
			s.log.Warn().Err(relErr).Str("team", claimed1.ID).
				Msg("failed to release claimed team; it will sit out until updated")
		}
		return err
	}

	match, err := s.lobbies.Create(ctx, *claimed1, *claimed2)
	if err != nil {
		return eris.Wrap(err, "failed to create lobby for pair")
	}
	s.log.Info().Str("lobby_id", match.ID).Str("team1", claimed1.Name).Str("team2", claimed2.Name).
		Msg("teams paired")

	s.notifyLeader(claimed1, claimed2, match.ID)
	s.notifyLeader(claimed2, claimed1, match.ID)
	return nil
}

func (s *Scheduler) notifyLeader(own, opposing *team.Team, lobbyID string) {
	s.notifier.Send(own.Leader.UserID, events.TypeFoundMatch, events.Message{
		Message: fmt.Sprintf("Team %s is available for match", opposing.Name),
		Data: map[string]any{
			"team":    opposing,
			"lobbyId": lobbyID,
		},
	})
}
