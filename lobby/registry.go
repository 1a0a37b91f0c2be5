package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"pkg.world.dev/lobby/storage"
	"pkg.world.dev/lobby/team"
)

const (
	lobbyKeyPrefix  = "lobby:"
	playerKeyPrefix = "lobby-player:"
)

// Registry stores lobbies in the ephemeral store. Mirroring the team registry's
// indexing strategy, a reverse index maps every participating player's user id to the
// lobby key so any participant can fetch the lobby without knowing its id.
type Registry struct {
	store storage.Store
}

func NewRegistry(store storage.Store) *Registry {
	return &Registry{store: store}
}

// Create stores a fresh lobby for the two paired teams and indexes every
// participant of both rosters.
func (r *Registry) Create(ctx context.Context, team1, team2 team.Team) (*Lobby, error) {
	l := &Lobby{
		ID:     uuid.NewString(),
		Team1:  team1,
		Team2:  team2,
		Chats:  []ChatMessage{},
		Status: StatusActive,
	}
	for _, ref := range append(team1.Roster(), team2.Roster()...) {
		if err := r.store.Set(ctx, playerKey(ref.UserID), []byte(lobbyKey(l.ID))); err != nil {
			return nil, err
		}
	}
	if err := r.save(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *Registry) Get(ctx context.Context, lobbyID string) (*Lobby, error) {
	return r.getByKey(ctx, lobbyKey(lobbyID))
}

// GetByPlayer looks a lobby up via the participant's reverse index entry.
func (r *Registry) GetByPlayer(ctx context.Context, userID string) (*Lobby, error) {
	key, err := r.store.Get(ctx, playerKey(userID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoLobby
	}
	if err != nil {
		return nil, err
	}
	return r.getByKey(ctx, string(key))
}

// AppendChat appends a message to the lobby's chat log, dropping the oldest entries
// beyond the retention cap. Chat is last-write-wins; a lost message under heavy
// concurrent append is acceptable where a lost status change is not.
func (r *Registry) AppendChat(ctx context.Context, lobbyID, userID, message string) (*ChatMessage, error) {
	l, err := r.Get(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	msg := ChatMessage{
		ID:      uuid.NewString(),
		Message: message,
		SentAt:  time.Now().UTC(),
		SentBy:  userID,
	}
	l.Chats = append(l.Chats, msg)
	if len(l.Chats) > maxChatLog {
		l.Chats = l.Chats[len(l.Chats)-maxChatLog:]
	}
	if err := r.save(ctx, l); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SetCoinToss records the played coin toss on the lobby.
func (r *Registry) SetCoinToss(ctx context.Context, lobbyID string, toss CoinToss) (*Lobby, error) {
	return r.update(ctx, lobbyID, func(l *Lobby) {
		l.CoinToss = &toss
	})
}

// SetRockPaperScissors records the played rock-paper-scissors match on the lobby.
func (r *Registry) SetRockPaperScissors(ctx context.Context, lobbyID string, m RPSMatch) (*Lobby, error) {
	return r.update(ctx, lobbyID, func(l *Lobby) {
		l.RockPaperScissors = &m
	})
}

// SetStatus moves the lobby through its lifecycle.
func (r *Registry) SetStatus(ctx context.Context, lobbyID string, status Status) (*Lobby, error) {
	return r.update(ctx, lobbyID, func(l *Lobby) {
		l.Status = status
	})
}

func (r *Registry) update(ctx context.Context, lobbyID string, mutate func(*Lobby)) (*Lobby, error) {
	l, err := r.Get(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	mutate(l)
	if err := r.save(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *Registry) save(ctx context.Context, l *Lobby) error {
	bz, err := json.Marshal(l)
	if err != nil {
		return eris.Wrap(err, "failed to encode lobby")
	}
	return r.store.Set(ctx, lobbyKey(l.ID), bz)
}

func (r *Registry) getByKey(ctx context.Context, key string) (*Lobby, error) {
	bz, err := r.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoLobby
	}
	if err != nil {
		return nil, err
	}
	l := new(Lobby)
	if err := json.Unmarshal(bz, l); err != nil {
		return nil, eris.Wrapf(err, "failed to decode lobby at %q", key)
	}
	return l, nil
}

func lobbyKey(lobbyID string) string {
	return lobbyKeyPrefix + lobbyID
}

func playerKey(userID string) string {
	return playerKeyPrefix + userID
}
