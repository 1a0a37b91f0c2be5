package team

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"pkg.world.dev/lobby/player"
	"pkg.world.dev/lobby/storage"
)

const (
	teamKeyPrefix   = "team:"
	playerKeyPrefix = "team-player:"
)

// Registry stores teams in the ephemeral store. Teams are stored under a
// team-namespaced key; additionally a secondary index maps every roster member's user
// id to the team key so a team can be looked up by any of its players. The index is
// rewritten on every save so it stays consistent with membership changes.
type Registry struct {
	store storage.Store
}

func NewRegistry(store storage.Store) *Registry {
	return &Registry{store: store}
}

// Create registers a new team with an empty roster besides the leader.
func (r *Registry) Create(ctx context.Context, leader player.Ref, name string) (*Team, error) {
	t := &Team{
		ID:      uuid.NewString(),
		Name:    name,
		Leader:  leader,
		Members: []Member{},
		Status:  StatusInactive,
	}
	bz, err := json.Marshal(t)
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode team")
	}
	if err := r.store.Set(ctx, teamKey(t.ID), bz); err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, playerKey(leader.UserID), []byte(teamKey(t.ID))); err != nil {
		return nil, err
	}
	return t, nil
}

// Get looks a team up by its id.
func (r *Registry) Get(ctx context.Context, teamID string) (*Team, error) {
	return r.getByKey(ctx, teamKey(teamID))
}

// GetByPlayer looks a team up via the roster member's secondary index entry.
func (r *Registry) GetByPlayer(ctx context.Context, userID string) (*Team, error) {
	key, err := r.store.Get(ctx, playerKey(userID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoTeam
	}
	if err != nil {
		return nil, err
	}
	return r.getByKey(ctx, string(key))
}

// Save rewrites the team record and the secondary index entry for every current
// member. There is no transactional guarantee across the index writes; the team
// record itself is written last so a partially indexed team is still discoverable by
// id.
func (r *Registry) Save(ctx context.Context, t *Team) error {
	bz, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "failed to encode team")
	}
	if err := r.writeIndex(ctx, t); err != nil {
		return err
	}
	return r.store.Set(ctx, teamKey(t.ID), bz)
}

// SaveCAS writes next only if the stored record still matches prev. It returns
// storage.ErrConflict when another writer got there first; callers re-read and
// decide whether to retry. Both teams must share the same id.
func (r *Registry) SaveCAS(ctx context.Context, prev, next *Team) error {
	if prev.ID != next.ID {
		return eris.New("cannot swap teams with different ids")
	}
	prevBz, err := json.Marshal(prev)
	if err != nil {
		return eris.Wrap(err, "failed to encode team")
	}
	nextBz, err := json.Marshal(next)
	if err != nil {
		return eris.Wrap(err, "failed to encode team")
	}
	if err := r.store.CompareAndSwap(ctx, teamKey(next.ID), prevBz, nextBz); err != nil {
		return err
	}
	return r.writeIndex(ctx, next)
}

// All loads every stored team.
func (r *Registry) All(ctx context.Context) ([]*Team, error) {
	keys, err := r.store.ScanPrefix(ctx, teamKeyPrefix)
	if err != nil {
		return nil, err
	}
	teams := make([]*Team, 0, len(keys))
	for _, key := range keys {
		t, err := r.getByKey(ctx, key)
		if errors.Is(err, ErrNoTeam) {
			// Expired between the scan and the read.
			continue
		}
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, nil
}

// Searching returns every team currently waiting to be matched.
func (r *Registry) Searching(ctx context.Context) ([]*Team, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make([]*Team, 0, len(all))
	for _, t := range all {
		if t.Status == StatusSearching {
			candidates = append(candidates, t)
		}
	}
	return candidates, nil
}

func (r *Registry) getByKey(ctx context.Context, key string) (*Team, error) {
	bz, err := r.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoTeam
	}
	if err != nil {
		return nil, err
	}
	t := new(Team)
	if err := json.Unmarshal(bz, t); err != nil {
		return nil, eris.Wrapf(err, "failed to decode team at %q", key)
	}
	return t, nil
}

func (r *Registry) writeIndex(ctx context.Context, t *Team) error {
	for _, ref := range t.Roster() {
		if err := r.store.Set(ctx, playerKey(ref.UserID), []byte(teamKey(t.ID))); err != nil {
			return err
		}
	}
	return nil
}

func teamKey(teamID string) string {
	return teamKeyPrefix + teamID
}

func playerKey(userID string) string {
	return playerKeyPrefix + userID
}
