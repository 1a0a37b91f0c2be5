// Package player defines the read-only view of the external identity store. The
// engine never mutates identity data; it only resolves user ids to player refs.
package player

import (
	"context"
	"errors"
)

var ErrUnknownPlayer = errors.New("unknown player")

// Ref is the slice of a player record the matchmaking flows care about.
type Ref struct {
	UserID   string `json:"userId"`
	PlayerID string `json:"playerId"`
	Handle   string `json:"handle"`
}

// Directory looks players up in the external identity store.
type Directory interface {
	ByUserID(ctx context.Context, userID string) (Ref, error)
}

// StaticDirectory is an in-memory Directory for tests and local development.
type StaticDirectory map[string]Ref

func (d StaticDirectory) ByUserID(_ context.Context, userID string) (Ref, error) {
	ref, ok := d[userID]
	if !ok {
		return Ref{}, ErrUnknownPlayer
	}
	return ref, nil
}
