package team

import (
	"errors"

	"pkg.world.dev/lobby/player"
)

var (
	ErrNoTeam        = errors.New("no team exists")
	ErrTeamFull      = errors.New("team is full")
	ErrAlreadyInTeam = errors.New("player already in team")
)

type Status string

const (
	StatusInactive   Status = "inactive"
	StatusSearching  Status = "searching"
	StatusMatchFound Status = "matchfound"
)

// Member is a player on a team's roster. The member status tracks the player's
// readiness within the team and is independent of the team's matchmaking status.
type Member struct {
	Player player.Ref `json:"player"`
	Status string     `json:"status"`
}

const MemberStatusInactive = "inactive"

// Team is a named group with one leader and a capacity-bounded roster. The leader is
// implicitly part of the roster and does not appear in Members.
type Team struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Leader  player.Ref `json:"leader"`
	Members []Member   `json:"members"`
	Status  Status     `json:"status"`
}

// HasMember reports whether the given user is on the roster, including the leader.
func (t *Team) HasMember(userID string) bool {
	if t.Leader.UserID == userID {
		return true
	}
	for _, m := range t.Members {
		if m.Player.UserID == userID {
			return true
		}
	}
	return false
}

// Roster returns the leader followed by every member.
func (t *Team) Roster() []player.Ref {
	refs := make([]player.Ref, 0, len(t.Members)+1)
	refs = append(refs, t.Leader)
	for _, m := range t.Members {
		refs = append(refs, m.Player)
	}
	return refs
}

// Clone returns a deep copy so callers can mutate a team without aliasing the
// original's roster slice.
func (t *Team) Clone() *Team {
	clone := *t
	clone.Members = make([]Member, len(t.Members))
	copy(clone.Members, t.Members)
	return &clone
}
