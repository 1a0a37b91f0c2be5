package server_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"gotest.tools/v3/assert"

	"pkg.world.dev/lobby/events"
	"pkg.world.dev/lobby/invite"
	"pkg.world.dev/lobby/lobby"
	"pkg.world.dev/lobby/player"
	"pkg.world.dev/lobby/server"
	"pkg.world.dev/lobby/storage"
	"pkg.world.dev/lobby/team"
)

const testCapacity = 5

type fixture struct {
	srv     *server.Server
	teams   *team.Registry
	lobbies *lobby.Registry
	issuer  *invite.Issuer
	players player.StaticDirectory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	store := storage.NewRedisFromClient(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		"", 6*time.Hour,
	)
	t.Cleanup(func() { _ = store.Close() })

	players := player.StaticDirectory{}
	for _, handle := range []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf"} {
		players[handle] = player.Ref{
			UserID:   handle,
			PlayerID: "player-" + handle,
			Handle:   handle,
		}
	}

	teams := team.NewRegistry(store)
	lobbies := lobby.NewRegistry(store)
	issuer := invite.NewIssuer([]byte("test-secret"), "https://game.test/join", time.Hour)
	srv := server.New(teams, lobbies, issuer, events.NewHub(), events.NewChatRelay(),
		players, testCapacity)
	return &fixture{
		srv:     srv,
		teams:   teams,
		lobbies: lobbies,
		issuer:  issuer,
		players: players,
	}
}

func (f *fixture) request(t *testing.T, method, target, userID string, body any) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		assert.NilError(t, err)
		reader = strings.NewReader(string(encoded))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	resp, err := f.srv.App().Test(req)
	assert.NilError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	assert.NilError(t, err)
	return string(body)
}

func (f *fixture) inviteToken(t *testing.T, teamID, inviteeUserID string) string {
	t.Helper()
	link, err := f.issuer.Link(teamID, f.players[inviteeUserID])
	assert.NilError(t, err)
	parsed, err := url.Parse(link)
	assert.NilError(t, err)
	return parsed.Query().Get("token")
}

func TestRegisterAndFetchTeam(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodPost, "/teams/register", "alpha",
		server.RegisterTeamRequest{Name: "the alphas"})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	created := decode[team.Team](t, resp)
	assert.Equal(t, created.Name, "the alphas")
	assert.Equal(t, created.Leader.UserID, "alpha")
	assert.Equal(t, created.Status, team.StatusInactive)

	resp = f.request(t, http.MethodGet, "/teams", "alpha", nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	fetched := decode[team.Team](t, resp)
	assert.Equal(t, fetched.ID, created.ID)
}

func TestFetchTeamWithoutOne(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodGet, "/teams", "alpha", nil)
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
	assert.Assert(t, strings.Contains(errorMessage(t, resp), "No team exists"))
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodGet, "/teams", "", nil)
	assert.Equal(t, resp.StatusCode, http.StatusUnauthorized)
}

func TestUpdateTeamLeaderOnly(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodPost, "/teams/register", "alpha",
		server.RegisterTeamRequest{Name: "the alphas"})
	created := decode[team.Team](t, resp)

	created.Status = team.StatusSearching
	resp = f.request(t, http.MethodPatch, "/teams", "alpha", created)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	updated := decode[team.Team](t, resp)
	assert.Equal(t, updated.Status, team.StatusSearching)

	// A player without a team cannot update anything.
	resp = f.request(t, http.MethodPatch, "/teams", "bravo", created)
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestInviteValidation(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodPost, "/teams/register", "alpha",
		server.RegisterTeamRequest{Name: "the alphas"})
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	resp = f.request(t, http.MethodGet, "/teams/invite?playerUserId=alpha", "alpha", nil)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	assert.Assert(t, strings.Contains(errorMessage(t, resp), "You cannot invite yourself"))

	resp = f.request(t, http.MethodGet, "/teams/invite?playerUserId=nobody", "alpha", nil)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	assert.Assert(t, strings.Contains(errorMessage(t, resp), "Player not found"))

	// bravo has no team to invite into.
	resp = f.request(t, http.MethodGet, "/teams/invite?playerUserId=charlie", "bravo", nil)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	assert.Assert(t, strings.Contains(errorMessage(t, resp), "No team exists to add player in"))
}

func TestInviteReturnsLink(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodPost, "/teams/register", "alpha",
		server.RegisterTeamRequest{Name: "the alphas"})
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	resp = f.request(t, http.MethodGet, "/teams/invite?playerUserId=bravo", "alpha", nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	link := decode[server.InvitationLinkResponse](t, resp)
	assert.Assert(t, strings.HasPrefix(link.InvitationLink, "https://game.test/join?token="))
}

func TestAcceptInvitation(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodPost, "/teams/register", "alpha",
		server.RegisterTeamRequest{Name: "the alphas"})
	created := decode[team.Team](t, resp)

	token := f.inviteToken(t, created.ID, "bravo")
	resp = f.request(t, http.MethodGet, "/teams/invitation/accept?token="+url.QueryEscape(token),
		"bravo", nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	joined := decode[team.Team](t, resp)
	assert.Equal(t, len(joined.Members), 1)
	assert.Equal(t, joined.Members[0].Player.UserID, "bravo")
	assert.Equal(t, joined.Members[0].Status, team.MemberStatusInactive)

	// Replaying the same token must not add the player twice.
	resp = f.request(t, http.MethodGet, "/teams/invitation/accept?token="+url.QueryEscape(token),
		"bravo", nil)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	assert.Assert(t, strings.Contains(errorMessage(t, resp), "Player already in team"))
}

func TestAcceptInvitationWrongPlayer(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodPost, "/teams/register", "alpha",
		server.RegisterTeamRequest{Name: "the alphas"})
	created := decode[team.Team](t, resp)

	token := f.inviteToken(t, created.ID, "bravo")
	resp = f.request(t, http.MethodGet, "/teams/invitation/accept?token="+url.QueryEscape(token),
		"charlie", nil)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	assert.Assert(t, strings.Contains(errorMessage(t, resp), "Invalid invitation"))
}

func TestAcceptInvitationFullTeam(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodPost, "/teams/register", "alpha",
		server.RegisterTeamRequest{Name: "the alphas"})
	created := decode[team.Team](t, resp)

	members := []string{"bravo", "charlie", "delta", "echo", "foxtrot"}
	for _, userID := range members {
		token := f.inviteToken(t, created.ID, userID)
		resp = f.request(t, http.MethodGet,
			"/teams/invitation/accept?token="+url.QueryEscape(token), userID, nil)
		assert.Equal(t, resp.StatusCode, http.StatusOK)
	}

	token := f.inviteToken(t, created.ID, "golf")
	resp = f.request(t, http.MethodGet, "/teams/invitation/accept?token="+url.QueryEscape(token),
		"golf", nil)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	assert.Assert(t, strings.Contains(errorMessage(t, resp), "Team is full"))
}

func TestRejectInvitation(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodPost, "/teams/register", "alpha",
		server.RegisterTeamRequest{Name: "the alphas"})
	created := decode[team.Team](t, resp)

	token := f.inviteToken(t, created.ID, "bravo")
	resp = f.request(t, http.MethodGet, "/teams/invitation/reject?token="+url.QueryEscape(token),
		"bravo", nil)
	assert.Equal(t, resp.StatusCode, http.StatusNoContent)

	// The roster is untouched.
	resp = f.request(t, http.MethodGet, "/teams", "alpha", nil)
	fetched := decode[team.Team](t, resp)
	assert.Equal(t, len(fetched.Members), 0)
}

func TestRejectInvitationAfterJoining(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodPost, "/teams/register", "alpha",
		server.RegisterTeamRequest{Name: "the alphas"})
	created := decode[team.Team](t, resp)

	token := f.inviteToken(t, created.ID, "bravo")
	resp = f.request(t, http.MethodGet, "/teams/invitation/accept?token="+url.QueryEscape(token),
		"bravo", nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	// A member cannot reject the invitation they already accepted.
	resp = f.request(t, http.MethodGet, "/teams/invitation/reject?token="+url.QueryEscape(token),
		"bravo", nil)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	assert.Assert(t, strings.Contains(errorMessage(t, resp), "Player already in team"))
}

func TestRejectInvitationFullTeam(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodPost, "/teams/register", "alpha",
		server.RegisterTeamRequest{Name: "the alphas"})
	created := decode[team.Team](t, resp)

	for _, userID := range []string{"bravo", "charlie", "delta", "echo", "foxtrot"} {
		token := f.inviteToken(t, created.ID, userID)
		resp = f.request(t, http.MethodGet,
			"/teams/invitation/accept?token="+url.QueryEscape(token), userID, nil)
		assert.Equal(t, resp.StatusCode, http.StatusOK)
	}

	token := f.inviteToken(t, created.ID, "golf")
	resp = f.request(t, http.MethodGet, "/teams/invitation/reject?token="+url.QueryEscape(token),
		"golf", nil)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	assert.Assert(t, strings.Contains(errorMessage(t, resp), "Team is full"))
}

func TestFetchLobby(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodGet, "/lobbies", "alpha", nil)
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
	assert.Assert(t, strings.Contains(errorMessage(t, resp), "No lobby exists"))

	ctx := context.Background()
	t1, err := f.teams.Create(ctx, f.players["alpha"], "the alphas")
	assert.NilError(t, err)
	t2, err := f.teams.Create(ctx, f.players["bravo"], "the bravos")
	assert.NilError(t, err)
	created, err := f.lobbies.Create(ctx, *t1, *t2)
	assert.NilError(t, err)

	resp = f.request(t, http.MethodGet, "/lobbies", "alpha", nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	fetched := decode[lobby.Lobby](t, resp)
	assert.Equal(t, fetched.ID, created.ID)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
}
