// Package invite mints and validates the signed, time-limited tokens that bind a
// specific team to a specific invitee.
package invite

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"

	"pkg.world.dev/lobby/player"
)

var (
	ErrInvalidToken = errors.New("invalid invitation")
	ErrExpired      = errors.New("invitation expired")
	ErrWrongInvitee = errors.New("invitation was issued to a different player")
	ErrSelfInvite   = errors.New("you cannot invite yourself")
)

// Claims are the validated contents of an invitation token. A token is only valid for
// the exact team/invitee pair it was issued for.
type Claims struct {
	TeamID        string
	InviteeUserID string
}

type tokenClaims struct {
	jwt.RegisteredClaims
	TeamID        string `json:"team_id"`
	InviteeUserID string `json:"invitee_user_id"`
}

// Issuer signs invitation tokens and embeds them in deep links. The clock is
// injectable so tests can expire tokens without sleeping.
type Issuer struct {
	secret  []byte
	baseURL string
	expiry  time.Duration
	now     func() time.Time
}

func NewIssuer(secret []byte, baseURL string, expiry time.Duration) *Issuer {
	return &Issuer{
		secret:  secret,
		baseURL: baseURL,
		expiry:  expiry,
		now:     time.Now,
	}
}

// Link returns a deep link carrying a signed token for the given team and invitee.
func (i *Issuer) Link(teamID string, invitee player.Ref) (string, error) {
	now := i.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
		},
		TeamID:        teamID,
		InviteeUserID: invitee.UserID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", eris.Wrap(err, "failed to sign invitation token")
	}
	return fmt.Sprintf("%s?token=%s", i.baseURL, url.QueryEscape(token)), nil
}

// Verify parses and validates a token, returning its claims.
func (i *Issuer) Verify(token string) (Claims, error) {
	parsed := new(tokenClaims)
	_, err := jwt.ParseWithClaims(token, parsed,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if parsed.TeamID == "" || parsed.InviteeUserID == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{TeamID: parsed.TeamID, InviteeUserID: parsed.InviteeUserID}, nil
}
