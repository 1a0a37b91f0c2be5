package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/lobby/invite"
	"pkg.world.dev/lobby/lobby"
	"pkg.world.dev/lobby/player"
	"pkg.world.dev/lobby/storage"
	"pkg.world.dev/lobby/team"
)

// httpError maps the domain's sentinel errors onto the HTTP taxonomy. Anything
// unrecognized is logged and surfaced as a bare 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, team.ErrNoTeam):
		return fiber.NewError(fiber.StatusNotFound, "No team exists")
	case errors.Is(err, lobby.ErrNoLobby):
		return fiber.NewError(fiber.StatusNotFound, "No lobby exists")
	case errors.Is(err, team.ErrTeamFull):
		return fiber.NewError(fiber.StatusBadRequest, "Team is full")
	case errors.Is(err, team.ErrAlreadyInTeam):
		return fiber.NewError(fiber.StatusBadRequest, "Player already in team")
	case errors.Is(err, invite.ErrSelfInvite):
		return fiber.NewError(fiber.StatusBadRequest, "You cannot invite yourself")
	case errors.Is(err, player.ErrUnknownPlayer):
		return fiber.NewError(fiber.StatusBadRequest, "Player not found")
	case errors.Is(err, invite.ErrExpired):
		return fiber.NewError(fiber.StatusBadRequest, "Invitation expired")
	case errors.Is(err, invite.ErrInvalidToken), errors.Is(err, invite.ErrWrongInvitee):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid invitation")
	case errors.Is(err, storage.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, "team changed, please retry")
	}
	log.Error().Err(err).Msg("request failed")
	return fiber.ErrInternalServerError
}

// inviteHTTPError is httpError for the invitation flows, where a missing team reads
// differently.
func inviteHTTPError(err error) error {
	if errors.Is(err, team.ErrNoTeam) {
		return fiber.NewError(fiber.StatusBadRequest, "No team exists to add player in")
	}
	return httpError(err)
}
