package server

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"pkg.world.dev/lobby/events"
	"pkg.world.dev/lobby/invite"
	"pkg.world.dev/lobby/player"
	"pkg.world.dev/lobby/team"
)

// RegisterTeamRequest is the body for POST /teams/register.
type RegisterTeamRequest struct {
	Name string `json:"name"`
}

// InvitationLinkResponse is returned from GET /teams/invite.
type InvitationLinkResponse struct {
	InvitationLink string `json:"invitationLink"`
}

func (s *Server) handleRegisterTeam(c *fiber.Ctx) error {
	var req RegisterTeamRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "team name is required")
	}
	created, err := s.teams.Create(c.Context(), caller(c), req.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(created)
}

func (s *Server) handleUpdateTeam(c *fiber.Ctx) error {
	leader := caller(c)
	existing, err := s.teams.GetByPlayer(c.Context(), leader.UserID)
	if err != nil || existing.Leader.UserID != leader.UserID {
		return fiber.NewError(fiber.StatusNotFound, "No team exists")
	}

	var updated team.Team
	if err := c.BodyParser(&updated); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if updated.ID != existing.ID {
		return fiber.NewError(fiber.StatusBadRequest, "cannot update a different team")
	}
	if err := s.teams.Save(c.Context(), &updated); err != nil {
		return httpError(err)
	}
	return c.JSON(updated)
}

func (s *Server) handleFetchTeam(c *fiber.Ctx) error {
	t, err := s.teams.GetByPlayer(c.Context(), caller(c).UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(t)
}

func (s *Server) handleInviteSend(c *fiber.Ctx) error {
	inviter := caller(c)
	inviteeUserID := c.Query("playerUserId")
	if inviteeUserID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "playerUserId is required")
	}
	invitee, t, err := s.validateInviteRequest(c, inviter, inviteeUserID)
	if err != nil {
		return inviteHTTPError(err)
	}

	link, err := s.issuer.Link(t.ID, invitee)
	if err != nil {
		return httpError(err)
	}
	s.hub.Send(invitee.UserID, events.TypeTeamInvitation, events.Message{
		Message: "You have been invited to join a team",
		Data:    fiber.Map{"invitationLink": link},
	})
	return c.JSON(InvitationLinkResponse{InvitationLink: link})
}

func (s *Server) handleInvitationAccept(c *fiber.Ctx) error {
	acting := caller(c)
	t, err := s.validateInvitation(c, acting)
	if err != nil {
		return inviteHTTPError(err)
	}

	next := t.Clone()
	next.Members = append(next.Members, team.Member{
		Player: acting,
		Status: team.MemberStatusInactive,
	})
	if err := s.teams.SaveCAS(c.Context(), t, next); err != nil {
		return httpError(err)
	}

	s.hub.Send(next.Leader.UserID, events.TypeTeamInvitationAccept, events.Message{
		Message: acting.Handle + " has accepted your invitation",
		Data:    fiber.Map{"team": next},
	})
	for _, m := range next.Members {
		s.hub.Send(m.Player.UserID, events.TypeTeamInvitationAccept, events.Message{
			Message: acting.Handle + " has joined",
			Data:    fiber.Map{"team": next},
		})
	}
	return c.JSON(next)
}

func (s *Server) handleInvitationReject(c *fiber.Ctx) error {
	acting := caller(c)
	t, err := s.validateInvitation(c, acting)
	if err != nil {
		return inviteHTTPError(err)
	}
	// Rejection mutates nothing; the leader is simply told.
	s.hub.Send(t.Leader.UserID, events.TypeTeamInvitationReject, events.Message{
		Message: acting.Handle + " has rejected your invitation",
		Data:    fiber.Map{"team": t},
	})
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleFetchLobby(c *fiber.Ctx) error {
	l, err := s.lobbies.GetByPlayer(c.Context(), caller(c).UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(l)
}

// validateInviteRequest checks an invitation may be sent: the invitee exists and is
// not the inviter, and the inviter's team has a free slot.
func (s *Server) validateInviteRequest(c *fiber.Ctx, inviter player.Ref, inviteeUserID string) (player.Ref, *team.Team, error) {
	if inviteeUserID == inviter.UserID {
		return player.Ref{}, nil, invite.ErrSelfInvite
	}
	invitee, err := s.players.ByUserID(c.Context(), inviteeUserID)
	if err != nil {
		return player.Ref{}, nil, err
	}
	t, err := s.teams.GetByPlayer(c.Context(), inviter.UserID)
	if err != nil {
		return player.Ref{}, nil, err
	}
	if len(t.Members) >= s.capacity {
		return player.Ref{}, nil, team.ErrTeamFull
	}
	return invitee, t, nil
}

// validateInvitation verifies the token from the request, checks it was issued to
// the acting player, and loads the team it refers to. Accepting and rejecting run
// the same checks, so a reject against a full or already-joined team fails the
// same way an accept would.
func (s *Server) validateInvitation(c *fiber.Ctx, acting player.Ref) (*team.Team, error) {
	claims, err := s.issuer.Verify(c.Query("token"))
	if err != nil {
		return nil, err
	}
	if claims.InviteeUserID != acting.UserID {
		return nil, invite.ErrWrongInvitee
	}
	t, err := s.teams.Get(c.Context(), claims.TeamID)
	if err != nil {
		return nil, err
	}
	if len(t.Members) >= s.capacity {
		return nil, team.ErrTeamFull
	}
	if t.HasMember(acting.UserID) {
		return nil, team.ErrAlreadyInTeam
	}
	return t, nil
}

func (s *Server) persistChat(ctx context.Context, lobbyID, userID, message string) error {
	_, err := s.lobbies.AppendChat(ctx, lobbyID, userID, message)
	return err
}
