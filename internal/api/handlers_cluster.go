package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ushadow/orchestrator/internal/cluster"
	"github.com/ushadow/orchestrator/models"
)

// listNodes returns the current roster snapshot. The snapshot is relayed
// from the leader and may be stale by up to one poll interval.
func (s *Server) listNodes(c echo.Context) error {
	nodes, fetchedAt := s.roster.Nodes()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"nodes":      nodes,
		"count":      len(nodes),
		"fetched_at": fetchedAt,
	})
}

// refreshNodes forces an immediate roster fetch.
func (s *Server) refreshNodes(c echo.Context) error {
	if err := s.roster.Refresh(c.Request().Context()); err != nil {
		return InternalError("Failed to refresh node roster", err.Error())
	}

	nodes, fetchedAt := s.roster.Nodes()
	s.broadcast(EventNodesRefreshed, nodes)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"nodes":      nodes,
		"count":      len(nodes),
		"fetched_at": fetchedAt,
	})
}

// removeNode deregisters a node from the fleet. The leader cannot be
// removed.
func (s *Server) removeNode(c echo.Context) error {
	hostname := c.Param("hostname")

	if err := s.roster.RemoveNode(c.Request().Context(), hostname); err != nil {
		switch {
		case errors.Is(err, cluster.ErrUnknownNode):
			return NotFoundError("Node", hostname)
		case errors.Is(err, cluster.ErrLeaderProtected):
			return ForbiddenError("Cannot remove leader", err.Error())
		default:
			return InternalError("Failed to remove node", err.Error())
		}
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Node %s removed", hostname),
	})
}

// createToken issues a new join token. The raw token appears in this
// response exactly once; only a hash is kept server-side.
func (s *Server) createToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	token, err := s.issuer.CreateToken(models.NodeRole(req.Role), req.MaxUses, req.ExpiresInHours)
	if err != nil {
		if errors.Is(err, cluster.ErrInvalidRole) {
			return BadRequestError("Invalid role", err.Error())
		}
		return InternalError("Failed to create join token", err.Error())
	}

	return c.JSON(http.StatusCreated, token)
}

// validateToken checks a presented join token and consumes one use.
func (s *Server) validateToken(c echo.Context) error {
	var req TokenValidateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	token, err := s.issuer.ValidateToken(req.Token)
	if err != nil {
		switch {
		case errors.Is(err, cluster.ErrExpiredToken):
			return ForbiddenError("Token expired", err.Error())
		case errors.Is(err, cluster.ErrTokenExhausted):
			return ForbiddenError("Token exhausted", err.Error())
		case errors.Is(err, cluster.ErrTokenRevoked):
			return ForbiddenError("Token revoked", err.Error())
		default:
			return ForbiddenError("Invalid token", cluster.ErrInvalidToken.Error())
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid":          true,
		"role":           token.Role,
		"uses_remaining": token.MaxUses - token.Uses,
	})
}

// revokeToken invalidates an issued token by its id.
func (s *Server) revokeToken(c echo.Context) error {
	id := c.Param("id")

	if err := s.issuer.Revoke(id); err != nil {
		return NotFoundError("Token", id)
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Token %s revoked", id),
	})
}
