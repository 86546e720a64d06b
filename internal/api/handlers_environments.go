package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ushadow/orchestrator/internal/environments"
)

// listEnvironments scans the container runtime and the stacks directory
// and returns the discovered infrastructure and environment groups.
func (s *Server) listEnvironments(c echo.Context) error {
	discovery, err := s.environments.Discover(c.Request().Context())
	if err != nil {
		return InternalError("Failed to discover environments", err.Error())
	}
	return c.JSON(http.StatusOK, discovery)
}

// createEnvironment provisions a new environment with the requested
// strategy. Provisioning runs synchronously; failures are recorded in
// the creation tracker until dismissed.
func (s *Server) createEnvironment(c echo.Context) error {
	var req CreateEnvironmentRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	env, err := s.environments.Create(c.Request().Context(), req.Name, environments.CreateRequest{
		Strategy:   environments.Strategy(req.Strategy),
		ServerMode: req.ServerMode,
		Path:       req.Path,
		Branch:     req.Branch,
	})
	if err != nil {
		switch {
		case errors.Is(err, environments.ErrInvalidName):
			return BadRequestError("Invalid environment name", err.Error())
		case errors.Is(err, environments.ErrNotACheckout):
			return BadRequestError("Not a stack checkout", err.Error())
		case errors.Is(err, environments.ErrAlreadyExists):
			return ConflictError("Environment already exists", err.Error())
		default:
			return InternalError("Failed to create environment", err.Error())
		}
	}

	s.broadcast(EventEnvironmentCreated, env)
	return c.JSON(http.StatusCreated, env)
}

// listCreations returns in-flight and failed environment creations.
func (s *Server) listCreations(c echo.Context) error {
	creations := s.environments.Creations()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"creations": creations,
		"count":     len(creations),
	})
}

// dismissCreation drops a failed creation record.
func (s *Server) dismissCreation(c echo.Context) error {
	name := c.Param("name")

	if err := s.environments.Dismiss(name); err != nil {
		if errors.Is(err, environments.ErrUnknownEnvironment) {
			return NotFoundError("Creation record", name)
		}
		return ConflictError("Creation still in flight", err.Error())
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Creation record for %s dismissed", name),
	})
}

// startEnvironment starts every stopped container belonging to the
// named environment.
func (s *Server) startEnvironment(c echo.Context) error {
	name := c.Param("name")

	if err := s.environments.Start(c.Request().Context(), name); err != nil {
		if errors.Is(err, environments.ErrUnknownEnvironment) {
			return NotFoundError("Environment", name)
		}
		return InternalError("Failed to start environment", err.Error())
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Environment %s starting", name),
	})
}

// stopEnvironment stops every running container belonging to the named
// environment. Shared infrastructure is never touched.
func (s *Server) stopEnvironment(c echo.Context) error {
	name := c.Param("name")

	if err := s.environments.Stop(c.Request().Context(), name); err != nil {
		if errors.Is(err, environments.ErrUnknownEnvironment) {
			return NotFoundError("Environment", name)
		}
		return InternalError("Failed to stop environment", err.Error())
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Environment %s stopping", name),
	})
}

// openEnvironment resolves the environment's URL and opens it in the
// system browser. The URL is returned so clients can present it too.
func (s *Server) openEnvironment(c echo.Context) error {
	name := c.Param("name")

	discovery, err := s.environments.Discover(c.Request().Context())
	if err != nil {
		return InternalError("Failed to discover environments", err.Error())
	}

	for _, env := range discovery.Environments {
		if env.Name != name {
			continue
		}
		url, err := environments.ResolveURL(env)
		if err != nil {
			return BadRequestError("Environment has no reachable URL", err.Error())
		}
		if err := s.environments.OpenInApp(env); err != nil {
			return InternalError("Failed to open environment", err.Error())
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": true,
			"url":     url,
		})
	}

	return NotFoundError("Environment", name)
}

// broadcast pushes an event to the hub, tolerating marshal failures.
func (s *Server) broadcast(eventType EventType, data interface{}) {
	if err := s.hub.BroadcastEvent(Event{Type: eventType, Data: data}); err != nil {
		log.Printf("broadcast %s failed: %v", eventType, err)
	}
}
