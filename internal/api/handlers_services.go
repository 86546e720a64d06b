package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ushadow/orchestrator/internal/lifecycle"
	"github.com/ushadow/orchestrator/internal/ports"
	"github.com/ushadow/orchestrator/internal/registry"
	"github.com/ushadow/orchestrator/internal/settings"
	"github.com/ushadow/orchestrator/models"
)

// ServiceSummary pairs a catalog entry with its live lifecycle view.
type ServiceSummary struct {
	Service models.ServiceInstance `json:"service"`
	State   lifecycle.ServiceView  `json:"state"`
}

// listServices returns every catalog service with its lifecycle view.
func (s *Server) listServices(c echo.Context) error {
	services := s.registry.Services()

	summaries := make([]ServiceSummary, 0, len(services))
	for _, svc := range services {
		view, err := s.lifecycle.View(svc.ServiceID)
		if err != nil {
			return InternalError("Failed to read service state", err.Error())
		}
		summaries = append(summaries, ServiceSummary{Service: svc, State: view})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"services": summaries,
		"count":    len(summaries),
	})
}

// getEffectiveConfig returns the merged config for every service, with
// secret fields masked.
func (s *Server) getEffectiveConfig(c echo.Context) error {
	effective := s.registry.Effective()

	masked := make(models.EffectiveConfig, len(effective))
	for id, values := range effective {
		svc, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		masked[id] = maskSecrets(svc, values)
	}

	return c.JSON(http.StatusOK, masked)
}

// getServiceStatus re-probes the container and returns the fresh view.
func (s *Server) getServiceStatus(c echo.Context) error {
	id := c.Param("id")

	if _, err := s.lifecycle.RefreshStatus(c.Request().Context(), id); err != nil {
		if errors.Is(err, lifecycle.ErrUnknownService) {
			return NotFoundError("Service", id)
		}
		return InternalError("Failed to probe service", err.Error())
	}

	view, err := s.lifecycle.View(id)
	if err != nil {
		return InternalError("Failed to read service state", err.Error())
	}
	return c.JSON(http.StatusOK, view)
}

// preflightService checks port availability without starting anything.
func (s *Server) preflightService(c echo.Context) error {
	id := c.Param("id")

	result, err := s.lifecycle.Preflight(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, lifecycle.ErrUnknownService) {
			return NotFoundError("Service", id)
		}
		return InternalError("Preflight failed", err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// startService runs the preflight→start protocol. A port conflict is
// reported as a 200 with can_start=false, not as an error.
func (s *Server) startService(c echo.Context) error {
	id := c.Param("id")

	result, err := s.lifecycle.Start(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrUnknownService):
			return NotFoundError("Service", id)
		case errors.Is(err, lifecycle.ErrOperationInFlight):
			return ConflictError("Operation in flight", err.Error())
		default:
			return InternalError("Failed to start service", err.Error())
		}
	}

	if !result.CanStart {
		return c.JSON(http.StatusOK, StartResponse{
			Success:   false,
			Message:   fmt.Sprintf("Port conflicts prevent starting %s", id),
			CanStart:  false,
			Conflicts: result.Conflicts,
		})
	}

	return c.JSON(http.StatusOK, StartResponse{
		Success:  true,
		Message:  fmt.Sprintf("Service %s starting", id),
		CanStart: true,
	})
}

// confirmStopService arms the stop confirmation for a service.
func (s *Server) confirmStopService(c echo.Context) error {
	id := c.Param("id")

	if err := s.lifecycle.ConfirmStop(id); err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrUnknownService):
			return NotFoundError("Service", id)
		case errors.Is(err, lifecycle.ErrOperationInFlight):
			return ConflictError("Operation in flight", err.Error())
		default:
			return InternalError("Failed to confirm stop", err.Error())
		}
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Stop of %s armed, awaiting final request", id),
	})
}

// cancelStopService disarms a pending stop confirmation.
func (s *Server) cancelStopService(c echo.Context) error {
	id := c.Param("id")

	if _, ok := s.registry.Get(id); !ok {
		return NotFoundError("Service", id)
	}
	s.lifecycle.CancelStop(id)

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Stop of %s cancelled", id),
	})
}

// stopService issues the stop. It refuses without a prior confirmation.
func (s *Server) stopService(c echo.Context) error {
	id := c.Param("id")

	if err := s.lifecycle.Stop(c.Request().Context(), id); err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrUnknownService):
			return NotFoundError("Service", id)
		case errors.Is(err, lifecycle.ErrStopNotConfirmed):
			return BadRequestError("Stop not confirmed", err.Error())
		default:
			return InternalError("Failed to stop service", err.Error())
		}
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Service %s stopping", id),
	})
}

// setServiceEnabled toggles a service's enabled flag.
func (s *Server) setServiceEnabled(c echo.Context) error {
	id := c.Param("id")

	var req EnabledRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := s.lifecycle.ToggleEnabled(id, *req.Enabled); err != nil {
		if errors.Is(err, lifecycle.ErrUnknownService) {
			return NotFoundError("Service", id)
		}
		return InternalError("Failed to toggle service", err.Error())
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Service %s enabled=%t", id, *req.Enabled),
	})
}

// overrideServicePort persists a port override and re-runs the start.
func (s *Server) overrideServicePort(c echo.Context) error {
	id := c.Param("id")

	var req PortOverrideRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	result, err := s.lifecycle.ResolvePortConflict(c.Request().Context(), id, req.EnvVar, req.Port)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrUnknownService), errors.Is(err, registry.ErrUnknownService):
			return NotFoundError("Service", id)
		case errors.Is(err, ports.ErrPortOutOfRange), errors.Is(err, ports.ErrUnresolvableConflict):
			return BadRequestError("Invalid port override", err.Error())
		case errors.Is(err, lifecycle.ErrOperationInFlight):
			return ConflictError("Operation in flight", err.Error())
		default:
			return InternalError("Failed to apply port override", err.Error())
		}
	}

	return c.JSON(http.StatusOK, StartResponse{
		Success:   result.CanStart,
		Message:   fmt.Sprintf("Port override applied to %s", id),
		CanStart:  result.CanStart,
		Conflicts: result.Conflicts,
	})
}

// getServiceConfig returns one service's config schema and current
// values, with secret fields masked.
func (s *Server) getServiceConfig(c echo.Context) error {
	id := c.Param("id")

	svc, ok := s.registry.Get(id)
	if !ok {
		return NotFoundError("Service", id)
	}

	values := s.registry.Effective()[id]
	return c.JSON(http.StatusOK, map[string]interface{}{
		"service_id": id,
		"schema":     svc.ConfigSchema,
		"values":     maskSecrets(svc, values),
	})
}

// saveServiceConfig validates and persists config values for a service.
func (s *Server) saveServiceConfig(c echo.Context) error {
	id := c.Param("id")

	var req ConfigRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	fieldErrors, err := s.lifecycle.SaveConfig(id, req.Values)
	if err != nil {
		if errors.Is(err, lifecycle.ErrUnknownService) || errors.Is(err, registry.ErrUnknownService) {
			return NotFoundError("Service", id)
		}
		return InternalError("Failed to save configuration", err.Error())
	}
	if len(fieldErrors) > 0 {
		return ValidationError("Configuration is incomplete", fieldErrors)
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Configuration for %s saved", id),
	})
}

// maskSecrets replaces secret-typed field values with a masked form so
// full keys never leave the daemon.
func maskSecrets(svc models.ServiceInstance, values map[string]string) map[string]string {
	if values == nil {
		return map[string]string{}
	}

	secret := make(map[string]bool)
	for _, f := range svc.ConfigSchema {
		if f.Type == models.FieldSecret {
			secret[f.Key] = true
		}
	}

	out := make(map[string]string, len(values))
	for k, v := range values {
		if secret[k] {
			out[k] = settings.MaskKey(v)
		} else {
			out[k] = v
		}
	}
	return out
}
