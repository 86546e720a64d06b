package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ushadow/orchestrator/internal/settings"
	"github.com/ushadow/orchestrator/internal/setup"
)

// getSetupStatus recomputes the setup level from live state and returns
// it along with the explicitly completed phases.
func (s *Server) getSetupStatus(c echo.Context) error {
	status, err := s.computeSetupStatus(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

// completePhase marks an onboarding phase done and returns the
// recomputed status.
func (s *Server) completePhase(c echo.Context) error {
	phase := c.Param("phase")

	switch phase {
	case setup.PhaseSetupType, setup.PhaseAPIKeys, setup.PhaseServices, setup.PhaseEnvironment:
	default:
		return BadRequestError("Unknown phase", fmt.Sprintf("no such onboarding phase: %s", phase))
	}

	s.phases.Complete(phase)

	status, err := s.computeSetupStatus(c)
	if err != nil {
		return err
	}
	s.broadcast(EventSetupLevel, status)
	return c.JSON(http.StatusOK, status)
}

func (s *Server) computeSetupStatus(c echo.Context) (SetupStatus, error) {
	ctx := c.Request().Context()

	ids := levelServices(s.levels)
	if err := s.lifecycle.RefreshAll(ctx, ids); err != nil {
		return SetupStatus{}, InternalError("Failed to probe services", err.Error())
	}

	running := make(map[string]bool, len(ids))
	configured := make(map[string]bool, len(ids))
	effective := s.registry.Effective()
	for _, id := range ids {
		view, err := s.lifecycle.View(id)
		if err != nil {
			return SetupStatus{}, InternalError("Failed to read service state", err.Error())
		}
		running[id] = view.Status.Running()
		configured[id] = effective.Configured(id)
	}

	apiKeys := s.secrets.APIKeysConfigured()
	level := setup.Level(apiKeys, running, configured, s.levels)

	return SetupStatus{
		Level:             level,
		MaxLevel:          setup.MaxLevel,
		APIKeysConfigured: apiKeys,
		CompletedPhases:   s.phases.Completed(),
		NextAction:        s.phases.NextAction(),
		Running:           running,
		Configured:        configured,
	}, nil
}

// levelServices returns the union of all level tiers, deduplicated,
// preserving tier order.
func levelServices(table setup.LevelTable) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tier := range [][]string{table.Level1, table.Level2, table.Level3} {
		for _, id := range tier {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// getAPIKeys returns the shared API keys with values masked. Full key
// values never leave the daemon.
func (s *Server) getAPIKeys(c echo.Context) error {
	snapshot := s.secrets.Snapshot()

	masked := make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		masked[k] = settings.MaskKey(v)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"keys":       masked,
		"configured": s.secrets.APIKeysConfigured(),
	})
}

// saveAPIKeys persists the provided API keys to the shared store.
func (s *Server) saveAPIKeys(c echo.Context) error {
	var req APIKeysRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := s.secrets.SetAll(req.Keys); err != nil {
		return InternalError("Failed to save API keys", err.Error())
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("%d API key(s) saved", len(req.Keys)),
	})
}
