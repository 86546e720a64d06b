package setup

import "sync"

// Onboarding phases in recommendation order. Distinct from the numeric
// level: phases are completed by explicit user action (finishing a
// wizard step) and are never un-marked automatically.
const (
	PhaseSetupType   = "setup_type"
	PhaseAPIKeys     = "api_keys"
	PhaseServices    = "services"
	PhaseEnvironment = "environment"
)

var phaseOrder = []string{PhaseSetupType, PhaseAPIKeys, PhaseServices, PhaseEnvironment}

// PhaseTracker records the monotonic set of completed onboarding phases.
type PhaseTracker struct {
	mu        sync.RWMutex
	completed map[string]bool
}

// NewPhaseTracker creates an empty tracker.
func NewPhaseTracker() *PhaseTracker {
	return &PhaseTracker{completed: make(map[string]bool)}
}

// Complete marks a phase done. Unknown phases are ignored; marking a
// phase twice is a no-op. Phases are never un-marked.
func (t *PhaseTracker) Complete(phase string) {
	if !knownPhase(phase) {
		return
	}
	t.mu.Lock()
	t.completed[phase] = true
	t.mu.Unlock()
}

// Completed returns completed phases in recommendation order.
func (t *PhaseTracker) Completed() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.completed))
	for _, p := range phaseOrder {
		if t.completed[p] {
			out = append(out, p)
		}
	}
	return out
}

// NextAction returns the first phase not yet completed, used only for
// the "next recommended action" label. Empty when everything is done.
func (t *PhaseTracker) NextAction() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, p := range phaseOrder {
		if !t.completed[p] {
			return p
		}
	}
	return ""
}

func knownPhase(phase string) bool {
	for _, p := range phaseOrder {
		if p == phase {
			return true
		}
	}
	return false
}
