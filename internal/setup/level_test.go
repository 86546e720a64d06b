package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testTable = LevelTable{
	Level1: []string{"mem0", "chronicle-backend"},
	Level2: []string{"chronicle"},
	Level3: []string{"speaches"},
}

func TestLevelZeroWithoutAPIKeys(t *testing.T) {
	// Without API keys the level is 0 regardless of service state.
	running := map[string]bool{"mem0": true, "chronicle-backend": true}
	configured := map[string]bool{"chronicle": true, "speaches": true}

	assert.Equal(t, 0, Level(false, running, configured, testTable))
	assert.Equal(t, 0, Level(false, nil, nil, testTable))
}

func TestLevelFull(t *testing.T) {
	running := map[string]bool{"mem0": true, "chronicle-backend": true}
	configured := map[string]bool{"chronicle": true, "speaches": true}

	assert.Equal(t, 3, Level(true, running, configured, testTable))
}

func TestLevelDropsExactlyOneTier(t *testing.T) {
	running := map[string]bool{"mem0": true, "chronicle-backend": true}
	configured := map[string]bool{"chronicle": true, "speaches": false}

	// Removing a single level-3 configuration drops to exactly 2.
	assert.Equal(t, 2, Level(true, running, configured, testTable))

	configured["chronicle"] = false
	assert.Equal(t, 1, Level(true, running, configured, testTable))
}

func TestLevelRequiresRunningNotConfigured(t *testing.T) {
	// mem0 is configured but not running: level 1 requires running, so
	// the result is 0 even though every tier is configured.
	running := map[string]bool{"mem0": false, "chronicle-backend": true}
	configured := map[string]bool{
		"mem0":      true,
		"chronicle": true,
		"speaches":  true,
	}

	assert.Equal(t, 0, Level(true, running, configured, testTable))
}

func TestLevelTableDriven(t *testing.T) {
	tests := []struct {
		name       string
		apiKeys    bool
		running    map[string]bool
		configured map[string]bool
		expected   int
	}{
		{
			name:     "nothing set",
			expected: 0,
		},
		{
			name:     "keys only",
			apiKeys:  true,
			expected: 0,
		},
		{
			name:     "level one",
			apiKeys:  true,
			running:  map[string]bool{"mem0": true, "chronicle-backend": true},
			expected: 1,
		},
		{
			name:       "level two",
			apiKeys:    true,
			running:    map[string]bool{"mem0": true, "chronicle-backend": true},
			configured: map[string]bool{"chronicle": true},
			expected:   2,
		},
		{
			name:       "one level-1 service stopped drops everything",
			apiKeys:    true,
			running:    map[string]bool{"mem0": true, "chronicle-backend": false},
			configured: map[string]bool{"chronicle": true, "speaches": true},
			expected:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Level(tt.apiKeys, tt.running, tt.configured, testTable))
		})
	}
}

func TestPhaseTracker(t *testing.T) {
	tracker := NewPhaseTracker()

	assert.Empty(t, tracker.Completed())
	assert.Equal(t, PhaseSetupType, tracker.NextAction())

	tracker.Complete(PhaseSetupType)
	tracker.Complete(PhaseAPIKeys)
	assert.Equal(t, []string{PhaseSetupType, PhaseAPIKeys}, tracker.Completed())
	assert.Equal(t, PhaseServices, tracker.NextAction())

	// Completion order does not affect the reported order.
	tracker2 := NewPhaseTracker()
	tracker2.Complete(PhaseAPIKeys)
	tracker2.Complete(PhaseSetupType)
	assert.Equal(t, []string{PhaseSetupType, PhaseAPIKeys}, tracker2.Completed())

	// Unknown phases are ignored; repeats are no-ops.
	tracker.Complete("bogus")
	tracker.Complete(PhaseAPIKeys)
	assert.Equal(t, []string{PhaseSetupType, PhaseAPIKeys}, tracker.Completed())
}

func TestPhaseTrackerAllDone(t *testing.T) {
	tracker := NewPhaseTracker()
	for _, p := range []string{PhaseSetupType, PhaseAPIKeys, PhaseServices, PhaseEnvironment} {
		tracker.Complete(p)
	}
	assert.Equal(t, "", tracker.NextAction())
}
