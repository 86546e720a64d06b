// Package setup derives the onboarding progress level from service
// state and tracks explicitly completed onboarding phases. The level is
// never stored: it is recomputed from scratch after every state change
// so it can never drift from the underlying data.
package setup

// LevelTable names the services each setup tier depends on. Level 1
// requires its services to be running; levels 2 and 3 only require
// theirs to be configured. The asymmetry is deliberate: level 1 covers
// the tier the user interacts with directly, while higher tiers are
// "set up and will come up on demand".
type LevelTable struct {
	Level1 []string
	Level2 []string
	Level3 []string
}

// MaxLevel is the highest setup level.
const MaxLevel = 3

// Level computes the setup level from the API-key flag and the
// per-service running/configured maps. Pure function, no side effects.
// Level N holds only when every condition of all levels at or below N
// holds simultaneously.
func Level(apiKeys bool, running, configured map[string]bool, table LevelTable) int {
	if !apiKeys {
		return 0
	}
	if !allTrue(running, table.Level1) {
		return 0
	}
	if !allTrue(configured, table.Level2) {
		return 1
	}
	if !allTrue(configured, table.Level3) {
		return 2
	}
	return 3
}

func allTrue(m map[string]bool, services []string) bool {
	for _, s := range services {
		if !m[s] {
			return false
		}
	}
	return true
}
