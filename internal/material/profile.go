// Package material resolves the active filament profile and its safe
// door-open temperature.
package material

import (
	"fmt"

	"github.com/nerrad567/bambi-core/internal/infrastructure/config"
)

// maxOpenTemp is the highest accepted door-open threshold (°C).
const maxOpenTemp = 150

// Profile is a named door-open temperature threshold.
type Profile struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	OpenTemp float64 `json:"open_temp"`
}

// Resolve returns the profile matching cfg.ActiveProfileID.
//
// It reads cfg on every call; the profile list may be edited at runtime.
func Resolve(cfg config.MaterialsConfig) (Profile, bool) {
	if cfg.ActiveProfileID == "" {
		return Profile{}, false
	}
	for _, p := range cfg.Profiles {
		if p.ID == cfg.ActiveProfileID {
			return Profile{ID: p.ID, Name: p.Name, OpenTemp: p.OpenTemp}, true
		}
	}
	return Profile{}, false
}

// DefaultProfiles returns the built-in profiles used when none are configured.
func DefaultProfiles() []config.MaterialProfileConfig {
	return []config.MaterialProfileConfig{
		{ID: "pla", Name: "PLA", OpenTemp: 45},
		{ID: "abs", Name: "ABS", OpenTemp: 80},
		{ID: "asa", Name: "ASA", OpenTemp: 90},
	}
}

// Validate checks a replacement material configuration.
//
// An empty active id is allowed and leaves automation inert.
func Validate(cfg config.MaterialsConfig) error {
	seen := make(map[string]bool, len(cfg.Profiles))
	for i, p := range cfg.Profiles {
		switch {
		case p.ID == "":
			return fmt.Errorf("%w: profiles[%d] has no id", ErrInvalidProfile, i)
		case seen[p.ID]:
			return fmt.Errorf("%w: id %q is duplicated", ErrInvalidProfile, p.ID)
		case p.OpenTemp < 0 || p.OpenTemp > maxOpenTemp:
			return fmt.Errorf("%w: %q open_temp %.0f outside 0..%d", ErrInvalidProfile, p.ID, p.OpenTemp, maxOpenTemp)
		}
		seen[p.ID] = true
	}

	if cfg.ActiveProfileID != "" && !seen[cfg.ActiveProfileID] {
		return fmt.Errorf("%w: %q", ErrUnknownActiveProfile, cfg.ActiveProfileID)
	}
	return nil
}
