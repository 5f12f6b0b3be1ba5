package material

import "errors"

// Errors returned when validating material settings.
var (
	// ErrInvalidProfile is returned for a profile with a missing or duplicated id
	// or an out-of-range temperature.
	ErrInvalidProfile = errors.New("material: invalid profile")

	// ErrUnknownActiveProfile is returned when the active id matches no profile.
	ErrUnknownActiveProfile = errors.New("material: active profile not found")
)
