package settings

import "errors"

// Domain errors for the settings package.
//
//	if errors.Is(err, settings.ErrUnknownKey) {
//	    // reject the request
//	}
var (
	// ErrUnknownKey is returned for a key outside the supported set.
	ErrUnknownKey = errors.New("settings: unknown key")

	// ErrInvalidValue is returned when a value fails validation for its key.
	ErrInvalidValue = errors.New("settings: invalid value")
)
