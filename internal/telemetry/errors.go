package telemetry

import "codeberg.org/mutker/solardash/internal/errors"

const (
	// Fetch Errors
	ErrNetwork = errors.ErrNetwork
	ErrDecode  = errors.ErrDecode

	// Configuration Errors
	ErrInvalidConfig  = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidBaseURL = errors.ErrorCode("telemetry_invalid_base_url")
)

// IsNetworkError reports whether err is a transport failure or a non-2xx response
func IsNetworkError(err error) bool {
	return errors.HasCode(err, ErrNetwork)
}

// IsDecodeError reports whether err is a malformed or incomplete body
func IsDecodeError(err error) bool {
	return errors.HasCode(err, ErrDecode)
}

// StatusError carries the status of a non-2xx response
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "unexpected HTTP status: " + e.Status
}
