package errors

// Common error codes shared across transports.
const (
	ErrInternal        = "INTERNAL"
	ErrNotFound        = "NOT_FOUND"
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrUnauthenticated = "UNAUTHENTICATED"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrConflict        = "CONFLICT"
	ErrTimeout         = "TIMEOUT"
	ErrNotImplemented  = "NOT_IMPLEMENTED"

	// billing specific
	ErrQuotaExceeded       = "QUOTA_EXCEEDED"
	ErrUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)
