package domain

import "errors"

var (
	// ErrMissingParameter means a required data source parameter is absent
	ErrMissingParameter = errors.New("missing parameter")
	// ErrInvalidParameter means a parameter is present but unusable
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrConnectionFailure means the collector produced no data for a device
	ErrConnectionFailure = errors.New("connection failure")
	// ErrPreconditionFailure aborts the reconciliation of one device
	ErrPreconditionFailure = errors.New("precondition failure")
	// ErrLookupNotFound means a port or device could not be resolved
	ErrLookupNotFound = errors.New("lookup not found")
	// ErrExternalLookup means the AS registry could not answer
	ErrExternalLookup = errors.New("external lookup failure")
	// ErrMalformedTable means polled columns are not row aligned
	ErrMalformedTable = errors.New("malformed table")

	// Repository responses
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrNotPermitted    = errors.New("operation not permitted")
	ErrInvalidArgument = errors.New("invalid argument")
)

// IsPersistenceConflict reports whether err is a recoverable repository
// response: not found, conflict, not permitted or invalid argument
func IsPersistenceConflict(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotPermitted) ||
		errors.Is(err, ErrInvalidArgument)
}
