package chat

import "errors"

// Domain errors. Handlers map these to HTTP status codes in one place;
// everything else propagates them with errors.Is/As.
var (
	// ErrValidation covers empty required fields and malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers unknown rooms, users and tokens. An inactive invite
	// token is deliberately indistinguishable from a missing one.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied covers non-members and non-creator admin actions.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict covers uniqueness collisions (room names, invite tokens).
	ErrConflict = errors.New("conflict")

	// ErrExternalService wraps failures of downstream calls such as the
	// assistant completion API.
	ErrExternalService = errors.New("external service error")
)
