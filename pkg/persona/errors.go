package persona

import "errors"

var (
	// ErrUnknownField indicates a patch path whose top-level token is not in
	// the document schema.
	ErrUnknownField = errors.New("persona: unknown profile field")

	// ErrNotContainer indicates an intermediate path token that resolves to a
	// scalar where a container was required.
	ErrNotContainer = errors.New("persona: intermediate value is not a container")

	// ErrEmptyPath indicates a patch op with no usable path tokens.
	ErrEmptyPath = errors.New("persona: empty path")

	// ErrNotEnrolled indicates a speaker update for a user with no enrolled vector.
	ErrNotEnrolled = errors.New("persona: speaker not enrolled")

	// ErrVectorShape indicates a speaker vector whose dimension does not match
	// the enrolled vector.
	ErrVectorShape = errors.New("persona: speaker vector shape mismatch")

	// ErrEmptyVector indicates a zero-length or all-zero speaker vector.
	ErrEmptyVector = errors.New("persona: empty speaker vector")

	// ErrSessionExists indicates InitSession was called twice for one user.
	ErrSessionExists = errors.New("persona: session already initialized for user")

	// ErrNoSession indicates a turn arrived for a user with no active session.
	ErrNoSession = errors.New("persona: no active session for user")
)
