package dialog

import "errors"

var (
	// ErrUnknownDialog is returned when an id is not registered. It is a
	// configuration error and is never recovered at runtime.
	ErrUnknownDialog = errors.New("unknown dialog")
	// ErrDuplicateID is returned when registering an id twice.
	ErrDuplicateID = errors.New("duplicate dialog id")
	// ErrInvalidID is returned for empty or malformed ids.
	ErrInvalidID = errors.New("invalid dialog id")
	// ErrMissingParameter is returned by constructors missing a required collaborator.
	ErrMissingParameter = errors.New("missing required parameter")
	// ErrInvalidState is returned when frame state cannot be persisted.
	ErrInvalidState = errors.New("invalid dialog state")
	// ErrInvalidDefinition is returned when a declarative dialog definition fails validation.
	ErrInvalidDefinition = errors.New("invalid dialog definition")
)
