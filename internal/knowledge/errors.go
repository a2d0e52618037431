package knowledge

import "errors"

var (
	// ErrNotFound indicates the requested item does not exist or is not
	// visible to the requesting owner.
	ErrNotFound = errors.New("knowledge item not found")

	// ErrInvalidType indicates an unknown item type was supplied.
	ErrInvalidType = errors.New("invalid item type")

	// ErrEmptyTitle indicates a missing required title.
	ErrEmptyTitle = errors.New("title must not be empty")

	// ErrEmptyOwner indicates a missing owner scope on a scoped operation.
	ErrEmptyOwner = errors.New("owner must not be empty")
)
