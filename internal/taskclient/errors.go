package taskclient

import "errors"

var (
	// ErrInvalidRequest rejects a submit before any task is created.
	ErrInvalidRequest = errors.New("invalid task request")
	// ErrNotFound means no task exists with the given ID.
	ErrNotFound = errors.New("task not found")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("task client closed")

	// errOffline is the diagnostic recorded when no remote agent is configured.
	errOffline = errors.New("remote agent not configured")
)
