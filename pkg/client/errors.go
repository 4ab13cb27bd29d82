package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrDaemonNotRunning is returned when the daemon is not running
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the user does not have permission to perform the requested action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when 404 is returned from the daemon
	ErrNotFound = errors.New("404 not found")

	// ErrChannelsBusy is returned when another program owns a requested channel
	ErrChannelsBusy = errors.New("channels busy")
)

// StatusError is a non-2xx response from the daemon.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("got %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrChannelsBusy:
		return e.StatusCode == http.StatusConflict
	}
	return false
}
