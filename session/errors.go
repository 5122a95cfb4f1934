package session

import "github.com/pkg/errors"

var (
	// ErrConnectFailure is reported when the endpoint could not be reached or rejected the setup.
	ErrConnectFailure = errors.New("failed to connect")
	// ErrRuntimeConnection is reported when an established session fails.
	ErrRuntimeConnection = errors.New("connection error")
	// ErrDeviceAccess is reported when the microphone could not be acquired.
	ErrDeviceAccess = errors.New("microphone access failed")
	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("controller closed")
)

// classify attaches a sentinel while keeping the cause readable.
func classify(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Wrap(sentinel, cause.Error())
}
