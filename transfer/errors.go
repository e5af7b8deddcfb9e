package transfer

import (
	"errors"
	"fmt"
)

// Caller misuse. These are returned synchronously and have no side effects.
var (
	// ErrNotInitialized indicates StartSession was called before Init.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrNotStarted indicates an operation that needs a session was called without one.
	ErrNotStarted = errors.New("session not started")

	// ErrInvalidPath indicates an empty local or remote path.
	ErrInvalidPath = errors.New("local and remote paths must be non-empty")

	// ErrBusy indicates a transfer is already running on this engine.
	ErrBusy = errors.New("transfer already in progress")

	// ErrNotWorking indicates Cancel was called with no transfer running.
	ErrNotWorking = errors.New("no transfer in progress")
)

// Transfer-body errors. They end the attempt and appear as the Cause of an IncompleteError.
var (
	// ErrLocalOpen indicates the local file could not be opened.
	ErrLocalOpen = errors.New("cannot open local file")

	// ErrRemoteOpen indicates the remote file could not be opened.
	ErrRemoteOpen = errors.New("cannot open remote file")

	// ErrStat indicates a file size could not be determined.
	ErrStat = errors.New("cannot stat file")

	// ErrEmptyFile indicates an upload of a zero-length local file.
	ErrEmptyFile = errors.New("local file is empty")

	// ErrRead indicates reading the source failed or ended early.
	ErrRead = errors.New("read failed")

	// ErrWrite indicates writing the destination failed.
	ErrWrite = errors.New("write failed")

	// ErrCancelled indicates the transfer stopped because Cancel or StopSession was called.
	ErrCancelled = errors.New("transfer cancelled")
)

// IncompleteError reports a transfer that ended before the destination held the
// whole file. The partial destination and a resume record are left in place.
type IncompleteError struct {
	Direction   Direction
	Transferred int64
	Total       int64
	Cause       error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%s incomplete at byte %d/%d: %v", e.Direction, e.Transferred, e.Total, e.Cause)
}

func (e *IncompleteError) Unwrap() error {
	return e.Cause
}
