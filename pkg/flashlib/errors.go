package flashlib

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCommandPending is returned by Send when another command is still
	// awaiting its response. The wire format carries no correlation id, so
	// overlapping commands would make response routing ambiguous; callers
	// must serialize.
	ErrCommandPending = errors.New("another command is already awaiting its response")

	// ErrTransportClosed is returned once the transport has been closed.
	ErrTransportClosed = errors.New("transport is closed")

	// ErrNotConnected is returned by updater operations that require an open,
	// mode-validated connection.
	ErrNotConnected = errors.New("device is not connected")

	// ErrUpdateInProgress is returned by StartUpdate while another update is
	// still running.
	ErrUpdateInProgress = errors.New("an update is already in progress")

	// ErrNoUpdateRunning is returned by AbortUpdate outside an update.
	ErrNoUpdateRunning = errors.New("no update is running")

	// ErrUpdateAborted is the terminal error of a user-aborted update.
	ErrUpdateAborted = errors.New("update aborted")

	errMissingSuccess = errors.New("response has no success field")
)

// OpenError reports a failure to claim or configure the serial port.
type OpenError struct {
	Port string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %s", e.Port, e.Err.Error())
}

func (e *OpenError) Unwrap() error { return e.Err }

// TimeoutError reports that a command's response did not arrive before its
// deadline. The pending slot has already been cleared when this surfaces; a
// late response is dropped.
type TimeoutError struct {
	Command Command
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response within %s", e.Command, e.Timeout)
}

// InvalidResponseError reports a response that parsed as JSON but lacks the
// required success field.
type InvalidResponseError struct {
	Command Command
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("%s: response has no success field", e.Command)
}

// WrongModeError reports a device found in an operating mode that does not
// accept update commands. This is a fatal precondition, not retryable.
type WrongModeError struct {
	Mode string
}

func (e *WrongModeError) Error() string {
	return fmt.Sprintf("device is in %q, not update mode", e.Mode)
}

// StateMismatchError reports an unexpected device state token after
// START_UPDATE.
type StateMismatchError struct {
	Expected string
	Actual   string
}

func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("device state is %q, expected %q", e.Actual, e.Expected)
}

// DeviceError reports a command the device explicitly rejected.
type DeviceError struct {
	Command Command
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected by device", e.Command)
	}
	return fmt.Sprintf("%s rejected by device: %s", e.Command, e.Message)
}

// ChunkError reports a single failed chunk send.
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %s", e.Index, e.Err.Error())
}

func (e *ChunkError) Unwrap() error { return e.Err }

// TooManyErrorsError aborts a transfer after the consecutive-error ceiling is
// reached. LastErr preserves the final underlying chunk failure.
type TooManyErrorsError struct {
	Count   int
	LastErr error
}

func (e *TooManyErrorsError) Error() string {
	return fmt.Sprintf("aborted after %d consecutive chunk errors: %s", e.Count, e.LastErr.Error())
}

func (e *TooManyErrorsError) Unwrap() error { return e.LastErr }

// FinalizeError reports a failed FINISH_UPDATE. The transfer body completed
// but the device did not commit it.
type FinalizeError struct {
	Err error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize update: %s", e.Err.Error())
}

func (e *FinalizeError) Unwrap() error { return e.Err }
