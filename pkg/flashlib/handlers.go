package flashlib

import "github.com/flashlink/flashlink/pkg/logger"

type (
	// ConnectionHandlerFunc is a function that handles connection state changes.
	// It takes the new state and a human-readable message as arguments.
	ConnectionHandlerFunc func(state, message string)
	// UpdateStatusHandlerFunc is a function that handles update lifecycle changes.
	// It takes the new status and a human-readable message as arguments.
	UpdateStatusHandlerFunc func(status UpdateStatus, message string)
	// ProgressHandlerFunc is a function that handles transfer progress.
	// It takes the percent complete and the sent/total byte counts as arguments.
	// It is emitted at a bounded cadence, not on every chunk.
	ProgressHandlerFunc func(percent float64, sent, total int64)
	// DeviceProgressHandlerFunc is a function that handles raw out-of-band
	// PROGRESS: frames from the device.
	DeviceProgressHandlerFunc func(r *Response)
	// ErrorHandlerFunc is a function that handles terminal update errors.
	ErrorHandlerFunc func(err error)
)

// Handlers are the observer callbacks of an Updater. Callbacks receive copies
// and events only; they must not reach back into shared engine state.
type Handlers struct {
	ConnectionHandler     ConnectionHandlerFunc
	UpdateStatusHandler   UpdateStatusHandlerFunc
	ProgressHandler       ProgressHandlerFunc
	DeviceProgressHandler DeviceProgressHandlerFunc
	ErrorHandler          ErrorHandlerFunc
}

func (h *Handlers) setDefault(l logger.Logger) {
	if h.ConnectionHandler == nil {
		h.ConnectionHandler = func(state, message string) {}
	}
	if h.UpdateStatusHandler == nil {
		h.UpdateStatusHandler = func(status UpdateStatus, message string) {}
	}
	if h.ProgressHandler == nil {
		h.ProgressHandler = func(percent float64, sent, total int64) {}
	}
	if h.DeviceProgressHandler == nil {
		h.DeviceProgressHandler = func(r *Response) {}
	}
	if h.ErrorHandler == nil {
		h.ErrorHandler = func(err error) {
			l.Error("update error: %s", err.Error())
		}
	} else {
		errHandler := h.ErrorHandler
		h.ErrorHandler = func(err error) {
			l.Error("update error: %s", err.Error())
			errHandler(err)
		}
	}
}
