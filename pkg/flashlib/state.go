package flashlib

import (
	"context"

	"github.com/looplab/fsm"
)

// Connection states. A device found in the wrong mode during validation
// forces an immediate transition back to disconnected.
const (
	StateDisconnected   = "disconnected"
	StateConnecting     = "connecting"
	StateModeValidating = "mode_validating"
	StateConnected      = "connected"
)

const (
	eventConnect    = "connect"
	eventValidate   = "validate"
	eventValidated  = "validated"
	eventDisconnect = "disconnect"
)

// UpdateStatus is the orthogonal per-update lifecycle reported to observers
// while the connection stays up.
type UpdateStatus string

const (
	UpdateStatusIdle         UpdateStatus = "idle"
	UpdateStatusStarting     UpdateStatus = "starting"
	UpdateStatusTransferring UpdateStatus = "transferring"
	UpdateStatusFinalizing   UpdateStatus = "finalizing"
	UpdateStatusSucceeded    UpdateStatus = "succeeded"
	UpdateStatusFailed       UpdateStatus = "failed"
	UpdateStatusAborted      UpdateStatus = "aborted"
)

// newConnectionFSM builds the connection lifecycle machine:
// disconnected -> connecting -> mode_validating -> connected -> disconnected.
// onEnter is invoked after every transition with the new state.
func newConnectionFSM(onEnter func(state string)) *fsm.FSM {
	return fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventConnect, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: eventValidate, Src: []string{StateConnecting}, Dst: StateModeValidating},
			{Name: eventValidated, Src: []string{StateModeValidating}, Dst: StateConnected},
			{Name: eventDisconnect, Src: []string{StateConnecting, StateModeValidating, StateConnected}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if onEnter != nil {
					onEnter(e.Dst)
				}
			},
		},
	)
}
