package flashlib

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/flashlink/flashlink/pkg/logger"
)

// UpdaterOpts are the optional tunables of an Updater. None of the protocol
// timings here are wire constants; observed deployments varied all of them.
type UpdaterOpts struct {
	// ChunkSize is the binary slice size per SEND_CHUNK, clamped to
	// [MIN_CHUNK_SIZE, MAX_CHUNK_SIZE].
	ChunkSize int
	// ErrorCeiling is the maximum allowed back-to-back chunk failures before
	// the transfer aborts.
	ErrorCeiling int
	// MaxAttempts is the retry budget for START_UPDATE and FINISH_UPDATE.
	MaxAttempts int
	// Retry configures the backoff between retries of a failed chunk index.
	Retry RetryConfig

	// ConnectTimeout bounds GET_INFO right after opening the transport.
	ConnectTimeout time.Duration
	// SettleDelay is slept after each cleanup ABORT_UPDATE.
	SettleDelay time.Duration
	// InterChunkDelay paces consecutive chunk sends.
	InterChunkDelay time.Duration
	// GraceDelay is the wait before the post-success transport close.
	GraceDelay time.Duration
	// ProgressInterval caps the cadence of transfer progress callbacks.
	ProgressInterval time.Duration

	// ReadyState is the device state token expected after START_UPDATE.
	ReadyState string
	// UpdateMode is the device mode required on connect.
	UpdateMode string

	Handlers *Handlers
	Logger   logger.Logger
}

// Updater drives one end-to-end update over a Transport: status check,
// abort-to-clean-state, start handshake, chunked body transfer with
// per-chunk retry and consecutive-error abort, finalize, and post-completion
// disconnect. All commands are issued strictly one at a time; the updater
// never sends before the previous command resolved.
type Updater struct {
	t        *Transport
	handlers *Handlers
	log      logger.Logger
	conn     *fsm.FSM

	chunkSize    int
	errorCeiling int
	maxAttempts  int
	retry        RetryConfig

	connectTimeout   time.Duration
	settleDelay      time.Duration
	interChunkDelay  time.Duration
	graceDelay       time.Duration
	progressInterval time.Duration

	readyState string
	updateMode string

	mu             sync.Mutex
	updating       bool
	abortRequested bool
	abortCh        chan struct{}
	completion     chan *Response
}

// NewUpdater wraps a not-yet-started Transport. The updater registers itself
// as the transport's progress observer.
func NewUpdater(t *Transport, opts *UpdaterOpts) *Updater {
	if opts == nil {
		opts = &UpdaterOpts{}
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DEF_CHUNK_SIZE
	}
	if opts.ChunkSize < MIN_CHUNK_SIZE {
		opts.ChunkSize = MIN_CHUNK_SIZE
	}
	if opts.ChunkSize > MAX_CHUNK_SIZE {
		opts.ChunkSize = MAX_CHUNK_SIZE
	}
	if opts.ErrorCeiling == 0 {
		opts.ErrorCeiling = DEF_ERROR_CEILING
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DEF_MAX_ATTEMPTS
	}
	if opts.Retry == (RetryConfig{}) {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DEF_CONNECT_TIMEOUT
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DEF_SETTLE_DELAY
	}
	if opts.InterChunkDelay == 0 {
		opts.InterChunkDelay = DEF_INTERCHUNK_DELAY
	}
	if opts.GraceDelay == 0 {
		opts.GraceDelay = DEF_GRACE_DELAY
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = DEF_PROGRESS_INTERVAL
	}
	if opts.ReadyState == "" {
		opts.ReadyState = DEF_READY_STATE
	}
	if opts.UpdateMode == "" {
		opts.UpdateMode = DEF_UPDATE_MODE
	}
	if opts.Handlers == nil {
		opts.Handlers = &Handlers{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	opts.Handlers.setDefault(opts.Logger)
	u := &Updater{
		t:                t,
		handlers:         opts.Handlers,
		log:              opts.Logger,
		chunkSize:        opts.ChunkSize,
		errorCeiling:     opts.ErrorCeiling,
		maxAttempts:      opts.MaxAttempts,
		retry:            opts.Retry,
		connectTimeout:   opts.ConnectTimeout,
		settleDelay:      opts.SettleDelay,
		interChunkDelay:  opts.InterChunkDelay,
		graceDelay:       opts.GraceDelay,
		progressInterval: opts.ProgressInterval,
		readyState:       opts.ReadyState,
		updateMode:       opts.UpdateMode,
		completion:       make(chan *Response, 1),
	}
	u.conn = newConnectionFSM(func(state string) {
		u.handlers.ConnectionHandler(state, "")
	})
	t.OnProgress(u.handleProgress)
	return u
}

// handleProgress receives every out-of-band PROGRESS: frame. A frame with
// completed=true is an asynchronous terminal signal independent of the
// command/response cycle; it is queued for the transfer loop to act on
// without waiting for any in-flight chunk.
func (u *Updater) handleProgress(r *Response) {
	u.handlers.DeviceProgressHandler(r)
	if !r.Completed {
		return
	}
	select {
	case u.completion <- r:
	default:
	}
}

// Connect starts the transport's read loop and validates the device mode.
// The first command after open gets the longer connect timeout since the
// device may still be settling from boot. A device in the wrong mode is a
// fatal precondition: the transport is closed and no update command is ever
// sent to it.
func (u *Updater) Connect(ctx context.Context) error {
	if err := u.conn.Event(ctx, eventConnect); err != nil {
		return err
	}
	if err := u.t.Start(); err != nil {
		u.teardown(ctx)
		return err
	}
	if err := u.conn.Event(ctx, eventValidate); err != nil {
		u.teardown(ctx)
		return err
	}
	resp, err := u.t.SendTimeout(ctx, CmdGetInfo, "", u.connectTimeout)
	if err != nil {
		u.teardown(ctx)
		return fmt.Errorf("device info: %w", err)
	}
	if !resp.Success {
		u.teardown(ctx)
		return &DeviceError{Command: CmdGetInfo, Message: resp.Message}
	}
	if resp.Mode != u.updateMode {
		u.teardown(ctx)
		return &WrongModeError{Mode: resp.Mode}
	}
	return u.conn.Event(ctx, eventValidated)
}

// Disconnect closes the transport and transitions to disconnected. Safe to
// call from error paths and after a failed connect.
func (u *Updater) Disconnect() error {
	if !u.conn.Is(StateDisconnected) {
		if err := u.conn.Event(context.Background(), eventDisconnect); err != nil {
			u.log.Warning("disconnect transition: %s", err.Error())
		}
	}
	return u.t.Close()
}

func (u *Updater) teardown(ctx context.Context) {
	if err := u.t.Close(); err != nil {
		u.log.Warning("closing transport: %s", err.Error())
	}
	if err := u.conn.Event(ctx, eventDisconnect); err != nil {
		u.log.Warning("disconnect transition: %s", err.Error())
	}
}

// Connected reports whether the device passed mode validation and the
// session is usable.
func (u *Updater) Connected() bool {
	return u.conn.Is(StateConnected)
}

// ConnectionState returns the current connection state token.
func (u *Updater) ConnectionState() string {
	return u.conn.Current()
}

// StartUpdate runs one full update of the given payload. It returns nil on
// success, ErrUpdateAborted on user abort, and the terminal error otherwise.
// Exactly one update may run at a time.
func (u *Updater) StartUpdate(ctx context.Context, data []byte, typ UpdateType) error {
	if !u.Connected() {
		return ErrNotConnected
	}
	u.mu.Lock()
	if u.updating {
		u.mu.Unlock()
		return ErrUpdateInProgress
	}
	u.updating = true
	u.abortRequested = false
	u.abortCh = make(chan struct{})
	select {
	case <-u.completion:
	default:
	}
	abortCh := u.abortCh
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		u.updating = false
		u.mu.Unlock()
	}()
	return u.run(ctx, data, typ, abortCh)
}

// AbortUpdate requests a user-initiated abort of the running update. The
// transfer loop sends the ABORT_UPDATE command itself (it owns the command
// sequence) and transitions to aborted regardless of whether the device
// acknowledges; the local state machine is never held hostage by a silent
// device.
func (u *Updater) AbortUpdate() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.updating {
		return ErrNoUpdateRunning
	}
	if !u.abortRequested {
		u.abortRequested = true
		close(u.abortCh)
	}
	return nil
}

func (u *Updater) run(ctx context.Context, data []byte, typ UpdateType, abortCh chan struct{}) error {
	u.status(UpdateStatusStarting, fmt.Sprintf("starting %s update (%d bytes)", typ, len(data)))

	// Status check. Some firmware revisions do not implement GET_STATUS at
	// all, so failure here must not block a fresh update.
	if resp, err := u.t.Send(ctx, CmdGetStatus, ""); err != nil {
		u.log.Warning("status check failed: %s", err.Error())
	} else if resp.Success && resp.UpdateActive {
		u.log.Info("device reports an active update, aborting it")
		if _, err := u.t.Send(ctx, CmdAbortUpdate, ""); err != nil {
			u.log.Warning("aborting stale update: %s", err.Error())
		}
		u.settle(ctx)
	}

	// Unconditional reset to a known base state, regardless of what the
	// status check saw. Also non-fatal.
	if _, err := u.t.Send(ctx, CmdAbortUpdate, ""); err != nil {
		u.log.Warning("state reset failed: %s", err.Error())
	}
	u.settle(ctx)

	if aborted(abortCh) {
		return u.abortNow(0, nil)
	}

	// Start handshake. A rejected start or an unexpected state token is a
	// device-state error, not something retries can fix.
	payload := fmt.Sprintf("%d,%s", len(data), typ)
	resp, err := u.t.SendWithRetry(ctx, CmdStartUpdate, payload, u.maxAttempts)
	switch {
	case err != nil:
		return u.fail(fmt.Errorf("start update: %w", err), nil)
	case !resp.Success:
		return u.fail(&DeviceError{Command: CmdStartUpdate, Message: resp.Message}, nil)
	case resp.State != u.readyState:
		return u.fail(&StateMismatchError{Expected: u.readyState, Actual: resp.State}, nil)
	}

	sess := newSession(int64(len(data)), typ, u.chunkSize)
	u.status(UpdateStatusTransferring, fmt.Sprintf("sending %d chunks of %d bytes", sess.TotalChunks, sess.ChunkSize))
	u.handlers.ProgressHandler(0, 0, sess.Size)

	lastEmit := time.Now()
	for !sess.done() {
		select {
		case <-abortCh:
			return u.abortNow(sess.Size, nil)
		case r := <-u.completion:
			return u.completedByDevice(r, sess, nil)
		default:
		}

		chunk := sess.chunk(data)
		enc := base64.StdEncoding.EncodeToString(chunk)
		rc := make(chan outcome, 1)
		go func() {
			resp, err := u.t.Send(ctx, CmdSendChunk, enc)
			rc <- outcome{resp: resp, err: err}
		}()

		select {
		case out := <-rc:
			if out.err == nil && !out.resp.Success {
				out.err = &DeviceError{Command: CmdSendChunk, Message: out.resp.Message}
			}
			if out.err != nil {
				if errors.Is(out.err, ErrTransportClosed) {
					return u.fail(out.err, nil)
				}
				cerr := &ChunkError{Index: sess.Index, Err: out.err}
				n := sess.fail(cerr)
				u.log.Warning("chunk %d/%d failed (%d consecutive): %s",
					sess.Index+1, sess.TotalChunks, n, out.err.Error())
				if n >= u.errorCeiling {
					return u.fail(&TooManyErrorsError{Count: n, LastErr: cerr}, nil)
				}
				if werr := u.retry.Wait(ctx, CmdSendChunk, n); werr != nil {
					return u.fail(werr, nil)
				}
				continue
			}
			sess.succeed(len(chunk))
			if time.Since(lastEmit) >= u.progressInterval || sess.done() {
				u.handlers.ProgressHandler(sess.percent(), sess.Sent, sess.Size)
				lastEmit = time.Now()
			}
			if !sess.done() && !u.pause(ctx, u.interChunkDelay) {
				return u.fail(ctx.Err(), nil)
			}
		case r := <-u.completion:
			// Asynchronous terminal signal; the in-flight chunk is abandoned
			// and its outcome is drained by the terminal path.
			return u.completedByDevice(r, sess, rc)
		case <-abortCh:
			return u.abortNow(sess.Size, rc)
		case <-ctx.Done():
			return u.fail(ctx.Err(), rc)
		}
	}

	select {
	case r := <-u.completion:
		return u.completedByDevice(r, sess, nil)
	default:
	}

	u.status(UpdateStatusFinalizing, "finalizing update")
	resp, err = u.t.SendWithRetry(ctx, CmdFinishUpdate, "", u.maxAttempts)
	if err != nil {
		return u.fail(&FinalizeError{Err: err}, nil)
	}
	if !resp.Success {
		return u.fail(&FinalizeError{Err: &DeviceError{Command: CmdFinishUpdate, Message: resp.Message}}, nil)
	}
	u.finishSuccess(sess.Size, "update complete")
	return nil
}

// completedByDevice acts on a PROGRESS frame carrying completed=true.
// inflight, when non-nil, is the outcome channel of a chunk still awaiting
// its response.
func (u *Updater) completedByDevice(r *Response, sess *TransferSession, inflight <-chan outcome) error {
	if r.Success {
		msg := r.Message
		if msg == "" {
			msg = "update complete"
		}
		u.finishSuccess(sess.Size, msg)
		return nil
	}
	msg := r.Message
	if msg == "" {
		msg = "device reported failure"
	}
	return u.fail(fmt.Errorf("device ended transfer: %s", msg), inflight)
}

// finishSuccess emits terminal progress and status, then schedules the
// transport close after a grace delay so the device can begin its restart
// before losing the line. Close failures are logged, never surfaced: the
// update itself already succeeded.
func (u *Updater) finishSuccess(size int64, msg string) {
	u.handlers.ProgressHandler(100, size, size)
	u.status(UpdateStatusSucceeded, msg)
	time.AfterFunc(u.graceDelay, func() {
		if err := u.Disconnect(); err != nil {
			u.log.Warning("post-update close: %s", err.Error())
		}
	})
}

// fail is the single funnel of every fatal path: user-visible failure first,
// then a best-effort ABORT_UPDATE to return the device to a known state.
// Observers are notified before the abort so they never wait on a stalled
// chunk.
func (u *Updater) fail(err error, inflight <-chan outcome) error {
	u.handlers.ErrorHandler(err)
	u.status(UpdateStatusFailed, err.Error())
	u.bestEffortAbort(inflight)
	return err
}

// abortNow finishes a user-initiated abort: reset progress display, terminal
// aborted status, best-effort device abort. The connection stays up and can
// accept a new StartUpdate.
func (u *Updater) abortNow(size int64, inflight <-chan outcome) error {
	u.handlers.ProgressHandler(0, 0, size)
	u.status(UpdateStatusAborted, "update aborted")
	u.bestEffortAbort(inflight)
	return ErrUpdateAborted
}

// bestEffortAbort sends ABORT_UPDATE outside the normal command sequence. An
// abandoned in-flight chunk still owns the transport's pending slot, and its
// Send only frees the slot once it resolves (by response, timeout, or close);
// the abort drains that outcome first so the frame actually reaches the wire
// instead of bouncing off ErrCommandPending.
func (u *Updater) bestEffortAbort(inflight <-chan outcome) {
	if inflight != nil {
		<-inflight
	}
	if _, err := u.t.Send(context.Background(), CmdAbortUpdate, ""); err != nil {
		u.log.Warning("best-effort abort failed: %s", err.Error())
	}
}

func (u *Updater) status(s UpdateStatus, msg string) {
	u.handlers.UpdateStatusHandler(s, msg)
}

func (u *Updater) settle(ctx context.Context) {
	u.pause(ctx, u.settleDelay)
}

func (u *Updater) pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func aborted(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
