package flashlib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/flashlink/flashlink/pkg/logger"
)

// ProgressFrameHandlerFunc receives out-of-band PROGRESS: frames. They are
// not responses to any outstanding command and may arrive at any time.
type ProgressFrameHandlerFunc func(r *Response)

// TransportOpts are the optional tunables of a Transport.
type TransportOpts struct {
	// ControlTimeout bounds the wait for control command responses.
	ControlTimeout time.Duration
	// ChunkTimeout bounds the wait for SEND_CHUNK acknowledgements.
	ChunkTimeout time.Duration
	// Retry configures SendWithRetry backoff.
	Retry RetryConfig
	// ReadBufferSize sizes the read loop's buffer.
	ReadBufferSize int

	Logger logger.Logger
}

// Transport owns one duplex byte stream to the device. It frames outgoing
// commands, reassembles inbound bytes into classified lines, and correlates
// exactly one in-flight command to its response. The protocol carries no
// request id, so serialized dispatch is the correctness invariant: Send
// refuses to overlap commands rather than guess at response routing.
//
// A Transport is safe for concurrent use, but callers are expected to await
// each command's outcome before issuing the next; concurrent Sends beyond the
// first fail with ErrCommandPending.
type Transport struct {
	mu sync.Mutex
	rw io.ReadWriter

	pending    *pendingCommand
	onProgress ProgressFrameHandlerFunc

	controlTimeout time.Duration
	chunkTimeout   time.Duration
	retry          RetryConfig
	readBufSize    int

	started bool
	closed  bool
	done    chan struct{}

	log logger.Logger
}

// pendingCommand is the single-slot register for the one in-flight command.
// The outcome channel is buffered so the read loop never blocks on a waiter
// that has already timed out.
type pendingCommand struct {
	cmd Command
	ch  chan outcome
}

type outcome struct {
	resp *Response
	err  error
}

// NewTransport wraps an already-open duplex byte stream. The transport does
// not discover or open the underlying device; see OpenPort for the serial
// collaborator. Call Start to launch the read loop before sending.
func NewTransport(rw io.ReadWriter, opts *TransportOpts) *Transport {
	if opts == nil {
		opts = &TransportOpts{}
	}
	if opts.ControlTimeout == 0 {
		opts.ControlTimeout = DEF_CONTROL_TIMEOUT
	}
	if opts.ChunkTimeout == 0 {
		opts.ChunkTimeout = DEF_CHUNK_TIMEOUT
	}
	if opts.Retry == (RetryConfig{}) {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.ReadBufferSize == 0 {
		opts.ReadBufferSize = 512
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &Transport{
		rw:             rw,
		controlTimeout: opts.ControlTimeout,
		chunkTimeout:   opts.ChunkTimeout,
		retry:          opts.Retry,
		readBufSize:    opts.ReadBufferSize,
		done:           make(chan struct{}),
		log:            opts.Logger,
	}
}

// OnProgress registers the observer for out-of-band PROGRESS: frames. It must
// be set before Start.
func (t *Transport) OnProgress(fn ProgressFrameHandlerFunc) {
	t.mu.Lock()
	t.onProgress = fn
	t.mu.Unlock()
}

// Start launches the background read loop. It is the only path that resolves
// the pending-command slot or delivers progress frames.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if t.started {
		return nil
	}
	t.started = true
	go t.listen()
	return nil
}

func (t *Transport) listen() {
	defer close(t.done)
	var lr lineReader
	buf := make([]byte, t.readBufSize)
	for {
		n, err := t.rw.Read(buf)
		if n > 0 {
			lr.feed(buf[:n], t.handleLine)
		}
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed && !errors.Is(err, io.EOF) {
				t.log.Error("read loop terminated: %s", err.Error())
			}
			return
		}
	}
}

// handleLine classifies one complete line and routes it. Unclassified lines
// are device-side logging noise; malformed JSON on a classified line is
// logged and dropped without disturbing the pending slot.
func (t *Transport) handleLine(line string) {
	r, progress, ok, err := classifyLine(line)
	if !ok {
		return
	}
	if progress {
		if err != nil {
			t.log.Warning("dropping malformed progress frame: %s", err.Error())
			return
		}
		t.mu.Lock()
		fn := t.onProgress
		t.mu.Unlock()
		if fn != nil {
			fn(r)
		}
		return
	}
	if err != nil && err != errMissingSuccess {
		t.log.Warning("dropping malformed frame: %s", err.Error())
		return
	}
	t.resolve(r, err)
}

// resolve hands a classified non-progress frame to the pending waiter, or
// drops it if the waiter already timed out.
func (t *Transport) resolve(r *Response, perr error) {
	t.mu.Lock()
	pc := t.pending
	t.pending = nil
	t.mu.Unlock()
	if pc == nil {
		t.log.Warning("dropping unsolicited response: %s", r.Message)
		return
	}
	if perr == errMissingSuccess {
		pc.ch <- outcome{err: &InvalidResponseError{Command: pc.cmd}}
		return
	}
	pc.ch <- outcome{resp: r}
}

// Send issues one command and waits for the next classified, non-progress
// line, using the default timeout for the command class.
func (t *Transport) Send(ctx context.Context, cmd Command, data string) (*Response, error) {
	return t.SendTimeout(ctx, cmd, data, t.timeoutFor(cmd))
}

// SendTimeout is Send with an explicit response deadline. On expiry the
// pending slot is cleared before the error surfaces, so a lost response can
// never deadlock the transport; a response arriving afterwards is dropped.
func (t *Transport) SendTimeout(ctx context.Context, cmd Command, data string, timeout time.Duration) (*Response, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	if !t.started {
		t.mu.Unlock()
		return nil, errors.New("transport is not started")
	}
	if t.pending != nil {
		t.mu.Unlock()
		return nil, ErrCommandPending
	}
	pc := &pendingCommand{cmd: cmd, ch: make(chan outcome, 1)}
	t.pending = pc
	if _, err := t.rw.Write(encodeFrame(cmd, data)); err != nil {
		t.pending = nil
		t.mu.Unlock()
		return nil, fmt.Errorf("write %s: %w", cmd, err)
	}
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case out := <-pc.ch:
		return out.resp, out.err
	case <-timer.C:
		t.clearPending(pc)
		// The read loop may have resolved the slot in the same instant;
		// prefer the real outcome over the timeout if it did.
		select {
		case out := <-pc.ch:
			return out.resp, out.err
		default:
		}
		t.log.Warning("%s timed out after %s", cmd, timeout)
		return nil, &TimeoutError{Command: cmd, Timeout: timeout}
	case <-ctx.Done():
		t.clearPending(pc)
		select {
		case out := <-pc.ch:
			return out.resp, out.err
		default:
		}
		return nil, ctx.Err()
	}
}

func (t *Transport) clearPending(pc *pendingCommand) {
	t.mu.Lock()
	if t.pending == pc {
		t.pending = nil
	}
	t.mu.Unlock()
}

// SendWithRetry calls Send up to maxAttempts times (0 uses the configured
// default), backing off between attempts. Caller-discipline and lifecycle
// errors are not retried. The final attempt's error propagates unchanged.
func (t *Transport) SendWithRetry(ctx context.Context, cmd Command, data string, maxAttempts int) (*Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = t.retry.MaxAttempts
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := t.Send(ctx, cmd, data)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, ErrCommandPending) || errors.Is(err, ErrTransportClosed) || ctx.Err() != nil {
			break
		}
		if attempt == maxAttempts {
			break
		}
		t.log.Warning("%s attempt %d/%d failed: %s", cmd, attempt, maxAttempts, err.Error())
		if werr := t.retry.Wait(ctx, cmd, attempt); werr != nil {
			return nil, werr
		}
	}
	return nil, lastErr
}

// Close tears the transport down. It is idempotent and safe to call from an
// error path while the read loop is blocked in a read: the underlying stream
// is closed to unblock it, the pending waiter (if any) is failed with
// ErrTransportClosed, and each step is best-effort so a partial failure never
// prevents reaching the closed state.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	pc := t.pending
	t.pending = nil
	started := t.started
	t.mu.Unlock()

	if pc != nil {
		pc.ch <- outcome{err: ErrTransportClosed}
	}
	var cerr error
	if c, ok := t.rw.(io.Closer); ok {
		if cerr = c.Close(); cerr != nil {
			t.log.Warning("closing stream: %s", cerr.Error())
		}
	}
	if started {
		// Give the read loop a moment to observe the closed stream.
		select {
		case <-t.done:
		case <-time.After(time.Second):
			t.log.Warning("read loop did not stop in time")
		}
	}
	return cerr
}

func (t *Transport) timeoutFor(cmd Command) time.Duration {
	if cmd.chunked() {
		return t.chunkTimeout
	}
	return t.controlTimeout
}
