package flashlib

import (
	"errors"
	"io"
	"strings"
	"sync"
)

// fakeDevice is an in-memory duplex byte stream scripted like the remote
// device: every outgoing frame is recorded and answered by the handler, and
// tests can inject arbitrary inbound lines (e.g. progress frames) at any
// time via emit.
type fakeDevice struct {
	mu      sync.Mutex
	in      chan []byte
	rem     []byte
	closed  chan struct{}
	once    sync.Once
	handler func(cmd Command, data string) []string
	frames  []string
}

func newFakeDevice(handler func(cmd Command, data string) []string) *fakeDevice {
	return &fakeDevice{
		in:      make(chan []byte, 256),
		closed:  make(chan struct{}),
		handler: handler,
	}
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	if len(d.rem) > 0 {
		n := copy(p, d.rem)
		d.rem = d.rem[n:]
		return n, nil
	}
	select {
	case b := <-d.in:
		n := copy(p, b)
		d.rem = b[n:]
		return n, nil
	case <-d.closed:
		return 0, io.EOF
	}
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	select {
	case <-d.closed:
		return 0, errors.New("device closed")
	default:
	}
	line := strings.TrimSpace(string(p))
	var cmd, data string
	if i := strings.Index(line, ":"); i >= 0 {
		cmd, data = line[:i], line[i+1:]
	} else {
		cmd = line
	}
	d.mu.Lock()
	d.frames = append(d.frames, line)
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		for _, out := range h(Command(cmd), data) {
			d.emit(out)
		}
	}
	return len(p), nil
}

func (d *fakeDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func (d *fakeDevice) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

// emit queues one inbound line for the read loop.
func (d *fakeDevice) emit(line string) {
	select {
	case d.in <- []byte(line + "\n"):
	case <-d.closed:
	}
}

func (d *fakeDevice) sentFrames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.frames))
	copy(out, d.frames)
	return out
}

func (d *fakeDevice) countCmd(cmd Command) int {
	var n int
	for _, f := range d.sentFrames() {
		if f == string(cmd) || strings.HasPrefix(f, string(cmd)+":") {
			n++
		}
	}
	return n
}

// okDeviceHandler scripts a healthy device in update mode that accepts a
// whole update sequence.
func okDeviceHandler(cmd Command, data string) []string {
	switch cmd {
	case CmdGetInfo:
		return []string{`OK:{"success":true,"current_mode":"Update Mode","version":"1.2.3"}`}
	case CmdGetStatus:
		return []string{`OK:{"success":true,"state":"IDLE","update_active":false}`}
	case CmdAbortUpdate:
		return []string{`OK:{"success":true}`}
	case CmdStartUpdate:
		return []string{`OK:{"success":true,"state":"RECEIVING"}`}
	case CmdSendChunk:
		return []string{`OK:{"success":true}`}
	case CmdFinishUpdate:
		return []string{`OK:{"success":true,"completed":true}`}
	default:
		return []string{`OK:{"success":true}`}
	}
}

// fastRetryConfig keeps test backoffs near-instant.
func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		ControlBackoff: 1,
		ChunkBackoff:   1,
		BackoffFactor:  1,
		MaxBackoff:     1,
	}
}
