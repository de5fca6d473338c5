package flashlib

import "time"

// Size unit constants for byte conversions.
const (
	// B represents one byte.
	B int64 = 1
	// KB represents one kilobyte (1024 bytes).
	KB = 1024 * B
	// MB represents one megabyte (1024 kilobytes).
	MB = 1024 * KB
)

const (
	// DEF_CHUNK_SIZE is the default binary slice size sent per SEND_CHUNK.
	// Deployments have used anything between MIN_CHUNK_SIZE and
	// MAX_CHUNK_SIZE depending on the receiver's buffer budget.
	DEF_CHUNK_SIZE = 256
	MIN_CHUNK_SIZE = 128
	MAX_CHUNK_SIZE = 1024

	DEF_MAX_ATTEMPTS  = 3
	DEF_ERROR_CEILING = 3
)

const (
	// DEF_CONTROL_TIMEOUT bounds the wait for a control command response.
	DEF_CONTROL_TIMEOUT = 5 * time.Second
	// DEF_CHUNK_TIMEOUT bounds the wait for a SEND_CHUNK acknowledgement.
	// Chunk acks can lag behind flash-write latency on the device, so this
	// is deliberately longer than the control timeout.
	DEF_CHUNK_TIMEOUT = 10 * time.Second
	// DEF_CONNECT_TIMEOUT bounds the first command after opening the
	// transport, which can be slowed down by device boot settle time.
	DEF_CONNECT_TIMEOUT = 8 * time.Second

	DEF_CONTROL_BACKOFF = 200 * time.Millisecond
	DEF_CHUNK_BACKOFF   = 500 * time.Millisecond
	DEF_MAX_BACKOFF     = 5 * time.Second
	DEF_BACKOFF_FACTOR  = 2.0

	// DEF_SETTLE_DELAY is slept after ABORT_UPDATE during state reset so the
	// device can tear down a half-open transfer.
	DEF_SETTLE_DELAY = 300 * time.Millisecond
	// DEF_INTERCHUNK_DELAY paces chunk writes to avoid overrunning a
	// constrained receiver buffer.
	DEF_INTERCHUNK_DELAY = 5 * time.Millisecond
	// DEF_GRACE_DELAY is how long the transport stays open after a
	// successful update before the scheduled close, giving the device time
	// to begin its restart.
	DEF_GRACE_DELAY = 500 * time.Millisecond
	// DEF_PROGRESS_INTERVAL caps how often transfer progress is emitted.
	DEF_PROGRESS_INTERVAL = 250 * time.Millisecond
)

const (
	// DEF_READY_STATE is the state token the device is expected to report
	// after accepting START_UPDATE.
	DEF_READY_STATE = "RECEIVING"
	// DEF_UPDATE_MODE is the operating mode required for update commands to
	// be accepted.
	DEF_UPDATE_MODE = "Update Mode"
)
