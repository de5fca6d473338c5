package flashlib

// TransferSession is the ephemeral state of one update attempt. It is created
// when the transfer body starts and discarded on completion, abort, or
// failure; nothing here survives a process restart.
type TransferSession struct {
	// Size is the total payload size in bytes.
	Size int64
	// Type is the target image of the update.
	Type UpdateType
	// ChunkSize is the fixed binary slice size per SEND_CHUNK.
	ChunkSize int
	// TotalChunks is the number of chunks the payload splits into.
	TotalChunks int
	// Index is the current 0-based chunk index.
	Index int
	// Sent is the number of payload bytes acknowledged so far.
	Sent int64

	consecErrs int
	lastErr    error
}

func newSession(size int64, typ UpdateType, chunkSize int) *TransferSession {
	total := int(size / int64(chunkSize))
	if size%int64(chunkSize) != 0 {
		total++
	}
	return &TransferSession{
		Size:        size,
		Type:        typ,
		ChunkSize:   chunkSize,
		TotalChunks: total,
	}
}

// chunk returns the binary slice for the current index.
func (s *TransferSession) chunk(data []byte) []byte {
	off := int64(s.Index) * int64(s.ChunkSize)
	end := off + int64(s.ChunkSize)
	if end > s.Size {
		end = s.Size
	}
	return data[off:end]
}

// succeed records an acknowledged chunk: the consecutive-error counter resets
// to zero and the index advances. Only back-to-back failures count against
// the ceiling; sparse failures do not accumulate across the transfer.
func (s *TransferSession) succeed(n int) {
	s.consecErrs = 0
	s.lastErr = nil
	s.Sent += int64(n)
	s.Index++
}

// fail records a failed chunk attempt without advancing the index and returns
// the consecutive-error count.
func (s *TransferSession) fail(err error) int {
	s.consecErrs++
	s.lastErr = err
	return s.consecErrs
}

// done reports whether every chunk has been acknowledged.
func (s *TransferSession) done() bool {
	return s.Index >= s.TotalChunks
}

// percent is the completed fraction of the payload in [0, 100].
func (s *TransferSession) percent() float64 {
	if s.Size == 0 {
		return 100
	}
	return float64(s.Sent) / float64(s.Size) * 100
}
