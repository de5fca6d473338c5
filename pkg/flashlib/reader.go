package flashlib

import (
	"bytes"
	"strings"
)

// lineReader reassembles newline-delimited frames out of an arbitrarily
// fragmented byte stream. The trailing partial line is retained across feeds
// so the classified sequence is independent of how the stream was split
// across reads.
type lineReader struct {
	rem []byte
}

// feed appends p to the pending buffer and emits every complete line, trimmed
// of surrounding whitespace. Empty lines are skipped.
func (lr *lineReader) feed(p []byte, emit func(line string)) {
	lr.rem = append(lr.rem, p...)
	for {
		i := bytes.IndexByte(lr.rem, '\n')
		if i < 0 {
			return
		}
		line := strings.TrimSpace(string(lr.rem[:i]))
		lr.rem = lr.rem[i+1:]
		if line != "" {
			emit(line)
		}
	}
}

// pending reports how many buffered bytes are waiting for a terminator.
func (lr *lineReader) pending() int {
	return len(lr.rem)
}
