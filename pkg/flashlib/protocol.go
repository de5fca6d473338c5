package flashlib

import (
	"encoding/json"
	"strings"
)

// Command is a protocol opcode sent to the device.
type Command string

const (
	CmdGetInfo          Command = "GET_INFO"
	CmdGetStatus        Command = "GET_STATUS"
	CmdStartUpdate      Command = "START_UPDATE"
	CmdSendChunk        Command = "SEND_CHUNK"
	CmdFinishUpdate     Command = "FINISH_UPDATE"
	CmdAbortUpdate      Command = "ABORT_UPDATE"
	CmdRestart          Command = "RESTART"
	CmdRollback         Command = "ROLLBACK"
	CmdGetPartitionInfo Command = "GET_PARTITION_INFO"
	CmdGetStorageInfo   Command = "GET_STORAGE_INFO"
	CmdValidateFirmware Command = "VALIDATE_FIRMWARE"
)

// chunked reports whether the command carries transfer payload, which gets
// the longer ack timeout and backoff.
func (c Command) chunked() bool {
	return c == CmdSendChunk
}

// UpdateType selects the target image of an update.
type UpdateType string

const (
	UpdateFirmware   UpdateType = "firmware"
	UpdateFilesystem UpdateType = "filesystem"
)

// Frame prefixes used by the device on incoming lines. Lines carrying any
// other prefix are device-side logging noise and are ignored.
const (
	prefixOK       = "OK:"
	prefixError    = "ERROR:"
	prefixProgress = "PROGRESS:"
)

// Response is one decoded protocol frame. Beyond the fields below, devices
// are free to attach arbitrary extra fields; Raw preserves the full payload
// for callers that need them.
type Response struct {
	Success      bool    `json:"success"`
	Message      string  `json:"message,omitempty"`
	State        string  `json:"state,omitempty"`
	Completed    bool    `json:"completed,omitempty"`
	UpdateActive bool    `json:"update_active,omitempty"`
	Mode         string  `json:"current_mode,omitempty"`
	Version      string  `json:"version,omitempty"`
	Received     int64   `json:"received,omitempty"`
	Percent      float64 `json:"percent,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// encodeFrame builds the outgoing wire form of a command:
// "COMMAND\n" or "COMMAND:DATA\n".
func encodeFrame(cmd Command, data string) []byte {
	if data == "" {
		return []byte(string(cmd) + "\n")
	}
	return []byte(string(cmd) + ":" + data + "\n")
}

// parseResponse decodes a classified frame payload. It fails with
// errMissingSuccess if the payload parses but lacks the required success
// field, and with a plain decode error on malformed JSON.
func parseResponse(payload string) (*Response, error) {
	var probe struct {
		Success *bool `json:"success"`
	}
	raw := json.RawMessage(payload)
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	r.Raw = raw
	if probe.Success == nil {
		return &r, errMissingSuccess
	}
	return &r, nil
}

// classifyLine splits one trimmed incoming line into a decoded Response and
// its kind. ok is false for unclassified lines; progress marks PROGRESS:
// frames. An ERROR: frame is normalized to Success=false no matter what its
// payload claims, since the prefix is authoritative.
func classifyLine(line string) (r *Response, progress, ok bool, err error) {
	switch {
	case strings.HasPrefix(line, prefixOK):
		r, err = parseResponse(line[len(prefixOK):])
		ok = true
	case strings.HasPrefix(line, prefixError):
		r, err = parseResponse(line[len(prefixError):])
		ok = true
		if r != nil {
			r.Success = false
		}
	case strings.HasPrefix(line, prefixProgress):
		r, err = parseResponse(line[len(prefixProgress):])
		ok = true
		progress = true
		// Progress frames are not command responses and many devices omit
		// the success field on them; only a completed frame carries it.
		if err == errMissingSuccess {
			err = nil
		}
	}
	return
}
