package flashlib

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// SerialConfig carries the line settings of the physical port. These are
// deployment configuration, not protocol logic; 921600 8N1 without flow
// control is the canonical setup but observed deployments varied all of it.
type SerialConfig struct {
	Port        string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	FlowControl string
}

// DefaultSerialConfig returns the canonical 921600 8N1 line settings without
// flow control.
func DefaultSerialConfig(port string) SerialConfig {
	return SerialConfig{
		Port:        port,
		BaudRate:    921600,
		DataBits:    8,
		StopBits:    1,
		Parity:      "none",
		FlowControl: "none",
	}
}

// OpenPort claims and configures the serial port, returning the duplex byte
// stream the Transport runs on. Fails with an OpenError if the port cannot
// be claimed or the line settings are invalid.
func OpenPort(cfg SerialConfig) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	switch strings.ToLower(cfg.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "even":
		mode.Parity = serial.EvenParity
	case "odd":
		mode.Parity = serial.OddParity
	default:
		return nil, &OpenError{Port: cfg.Port, Err: fmt.Errorf("unknown parity %q", cfg.Parity)}
	}
	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, &OpenError{Port: cfg.Port, Err: fmt.Errorf("unknown stop bits %d", cfg.StopBits)}
	}
	switch strings.ToLower(cfg.FlowControl) {
	case "", "none":
		// The serial backend exposes no hardware or software flow control;
		// only "none" can be honored.
	default:
		return nil, &OpenError{Port: cfg.Port, Err: fmt.Errorf("unsupported flow control %q", cfg.FlowControl)}
	}
	p, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, &OpenError{Port: cfg.Port, Err: err}
	}
	return p, nil
}

// ListPorts enumerates the serial ports present on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
