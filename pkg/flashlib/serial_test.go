package flashlib

import (
	"errors"
	"testing"
)

func TestDefaultSerialConfig(t *testing.T) {
	cfg := DefaultSerialConfig("/dev/ttyUSB0")
	if cfg.Port != "/dev/ttyUSB0" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.BaudRate != 921600 || cfg.DataBits != 8 || cfg.StopBits != 1 {
		t.Errorf("line settings = %d/%d/%d, want 921600/8/1", cfg.BaudRate, cfg.DataBits, cfg.StopBits)
	}
	if cfg.Parity != "none" || cfg.FlowControl != "none" {
		t.Errorf("parity/flow = %q/%q, want none/none", cfg.Parity, cfg.FlowControl)
	}
}

// Invalid line settings are rejected before the port is ever touched, so
// these cases need no hardware.
func TestOpenPortRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SerialConfig)
	}{
		{"unknown parity", func(c *SerialConfig) { c.Parity = "mark" }},
		{"unknown stop bits", func(c *SerialConfig) { c.StopBits = 3 }},
		{"unsupported flow control", func(c *SerialConfig) { c.FlowControl = "rtscts" }},
		{"software flow control", func(c *SerialConfig) { c.FlowControl = "xonxoff" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSerialConfig("/dev/ttyUSB0")
			tt.mutate(&cfg)
			_, err := OpenPort(cfg)
			var oe *OpenError
			if !errors.As(err, &oe) {
				t.Fatalf("OpenPort = %v, want OpenError", err)
			}
			if oe.Port != cfg.Port {
				t.Errorf("OpenError.Port = %q", oe.Port)
			}
		})
	}
}
