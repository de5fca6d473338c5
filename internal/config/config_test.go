package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsFromEnvOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %s", err.Error())
	}
	if cfg.Serial.BaudRate != 921600 {
		t.Errorf("BaudRate = %d", cfg.Serial.BaudRate)
	}
	if cfg.Serial.DataBits != 8 || cfg.Serial.StopBits != 1 || cfg.Serial.Parity != "none" {
		t.Errorf("line settings = %d%s%d", cfg.Serial.DataBits, cfg.Serial.Parity, cfg.Serial.StopBits)
	}
	if cfg.Serial.FlowControl != "none" {
		t.Errorf("FlowControl = %q, want none", cfg.Serial.FlowControl)
	}
	if cfg.Transfer.ChunkSize != 256 {
		t.Errorf("ChunkSize = %d", cfg.Transfer.ChunkSize)
	}
	if cfg.ControlTimeout() != 5*time.Second {
		t.Errorf("ControlTimeout = %s", cfg.ControlTimeout())
	}
	if cfg.ChunkTimeout() != 10*time.Second {
		t.Errorf("ChunkTimeout = %s", cfg.ChunkTimeout())
	}
	if cfg.ConnectTimeout() != 8*time.Second {
		t.Errorf("ConnectTimeout = %s", cfg.ConnectTimeout())
	}
	if cfg.InterChunkDelay() != 5*time.Millisecond {
		t.Errorf("InterChunkDelay = %s", cfg.InterChunkDelay())
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flashlink.yml")
	yml := `serial:
  port: /dev/ttyACM3
  baud_rate: 115200
transfer:
  chunk_size: 512
  control_timeout_ms: 2500
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("writing fixture: %s", err.Error())
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err.Error())
	}
	if cfg.Serial.Port != "/dev/ttyACM3" {
		t.Errorf("Port = %q", cfg.Serial.Port)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("BaudRate = %d", cfg.Serial.BaudRate)
	}
	if cfg.Transfer.ChunkSize != 512 {
		t.Errorf("ChunkSize = %d", cfg.Transfer.ChunkSize)
	}
	if cfg.ControlTimeout() != 2500*time.Millisecond {
		t.Errorf("ControlTimeout = %s", cfg.ControlTimeout())
	}
	// Fields absent from the file keep their defaults.
	if cfg.Transfer.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d", cfg.Transfer.MaxAttempts)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flashlink.yml")
	if err := os.WriteFile(path, []byte("serial:\n  port: /dev/ttyUSB0\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %s", err.Error())
	}
	t.Setenv("FLASHLINK_PORT", "/dev/ttyUSB7")
	t.Setenv("FLASHLINK_CHUNK_SIZE", "1024")
	t.Setenv("FLASHLINK_FLOW_CONTROL", "rtscts")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err.Error())
	}
	if cfg.Serial.Port != "/dev/ttyUSB7" {
		t.Errorf("Port = %q, want the env override", cfg.Serial.Port)
	}
	if cfg.Transfer.ChunkSize != 1024 {
		t.Errorf("ChunkSize = %d, want the env override", cfg.Transfer.ChunkSize)
	}
	// The config layer carries the value as-is; OpenPort is where an
	// unsupported flow control gets rejected.
	if cfg.Serial.FlowControl != "rtscts" {
		t.Errorf("FlowControl = %q, want the env override", cfg.Serial.FlowControl)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
