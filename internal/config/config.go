// Package config loads the host-side deployment configuration: serial line
// settings and transfer tunables. Values come from an optional YAML file
// with environment variable overrides.
package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Serial struct {
		Port        string `yaml:"port" env:"FLASHLINK_PORT" env-default:""`
		BaudRate    int    `yaml:"baud_rate" env:"FLASHLINK_BAUD" env-default:"921600"`
		DataBits    int    `yaml:"data_bits" env-default:"8"`
		StopBits    int    `yaml:"stop_bits" env-default:"1"`
		Parity      string `yaml:"parity" env-default:"none"`
		FlowControl string `yaml:"flow_control" env:"FLASHLINK_FLOW_CONTROL" env-default:"none"`
	} `yaml:"serial"`
	Transfer struct {
		ChunkSize        int `yaml:"chunk_size" env:"FLASHLINK_CHUNK_SIZE" env-default:"256"`
		ErrorCeiling     int `yaml:"error_ceiling" env-default:"3"`
		MaxAttempts      int `yaml:"max_attempts" env-default:"3"`
		ControlTimeoutMs int `yaml:"control_timeout_ms" env-default:"5000"`
		ChunkTimeoutMs   int `yaml:"chunk_timeout_ms" env-default:"10000"`
		ConnectTimeoutMs int `yaml:"connect_timeout_ms" env-default:"8000"`
		InterChunkUs     int `yaml:"inter_chunk_us" env-default:"5000"`
	} `yaml:"transfer"`
}

// Load reads the configuration file at path, or just the environment when
// path is empty.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ControlTimeout returns the control command timeout as a duration.
func (c *Config) ControlTimeout() time.Duration {
	return time.Duration(c.Transfer.ControlTimeoutMs) * time.Millisecond
}

// ChunkTimeout returns the chunk acknowledgement timeout as a duration.
func (c *Config) ChunkTimeout() time.Duration {
	return time.Duration(c.Transfer.ChunkTimeoutMs) * time.Millisecond
}

// ConnectTimeout returns the first-command timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Transfer.ConnectTimeoutMs) * time.Millisecond
}

// InterChunkDelay returns the pacing delay between chunk sends.
func (c *Config) InterChunkDelay() time.Duration {
	return time.Duration(c.Transfer.InterChunkUs) * time.Microsecond
}
