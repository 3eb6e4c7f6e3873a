// Package config handles tapremote configuration loading and validation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level client configuration.
type Config struct {
	Device    DeviceConfig    `json:"device"`
	Transport TransportConfig `json:"transport"`
	RPC       RPCConfig       `json:"rpc"`
	LogLevel  string          `json:"log_level,omitempty"`
}

// DeviceConfig says where the device is and where to remember it.
type DeviceConfig struct {
	Address  string `json:"address,omitempty"`   // overrides the stored address when set
	DataPath string `json:"data_path,omitempty"` // sqlite preferences file
}

// TransportConfig tunes the WebSocket connection.
type TransportConfig struct {
	ReconnectInterval Duration `json:"reconnect_interval,omitempty"`
	HeartbeatInterval Duration `json:"heartbeat_interval,omitempty"`
	HeartbeatTimeout  Duration `json:"heartbeat_timeout,omitempty"`
	HandshakeTimeout  Duration `json:"handshake_timeout,omitempty"`
	DisableHeartbeat  bool     `json:"disable_heartbeat,omitempty"`
}

// RPCConfig tunes request correlation.
type RPCConfig struct {
	RequestTimeout            Duration `json:"request_timeout,omitempty"`
	RejectPendingOnDisconnect *bool    `json:"reject_pending_on_disconnect,omitempty"` // default true
}

// RejectOnDisconnect reports whether pending calls fail when the connection drops.
func (c RPCConfig) RejectOnDisconnect() bool {
	return c.RejectPendingOnDisconnect == nil || *c.RejectPendingOnDisconnect
}

// Duration is a JSON-friendly time.Duration (accepts strings like "250ms", "30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultPath is where the config file is looked up unless one is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tapremote.json"
	}
	return filepath.Join(dir, "tapremote", "config.json")
}

// DefaultDataPath is where the preferences database lives unless configured.
func DefaultDataPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tapremote-prefs.db"
	}
	return filepath.Join(dir, "tapremote", "prefs.db")
}

// Load reads and validates a config file. A missing file yields Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error")
	}
	durations := map[string]Duration{
		"transport.reconnect_interval": c.Transport.ReconnectInterval,
		"transport.heartbeat_interval": c.Transport.HeartbeatInterval,
		"transport.heartbeat_timeout":  c.Transport.HeartbeatTimeout,
		"transport.handshake_timeout":  c.Transport.HandshakeTimeout,
		"rpc.request_timeout":          c.RPC.RequestTimeout,
	}
	for name, d := range durations {
		if d.Duration < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	hb, timeout := c.Transport.HeartbeatInterval.Duration, c.Transport.HeartbeatTimeout.Duration
	if hb > 0 && timeout > 0 && timeout <= hb {
		return fmt.Errorf("transport.heartbeat_timeout must exceed transport.heartbeat_interval")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Device.DataPath == "" {
		c.Device.DataPath = DefaultDataPath()
	}
	if c.Transport.ReconnectInterval.Duration == 0 {
		c.Transport.ReconnectInterval.Duration = 250 * time.Millisecond
	}
	if c.Transport.HeartbeatInterval.Duration == 0 {
		c.Transport.HeartbeatInterval.Duration = 25 * time.Second
	}
	if c.Transport.HeartbeatTimeout.Duration == 0 {
		c.Transport.HeartbeatTimeout.Duration = 60 * time.Second
	}
	if c.Transport.HandshakeTimeout.Duration == 0 {
		c.Transport.HandshakeTimeout.Duration = 10 * time.Second
	}
	if c.RPC.RequestTimeout.Duration == 0 {
		c.RPC.RequestTimeout.Duration = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
