package profile

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultConfigFile is the session configuration written by calibrate and
// read by teleoperate.
const DefaultConfigFile = "teleop.json"

// Config is the per-deployment configuration: which pairing, where the
// follower lives, and any local overrides of the pairing defaults.
type Config struct {
	Pairing        string            `json:"pairing"`
	RemoteHost     string            `json:"remote_host,omitempty"`
	CalibrationDir string            `json:"calibration_dir,omitempty"`
	Ports          map[string]string `json:"ports,omitempty"` // arm ID -> device path
	Hz             int               `json:"hz,omitempty"`
}

// Resolve returns the pairing with config overrides applied.
func (c *Config) Resolve() (Pairing, error) {
	p, ok := Lookup(c.Pairing)
	if !ok {
		return Pairing{}, fmt.Errorf("unknown pairing %q (known: %v)", c.Pairing, Names())
	}
	if c.RemoteHost == "" {
		c.RemoteHost = p.DefaultHost
	}
	if c.CalibrationDir == "" {
		c.CalibrationDir = "calibration"
	}
	if c.Hz > 0 {
		p.Hz = c.Hz
	}
	for i, a := range p.Arms {
		if port, ok := c.Ports[a.ID]; ok {
			p.Arms[i].Port = port
		}
	}
	return p, nil
}

// LoadConfig loads the default config file.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo writes configuration to a specific file.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ConfigExists reports whether the default config file exists.
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
