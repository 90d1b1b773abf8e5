package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by ApplyEnv. They take precedence
// over the file so a deployment can point an unchanged config at a
// different bridge.
const (
	EnvBridgeAddress = "LUTRON_BRIDGE_IP"
	EnvCertDir       = "LUTRON_CERT_DIR"
)

// DefaultCertDir is used when neither the file nor the environment
// names a credential directory.
const DefaultCertDir = "lutron_certs"

// Config is the client configuration.
type Config struct {
	// BridgeAddress is the bridge host or host:port.
	BridgeAddress string `yaml:"bridge_address"`

	// CertDir holds the pairing credential files.
	CertDir string `yaml:"cert_dir"`

	// RequestTimeout bounds each request (default: 10s).
	RequestTimeout Duration `yaml:"request_timeout"`

	// PairingWindow bounds a pairing attempt (default: 30s).
	PairingWindow Duration `yaml:"pairing_window"`

	// LogFile receives the protocol event capture. Empty disables it.
	LogFile string `yaml:"log_file"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		CertDir:        DefaultCertDir,
		RequestTimeout: Duration(10 * time.Second),
		PairingWindow:  Duration(30 * time.Second),
	}
}

// Parse parses a YAML configuration, filling unset fields from
// Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.CertDir == "" {
		cfg.CertDir = DefaultCertDir
	}
	return cfg, nil
}

// Load loads and parses a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// ApplyEnv overlays recognized environment variables onto the
// configuration.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvBridgeAddress); v != "" {
		c.BridgeAddress = v
	}
	if v := os.Getenv(EnvCertDir); v != "" {
		c.CertDir = v
	}
}

// Validate checks that the configuration is usable for connecting.
func (c Config) Validate() error {
	if c.BridgeAddress == "" {
		return errors.New("bridge address is required (set bridge_address or " + EnvBridgeAddress + ")")
	}
	if c.CertDir == "" {
		return errors.New("certificate directory is required")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request timeout must not be negative")
	}
	return nil
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "10s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
