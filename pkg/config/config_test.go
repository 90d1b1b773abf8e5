package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	data := []byte(`
bridge_address: 192.168.1.50
cert_dir: /etc/leap/certs
request_timeout: 5s
pairing_window: 1m
log_file: /var/log/leap.cbor
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.BridgeAddress != "192.168.1.50" {
		t.Errorf("BridgeAddress = %q", cfg.BridgeAddress)
	}
	if cfg.CertDir != "/etc/leap/certs" {
		t.Errorf("CertDir = %q", cfg.CertDir)
	}
	if cfg.RequestTimeout.Std() != 5*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout.Std())
	}
	if cfg.PairingWindow.Std() != time.Minute {
		t.Errorf("PairingWindow = %v", cfg.PairingWindow.Std())
	}
	if cfg.LogFile != "/var/log/leap.cbor" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("bridge_address: bridge.local\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.CertDir != DefaultCertDir {
		t.Errorf("CertDir = %q, want %q", cfg.CertDir, DefaultCertDir)
	}
	if cfg.RequestTimeout.Std() != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout.Std())
	}
	if cfg.PairingWindow.Std() != 30*time.Second {
		t.Errorf("PairingWindow = %v, want 30s", cfg.PairingWindow.Std())
	}
}

func TestParseBadDuration(t *testing.T) {
	_, err := Parse([]byte("request_timeout: fast\n"))
	if err == nil {
		t.Fatal("Parse() accepted an unparseable duration")
	}
	if !strings.Contains(err.Error(), "fast") {
		t.Errorf("error %q does not name the bad value", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leap.yaml")
	if err := os.WriteFile(path, []byte("bridge_address: 10.0.0.2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BridgeAddress != "10.0.0.2" {
		t.Errorf("BridgeAddress = %q", cfg.BridgeAddress)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() succeeded on a missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvBridgeAddress, "10.1.1.1")
	t.Setenv(EnvCertDir, "/tmp/certs")

	cfg := Default()
	cfg.BridgeAddress = "file-value"
	cfg.ApplyEnv()

	if cfg.BridgeAddress != "10.1.1.1" {
		t.Errorf("BridgeAddress = %q, want env override", cfg.BridgeAddress)
	}
	if cfg.CertDir != "/tmp/certs" {
		t.Errorf("CertDir = %q, want env override", cfg.CertDir)
	}
}

func TestApplyEnvEmptyIgnored(t *testing.T) {
	t.Setenv(EnvBridgeAddress, "")
	cfg := Default()
	cfg.BridgeAddress = "file-value"
	cfg.ApplyEnv()
	if cfg.BridgeAddress != "file-value" {
		t.Errorf("BridgeAddress = %q, empty env must not override", cfg.BridgeAddress)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) { c.BridgeAddress = "10.0.0.2" }, false},
		{"missing address", func(c *Config) {}, true},
		{"missing cert dir", func(c *Config) { c.BridgeAddress = "10.0.0.2"; c.CertDir = "" }, true},
		{"negative timeout", func(c *Config) { c.BridgeAddress = "10.0.0.2"; c.RequestTimeout = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
