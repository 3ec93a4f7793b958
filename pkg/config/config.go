// Package config loads the edge coordinator's YAML configuration file,
// covering broker connectivity, origin access, and the periods that drive
// the coordinator's timers.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of externally supplied settings. Provisioning
// the broker, certificates, and process environment are out of scope:
// this struct only reads what is handed to it.
type Config struct {
	LocalBroker  LocalBrokerConfig  `yaml:"local_broker"`
	RemoteBroker RemoteBrokerConfig `yaml:"remote_broker"`
	Origin       OriginConfig       `yaml:"origin"`
	Signing      SigningConfig      `yaml:"signing"`
	Log          LogConfig          `yaml:"log"`
	Periods      PeriodsConfig      `yaml:"periods"`
	NodeID       string             `yaml:"node_id"`
	HTTPAddr     string             `yaml:"http_addr"`
}

// LocalBrokerConfig describes the mTLS connection to the local broker
// shared with door nodes.
type LocalBrokerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// RemoteBrokerConfig describes the TLS+password connection to the
// origin's broker, used only to relay access events.
type RemoteBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// OriginConfig describes the origin HTTP surface.
type OriginConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// SigningConfig points at the private key used to sign outbound
// messages.
type SigningConfig struct {
	PrivateKeyPath string `yaml:"private_key_path"`
}

// LogConfig controls structured logging and the access log file path.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
	AccessLog  string `yaml:"access_log_path"`
}

// PeriodsConfig holds every interval and limit named by the external
// interface surface.
type PeriodsConfig struct {
	AccessList    time.Duration `yaml:"access_list"`
	LogUpload     time.Duration `yaml:"log_upload"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
	VoteTimeout   time.Duration `yaml:"vote_timeout"`
	LockoutWindow time.Duration `yaml:"lockout_window"`
	PublishLimit  int           `yaml:"publish_limit"`
}

// Default returns the configuration defaults named by the external
// interface surface: ACCESS_LIST=300s, LOGS=604800s, HEARTBEAT=1800s,
// VOTE_TIMEOUT=10s, LOCKOUT_WINDOW=10s, LIMIT=100.
func Default() Config {
	return Config{
		HTTPAddr: ":9090",
		Periods: PeriodsConfig{
			AccessList:    300 * time.Second,
			LogUpload:     604800 * time.Second,
			Heartbeat:     1800 * time.Second,
			VoteTimeout:   10 * time.Second,
			LockoutWindow: 10 * time.Second,
			PublishLimit:  100,
		},
		Log: LogConfig{
			Level:     "info",
			AccessLog: "access.log",
		},
	}
}

// Load reads and parses a YAML configuration file at path. Keys the file
// omits keep their value from Default; a key set explicitly to a zero
// value keeps that zero value.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if c.Origin.BaseURL == "" {
		return fmt.Errorf("origin.base_url is required")
	}
	if c.Signing.PrivateKeyPath == "" {
		return fmt.Errorf("signing.private_key_path is required")
	}
	if c.Periods.PublishLimit <= 0 {
		return fmt.Errorf("periods.publish_limit must be positive")
	}
	return nil
}
