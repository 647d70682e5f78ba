package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Config represents the configuration for the peerchat application.
// Durations are stored as whole seconds in the file; the accessor methods
// return time.Duration.
type Config struct {
	// Default config file location
	configFile string

	Tracker struct {
		ListenAddress      string `json:"listen_address"`
		LivenessTimeoutSec int    `json:"liveness_timeout"`
		SweepIntervalSec   int    `json:"sweep_interval"`
	} `json:"tracker"`

	Peer struct {
		ListenPort           int    `json:"listen_port"`
		AdvertisedIP         string `json:"advertised_ip"` // autodetected when empty
		TrackerAddress       string `json:"tracker_address"`
		HeartbeatIntervalSec int    `json:"heartbeat_interval"`
		DialTimeoutSec       int    `json:"dial_timeout"`
		HistoryPath          string `json:"history"`
	} `json:"peer"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Tracker.ListenAddress = "0.0.0.0:5000"
	cfg.Tracker.LivenessTimeoutSec = 300
	cfg.Tracker.SweepIntervalSec = 60

	cfg.Peer.ListenPort = 6000
	cfg.Peer.TrackerAddress = "127.0.0.1:5000"
	cfg.Peer.HeartbeatIntervalSec = 60
	cfg.Peer.DialTimeoutSec = 5
	cfg.Peer.HistoryPath = "/tmp/peerchat/history"

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.configFile, data, 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, c); err != nil {
		return err
	}

	return nil
}

func (c *Config) LivenessTimeout() time.Duration {
	return time.Duration(c.Tracker.LivenessTimeoutSec) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Tracker.SweepIntervalSec) * time.Second
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Peer.HeartbeatIntervalSec) * time.Second
}

func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Peer.DialTimeoutSec) * time.Second
}
