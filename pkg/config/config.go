// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the bridge configuration from YAML with environment
// overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no config file is given
const DefaultPath = "lidarbridge.yaml"

// Config holds all bridge configuration
type Config struct {
	mu sync.RWMutex

	// LiDAR link
	Lidar LidarConfig `yaml:"lidar"`

	// Operator console link
	Console ConsoleConfig `yaml:"console"`

	// PWM outputs
	PWM PWMConfig `yaml:"pwm"`

	// Scheduler
	Bridge BridgeConfig `yaml:"bridge"`

	// Scan point export
	Export ExportConfig `yaml:"export"`

	path string
}

// LidarConfig selects the LiDAR link. URL takes precedence over Port and
// connects through a WebSocket serial bridge.
type LidarConfig struct {
	Port        string `yaml:"port"` // e.g. /dev/ttyUSB0
	Baud        int    `yaml:"baud"`
	URL         string `yaml:"url"` // e.g. ws://host/serial
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// ConsoleConfig selects the operator console. An empty port uses the local
// terminal.
type ConsoleConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// PWMConfig holds "<chip>:<channel>" specs; empty logs instead of driving
// hardware
type PWMConfig struct {
	Servo string `yaml:"servo"`
	Motor string `yaml:"motor"`
}

type BridgeConfig struct {
	ResetOnStart bool          `yaml:"reset_on_start"`
	IdleInterval time.Duration `yaml:"idle_interval"`
}

type ExportConfig struct {
	CBORPath string `yaml:"cbor_path"`
	MQTTURL  string `yaml:"mqtt_url"` // e.g. mqtt://broker:1883/lab/lidar
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Lidar: LidarConfig{
			Port: "/dev/ttyUSB0",
			Baud: 115200,
		},
		Console: ConsoleConfig{
			Baud: 115200,
		},
		Bridge: BridgeConfig{
			ResetOnStart: true,
			IdleInterval: time.Millisecond,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and
// environment variable overrides. Falls back to defaults if the file is
// missing or invalid.
func LoadConfig(path string) *Config {
	if path == "" {
		path = DefaultPath
	}
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		glog.V(1).Infof("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		glog.Warningf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		glog.Infof("[config] loaded from %s", path)
	}

	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Path returns the file the config was loaded from
func (c *Config) Path() string {
	return c.path
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
// Variables already set in the environment win.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	glog.V(1).Infof("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: LIDAR_PORT, LIDAR_BAUD, LIDAR_URL, CONSOLE_PORT, CONSOLE_BAUD,
// SERVO_PWM, MOTOR_PWM, EXPORT_CBOR, EXPORT_MQTT
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LIDAR_PORT"); v != "" {
		c.Lidar.Port = v
	}
	if v := os.Getenv("LIDAR_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Lidar.Baud = n
		}
	}
	if v := os.Getenv("LIDAR_URL"); v != "" {
		c.Lidar.URL = v
	}
	if v := os.Getenv("CONSOLE_PORT"); v != "" {
		c.Console.Port = v
	}
	if v := os.Getenv("CONSOLE_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Console.Baud = n
		}
	}
	if v := os.Getenv("SERVO_PWM"); v != "" {
		c.PWM.Servo = v
	}
	if v := os.Getenv("MOTOR_PWM"); v != "" {
		c.PWM.Motor = v
	}
	if v := os.Getenv("EXPORT_CBOR"); v != "" {
		c.Export.CBORPath = v
	}
	if v := os.Getenv("EXPORT_MQTT"); v != "" {
		c.Export.MQTTURL = v
	}
}

// Marshal returns the config as YAML
func (c *Config) Marshal() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return yaml.Marshal(c)
}

// Save writes the config to its YAML file
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		c.path = DefaultPath
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}
