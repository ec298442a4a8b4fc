package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/ghsd"
	"github.com/srg/ghsd/internal/ghs"
	"github.com/srg/ghsd/internal/subscription"
	"github.com/srg/ghsd/internal/uds"
)

// Value source kinds
const (
	SourceSimulated = "simulated"
	SourceLua       = "lua"
)

// Config holds application configuration
type Config struct {
	LogLevel   logrus.Level `yaml:"-"`
	LogLevelID string       `yaml:"log_level" default:"info"`

	DeviceName string `yaml:"device_name" default:"PHILIPS POX22"`
	Advertise  bool   `yaml:"advertise" default:"true"`

	// SubscriptionPolicy is one of retain-bonded, drop-on-disconnect, platform.
	SubscriptionPolicy string   `yaml:"subscription_policy" default:"retain-bonded"`
	BondedClients      []string `yaml:"bonded_clients"`

	RegisteredUsers map[uint8]uint16 `yaml:"registered_users"`

	Schedule ScheduleConfig `yaml:"schedule"`
	Source   SourceConfig   `yaml:"source"`
	Device   DeviceInfo     `yaml:"device_info"`

	FeedSize       uint32        `yaml:"feed_size" default:"64"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"5s"`
}

// ScheduleConfig is the schedule in force at startup, in seconds.
type ScheduleConfig struct {
	MeasurementDuration float32 `yaml:"measurement_duration" default:"1.0"`
	UpdateInterval      float32 `yaml:"update_interval" default:"1.0"`
}

// SourceConfig selects where observation values come from.
// A lua source without a script runs the embedded default script.
type SourceConfig struct {
	Kind   string `yaml:"kind" default:"simulated"`
	Seed   int64  `yaml:"seed"`
	Script string `yaml:"script"`
}

// DeviceInfo holds the Device Information Service strings.
type DeviceInfo struct {
	Manufacturer string `yaml:"manufacturer" default:"Philips"`
	Model        string `yaml:"model" default:"POX22"`
	Serial       string `yaml:"serial" default:"m1"`
	UDILabel     string `yaml:"udi_label" default:"Philips POX22-1234"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.RegisteredUsers = uds.DefaultUsers()
	cfg.LogLevel = logrus.InfoLevel
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	// yaml merges into existing maps; a configured user table replaces the default one.
	cfg.RegisteredUsers = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if len(cfg.RegisteredUsers) == 0 {
		cfg.RegisteredUsers = uds.DefaultUsers()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values and resolves derived fields.
func (c *Config) Validate() error {
	level, err := logrus.ParseLevel(c.LogLevelID)
	if err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	c.LogLevel = level

	if _, err := subscription.ParsePolicy(c.SubscriptionPolicy); err != nil {
		return err
	}

	if _, err := ghs.DecodeSchedule(c.InitialSchedule().Encode(), ghs.MDCPulseOximSatO2); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	switch c.Source.Kind {
	case SourceSimulated:
	case SourceLua:
		if c.Source.Script == "" {
			c.Source.Script = ghsd.DefaultValueLuaScript
		}
	default:
		return fmt.Errorf("unknown source kind %q (must be %s or %s)", c.Source.Kind, SourceSimulated, SourceLua)
	}

	if c.FeedSize == 0 || c.FeedSize > ghs.MaxFeedSize {
		return fmt.Errorf("feed_size must be in [1, %d]", ghs.MaxFeedSize)
	}
	if len(c.RegisteredUsers) == 0 {
		return fmt.Errorf("at least one registered user is required")
	}
	return nil
}

// Policy returns the parsed subscription policy.
func (c *Config) Policy() subscription.Policy {
	p, _ := subscription.ParsePolicy(c.SubscriptionPolicy)
	return p
}

// InitialSchedule returns the configured startup schedule for the pulse oximeter sensor type.
func (c *Config) InitialSchedule() ghs.Schedule {
	return ghs.Schedule{
		SensorType:          ghs.MDCPulseOximSatO2,
		MeasurementDuration: c.Schedule.MeasurementDuration,
		UpdateInterval:      c.Schedule.UpdateInterval,
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
