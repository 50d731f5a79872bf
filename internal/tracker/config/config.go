package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"

	baseclient "github.com/netvoice/tracker/internal/client"
	"github.com/netvoice/tracker/internal/util"
)

const (
	// DefaultPollInterval is the default interval between two authoritative
	// poll refreshes while an operation is running or paused.
	DefaultPollInterval = 3 * time.Second
	// DefaultReconnectDelay is the base delay before the push channel retries
	// a broken connection. Retries back off exponentially from this value.
	DefaultReconnectDelay = 3 * time.Second
	// DefaultMaxReconnectDelay caps the reconnect backoff.
	DefaultMaxReconnectDelay = 60 * time.Second
	// DefaultHistoryRefreshInterval is the default interval between refreshes
	// of the history candidate list.
	DefaultHistoryRefreshInterval = 10 * time.Second
	// DefaultBufferCapacity is the number of push messages retained by the
	// channel's inbound buffer.
	DefaultBufferCapacity = 100
	// DefaultRecentOperations is the size of the recent-operations cache.
	DefaultRecentOperations = 10
	// DefaultStatusPort is the port of the local read-only status server.
	DefaultStatusPort = 3334
	// DefaultConfigDir is the default directory where the tracker's configuration is stored
	DefaultConfigDir = "/etc/netvoice"
	// DefaultConfigFile is the default path to the tracker's configuration file
	DefaultConfigFile = DefaultConfigDir + "/tracker.yaml"
)

type Config struct {
	// OperationsService is the client configuration for reaching the
	// operations service (pull API and push channel).
	OperationsService OperationsService `json:"operations-service,omitempty"`

	// PollInterval is the interval between two authoritative refreshes.
	PollInterval util.Duration `json:"poll-interval,omitempty"`
	// ReconnectDelay is the base delay of the push channel reconnect backoff.
	ReconnectDelay util.Duration `json:"reconnect-delay,omitempty"`
	// MaxReconnectDelay caps the reconnect backoff.
	MaxReconnectDelay util.Duration `json:"max-reconnect-delay,omitempty"`
	// HistoryRefreshInterval is the interval between refreshes of the history
	// candidate list while any candidate is still non-terminal.
	HistoryRefreshInterval util.Duration `json:"history-refresh-interval,omitempty"`

	// BufferCapacity bounds the push channel's inbound message buffer.
	BufferCapacity int `json:"buffer-capacity,omitempty" validate:"gt=0"`
	// RecentOperations bounds the recent-operations cache.
	RecentOperations int `json:"recent-operations,omitempty" validate:"gt=0"`

	// StatusPort is the port of the local read-only status server. A value
	// of 0 disables the server.
	StatusPort int `json:"status-port,omitempty" validate:"gte=0,lte=65535"`

	// LabId selects the lab targeted by started operations.
	LabId string `json:"lab-id,omitempty"`

	// LogLevel is the level of logging. can be:  "panic", "fatal", "error", "warn"/"warning",
	// "info", "debug" or "trace", any other will be treated as "info"
	LogLevel string `json:"log-level,omitempty"`
}

type OperationsService struct {
	baseclient.Config
}

func (s *OperationsService) Equal(s2 *OperationsService) bool {
	if s == s2 {
		return true
	}
	return s.Config.Equal(&s2.Config)
}

// envOverrides are the runtime-tunable knobs that may be set through the
// environment without editing the config file. Zero values mean "not set".
type envOverrides struct {
	PollInterval           time.Duration `envconfig:"TRACKER_POLL_INTERVAL"`
	ReconnectDelay         time.Duration `envconfig:"TRACKER_RECONNECT_DELAY"`
	MaxReconnectDelay      time.Duration `envconfig:"TRACKER_MAX_RECONNECT_DELAY"`
	HistoryRefreshInterval time.Duration `envconfig:"TRACKER_HISTORY_REFRESH_INTERVAL"`
	BufferCapacity         int           `envconfig:"TRACKER_BUFFER_CAPACITY"`
	RecentOperations       int           `envconfig:"TRACKER_RECENT_OPERATIONS"`
	StatusPort             int           `envconfig:"TRACKER_STATUS_PORT"`
	LogLevel               string        `envconfig:"TRACKER_LOG_LEVEL"`
}

func NewDefault() *Config {
	return &Config{
		OperationsService:      OperationsService{Config: *baseclient.NewDefault()},
		PollInterval:           util.Duration{Duration: DefaultPollInterval},
		ReconnectDelay:         util.Duration{Duration: DefaultReconnectDelay},
		MaxReconnectDelay:      util.Duration{Duration: DefaultMaxReconnectDelay},
		HistoryRefreshInterval: util.Duration{Duration: DefaultHistoryRefreshInterval},
		BufferCapacity:         DefaultBufferCapacity,
		RecentOperations:       DefaultRecentOperations,
		StatusPort:             DefaultStatusPort,
		LogLevel:               logrus.InfoLevel.String(),
	}
}

// ParseConfigFile reads the config file and unmarshals it into the Config struct,
// then applies environment overrides on top.
func (cfg *Config) ParseConfigFile(cfgFile string) error {
	contents, err := os.ReadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return fmt.Errorf("unmarshalling config file: %w", err)
	}
	cfg.OperationsService.Config.SetBaseDir(filepath.Dir(cfgFile))
	return cfg.ApplyEnvOverrides()
}

// ApplyEnvOverrides folds environment variables into the config. Only
// variables that are actually set override file values.
func (cfg *Config) ApplyEnvOverrides() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("processing environment overrides: %w", err)
	}
	if env.PollInterval > 0 {
		cfg.PollInterval = util.Duration{Duration: env.PollInterval}
	}
	if env.ReconnectDelay > 0 {
		cfg.ReconnectDelay = util.Duration{Duration: env.ReconnectDelay}
	}
	if env.MaxReconnectDelay > 0 {
		cfg.MaxReconnectDelay = util.Duration{Duration: env.MaxReconnectDelay}
	}
	if env.HistoryRefreshInterval > 0 {
		cfg.HistoryRefreshInterval = util.Duration{Duration: env.HistoryRefreshInterval}
	}
	if env.BufferCapacity > 0 {
		cfg.BufferCapacity = env.BufferCapacity
	}
	if env.RecentOperations > 0 {
		cfg.RecentOperations = env.RecentOperations
	}
	if env.StatusPort > 0 {
		cfg.StatusPort = env.StatusPort
	}
	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}
	return nil
}

// Validate checks that the required fields are set and within bounds.
func (cfg *Config) Validate() error {
	if err := cfg.OperationsService.Validate(); err != nil {
		return err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if cfg.ReconnectDelay.Duration <= 0 {
		return fmt.Errorf("reconnect-delay must be positive")
	}
	if cfg.MaxReconnectDelay.Duration < cfg.ReconnectDelay.Duration {
		return fmt.Errorf("max-reconnect-delay must not be smaller than reconnect-delay")
	}
	return nil
}

func (cfg *Config) String() string {
	contents, err := json.Marshal(cfg)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}
