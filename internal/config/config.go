// Package config provides unified configuration loading for fcouncil.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/forensic-council/internal/constants"
	"github.com/nvandessel/forensic-council/internal/engine"
)

// FileName is the name of the config file inside ~/.fcouncil.
const FileName = "config.yaml"

// CouncilConfig contains all fcouncil configuration settings.
type CouncilConfig struct {
	// Simulation controls the pacing of a run and the agent roster.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Intake limits which evidence files are accepted.
	Intake IntakeConfig `json:"intake" yaml:"intake"`

	// Storage locates the report database and controls backup retention.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Server configures `fcouncil serve`.
	Server ServerConfig `json:"server" yaml:"server"`

	// Logging contains settings for operational logging and transition tracing.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig configures run timing.
type SimulationConfig struct {
	// LeadIn selects "full" (analyzing then initiating) or "lean" (initiating only).
	LeadIn string `json:"lead_in" yaml:"lead_in"`

	Analyzing      time.Duration `json:"analyzing" yaml:"analyzing"`
	Initiating     time.Duration `json:"initiating" yaml:"initiating"`
	Stage          time.Duration `json:"stage" yaml:"stage"`
	StageJitter    time.Duration `json:"stage_jitter" yaml:"stage_jitter"`
	PhraseInterval time.Duration `json:"phrase_interval" yaml:"phrase_interval"`

	// Catalog is an optional path to a YAML agent roster. Empty uses the
	// built-in roster.
	Catalog string `json:"catalog,omitempty" yaml:"catalog,omitempty"`
}

// Timing converts the settings into engine timing.
func (s SimulationConfig) Timing() engine.Timing {
	return engine.Timing{
		Analyzing:      s.Analyzing,
		Initiating:     s.Initiating,
		Stage:          s.Stage,
		StageJitter:    s.StageJitter,
		PhraseInterval: s.PhraseInterval,
		SkipAnalysis:   s.LeadIn == constants.LeadInLean,
	}
}

// IntakeConfig configures evidence validation.
type IntakeConfig struct {
	// MaxSize is the largest accepted file, e.g. "100 MiB" or "25MB".
	MaxSize string `json:"max_size" yaml:"max_size"`

	// AllowedTypes are accepted MIME type prefixes, e.g. "image/".
	AllowedTypes []string `json:"allowed_types" yaml:"allowed_types"`
}

// MaxBytes parses MaxSize.
func (c IntakeConfig) MaxBytes() (int64, error) {
	if c.MaxSize == "" {
		return constants.DefaultMaxEvidenceBytes, nil
	}
	n, err := humanize.ParseBytes(c.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_size %q: %w", c.MaxSize, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("max_size must be positive")
	}
	return int64(n), nil
}

// StorageConfig configures report persistence.
type StorageConfig struct {
	// DBPath overrides the database location. Empty means
	// <root>/.fcouncil/fcouncil.db.
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`

	// BackupMaxCount keeps at most this many backups (0 = default).
	BackupMaxCount int `json:"backup_max_count" yaml:"backup_max_count"`

	// BackupMaxAge removes backups older than this, e.g. "30d".
	BackupMaxAge string `json:"backup_max_age,omitempty" yaml:"backup_max_age,omitempty"`

	// BackupMaxSize caps the total size of all backups, e.g. "100MB".
	BackupMaxSize string `json:"backup_max_size,omitempty" yaml:"backup_max_size,omitempty"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LoggingConfig configures fcouncil's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables transition tracing to .fcouncil/transitions.jsonl.
	// "trace" additionally logs every phrase rotation.
	Level string `json:"level" yaml:"level"`
}

// Default returns a CouncilConfig with sensible defaults.
func Default() *CouncilConfig {
	t := engine.FullTiming()
	return &CouncilConfig{
		Simulation: SimulationConfig{
			LeadIn:         constants.LeadInFull,
			Analyzing:      t.Analyzing,
			Initiating:     t.Initiating,
			Stage:          t.Stage,
			StageJitter:    t.StageJitter,
			PhraseInterval: t.PhraseInterval,
		},
		Intake: IntakeConfig{
			MaxSize:      humanize.IBytes(uint64(constants.DefaultMaxEvidenceBytes)),
			AllowedTypes: append([]string(nil), constants.DefaultAllowedTypePrefixes...),
		},
		Storage: StorageConfig{
			BackupMaxCount: constants.MaxBackupRotation,
		},
		Server: ServerConfig{
			Addr: constants.DefaultServerAddr,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.fcouncil/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".fcouncil", FileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.fcouncil/config.yaml -> environment variables
func Load() (*CouncilConfig, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*CouncilConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Simulation.Catalog = expandEnvVars(config.Simulation.Catalog)
	config.Storage.DBPath = expandEnvVars(config.Storage.DBPath)

	return config, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func Save(cfg *CouncilConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *CouncilConfig) Validate() error {
	switch c.Simulation.LeadIn {
	case "", constants.LeadInFull, constants.LeadInLean:
	default:
		return fmt.Errorf("invalid lead_in: %s (valid: full, lean)", c.Simulation.LeadIn)
	}

	if err := c.Simulation.Timing().Validate(); err != nil {
		return err
	}

	if _, err := c.Intake.MaxBytes(); err != nil {
		return err
	}
	for _, p := range c.Intake.AllowedTypes {
		if !strings.Contains(p, "/") {
			return fmt.Errorf("invalid allowed type %q (expected a MIME prefix like image/)", p)
		}
	}

	if c.Storage.BackupMaxCount < 0 {
		return fmt.Errorf("backup_max_count must be non-negative, got %d", c.Storage.BackupMaxCount)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Keys returns every dot-notation key understood by Get and Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(accessors))
	for k := range accessors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a configuration value by dot-notation key.
func (c *CouncilConfig) Get(key string) (string, bool) {
	a, ok := accessors[key]
	if !ok {
		return "", false
	}
	return a.get(c), true
}

// Set parses and assigns a configuration value by dot-notation key.
func (c *CouncilConfig) Set(key, value string) error {
	a, ok := accessors[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	next := *c
	next.Intake.AllowedTypes = append([]string(nil), c.Intake.AllowedTypes...)
	if err := a.set(&next, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

type accessor struct {
	get func(*CouncilConfig) string
	set func(*CouncilConfig, string) error
}

func durationField(field func(*CouncilConfig) *time.Duration) accessor {
	return accessor{
		get: func(c *CouncilConfig) string { return field(c).String() },
		set: func(c *CouncilConfig, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*field(c) = d
			return nil
		},
	}
}

func stringField(field func(*CouncilConfig) *string) accessor {
	return accessor{
		get: func(c *CouncilConfig) string { return *field(c) },
		set: func(c *CouncilConfig, v string) error {
			*field(c) = v
			return nil
		},
	}
}

var accessors = map[string]accessor{
	"simulation.lead_in":         stringField(func(c *CouncilConfig) *string { return &c.Simulation.LeadIn }),
	"simulation.analyzing":       durationField(func(c *CouncilConfig) *time.Duration { return &c.Simulation.Analyzing }),
	"simulation.initiating":      durationField(func(c *CouncilConfig) *time.Duration { return &c.Simulation.Initiating }),
	"simulation.stage":           durationField(func(c *CouncilConfig) *time.Duration { return &c.Simulation.Stage }),
	"simulation.stage_jitter":    durationField(func(c *CouncilConfig) *time.Duration { return &c.Simulation.StageJitter }),
	"simulation.phrase_interval": durationField(func(c *CouncilConfig) *time.Duration { return &c.Simulation.PhraseInterval }),
	"simulation.catalog":         stringField(func(c *CouncilConfig) *string { return &c.Simulation.Catalog }),
	"intake.max_size":            stringField(func(c *CouncilConfig) *string { return &c.Intake.MaxSize }),
	"intake.allowed_types": {
		get: func(c *CouncilConfig) string { return strings.Join(c.Intake.AllowedTypes, ",") },
		set: func(c *CouncilConfig, v string) error {
			c.Intake.AllowedTypes = splitList(v)
			return nil
		},
	},
	"storage.db_path": stringField(func(c *CouncilConfig) *string { return &c.Storage.DBPath }),
	"storage.backup_max_count": {
		get: func(c *CouncilConfig) string { return strconv.Itoa(c.Storage.BackupMaxCount) },
		set: func(c *CouncilConfig, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			c.Storage.BackupMaxCount = n
			return nil
		},
	},
	"storage.backup_max_age":  stringField(func(c *CouncilConfig) *string { return &c.Storage.BackupMaxAge }),
	"storage.backup_max_size": stringField(func(c *CouncilConfig) *string { return &c.Storage.BackupMaxSize }),
	"server.addr":             stringField(func(c *CouncilConfig) *string { return &c.Server.Addr }),
	"logging.level":           stringField(func(c *CouncilConfig) *string { return &c.Logging.Level }),
}

// applyEnvOverrides applies environment variable overrides to the config.
// Unparseable values are ignored.
func applyEnvOverrides(config *CouncilConfig) {
	if v := os.Getenv("FCOUNCIL_LEAD_IN"); v != "" {
		config.Simulation.LeadIn = v
	}

	durations := map[string]*time.Duration{
		"FCOUNCIL_ANALYZING_DELAY":  &config.Simulation.Analyzing,
		"FCOUNCIL_INITIATING_DELAY": &config.Simulation.Initiating,
		"FCOUNCIL_STAGE_DELAY":      &config.Simulation.Stage,
		"FCOUNCIL_STAGE_JITTER":     &config.Simulation.StageJitter,
		"FCOUNCIL_PHRASE_INTERVAL":  &config.Simulation.PhraseInterval,
	}
	for env, dst := range durations {
		if v := os.Getenv(env); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	if v := os.Getenv("FCOUNCIL_CATALOG"); v != "" {
		config.Simulation.Catalog = v
	}

	if v := os.Getenv("FCOUNCIL_MAX_SIZE"); v != "" {
		config.Intake.MaxSize = v
	}

	if v := os.Getenv("FCOUNCIL_ALLOWED_TYPES"); v != "" {
		config.Intake.AllowedTypes = splitList(v)
	}

	if v := os.Getenv("FCOUNCIL_DB_PATH"); v != "" {
		config.Storage.DBPath = v
	}

	if v := os.Getenv("FCOUNCIL_SERVER_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("FCOUNCIL_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
