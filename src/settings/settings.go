package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Arguments holds the configuration of the data-access core.
type Arguments struct {
	// The directory external component files are resolved against
	DataDir string `yaml:"data_dir"`
	// Directory for log files; empty logs to stdout/stderr only
	LogDir string `yaml:"log_dir"`

	ConfigFile string `yaml:"-"`

	// Strongly verbose logging
	Verbose bool `yaml:"verbose"`
	Debug   bool `yaml:"debug"`

	// Synthesize missing inverse relations and clamp invalid ranges
	// when building catalogs
	ExtendedCompatibility bool `yaml:"extended_compatibility"`

	// Hop cap for relation path searches
	MaxRelationHops int `yaml:"max_relation_hops"`

	// Base model version used when an application model names none
	BaseModelVersion string `yaml:"base_model_version"`

	// Directory for mutation journals; empty disables journaling
	JournalDir           string `yaml:"journal_dir"`
	JournalRetentionDays int    `yaml:"journal_retention_days"`

	// Upper bound of simultaneously mapped external files
	MaxMappedFiles int `yaml:"max_mapped_files"`
}

const (
	DefaultMaxRelationHops  = 3
	DefaultBaseModelVersion = "asam35"
	DefaultMaxMappedFiles   = 64
)

// Private instance for the process wide settings
var (
	instance *Arguments
	once     sync.Once
)

// GetSettings returns the process wide settings, initialized with defaults
func GetSettings() *Arguments {
	once.Do(func() {
		instance = DefaultArguments()
	})
	return instance
}

// DefaultArguments returns a configuration with every default applied
func DefaultArguments() *Arguments {
	args := &Arguments{}
	args.applyDefaults()
	return args
}

// LoadFromPath loads settings from a YAML file
func LoadFromPath(path string) (*Arguments, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var args Arguments
	if err := yaml.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	args.ConfigFile = path
	args.applyDefaults()
	if err := args.Validate(); err != nil {
		return nil, err
	}

	return &args, nil
}

// applyDefaults fills in missing values with defaults
func (a *Arguments) applyDefaults() {
	if a.DataDir == "" {
		a.DataDir = "."
	}
	if a.MaxRelationHops == 0 {
		a.MaxRelationHops = DefaultMaxRelationHops
	}
	if a.BaseModelVersion == "" {
		a.BaseModelVersion = DefaultBaseModelVersion
	}
	if a.MaxMappedFiles == 0 {
		a.MaxMappedFiles = DefaultMaxMappedFiles
	}
}

// Validate rejects settings the core cannot run with
func (a *Arguments) Validate() error {
	if a.MaxRelationHops < 1 {
		return fmt.Errorf("max_relation_hops must be at least 1, got %d", a.MaxRelationHops)
	}
	if a.MaxMappedFiles < 1 {
		return fmt.Errorf("max_mapped_files must be at least 1, got %d", a.MaxMappedFiles)
	}
	if a.JournalRetentionDays < 0 {
		return fmt.Errorf("journal_retention_days must not be negative")
	}
	return nil
}

// NewLogger builds the sugared logger for the given settings.
// Debug gets the development config on stdout, everything else the
// production config. A LogDir adds a log file as a second sink.
func NewLogger(a *Arguments) (*zap.SugaredLogger, error) {
	var z zap.Config
	if a.Debug {
		z = zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stdout"}
	} else {
		z = zap.NewProductionConfig()
		if a.Verbose {
			z.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
	}

	if a.LogDir != "" {
		if err := os.MkdirAll(a.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		z.OutputPaths = append(z.OutputPaths, filepath.Join(a.LogDir, "odscore.log"))
	}

	logger, err := z.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Sugar(), nil
}
