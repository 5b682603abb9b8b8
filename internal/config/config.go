package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
	Ledger   LedgerConfig   `yaml:"ledger" envconfig:"LEDGER"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/timeprep.log"`
}

// PipelineConfig contains the knobs of the preparation pipeline itself.
type PipelineConfig struct {
	// Month is the 8digit_8digit date-range token selecting the export
	// batch, e.g. "20190801_20190831".
	Month string `yaml:"month" envconfig:"MONTH" validate:"omitempty,len=17"`
	// Streams selects which modalities to process.
	Streams []string `yaml:"streams" envconfig:"STREAMS" default:"acc,eda,temp" validate:"min=1,dive,oneof=acc eda temp"`
	// MaxShardBytes bounds every final output shard.
	MaxShardBytes int64 `yaml:"max_shard_bytes" envconfig:"MAX_SHARD_BYTES" default:"4900000000" validate:"gt=0"`
	// PartitionBytes is the soft target for intermediate combined chunks.
	PartitionBytes int64 `yaml:"partition_bytes" envconfig:"PARTITION_BYTES" default:"268435456" validate:"gt=0"`
	// ChunkRows bounds how many rows are held in memory at once.
	ChunkRows int `yaml:"chunk_rows" envconfig:"CHUNK_ROWS" default:"1000000" validate:"gt=0"`
	// ScanOnly classifies and counts without dropping rows.
	ScanOnly bool `yaml:"scan_only" envconfig:"SCAN_ONLY" default:"false"`
	// Concurrency bounds the combine step's per-stream workers. The
	// pipeline contract is sequential; anything above 1 is opt-in.
	Concurrency int `yaml:"concurrency" envconfig:"CONCURRENCY" default:"1" validate:"min=1"`
	// Insights enables the wear-time summary step.
	Insights bool `yaml:"insights" envconfig:"INSIGHTS" default:"false"`
}

// LedgerConfig selects the duplicate-ledger run mode. The mode is explicit
// configuration so test runs can never pollute the production audit trail.
type LedgerConfig struct {
	Mode string `yaml:"mode" envconfig:"MODE" default:"prod" validate:"oneof=prod test"`
}

// Load builds configuration from defaults, an optional YAML file named by
// TIMEPREP_CONFIG (or config.yaml when present), and TIMEPREP_* environment
// variables, then validates the result.
func Load() (*Config, error) {
	var cfg Config

	// Defaults and environment first.
	if err := envconfig.Process("TIMEPREP", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path := configFilePath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		// Environment wins over file values.
		if err := envconfig.Process("TIMEPREP", &cfg); err != nil {
			return nil, fmt.Errorf("failed to re-apply env config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func configFilePath() string {
	if path := os.Getenv("TIMEPREP_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}
