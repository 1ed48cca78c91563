package config

import (
	"fmt"

	"github.com/skillsenselab/scribed/audio"
	"github.com/skillsenselab/scribed/diarization"
	"github.com/skillsenselab/scribed/diarization/pyannote"
	"github.com/skillsenselab/scribed/logger"
	"github.com/skillsenselab/scribed/scheduler"
	"github.com/skillsenselab/scribed/server"
	"github.com/skillsenselab/scribed/transcription/whisper"
	"github.com/skillsenselab/scribed/translation/libre"
)

// StorageConfig names the directories the service writes to.
type StorageConfig struct {
	// UploadDir receives raw uploads.
	UploadDir string `yaml:"upload_dir" mapstructure:"upload_dir"`
	// WorkDir receives normalized audio and chunks.
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`
}

// ApplyDefaults sets default values for unset fields.
func (c *StorageConfig) ApplyDefaults() {
	if c.UploadDir == "" {
		c.UploadDir = "./data/uploads"
	}
	if c.WorkDir == "" {
		c.WorkDir = "./data/work"
	}
}

// TranslationConfig wraps the optional translation capability.
type TranslationConfig struct {
	Enabled bool         `yaml:"enabled" mapstructure:"enabled"`
	Libre   libre.Config `yaml:"libre" mapstructure:"libre"`
}

// Config is the full service configuration.
type Config struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment"`

	Logging     logger.Config           `yaml:"logging" mapstructure:"logging"`
	Server      server.Config           `yaml:"server" mapstructure:"server"`
	Audio       audio.Config            `yaml:"audio" mapstructure:"audio"`
	Scheduler   scheduler.Config        `yaml:"scheduler" mapstructure:"scheduler"`
	Storage     StorageConfig           `yaml:"storage" mapstructure:"storage"`
	Whisper     whisper.Config          `yaml:"whisper" mapstructure:"whisper"`
	Pyannote    pyannote.Config         `yaml:"pyannote" mapstructure:"pyannote"`
	Translation TranslationConfig       `yaml:"translation" mapstructure:"translation"`
	Merge       diarization.MergeConfig `yaml:"merge" mapstructure:"merge"`
}

// Load reads configuration from config.yml, .env, and SCRIBED_* environment
// variables, applies defaults, and validates the result.
func Load(opts ...LoaderOption) (*Config, error) {
	var cfg Config
	if err := load(&cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every section's unset fields.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "scribed"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	c.Logging.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Audio.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
	c.Storage.ApplyDefaults()
	c.Whisper.ApplyDefaults()
	c.Pyannote.ApplyDefaults()
	c.Translation.Libre.ApplyDefaults()
	c.Merge.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	validEnvs := []string{"development", "staging", "production"}
	found := false
	for _, v := range validEnvs {
		if c.Environment == v {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("environment must be one of %v (got: %s)", validEnvs, c.Environment)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	return nil
}
