package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/strrl/clusterlog/pkg/selector"
	"github.com/strrl/clusterlog/pkg/signature"
)

// EnvPrefix prefixes every environment override, e.g. CLUSTERLOG_DB.
const EnvPrefix = "CLUSTERLOG"

// DefaultDBPath is where run history is kept unless configured otherwise.
const DefaultDBPath = "clusterlog.duckdb"

// ErrNoDirectory is returned when the log directory is unset or invalid.
var ErrNoDirectory = errors.New("log directory is invalid or does not exist")

// Config is the resolved configuration of one invocation.
type Config struct {
	Directory     string   `mapstructure:"directory"`
	RetentionDays int      `mapstructure:"retention-days"`
	PatternFile   string   `mapstructure:"pattern-file"`
	Keywords      []string `mapstructure:"keywords"`
	OutputDir     string   `mapstructure:"output-dir"`
	DB            string   `mapstructure:"db"`
	Materialize   bool     `mapstructure:"materialize"`
	YAML          bool     `mapstructure:"yaml"`
	Model         string   `mapstructure:"model"`
}

// Retention returns the retention window as a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// DefaultPath returns $HOME/.config/clusterlog/config.yml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "clusterlog", "config.yml"), nil
}

// Load resolves configuration from defaults, the config file, CLUSTERLOG_*
// environment variables and flags, in increasing precedence. A missing
// config file is not an error. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (Config, error) {
	var cfg Config

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("retention-days", int(selector.DefaultRetention/(24*time.Hour)))
	v.SetDefault("pattern-file", signature.DefaultFile)
	v.SetDefault("keywords", selector.DefaultKeywords)
	v.SetDefault("output-dir", ".")
	v.SetDefault("db", DefaultDBPath)
	v.SetDefault("materialize", true)
	v.SetDefault("yaml", false)
	v.SetDefault("model", "")

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		configPath = p
	}
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, errors.Errorf("read config %s: %w", configPath, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, errors.Errorf("bind flags: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Errorf("decode config: %w", err)
	}
	if cfg.RetentionDays < 0 {
		return cfg, errors.Errorf("retention-days must not be negative, got %d", cfg.RetentionDays)
	}
	return cfg, nil
}

// ValidateDirectory checks that dir names an existing directory.
func ValidateDirectory(dir string) error {
	if dir == "" {
		return ErrNoDirectory
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return errors.Errorf("%s: %w", dir, ErrNoDirectory)
	}
	return nil
}

// DefaultModel is the LLM used for labeling and explain when none is set.
const DefaultModel = "google/gemini-3-flash-preview"

// ResolveModel picks the LLM model: the explicit value, else MODEL_NAME,
// else DefaultModel.
func ResolveModel(model string) string {
	if model != "" {
		return model
	}
	if env := os.Getenv("MODEL_NAME"); env != "" {
		return env
	}
	return DefaultModel
}
