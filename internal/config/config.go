package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "deskcap"
	envPrefix  = "DESKCAP"
)

type Config struct {
	DisplayIndex   int    `mapstructure:"display_index" yaml:"display_index"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	GrabTimeoutMs  int    `mapstructure:"grab_timeout_ms" yaml:"grab_timeout_ms"`
	RecordFrames   int    `mapstructure:"record_frames" yaml:"record_frames"`
	OutputDir      string `mapstructure:"output_dir" yaml:"output_dir"`
	Workers        int    `mapstructure:"workers" yaml:"workers"`
	QueueSize      int    `mapstructure:"queue_size" yaml:"queue_size"`

	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`
}

func Default() *Config {
	return &Config{
		DisplayIndex:   0,
		PollIntervalMs: 16,
		GrabTimeoutMs:  2000,
		RecordFrames:   60,
		OutputDir:      "frames",
		Workers:        2,
		QueueSize:      16,
		LogLevel:       "info",
		LogFormat:      "text",
		LogMaxSizeMB:   10,
		LogMaxBackups:  3,
	}
}

// values lists every key with its value in cfg. It drives both defaults and
// saving, so a new field only needs adding here.
func (c *Config) values() map[string]any {
	return map[string]any{
		"display_index":    c.DisplayIndex,
		"poll_interval_ms": c.PollIntervalMs,
		"grab_timeout_ms":  c.GrabTimeoutMs,
		"record_frames":    c.RecordFrames,
		"output_dir":       c.OutputDir,
		"workers":          c.Workers,
		"queue_size":       c.QueueSize,
		"log_level":        c.LogLevel,
		"log_format":       c.LogFormat,
		"log_file":         c.LogFile,
		"log_max_size_mb":  c.LogMaxSizeMB,
		"log_max_backups":  c.LogMaxBackups,
	}
}

// Load reads cfgFile, or deskcap.yaml from the config directory or the
// working directory when cfgFile is empty. DESKCAP_* environment variables
// override file values. A missing default file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	for k, val := range Default().values() {
		v.SetDefault(k, val)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes cfg as YAML to cfgFile, or to the default location when
// cfgFile is empty, and returns the path written. An existing file is only
// replaced when overwrite is set.
func SaveTo(cfg *Config, cfgFile string, overwrite bool) (string, error) {
	v := viper.New()
	for k, val := range cfg.values() {
		v.Set(k, val)
	}

	cfgPath := cfgFile
	if cfgPath == "" {
		cfgPath = filepath.Join(configDir(), configName+".yaml")
	}
	if dir := filepath.Dir(cfgPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	write := v.SafeWriteConfigAs
	if overwrite {
		write = v.WriteConfigAs
	}
	if err := write(cfgPath); err != nil {
		return "", err
	}
	return cfgPath, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) GrabTimeout() time.Duration {
	return time.Duration(c.GrabTimeoutMs) * time.Millisecond
}

func configDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "deskcap")
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "deskcap")
	}
	return "."
}
