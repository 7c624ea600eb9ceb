package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"tablexport/internal/domain"
	"tablexport/internal/etl"
	"tablexport/internal/logging"
)

// Config is the tablexport configuration file.
type Config struct {
	// StatePath is the SQLite file holding export jobs and run logs.
	StatePath string `mapstructure:"state_path"`

	Export struct {
		Workers int    `mapstructure:"workers"`
		OnError string `mapstructure:"on_error"`
		// OutputDir is where one-shot exports land when no prefix is given.
		OutputDir string `mapstructure:"output_dir"`
	} `mapstructure:"export"`

	Logging logging.Config `mapstructure:"logging"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	Connections []domain.DatabaseConnection `mapstructure:"connections"`
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "tablexport", "state.db")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("state_path", defaultStatePath())
	v.SetDefault("export.workers", etl.DefaultWorkers)
	v.SetDefault("export.on_error", string(etl.OnErrorAbort))
	v.SetDefault("export.output_dir", ".")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.seq_url", "")
	v.SetDefault("metrics.addr", "")

	// TABLEXPORT_EXPORT_WORKERS overrides export.workers, and so on.
	v.SetEnvPrefix("TABLEXPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path. An empty path searches ./tablexport.yaml
// and the user config dir; when none exists the defaults are used.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tablexport")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "tablexport"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values a run depends on.
func (c *Config) Validate() error {
	if c.Export.Workers < 1 {
		return fmt.Errorf("export.workers must be at least 1, got %d", c.Export.Workers)
	}
	if _, err := ParseErrorPolicy(c.Export.OnError); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Connections))
	for i := range c.Connections {
		conn := &c.Connections[i]
		if err := conn.Validate(); err != nil {
			return err
		}
		if seen[conn.Name] {
			return fmt.Errorf("duplicate connection %q", conn.Name)
		}
		seen[conn.Name] = true
	}
	return nil
}

// Connection returns the named connection.
func (c *Config) Connection(name string) (*domain.DatabaseConnection, error) {
	for i := range c.Connections {
		if c.Connections[i].Name == name {
			return &c.Connections[i], nil
		}
	}
	return nil, fmt.Errorf("unknown connection %q", name)
}

// ParseErrorPolicy validates an on_error value.
func ParseErrorPolicy(s string) (etl.ErrorPolicy, error) {
	switch p := etl.ErrorPolicy(strings.ToLower(s)); p {
	case "":
		return etl.OnErrorAbort, nil
	case etl.OnErrorAbort, etl.OnErrorSkip:
		return p, nil
	}
	return "", fmt.Errorf("on_error must be %q or %q, got %q", etl.OnErrorAbort, etl.OnErrorSkip, s)
}
