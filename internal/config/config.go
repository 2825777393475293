// Package config loads server settings from defaults, an optional
// substrate.yaml file, SUBSTRATE_* environment variables and CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Keys understood by the loader. CLI flags bind to the same names.
const (
	KeyDataDir        = "data_dir"
	KeyRefsDir        = "refs_dir"
	KeyWorkflowsDir   = "workflows_dir"
	KeySessionDB      = "session_db"
	KeyServerName     = "server_name"
	KeyWatchWorkflows = "watch_workflows"
	KeyDebug          = "debug"
)

// EnvPrefix is prepended to every key for environment overrides,
// e.g. SUBSTRATE_REFS_DIR.
const EnvPrefix = "SUBSTRATE"

// Config holds the configuration for the server.
type Config struct {
	DataDir        string `mapstructure:"data_dir"`
	RefsDir        string `mapstructure:"refs_dir"`
	WorkflowsDir   string `mapstructure:"workflows_dir"`
	SessionDB      string `mapstructure:"session_db"`
	ServerName     string `mapstructure:"server_name"`
	WatchWorkflows bool   `mapstructure:"watch_workflows"`
	Debug          bool   `mapstructure:"debug"`
}

// NewViper returns a viper instance with defaults and environment binding
// in place. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	home, _ := os.UserHomeDir()
	v.SetDefault(KeyDataDir, filepath.Join(home, ".substrate"))
	v.SetDefault(KeyRefsDir, "")
	v.SetDefault(KeyWorkflowsDir, "")
	v.SetDefault(KeySessionDB, "")
	v.SetDefault(KeyServerName, "substrate")
	v.SetDefault(KeyWatchWorkflows, false)
	v.SetDefault(KeyDebug, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (configFile, or substrate.yaml in the working
// directory or data dir when empty) and returns the resolved settings.
// A missing default config file is not an error; a missing explicit one is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("substrate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(expandHome(v.GetString(KeyDataDir)))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", describe(configFile), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.resolve()
	return &cfg, nil
}

// resolve expands ~ and derives unset paths from DataDir.
func (c *Config) resolve() {
	c.DataDir = expandHome(c.DataDir)
	if c.RefsDir == "" {
		c.RefsDir = filepath.Join(c.DataDir, "refs")
	}
	if c.WorkflowsDir == "" {
		c.WorkflowsDir = filepath.Join(c.DataDir, "workflows")
	}
	if c.SessionDB == "" {
		c.SessionDB = filepath.Join(c.DataDir, "sessions.db")
	}
	c.RefsDir = expandHome(c.RefsDir)
	c.WorkflowsDir = expandHome(c.WorkflowsDir)
	c.SessionDB = expandHome(c.SessionDB)
	if c.ServerName == "" {
		c.ServerName = "substrate"
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func describe(configFile string) string {
	if configFile == "" {
		return "substrate.yaml"
	}
	return configFile
}
