package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the beagle configuration file (~/.config/beagle/config.yaml).
// All fields are optional and act as defaults under the corresponding flags.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`

	// Resource selection defaults
	Resource  *int64   `yaml:"resource"`
	Required  []string `yaml:"required"`
	Preferred []string `yaml:"preferred"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "beagle", "config.yaml")
}

// applyServeConfig applies config file defaults to serve command variables
// when the corresponding CLI flag was not explicitly set.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	applyLogConfig(c, cfg)
}

// applyEvalConfig applies config file defaults to eval command variables.
func applyEvalConfig(c *cli.Command, cfg Config) {
	if cfg.Resource != nil && !c.IsSet("resource") {
		restrictID = *cfg.Resource
	}
	if cfg.Required != nil && !c.IsSet("require") {
		required = cfg.Required
	}
	if cfg.Preferred != nil && !c.IsSet("prefer") {
		preferred = cfg.Preferred
	}
	applyLogConfig(c, cfg)
}

func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
