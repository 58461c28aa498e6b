package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/sberz/sandbox-pages/internal/ghpages"
	"github.com/sberz/sandbox-pages/internal/ignition"
	"github.com/sberz/sandbox-pages/internal/templates"
	"github.com/sberz/sandbox-pages/internal/token"
)

type serviceConfig struct {
	Deployer    *ignition.ProviderConfig
	Builder     ghpages.Config
	Token       token.Config
	Templates   []templates.Template
	configFile  string
	LogLevel    slog.Level
	MetricsPort int
	Port        int
}

type configFile struct {
	Deployer  *ignition.ProviderConfig `yaml:"deployer"`
	Templates []templates.Template     `yaml:"templates"`
	Token     token.Config             `yaml:"token"`
	Builder   ghpages.Config           `yaml:"builder"`
}

func (c *configFile) validate() error {
	if err := c.Builder.Validate(); err != nil {
		return fmt.Errorf("builder: %w", err)
	}

	if err := c.Token.Validate(); err != nil {
		return fmt.Errorf("token: %w", err)
	}

	if err := c.Deployer.Validate(); err != nil {
		return fmt.Errorf("deployer: %w", err)
	}

	for i := range c.Templates {
		if err := c.Templates[i].Validate(); err != nil {
			return fmt.Errorf("templates[%d]: %w", i, err)
		}
	}
	return nil
}

func parseConfigFile(path string) (*configFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg := &configFile{}
	decoder := yaml.NewDecoder(f, yaml.Strict())
	err = decoder.Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return cfg, nil
}

func parseConfig(args []string, stderr io.Writer) (*serviceConfig, error) {
	cfg := &serviceConfig{}
	fs := flag.NewFlagSet("pagesd", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.TextVar(&cfg.LogLevel, "log-level", slog.LevelInfo, "Set the logging level (DEBUG, INFO, WARN, ERROR)")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", 0, "Port to expose Prometheus metrics (0 to disable)")
	fs.IntVar(&cfg.Port, "port", 8080, "Port to run the HTTP server on")
	fs.StringVar(&cfg.configFile, "config", "", "Path to the configuration file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse args: %w", err)
	}

	// Without a file the defaults still need to be filled in.
	file := &configFile{}
	if cfg.configFile != "" {
		var err error
		file, err = parseConfigFile(cfg.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := file.validate(); err != nil {
		return nil, fmt.Errorf("invalid default config: %w", err)
	}

	cfg.Builder = file.Builder
	cfg.Token = file.Token
	cfg.Deployer = file.Deployer
	cfg.Templates = file.Templates

	return cfg, nil
}
