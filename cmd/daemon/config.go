package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

type Config struct {
	LogLevel string `koanf:"log_level"`
	Platform string `koanf:"platform"`
	StateDir string `koanf:"state_dir"`

	Ingress struct {
		Url string `koanf:"url"`
	} `koanf:"ingress"`

	Server struct {
		Address     string `koanf:"address"`
		AllowOrigin string `koanf:"allow_origin"`
	} `koanf:"server"`

	// EarlyStartGaps overrides the built-in per-platform gap table.
	EarlyStartGaps map[string]int `koanf:"early_start_gaps"`
}

func loadConfig(args []string) (*Config, error) {
	k := koanf.New(".")

	err := k.Load(confmap.Provider(map[string]interface{}{
		"log_level":      "info",
		"platform":       "web",
		"state_dir":      ".",
		"ingress.url":    "ws://127.0.0.1:3678/telemetry",
		"server.address": "127.0.0.1:3679",
	}, "."), nil)
	if err != nil {
		return nil, fmt.Errorf("failed loading defaults: %w", err)
	}

	flags := pflag.NewFlagSet("daemon", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "config.yml", "path to the configuration file")
	flags.String("log_level", "", "log level (trace, debug, info, warn, error)")
	flags.String("platform", "", "platform identifier for the early-start gap table")
	flags.String("state_dir", "", "directory holding persisted state")
	flags.String("ingress.url", "", "websocket url of the player bridge")
	flags.String("server.address", "", "listen address of the snapshot api")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := k.Load(file.Provider(*configPath), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed loading config file: %w", err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed loading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed unmarshalling config: %w", err)
	}

	return &cfg, nil
}
