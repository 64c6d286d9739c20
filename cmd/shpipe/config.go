package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"pkt.systems/shpipe"
)

type fileConfig struct {
	Interpreter []string          `toml:"interpreter"`
	Trace       bool              `toml:"trace"`
	Env         map[string]string `toml:"env"`
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shpipe")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "shpipe")
	}
	return filepath.Join(home, ".config", "shpipe")
}

func defaultConfigPath() string {
	return filepath.Join(configDir(), "config.toml")
}

// loadConfig resolves the effective library config: SHPIPE_*
// environment defaults first, then the TOML file on top. A missing
// default file is fine; a missing explicitly requested file is an
// error.
func loadConfig(path string) (shpipe.Config, error) {
	cfg, err := shpipe.ConfigFromEnv()
	if err != nil {
		return shpipe.DefaultConfig(), err
	}
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if !explicit && os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("load %s: %w", path, err)
	}
	if len(fc.Interpreter) > 0 {
		cfg.Interpreter = fc.Interpreter
	}
	if fc.Trace {
		cfg.Trace = true
	}
	if len(fc.Env) > 0 {
		if cfg.Env == nil {
			cfg.Env = make(map[string]string, len(fc.Env))
		}
		for k, v := range fc.Env {
			cfg.Env[k] = v
		}
	}
	return cfg, nil
}
