package app

import (
	"fmt"
	"os"
	"path/filepath"

	"autobackup/internal/config"
)

// Environment variables that override the default locations.
const (
	EnvConfigPath = "AB_CONFIG_PATH"
	EnvHome       = "AB_HOME"
)

// Defaults are the locations used when the config does not say otherwise.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults resolves the default locations. Precedence for each is the AB_
// variable, then the XDG base directory, then the usual path under $HOME:
//   - config: ~/.config/autobackup.toml
//   - data:   ~/.local/share/autobackup
func GetDefaults() (*Defaults, error) {
	configPath, err := resolve(EnvConfigPath, "XDG_CONFIG_HOME", ".config", "autobackup.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := resolve(EnvHome, "XDG_DATA_HOME", filepath.Join(".local", "share"), "autobackup")
	if err != nil {
		return nil, err
	}
	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// LoadConfig reads the config file at the default location.
func LoadConfig() (*config.Config, *Defaults, error) {
	d, err := GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(d.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, d, nil
}

func resolve(override, xdgVar, homeRel, name string) (string, error) {
	if p := os.Getenv(override); p != "" {
		return p, nil
	}
	if xdg := os.Getenv(xdgVar); xdg != "" {
		return filepath.Join(xdg, name), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, homeRel, name), nil
}
