package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ConfigPathEnv overrides the config file location.
	ConfigPathEnv = "ROMBA_CONFIG_PATH"
	// HomeEnv overrides the base directory for romba data.
	HomeEnv = "ROMBA_HOME"
)

// Defaults are the paths used when nothing else is configured.
type Defaults struct {
	ConfigPath string // default: ~/.config/romba.toml
	BaseDir    string // default: ~/.local/share/romba
	LogDir     string
}

// GetDefaults returns application default paths, checking the environment
// first.
func GetDefaults() (*Defaults, error) {
	configPath, err := fromEnvOrHome(ConfigPathEnv, ".config", "romba.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome(HomeEnv, ".local", "share", "romba")
	if err != nil {
		return nil, err
	}
	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// fromEnvOrHome returns the value of env when set, otherwise the path elems
// joined under the user's home directory.
func fromEnvOrHome(env string, elems ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elems...)...), nil
}
