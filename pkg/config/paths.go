package config

import (
	"os"
	"path/filepath"
)

// GlobalConfigPath returns the path to the user-wide alias config file,
// $HOME/.config/modelmux/config.yaml, following the same convention as the
// rest of this corpus's XDG-ish config placement.
func GlobalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "modelmux", "config.yaml"), nil
}

// ProjectConfigPath returns the path to the per-project alias config file,
// looked up relative to the current working directory.
func ProjectConfigPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, ".modelmux.yaml"), nil
}

// ResourceCachePath returns the path to the persisted resource-model cache,
// $HOME/.cache/modelmux/resource_measurements.json.
func ResourceCachePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "modelmux", "resource_measurements.json"), nil
}
