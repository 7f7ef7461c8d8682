package config

import (
	"os"
	"path/filepath"
)

const (
	EnvConfigPath  = "PALABRABOX_CONFIG"
	ConfigFileName = "palabrabox.yaml"
	ConfigDirName  = "palabrabox"
)

// searchPaths lists where a config file may live, most specific first
func searchPaths() []string {
	paths := []string{os.Getenv(EnvConfigPath)}
	if abs, err := filepath.Abs(ConfigFileName); err == nil {
		paths = append(paths, abs)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ConfigDirName, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigDirName, "config.yaml"))
	}
	return paths
}

// FindConfigPath returns the first existing config file, or "" if there is
// none
func FindConfigPath() string {
	for _, path := range searchPaths() {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// DefaultConfigPath is where a new per-user config file is written
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, ConfigDirName, "config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", ConfigDirName, "config.yaml")
	}
	return ConfigFileName
}

// EnsureConfigDir creates the directory that will hold configPath
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}
