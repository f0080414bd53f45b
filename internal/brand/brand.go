// Package brand provides centralized naming constants for the binary.
package brand

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	Name             = "geoenrich"
	Description      = "Geographic enrichment for IP-bearing records"
	BinaryName       = "geoenrich"
	ConfigEnvPrefix  = "GEOENRICH"
	DefaultConfigDir = "/etc/geoenrich"
	ConfigFileName   = "geoenrich.hcl"
	DefaultListen    = ":9090"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionString returns the one-line version banner.
func VersionString() string {
	return Name + " " + Version + " (" + GitCommit + ", built " + BuildTime + ", " + runtime.GOOS + "/" + runtime.GOARCH + ")"
}

// GetConfigDir returns the config directory, checking env vars first.
// Priority: GEOENRICH_CONFIG_DIR > GEOENRICH_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// DefaultConfigPath returns the config file used when none is given, or ""
// when it does not exist so callers fall back to built-in defaults.
func DefaultConfigPath() string {
	path := filepath.Join(GetConfigDir(), ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
