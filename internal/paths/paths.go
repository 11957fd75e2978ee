// Package paths resolves configuration and data directory locations.
//
// Each directory is chosen by precedence: command-line flag, then the
// environment, then a platform default.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the directory name used under platform locations.
const AppName = "passport"

// DataDirName is the data directory created in the working directory when
// nothing else selects one.
const DataDirName = ".passport-data"

// ConfigFileName is the configuration file looked up in the config dir.
const ConfigFileName = "config.yaml"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "PASSPORT_CONFIG_DIR"
	EnvDataDir   = "PASSPORT_DATA_DIR"
)

// platformDir holds platform lookups that tests override.
var platformDir = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/passport (fallback ~/.config/passport)
// macOS:   ~/Library/Application Support/passport
// Windows: %APPDATA%/passport
func DefaultConfigDir() (string, error) {
	return platformPath("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform-specific data directory.
//
// Linux:   $XDG_DATA_HOME/passport (fallback ~/.local/share/passport)
// Others:  same as DefaultConfigDir
func DefaultDataDir() (string, error) {
	return platformPath("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func platformPath(xdgVar, homeRel string) (string, error) {
	if platformDir.goos == "linux" {
		if xdg := os.Getenv(xdgVar); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, homeRel, AppName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// ResolveConfigDir returns the configuration directory: flag, then
// PASSPORT_CONFIG_DIR, then DefaultConfigDir.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory: flag, then the data_dir value
// from the config file, then PASSPORT_DATA_DIR, then DataDirName in the
// working directory.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, v := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DataDirName), nil
}
