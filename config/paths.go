package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "ollmchat"

// GetConfigDir returns $XDG_CONFIG_HOME/ollmchat, falling back to
// ~/.config/ollmchat on every platform.
func GetConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, appName)
	}
	return filepath.Join(GetHomeDir(), ".config", appName)
}

func GetConfigFilePath() string {
	return filepath.Join(GetConfigDir(), "config.toml")
}

// GetHomeDir returns the user's home directory, "/" (or C:\) when unknown.
func GetHomeDir() string {
	if runtime.GOOS == "windows" {
		if home := os.Getenv("USERPROFILE"); home != "" {
			return home
		}
		if home := os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH"); home != "" {
			return home
		}
		return "C:\\"
	}
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	return "/"
}

// ExpandPath resolves a leading ~ and $VARS, then cleans the result.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return ""
	case path == "~":
		path = GetHomeDir()
	case strings.HasPrefix(path, "~/"):
		path = filepath.Join(GetHomeDir(), path[2:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// EnsureDir creates path with user-only access.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDataDirPermissions creates dataDir if needed and tightens it to 0700;
// it holds the permission file, history database and debug log.
func EnsureDataDirPermissions(dataDir string) error {
	info, err := os.Stat(dataDir)
	if os.IsNotExist(err) {
		return EnsureDir(dataDir)
	}
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0700 {
		return os.Chmod(dataDir, 0700)
	}
	return nil
}
