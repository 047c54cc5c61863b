package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// GetDefaultConfigPaths returns the OS-appropriate search path for
// config.yaml, most-preferred first.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		return []string{
			filepath.Join(homeDir, "AppData", "Roaming", "chordverify"),
		}, nil
	default:
		return []string{
			filepath.Join(homeDir, ".config", "chordverify"),
			"/etc/chordverify",
		}, nil
	}
}
