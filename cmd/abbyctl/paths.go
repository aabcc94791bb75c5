package main

import (
	"os"
	"path/filepath"
	"strings"
)

// expandHome resolves a leading "~" the way internal/config does, kept
// as its own small copy here since abbyctl resolves paths from its own
// flags rather than a loaded daemon Config.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
