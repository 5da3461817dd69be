package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/models/llm
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// ResolveRelative expands '~' in p and, if the result is still relative,
// joins it onto dir. Used for artifact paths declared next to a registry file.
func ResolveRelative(dir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", nil
	}
	exp, err := ExpandHome(p)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(exp) || dir == "" {
		return filepath.Clean(exp), nil
	}
	return filepath.Join(dir, exp), nil
}

// PathExists reports whether the path exists. Errors other than "not exist"
// (e.g. permission denied) count as existing.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
