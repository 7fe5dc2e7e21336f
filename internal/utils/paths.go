package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureAbsPath expands a leading ~ and returns a cleaned absolute path.
func EnsureAbsPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, p[1:])
	}
	return filepath.Abs(p)
}
