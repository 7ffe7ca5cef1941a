package utils

import (
	"os"
	"path/filepath"
)

// GetFullFilePath returns the absolute path for a possibly relative path
func GetFullFilePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(wd, path)
}
