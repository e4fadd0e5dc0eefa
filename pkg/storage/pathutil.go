package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDir checks that filePath resolves inside baseDir.
// Document ids become file names, so an id like "../../etc/passwd" must not
// be able to escape the workspace folder.
//
// Returns the resolved absolute path, or an error if the path is outside baseDir.
func ValidatePathWithinDir(filePath, baseDir string) (absPath string, err error) {
	targetPath := filePath
	if !filepath.IsAbs(targetPath) {
		targetPath = filepath.Join(baseDir, targetPath)
	}

	absPath, err = filepath.Abs(targetPath)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}

	// Trailing separator so /work-evil does not match /work
	if !strings.HasSuffix(absBase, string(filepath.Separator)) {
		absBase += string(filepath.Separator)
	}

	if !strings.HasPrefix(absPath, absBase) {
		return "", fmt.Errorf("access denied: path outside workspace directory")
	}

	return absPath, nil
}

// validID rejects ids that cannot be used as a single file name.
func validID(id string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}
