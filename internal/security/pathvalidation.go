// Package security keeps file access for frame sources and plot output
// inside the directories the operator named.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned when a path resolves outside its base
// directory, directly or through a symlink.
var ErrOutsideDirectory = errors.New("path escapes base directory")

// maxNameLen bounds names derived from session IDs and similar input.
const maxNameLen = 128

// ValidatePathWithinDirectory reports an error wrapping ErrOutsideDirectory
// when path does not resolve inside dir. Symlinks are followed. A path
// that does not exist yet is checked through its nearest existing parent.
func ValidatePathWithinDirectory(path, dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve directory %s: %w", dir, err)
	}
	base, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("resolve directory %s: %w", dir, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path %s: %w", path, err)
	}

	rel, err := filepath.Rel(base, canonical(absPath))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is not inside %s", ErrOutsideDirectory, path, dir)
	}
	return nil
}

// canonical resolves symlinks in the longest existing prefix of abs.
func canonical(abs string) string {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest)
		}
		if filepath.Dir(dir) == dir {
			return abs
		}
	}
}

// JoinWithin sanitizes name, joins it to dir and validates the result.
func JoinWithin(dir, name string) (string, error) {
	path := filepath.Join(dir, SanitizeFilename(name))
	if err := ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	return path, nil
}

// SanitizeFilename maps s to a single path element made of ASCII letters,
// digits, '.', '_' and '-'. Runs of other characters become one '_'.
// Empty results become "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
			underscore = r == '_'
		case !underscore:
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
