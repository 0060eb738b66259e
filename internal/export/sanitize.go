package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

// SanitizeName keeps letters, digits and a few punctuation marks, replacing
// anything else with '_'. Control characters are dropped.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// OutputFileName turns a user-supplied name into a safe .mp4 file name,
// using fallback when nothing usable is left.
func OutputFileName(name, fallback string) string {
	base := strings.TrimSuffix(filepath.Base(strings.TrimSpace(name)), filepath.Ext(name))
	base = strings.ReplaceAll(SanitizeName(base, 80), " ", "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = fallback
	}
	return base + ".mp4"
}

// ValidateDir checks that dir is a clean, existing directory. field names
// the request parameter in error messages.
func ValidateDir(field, dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), "..") {
		return fmt.Errorf("%s cannot contain path traversal", field)
	}
	if filepath.Clean(dir) != dir {
		return fmt.Errorf("%s must be clean path", field)
	}

	info, err := stat(field, dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", field)
	}
	return nil
}

// ValidateFile checks that path is an absolute path to an existing regular
// file.
func ValidateFile(field, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%s must be absolute", field)
	}

	info, err := stat(field, path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", field)
	}
	return nil
}

func stat(field, path string) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s does not exist", field)
	case err != nil:
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return info, nil
}
