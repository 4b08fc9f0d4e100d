package semver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrVersionBump marks a version descriptor that could not be read or
// written. Fatal to the run; the bump is attempted exactly once.
var ErrVersionBump = errors.New("version descriptor failure")

// ReadDescriptor reads the single-field version file. A missing file is the
// first-release case and yields 0.0.0.
func ReadDescriptor(path string) (Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Version{}, nil
		}
		return Version{}, fmt.Errorf("read descriptor %q: %w: %v", path, ErrVersionBump, err)
	}
	v, err := Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return Version{}, fmt.Errorf("read descriptor %q: %w: %v", path, ErrVersionBump, err)
	}
	return v, nil
}

// WriteDescriptor atomically replaces the version file with v. The temp
// file lands in the descriptor's directory so the rename stays on one
// filesystem.
func WriteDescriptor(path string, v Version) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write descriptor %q: %w: %v", path, ErrVersionBump, err)
	}
	tmp, err := os.CreateTemp(dir, ".version-tmp-*")
	if err != nil {
		return fmt.Errorf("write descriptor %q: %w: %v", path, ErrVersionBump, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(v.String() + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write descriptor %q: %w: %v", path, ErrVersionBump, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write descriptor %q: %w: %v", path, ErrVersionBump, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write descriptor %q: %w: %v", path, ErrVersionBump, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write descriptor %q: %w: %v", path, ErrVersionBump, err)
	}
	return nil
}
