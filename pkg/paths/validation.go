package paths

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/homemigrate/pkg/errors"
)

// MaxPathLength is the longest path accepted from an archive
const MaxPathLength = 4096

// ValidatePath performs basic validation on a path.
// It checks for:
// - Empty paths
// - Null bytes
// - Excessive path length
func ValidatePath(p string) error {
	if p == "" {
		return errors.New(errors.ErrInvalidInput, "path cannot be empty")
	}

	if strings.Contains(p, "\x00") {
		return errors.New(errors.ErrInvalidInput, "path contains null bytes")
	}

	if len(p) > MaxPathLength {
		return errors.New(errors.ErrInvalidInput, "path exceeds maximum length")
	}

	return nil
}

// ValidateEntryPath checks a slash separated, home-relative path taken from
// an archive entry name. Absolute paths and paths climbing out of home
// through ".." are rejected with ErrPathEscape.
func ValidateEntryPath(p string) error {
	if err := ValidatePath(p); err != nil {
		return err
	}

	if strings.HasPrefix(p, "/") || filepath.IsAbs(filepath.FromSlash(p)) {
		return errors.Newf(errors.ErrPathEscape, "entry path %s is absolute", p).WithDetail("path", p)
	}

	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return errors.Newf(errors.ErrPathEscape, "entry path %s climbs out of home", p).WithDetail("path", p)
	}

	return nil
}

// ContainsPath checks if child is contained within parent.
// Both paths are lexically cleaned before comparison; symlinks are not
// consulted.
func ContainsPath(parent, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// HasPathPrefix reports whether the slash separated path p equals prefix or
// lies under it. Matching is by path component, so "a/bc" is not under "a/b".
// The empty prefix matches everything and "." matches every relative path.
func HasPathPrefix(p, prefix string) bool {
	if prefix == "" {
		return true
	}
	if prefix == "." {
		return !strings.HasPrefix(p, "/")
	}
	if prefix == "/" {
		return strings.HasPrefix(p, "/")
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
