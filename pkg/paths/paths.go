package paths

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/arthur-debert/homemigrate/pkg/errors"
)

// Environment variable names
const (
	// EnvHomemigrateHome overrides the system home directory
	EnvHomemigrateHome = "HOMEMIGRATE_HOME"

	// EnvHome is the standard home directory variable
	EnvHome = "HOME"
)

// Resolver resolves paths against the system home directory.
type Resolver struct {
	// home is absolute, cleaned and realized
	home string
}

// New creates a Resolver rooted at home. An empty home is looked up from
// HOMEMIGRATE_HOME and then the user's home directory. The home directory must
// exist since containment checks compare against its realized form.
func New(home string) (*Resolver, error) {
	if home == "" {
		home = os.Getenv(EnvHomemigrateHome)
	}
	if home == "" {
		h, err := GetHomeDirectory()
		if err != nil {
			return nil, err
		}
		home = h
	}

	abs, err := filepath.Abs(ExpandHome(home))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "failed to get absolute path for home %s", home)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, errors.ErrNotFound, "home directory %s does not exist", abs)
		}
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "failed to realize home directory %s", abs)
	}

	return &Resolver{home: filepath.Clean(resolved)}, nil
}

// Home returns the realized home directory
func (r *Resolver) Home() string {
	return r.home
}

// ResolveAgainstHome returns the absolute location of p. Absolute paths are
// cleaned and returned as-is; relative paths are joined to home.
func (r *Resolver) ResolveAgainstHome(p string) string {
	native := filepath.FromSlash(p)
	if filepath.IsAbs(native) {
		return filepath.Clean(native)
	}
	return filepath.Join(r.home, native)
}

// IsRelativeToHome reports whether realized is home itself or lies under it.
// The argument must already be realized (see RealPath); nominal paths may
// still contain symlinks that lead elsewhere.
func (r *Resolver) IsRelativeToHome(realized string) bool {
	_, ok := r.relativeToHome(realized)
	return ok
}

// RealPath returns the symlink-resolved absolute form of p. A missing path
// yields an error satisfying errors.Is(err, fs.ErrNotExist).
func (r *Resolver) RealPath(p string) (string, error) {
	abs := r.ResolveAgainstHome(p)
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", errors.Wrapf(err, errors.ErrNotFound, "%s does not exist", abs)
		}
		return "", errors.Wrapf(err, errors.ErrInvalidInput, "failed to realize %s", abs)
	}
	return resolved, nil
}

// Normalize returns the canonical index key for p: slash separated and
// cleaned, relative to home when p lies under home, absolute otherwise.
// Relative paths are never rebased, so "etc/../../x" stays "../x" and is
// rejected later by ValidateEntryPath or SecureResolve.
func (r *Resolver) Normalize(p string) string {
	if p == "" {
		return "."
	}
	native := filepath.FromSlash(p)
	if filepath.IsAbs(native) {
		clean := filepath.Clean(native)
		if rel, ok := r.relativeToHome(clean); ok {
			return filepath.ToSlash(rel)
		}
		return filepath.ToSlash(clean)
	}
	return path.Clean(filepath.ToSlash(native))
}

// SecureResolve returns the location where content for p may be written.
// Every symlink on the way to the destination is evaluated, including chains
// of dangling links, and each link must stay inside home. The returned path
// contains no symlinks among its existing components. Violations are
// reported as ErrPathEscape.
func (r *Resolver) SecureResolve(p string) (string, error) {
	if err := ValidatePath(p); err != nil {
		return "", err
	}
	nominal := r.ResolveAgainstHome(p)
	rel, ok := r.relativeToHome(nominal)
	if !ok {
		return "", errors.Newf(errors.ErrPathEscape, "%s is not relative to %s", p, r.home).
			WithDetail("path", p)
	}

	links := &homeLinks{resolver: r}
	realized, err := securejoin.SecureJoinVFS(r.home, rel, links)
	if links.escape != "" {
		return "", errors.Newf(errors.ErrPathEscape, "%s resolves through a link to %s outside of %s", p, links.escape, r.home).
			WithDetail("path", p)
	}
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrInvalidInput, "failed to realize %s", nominal)
	}
	return realized, nil
}

// homeLinks evaluates links for securejoin. Link targets are rewritten
// relative to home so that absolute links into home keep their meaning, and
// the first target leaving home is recorded instead of being clamped.
type homeLinks struct {
	resolver *Resolver
	escape   string
}

func (h *homeLinks) Lstat(name string) (os.FileInfo, error) {
	return os.Lstat(name)
}

func (h *homeLinks) Readlink(name string) (string, error) {
	target, err := os.Readlink(name)
	if err != nil {
		return "", err
	}
	abs := target
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(filepath.Dir(name), target)
	}
	abs = filepath.Clean(abs)

	rel, ok := h.resolver.relativeToHome(abs)
	if !ok {
		// the target may name home through an unrealized alias
		if realized, err := realizeExisting(abs); err == nil {
			rel, ok = h.resolver.relativeToHome(realized)
		}
	}
	if !ok {
		if h.escape == "" {
			h.escape = target
		}
		return "", errors.Newf(errors.ErrPathEscape, "%s links to %s outside of %s", name, target, h.resolver.home)
	}
	return string(filepath.Separator) + rel, nil
}

// relativeToHome returns p relative to home when p is home or lies under it.
func (r *Resolver) relativeToHome(p string) (string, bool) {
	if !ContainsPath(r.home, p) {
		return "", false
	}
	rel, err := filepath.Rel(r.home, p)
	if err != nil {
		return "", false
	}
	return rel, true
}

// realizeExisting evaluates symlinks on the deepest existing ancestor of p
// and re-appends the components that do not exist yet.
func realizeExisting(p string) (string, error) {
	current := p
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !stderrors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return p, nil
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

// ExpandHome expands ~ to the user's home directory
func ExpandHome(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}

	homeDir, err := GetHomeDirectory()
	if err != nil {
		return p
	}

	if len(p) == 1 {
		return homeDir
	}

	// Handle both ~/ and ~
	if p[1] == '/' || p[1] == filepath.Separator {
		return filepath.Join(homeDir, p[2:])
	}

	// ~something (not the user's home)
	return p
}

// GetHomeDirectory returns the user's home directory with proper error handling
func GetHomeDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Try the HOME environment variable as a fallback
		if home := os.Getenv(EnvHome); home != "" {
			return home, nil
		}
		return "", errors.Wrapf(err, errors.ErrNotFound, "failed to get home directory")
	}
	return homeDir, nil
}
