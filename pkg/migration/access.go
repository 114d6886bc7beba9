package migration

import (
	"os"
	"path"

	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/paths"
)

// AccessChecker decides whether the running migratable may read or write a
// local file. Checks return an error to deny access.
type AccessChecker interface {
	CheckRead(path string) error
	CheckWrite(path string) error
}

// AllowAll grants every access
type AllowAll struct{}

// CheckRead implements AccessChecker
func (AllowAll) CheckRead(string) error { return nil }

// CheckWrite implements AccessChecker
func (AllowAll) CheckWrite(string) error { return nil }

// ProtectedPaths denies access to files matching home-relative patterns. A
// pattern matches a path or any of its ancestors, so ".gnupg" protects the
// whole directory.
type ProtectedPaths struct {
	resolver *paths.Resolver
	patterns []string
}

// NewProtectedPaths creates a ProtectedPaths checker resolving paths with r
func NewProtectedPaths(r *paths.Resolver, patterns ...string) *ProtectedPaths {
	return &ProtectedPaths{resolver: r, patterns: patterns}
}

// CheckRead implements AccessChecker
func (p *ProtectedPaths) CheckRead(file string) error {
	return p.check(file)
}

// CheckWrite implements AccessChecker
func (p *ProtectedPaths) CheckWrite(file string) error {
	return p.check(file)
}

func (p *ProtectedPaths) check(file string) error {
	rel := p.resolver.Normalize(file)
	for _, pattern := range p.patterns {
		for candidate := rel; candidate != "." && candidate != "/"; candidate = path.Dir(candidate) {
			if ok, err := path.Match(pattern, candidate); err == nil && ok {
				return errors.Newf(errors.ErrPermission, "%s is protected", rel).
					WithDetail("pattern", pattern)
			}
		}
	}
	return nil
}

// PropertyLookup returns the live value of a system property
type PropertyLookup func(name string) (string, bool)

// EnvLookup reads system properties from the process environment
func EnvLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}
