package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/homemigrate/pkg/filesystem"
	"github.com/arthur-debert/homemigrate/pkg/paths"
)

// TestEnvironment provides an isolated home directory on the real
// filesystem.
type TestEnvironment struct {
	// Home is the realized home directory
	Home string
	// Outside is a directory that is not under Home
	Outside string

	Resolver *paths.Resolver
	FS       filesystem.FS

	t *testing.T
}

// NewTestEnvironment creates a new test environment and points
// HOMEMIGRATE_HOME and the XDG directories into it.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	tempDir := t.TempDir()
	home := filepath.Join(tempDir, "home")
	outside := filepath.Join(tempDir, "outside")
	for _, dir := range []string{home, outside} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	t.Setenv(paths.EnvHomemigrateHome, home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tempDir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(tempDir, "state"))

	resolver, err := paths.New(home)
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}

	realOutside, err := filepath.EvalSymlinks(outside)
	if err != nil {
		t.Fatalf("Failed to realize %s: %v", outside, err)
	}

	return &TestEnvironment{
		Home:     resolver.Home(),
		Outside:  realOutside,
		Resolver: resolver,
		FS:       filesystem.NewOS(),
		t:        t,
	}
}

// Path returns the absolute location of the home-relative path rel
func (env *TestEnvironment) Path(rel string) string {
	return filepath.Join(env.Home, filepath.FromSlash(rel))
}

// WriteFile creates rel under home with content, creating parents
func (env *TestEnvironment) WriteFile(rel, content string) string {
	env.t.Helper()
	p := env.Path(rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		env.t.Fatalf("Failed to create parent of %s: %v", p, err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		env.t.Fatalf("Failed to write %s: %v", p, err)
	}
	return p
}

// Mkdir creates the directory rel under home
func (env *TestEnvironment) Mkdir(rel string) string {
	env.t.Helper()
	p := env.Path(rel)
	if err := os.MkdirAll(p, 0755); err != nil {
		env.t.Fatalf("Failed to create %s: %v", p, err)
	}
	return p
}

// Symlink creates a link at rel under home pointing to target
func (env *TestEnvironment) Symlink(rel, target string) string {
	env.t.Helper()
	p := env.Path(rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		env.t.Fatalf("Failed to create parent of %s: %v", p, err)
	}
	if err := os.Symlink(target, p); err != nil {
		env.t.Fatalf("Failed to link %s to %s: %v", p, target, err)
	}
	return p
}

// WriteOutside creates name under the outside directory
func (env *TestEnvironment) WriteOutside(name, content string) string {
	env.t.Helper()
	p := filepath.Join(env.Outside, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		env.t.Fatalf("Failed to create parent of %s: %v", p, err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		env.t.Fatalf("Failed to write %s: %v", p, err)
	}
	return p
}

// ReadFile returns the content of rel under home
func (env *TestEnvironment) ReadFile(rel string) string {
	env.t.Helper()
	data, err := os.ReadFile(env.Path(rel))
	if err != nil {
		env.t.Fatalf("Failed to read %s: %v", rel, err)
	}
	return string(data)
}

// Exists reports whether rel exists under home without following a final
// symlink
func (env *TestEnvironment) Exists(rel string) bool {
	_, err := os.Lstat(env.Path(rel))
	return err == nil
}

// List returns the names directly under the home-relative directory rel
func (env *TestEnvironment) List(rel string) []string {
	env.t.Helper()
	entries, err := os.ReadDir(env.Path(rel))
	if err != nil {
		env.t.Fatalf("Failed to list %s: %v", rel, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
