package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
)

// ManifestName is the manifest entry name written by ArchiveBuilder
const ManifestName = "export.json"

// ArchiveBuilder builds export archives for tests.
type ArchiveBuilder struct {
	t        *testing.T
	manifest []byte
	entries  map[string][]byte
	dirs     []string
}

// NewArchiveBuilder creates a builder with an empty version 1.0 manifest
func NewArchiveBuilder(t *testing.T) *ArchiveBuilder {
	t.Helper()
	return &ArchiveBuilder{
		t:        t,
		manifest: []byte(`{"version":"1.0","migratables":{}}`),
		entries:  make(map[string][]byte),
	}
}

// WithManifest marshals v as the manifest
func (b *ArchiveBuilder) WithManifest(v interface{}) *ArchiveBuilder {
	b.t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		b.t.Fatalf("Failed to marshal manifest: %v", err)
	}
	b.manifest = data
	return b
}

// WithRawManifest uses s verbatim as the manifest
func (b *ArchiveBuilder) WithRawManifest(s string) *ArchiveBuilder {
	b.manifest = []byte(s)
	return b
}

// WithoutManifest omits the manifest entry
func (b *ArchiveBuilder) WithoutManifest() *ArchiveBuilder {
	b.manifest = nil
	return b
}

// AddFile stores content under the raw archive name
func (b *ArchiveBuilder) AddFile(name, content string) *ArchiveBuilder {
	b.entries[name] = []byte(content)
	return b
}

// AddEntry stores content for the home-relative path owned by id
func (b *ArchiveBuilder) AddEntry(id, path, content string) *ArchiveBuilder {
	return b.AddFile(id+"/"+path, content)
}

// AddDir stores a directory entry
func (b *ArchiveBuilder) AddDir(name string) *ArchiveBuilder {
	b.dirs = append(b.dirs, name)
	return b
}

// Build writes the archive to a temporary file and returns its path
func (b *ArchiveBuilder) Build() string {
	b.t.Helper()

	p := filepath.Join(b.t.TempDir(), "export.zip")
	f, err := os.Create(p)
	if err != nil {
		b.t.Fatalf("Failed to create archive: %v", err)
	}
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)
	if b.manifest != nil {
		b.write(zw, ManifestName, b.manifest)
	}
	for _, dir := range b.dirs {
		if _, err := zw.Create(dir); err != nil {
			b.t.Fatalf("Failed to add %s: %v", dir, err)
		}
	}

	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	// reverse order so readers cannot rely on physical layout
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names {
		b.write(zw, name, b.entries[name])
	}

	if err := zw.Close(); err != nil {
		b.t.Fatalf("Failed to finish archive: %v", err)
	}
	return p
}

func (b *ArchiveBuilder) write(zw *zip.Writer, name string, data []byte) {
	b.t.Helper()
	w, err := zw.Create(name)
	if err != nil {
		b.t.Fatalf("Failed to add %s: %v", name, err)
	}
	if _, err := w.Write(data); err != nil {
		b.t.Fatalf("Failed to write %s: %v", name, err)
	}
}
