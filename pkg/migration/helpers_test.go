package migration

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/homemigrate/pkg/archive"
	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/report"
	"github.com/arthur-debert/homemigrate/pkg/testutil"
)

// fakeMigratable records which import hook was called
type fakeMigratable struct {
	id      string
	version string

	calls    []string
	archived string
	err      error
	run      func(ctx *Context) error
}

func (f *fakeMigratable) ID() string      { return f.id }
func (f *fakeMigratable) Version() string { return f.version }

func (f *fakeMigratable) DoImport(ctx *Context) error {
	f.calls = append(f.calls, "import")
	return f.hook(ctx)
}

func (f *fakeMigratable) DoMissingImport(ctx *Context) error {
	f.calls = append(f.calls, "missing")
	return f.hook(ctx)
}

func (f *fakeMigratable) DoIncompatibleImport(ctx *Context, archivedVersion string) error {
	f.calls = append(f.calls, "incompatible")
	f.archived = archivedVersion
	return f.hook(ctx)
}

func (f *fakeMigratable) hook(ctx *Context) error {
	if f.run != nil {
		if err := f.run(ctx); err != nil {
			return err
		}
	}
	return f.err
}

// denyAll refuses every access
type denyAll struct{}

func (denyAll) CheckRead(path string) error {
	return errors.Newf(errors.ErrPermission, "read of %s denied", path)
}

func (denyAll) CheckWrite(path string) error {
	return errors.Newf(errors.ErrPermission, "write of %s denied", path)
}

func openArchive(t *testing.T, b *testutil.ArchiveBuilder) *archive.Reader {
	t.Helper()
	ar, err := archive.Open(b.Build())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ar.Close() })
	return ar
}

// newTestContext creates a context for id over the archive built by b. A
// nil migratable yields a context for unknown data.
func newTestContext(t *testing.T, env *testutil.TestEnvironment, b *testutil.ArchiveBuilder, m Migratable, opts ...Option) (*Context, *report.Report) {
	t.Helper()
	if b == nil {
		b = testutil.NewArchiveBuilder(t)
	}
	rep := report.New("import")
	ar := openArchive(t, b)
	opts = append([]Option{WithResolver(env.Resolver)}, opts...)

	var (
		c   *Context
		err error
	)
	if m != nil {
		c, err = NewMigratableContext(rep, ar, m, opts...)
	} else {
		c, err = NewContext(rep, ar, "ddf-files", opts...)
	}
	require.NoError(t, err)

	for _, name := range ar.Names() {
		if id, p, ok := archive.SplitEntryName(name); ok && id == c.ID() {
			c.AddEntry(NewDirectEntry(c.resolver.Normalize(p), name))
		}
	}
	return c, rep
}

func collect(seq iter.Seq[*Entry]) []string {
	var out []string
	for e := range seq {
		out = append(out, e.Path())
	}
	return out
}
