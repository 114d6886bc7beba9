package migration

import (
	stderrors "errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/homemigrate/pkg/archive"
	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/report"
	"github.com/arthur-debert/homemigrate/pkg/testutil"
)

func TestNewContextValidation(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	ar := openArchive(t, testutil.NewArchiveBuilder(t))
	rep := report.New("import")
	m := &fakeMigratable{id: "ddf-files", version: "1"}

	tests := []struct {
		name string
		make func() (*Context, error)
	}{
		{"system nil report", func() (*Context, error) { return NewSystemContext(nil, ar) }},
		{"system nil archive", func() (*Context, error) { return NewSystemContext(rep, nil) }},
		{"id nil archive", func() (*Context, error) { return NewContext(rep, nil, "x") }},
		{"empty id", func() (*Context, error) { return NewContext(rep, ar, "") }},
		{"nil migratable", func() (*Context, error) { return NewMigratableContext(rep, ar, nil) }},
		{"migratable nil report", func() (*Context, error) { return NewMigratableContext(nil, ar, m) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.make()
			assert.Nil(t, c)
			assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput), "got %v", err)
		})
	}

	t.Run("defaults", func(t *testing.T) {
		c, err := NewMigratableContext(rep, ar, m)
		require.NoError(t, err)
		assert.Equal(t, "ddf-files", c.ID())
		assert.Equal(t, m, c.Migratable())
		assert.Equal(t, rep, c.Report())
		assert.Equal(t, env.Home, c.Resolver().Home())
		_, ok := c.Version()
		assert.False(t, ok)
	})
}

func TestEntryIsIdempotent(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	c, rep := newTestContext(t, env, nil, nil)

	paths := []string{
		"etc/a.cfg",
		"etc/./sub/../a.cfg",
		env.Path("etc/a.cfg"),
		"etc/a.cfg/",
	}

	first := c.Entry(paths[0])
	require.NotNil(t, first)
	assert.Equal(t, KindEmpty, first.Kind())
	assert.False(t, first.Exists())
	assert.Equal(t, "etc/a.cfg", first.Path())

	for _, p := range paths {
		assert.Same(t, first, c.Entry(p), p)
	}
	assert.Equal(t, 1, c.index.Len())
	assert.Empty(t, rep.Messages())
}

func TestEntryReturnsRegisteredEntry(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	b := testutil.NewArchiveBuilder(t).AddEntry("ddf-files", "etc/a.cfg", "a")
	c, _ := newTestContext(t, env, b, nil)

	e := c.Entry("etc/a.cfg")
	assert.Equal(t, KindDirect, e.Kind())
	assert.True(t, e.Exists())
	assert.Equal(t, "ddf-files/etc/a.cfg", e.ArchiveName())
	assert.Equal(t, env.Path("etc/a.cfg"), e.File())
	assert.Same(t, c, e.Context())
}

func TestUnregisteredDirectEntry(t *testing.T) {
	e := NewDirectEntry("etc/a.cfg", "ddf-files/etc/a.cfg")

	assert.Nil(t, e.Context())
	assert.Equal(t, "", e.File())
	assert.False(t, e.Restore(true))

	_, err := e.Open(true)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestEntriesOrder(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	c, _ := newTestContext(t, env, nil, nil)

	for _, p := range []string{"z", "a/bc", "a/b/c", "/opt/x", "a/b", "m/n", "/opt/x/y", "/opt/xy"} {
		c.Entry(p)
	}

	assert.Equal(t,
		[]string{"/opt/x", "/opt/x/y", "/opt/xy", "a/b", "a/b/c", "a/bc", "m/n", "z"},
		collect(c.Entries()))

	t.Run("restartable", func(t *testing.T) {
		seq := c.Entries()
		assert.Equal(t, collect(seq), collect(seq))
	})

	t.Run("under prefix", func(t *testing.T) {
		assert.Equal(t, []string{"a/b", "a/b/c"}, collect(c.EntriesUnder("a/b")))
		assert.Equal(t, []string{"a/b", "a/b/c"}, collect(c.EntriesUnder("a/b/")))
		assert.Equal(t, []string{"/opt/x", "/opt/x/y"}, collect(c.EntriesUnder("/opt/x")))
		assert.Equal(t, []string{"a/b", "a/b/c", "a/bc", "m/n", "z"}, collect(c.EntriesUnder(env.Home)))
		assert.Len(t, collect(c.EntriesUnder("")), 8)
		assert.Empty(t, collect(c.EntriesUnder("nothing")))
	})

	t.Run("matching", func(t *testing.T) {
		assert.Equal(t, []string{"a/b/c"}, collect(c.EntriesMatching("a", GlobMatcher("a/*/c"))))
		assert.Equal(t, []string{"/opt/x/y"}, collect(c.EntriesMatching("/opt", GlobMatcher("/opt/*/y"))))
		assert.Empty(t, collect(c.EntriesMatching("a", GlobMatcher("["))))
	})

	t.Run("early stop", func(t *testing.T) {
		var seen []string
		for e := range c.Entries() {
			seen = append(seen, e.Path())
			if len(seen) == 2 {
				break
			}
		}
		assert.Len(t, seen, 2)
	})

	t.Run("lookups during iteration", func(t *testing.T) {
		before := c.index.Len()
		count := 0
		for e := range c.EntriesUnder("m") {
			c.Entry(e.Path() + "/child")
			count++
		}
		assert.Equal(t, 1, count)
		assert.Equal(t, before+1, c.index.Len())
	})
}

func TestSystemPropertyReferencedEntryAbsent(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	c, rep := newTestContext(t, env, nil, nil)

	ref, ok := c.SystemPropertyReferencedEntry("JAVA_HOME")
	assert.False(t, ok)
	assert.Nil(t, ref)
	assert.Equal(t, 0, c.index.Len())
	assert.Empty(t, rep.Messages())
}

func TestProcessMetadata(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	b := testutil.NewArchiveBuilder(t).
		AddEntry("ddf-files", "etc/a.cfg", "a").
		AddEntry("ddf-files", "etc/b.cfg", "b")
	c, rep := newTestContext(t, env, b, nil)

	c.ProcessMetadata(archive.Metadata{
		Version: "2",
		Files: []archive.Record{
			{Name: "etc/a.cfg", Checksum: testutil.Checksum("a")},
		},
		Externals: []archive.Record{
			{Name: "/opt/keystore.jks", Checksum: "sha256:abc"},
			{Name: "/opt/link", Softlink: true},
			{Name: "/opt/data", Folder: true},
		},
		SystemProperties: []archive.Record{
			{Property: "JAVA_HOME", Name: "/opt/java"},
		},
		JavaProperties: []archive.Record{
			{Property: "keystore", Name: "/opt/keystore.jks", Properties: "etc/system.properties"},
			{Property: "truststore", Name: "etc/trust.jks", Properties: "etc/system.properties"},
			{Property: "template", Name: "etc/t.xml", Properties: "etc/b.cfg"},
		},
	})
	assert.Empty(t, rep.Messages())

	version, ok := c.Version()
	assert.True(t, ok)
	assert.Equal(t, "2", version)

	t.Run("framework files", func(t *testing.T) {
		a := c.Entry("etc/a.cfg")
		assert.False(t, c.RequiresWriteAccess(a))
		assert.Equal(t, testutil.Checksum("a"), a.Checksum())
		assert.True(t, c.RequiresWriteAccess(c.Entry("etc/b.cfg")))
	})

	t.Run("externals", func(t *testing.T) {
		ks := c.Entry("/opt/keystore.jks")
		assert.Equal(t, KindExternal, ks.Kind())
		assert.Equal(t, "sha256:abc", ks.Checksum())
		assert.True(t, c.Entry("/opt/link").IsSoftlink())
		assert.True(t, c.Entry("/opt/data").IsFolder())
	})

	t.Run("system properties", func(t *testing.T) {
		ref, ok := c.SystemPropertyReferencedEntry("JAVA_HOME")
		require.True(t, ok)
		assert.Equal(t, "JAVA_HOME", ref.Property())
		assert.Equal(t, "/opt/java", ref.Value())
		assert.Equal(t, KindEmpty, ref.Entry().Kind())
		assert.Len(t, c.SystemPropertyReferences(), 1)
	})

	t.Run("java properties accumulate on a placeholder", func(t *testing.T) {
		props := c.Entry("etc/system.properties")
		assert.Equal(t, KindEmpty, props.Kind())

		refs := props.PropertyReferences()
		require.Len(t, refs, 2)
		assert.Equal(t, "keystore", refs[0].Property())
		assert.Equal(t, "truststore", refs[1].Property())
		assert.Same(t, props, refs[0].Owner())
		assert.Same(t, c.Entry("/opt/keystore.jks"), refs[0].Entry())

		ref, ok := props.PropertyReference("truststore")
		require.True(t, ok)
		assert.Equal(t, "etc/trust.jks", ref.Value())
	})

	t.Run("java properties on an exported file", func(t *testing.T) {
		owner := c.Entry("etc/b.cfg")
		assert.Equal(t, KindDirect, owner.Kind())
		_, ok := owner.PropertyReference("template")
		assert.True(t, ok)
	})
}

func TestProcessMetadataSkipsMalformedRecords(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	c, rep := newTestContext(t, env, nil, nil)

	c.ProcessMetadata(archive.Metadata{
		Files:            []archive.Record{{}},
		Externals:        []archive.Record{{Checksum: "sha256:abc"}, {Name: "/opt/ok"}},
		SystemProperties: []archive.Record{{Name: "/opt/java"}},
		JavaProperties:   []archive.Record{{Name: "x", Property: "k"}},
	})

	assert.Len(t, rep.Errors(), 4)
	for _, m := range rep.Errors() {
		assert.True(t, errors.IsErrorCode(m.Err, errors.ErrManifestInvalid))
	}
	assert.Equal(t, []string{"/opt/ok"}, collect(c.Entries()))
	assert.Empty(t, c.SystemPropertyReferences())
}

func TestCleanDirectory(t *testing.T) {
	t.Run("removes files and subdirectories", func(t *testing.T) {
		env := testutil.NewTestEnvironment(t)
		env.WriteFile("etc/x", "x")
		env.WriteFile("etc/y", "y")
		env.WriteFile("etc/z/w", "w")
		c, rep := newTestContext(t, env, nil, nil)

		assert.True(t, c.CleanDirectory("etc"))
		assert.Empty(t, env.List("etc"))
		assert.True(t, env.Exists("etc"))

		assert.True(t, c.CleanDirectory("etc"))
		assert.Empty(t, rep.Messages())
	})

	t.Run("keeps subdirectories when configured", func(t *testing.T) {
		env := testutil.NewTestEnvironment(t)
		env.WriteFile("etc/x", "x")
		env.WriteFile("etc/z/w", "w")
		c, _ := newTestContext(t, env, nil, nil, WithDeleteSubdirectories(false))

		assert.True(t, c.CleanDirectory("etc"))
		assert.Equal(t, []string{"z"}, env.List("etc"))
		assert.Empty(t, env.List("etc/z"))
	})

	t.Run("absolute path under home", func(t *testing.T) {
		env := testutil.NewTestEnvironment(t)
		env.WriteFile("etc/x", "x")
		c, _ := newTestContext(t, env, nil, nil)

		assert.True(t, c.CleanDirectory(env.Path("etc")))
		assert.Empty(t, env.List("etc"))
	})

	t.Run("nonexistent path", func(t *testing.T) {
		env := testutil.NewTestEnvironment(t)
		c, rep := newTestContext(t, env, nil, nil)

		assert.True(t, c.CleanDirectory("missing/dir"))
		assert.Empty(t, rep.Messages())
	})

	t.Run("dangling symlink", func(t *testing.T) {
		env := testutil.NewTestEnvironment(t)
		env.Symlink("etc", env.Path("gone"))
		c, rep := newTestContext(t, env, nil, nil)

		assert.True(t, c.CleanDirectory("etc"))
		assert.Empty(t, rep.Messages())
	})

	t.Run("not a directory", func(t *testing.T) {
		env := testutil.NewTestEnvironment(t)
		env.WriteFile("etc", "file")
		c, rep := newTestContext(t, env, nil, nil)

		assert.False(t, c.CleanDirectory("etc"))
		require.Len(t, rep.Warnings(), 1)
		assert.True(t, errors.IsErrorCode(rep.Warnings()[0].Err, errors.ErrNotDirectory))
		assert.Equal(t, "file", env.ReadFile("etc"))
	})

	t.Run("symlink escaping home", func(t *testing.T) {
		env := testutil.NewTestEnvironment(t)
		victim := env.WriteOutside("data/keep", "precious")
		env.Symlink("etc", env.Outside+"/data")
		c, rep := newTestContext(t, env, nil, nil)

		assert.False(t, c.CleanDirectory("etc"))
		assert.Len(t, rep.Messages(), 1)
		require.Len(t, rep.Warnings(), 1)
		assert.True(t, errors.IsErrorCode(rep.Warnings()[0].Err, errors.ErrPathEscape))

		data, err := os.ReadFile(victim)
		require.NoError(t, err)
		assert.Equal(t, "precious", string(data))
	})

	t.Run("absolute path outside home", func(t *testing.T) {
		env := testutil.NewTestEnvironment(t)
		env.WriteOutside("keep", "precious")
		c, rep := newTestContext(t, env, nil, nil)

		assert.False(t, c.CleanDirectory(env.Outside))
		assert.Len(t, rep.Warnings(), 1)
		_, err := os.Stat(env.Outside + "/keep")
		assert.NoError(t, err)
	})

	t.Run("symlinks inside are removed not followed", func(t *testing.T) {
		env := testutil.NewTestEnvironment(t)
		victim := env.WriteOutside("data/keep", "precious")
		env.WriteFile("etc/x", "x")
		env.Symlink("etc/link", env.Outside+"/data")
		c, rep := newTestContext(t, env, nil, nil)

		assert.True(t, c.CleanDirectory("etc"))
		assert.Empty(t, env.List("etc"))
		assert.Empty(t, rep.Messages())

		_, err := os.Stat(victim)
		assert.NoError(t, err)
	})

	t.Run("best effort on partial failure", func(t *testing.T) {
		env := testutil.NewTestEnvironment(t)
		env.WriteFile("etc/a", "a")
		env.WriteFile("etc/locked", "l")
		env.WriteFile("etc/sub/b", "b")
		env.WriteFile("etc/sub/locked2", "l")
		env.WriteFile("etc/z", "z")

		fsys := testutil.NewFailingFS(env.FS).
			FailRemove("locked", stderrors.New("file is locked")).
			FailRemove("locked2", stderrors.New("file is locked"))
		c, rep := newTestContext(t, env, nil, nil, WithFS(fsys))

		assert.False(t, c.CleanDirectory("etc"))
		assert.ElementsMatch(t, []string{"locked", "sub"}, env.List("etc"))
		assert.Equal(t, []string{"locked2"}, env.List("etc/sub"))

		require.Len(t, rep.Messages(), 1)
		w := rep.Warnings()[0]
		assert.True(t, errors.IsErrorCode(w.Err, errors.ErrCleanFailed))
		assert.Contains(t, w.Err.Error(), "locked")
		assert.Contains(t, w.Err.Error(), "locked2")
	})
}

func TestOpenEntry(t *testing.T) {
	newContext := func(t *testing.T, opts ...Option) (*Context, *report.Report) {
		env := testutil.NewTestEnvironment(t)
		b := testutil.NewArchiveBuilder(t).
			AddEntry("ddf-files", "etc/framework.cfg", "framework").
			AddEntry("ddf-files", "etc/own.cfg", "own").
			AddEntry("ddf-files", "etc/tampered.cfg", "tampered")
		c, rep := newTestContext(t, env, b, nil, opts...)
		c.ProcessMetadata(archive.Metadata{
			Files: []archive.Record{
				{Name: "etc/framework.cfg", Checksum: testutil.Checksum("framework")},
				{Name: "etc/tampered.cfg", Checksum: testutil.Checksum("original")},
			},
		})
		return c, rep
	}

	read := func(t *testing.T, rc io.ReadCloser) (string, error) {
		t.Helper()
		data, err := io.ReadAll(rc)
		return string(data), err
	}

	t.Run("direct entry", func(t *testing.T) {
		c, _ := newContext(t)
		rc, err := c.Entry("etc/framework.cfg").Open(true)
		require.NoError(t, err)
		got, err := read(t, rc)
		require.NoError(t, err)
		assert.Equal(t, "framework", got)
	})

	t.Run("placeholder is not found", func(t *testing.T) {
		c, _ := newContext(t)
		_, err := c.OpenEntry(c.Entry("etc/missing.cfg"), false)
		assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
	})

	t.Run("access check on framework content", func(t *testing.T) {
		c, _ := newContext(t, WithAccessChecker(denyAll{}))

		_, err := c.OpenEntry(c.Entry("etc/framework.cfg"), true)
		assert.True(t, errors.IsErrorCode(err, errors.ErrPermission))

		rc, err := c.OpenEntry(c.Entry("etc/framework.cfg"), false)
		require.NoError(t, err)
		_ = rc.Close()

		rc, err = c.OpenEntry(c.Entry("etc/own.cfg"), true)
		require.NoError(t, err)
		_ = rc.Close()
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		c, _ := newContext(t)
		rc, err := c.OpenEntry(c.Entry("etc/tampered.cfg"), false)
		require.NoError(t, err)
		_, err = read(t, rc)
		assert.True(t, errors.IsErrorCode(err, errors.ErrChecksumMismatch), "got %v", err)
	})

	t.Run("checksum verification disabled", func(t *testing.T) {
		c, _ := newContext(t, WithVerifyChecksums(false))
		rc, err := c.OpenEntry(c.Entry("etc/tampered.cfg"), false)
		require.NoError(t, err)
		got, err := read(t, rc)
		require.NoError(t, err)
		assert.Equal(t, "tampered", got)
	})

	t.Run("external entry", func(t *testing.T) {
		env := testutil.NewTestEnvironment(t)
		ext := env.WriteOutside("keystore.jks", "keys")
		c, _ := newTestContext(t, env, nil, nil)
		c.ProcessMetadata(archive.Metadata{Externals: []archive.Record{{Name: ext}}})

		rc, err := c.Entry(ext).Open(false)
		require.NoError(t, err)
		got, err := read(t, rc)
		require.NoError(t, err)
		assert.Equal(t, "keys", got)
	})
}

func TestImportDispatch(t *testing.T) {
	tests := []struct {
		name        string
		archived    string
		wantCalls   []string
		wantOutcome Outcome
		wantArchive string
	}{
		{"missing version", "", []string{"missing"}, OutcomeMissing, ""},
		{"same version", "2", []string{"import"}, OutcomeImported, ""},
		{"different version", "1", []string{"incompatible"}, OutcomeIncompatible, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewTestEnvironment(t)
			m := &fakeMigratable{id: "ddf-files", version: "2"}
			c, rep := newTestContext(t, env, nil, m)
			c.ProcessMetadata(archive.Metadata{Version: tt.archived})

			outcome := c.Import()

			assert.Equal(t, tt.wantOutcome, outcome)
			assert.False(t, outcome.Fatal())
			assert.Equal(t, tt.wantCalls, m.calls)
			assert.Equal(t, tt.wantArchive, m.archived)
			assert.Empty(t, rep.Errors())
		})
	}
}

func TestImportUnknownMigratable(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	c, rep := newTestContext(t, env, nil, nil)
	c.ProcessMetadata(archive.Metadata{Version: "1"})

	outcome := c.Import()

	assert.Equal(t, OutcomeUnknown, outcome)
	assert.True(t, outcome.Fatal())
	require.Len(t, rep.Messages(), 1)
	require.Len(t, rep.Errors(), 1)
	assert.True(t, errors.IsErrorCode(rep.Errors()[0].Err, errors.ErrUnknownMigratable))
}

func TestImportSystemContext(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	ar := openArchive(t, testutil.NewArchiveBuilder(t))
	rep := report.New("import")

	c, err := NewSystemContext(rep, ar, WithResolver(env.Resolver))
	require.NoError(t, err)

	assert.Equal(t, OutcomeNone, c.Import())
	assert.Empty(t, rep.Messages())
}

func TestImportRecordsHookErrors(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	m := &fakeMigratable{id: "ddf-files", version: "2", err: stderrors.New("boom")}
	c, rep := newTestContext(t, env, nil, m)
	c.ProcessMetadata(archive.Metadata{Version: "2"})

	assert.Equal(t, OutcomeImported, c.Import())
	require.Len(t, rep.Errors(), 1)
	assert.True(t, errors.IsErrorCode(rep.Errors()[0].Err, errors.ErrRestoreFailed))
}

func TestImportClosesStreams(t *testing.T) {
	for _, fail := range []bool{false, true} {
		name := "success"
		if fail {
			name = "failure"
		}
		t.Run(name, func(t *testing.T) {
			env := testutil.NewTestEnvironment(t)
			b := testutil.NewArchiveBuilder(t).
				AddEntry("ddf-files", "etc/a.cfg", "a").
				AddEntry("ddf-files", "etc/b.cfg", "b")

			var opened []io.ReadCloser
			m := &fakeMigratable{id: "ddf-files", version: "2"}
			m.run = func(ctx *Context) error {
				for e := range ctx.Entries() {
					rc, err := e.Open(false)
					if err != nil {
						return err
					}
					opened = append(opened, rc)
				}
				// closing one of them early must not matter
				_ = opened[0].Close()
				if fail {
					return stderrors.New("boom")
				}
				return nil
			}
			c, _ := newTestContext(t, env, b, m)
			c.ProcessMetadata(archive.Metadata{Version: "2"})

			c.Import()

			require.Len(t, opened, 2)
			for _, rc := range opened {
				assert.True(t, rc.(*trackedStream).closed)
			}
			assert.Empty(t, c.streams)
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "missing", OutcomeMissing.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
	assert.Equal(t, "external", KindExternal.String())
}
