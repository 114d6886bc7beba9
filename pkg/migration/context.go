package migration

import (
	// registers the sha256 digest algorithm
	_ "crypto/sha256"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/arthur-debert/homemigrate/pkg/archive"
	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/filesystem"
	"github.com/arthur-debert/homemigrate/pkg/logging"
	"github.com/arthur-debert/homemigrate/pkg/paths"
	"github.com/arthur-debert/homemigrate/pkg/report"
)

// Outcome is the result of Context.Import
type Outcome int

const (
	// OutcomeNone means there was nothing to import (system context)
	OutcomeNone Outcome = iota
	// OutcomeImported means DoImport was called
	OutcomeImported
	// OutcomeMissing means DoMissingImport was called
	OutcomeMissing
	// OutcomeIncompatible means DoIncompatibleImport was called
	OutcomeIncompatible
	// OutcomeUnknown means data was found for a migratable that no longer
	// exists. It is fatal.
	OutcomeUnknown
)

// String returns the name of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeImported:
		return "imported"
	case OutcomeMissing:
		return "missing"
	case OutcomeIncompatible:
		return "incompatible"
	case OutcomeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Fatal reports whether the outcome aborts the import of the context
func (o Outcome) Fatal() bool {
	return o == OutcomeUnknown
}

// Option configures a Context
type Option func(*Context)

// WithResolver sets the resolver used to locate home. By default home is
// resolved from HOMEMIGRATE_HOME or the user's home directory.
func WithResolver(r *paths.Resolver) Option {
	return func(c *Context) {
		c.resolver = r
	}
}

// WithFS sets the filesystem used to clean and restore files
func WithFS(fsys filesystem.FS) Option {
	return func(c *Context) {
		c.fs = fsys
	}
}

// WithAccessChecker sets the checker consulted before reading framework
// exported content and before writing restored content
func WithAccessChecker(a AccessChecker) Option {
	return func(c *Context) {
		c.access = a
	}
}

// WithPropertyLookup sets how live system property values are read
func WithPropertyLookup(lookup PropertyLookup) Option {
	return func(c *Context) {
		c.lookup = lookup
	}
}

// WithVerifyChecksums controls digest verification of restored content
func WithVerifyChecksums(verify bool) Option {
	return func(c *Context) {
		c.verifyChecksums = verify
	}
}

// WithDeleteSubdirectories controls whether CleanDirectory removes the
// subdirectories it empties
func WithDeleteSubdirectories(del bool) Option {
	return func(c *Context) {
		c.deleteSubdirectories = del
	}
}

// Context keeps track of the exported entries of one migratable during an
// import.
type Context struct {
	report     *report.Report
	archive    *archive.Reader
	id         string
	migratable Migratable
	version    string

	resolver             *paths.Resolver
	fs                   filesystem.FS
	access               AccessChecker
	lookup               PropertyLookup
	verifyChecksums      bool
	deleteSubdirectories bool

	index            *Index
	systemProperties map[string]*SystemPropertyReference
	files            map[string]struct{}

	mu      sync.Mutex
	streams []io.Closer

	logger zerolog.Logger
}

// NewSystemContext creates the context of the system itself. It has no id
// and no migratable.
func NewSystemContext(rep *report.Report, ar *archive.Reader, opts ...Option) (*Context, error) {
	return newContext(rep, ar, "", nil, opts)
}

// NewContext creates a context for data recorded under id with no live
// migratable to import it.
func NewContext(rep *report.Report, ar *archive.Reader, id string, opts ...Option) (*Context, error) {
	if id == "" {
		return nil, errors.New(errors.ErrInvalidInput, "invalid empty migratable id")
	}
	return newContext(rep, ar, id, nil, opts)
}

// NewMigratableContext creates a context importing data for m.
func NewMigratableContext(rep *report.Report, ar *archive.Reader, m Migratable, opts ...Option) (*Context, error) {
	if m == nil {
		return nil, errors.New(errors.ErrInvalidInput, "invalid nil migratable")
	}
	if m.ID() == "" {
		return nil, errors.New(errors.ErrInvalidInput, "invalid empty migratable id")
	}
	return newContext(rep, ar, m.ID(), m, opts)
}

func newContext(rep *report.Report, ar *archive.Reader, id string, m Migratable, opts []Option) (*Context, error) {
	if rep == nil {
		return nil, errors.New(errors.ErrInvalidInput, "invalid nil report")
	}
	if ar == nil {
		return nil, errors.New(errors.ErrInvalidInput, "invalid nil archive")
	}

	c := &Context{
		report:               rep,
		archive:              ar,
		id:                   id,
		migratable:           m,
		access:               AllowAll{},
		lookup:               EnvLookup,
		verifyChecksums:      true,
		deleteSubdirectories: true,
		index:                NewIndex(),
		systemProperties:     make(map[string]*SystemPropertyReference),
		files:                make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.resolver == nil {
		r, err := paths.New("")
		if err != nil {
			return nil, err
		}
		c.resolver = r
	}
	if c.fs == nil {
		c.fs = filesystem.NewOS()
	}

	name := id
	if name == "" {
		name = "system"
	}
	c.logger = logging.GetLogger("migration.context").With().Str("migratable", name).Logger()
	return c, nil
}

// ID returns the migratable id, empty for the system context
func (c *Context) ID() string {
	return c.id
}

// Migratable returns the migratable being imported, nil when there is none
func (c *Context) Migratable() Migratable {
	return c.migratable
}

// Report returns the report problems are recorded in
func (c *Context) Report() *report.Report {
	return c.report
}

// Resolver returns the resolver of the home directory
func (c *Context) Resolver() *paths.Resolver {
	return c.resolver
}

// Version returns the migratable version recorded in the archive
func (c *Context) Version() (string, bool) {
	return c.version, c.version != ""
}

// Entry returns the entry for path. A placeholder is registered when
// nothing was exported for path, and the same object is returned on every
// later call.
func (c *Context) Entry(path string) *Entry {
	key := c.resolver.Normalize(path)
	return c.index.GetOrCreate(key, func() *Entry {
		return newEntry(c, KindEmpty, key)
	})
}

// Entries yields every registered entry in path order, placeholders
// included.
func (c *Context) Entries() iter.Seq[*Entry] {
	return c.index.All()
}

// EntriesUnder yields the entries at or below prefix in path order.
// Containment is by path component.
func (c *Context) EntriesUnder(prefix string) iter.Seq[*Entry] {
	if prefix == "" {
		return c.Entries()
	}
	key := c.resolver.Normalize(prefix)
	return func(yield func(*Entry) bool) {
		for e := range c.index.All() {
			if paths.HasPathPrefix(e.path, key) && !yield(e) {
				return
			}
		}
	}
}

// EntriesMatching yields the entries at or below prefix whose path is
// accepted by m.
func (c *Context) EntriesMatching(prefix string, m Matcher) iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for e := range c.EntriesUnder(prefix) {
			if m.Match(e.path) && !yield(e) {
				return
			}
		}
	}
}

// SystemPropertyReferencedEntry returns the reference recorded for the
// named system property. Absence is not an error.
func (c *Context) SystemPropertyReferencedEntry(name string) (*SystemPropertyReference, bool) {
	ref, ok := c.systemProperties[name]
	return ref, ok
}

// SystemPropertyReferences returns every system property reference ordered
// by property name
func (c *Context) SystemPropertyReferences() []*SystemPropertyReference {
	refs := make([]*SystemPropertyReference, 0, len(c.systemProperties))
	for _, ref := range c.systemProperties {
		refs = append(refs, ref)
	}
	sortSystemPropertyReferences(refs)
	return refs
}

// AddEntry registers e with the context, replacing any entry for the same
// path.
func (c *Context) AddEntry(e *Entry) {
	e.ctx = c
	c.index.Put(e)
}

// CleanDirectory deletes the content of the directory at path, leaving the
// directory itself in place. It refuses directories whose realized location
// is outside home. A missing directory is already clean. Deletion is best
// effort: every file is attempted and failures are reported together as a
// single warning.
func (c *Context) CleanDirectory(path string) bool {
	dir := c.resolver.ResolveAgainstHome(path)
	c.logger.Debug().Str("path", dir).Msg("Cleaning up directory")

	realized, err := c.resolver.RealPath(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return true
		}
		c.logger.Info().Err(err).Str("path", dir).Msg("Failed to clean directory")
		c.report.Record(report.Warning(err, "Failed to clean directory [%s]", path))
		return false
	}
	if !c.resolver.IsRelativeToHome(realized) {
		logging.Audit(c.logger).Str("path", dir).Str("realized", realized).
			Msg("Refused to clean directory outside of home")
		c.report.Record(report.Warning(
			errors.Newf(errors.ErrPathEscape, "%s is not relative to %s", realized, c.resolver.Home()),
			"Failed to clean directory [%s]; not relative to [%s]", path, c.resolver.Home()))
		return false
	}

	info, err := c.fs.Stat(realized)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return true
		}
		c.logger.Info().Err(err).Str("path", dir).Msg("Failed to clean directory")
		c.report.Record(report.Warning(err, "Failed to clean directory [%s]", path))
		return false
	}
	if !info.IsDir() {
		c.logger.Info().Str("path", dir).Msg("Failed to clean directory")
		c.report.Record(report.Warning(
			errors.Newf(errors.ErrNotDirectory, "%s is not a directory", realized),
			"Failed to clean directory [%s]; not a directory", path))
		return false
	}

	if err := c.cleanDirectory(realized); err != nil {
		logging.Audit(c.logger).Err(err).Str("path", realized).Msg("Error deleting content of directory")
		c.report.Record(report.Warning(
			errors.Wrapf(err, errors.ErrCleanFailed, "failed to clean %s", realized),
			"Failed to clean directory [%s]", path))
		return false
	}
	logging.Audit(c.logger).Str("path", realized).Msg("Deleted content of directory")
	return true
}

// cleanDirectory deletes the content of dir depth first. Symlinks are
// removed, never followed.
func (c *Context) cleanDirectory(dir string) error {
	children, err := c.fs.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCleanFailed, "failed to list contents of %s", dir)
	}

	var errs error
	for _, child := range children {
		p := filepath.Join(dir, child.Name())
		if child.IsDir() {
			if err := c.cleanDirectory(p); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if !c.deleteSubdirectories {
				continue
			}
		}
		if err := c.fs.Remove(p); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// OpenEntry returns a stream over the exported content of e. When
// checkAccess is set and the framework exported e on the migratable's
// behalf, the access checker must grant read access to the destination.
// The stream is closed when Import completes even if the caller does not
// close it.
func (c *Context) OpenEntry(e *Entry, checkAccess bool) (io.ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch e.kind {
	case KindEmpty:
		return nil, errors.Newf(errors.ErrNotFound, "%s was not exported", e.path).WithDetail("path", e.path)
	case KindExternal:
		rc, err = c.fs.Open(e.File())
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrNotFound, "failed to open external file %s", e.File())
		}
	case KindDirect:
		if checkAccess && c.isFrameworkFile(e) {
			if err := c.access.CheckRead(e.File()); err != nil {
				logging.Audit(c.logger).Err(err).Str("path", e.File()).Msg("Denied read access")
				return nil, errors.Wrapf(err, errors.ErrPermission, "read access to %s denied", e.path).
					WithDetail("path", e.path)
			}
		}
		rc, err = c.archive.Open(e.archiveName)
		if err != nil {
			return nil, err
		}
		if c.verifyChecksums && e.checksum != "" {
			rc = c.verifying(e, rc)
		}
	default:
		return nil, errors.Newf(errors.ErrInternal, "unknown entry kind %s", e.kind)
	}

	stream := &trackedStream{ReadCloser: rc}
	c.mu.Lock()
	c.streams = append(c.streams, stream)
	c.mu.Unlock()
	return stream, nil
}

// RequiresWriteAccess reports whether restoring e needs write access to its
// destination, which is the case when the framework did not export it.
func (c *Context) RequiresWriteAccess(e *Entry) bool {
	return !c.isFrameworkFile(e)
}

func (c *Context) isFrameworkFile(e *Entry) bool {
	_, ok := c.files[e.Name()]
	return ok
}

// Import dispatches to the migratable according to the version recorded in
// the archive. Every stream opened through the context is closed before
// returning, whatever the outcome.
func (c *Context) Import() Outcome {
	defer c.closeStreams()

	if c.migratable == nil {
		if c.id == "" {
			return OutcomeNone
		}
		c.logger.Warn().Msg("Unable to import migration data; migratable is no longer available")
		c.report.Record(report.Errorf(errors.ErrUnknownMigratable,
			"unknown data found for migratable [%s]; it is no longer available", c.id))
		return OutcomeUnknown
	}

	version, ok := c.Version()
	c.logger.Debug().Str("version", version).Msg("Importing migratable")
	done := logging.LogOperationStart(c.logger, "import")
	defer done()

	var (
		outcome Outcome
		err     error
	)
	switch {
	case !ok:
		outcome = OutcomeMissing
		err = c.migratable.DoMissingImport(c)
	case version == c.migratable.Version():
		outcome = OutcomeImported
		err = c.migratable.DoImport(c)
	default:
		outcome = OutcomeIncompatible
		err = c.migratable.DoIncompatibleImport(c, version)
	}
	if err != nil {
		if errors.GetErrorCode(err) == errors.ErrUnknown {
			err = errors.Wrapf(err, errors.ErrRestoreFailed, "import of %s failed", c.id)
		}
		c.report.Record(report.Error(err))
	}
	return outcome
}

// closeStreams closes every tracked stream. Failures are logged and
// otherwise ignored.
func (c *Context) closeStreams() {
	c.mu.Lock()
	streams := c.streams
	c.streams = nil
	c.mu.Unlock()

	var errs error
	for _, s := range streams {
		errs = multierr.Append(errs, s.Close())
	}
	if errs != nil {
		c.logger.Debug().Err(errs).Msg("Failed to close archive streams")
	}
}

// ProcessMetadata ingests the manifest slice of the migratable: the files
// the framework exported, then external entries, then system property
// references and finally properties file references. Malformed records are
// reported and skipped.
func (c *Context) ProcessMetadata(meta archive.Metadata) {
	c.logger.Debug().
		Str("version", meta.Version).
		Int("files", len(meta.Files)).
		Int("externals", len(meta.Externals)).
		Int("systemProperties", len(meta.SystemProperties)).
		Int("javaProperties", len(meta.JavaProperties)).
		Msg("Processing metadata")

	if meta.Version != "" {
		c.version = meta.Version
	}

	for _, r := range meta.Files {
		if !c.valid(r, r.Validate()) {
			continue
		}
		name := c.resolver.Normalize(r.Name)
		c.files[name] = struct{}{}
		if e, ok := c.index.Get(name); ok && e.kind == KindDirect && r.Checksum != "" {
			e.checksum = r.Checksum
		}
	}

	for _, r := range meta.Externals {
		if !c.valid(r, r.Validate()) {
			continue
		}
		e := newEntry(c, KindExternal, c.resolver.Normalize(r.Name))
		e.checksum = r.Checksum
		e.softlink = r.Softlink
		e.folder = r.Folder
		c.index.Put(e)
	}

	for _, r := range meta.SystemProperties {
		if !c.valid(r, r.ValidateProperty()) {
			continue
		}
		c.systemProperties[r.Property] = &SystemPropertyReference{
			ctx:      c,
			property: r.Property,
			value:    c.resolver.Normalize(r.Name),
		}
	}

	for _, r := range meta.JavaProperties {
		if !c.valid(r, r.ValidateJavaProperty()) {
			continue
		}
		owner := c.Entry(r.Properties)
		owner.addPropertyReference(&PropertyReference{
			property: r.Property,
			value:    c.resolver.Normalize(r.Name),
		})
	}
}

func (c *Context) valid(r archive.Record, err error) bool {
	if err == nil {
		return true
	}
	c.report.Record(report.Error(errors.Wrapf(err, errors.ErrManifestInvalid,
		"invalid metadata record for migratable [%s]", c.id).WithDetail("name", r.Name)))
	return false
}

// verifying wraps rc so that reaching the end of the stream fails when the
// content does not match the digest recorded for e.
func (c *Context) verifying(e *Entry, rc io.ReadCloser) io.ReadCloser {
	d, err := digest.Parse(e.checksum)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", e.path).Str("checksum", e.checksum).
			Msg("Ignoring malformed checksum")
		return rc
	}
	return &verifyingReader{ReadCloser: rc, digest: d, verifier: d.Verifier(), path: e.path}
}

type verifyingReader struct {
	io.ReadCloser
	digest   digest.Digest
	verifier digest.Verifier
	path     string
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.ReadCloser.Read(p)
	if n > 0 {
		_, _ = v.verifier.Write(p[:n])
	}
	if err == io.EOF && !v.verifier.Verified() {
		return n, errors.Newf(errors.ErrChecksumMismatch, "content of %s does not match %s", v.path, v.digest).
			WithDetail("path", v.path)
	}
	return n, err
}

// trackedStream closes its stream at most once.
type trackedStream struct {
	io.ReadCloser
	once   sync.Once
	closed bool
	err    error
}

func (s *trackedStream) Close() error {
	s.once.Do(func() {
		s.err = s.ReadCloser.Close()
		s.closed = true
	})
	return s.err
}
