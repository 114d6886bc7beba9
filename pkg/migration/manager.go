package migration

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/homemigrate/pkg/archive"
	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/logging"
	"github.com/arthur-debert/homemigrate/pkg/paths"
	"github.com/arthur-debert/homemigrate/pkg/report"
)

// DefaultFormatVersion is the archive format version understood by the
// manager
const DefaultFormatVersion = "1.0"

// ManagerOption configures a Manager
type ManagerOption func(*managerOptions)

type managerOptions struct {
	manifestName   string
	formatVersion  string
	productVersion string
	resolver       *paths.Resolver
	contextOptions []Option
}

// WithManifestName sets the name of the manifest entry in the archive
func WithManifestName(name string) ManagerOption {
	return func(o *managerOptions) {
		o.manifestName = name
	}
}

// WithFormatVersion sets the archive format version that is accepted
func WithFormatVersion(version string) ManagerOption {
	return func(o *managerOptions) {
		o.formatVersion = version
	}
}

// WithProductVersion requires archives to be exported by the given product
// version. Any product version is accepted when empty.
func WithProductVersion(version string) ManagerOption {
	return func(o *managerOptions) {
		o.productVersion = version
	}
}

// WithHome sets the resolver shared by every context
func WithHome(r *paths.Resolver) ManagerOption {
	return func(o *managerOptions) {
		o.resolver = r
	}
}

// WithContextOptions applies opts to every context the manager creates
func WithContextOptions(opts ...Option) ManagerOption {
	return func(o *managerOptions) {
		o.contextOptions = append(o.contextOptions, opts...)
	}
}

// Manager drives the import of one archive across every migratable.
type Manager struct {
	report   *report.Report
	archive  *archive.Reader
	manifest *archive.Manifest

	system   *Context
	contexts map[string]*Context
	ids      []string
	outcomes map[string]Outcome

	logger zerolog.Logger
}

// NewManager opens the archive at archivePath and prepares a context for
// the system, for every migratable and for every id found in the archive
// with no live migratable. Failing to open or understand the archive is
// fatal; problems with individual archive entries are recorded in the
// report.
func NewManager(rep *report.Report, archivePath string, migratables []Migratable, opts ...ManagerOption) (*Manager, error) {
	if rep == nil {
		return nil, errors.New(errors.ErrInvalidInput, "invalid nil report")
	}

	o := managerOptions{
		manifestName:  archive.DefaultManifestName,
		formatVersion: DefaultFormatVersion,
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.GetLogger("migration.manager").With().Str("archive", archivePath).Logger()

	ar, err := archive.Open(archivePath)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		report:   rep,
		archive:  ar,
		contexts: make(map[string]*Context),
		outcomes: make(map[string]Outcome),
		logger:   logger,
	}
	if err := m.init(migratables, o); err != nil {
		_ = ar.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) init(migratables []Migratable, o managerOptions) error {
	manifest, err := m.archive.Manifest(o.manifestName)
	if err != nil {
		return err
	}
	if manifest.Version != o.formatVersion {
		return errors.Newf(errors.ErrUnsupportedVersion,
			"unsupported archive format version %s; expecting %s", manifest.Version, o.formatVersion).
			WithDetail("version", manifest.Version)
	}
	if o.productVersion != "" && manifest.Product.Version != o.productVersion {
		return errors.Newf(errors.ErrUnsupportedVersion,
			"archive was exported by %s %s; expecting version %s",
			manifest.Product.Branding, manifest.Product.Version, o.productVersion).
			WithDetail("productVersion", manifest.Product.Version)
	}
	m.manifest = manifest

	// every context shares one resolver
	resolver := o.resolver
	if resolver == nil {
		if resolver, err = paths.New(""); err != nil {
			return err
		}
	}
	opts := append([]Option{WithResolver(resolver)}, o.contextOptions...)

	if m.system, err = NewSystemContext(m.report, m.archive, opts...); err != nil {
		return err
	}
	for _, mig := range migratables {
		c, err := NewMigratableContext(m.report, m.archive, mig, opts...)
		if err != nil {
			return err
		}
		if _, dup := m.contexts[c.id]; dup {
			return errors.Newf(errors.ErrAlreadyExists, "duplicate migratable %s", c.id)
		}
		m.add(c)
	}

	contextFor := func(id string) (*Context, error) {
		if c, ok := m.contexts[id]; ok {
			return c, nil
		}
		c, err := NewContext(m.report, m.archive, id, opts...)
		if err != nil {
			return nil, err
		}
		m.add(c)
		return c, nil
	}

	for _, id := range manifest.IDs() {
		if _, err := contextFor(id); err != nil {
			return err
		}
	}

	// direct entries go in before the metadata so that checksums and
	// property references attach to them
	for _, name := range m.archive.Names() {
		if name == o.manifestName {
			continue
		}
		id, p, ok := archive.SplitEntryName(name)
		if !ok {
			m.report.Record(report.Errorf(errors.ErrManifestInvalid, "invalid archive entry [%s]", name))
			continue
		}
		if err := paths.ValidateEntryPath(p); err != nil {
			logging.Audit(m.logger).Err(err).Str("name", name).Msg("Rejected archive entry")
			m.report.Record(report.Error(err))
			continue
		}
		c, err := contextFor(id)
		if err != nil {
			return err
		}
		c.AddEntry(NewDirectEntry(c.resolver.Normalize(p), name))
	}

	for _, id := range m.ids {
		if meta, ok := manifest.Migratables[id]; ok {
			m.contexts[id].ProcessMetadata(meta)
		}
	}

	m.logger.Info().
		Str("productVersion", manifest.Product.Version).
		Int("contexts", len(m.ids)).
		Msg("Archive loaded")
	return nil
}

func (m *Manager) add(c *Context) {
	m.contexts[c.id] = c
	i := sort.SearchStrings(m.ids, c.id)
	m.ids = append(m.ids, "")
	copy(m.ids[i+1:], m.ids[i:])
	m.ids[i] = c.id
}

// Import imports the system context and then every other context in id
// order. It stops before the next context once ctx is done. The returned
// error combines every error recorded in the report.
func (m *Manager) Import(ctx context.Context) error {
	done := logging.LogOperationStart(m.logger, "import")
	defer done()

	m.system.Import()
	for _, id := range m.ids {
		if err := ctx.Err(); err != nil {
			m.report.Record(report.Error(errors.Wrap(err, errors.ErrInternal, "import interrupted")))
			break
		}
		outcome := m.contexts[id].Import()
		m.outcomes[id] = outcome
		m.logger.Info().Str("migratable", id).Stringer("outcome", outcome).Msg("Migratable processed")
	}
	return m.report.Verify()
}

// Outcome returns how the context of id was imported. OutcomeNone is
// returned for contexts that were not imported.
func (m *Manager) Outcome(id string) Outcome {
	return m.outcomes[id]
}

// System returns the system context
func (m *Manager) System() *Context {
	return m.system
}

// Contexts returns the migratable contexts in id order
func (m *Manager) Contexts() []*Context {
	out := make([]*Context, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, m.contexts[id])
	}
	return out
}

// Context returns the context of the migratable id
func (m *Manager) Context(id string) (*Context, bool) {
	c, ok := m.contexts[id]
	return c, ok
}

// Manifest returns the decoded archive manifest
func (m *Manager) Manifest() *archive.Manifest {
	return m.manifest
}

// Close releases the archive
func (m *Manager) Close() error {
	return m.archive.Close()
}
