// Package files implements the built-in migratable restoring whole
// directories of the home from an archive.
package files

import (
	"github.com/arthur-debert/homemigrate/pkg/config"
	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/logging"
	"github.com/arthur-debert/homemigrate/pkg/migration"
	"github.com/arthur-debert/homemigrate/pkg/registry"
	"github.com/arthur-debert/homemigrate/pkg/report"
)

// Type is the registered migratable type
const Type = "files"

func init() {
	registry.MustRegisterMigratableFactory(Type, factory)
}

func factory(cfg config.MigratableEntry) (migration.Migratable, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Migratable restores the entries exported under a set of home-relative
// directories.
type Migratable struct {
	cfg config.MigratableEntry
}

var _ migration.Migratable = (*Migratable)(nil)
var _ migration.Describer = (*Migratable)(nil)

// New creates a files migratable. Without directories every entry of the
// migratable is restored.
func New(cfg config.MigratableEntry) (*Migratable, error) {
	if cfg.ID == "" {
		return nil, errors.New(errors.ErrInvalidInput, "migratable id cannot be empty")
	}
	if cfg.Version == "" {
		return nil, errors.Newf(errors.ErrInvalidInput, "migratable %s has no version", cfg.ID)
	}
	return &Migratable{cfg: cfg}, nil
}

func (m *Migratable) ID() string           { return m.cfg.ID }
func (m *Migratable) Version() string      { return m.cfg.Version }
func (m *Migratable) Title() string        { return m.cfg.Title }
func (m *Migratable) Description() string  { return m.cfg.Description }
func (m *Migratable) Organization() string { return "" }

// Directories returns the directories the migratable restores
func (m *Migratable) Directories() []string {
	if len(m.cfg.Directories) == 0 {
		return []string{""}
	}
	return m.cfg.Directories
}

// DoImport empties each directory when configured to, restores every entry
// under it and finally checks the system properties still reference what
// was exported.
func (m *Migratable) DoImport(ctx *migration.Context) error {
	logger := logging.GetLogger("migratables.files").With().Str("migratable", m.ID()).Logger()

	restored, failed := 0, 0
	for _, dir := range m.Directories() {
		if m.cfg.Clean && dir != "" {
			ctx.CleanDirectory(dir)
		}
		for e := range ctx.EntriesUnder(dir) {
			if e.Restore(false) {
				restored++
			} else {
				failed++
			}
		}
	}
	for _, ref := range ctx.SystemPropertyReferences() {
		ref.Restore(false)
	}

	logger.Info().Int("restored", restored).Int("failed", failed).Msg("Files imported")
	return nil
}

// DoMissingImport leaves the local files alone since nothing was exported
func (m *Migratable) DoMissingImport(ctx *migration.Context) error {
	ctx.Report().Record(report.Warningf(
		"No data was exported for [%s]; local files were left untouched", m.ID()))
	return nil
}

// DoIncompatibleImport refuses data exported by another version
func (m *Migratable) DoIncompatibleImport(ctx *migration.Context, archivedVersion string) error {
	return errors.Newf(errors.ErrUnsupportedVersion,
		"unable to import [%s] exported with version %s; expecting version %s",
		m.ID(), archivedVersion, m.Version()).
		WithDetail("version", archivedVersion)
}
