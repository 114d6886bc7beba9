package registry

import (
	"github.com/arthur-debert/homemigrate/pkg/config"
	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/migration"
)

// DefaultMigratableType is the factory used for configured migratables that
// name no type
const DefaultMigratableType = "files"

// MigratableFactory builds a migratable from its configuration
type MigratableFactory func(cfg config.MigratableEntry) (migration.Migratable, error)

// Global registries for different component types
var (
	factoryRegistry    = New[MigratableFactory]()
	migratableRegistry = New[migration.Migratable]()
)

// RegisterMigratableFactory registers the factory for a migratable type
func RegisterMigratableFactory(typ string, factory MigratableFactory) error {
	return factoryRegistry.Register(typ, factory)
}

// MustRegisterMigratableFactory registers the factory for a migratable type
// and panics when the type is taken. It is meant for init functions.
func MustRegisterMigratableFactory(typ string, factory MigratableFactory) {
	MustRegister(factoryRegistry, typ, factory)
}

// GetMigratableFactory retrieves the factory for a migratable type
func GetMigratableFactory(typ string) (MigratableFactory, error) {
	factory, err := factoryRegistry.Get(typ)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "unknown migratable type %s", typ).
			WithDetail("type", typ)
	}
	return factory, nil
}

// MigratableTypes returns the registered migratable types
func MigratableTypes() []string {
	return factoryRegistry.Names()
}

// RegisterMigratable makes m available to imports under its id
func RegisterMigratable(m migration.Migratable) error {
	if m == nil {
		return errors.New(errors.ErrInvalidInput, "invalid nil migratable")
	}
	return migratableRegistry.Register(m.ID(), m)
}

// Migratables returns the registered migratables ordered by id
func Migratables() []migration.Migratable {
	return migratableRegistry.Values()
}

// ResetMigratables forgets every registered migratable. Factories are kept.
func ResetMigratables() {
	migratableRegistry.Clear()
}

// LoadMigratables builds every configured migratable with the factory of its
// type and registers it. Nothing is registered when any entry fails.
func LoadMigratables(entries []config.MigratableEntry) error {
	built := make([]migration.Migratable, 0, len(entries))
	for _, entry := range entries {
		typ := entry.Type
		if typ == "" {
			typ = DefaultMigratableType
		}
		factory, err := GetMigratableFactory(typ)
		if err != nil {
			return err
		}
		m, err := factory(entry)
		if err != nil {
			return errors.Wrapf(err, errors.ErrConfigParse, "failed to build migratable %s", entry.ID).
				WithDetail("id", entry.ID)
		}
		if migratableRegistry.Has(m.ID()) {
			return errors.Newf(errors.ErrAlreadyExists, "migratable %s is already registered", m.ID()).
				WithDetail("id", m.ID())
		}
		built = append(built, m)
	}

	for _, m := range built {
		if err := RegisterMigratable(m); err != nil {
			return err
		}
	}
	return nil
}
