package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/homemigrate/pkg/config"
	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/migration"
)

type stubMigratable struct {
	id      string
	version string
}

func (s *stubMigratable) ID() string                                            { return s.id }
func (s *stubMigratable) Version() string                                       { return s.version }
func (s *stubMigratable) DoImport(*migration.Context) error                     { return nil }
func (s *stubMigratable) DoMissingImport(*migration.Context) error              { return nil }
func (s *stubMigratable) DoIncompatibleImport(*migration.Context, string) error { return nil }

const stubType = "stub"

func init() {
	MustRegisterMigratableFactory(stubType, func(cfg config.MigratableEntry) (migration.Migratable, error) {
		if cfg.Version == "broken" {
			return nil, errors.New(errors.ErrInvalidInput, "broken")
		}
		return &stubMigratable{id: cfg.ID, version: cfg.Version}, nil
	})
}

func TestMigratableFactories(t *testing.T) {
	assert.Contains(t, MigratableTypes(), stubType)

	_, err := GetMigratableFactory("nope")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))

	err = RegisterMigratableFactory(stubType, nil)
	assert.True(t, errors.IsErrorCode(err, errors.ErrAlreadyExists))
	assert.Panics(t, func() { MustRegisterMigratableFactory(stubType, nil) })
}

func TestRegisterMigratable(t *testing.T) {
	t.Cleanup(ResetMigratables)
	ResetMigratables()

	require.NoError(t, RegisterMigratable(&stubMigratable{id: "b", version: "1"}))
	require.NoError(t, RegisterMigratable(&stubMigratable{id: "a", version: "1"}))

	err := RegisterMigratable(&stubMigratable{id: "a", version: "2"})
	assert.True(t, errors.IsErrorCode(err, errors.ErrAlreadyExists))
	assert.True(t, errors.IsErrorCode(RegisterMigratable(nil), errors.ErrInvalidInput))

	var ids []string
	for _, m := range Migratables() {
		ids = append(ids, m.ID())
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestLoadMigratables(t *testing.T) {
	t.Run("builds with the factory of each type", func(t *testing.T) {
		t.Cleanup(ResetMigratables)
		ResetMigratables()

		err := LoadMigratables([]config.MigratableEntry{
			{ID: "one", Type: stubType, Version: "1"},
			{ID: "two", Type: stubType, Version: "3"},
		})
		require.NoError(t, err)

		got := Migratables()
		require.Len(t, got, 2)
		assert.Equal(t, "one", got[0].ID())
		assert.Equal(t, "3", got[1].Version())
	})

	tests := []struct {
		name  string
		entry config.MigratableEntry
		code  errors.ErrorCode
	}{
		{"unknown type", config.MigratableEntry{ID: "x", Type: "nope", Version: "1"}, errors.ErrNotFound},
		{"default type not registered here", config.MigratableEntry{ID: "x", Version: "1"}, errors.ErrNotFound},
		{"factory failure", config.MigratableEntry{ID: "x", Type: stubType, Version: "broken"}, errors.ErrConfigParse},
		{"already registered", config.MigratableEntry{ID: "taken", Type: stubType, Version: "1"}, errors.ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(ResetMigratables)
			ResetMigratables()
			require.NoError(t, RegisterMigratable(&stubMigratable{id: "taken", version: "1"}))

			err := LoadMigratables([]config.MigratableEntry{
				{ID: "ok", Type: stubType, Version: "1"},
				tt.entry,
			})
			assert.True(t, errors.IsErrorCode(err, tt.code), "got %v", err)
			assert.False(t, migratableRegistry.Has("ok"), "nothing is registered on failure")
		})
	}
}
