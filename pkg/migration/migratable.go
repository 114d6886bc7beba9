package migration

// Migratable is a component able to restore its own slice of an export.
type Migratable interface {
	// ID identifies the migratable inside the archive
	ID() string
	// Version is the version of the data the migratable currently produces
	Version() string

	// DoImport restores data exported by the same version
	DoImport(ctx *Context) error
	// DoMissingImport is called when the archive holds no version for the
	// migratable
	DoMissingImport(ctx *Context) error
	// DoIncompatibleImport restores data exported by a different version
	DoIncompatibleImport(ctx *Context, archivedVersion string) error
}

// Describer is implemented by migratables that carry a description for
// listings.
type Describer interface {
	Title() string
	Description() string
	Organization() string
}
