package config

// Config is the complete homemigrate configuration
type Config struct {
	// Home is the system home directory. Empty means the default lookup.
	Home        string            `koanf:"home" json:"home" yaml:"home"`
	Archive     Archive           `koanf:"archive" json:"archive" yaml:"archive"`
	Clean       Clean             `koanf:"clean" json:"clean" yaml:"clean"`
	Import      Import            `koanf:"import" json:"import" yaml:"import"`
	Log         Log               `koanf:"log" json:"log" yaml:"log"`
	Migratables []MigratableEntry `koanf:"migratables" json:"migratables" yaml:"migratables"`
}

// Archive holds settings about the archives that are accepted
type Archive struct {
	Manifest       string `koanf:"manifest" json:"manifest" yaml:"manifest"`
	FormatVersion  string `koanf:"format_version" json:"formatVersion" yaml:"formatVersion"`
	ProductVersion string `koanf:"product_version" json:"productVersion" yaml:"productVersion"`
}

// Clean holds directory cleaning settings
type Clean struct {
	DeleteSubdirectories bool `koanf:"delete_subdirectories" json:"deleteSubdirectories" yaml:"deleteSubdirectories"`
}

// Import holds settings applied while restoring entries
type Import struct {
	CheckAccess     bool     `koanf:"check_access" json:"checkAccess" yaml:"checkAccess"`
	VerifyChecksums bool     `koanf:"verify_checksums" json:"verifyChecksums" yaml:"verifyChecksums"`
	ProtectedPaths  []string `koanf:"protected_paths" json:"protectedPaths" yaml:"protectedPaths"`
}

// Log holds logging settings
type Log struct {
	File bool `koanf:"file" json:"file" yaml:"file"`
}

// MigratableEntry configures one directory based migratable
type MigratableEntry struct {
	ID string `koanf:"id" json:"id" yaml:"id"`
	// Type selects the registered factory. Empty means "files".
	Type        string   `koanf:"type" json:"type,omitempty" yaml:"type,omitempty"`
	Version     string   `koanf:"version" json:"version" yaml:"version"`
	Title       string   `koanf:"title" json:"title" yaml:"title"`
	Description string   `koanf:"description" json:"description" yaml:"description"`
	Directories []string `koanf:"directories" json:"directories" yaml:"directories"`

	// Clean empties each directory before its entries are restored
	Clean bool `koanf:"clean" json:"clean" yaml:"clean"`
}
