package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/arthur-debert/homemigrate/pkg/errors"
)

// Manifest describes the content of an export.
type Manifest struct {
	// Version is the archive format version
	Version string  `json:"version"`
	Product Product `json:"product"`
	// Date is the export time as recorded by the exporter
	Date        string              `json:"date,omitempty"`
	Migratables map[string]Metadata `json:"migratables"`
}

// Product identifies the system that produced the export
type Product struct {
	Branding string `json:"branding,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Metadata is the slice of the manifest owned by one migratable.
type Metadata struct {
	// Version is the migratable version at export time. Empty when the
	// exporter recorded none.
	Version      string `json:"version,omitempty"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Organization string `json:"organization,omitempty"`

	// Files names the content the framework exported on the migratable's
	// behalf.
	Files []Record `json:"files,omitempty"`
	// Externals are files recorded as existing outside the archive.
	Externals []Record `json:"externals,omitempty"`
	// SystemProperties are paths reached through a system property.
	SystemProperties []Record `json:"systemProperties,omitempty"`
	// JavaProperties are paths reached through a key of a properties file.
	JavaProperties []Record `json:"javaProperties,omitempty"`
}

// Record is one item of a metadata list. Only Name is common to every list.
type Record struct {
	// Name is the path the record refers to
	Name string `json:"name"`
	// Checksum is a digest of the content ("sha256:...")
	Checksum string `json:"checksum,omitempty"`
	Softlink bool   `json:"softlink,omitempty"`
	Folder   bool   `json:"folder,omitempty"`
	// Property is the system property or properties file key
	Property string `json:"property,omitempty"`
	// Properties is the path of the owning properties file
	Properties string `json:"properties,omitempty"`

	// invalid holds the reason a record could not be decoded
	invalid string
}

// UnmarshalJSON decodes a record without failing the whole manifest. A
// record that is not an object, or whose fields have the wrong types, is
// kept and reported by Validate.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*r = Record{invalid: fmt.Sprintf("malformed record %s", compact(data))}
		return nil
	}
	*r = Record(p)
	return nil
}

// Validate reports why the record cannot be used
func (r Record) Validate() error {
	if r.invalid != "" {
		return errors.New(errors.ErrManifestInvalid, r.invalid)
	}
	if r.Name == "" {
		return errors.New(errors.ErrManifestInvalid, "record is missing a name")
	}
	return nil
}

// ValidateProperty checks a record from the systemProperties list
func (r Record) ValidateProperty() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Property == "" {
		return errors.Newf(errors.ErrManifestInvalid, "property reference to %s is missing a property", r.Name)
	}
	return nil
}

// ValidateJavaProperty checks a record from the javaProperties list
func (r Record) ValidateJavaProperty() error {
	if err := r.ValidateProperty(); err != nil {
		return err
	}
	if r.Properties == "" {
		return errors.Newf(errors.ErrManifestInvalid, "property reference %s is missing its properties file", r.Property)
	}
	return nil
}

// IDs returns the migratable ids recorded in the manifest in ascending order
func (m *Manifest) IDs() []string {
	ids := make([]string, 0, len(m.Migratables))
	for id := range m.Migratables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DecodeManifest parses a manifest. JSON comments and trailing commas are
// accepted.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrArchiveRead, "failed to read manifest")
	}

	var m Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, errors.Wrap(err, errors.ErrManifestInvalid, "failed to parse manifest")
	}
	if m.Version == "" {
		return nil, errors.New(errors.ErrManifestInvalid, "manifest is missing a version")
	}
	if m.Migratables == nil {
		m.Migratables = map[string]Metadata{}
	}
	return &m, nil
}

func compact(data []byte) string {
	const limit = 64
	s := string(data)
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
