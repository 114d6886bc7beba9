package output

import (
	"github.com/arthur-debert/homemigrate/pkg/migration"
	"github.com/arthur-debert/homemigrate/pkg/report"
)

// ImportView is the result of an import
type ImportView struct {
	ReportID       string           `json:"reportId" yaml:"reportId"`
	Archive        string           `json:"archive" yaml:"archive"`
	ProductVersion string           `json:"productVersion,omitempty" yaml:"productVersion,omitempty"`
	Contexts       []ContextOutcome `json:"migratables" yaml:"migratables"`
	Warnings       []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Errors         []string         `json:"errors,omitempty" yaml:"errors,omitempty"`
	Successful     bool             `json:"successful" yaml:"successful"`
}

// ContextOutcome is how one migratable was imported
type ContextOutcome struct {
	ID      string `json:"id" yaml:"id"`
	Outcome string `json:"outcome" yaml:"outcome"`
}

// ListView describes the content of an archive
type ListView struct {
	Archive         string           `json:"archive" yaml:"archive"`
	FormatVersion   string           `json:"formatVersion" yaml:"formatVersion"`
	ProductBranding string           `json:"productBranding,omitempty" yaml:"productBranding,omitempty"`
	ProductVersion  string           `json:"productVersion,omitempty" yaml:"productVersion,omitempty"`
	Date            string           `json:"date,omitempty" yaml:"date,omitempty"`
	Contexts        []ContextListing `json:"migratables" yaml:"migratables"`
}

// ContextListing describes the slice of an archive owned by one migratable
type ContextListing struct {
	ID               string            `json:"id" yaml:"id"`
	Title            string            `json:"title,omitempty" yaml:"title,omitempty"`
	ArchivedVersion  string            `json:"archivedVersion,omitempty" yaml:"archivedVersion,omitempty"`
	Version          string            `json:"version,omitempty" yaml:"version,omitempty"`
	Known            bool              `json:"known" yaml:"known"`
	Entries          []EntryListing    `json:"entries,omitempty" yaml:"entries,omitempty"`
	SystemProperties []PropertyListing `json:"systemProperties,omitempty" yaml:"systemProperties,omitempty"`
}

// EntryListing describes one entry
type EntryListing struct {
	Path       string            `json:"path" yaml:"path"`
	Kind       string            `json:"kind" yaml:"kind"`
	Checksum   string            `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Softlink   bool              `json:"softlink,omitempty" yaml:"softlink,omitempty"`
	Folder     bool              `json:"folder,omitempty" yaml:"folder,omitempty"`
	Properties []PropertyListing `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// PropertyListing is a property referencing a path
type PropertyListing struct {
	Property string `json:"property" yaml:"property"`
	Value    string `json:"value" yaml:"value"`
}

// NewImportView summarizes an import run by m into rep
func NewImportView(archivePath string, m *migration.Manager, rep *report.Report) ImportView {
	v := ImportView{
		ReportID:       rep.ID().String(),
		Archive:        archivePath,
		ProductVersion: m.Manifest().Product.Version,
		Successful:     rep.WasSuccessful(),
	}
	for _, c := range m.Contexts() {
		v.Contexts = append(v.Contexts, ContextOutcome{ID: c.ID(), Outcome: m.Outcome(c.ID()).String()})
	}
	for _, msg := range rep.Warnings() {
		v.Warnings = append(v.Warnings, msg.Text)
	}
	for _, msg := range rep.Errors() {
		v.Errors = append(v.Errors, msg.Text)
	}
	return v
}

// NewListView describes the archive loaded by m
func NewListView(archivePath string, m *migration.Manager) ListView {
	manifest := m.Manifest()
	v := ListView{
		Archive:         archivePath,
		FormatVersion:   manifest.Version,
		ProductBranding: manifest.Product.Branding,
		ProductVersion:  manifest.Product.Version,
		Date:            manifest.Date,
	}

	for _, c := range m.Contexts() {
		archived, _ := c.Version()
		l := ContextListing{
			ID:              c.ID(),
			ArchivedVersion: archived,
			Title:           manifest.Migratables[c.ID()].Title,
		}
		if mig := c.Migratable(); mig != nil {
			l.Known = true
			l.Version = mig.Version()
			if d, ok := mig.(migration.Describer); ok && d.Title() != "" {
				l.Title = d.Title()
			}
		}
		for e := range c.Entries() {
			el := EntryListing{
				Path:     e.Path(),
				Kind:     e.Kind().String(),
				Checksum: e.Checksum(),
				Softlink: e.IsSoftlink(),
				Folder:   e.IsFolder(),
			}
			for _, ref := range e.PropertyReferences() {
				el.Properties = append(el.Properties, PropertyListing{Property: ref.Property(), Value: ref.Value()})
			}
			l.Entries = append(l.Entries, el)
		}
		for _, ref := range c.SystemPropertyReferences() {
			l.SystemProperties = append(l.SystemProperties, PropertyListing{Property: ref.Property(), Value: ref.Value()})
		}
		v.Contexts = append(v.Contexts, l)
	}
	return v
}
