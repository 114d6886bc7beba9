package migration

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/arthur-debert/homemigrate/pkg/errors"
)

// Kind identifies the variant of an Entry
type Kind int

const (
	// KindEmpty is a placeholder for a path with no exported content
	KindEmpty Kind = iota
	// KindDirect is backed by content stored in the archive
	KindDirect
	// KindExternal is a file recorded outside of the archive
	KindExternal
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindDirect:
		return "direct"
	case KindExternal:
		return "external"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Entry is an addressable unit of restorable content.
type Entry struct {
	ctx  *Context
	kind Kind
	path string

	// archiveName is the backing archive entry of direct entries
	archiveName string
	checksum    string
	softlink    bool
	folder      bool

	properties map[string]*PropertyReference

	// restored caches the outcome of Restore
	restored *bool
}

func newEntry(ctx *Context, kind Kind, path string) *Entry {
	return &Entry{ctx: ctx, kind: kind, path: path}
}

// NewDirectEntry creates an entry for path backed by the archive entry
// archiveName. It is registered with Context.AddEntry; until then it has no
// context, File returns "", Open fails and Restore reports false.
func NewDirectEntry(path, archiveName string) *Entry {
	return &Entry{kind: KindDirect, path: path, archiveName: archiveName}
}

// Path returns the normalized path of the entry. It is the index key.
func (e *Entry) Path() string {
	return e.path
}

// Name returns the name the exporter used for the entry
func (e *Entry) Name() string {
	return e.path
}

// Kind returns the variant of the entry
func (e *Entry) Kind() Kind {
	return e.kind
}

// Exists reports whether anything was exported for the entry
func (e *Entry) Exists() bool {
	return e.kind != KindEmpty
}

// ArchiveName returns the archive entry backing a direct entry
func (e *Entry) ArchiveName() string {
	return e.archiveName
}

// Checksum returns the digest recorded at export time, if any
func (e *Entry) Checksum() string {
	return e.checksum
}

// IsSoftlink reports whether an external entry was recorded as a symlink
func (e *Entry) IsSoftlink() bool {
	return e.softlink
}

// IsFolder reports whether an external entry was recorded as a directory
func (e *Entry) IsFolder() bool {
	return e.folder
}

// File returns the absolute location of the entry on the local system
func (e *Entry) File() string {
	if e.ctx == nil {
		return ""
	}
	return e.ctx.resolver.ResolveAgainstHome(e.path)
}

// Context returns the context owning the entry
func (e *Entry) Context() *Context {
	return e.ctx
}

// PropertyReferences returns the property references attached to the entry,
// ordered by property name.
func (e *Entry) PropertyReferences() []*PropertyReference {
	names := make([]string, 0, len(e.properties))
	for name := range e.properties {
		names = append(names, name)
	}
	sort.Strings(names)

	refs := make([]*PropertyReference, 0, len(names))
	for _, name := range names {
		refs = append(refs, e.properties[name])
	}
	return refs
}

// PropertyReference returns the reference recorded for the named property
func (e *Entry) PropertyReference(name string) (*PropertyReference, bool) {
	ref, ok := e.properties[name]
	return ref, ok
}

// Open returns a stream over the exported content of the entry.
func (e *Entry) Open(checkAccess bool) (io.ReadCloser, error) {
	if e.ctx == nil {
		return nil, errUnbound(e)
	}
	return e.ctx.OpenEntry(e, checkAccess)
}

func errUnbound(e *Entry) error {
	return errors.Newf(errors.ErrInvalidInput, "entry %s is not registered with a context", e.path).
		WithDetail("path", e.path)
}

func (e *Entry) addPropertyReference(ref *PropertyReference) {
	if e.properties == nil {
		e.properties = make(map[string]*PropertyReference)
	}
	ref.owner = e
	e.properties[ref.property] = ref
}

// PropertyReference is a key of a properties file whose value is the path of
// another entry. It is attached to the entry of the properties file.
type PropertyReference struct {
	owner    *Entry
	property string
	value    string
}

// Property returns the key inside the properties file
func (r *PropertyReference) Property() string {
	return r.property
}

// Value returns the normalized path the key referenced at export time
func (r *PropertyReference) Value() string {
	return r.value
}

// Owner returns the entry of the properties file
func (r *PropertyReference) Owner() *Entry {
	return r.owner
}

// Entry returns the entry the property references
func (r *PropertyReference) Entry() *Entry {
	return r.owner.ctx.Entry(r.value)
}

// SystemPropertyReference is a system property whose value was the path of
// an entry at export time.
type SystemPropertyReference struct {
	ctx      *Context
	property string
	value    string
}

// Property returns the name of the system property
func (r *SystemPropertyReference) Property() string {
	return r.property
}

// Value returns the normalized path the property referenced at export time
func (r *SystemPropertyReference) Value() string {
	return r.value
}

// Entry returns the entry the property references
func (r *SystemPropertyReference) Entry() *Entry {
	return r.ctx.Entry(r.value)
}

func sortSystemPropertyReferences(refs []*SystemPropertyReference) {
	slices.SortFunc(refs, func(a, b *SystemPropertyReference) int {
		return cmp.Compare(a.property, b.property)
	})
}
