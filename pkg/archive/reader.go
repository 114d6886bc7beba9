package archive

import (
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/logging"
)

// DefaultManifestName is the manifest entry written by the exporter
const DefaultManifestName = "export.json"

// Reader provides random access to the entries of an export archive.
type Reader struct {
	mu     sync.Mutex
	path   string
	closer io.Closer
	files  map[string]*zip.File
	names  []string
	logger zerolog.Logger
}

// Open opens the archive at path.
func Open(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrArchiveOpen, "failed to open archive %s", path).
			WithDetail("path", path)
	}
	r := newReader(path, &zr.Reader)
	r.closer = zr
	return r, nil
}

// NewReader reads an archive of the given size from ra.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrArchiveOpen, "failed to read archive")
	}
	return newReader("", zr), nil
}

func newReader(path string, zr *zip.Reader) *Reader {
	r := &Reader{
		path:   path,
		files:  make(map[string]*zip.File, len(zr.File)),
		logger: logging.GetLogger("archive").With().Str("archive", path).Logger(),
	}
	for _, f := range zr.File {
		// directories carry no content
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		if _, dup := r.files[f.Name]; dup {
			r.logger.Warn().Str("name", f.Name).Msg("Duplicate archive entry, keeping the first one")
			continue
		}
		r.files[f.Name] = f
		r.names = append(r.names, f.Name)
	}
	sort.Strings(r.names)
	r.logger.Debug().Int("entries", len(r.names)).Msg("Archive opened")
	return r
}

// Path returns the filesystem path the archive was opened from
func (r *Reader) Path() string {
	return r.path
}

// Names returns the names of all content entries in ascending order.
func (r *Reader) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Has reports whether the archive holds an entry named name
func (r *Reader) Has(name string) bool {
	_, ok := r.files[name]
	return ok
}

// Size returns the uncompressed size of the named entry
func (r *Reader) Size(name string) (int64, bool) {
	f, ok := r.files[name]
	if !ok {
		return 0, false
	}
	return int64(f.UncompressedSize64), true
}

// Open returns a fresh stream over the content of the named entry. Reads
// from the stream hold the archive lock, so streams may be consumed from
// any goroutine.
func (r *Reader) Open(name string) (io.ReadCloser, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "archive entry %s not found", name).
			WithDetail("name", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrArchiveRead, "failed to open archive entry %s", name).
			WithDetail("name", name)
	}
	return &lockedReadCloser{mu: &r.mu, rc: rc}, nil
}

// Manifest reads and decodes the named manifest entry.
func (r *Reader) Manifest(name string) (*Manifest, error) {
	if name == "" {
		name = DefaultManifestName
	}
	rc, err := r.Open(name)
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrNotFound) {
			return nil, errors.Wrapf(err, errors.ErrManifestInvalid, "archive has no manifest %s", name)
		}
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return DecodeManifest(rc)
}

// Close releases the underlying file. Readers created with NewReader have
// nothing to release.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// lockedReadCloser serializes reads against the shared archive handle.
type lockedReadCloser struct {
	mu *sync.Mutex
	rc io.ReadCloser
}

func (l *lockedReadCloser) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rc.Read(p)
}

func (l *lockedReadCloser) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rc.Close()
}

// SplitEntryName splits a content entry name into the owning migratable id
// and the home-relative path of the content.
func SplitEntryName(name string) (id, path string, ok bool) {
	id, path, ok = strings.Cut(name, "/")
	if !ok || id == "" || path == "" {
		return "", "", false
	}
	return id, path, true
}

// EntryName builds the archive name for path owned by the migratable id.
func EntryName(id, path string) string {
	return id + "/" + path
}
