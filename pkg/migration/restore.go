package migration

import (
	stderrors "errors"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/magiconair/properties"
	"github.com/opencontainers/go-digest"

	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/logging"
	"github.com/arthur-debert/homemigrate/pkg/report"
)

// Restore brings the local system in line with what was exported for the
// entry and then verifies the property references attached to it. Direct
// entries are written to their destination. Optional placeholders remove
// any local file so the system mirrors the export, while required ones are
// an error. External entries are verified on disk. Problems with optional
// entries are warnings; with required ones they are errors. The outcome is
// computed once and cached.
func (e *Entry) Restore(required bool) bool {
	if e.ctx == nil {
		return false
	}
	if e.restored != nil {
		return *e.restored
	}

	var ok bool
	switch e.kind {
	case KindDirect:
		ok = e.restoreDirect()
	case KindEmpty:
		ok = e.restoreEmpty(required)
	case KindExternal:
		ok = e.verifyExternal(required)
	}

	for _, ref := range e.PropertyReferences() {
		ok = ref.verify(required) && ok
	}

	e.restored = &ok
	return ok
}

func (e *Entry) restoreDirect() bool {
	c := e.ctx

	dest, err := c.resolver.SecureResolve(e.path)
	if err != nil {
		logging.Audit(c.logger).Err(err).Str("path", e.path).Msg("Refused to restore file")
		c.report.Record(report.Error(err))
		return false
	}
	if c.RequiresWriteAccess(e) {
		if err := c.access.CheckWrite(dest); err != nil {
			logging.Audit(c.logger).Err(err).Str("path", dest).Msg("Denied write access")
			c.report.Record(report.Error(errors.Wrapf(err, errors.ErrPermission,
				"write access to %s denied", e.path).WithDetail("path", e.path)))
			return false
		}
	}

	if err := c.writeEntry(e, dest); err != nil {
		c.report.Record(report.Error(err))
		return false
	}
	logging.Audit(c.logger).Str("path", dest).Msg("Restored file")
	return true
}

func (c *Context) writeEntry(e *Entry, dest string) error {
	if err := c.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrRestoreFailed, "failed to create parent of %s", e.path)
	}

	rc, err := c.OpenEntry(e, true)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	w, err := c.fs.Create(dest, 0644)
	if err != nil {
		return errors.Wrapf(err, errors.ErrRestoreFailed, "failed to create %s", e.path)
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = w.Close()
		if errors.IsErrorCode(err, errors.ErrChecksumMismatch) {
			return err
		}
		return errors.Wrapf(err, errors.ErrRestoreFailed, "failed to write %s", e.path)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrRestoreFailed, "failed to write %s", e.path)
	}
	return nil
}

func (e *Entry) restoreEmpty(required bool) bool {
	c := e.ctx
	if required {
		c.report.Record(report.Errorf(errors.ErrNotFound, "%s was not exported", e.path))
		return false
	}
	// placeholders owning property references stand for files that were
	// never meant to be exported
	if len(e.properties) > 0 {
		return true
	}

	dest, err := c.resolver.SecureResolve(e.path)
	if err != nil {
		c.report.Record(report.Error(err))
		return false
	}
	if _, err := c.fs.Lstat(dest); err != nil {
		return true
	}
	if err := c.fs.Remove(dest); err != nil {
		c.report.Record(report.Warning(err, "Failed to delete [%s] which was not exported", e.path))
		return false
	}
	logging.Audit(c.logger).Str("path", dest).Msg("Deleted file which was not exported")
	return true
}

func (e *Entry) verifyExternal(required bool) bool {
	c := e.ctx
	file := e.File()

	var (
		info fs.FileInfo
		err  error
	)
	if e.softlink {
		info, err = c.fs.Lstat(file)
	} else {
		info, err = c.fs.Stat(file)
	}
	switch {
	case err != nil:
		return c.problem(required, errors.Wrapf(err, errors.ErrNotFound, "%s does not exist", file))
	case e.softlink && info.Mode()&fs.ModeSymlink == 0:
		return c.problem(required, errors.Newf(errors.ErrRestoreFailed, "%s is not a symbolic link", file))
	case e.folder && !info.IsDir():
		return c.problem(required, errors.Newf(errors.ErrNotDirectory, "%s is not a directory", file))
	case !e.folder && !e.softlink && info.IsDir():
		return c.problem(required, errors.Newf(errors.ErrRestoreFailed, "%s is a directory", file))
	}

	if e.softlink || e.folder || e.checksum == "" || !c.verifyChecksums {
		return true
	}
	expected, err := digest.Parse(e.checksum)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", e.path).Msg("Ignoring malformed checksum")
		return true
	}
	rc, err := c.fs.Open(file)
	if err != nil {
		return c.problem(required, errors.Wrapf(err, errors.ErrRestoreFailed, "failed to read %s", file))
	}
	defer func() { _ = rc.Close() }()

	actual, err := expected.Algorithm().FromReader(rc)
	if err != nil {
		return c.problem(required, errors.Wrapf(err, errors.ErrRestoreFailed, "failed to read %s", file))
	}
	if actual != expected {
		return c.problem(required, errors.Newf(errors.ErrChecksumMismatch,
			"%s has changed since it was exported", file).WithDetail("path", file))
	}
	return true
}

// Restore restores the entry the property references and verifies the
// property still references it.
func (r *PropertyReference) Restore(required bool) bool {
	ok := r.Entry().Restore(required)
	return r.verify(required) && ok
}

// Verify checks the properties file on disk still maps the property to the
// exported value. A mismatch is recorded as an error.
func (r *PropertyReference) Verify() bool {
	return r.verify(true)
}

func (r *PropertyReference) verify(required bool) bool {
	c := r.owner.ctx
	file := r.owner.File()

	data, err := c.fs.ReadFile(file)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return c.problem(required, errors.Newf(errors.ErrPropertyMismatch,
				"properties file %s referencing [%s] does not exist", r.owner.path, r.property))
		}
		return c.problem(required, errors.Wrapf(err, errors.ErrPropertyMismatch,
			"failed to read properties file %s", r.owner.path))
	}

	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(data)
	if err != nil {
		return c.problem(required, errors.Wrapf(err, errors.ErrPropertyMismatch,
			"failed to parse properties file %s", r.owner.path))
	}

	value, ok := props.Get(r.property)
	if !ok {
		return c.problem(required, errors.Newf(errors.ErrPropertyMismatch,
			"property [%s] is no longer defined in %s", r.property, r.owner.path))
	}
	if live := c.resolver.Normalize(value); live != r.value {
		return c.problem(required, errors.Newf(errors.ErrPropertyMismatch,
			"property [%s] in %s now references %s instead of %s", r.property, r.owner.path, live, r.value))
	}
	return true
}

// Restore checks the system property still references the exported value
// and restores the entry it references.
func (r *SystemPropertyReference) Restore(required bool) bool {
	ok := r.Verify(required)
	return r.Entry().Restore(required) && ok
}

// Verify checks the live value of the system property still references the
// exported entry.
func (r *SystemPropertyReference) Verify(required bool) bool {
	c := r.ctx
	value, ok := c.lookup(r.property)
	if !ok {
		return c.problem(required, errors.Newf(errors.ErrPropertyMismatch,
			"system property [%s] is no longer defined", r.property))
	}
	if live := c.resolver.Normalize(value); live != r.value {
		return c.problem(required, errors.Newf(errors.ErrPropertyMismatch,
			"system property [%s] now references %s instead of %s", r.property, live, r.value))
	}
	return true
}

// problem records err as an error when required and as a warning otherwise,
// and returns false.
func (c *Context) problem(required bool, err *errors.MigrateError) bool {
	if required {
		c.report.Record(report.Error(err))
	} else {
		c.report.Record(report.Warning(err, "%s", err.Message))
	}
	return false
}
