// Package migration implements the import side of a migration: it rebuilds
// an index of everything an export archive holds and hands each migratable
// its own slice of that index.
//
// # Contexts
//
// A Context exists per migratable plus one system context with no
// migratable. It owns an Index of entries keyed by normalized path (relative
// to home for content under home, absolute otherwise), the set of files the
// framework exported on the migratable's behalf, and every stream opened
// against the archive while the migratable runs.
//
// # Entries
//
// An Entry is one of three kinds:
//
//   - KindDirect: content stored in the archive under "<id>/<path>"
//   - KindEmpty: a placeholder for a path nothing was exported for
//   - KindExternal: a file recorded as existing outside the archive
//
// Keys of Java style properties files are not entries of their own. They are
// PropertyReference annotations on the entry of the owning properties file,
// which is synthesized as a placeholder when the file itself was not
// exported. System property references live in a separate name-keyed map and
// are looked up with Context.SystemPropertyReferencedEntry.
//
// Looking up a path never fails: Context.Entry returns the registered entry
// or registers a placeholder, and keeps returning that same object.
//
// # Version dispatch
//
// Context.Import compares the version recorded in the archive with the live
// migratable's version and calls DoImport, DoMissingImport or
// DoIncompatibleImport. Data recorded for an id with no live migratable is a
// fatal error. Problems are recorded in the report rather than returned.
//
// # Safety
//
// Every write and every deletion is checked against the realized home
// directory. Symlinks are resolved before the check and are never followed
// while cleaning a directory.
package migration
