// Package filesystem provides the filesystem abstraction used while restoring
// archive content into the home directory.
//
// Directory cleaning and entry restoration go through the FS interface so
// that tests can inject failures (locked files, permission errors) without
// touching real file modes.
package filesystem
