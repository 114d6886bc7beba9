// Package archive reads exported snapshots.
//
// An export is a zip file holding a manifest (export.json by default) and the
// content written by each migratable. Content entries are named
//
//	<migratable id>/<home-relative path>
//
// so every migratable owns its own top-level directory inside the archive.
//
// The manifest is JSON. Comments and trailing commas are tolerated so that
// hand-edited manifests used in tests and support cases still load.
//
// A Reader is shared by every migration context of an import. All access to
// the underlying zip handle is serialized by a single mutex, reads included.
package archive
