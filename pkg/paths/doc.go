// Package paths provides centralized path handling for homemigrate.
//
// Every file restored from an archive lands somewhere under the system home
// directory. The Resolver owns that directory and answers the two questions
// the import engine keeps asking:
//
//   - where does a home-relative path live on disk (ResolveAgainstHome)
//   - does a realized, symlink-free path still lie inside home (IsRelativeToHome)
//
// Containment is always decided on the realized form of a path. A symlink
// planted inside home that points elsewhere resolves to its target before the
// check, so it cannot be used to redirect writes or deletions out of home.
// A path that does not exist yet is not an escape; callers get an error
// satisfying errors.Is(err, fs.ErrNotExist) and decide what that means.
//
// # Index keys
//
// Normalize turns any caller-supplied path into the canonical key used by the
// entry index: slash separated, cleaned, relative to home when it lies under
// home and absolute otherwise.
//
// # Environment Variables
//
//   - HOMEMIGRATE_HOME: system home used when no explicit home is given
//   - HOME: fallback for the user's home directory
package paths
