// Package testutil provides utilities for testing homemigrate components.
//
// Key components:
//   - TestEnvironment: isolated home directory with a Resolver and an FS
//   - ArchiveBuilder: declarative export archive setup (manifest + content)
//   - FailingFS: FS wrapper injecting failures for chosen files
//
// Usage guidelines:
//   - All test data should be defined inline, not in external files
//   - Each test should be completely isolated with no shared state
package testutil
