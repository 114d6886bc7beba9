// Package registry provides a generic, type-safe registry and the global
// registries of migratables and of the factories building them from
// configuration. Migratable types register their factory from init().
package registry
