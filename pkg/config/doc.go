// Package config handles configuration management for homemigrate.
// Configuration is layered: embedded defaults, the user's TOML file,
// HOMEMIGRATE_* environment variables and finally command-line overrides.
package config
