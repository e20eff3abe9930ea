// Package config loads and validates wavecache configuration from TOML.
//
// Configuration resolution order: an explicit --config path, then
// ~/.config/wavecache/config.toml, then a wavecache.toml in the working
// directory. Missing files fall back to repository defaults so the CLI
// stays usable without any setup.
package config
