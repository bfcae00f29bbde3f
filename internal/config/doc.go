// Package config loads, normalizes, and validates the TOML configuration
// for codecast. Defaults are embedded; Load layers a user file over them and
// rejects configurations the pipeline cannot run with.
package config
