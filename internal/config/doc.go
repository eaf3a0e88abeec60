// Package config loads, normalizes, and validates imagemill's TOML
// configuration. Load layers a config file over built-in defaults; path
// fields are tilde-expanded and made absolute before validation runs.
package config
