// Package config loads Strom server configuration from JSON or YAML files
// with STROM_* environment overlays.
package config
