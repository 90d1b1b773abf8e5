// Package config loads client configuration from a YAML file with
// environment overrides.
package config
