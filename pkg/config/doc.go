// Package config loads the burrow server configuration.
//
// Values are layered: Default, then an optional YAML file (Load), then
// environment variables (ApplyEnv), then command-line flags applied by the
// CLI. Validate reports every invalid field at once.
package config
