// Package config loads and validates application configuration.
//
// Configuration comes from environment variables prefixed with SHULE_, with
// an optional YAML file (SHULE_CONFIG_FILE) applied first. The resulting
// Config struct is injected explicitly at startup; no package reads the
// environment after load.
package config
