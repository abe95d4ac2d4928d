// Package config loads service configuration from defaults, an optional
// YAML file and the environment, in that order. Environment variables win.
package config
