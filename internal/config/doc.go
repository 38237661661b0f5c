// Package config builds the immutable Settings of the farm-management
// application. Values come from built-in defaults, an optional YAML overlay,
// the process environment and CLI flags, with precedence:
// CLI flags > Environment variables > YAML config > Defaults.
//
// Settings are constructed once at startup and passed by value to every
// component that needs them.
package config
