// Package config loads, normalizes, and validates Vigil's TOML
// configuration, including the tracked-identity roster with its
// severity markers.
package config
