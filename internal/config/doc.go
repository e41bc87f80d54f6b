// Package config provides configuration structures and utilities for imgguard.
// Values are resolved in order: built-in defaults, the .imgguard.yaml file,
// IMGGUARD_* environment variables (optionally from a .env file), then CLI flags.
package config
