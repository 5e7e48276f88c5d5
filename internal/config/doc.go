// Package config loads the server configuration from defaults, an optional
// JSON or YAML file, and POINTCAST_* environment overlays, in that order.
package config
