// Package config loads service configuration from an optional YAML file, an
// optional .env file and environment variables, in that order of precedence.
package config
