// Package config loads application settings from YAML, a .env file and the environment.
package config
