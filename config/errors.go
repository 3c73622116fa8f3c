package config

import "errors"

var (
	// ErrInvalidSettings wraps every validation failure.
	ErrInvalidSettings = errors.New("config: invalid settings")
	// ErrUnsupportedFormat is returned for settings files that are neither
	// YAML nor HCL.
	ErrUnsupportedFormat = errors.New("config: unsupported settings file format")
)
