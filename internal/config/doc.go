// Package config provides configuration loading and validation for the
// voice chat client. It handles YAML-based configuration with struct
// validation and supplies sensible defaults when no file is present.
package config
