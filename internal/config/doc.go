// Package config defines the configuration of a LibOS process and of the
// libos-exitctl tool.
//
//   - spec.go: Config struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking of secrets for logging
//   - load.go: loading through internal/infra/confloader
package config
