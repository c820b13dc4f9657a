// Package confloader loads layered configuration with koanf and watches the
// configuration file for changes.
//
// Sources, from lowest to highest priority:
//
//  1. Defaults, passed as a map
//  2. A YAML file
//  3. Environment variables with the LIBOS_ prefix
//  4. Command-line overrides, passed as a map
//
// In environment variable names a double underscore separates nesting
// levels and a single underscore stays part of the key, so
// LIBOS_EXIT__WAIT_HELPER_HOST_EXIT sets exit.wait_helper_host_exit.
package confloader
