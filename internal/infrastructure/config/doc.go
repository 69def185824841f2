// Package config loads and validates the actuation service configuration.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then environment variable overrides. The environment names (ACTUATION_*,
// VDI_*, POLICY_URL and friends) are part of the deployment contract and are
// documented on ActuationConfig, VDIConfig and DownstreamConfig.
//
// The resulting Config is immutable after Load returns; no component reads
// the environment ad hoc at request time.
package config
