// Package keepwarm provides embedded assets for the keepwarm daemon.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML]. cmd/keepwarm writes it to the data directory on first
// run so users start from a fully commented file.
package keepwarm

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time. The file is generated by cmd/genconfig.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
