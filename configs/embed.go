package configs

import _ "embed"

// DefaultConfig is the shipped configuration file, written to the user's
// config directory on first run.
//
//go:embed default.yaml
var DefaultConfig []byte
