// Package configs provides the embedded configuration template for
// quarry.
//
// The template is embedded at build time with //go:embed so it ships in
// every distribution. `quarry init` writes it next to the corpus as a
// starting point.
package configs

import _ "embed"

// DefaultConfigTemplate is the annotated default engine configuration.
//
//go:embed default.yaml
var DefaultConfigTemplate string
