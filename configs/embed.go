// Package configs embeds the example configuration template so every
// distribution of the binary can write it out, source builds and binary
// releases alike.
//
// The template is written by `maktaba config init` and documents every
// setting with its default. See internal/config for load order:
// defaults, then the file, then MAKTABA_* environment variables.
package configs

import _ "embed"

// ConfigTemplate is the annotated example configuration written by
// `maktaba config init`.
//
//go:embed maktaba.example.yaml
var ConfigTemplate string
