package locales

import "embed"

// FS holds one <lang>.json dictionary per supported language.
//
//go:embed *.json
var FS embed.FS
