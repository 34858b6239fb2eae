package frontend

import "embed"

// StaticFiles holds the built browser UI
//
//go:embed dist
var StaticFiles embed.FS
