package ui

import "embed"

// Dist embeds the built frontend assets from dist/. The checked-in page is a
// dependency-free fallback; a richer build can replace it without touching Go
// code.
//
//go:embed all:dist
var Dist embed.FS
