// Package web holds the embedded preview page.
package web

import "embed"

//go:embed index.html
var Content embed.FS
