// Package migrations embeds the goose SQL migrations so the worker binary
// can migrate without shipping loose files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
