// Package migrations embeds the nhd.db schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
