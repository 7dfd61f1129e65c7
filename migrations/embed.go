// Package migrations embeds the SQL migration files applied by goose
// when the local store is opened.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
