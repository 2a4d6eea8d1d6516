// Package migrations embute o schema SQL no binário, aplicado no boot via
// golang-migrate. Sem dependência do diretório de trabalho em produção.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
