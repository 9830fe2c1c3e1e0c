package migrations

import "embed"

// schemaFS holds one directory of numbered .sql files per backend.
//
//go:embed postgres/*.sql clickhouse/*.sql sqlite/*.sql
var schemaFS embed.FS
