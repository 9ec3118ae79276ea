// Package all links every storage backend into the binary.
package all

import (
	_ "tableload/internal/storage/memory"
	_ "tableload/internal/storage/mongodb"
	_ "tableload/internal/storage/mssql"
	_ "tableload/internal/storage/mysql"
	_ "tableload/internal/storage/objstore"
	_ "tableload/internal/storage/postgres"
	_ "tableload/internal/storage/sqlite"
)
