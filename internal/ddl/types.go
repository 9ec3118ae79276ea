package ddl

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: column name as it should appear in SQL (quoted by the caller if needed)
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, JSONB)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
}

// TableDef holds the table name as it should appear in SQL and an ordered
// list of columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}
