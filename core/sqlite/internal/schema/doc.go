// Package schema loads and writes the database's schema: the tables,
// indexes, and views recorded in the sqlite_master table rooted at page 1.
//
// The loader walks the schema table with a B-tree cursor, decodes each row's
// (type, name, tbl_name, rootpage, sql) record, and parses the stored CREATE
// statements with the DDL parser to recover column definitions, constraints,
// and index column lists. Writing goes the other way: the current schema is
// serialized back into records and inserted into a reinitialized page-1
// leaf. Lookups are case-insensitive, matching SQLite's identifier rules.
//
// Three components:
//
//   - Schema (schema.go): thread-safe container for tables, indexes, and
//     views, plus creation/removal from parsed DDL statements.
//   - Master table (master.go): reading the schema out of, and writing it
//     back into, the sqlite_master B-tree.
//   - Type affinity (affinity.go): SQLite's five affinities (TEXT, NUMERIC,
//     INTEGER, REAL, BLOB) determined from declared column types per
//     https://sqlite.org/datatype3.html.
//
// Column pairs following the name__hi/name__lo (128-bit identifier) or
// name__dhi/name__dlo (128-bit decimal) convention are detected when a table
// is parsed and surfaced on Table.Merged, so callers can reassemble the
// logical value from its two physical halves.
//
// Typical use against an open B-tree:
//
//	s := schema.NewSchema()
//	if err := s.LoadFromMaster(bt); err != nil {
//		return err
//	}
//	table, ok := s.GetTable("concepts")
//	if ok {
//		for _, idx := range s.GetTableIndexes(table.Name) {
//			// pick an access path
//		}
//	}
//
// Triggers are recognized in sqlite_master rows but not modeled; virtual
// tables and foreign-key enforcement are outside this engine's scope.
package schema
