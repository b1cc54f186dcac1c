package schema

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/revred/sharc/core/sqlite/internal/btree"
	"github.com/revred/sharc/core/sqlite/internal/parser"
	"github.com/revred/sharc/core/sqlite/internal/record"
)

// sqlite_master table schema:
//
// CREATE TABLE sqlite_master (
//   type TEXT,      -- "table", "index", "trigger", "view"
//   name TEXT,      -- object name
//   tbl_name TEXT,  -- table name (for indexes/triggers)
//   rootpage INT,   -- root B-tree page
//   sql TEXT        -- CREATE statement
// );
//
// The sqlite_master table is always stored on page 1 of the database.

// masterColumns is the fixed column count of sqlite_master rows.
const masterColumns = 5

// MasterRow represents a row in the sqlite_master table.
type MasterRow struct {
	Type     string // "table", "index", "trigger", "view"
	Name     string // Object name
	TblName  string // Associated table name
	RootPage uint32 // Root page number
	SQL      string // CREATE statement
}

// LoadFromMaster loads the schema from the sqlite_master table.
// This reads all table, index, and view definitions from page 1 of the
// database.
func (s *Schema) LoadFromMaster(bt *btree.Btree) error {
	if bt == nil {
		return fmt.Errorf("nil btree")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// sqlite_master is on page 1
	const masterPageNum = 1

	rows, err := s.parseMasterPage(bt, masterPageNum)
	if err != nil {
		return fmt.Errorf("failed to parse sqlite_master: %w", err)
	}

	for _, row := range rows {
		switch row.Type {
		case "table":
			// Skip internal tables
			if row.Name == "sqlite_master" || row.Name == "sqlite_sequence" {
				continue
			}
			table, err := s.parseTableSQL(row)
			if err != nil {
				return fmt.Errorf("failed to parse table %s: %w", row.Name, err)
			}
			s.Tables[table.Name] = table

		case "index":
			// Skip auto-indexes (sqlite_autoindex_*)
			if len(row.Name) > 16 && row.Name[:16] == "sqlite_autoindex" {
				continue
			}
			index, err := s.parseIndexSQL(row)
			if err != nil {
				return fmt.Errorf("failed to parse index %s: %w", row.Name, err)
			}
			s.Indexes[index.Name] = index

		case "view":
			s.Views[row.Name] = &View{
				Name:     row.Name,
				RootPage: row.RootPage,
				SQL:      row.SQL,
			}

		case "trigger":
			// Triggers are not implemented, skip
			continue
		}
	}

	return nil
}

// SaveToMaster writes the current schema's table, index, and view rows into
// the sqlite_master table on page 1, replacing its previous contents.
func (s *Schema) SaveToMaster(bt *btree.Btree) error {
	if bt == nil {
		return fmt.Errorf("nil btree")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []MasterRow

	for _, table := range s.Tables {
		// sqlite_master describes the schema; it never describes itself.
		if table.Name == "sqlite_master" {
			continue
		}
		rows = append(rows, MasterRow{
			Type:     "table",
			Name:     table.Name,
			TblName:  table.Name,
			RootPage: table.RootPage,
			SQL:      table.SQL,
		})
	}

	for _, index := range s.Indexes {
		rows = append(rows, MasterRow{
			Type:     "index",
			Name:     index.Name,
			TblName:  index.Table,
			RootPage: index.RootPage,
			SQL:      index.SQL,
		})
	}

	for _, view := range s.Views {
		rows = append(rows, MasterRow{
			Type:    "view",
			Name:    view.Name,
			TblName: view.Name,
			SQL:     view.SQL,
		})
	}

	// Deterministic page layout: tables first, then indexes, then views,
	// alphabetical within each group.
	groupRank := map[string]int{"table": 0, "index": 1, "view": 2}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Type != rows[j].Type {
			return groupRank[rows[i].Type] < groupRank[rows[j].Type]
		}
		return rows[i].Name < rows[j].Name
	})

	if err := s.writeMasterPage(bt, 1, rows); err != nil {
		return fmt.Errorf("failed to write sqlite_master: %w", err)
	}

	return nil
}

// parseMasterPage walks the schema table rooted at pageNum with a table
// cursor, decoding each cell's record into a MasterRow. A database so new
// that the page does not exist yet simply has no schema rows.
func (s *Schema) parseMasterPage(bt *btree.Btree, pageNum uint32) ([]MasterRow, error) {
	rows := []MasterRow{}
	if _, err := bt.GetPage(pageNum); err != nil {
		return rows, nil
	}

	cur := btree.NewCursor(bt, pageNum)
	types := make([]record.SerialType, masterColumns)
	offsets := make([]int, masterColumns)

	for {
		ok, err := cur.MoveNext()
		if err != nil {
			return nil, fmt.Errorf("walk schema table: %w", err)
		}
		if !ok {
			break
		}
		payload, err := cur.Payload()
		if err != nil {
			return nil, err
		}

		n, bodyStart, err := record.ReadHeader(payload, types)
		if err != nil {
			return nil, fmt.Errorf("schema row rowid %d: %w", cur.GetKey(), err)
		}
		record.ComputeOffsets(types[:n], bodyStart, offsets)

		row := MasterRow{
			Type:    textColumn(payload, types, offsets, n, 0),
			Name:    textColumn(payload, types, offsets, n, 1),
			TblName: textColumn(payload, types, offsets, n, 2),
			SQL:     textColumn(payload, types, offsets, n, 4),
		}
		if n > 3 {
			rootpage, err := record.DecodeInt(payload, types[3], offsets[3])
			if err != nil {
				return nil, fmt.Errorf("schema row rowid %d: %w", cur.GetKey(), err)
			}
			row.RootPage = uint32(rootpage)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func textColumn(payload []byte, types []record.SerialType, offsets []int, n, i int) string {
	if i >= n || !types[i].IsText() {
		return ""
	}
	b, err := record.DecodeBlobOrText(payload, types[i], offsets[i])
	if err != nil {
		return ""
	}
	return string(b)
}

// writeMasterPage replaces the schema table at pageNum with the given rows,
// each encoded as a (type, name, tbl_name, rootpage, sql) record keyed by a
// sequential rowid.
func (s *Schema) writeMasterPage(bt *btree.Btree, pageNum uint32, rows []MasterRow) error {
	pageData, err := bt.GetPage(pageNum)
	if err != nil {
		for {
			pg, aerr := bt.AllocatePage()
			if aerr != nil {
				return aerr
			}
			if pg >= pageNum {
				break
			}
		}
		pageData, err = bt.GetPage(pageNum)
		if err != nil {
			return err
		}
	}

	resetLeafTablePage(pageData, pageNum)
	if err := bt.SetPage(pageNum, pageData); err != nil {
		return err
	}

	cur := btree.NewCursor(bt, pageNum)
	for i, row := range rows {
		payload := record.EncodeRecord([]record.Value{
			record.TextValue(row.Type),
			record.TextValue(row.Name),
			record.TextValue(row.TblName),
			record.IntValue(int64(row.RootPage)),
			record.TextValue(row.SQL),
		})
		if err := cur.Insert(int64(i+1), payload); err != nil {
			return fmt.Errorf("write schema row %q: %w", row.Name, err)
		}
	}
	return nil
}

// resetLeafTablePage reinitializes the b-tree header region of pageData as an
// empty table leaf, preserving the 100-byte file header when pageNum is 1.
func resetLeafTablePage(pageData []byte, pageNum uint32) {
	offset := 0
	if pageNum == 1 {
		offset = btree.FileHeaderSize
	}
	pageData[offset+btree.PageHeaderOffsetType] = btree.PageTypeLeafTable
	pageData[offset+btree.PageHeaderOffsetFreeblock] = 0
	pageData[offset+btree.PageHeaderOffsetFreeblock+1] = 0
	pageData[offset+btree.PageHeaderOffsetNumCells] = 0
	pageData[offset+btree.PageHeaderOffsetNumCells+1] = 0
	// Empty page: content area starts at the page end (uint16, 65536 wraps to 0).
	binary.BigEndian.PutUint16(pageData[offset+btree.PageHeaderOffsetCellStart:], uint16(len(pageData)))
	pageData[offset+btree.PageHeaderOffsetFragmented] = 0
}

// parseTableSQL parses a CREATE TABLE statement from a master row.
func (s *Schema) parseTableSQL(row MasterRow) (*Table, error) {
	if row.SQL == "" {
		// Some system tables don't have SQL
		return &Table{
			Name:     row.Name,
			RootPage: row.RootPage,
			SQL:      row.SQL,
			Columns:  []*Column{},
		}, nil
	}

	p := parser.NewParser(row.SQL)
	stmts, err := p.Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("expected 1 statement, got %d", len(stmts))
	}
	createTable, ok := stmts[0].(*parser.CreateTableStmt)
	if !ok {
		return nil, fmt.Errorf("expected CREATE TABLE, got %T", stmts[0])
	}

	// Convert parser columns to schema columns directly; CreateTable can't be
	// called here as the schema mutex is already held.
	columns := make([]*Column, len(createTable.Columns))
	var primaryKeyColumns []string

	for i, colDef := range createTable.Columns {
		col := &Column{
			Name:     colDef.Name,
			Type:     colDef.Type,
			Affinity: DetermineAffinity(colDef.Type),
		}

		for _, constraint := range colDef.Constraints {
			switch constraint.Type {
			case parser.ConstraintPrimaryKey:
				col.PrimaryKey = true
				primaryKeyColumns = append(primaryKeyColumns, col.Name)
				if constraint.PrimaryKey != nil && constraint.PrimaryKey.Autoincrement {
					col.Autoincrement = true
				}
			case parser.ConstraintNotNull:
				col.NotNull = true
			case parser.ConstraintUnique:
				col.Unique = true
			case parser.ConstraintCollate:
				col.Collation = constraint.Collate
			case parser.ConstraintDefault:
				if constraint.Default != nil {
					col.Default = constraint.Default.String()
				}
			case parser.ConstraintCheck:
				if constraint.Check != nil {
					col.Check = constraint.Check.String()
				}
			case parser.ConstraintGenerated:
				if constraint.Generated != nil {
					col.Generated = true
					if constraint.Generated.Expr != nil {
						col.GeneratedExpr = constraint.Generated.Expr.String()
					}
					col.GeneratedStored = constraint.Generated.Stored
				}
			}
		}

		columns[i] = col
	}

	table := &Table{
		Name:         createTable.Name,
		RootPage:     row.RootPage, // Use the one from sqlite_master
		SQL:          row.SQL,
		Columns:      columns,
		PrimaryKey:   uniqueStrings(primaryKeyColumns),
		WithoutRowID: createTable.WithoutRowID,
		Strict:       createTable.Strict,
		Temp:         createTable.Temp,
	}
	table.Merged = detectMergedColumns(columns)

	return table, nil
}

// detectMergedColumns finds pairs of 64-bit columns that together carry one
// logical 128-bit value: name__hi/name__lo for 128-bit identifiers and
// name__dhi/name__dlo for 128-bit decimals.
func detectMergedColumns(columns []*Column) []MergedColumn {
	byName := make(map[string]int, len(columns))
	for i, col := range columns {
		byName[strings.ToLower(col.Name)] = i
	}

	var merged []MergedColumn
	for i, col := range columns {
		lower := strings.ToLower(col.Name)
		switch {
		case strings.HasSuffix(lower, "__hi"):
			base := lower[:len(lower)-4]
			if lo, ok := byName[base+"__lo"]; ok {
				merged = append(merged, MergedColumn{Name: base, Hi: i, Lo: lo})
			}
		case strings.HasSuffix(lower, "__dhi"):
			base := lower[:len(lower)-5]
			if lo, ok := byName[base+"__dlo"]; ok {
				merged = append(merged, MergedColumn{Name: base, Hi: i, Lo: lo, Decimal: true})
			}
		}
	}
	return merged
}

// parseIndexSQL parses a CREATE INDEX statement from a master row.
func (s *Schema) parseIndexSQL(row MasterRow) (*Index, error) {
	if row.SQL == "" {
		// Some auto-indexes don't have SQL
		return &Index{
			Name:     row.Name,
			Table:    row.TblName,
			RootPage: row.RootPage,
			SQL:      row.SQL,
			Columns:  []string{},
		}, nil
	}

	p := parser.NewParser(row.SQL)
	stmts, err := p.Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("expected 1 statement, got %d", len(stmts))
	}
	createIndex, ok := stmts[0].(*parser.CreateIndexStmt)
	if !ok {
		return nil, fmt.Errorf("expected CREATE INDEX, got %T", stmts[0])
	}

	columns := make([]string, len(createIndex.Columns))
	for i, col := range createIndex.Columns {
		columns[i] = col.Column
	}

	index := &Index{
		Name:     createIndex.Name,
		Table:    createIndex.Table,
		RootPage: row.RootPage, // Use the one from sqlite_master
		SQL:      row.SQL,
		Columns:  columns,
		Unique:   createIndex.Unique,
		Partial:  createIndex.Where != nil,
	}
	if createIndex.Where != nil {
		index.Where = createIndex.Where.String()
	}

	return index, nil
}

// InitializeMaster creates the sqlite_master table in a new database.
// This should be called when creating a new database file.
func (s *Schema) InitializeMaster() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	masterTable := &Table{
		Name:     "sqlite_master",
		RootPage: 1,
		SQL:      "CREATE TABLE sqlite_master(type text,name text,tbl_name text,rootpage integer,sql text)",
		Columns: []*Column{
			{Name: "type", Type: "text", Affinity: AffinityText},
			{Name: "name", Type: "text", Affinity: AffinityText},
			{Name: "tbl_name", Type: "text", Affinity: AffinityText},
			{Name: "rootpage", Type: "integer", Affinity: AffinityInteger},
			{Name: "sql", Type: "text", Affinity: AffinityText},
		},
		PrimaryKey:   []string{},
		WithoutRowID: false,
		Strict:       false,
		Temp:         false,
	}

	s.Tables["sqlite_master"] = masterTable
	return nil
}
