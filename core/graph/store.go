// Package graph layers a concept/relation store over any open database:
// nodes and edges are plain table rows, adjacency queries ride the table's
// indexes when one exists (falling back to a full scan with early exit), and
// traversal is a bounded two-phase BFS — edges first for page-cache
// locality, node records fetched in a batch afterwards.
package graph

import (
	serrors "github.com/revred/sharc/core/errors"
	"github.com/revred/sharc/core/sqlite"
)

// ConceptAdapter maps the concept store's logical roles onto physical column
// names. Optional roles may name columns the table does not have; they
// decode as zero values.
type ConceptAdapter struct {
	Table         string
	ID            string // string identifier
	Key           string // integer node key
	Type          string
	Data          string
	CVN           string
	LVN           string
	SyncStatus    string
	UpdatedAt     string
	Alias         string
	TokenEstimate string
}

// DefaultConceptAdapter matches the conventional concepts table layout.
func DefaultConceptAdapter() ConceptAdapter {
	return ConceptAdapter{
		Table:         "concepts",
		ID:            "id",
		Key:           "key",
		Type:          "type",
		Data:          "data",
		CVN:           "cvn",
		LVN:           "lvn",
		SyncStatus:    "sync_status",
		UpdatedAt:     "updated_at",
		Alias:         "alias",
		TokenEstimate: "token_estimate",
	}
}

// RelationAdapter maps the relation store's logical roles onto physical
// column names.
type RelationAdapter struct {
	Table      string
	ID         string
	Origin     string
	Target     string
	Kind       string
	Data       string
	Weight     string
	CVN        string
	LVN        string
	SyncStatus string
}

// DefaultRelationAdapter matches the conventional relations table layout.
func DefaultRelationAdapter() RelationAdapter {
	return RelationAdapter{
		Table:      "relations",
		ID:         "id",
		Origin:     "origin",
		Target:     "target",
		Kind:       "kind",
		Data:       "data",
		Weight:     "weight",
		CVN:        "cvn",
		LVN:        "lvn",
		SyncStatus: "sync_status",
	}
}

// Concept is one decoded node row.
type Concept struct {
	Rowid         int64
	ID            string
	Key           int64
	Type          int64
	Data          []byte
	CVN           int64
	LVN           int64
	SyncStatus    int64
	UpdatedAt     int64
	Alias         string
	TokenEstimate int64
}

// Edge is one decoded edge row.
type Edge struct {
	Rowid      int64
	ID         int64
	Origin     int64
	Target     int64
	Kind       int64
	Data       []byte
	Weight     float64
	CVN        int64
	LVN        int64
	SyncStatus int64
}

// Store bundles the concept and relation stores over one database.
type Store struct {
	db        *sqlite.Database
	Concepts  *ConceptStore
	Relations *RelationStore
}

// NewStore creates a store with the given adapters; call Initialize before
// use.
func NewStore(db *sqlite.Database, ca ConceptAdapter, ra RelationAdapter) *Store {
	return &Store{
		db:        db,
		Concepts:  &ConceptStore{db: db, adapter: ca},
		Relations: &RelationStore{db: db, adapter: ra},
	}
}

// Initialize resolves both adapters against the database schema and selects
// the access-path indexes.
func (s *Store) Initialize() error {
	if err := s.Concepts.initialize(); err != nil {
		return err
	}
	return s.Relations.initialize()
}

// selectIndex returns the root page of the first index on table whose
// leading column is named col, or (0, false).
func selectIndex(schema *sqlite.Schema, table, col string) (uint32, bool) {
	for _, idx := range schema.GetTableIndexes(table) {
		if len(idx.Columns) > 0 && equalFold(idx.Columns[0], col) {
			return idx.RootPage, true
		}
	}
	return 0, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// ConceptStore looks nodes up by integer key or string id.
type ConceptStore struct {
	db      *sqlite.Database
	adapter ConceptAdapter

	table *sqlite.Table
	ords  conceptOrdinals

	keyIndex uint32
	hasKeyIx bool
	idIndex  uint32
	hasIDIx  bool
}

type conceptOrdinals struct {
	id, key, typ, data, cvn, lvn, sync, updated, alias, tokens int
}

func (cs *ConceptStore) initialize() error {
	schema, err := cs.db.Schema()
	if err != nil {
		return err
	}
	table, ok := schema.GetTable(cs.adapter.Table)
	if !ok {
		return serrors.NewNotFound("concept table", cs.adapter.Table)
	}
	cs.table = table
	cs.ords = conceptOrdinals{
		id:      table.GetColumnIndex(cs.adapter.ID),
		key:     table.GetColumnIndex(cs.adapter.Key),
		typ:     table.GetColumnIndex(cs.adapter.Type),
		data:    table.GetColumnIndex(cs.adapter.Data),
		cvn:     table.GetColumnIndex(cs.adapter.CVN),
		lvn:     table.GetColumnIndex(cs.adapter.LVN),
		sync:    table.GetColumnIndex(cs.adapter.SyncStatus),
		updated: table.GetColumnIndex(cs.adapter.UpdatedAt),
		alias:   table.GetColumnIndex(cs.adapter.Alias),
		tokens:  table.GetColumnIndex(cs.adapter.TokenEstimate),
	}
	if cs.ords.key < 0 {
		return serrors.NewNotFound("concept key column", cs.adapter.Key)
	}
	cs.keyIndex, cs.hasKeyIx = selectIndex(schema, cs.adapter.Table, cs.adapter.Key)
	cs.idIndex, cs.hasIDIx = selectIndex(schema, cs.adapter.Table, cs.adapter.ID)
	return nil
}

// GetByKey fetches the node with the given integer key.
func (cs *ConceptStore) GetByKey(key int64) (*Concept, bool, error) {
	if cs.hasKeyIx {
		rowid, found, err := indexLookupRowid(cs.db, cs.keyIndex, sqlite.Int(key))
		if err != nil || !found {
			return nil, false, err
		}
		return cs.fetchRowid(rowid)
	}

	// No index: full scan with early exit on the first match.
	r, err := cs.db.NewReader(cs.adapter.Table, nil)
	if err != nil {
		return nil, false, err
	}
	for {
		ok, err := r.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		k, err := r.Int64(cs.ords.key)
		if err != nil {
			return nil, false, err
		}
		if k == key {
			c, err := cs.decode(r)
			return c, err == nil, err
		}
	}
}

// GetByID fetches the node with the given string identifier.
func (cs *ConceptStore) GetByID(id string) (*Concept, bool, error) {
	if cs.ords.id < 0 {
		return nil, false, serrors.NewNotFound("concept id column", cs.adapter.ID)
	}
	if cs.hasIDIx {
		rowid, found, err := indexLookupRowid(cs.db, cs.idIndex, sqlite.Text(id))
		if err != nil || !found {
			return nil, false, err
		}
		return cs.fetchRowid(rowid)
	}

	r, err := cs.db.NewReader(cs.adapter.Table, nil)
	if err != nil {
		return nil, false, err
	}
	for {
		ok, err := r.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		v, err := r.Text(cs.ords.id)
		if err != nil {
			continue
		}
		if v == id {
			c, err := cs.decode(r)
			return c, err == nil, err
		}
	}
}

func (cs *ConceptStore) fetchRowid(rowid int64) (*Concept, bool, error) {
	r, err := cs.db.NewReader(cs.adapter.Table, nil)
	if err != nil {
		return nil, false, err
	}
	found, err := r.Seek(rowid)
	if err != nil || !found {
		return nil, false, err
	}
	c, err := cs.decode(r)
	return c, err == nil, err
}

func (cs *ConceptStore) decode(r *sqlite.Reader) (*Concept, error) {
	c := &Concept{Rowid: r.Rowid()}
	var err error
	if cs.ords.id >= 0 && !r.IsNull(cs.ords.id) {
		if c.ID, err = r.Text(cs.ords.id); err != nil {
			return nil, err
		}
	}
	if c.Key, err = r.Int64(cs.ords.key); err != nil {
		return nil, err
	}
	readInt := func(ord int, dst *int64) error {
		if ord < 0 || r.IsNull(ord) {
			return nil
		}
		v, err := r.Int64(ord)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
	if err := readInt(cs.ords.typ, &c.Type); err != nil {
		return nil, err
	}
	if cs.ords.data >= 0 && !r.IsNull(cs.ords.data) {
		b, err := r.Bytes(cs.ords.data)
		if err != nil {
			return nil, err
		}
		c.Data = append([]byte(nil), b...)
	}
	if err := readInt(cs.ords.cvn, &c.CVN); err != nil {
		return nil, err
	}
	if err := readInt(cs.ords.lvn, &c.LVN); err != nil {
		return nil, err
	}
	if err := readInt(cs.ords.sync, &c.SyncStatus); err != nil {
		return nil, err
	}
	if err := readInt(cs.ords.updated, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if cs.ords.alias >= 0 && !r.IsNull(cs.ords.alias) {
		if c.Alias, err = r.Text(cs.ords.alias); err != nil {
			return nil, err
		}
	}
	if err := readInt(cs.ords.tokens, &c.TokenEstimate); err != nil {
		return nil, err
	}
	return c, nil
}

// indexLookupRowid binary-searches the index for the first entry whose
// leading column equals key and returns the table rowid stored as the
// entry's last column.
func indexLookupRowid(db *sqlite.Database, indexRoot uint32, key sqlite.Value) (int64, bool, error) {
	ic := db.NewIndexCursor(indexRoot)
	found, err := ic.SeekFirst([]sqlite.Value{key})
	if err != nil || !found {
		return 0, false, err
	}
	payload, err := ic.Payload()
	if err != nil {
		return 0, false, err
	}
	var row sqlite.Row
	if err := row.Load(payload); err != nil {
		return 0, false, err
	}
	rowid, err := row.Int64(row.ColumnCount() - 1)
	if err != nil {
		return 0, false, err
	}
	return rowid, true, nil
}

// RelationStore serves adjacency cursors over the edge table.
type RelationStore struct {
	db      *sqlite.Database
	adapter RelationAdapter

	table *sqlite.Table
	ords  edgeOrdinals

	originIndex uint32
	hasOriginIx bool
	targetIndex uint32
	hasTargetIx bool
}

type edgeOrdinals struct {
	id, origin, target, kind, data, weight, cvn, lvn, sync int
}

func (rs *RelationStore) initialize() error {
	schema, err := rs.db.Schema()
	if err != nil {
		return err
	}
	table, ok := schema.GetTable(rs.adapter.Table)
	if !ok {
		return serrors.NewNotFound("relation table", rs.adapter.Table)
	}
	rs.table = table
	rs.ords = edgeOrdinals{
		id:     table.GetColumnIndex(rs.adapter.ID),
		origin: table.GetColumnIndex(rs.adapter.Origin),
		target: table.GetColumnIndex(rs.adapter.Target),
		kind:   table.GetColumnIndex(rs.adapter.Kind),
		data:   table.GetColumnIndex(rs.adapter.Data),
		weight: table.GetColumnIndex(rs.adapter.Weight),
		cvn:    table.GetColumnIndex(rs.adapter.CVN),
		lvn:    table.GetColumnIndex(rs.adapter.LVN),
		sync:   table.GetColumnIndex(rs.adapter.SyncStatus),
	}
	if rs.ords.origin < 0 || rs.ords.target < 0 {
		return serrors.NewNotFound("relation origin/target columns", rs.adapter.Table)
	}
	rs.originIndex, rs.hasOriginIx = selectIndex(schema, rs.adapter.Table, rs.adapter.Origin)
	rs.targetIndex, rs.hasTargetIx = selectIndex(schema, rs.adapter.Table, rs.adapter.Target)
	return nil
}

// Outgoing returns a cursor over edges whose origin equals key, optionally
// restricted to one kind (hasKind). Reset re-targets the same cursor for
// multi-hop traversal.
func (rs *RelationStore) Outgoing(key int64, kind int64, hasKind bool) (EdgeCursor, error) {
	return rs.cursor(rs.ords.origin, rs.originIndex, rs.hasOriginIx, key, kind, hasKind)
}

// Incoming returns a cursor over edges whose target equals key.
func (rs *RelationStore) Incoming(key int64, kind int64, hasKind bool) (EdgeCursor, error) {
	return rs.cursor(rs.ords.target, rs.targetIndex, rs.hasTargetIx, key, kind, hasKind)
}

func (rs *RelationStore) cursor(matchOrd int, indexRoot uint32, hasIndex bool, key, kind int64, hasKind bool) (EdgeCursor, error) {
	if hasIndex {
		c := &IndexEdgeCursor{rs: rs, indexRoot: indexRoot, matchOrd: matchOrd}
		return c, c.Reset(key, kind, hasKind)
	}
	c := &TableScanEdgeCursor{rs: rs, matchOrd: matchOrd}
	return c, c.Reset(key, kind, hasKind)
}

func (rs *RelationStore) decodeEdge(r *sqlite.Reader, e *Edge) error {
	e.Rowid = r.Rowid()
	read := func(ord int, dst *int64) error {
		if ord < 0 || r.IsNull(ord) {
			*dst = 0
			return nil
		}
		v, err := r.Int64(ord)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
	if err := read(rs.ords.id, &e.ID); err != nil {
		return err
	}
	if err := read(rs.ords.origin, &e.Origin); err != nil {
		return err
	}
	if err := read(rs.ords.target, &e.Target); err != nil {
		return err
	}
	if err := read(rs.ords.kind, &e.Kind); err != nil {
		return err
	}
	e.Weight = 0
	if rs.ords.weight >= 0 && !r.IsNull(rs.ords.weight) {
		w, err := r.Float64(rs.ords.weight)
		if err != nil {
			return err
		}
		e.Weight = w
	}
	e.Data = e.Data[:0]
	if rs.ords.data >= 0 && !r.IsNull(rs.ords.data) {
		b, err := r.Bytes(rs.ords.data)
		if err != nil {
			return err
		}
		e.Data = append(e.Data, b...)
	}
	if err := read(rs.ords.cvn, &e.CVN); err != nil {
		return err
	}
	if err := read(rs.ords.lvn, &e.LVN); err != nil {
		return err
	}
	return read(rs.ords.sync, &e.SyncStatus)
}
