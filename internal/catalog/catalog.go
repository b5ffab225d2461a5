package catalog

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gopagedb/pagedb/internal/storage/btree"
	"github.com/gopagedb/pagedb/internal/storage/buffer"
	"github.com/gopagedb/pagedb/internal/storage/heap"
	"github.com/gopagedb/pagedb/internal/storage/page"
	"github.com/gopagedb/pagedb/internal/storage/record"
)

// TableInfo is the in-memory handle for an open table.
type TableInfo struct {
	ID     uint32
	Name   string
	Schema *record.Schema
	Heap   *heap.TableHeap

	descPID page.PageID
}

// IndexInfo is the in-memory handle for an open index.
type IndexInfo struct {
	ID        uint32
	Name      string
	Table     string
	KeyCols   []string
	Unique    bool
	Clustered bool
	Tree      *btree.Tree

	descPID page.PageID
}

// Catalog owns every table and index definition in the database and backs
// them onto the catalog-meta page (page 0), per-object descriptor pages,
// and the shared index-roots page (page 1).
type Catalog struct {
	mu      sync.RWMutex
	pool    *buffer.Pool
	tables  map[string]*TableInfo
	indexes map[string]*IndexInfo // keyed by table + "." + index name
}

// Open loads every table and index descriptor referenced from the
// catalog-meta page. Call Bootstrap first on a brand-new database file.
func Open(pool *buffer.Pool) (*Catalog, error) {
	c := &Catalog{pool: pool, tables: map[string]*TableInfo{}, indexes: map[string]*IndexInfo{}}

	metaBuf, err := pool.FetchPage(0)
	if err != nil {
		return nil, err
	}
	meta := page.WrapCatalogMeta(metaBuf)

	descByID := map[uint32]page.PageID{}
	for i := 0; i < meta.TableCount(); i++ {
		id, descPID := meta.Table(i)
		descByID[id] = descPID
	}
	for id, descPID := range descByID {
		buf, err := pool.FetchPage(descPID)
		if err != nil {
			pool.UnpinPage(0, false)
			return nil, err
		}
		d, err := decodeTableDesc(buf)
		pool.UnpinPage(descPID, false)
		if err != nil {
			pool.UnpinPage(0, false)
			return nil, err
		}
		c.tables[d.Name] = &TableInfo{
			ID:      id,
			Name:    d.Name,
			Schema:  d.Schema,
			Heap:    heap.Open(pool, d.FirstHeapPID),
			descPID: descPID,
		}
	}

	indexByID := map[uint32]page.PageID{}
	for i := 0; i < meta.IndexCount(); i++ {
		id, descPID := meta.Index(i)
		indexByID[id] = descPID
	}
	for id, descPID := range indexByID {
		buf, err := pool.FetchPage(descPID)
		if err != nil {
			pool.UnpinPage(0, false)
			return nil, err
		}
		d, err := decodeIndexDesc(buf)
		pool.UnpinPage(descPID, false)
		if err != nil {
			pool.UnpinPage(0, false)
			return nil, err
		}
		c.indexes[d.Table+"."+d.Name] = &IndexInfo{
			ID:        id,
			Name:      d.Name,
			Table:     d.Table,
			KeyCols:   d.KeyCols,
			Unique:    d.Unique,
			Clustered: d.Clustered,
			Tree:      btree.New(pool, id, d.KeySize),
			descPID:   descPID,
		}
	}

	if err := pool.UnpinPage(0, false); err != nil {
		return nil, err
	}
	return c, nil
}

// Bootstrap initializes page 0 and page 1 of a freshly created, empty
// database file. Must be called exactly once before Open on a new file.
func Bootstrap(pool *buffer.Pool) error {
	metaID, metaBuf, err := pool.NewPage()
	if err != nil {
		return err
	}
	if metaID != 0 {
		return fmt.Errorf("catalog: expected catalog-meta at page 0, got %d", metaID)
	}
	page.InitCatalogMeta(metaBuf)
	if err := pool.UnpinPage(metaID, true); err != nil {
		return err
	}

	rootsID, rootsBuf, err := pool.NewPage()
	if err != nil {
		return err
	}
	if rootsID != 1 {
		return fmt.Errorf("catalog: expected index-roots at page 1, got %d", rootsID)
	}
	page.InitRoots(rootsBuf)
	return pool.UnpinPage(rootsID, true)
}

// newID derives a stable 32-bit id from a fresh UUID. Collisions are
// astronomically unlikely at the table/index counts this engine targets,
// so no uniqueness retry loop is needed.
func newID() uint32 {
	u := uuid.New()
	return binary.LittleEndian.Uint32(u[:4])
}

// CreateTable registers a new table with the given schema and allocates
// its heap's first page.
func (c *Catalog) CreateTable(name string, schema *record.Schema) (*TableInfo, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return nil, StatusTableAlreadyExist
	}

	h, err := heap.Create(c.pool)
	if err != nil {
		return nil, StatusFailed
	}

	descID, descBuf, err := c.pool.NewPage()
	if err != nil {
		return nil, StatusFailed
	}
	id := newID()
	if err := encodeTableDesc(descBuf, &tableDesc{Name: name, Schema: schema, FirstHeapPID: h.FirstPageID()}); err != nil {
		c.pool.UnpinPage(descID, false)
		return nil, StatusFailed
	}
	if err := c.pool.UnpinPage(descID, true); err != nil {
		return nil, StatusFailed
	}

	metaBuf, err := c.pool.FetchPage(0)
	if err != nil {
		return nil, StatusFailed
	}
	meta := page.WrapCatalogMeta(metaBuf)
	if err := meta.AddTable(id, descID); err != nil {
		c.pool.UnpinPage(0, false)
		return nil, StatusFailed
	}
	if err := c.pool.UnpinPage(0, true); err != nil {
		return nil, StatusFailed
	}

	info := &TableInfo{ID: id, Name: name, Schema: schema, Heap: h, descPID: descID}
	c.tables[name] = info
	return info, StatusSuccess
}

// GetTable returns the open table by name.
func (c *Catalog) GetTable(name string) (*TableInfo, Status) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	if !ok {
		return nil, StatusTableNotExist
	}
	return t, StatusSuccess
}

// CreateIndex registers a new index over table's keyCols. clustered marks
// the table's primary physical ordering; an unclustered index stores
// (key, RID) pairs pointing back into the heap the same as a clustered one
// — the distinction only matters for planning, not physical layout.
func (c *Catalog) CreateIndex(table, name string, keyCols []string, keySize int, unique, clustered bool) (*IndexInfo, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tables[table]; !ok {
		return nil, StatusTableNotExist
	}
	mapKey := table + "." + name
	if _, exists := c.indexes[mapKey]; exists {
		return nil, StatusIndexAlreadyExist
	}

	id := newID()
	descID, descBuf, err := c.pool.NewPage()
	if err != nil {
		return nil, StatusFailed
	}
	d := &indexDesc{Name: name, Table: table, KeyCols: keyCols, Unique: unique, KeySize: keySize, Clustered: clustered}
	if err := encodeIndexDesc(descBuf, d); err != nil {
		c.pool.UnpinPage(descID, false)
		return nil, StatusFailed
	}
	if err := c.pool.UnpinPage(descID, true); err != nil {
		return nil, StatusFailed
	}

	metaBuf, err := c.pool.FetchPage(0)
	if err != nil {
		return nil, StatusFailed
	}
	meta := page.WrapCatalogMeta(metaBuf)
	if err := meta.AddIndex(id, descID); err != nil {
		c.pool.UnpinPage(0, false)
		return nil, StatusFailed
	}
	if err := c.pool.UnpinPage(0, true); err != nil {
		return nil, StatusFailed
	}

	info := &IndexInfo{
		ID: id, Name: name, Table: table, KeyCols: keyCols,
		Unique: unique, Clustered: clustered,
		Tree:    btree.New(c.pool, id, keySize),
		descPID: descID,
	}
	c.indexes[mapKey] = info
	return info, StatusSuccess
}

// GetIndex returns the open index by table and index name.
func (c *Catalog) GetIndex(table, name string) (*IndexInfo, Status) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.indexes[table+"."+name]
	if !ok {
		return nil, StatusIndexNotFound
	}
	return idx, StatusSuccess
}

// DropIndex destroys an index's B+-tree and removes its descriptor.
func (c *Catalog) DropIndex(table, name string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	mapKey := table + "." + name
	idx, ok := c.indexes[mapKey]
	if !ok {
		return StatusIndexNotFound
	}
	if err := idx.Tree.Destroy(); err != nil {
		return StatusFailed
	}
	if err := c.pool.DeletePage(idx.descPID); err != nil {
		return StatusFailed
	}
	delete(c.indexes, mapKey)
	return StatusSuccess
}

// Counts returns the number of open tables and indexes, for diagnostics.
func (c *Catalog) Counts() (tables, indexes int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables), len(c.indexes)
}

// CheckUnique verifies key does not already exist in a unique index before
// an insert is applied. Called by the index-maintenance path that keeps
// every unique-flagged column's index consistent on row insert.
func (c *Catalog) CheckUnique(idx *IndexInfo, key []byte) (bool, error) {
	if !idx.Unique {
		return true, nil
	}
	_, found, err := idx.Tree.GetValue(key)
	if err != nil {
		return false, err
	}
	return !found, nil
}

// InsertIntoIndexes maintains every index defined over table for a row just
// inserted at rid: each index's key is row projected onto the index's key
// columns and encoded via record.EncodeKey, then inserted into that
// index's tree. Fails without partial application beyond what already
// succeeded if an index already holds the key; this applies to non-unique
// indexes too, since each tree stores one RID per key.
func (c *Catalog) InsertIntoIndexes(table *TableInfo, row *record.Row, rid page.RID) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, idx := range c.indexes {
		if idx.Table != table.Name {
			continue
		}
		key, err := row.IndexKey(table.Schema, idx.KeyCols)
		if err != nil {
			return fmt.Errorf("catalog: derive key for index %s.%s: %w", idx.Table, idx.Name, err)
		}
		ok, err := c.CheckUnique(idx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("catalog: duplicate key for unique index %s.%s", idx.Table, idx.Name)
		}
		if err := idx.Tree.Insert(key, rid); err != nil {
			return fmt.Errorf("catalog: insert into index %s.%s: %w", idx.Table, idx.Name, err)
		}
	}
	return nil
}
