package catalog

import (
	"encoding/binary"
	"path/filepath"
	"sort"
	"testing"

	"github.com/gopagedb/pagedb/internal/storage/buffer"
	"github.com/gopagedb/pagedb/internal/storage/diskmgr"
	"github.com/gopagedb/pagedb/internal/storage/page"
	"github.com/gopagedb/pagedb/internal/storage/record"
)

func newTestPool(t *testing.T, numFrames int) *buffer.Pool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := diskmgr.Open(diskmgr.Config{Path: path, PageSize: page.DefaultPageSize})
	if err != nil {
		t.Fatalf("open diskmgr: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	return buffer.NewPool(dm, numFrames, buffer.NewLRUReplacer(numFrames))
}

func testSchema() *record.Schema {
	return &record.Schema{Columns: []*record.Column{
		{Name: "id", Type: record.TypeInt, Index: 0},
		{Name: "name", Type: record.TypeChar, Length: 16, Index: 1},
	}}
}

func TestCatalog_BootstrapCreateTable(t *testing.T) {
	pool := newTestPool(t, 16)
	if err := Bootstrap(pool); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	cat, err := Open(pool)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	info, status := cat.CreateTable("users", testSchema())
	if status != StatusSuccess {
		t.Fatalf("create table: status %v", status)
	}
	if info.Name != "users" {
		t.Fatalf("table name = %q, want users", info.Name)
	}

	_, status = cat.CreateTable("users", testSchema())
	if status != StatusTableAlreadyExist {
		t.Fatalf("duplicate create: status %v, want TABLE_ALREADY_EXIST", status)
	}

	got, status := cat.GetTable("users")
	if status != StatusSuccess || got.ID != info.ID {
		t.Fatalf("get table: status %v, id %d vs %d", status, got.ID, info.ID)
	}

	_, status = cat.GetTable("missing")
	if status != StatusTableNotExist {
		t.Fatalf("get missing table: status %v, want TABLE_NOT_EXIST", status)
	}
}

func TestCatalog_CreateIndexAndLookup(t *testing.T) {
	pool := newTestPool(t, 16)
	if err := Bootstrap(pool); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	cat, err := Open(pool)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, status := cat.CreateTable("users", testSchema()); status != StatusSuccess {
		t.Fatalf("create table: status %v", status)
	}

	idx, status := cat.CreateIndex("users", "by_id", []string{"id"}, 4, true, true)
	if status != StatusSuccess {
		t.Fatalf("create index: status %v", status)
	}
	if idx.Table != "users" || !idx.Unique || !idx.Clustered {
		t.Fatalf("unexpected index: %+v", idx)
	}

	_, status = cat.CreateIndex("users", "by_id", []string{"id"}, 4, true, true)
	if status != StatusIndexAlreadyExist {
		t.Fatalf("duplicate index: status %v, want INDEX_ALREADY_EXIST", status)
	}

	_, status = cat.CreateIndex("missing", "idx", []string{"id"}, 4, false, false)
	if status != StatusTableNotExist {
		t.Fatalf("index on missing table: status %v, want TABLE_NOT_EXIST", status)
	}

	got, status := cat.GetIndex("users", "by_id")
	if status != StatusSuccess || got.Name != "by_id" {
		t.Fatalf("get index: status %v, %+v", status, got)
	}

	if status := cat.DropIndex("users", "by_id"); status != StatusSuccess {
		t.Fatalf("drop index: status %v", status)
	}
	if _, status := cat.GetIndex("users", "by_id"); status != StatusIndexNotFound {
		t.Fatalf("get index after drop: status %v, want INDEX_NOT_FOUND", status)
	}
}

func TestCatalog_CheckUnique(t *testing.T) {
	pool := newTestPool(t, 16)
	if err := Bootstrap(pool); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	cat, err := Open(pool)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, status := cat.CreateTable("users", testSchema()); status != StatusSuccess {
		t.Fatalf("create table: status %v", status)
	}
	idx, status := cat.CreateIndex("users", "by_id", []string{"id"}, 4, true, true)
	if status != StatusSuccess {
		t.Fatalf("create index: status %v", status)
	}

	key := []byte{1, 0, 0, 0}
	ok, err := cat.CheckUnique(idx, key)
	if err != nil || !ok {
		t.Fatalf("check unique before insert: ok=%v err=%v", ok, err)
	}
	if err := idx.Tree.Insert(key, page.RID{PageID: 5, Slot: 0}); err != nil {
		t.Fatalf("insert into index: %v", err)
	}
	ok, err = cat.CheckUnique(idx, key)
	if err != nil || ok {
		t.Fatalf("check unique after insert: ok=%v err=%v, want false", ok, err)
	}
}

func TestCatalog_InsertIntoIndexesOrdersKeysAcrossByteBoundaries(t *testing.T) {
	pool := newTestPool(t, 16)
	if err := Bootstrap(pool); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	cat, err := Open(pool)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	schema := testSchema()
	tbl, status := cat.CreateTable("users", schema)
	if status != StatusSuccess {
		t.Fatalf("create table: status %v", status)
	}
	if _, status := cat.CreateIndex("users", "by_id", []string{"id"}, 4, false, false); status != StatusSuccess {
		t.Fatalf("create index: status %v", status)
	}
	idx, status := cat.GetIndex("users", "by_id")
	if status != StatusSuccess {
		t.Fatalf("get index: status %v", status)
	}

	// Values deliberately span a second nonzero byte and cross zero, which
	// a raw little-endian encoding would order wrong (e.g. 260 sorting
	// before 5, negative values sorting after positives).
	ids := []int32{260, 5, -100, 1000000, 0, -1, 128, 255, 256}
	for _, id := range ids {
		row := &record.Row{Fields: []record.Value{
			{Int: id},
			{Bytes: []byte("name")},
		}}
		buf := make([]byte, row.SerializedSize(schema))
		if _, err := row.SerializeTo(buf, schema); err != nil {
			t.Fatalf("serialize id=%d: %v", id, err)
		}
		rid, err := tbl.Heap.InsertTuple(buf)
		if err != nil {
			t.Fatalf("insert tuple id=%d: %v", id, err)
		}
		if err := cat.InsertIntoIndexes(tbl, row, rid); err != nil {
			t.Fatalf("insert into indexes id=%d: %v", id, err)
		}
	}

	sorted := append([]int32(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	it, err := idx.Tree.Begin(nil)
	if err != nil {
		t.Fatalf("begin iterator: %v", err)
	}
	defer it.Close()
	var got []int32
	for it.Valid() {
		key := it.Key()
		encoded := binary.BigEndian.Uint32(key) ^ 0x80000000
		got = append(got, int32(encoded))
		if _, err := it.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if len(got) != len(sorted) {
		t.Fatalf("iterated %d keys, want %d", len(got), len(sorted))
	}
	for i := range sorted {
		if got[i] != sorted[i] {
			t.Fatalf("iteration order[%d] = %d, want %d (full: got=%v want=%v)", i, got[i], sorted[i], got, sorted)
		}
	}
}

func TestCatalog_Counts(t *testing.T) {
	pool := newTestPool(t, 16)
	if err := Bootstrap(pool); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	cat, err := Open(pool)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if tables, indexes := cat.Counts(); tables != 0 || indexes != 0 {
		t.Fatalf("counts on empty catalog = (%d,%d), want (0,0)", tables, indexes)
	}
	if _, status := cat.CreateTable("t1", testSchema()); status != StatusSuccess {
		t.Fatalf("create table: status %v", status)
	}
	if _, status := cat.CreateIndex("t1", "idx1", []string{"id"}, 4, false, false); status != StatusSuccess {
		t.Fatalf("create index: status %v", status)
	}
	if tables, indexes := cat.Counts(); tables != 1 || indexes != 1 {
		t.Fatalf("counts = (%d,%d), want (1,1)", tables, indexes)
	}
}
