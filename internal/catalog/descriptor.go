package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/gopagedb/pagedb/internal/storage/page"
	"github.com/gopagedb/pagedb/internal/storage/record"
)

// tableDesc is the on-disk descriptor for one table: its name, schema, and
// the first page of its heap. It lives in a single page referenced from
// the catalog-meta page, keeping the catalog-meta page itself small and
// fixed-width.
type tableDesc struct {
	Name         string
	Schema       *record.Schema
	FirstHeapPID page.PageID
}

func encodeTableDesc(buf []byte, d *tableDesc) error {
	h := &page.Header{Type: page.TypeTableDesc}
	page.MarshalHeader(h, buf)
	off := page.HeaderSize
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(d.Name)))
	off += 4
	off += copy(buf[off:], d.Name)
	binary.LittleEndian.PutUint32(buf[off:], uint32(d.FirstHeapPID))
	off += 4
	n := d.Schema.SerializeTo(buf[off:])
	off += n
	if off > len(buf) {
		return fmt.Errorf("catalog: table descriptor for %q overflows page", d.Name)
	}
	return nil
}

func decodeTableDesc(buf []byte) (*tableDesc, error) {
	off := page.HeaderSize
	nameLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	name := string(buf[off : off+nameLen])
	off += nameLen
	firstHeap := page.PageID(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	schema, _, err := record.DeserializeSchema(buf[off:])
	if err != nil {
		return nil, err
	}
	return &tableDesc{Name: name, Schema: schema, FirstHeapPID: firstHeap}, nil
}

// indexDesc is the on-disk descriptor for one index: its name, owning
// table, key columns, uniqueness, and key width. The index's root page is
// tracked separately in the shared index-roots page, keyed by IndexID.
type indexDesc struct {
	Name      string
	Table     string
	KeyCols   []string
	Unique    bool
	KeySize   int
	Clustered bool
}

func encodeIndexDesc(buf []byte, d *indexDesc) error {
	h := &page.Header{Type: page.TypeIndexDesc}
	page.MarshalHeader(h, buf)
	off := page.HeaderSize
	off += putString(buf[off:], d.Name)
	off += putString(buf[off:], d.Table)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(d.KeyCols)))
	off += 4
	for _, c := range d.KeyCols {
		off += putString(buf[off:], c)
	}
	buf[off] = boolByte(d.Unique)
	off++
	buf[off] = boolByte(d.Clustered)
	off++
	binary.LittleEndian.PutUint32(buf[off:], uint32(d.KeySize))
	off += 4
	if off > len(buf) {
		return fmt.Errorf("catalog: index descriptor for %q overflows page", d.Name)
	}
	return nil
}

func decodeIndexDesc(buf []byte) (*indexDesc, error) {
	off := page.HeaderSize
	name, n := getString(buf[off:])
	off += n
	table, n := getString(buf[off:])
	off += n
	count := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	cols := make([]string, count)
	for i := 0; i < count; i++ {
		cols[i], n = getString(buf[off:])
		off += n
	}
	unique := buf[off] != 0
	off++
	clustered := buf[off] != 0
	off++
	keySize := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	return &indexDesc{Name: name, Table: table, KeyCols: cols, Unique: unique, KeySize: keySize, Clustered: clustered}, nil
}

func putString(buf []byte, s string) int {
	binary.LittleEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[4:], s)
	return 4 + len(s)
}

func getString(buf []byte) (string, int) {
	n := int(binary.LittleEndian.Uint32(buf))
	return string(buf[4 : 4+n]), 4 + n
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
