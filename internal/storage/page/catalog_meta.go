package page

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Catalog-meta page — page 0
// ───────────────────────────────────────────────────────────────────────────
//
//   [0:16]   Common Header (Type=CatalogMeta)
//   [16:20]  Magic        (uint32 LE, 0x5EED)
//   [20:24]  TableCount   (uint32 LE)
//   [24:28]  IndexCount   (uint32 LE)
//   [28:...] TableCount pairs of (TableID uint32 LE, TablePageID uint32 LE)
//            (the catalog stores each table's descriptor page id here, not
//            its first heap page; the descriptor records the first heap page)
//   [...]    IndexCount pairs of (IndexID uint32 LE, IndexMetaPageID uint32 LE)

const (
	CatalogMagic = uint32(0x5EED)

	catMagicOff      = HeaderSize        // 16
	catTableCountOff = catMagicOff + 4   // 20
	catIndexCountOff = catTableCountOff + 4 // 24
	catDataOff       = catIndexCountOff + 4 // 28
	catEntrySize     = 8
)

// CatalogMetaPage wraps page 0.
type CatalogMetaPage struct {
	buf []byte
}

func WrapCatalogMeta(buf []byte) *CatalogMetaPage { return &CatalogMetaPage{buf: buf} }

func InitCatalogMeta(buf []byte) *CatalogMetaPage {
	h := &Header{Type: TypeCatalogMeta, ID: 0}
	MarshalHeader(h, buf)
	binary.LittleEndian.PutUint32(buf[catMagicOff:], CatalogMagic)
	binary.LittleEndian.PutUint32(buf[catTableCountOff:], 0)
	binary.LittleEndian.PutUint32(buf[catIndexCountOff:], 0)
	return &CatalogMetaPage{buf: buf}
}

func (c *CatalogMetaPage) TableCount() int {
	return int(binary.LittleEndian.Uint32(c.buf[catTableCountOff:]))
}

func (c *CatalogMetaPage) IndexCount() int {
	return int(binary.LittleEndian.Uint32(c.buf[catIndexCountOff:]))
}

func (c *CatalogMetaPage) tableOff(i int) int { return catDataOff + i*catEntrySize }
func (c *CatalogMetaPage) indexOff(i int) int {
	return catDataOff + c.TableCount()*catEntrySize + i*catEntrySize
}

// Table returns (tableID, pageID) for slot i, where pageID is whatever page
// AddTable recorded (the catalog records the table descriptor page).
func (c *CatalogMetaPage) Table(i int) (uint32, PageID) {
	off := c.tableOff(i)
	return binary.LittleEndian.Uint32(c.buf[off:]), PageID(binary.LittleEndian.Uint32(c.buf[off+4:]))
}

// Index returns (indexID, indexMetaPageID) for slot i.
func (c *CatalogMetaPage) Index(i int) (uint32, PageID) {
	off := c.indexOff(i)
	return binary.LittleEndian.Uint32(c.buf[off:]), PageID(binary.LittleEndian.Uint32(c.buf[off+4:]))
}

// AddTable appends a new (tableID, pageID) pair. Index entries are stored
// after all table entries, so AddTable shifts the index block right by one
// entry; tables and indexes may be added in any order.
func (c *CatalogMetaPage) AddTable(tableID uint32, firstHeap PageID) error {
	tc := c.TableCount()
	ic := c.IndexCount()
	needed := catDataOff + (tc+1+ic)*catEntrySize
	if needed > len(c.buf) {
		return fmt.Errorf("catalog-meta page full: cannot add table %d", tableID)
	}
	// Shift the index block right by one entry.
	oldIdxOff := c.indexOff(0)
	newIdxOff := oldIdxOff + catEntrySize
	copy(c.buf[newIdxOff:newIdxOff+ic*catEntrySize], c.buf[oldIdxOff:oldIdxOff+ic*catEntrySize])
	off := c.tableOff(tc)
	binary.LittleEndian.PutUint32(c.buf[off:], tableID)
	binary.LittleEndian.PutUint32(c.buf[off+4:], uint32(firstHeap))
	binary.LittleEndian.PutUint32(c.buf[catTableCountOff:], uint32(tc+1))
	return nil
}

// AddIndex appends a new (indexID, indexMetaPageID) pair.
func (c *CatalogMetaPage) AddIndex(indexID uint32, metaPage PageID) error {
	ic := c.IndexCount()
	off := c.indexOff(ic)
	if off+catEntrySize > len(c.buf) {
		return fmt.Errorf("catalog-meta page full: cannot add index %d", indexID)
	}
	binary.LittleEndian.PutUint32(c.buf[off:], indexID)
	binary.LittleEndian.PutUint32(c.buf[off+4:], uint32(metaPage))
	binary.LittleEndian.PutUint32(c.buf[catIndexCountOff:], uint32(ic+1))
	return nil
}

func (c *CatalogMetaPage) Bytes() []byte { return c.buf }
