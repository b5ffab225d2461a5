// Package page implements typed views over the raw, fixed-size byte blocks
// that make up a pagedb database file: the common page header, the B+-tree
// internal and leaf node layouts, the table-heap slotted page, the bitmap
// allocator page, the index-roots registry, and the catalog-meta page.
//
// Every page is a raw []byte; a variant re-interprets it in place, exactly
// the way the original C++ sources overlay structs on a buffer. The first
// bytes of every page carry a type discriminator so a page read back from
// disk is self-describing.
package page

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Size constants. Page size is fixed for the lifetime of a database file —
// spec Non-goals exclude variable-sized pages.
const (
	DefaultPageSize = 4096
	MinPageSize     = 4096
	MaxPageSize     = 65536

	// HeaderSize is the size of the common page header in bytes.
	//   [0]     Type      (1 byte)
	//   [1]     Flags     (1 byte)
	//   [2:4]   Reserved  (2 bytes)
	//   [4:8]   PageID    (4 bytes, uint32 LE)
	//   [8:12]  LSN       (4 bytes, uint32 LE) -- opaque, never inspected
	//   [12:16] CRC32     (4 bytes, uint32 LE)
	HeaderSize = 16

	// InvalidPageID is the sentinel for "no page" (spec calls this -1;
	// PageID is unsigned on disk so the sentinel is the max value).
	InvalidPageID PageID = 0xFFFFFFFF
)

// PageID identifies a page within the database file. Page 0 is the catalog
// meta page, page 1 is the index-roots registry.
type PageID uint32

// Type identifies the kind of data a page holds.
type Type uint8

const (
	TypeCatalogMeta Type = 0x01
	TypeIndexRoots  Type = 0x02
	TypeBitmap      Type = 0x03
	TypeBTreeInner  Type = 0x04
	TypeBTreeLeaf   Type = 0x05
	TypeHeap        Type = 0x06
	TypeTableDesc   Type = 0x07
	TypeIndexDesc   Type = 0x08
)

func (t Type) String() string {
	switch t {
	case TypeCatalogMeta:
		return "CatalogMeta"
	case TypeIndexRoots:
		return "IndexRoots"
	case TypeBitmap:
		return "Bitmap"
	case TypeBTreeInner:
		return "BTree-Internal"
	case TypeBTreeLeaf:
		return "BTree-Leaf"
	case TypeHeap:
		return "Heap"
	case TypeTableDesc:
		return "TableDesc"
	case TypeIndexDesc:
		return "IndexDesc"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// Header is the common 16-byte page header.
type Header struct {
	Type  Type
	Flags uint8
	ID    PageID
	LSN   uint32 // opaque log-sequence handle, threaded through but unread
	CRC   uint32
}

// MarshalHeader writes h into the first HeaderSize bytes of buf.
func MarshalHeader(h *Header, buf []byte) {
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.ID))
	binary.LittleEndian.PutUint32(buf[8:12], h.LSN)
	binary.LittleEndian.PutUint32(buf[12:16], h.CRC)
}

// UnmarshalHeader reads a Header from the first HeaderSize bytes of buf.
func UnmarshalHeader(buf []byte) Header {
	return Header{
		Type:  Type(buf[0]),
		Flags: buf[1],
		ID:    PageID(binary.LittleEndian.Uint32(buf[4:8])),
		LSN:   binary.LittleEndian.Uint32(buf[8:12]),
		CRC:   binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// crcTable is the CRC32 (Castagnoli) table used for page checksums.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputeCRC computes the CRC32-C of a full page, treating the CRC field
// (bytes 12..16) as zero during computation.
func ComputeCRC(buf []byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(buf[:12])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(buf[16:])
	return h.Sum32()
}

// SetCRC computes and writes the CRC into the page header.
func SetCRC(buf []byte) {
	binary.LittleEndian.PutUint32(buf[12:16], ComputeCRC(buf))
}

// VerifyCRC checks the CRC32 checksum of a page.
func VerifyCRC(buf []byte) error {
	stored := binary.LittleEndian.Uint32(buf[12:16])
	computed := ComputeCRC(buf)
	if stored != computed {
		pid := binary.LittleEndian.Uint32(buf[4:8])
		return fmt.Errorf("page %d: CRC mismatch (stored=%08x computed=%08x)", pid, stored, computed)
	}
	return nil
}

// New allocates a zeroed page buffer and writes its header.
func New(pageSize int, t Type, id PageID) []byte {
	buf := make([]byte, pageSize)
	h := &Header{Type: t, ID: id}
	MarshalHeader(h, buf)
	return buf
}
