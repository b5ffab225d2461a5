// Package record implements the fixed-type row codec: Column, Schema, and
// Row definitions and their wire serialization, used by the table heap and
// B+-tree key extraction.
package record

import (
	"encoding/binary"
	"fmt"
)

// TypeID identifies a column's storage type.
type TypeID uint8

const (
	TypeInvalid TypeID = iota
	TypeInt            // int32
	TypeFloat          // float32
	TypeChar           // fixed-length byte string
	TypeBlob           // variable-length byte string, supplemental to the
	// original fixed-type set — added so shpimport can store shapefile
	// geometry payloads as a table column.
)

func (t TypeID) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeChar:
		return "CHAR"
	case TypeBlob:
		return "BLOB"
	default:
		return "INVALID"
	}
}

// columnMagic guards against reading a stray buffer as a column record.
const columnMagic = uint32(0xC01C0001)

// Column describes one field of a table's schema.
type Column struct {
	Name     string
	Type     TypeID
	Length   uint32 // byte width for Char; ignored for Int/Float/Blob
	Index    uint32 // ordinal position within the owning schema
	Nullable bool
	Unique   bool
}

// FixedLen returns the on-disk field width for fixed-width types, or 0 for
// Blob (which is length-prefixed in the row codec instead).
func (c *Column) FixedLen() uint32 {
	switch c.Type {
	case TypeInt:
		return 4
	case TypeFloat:
		return 4
	case TypeChar:
		return c.Length
	default:
		return 0
	}
}

// SerializeTo writes the column's wire form to buf and returns the number
// of bytes written.
func (c *Column) SerializeTo(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], columnMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(c.Name)))
	off += 4
	copy(buf[off:], c.Name)
	off += len(c.Name)
	buf[off] = byte(c.Type)
	off++
	binary.LittleEndian.PutUint32(buf[off:], c.Length)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], c.Index)
	off += 4
	buf[off] = boolByte(c.Nullable)
	off++
	buf[off] = boolByte(c.Unique)
	off++
	return off
}

// SerializedSize returns the exact byte length SerializeTo will write.
func (c *Column) SerializedSize() int {
	return 4 + 4 + len(c.Name) + 1 + 4 + 4 + 1 + 1
}

// DeserializeColumn reads one column from buf, returning it and the number
// of bytes consumed.
func DeserializeColumn(buf []byte) (*Column, int, error) {
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	if magic != columnMagic {
		return nil, 0, fmt.Errorf("record: bad column magic %#x", magic)
	}
	off += 4
	nameLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	name := string(buf[off : off+nameLen])
	off += nameLen
	typ := TypeID(buf[off])
	off++
	length := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	index := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nullable := buf[off] != 0
	off++
	unique := buf[off] != 0
	off++
	return &Column{Name: name, Type: typ, Length: length, Index: index, Nullable: nullable, Unique: unique}, off, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
