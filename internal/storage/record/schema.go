package record

import (
	"encoding/binary"
	"fmt"
)

const schemaMagic = uint32(0x5C11EA01)

// Schema is an ordered list of columns.
type Schema struct {
	Columns []*Column
}

// ColumnIndex returns the ordinal of the column named name, or an error if
// no such column exists.
func (s *Schema) ColumnIndex(name string) (int, error) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("record: no column named %q", name)
}

// Sub returns a new Schema holding only the named columns, in the given
// order, with Index reassigned to its position in the result. Used to
// describe the shape of a projected index key.
func (s *Schema) Sub(names []string) (*Schema, error) {
	cols := make([]*Column, len(names))
	for i, name := range names {
		idx, err := s.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		orig := s.Columns[idx]
		cols[i] = &Column{Name: orig.Name, Type: orig.Type, Length: orig.Length, Index: uint32(i)}
	}
	return &Schema{Columns: cols}, nil
}

// SerializeTo writes the schema's wire form to buf.
func (s *Schema) SerializeTo(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], schemaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s.Columns)))
	off += 4
	for _, c := range s.Columns {
		off += c.SerializeTo(buf[off:])
	}
	return off
}

// SerializedSize returns the exact byte length SerializeTo will write.
func (s *Schema) SerializedSize() int {
	size := 8
	for _, c := range s.Columns {
		size += c.SerializedSize()
	}
	return size
}

// DeserializeSchema reads a schema from buf.
func DeserializeSchema(buf []byte) (*Schema, int, error) {
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	if magic != schemaMagic {
		return nil, 0, fmt.Errorf("record: bad schema magic %#x", magic)
	}
	off += 4
	count := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	cols := make([]*Column, count)
	for i := 0; i < count; i++ {
		c, n, err := DeserializeColumn(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		cols[i] = c
		off += n
	}
	return &Schema{Columns: cols}, off, nil
}
