package record

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value holds one field's data. Exactly one of the typed accessors is
// meaningful, selected by the owning column's Type; IsNull wins over all.
type Value struct {
	IsNull bool
	Int    int32
	Float  float32
	Bytes  []byte // Char (fixed-length, space-padded) or Blob (raw)
}

// Row is one tuple: field values in schema column order.
type Row struct {
	Fields []Value
}

// SerializeTo encodes row according to schema: per field, a null byte
// followed by the value's wire form (fixed-width for Int/Float/Char,
// length-prefixed for Blob).
func (r *Row) SerializeTo(buf []byte, schema *Schema) (int, error) {
	if len(r.Fields) != len(schema.Columns) {
		return 0, fmt.Errorf("record: row has %d fields, schema has %d columns", len(r.Fields), len(schema.Columns))
	}
	off := 0
	for i, col := range schema.Columns {
		f := r.Fields[i]
		if f.IsNull {
			buf[off] = 1
			off++
			off += int(col.FixedLen())
			if col.Type == TypeBlob {
				off += 4
			}
			continue
		}
		buf[off] = 0
		off++
		switch col.Type {
		case TypeInt:
			binary.LittleEndian.PutUint32(buf[off:], uint32(f.Int))
			off += 4
		case TypeFloat:
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f.Float))
			off += 4
		case TypeChar:
			n := copy(buf[off:off+int(col.Length)], f.Bytes)
			for i := n; i < int(col.Length); i++ {
				buf[off+i] = ' '
			}
			off += int(col.Length)
		case TypeBlob:
			binary.LittleEndian.PutUint32(buf[off:], uint32(len(f.Bytes)))
			off += 4
			copy(buf[off:], f.Bytes)
			off += len(f.Bytes)
		default:
			return 0, fmt.Errorf("record: unsupported column type %v", col.Type)
		}
	}
	return off, nil
}

// SerializedSize returns the exact byte length SerializeTo will write.
func (r *Row) SerializedSize(schema *Schema) int {
	size := 0
	for i, col := range schema.Columns {
		size++ // null byte
		if col.Type == TypeBlob {
			size += 4
			if !r.Fields[i].IsNull {
				size += len(r.Fields[i].Bytes)
			}
			continue
		}
		size += int(col.FixedLen())
	}
	return size
}

// DeserializeRow decodes a row from buf per schema.
func DeserializeRow(buf []byte, schema *Schema) (*Row, int, error) {
	off := 0
	fields := make([]Value, len(schema.Columns))
	for i, col := range schema.Columns {
		isNull := buf[off] != 0
		off++
		if isNull {
			fields[i] = Value{IsNull: true}
			off += int(col.FixedLen())
			if col.Type == TypeBlob {
				off += 4
			}
			continue
		}
		switch col.Type {
		case TypeInt:
			fields[i] = Value{Int: int32(binary.LittleEndian.Uint32(buf[off:]))}
			off += 4
		case TypeFloat:
			fields[i] = Value{Float: math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))}
			off += 4
		case TypeChar:
			b := make([]byte, col.Length)
			copy(b, buf[off:off+int(col.Length)])
			fields[i] = Value{Bytes: b}
			off += int(col.Length)
		case TypeBlob:
			n := int(binary.LittleEndian.Uint32(buf[off:]))
			off += 4
			b := make([]byte, n)
			copy(b, buf[off:off+n])
			fields[i] = Value{Bytes: b}
			off += n
		default:
			return nil, 0, fmt.Errorf("record: unsupported column type %v", col.Type)
		}
	}
	return &Row{Fields: fields}, off, nil
}

// ProjectKey extracts the subset of fields named in keyCols, in that
// order, forming the key row for a secondary or clustered index.
func (r *Row) ProjectKey(schema *Schema, keyCols []string) (*Row, error) {
	out := make([]Value, len(keyCols))
	for i, name := range keyCols {
		idx, err := schema.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		out[i] = r.Fields[idx]
	}
	return &Row{Fields: out}, nil
}

// IndexKey projects r onto keyCols and encodes the projection into the
// order-preserving byte form the B+-tree compares with bytes.Compare.
func (r *Row) IndexKey(schema *Schema, keyCols []string) ([]byte, error) {
	keyRow, err := r.ProjectKey(schema, keyCols)
	if err != nil {
		return nil, err
	}
	keySchema, err := schema.Sub(keyCols)
	if err != nil {
		return nil, err
	}
	return EncodeKey(keyRow, keySchema), nil
}

// EncodeKey serializes row according to schema into a byte string whose
// bytes.Compare ordering matches the typed field ordering field-by-field,
// per spec: "compared lexicographically field-by-field using each field's
// type ordering." Int and Float are big-endian with their sign bit flipped
// so two's-complement/IEEE-754 ordering maps onto unsigned byte ordering;
// Char is already order-preserving byte-for-byte once space-padded; Blob is
// written raw (order-preserving only up to a shared prefix, same caveat as
// comparing two differently-sized byte strings directly).
func EncodeKey(row *Row, schema *Schema) []byte {
	var buf []byte
	for i, col := range schema.Columns {
		f := row.Fields[i]
		switch col.Type {
		case TypeInt:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(f.Int)^0x80000000)
			buf = append(buf, b[:]...)
		case TypeFloat:
			bits := math.Float32bits(f.Float)
			if bits&0x80000000 != 0 {
				bits = ^bits
			} else {
				bits |= 0x80000000
			}
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], bits)
			buf = append(buf, b[:]...)
		case TypeChar:
			padded := make([]byte, col.Length)
			n := copy(padded, f.Bytes)
			for i := n; i < len(padded); i++ {
				padded[i] = ' '
			}
			buf = append(buf, padded...)
		case TypeBlob:
			buf = append(buf, f.Bytes...)
		}
	}
	return buf
}
