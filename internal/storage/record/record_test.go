package record

import (
	"bytes"
	"sort"
	"testing"
)

func TestColumn_SerializeRoundTrip(t *testing.T) {
	c := &Column{Name: "age", Type: TypeInt, Length: 0, Index: 2, Nullable: true, Unique: false}
	buf := make([]byte, c.SerializedSize())
	n := c.SerializeTo(buf)
	if n != len(buf) {
		t.Fatalf("SerializeTo wrote %d bytes, SerializedSize said %d", n, len(buf))
	}
	c2, consumed, err := DeserializeColumn(buf)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if consumed != n {
		t.Fatalf("consumed %d bytes, want %d", consumed, n)
	}
	if c2.Name != c.Name || c2.Type != c.Type || c2.Index != c.Index || c2.Nullable != c.Nullable || c2.Unique != c.Unique {
		t.Fatalf("column roundtrip mismatch: %+v vs %+v", c, c2)
	}
}

func TestSchema_SerializeRoundTrip(t *testing.T) {
	s := &Schema{Columns: []*Column{
		{Name: "id", Type: TypeInt, Index: 0},
		{Name: "name", Type: TypeChar, Length: 16, Index: 1, Nullable: true},
		{Name: "geometry", Type: TypeBlob, Index: 2, Nullable: true},
	}}
	buf := make([]byte, s.SerializedSize())
	n := s.SerializeTo(buf)
	s2, consumed, err := DeserializeSchema(buf[:n])
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if consumed != n {
		t.Fatalf("consumed %d, want %d", consumed, n)
	}
	if len(s2.Columns) != len(s.Columns) {
		t.Fatalf("column count = %d, want %d", len(s2.Columns), len(s.Columns))
	}
	for i := range s.Columns {
		if s2.Columns[i].Name != s.Columns[i].Name || s2.Columns[i].Type != s.Columns[i].Type {
			t.Fatalf("column %d mismatch: %+v vs %+v", i, s.Columns[i], s2.Columns[i])
		}
	}
}

func TestSchema_ColumnIndexMissing(t *testing.T) {
	s := &Schema{Columns: []*Column{{Name: "id", Type: TypeInt}}}
	if _, err := s.ColumnIndex("nope"); err == nil {
		t.Fatal("expected error for missing column")
	}
}

func TestRow_SerializeRoundTrip(t *testing.T) {
	schema := &Schema{Columns: []*Column{
		{Name: "id", Type: TypeInt, Index: 0},
		{Name: "score", Type: TypeFloat, Index: 1},
		{Name: "name", Type: TypeChar, Length: 8, Index: 2},
		{Name: "payload", Type: TypeBlob, Index: 3, Nullable: true},
	}}
	row := &Row{Fields: []Value{
		{Int: 7},
		{Float: 3.5},
		{Bytes: []byte("abc")},
		{Bytes: []byte{1, 2, 3, 4}},
	}}
	buf := make([]byte, row.SerializedSize(schema))
	n, err := row.SerializeTo(buf, schema)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("wrote %d, size said %d", n, len(buf))
	}

	row2, consumed, err := DeserializeRow(buf, schema)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if consumed != n {
		t.Fatalf("consumed %d, want %d", consumed, n)
	}
	if row2.Fields[0].Int != 7 {
		t.Fatalf("int field = %d, want 7", row2.Fields[0].Int)
	}
	if row2.Fields[1].Float != 3.5 {
		t.Fatalf("float field = %v, want 3.5", row2.Fields[1].Float)
	}
	if !bytes.Equal(bytes.TrimRight(row2.Fields[2].Bytes, " "), []byte("abc")) {
		t.Fatalf("char field = %q, want abc", row2.Fields[2].Bytes)
	}
	if !bytes.Equal(row2.Fields[3].Bytes, []byte{1, 2, 3, 4}) {
		t.Fatalf("blob field = %v, want [1 2 3 4]", row2.Fields[3].Bytes)
	}
}

func TestRow_NullField(t *testing.T) {
	schema := &Schema{Columns: []*Column{
		{Name: "id", Type: TypeInt, Index: 0, Nullable: true},
	}}
	row := &Row{Fields: []Value{{IsNull: true}}}
	buf := make([]byte, row.SerializedSize(schema))
	if _, err := row.SerializeTo(buf, schema); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	row2, _, err := DeserializeRow(buf, schema)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !row2.Fields[0].IsNull {
		t.Fatal("expected null field to round-trip as null")
	}
}

func TestRow_ProjectKey(t *testing.T) {
	schema := &Schema{Columns: []*Column{
		{Name: "id", Type: TypeInt, Index: 0},
		{Name: "name", Type: TypeChar, Length: 8, Index: 1},
	}}
	row := &Row{Fields: []Value{{Int: 42}, {Bytes: []byte("bob")}}}
	key, err := row.ProjectKey(schema, []string{"name", "id"})
	if err != nil {
		t.Fatalf("project key: %v", err)
	}
	if len(key.Fields) != 2 || !bytes.Equal(key.Fields[0].Bytes, []byte("bob")) || key.Fields[1].Int != 42 {
		t.Fatalf("unexpected projected key: %+v", key.Fields)
	}
}

func TestEncodeKey_IntOrderingSurvivesByteBoundaryAndSign(t *testing.T) {
	schema := &Schema{Columns: []*Column{{Name: "id", Type: TypeInt, Index: 0}}}
	values := []int32{260, 5, -100, 1000000, 0, -1, 128, 255, 256, -1000000}

	keys := make([][]byte, len(values))
	for i, v := range values {
		keys[i] = EncodeKey(&Row{Fields: []Value{{Int: v}}}, schema)
	}

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return bytes.Compare(keys[order[i]], keys[order[j]]) < 0 })

	sortedValues := make([]int32, len(values))
	for i, idx := range order {
		sortedValues[i] = values[idx]
	}

	want := append([]int32(nil), values...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	for i := range want {
		if sortedValues[i] != want[i] {
			t.Fatalf("byte-order sort = %v, want %v (raw little-endian byte comparison would not match)", sortedValues, want)
		}
	}
}

func TestEncodeKey_FloatOrderingSurvivesSign(t *testing.T) {
	schema := &Schema{Columns: []*Column{{Name: "score", Type: TypeFloat, Index: 0}}}
	values := []float32{3.5, -1.25, 0, -1000.0, 1000.0, -0.001, 0.001}

	keys := make([][]byte, len(values))
	for i, v := range values {
		keys[i] = EncodeKey(&Row{Fields: []Value{{Float: v}}}, schema)
	}
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return bytes.Compare(keys[order[i]], keys[order[j]]) < 0 })

	sortedValues := make([]float32, len(values))
	for i, idx := range order {
		sortedValues[i] = values[idx]
	}
	want := append([]float32(nil), values...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	for i := range want {
		if sortedValues[i] != want[i] {
			t.Fatalf("byte-order sort = %v, want %v", sortedValues, want)
		}
	}
}
