// Command shpimport bulk-loads a shapefile's records into a pagedb table,
// one row per feature: every DBF attribute becomes a fixed-width CHAR
// column and the feature's geometry is encoded as GeoJSON and stored in a
// supplemental BLOB column, inserted directly via the table heap.
package main

import (
	"encoding/json"
	"flag"
	"log"

	shp "github.com/jonas-p/go-shp"

	"github.com/gopagedb/pagedb/internal/catalog"
	"github.com/gopagedb/pagedb/internal/config"
	"github.com/gopagedb/pagedb/internal/dbms"
	"github.com/gopagedb/pagedb/internal/storage/record"
)

var (
	flagDB    = flag.String("db", "pagedb.db", "path to the database file")
	flagShp   = flag.String("shp", "", "path to the .shp file to import")
	flagTable = flag.String("table", "", "destination table name (created if it does not exist)")
)

func geometryJSON(shape shp.Shape) ([]byte, error) {
	var geom any
	switch s := shape.(type) {
	case *shp.Point:
		geom = map[string]any{"type": "Point", "coordinates": []float64{s.X, s.Y}}
	case *shp.PolyLine:
		coords := make([][]float64, len(s.Points))
		for i, p := range s.Points {
			coords[i] = []float64{p.X, p.Y}
		}
		geom = map[string]any{"type": "LineString", "coordinates": coords}
	case *shp.Polygon:
		ring := make([][]float64, len(s.Points))
		for i, p := range s.Points {
			ring[i] = []float64{p.X, p.Y}
		}
		geom = map[string]any{"type": "Polygon", "coordinates": []any{ring}}
	default:
		geom = nil
	}
	return json.Marshal(geom)
}

func main() {
	flag.Parse()
	if *flagShp == "" || *flagTable == "" {
		log.Fatal("both -shp and -table are required")
	}

	db, err := dbms.Open(config.Default(*flagDB))
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	r, err := shp.Open(*flagShp)
	if err != nil {
		log.Fatalf("open shapefile: %v", err)
	}
	defer r.Close()

	dbfFields := r.Fields()
	schema := &record.Schema{}
	for i, f := range dbfFields {
		schema.Columns = append(schema.Columns, &record.Column{
			Name:     f.String(),
			Type:     record.TypeChar,
			Length:   uint32(f.Length),
			Index:    uint32(i),
			Nullable: true,
		})
	}
	schema.Columns = append(schema.Columns, &record.Column{
		Name:   "geometry",
		Type:   record.TypeBlob,
		Index:  uint32(len(dbfFields)),
		Nullable: true,
	})

	table, status := db.Catalog.GetTable(*flagTable)
	if status != catalog.StatusSuccess {
		table, status = db.Catalog.CreateTable(*flagTable, schema)
		if status != catalog.StatusSuccess {
			log.Fatalf("create table %s: status %v", *flagTable, status)
		}
	}

	count := 0
	for r.Next() {
		idx, shape := r.Shape()
		fields := make([]record.Value, len(dbfFields)+1)
		for fi := range dbfFields {
			fields[fi] = record.Value{Bytes: []byte(r.ReadAttribute(idx, fi))}
		}
		geomBytes, err := geometryJSON(shape)
		if err != nil {
			log.Fatalf("encode geometry for feature %d: %v", idx, err)
		}
		fields[len(dbfFields)] = record.Value{Bytes: geomBytes}

		row := &record.Row{Fields: fields}
		buf := make([]byte, row.SerializedSize(table.Schema))
		if _, err := row.SerializeTo(buf, table.Schema); err != nil {
			log.Fatalf("serialize feature %d: %v", idx, err)
		}
		if _, err := table.Heap.InsertTuple(buf); err != nil {
			log.Fatalf("insert feature %d: %v", idx, err)
		}
		count++
	}
	log.Printf("imported %d features from %s into table %s", count, *flagShp, *flagTable)
}
