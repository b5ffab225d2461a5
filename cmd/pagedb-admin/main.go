// Command pagedb-admin runs a read-only diagnostics service over a pagedb
// database file: page size, buffer pool frame count, and catalog table and
// index counts,
// served over a hand-rolled gRPC service (JSON wire codec, no protobuf
// codegen) the same way the reference server exposes its query API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/gopagedb/pagedb/internal/config"
	"github.com/gopagedb/pagedb/internal/dbms"
)

var (
	flagDB       = flag.String("db", "pagedb.db", "path to the database file")
	flagGRPC     = flag.String("grpc", ":9091", "gRPC listen address")
	flagPoolSize = flag.Int("pool-pages", 0, "buffer pool frame count (0 = config default)")
	flagReplacer = flag.String("replacer", "", "replacer policy: lru or lru-k (empty = config default)")
	flagCron     = flag.String("checkpoint-cron", "", "cron expression for background dirty-frame flushing (empty = disabled)")
)

// jsonCodec marshals gRPC messages as JSON instead of protobuf wire
// format, avoiding a codegen step for a service this small.
type jsonCodec struct{}

func (jsonCodec) Name() string                          { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)          { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error     { return json.Unmarshal(data, v) }

type statsRequest struct{}

type statsResponse struct {
	NumPages        uint32 `json:"num_pages"` // not filled in by Stats; always 0
	PageSize        int    `json:"page_size"`
	BufferPoolPages int    `json:"buffer_pool_pages"`
	TableCount      int    `json:"table_count"`
	IndexCount      int    `json:"index_count"`
}

// AdminServer is the service interface registered with gRPC directly,
// without a protobuf-generated stub.
type AdminServer interface {
	Stats(context.Context, *statsRequest) (*statsResponse, error)
}

func registerAdminServer(s *grpc.Server, srv AdminServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "pagedb.Admin",
		HandlerType: (*AdminServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Stats", Handler: _Admin_Stats_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "pagedb-admin",
	}, srv)
}

func _Admin_Stats_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(statsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/pagedb.Admin/Stats"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).Stats(ctx, req.(*statsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type adminServer struct {
	db *dbms.DB
}

func (a *adminServer) Stats(ctx context.Context, _ *statsRequest) (*statsResponse, error) {
	tables, indexes := a.db.Catalog.Counts()
	return &statsResponse{
		PageSize:        a.db.Pool().PageSize(),
		BufferPoolPages: a.db.Pool().Capacity(),
		TableCount:      tables,
		IndexCount:      indexes,
	}, nil
}

func main() {
	flag.Parse()

	cfg := config.Default(*flagDB)
	if *flagPoolSize > 0 {
		cfg.BufferPoolPages = *flagPoolSize
	}
	if *flagReplacer != "" {
		cfg.Replacer = config.ReplacerPolicy(*flagReplacer)
	}
	if *flagCron != "" {
		cfg.CheckpointCron = *flagCron
	}

	db, err := dbms.Open(cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	encoding.RegisterCodec(jsonCodec{})

	lis, err := net.Listen("tcp", *flagGRPC)
	if err != nil {
		log.Fatalf("listen on %s: %v", *flagGRPC, err)
	}
	gs := grpc.NewServer()
	registerAdminServer(gs, &adminServer{db: db})
	log.Printf("pagedb-admin listening on %s (db=%s)", *flagGRPC, *flagDB)
	if err := gs.Serve(lis); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
