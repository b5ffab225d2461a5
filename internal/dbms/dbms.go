// Package dbms wires the disk manager, buffer pool, and catalog into a
// single database handle: the top-level entry point a client opens once
// per database file.
package dbms

import (
	"fmt"
	"log"
	"os"

	"github.com/gopagedb/pagedb/internal/catalog"
	"github.com/gopagedb/pagedb/internal/config"
	"github.com/gopagedb/pagedb/internal/storage/buffer"
	"github.com/gopagedb/pagedb/internal/storage/diskmgr"
)

// DB is an open database file: disk manager, buffer pool, and catalog.
type DB struct {
	cfg        *config.DBConfig
	disk       *diskmgr.DiskManager
	pool       *buffer.Pool
	Catalog    *catalog.Catalog
	checkpoint *buffer.CheckpointScheduler
}

// Open opens an existing database file, or bootstraps a new one if it does
// not yet exist.
func Open(cfg *config.DBConfig) (*DB, error) {
	isNew := false
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		isNew = true
	}

	disk, err := diskmgr.Open(diskmgr.Config{Path: cfg.Path, PageSize: cfg.PageSize})
	if err != nil {
		return nil, fmt.Errorf("dbms: open disk manager: %w", err)
	}

	var replacer buffer.Replacer
	switch cfg.Replacer {
	case config.ReplacerLRUK:
		replacer = buffer.NewLRUKReplacer(cfg.BufferPoolPages, cfg.ReplacerK)
	default:
		replacer = buffer.NewLRUReplacer(cfg.BufferPoolPages)
	}
	pool := buffer.NewPool(disk, cfg.BufferPoolPages, replacer)

	if isNew {
		log.Printf("dbms: bootstrapping new database at %s (page size %d)", cfg.Path, cfg.PageSize)
		if err := catalog.Bootstrap(pool); err != nil {
			disk.Close()
			return nil, fmt.Errorf("dbms: bootstrap catalog: %w", err)
		}
	}

	cat, err := catalog.Open(pool)
	if err != nil {
		disk.Close()
		return nil, fmt.Errorf("dbms: open catalog: %w", err)
	}

	db := &DB{cfg: cfg, disk: disk, pool: pool, Catalog: cat}

	if cfg.CheckpointCron != "" {
		db.checkpoint = buffer.NewCheckpointScheduler(pool)
		if err := db.checkpoint.Start(cfg.CheckpointCron); err != nil {
			disk.Close()
			return nil, fmt.Errorf("dbms: start checkpoint scheduler: %w", err)
		}
		log.Printf("dbms: checkpoint scheduler running on %q", cfg.CheckpointCron)
	}

	return db, nil
}

// Close stops any running checkpoint scheduler, flushes every dirty buffer
// frame to disk, and closes the file. This flush is the engine's only
// durability guarantee — there is no write-ahead log or crash recovery
// beyond it.
func (db *DB) Close() error {
	if db.checkpoint != nil {
		db.checkpoint.Stop()
	}
	if err := db.pool.FlushAll(); err != nil {
		return fmt.Errorf("dbms: flush on close: %w", err)
	}
	if err := db.disk.Sync(); err != nil {
		return fmt.Errorf("dbms: sync on close: %w", err)
	}
	return db.disk.Close()
}

// Pool exposes the buffer pool for components (e.g. a diagnostics server)
// that need direct visibility into cache occupancy.
func (db *DB) Pool() *buffer.Pool { return db.pool }
