package btree

import (
	"github.com/gopagedb/pagedb/internal/storage/buffer"
	"github.com/gopagedb/pagedb/internal/storage/page"
)

// RootsPageID is the fixed page holding the index-id -> root-page-id map.
const RootsPageID page.PageID = 1

// rootRegistry reads and updates the shared index-roots page (page 1)
// through the buffer pool so every tree's root changes are visible to a
// concurrently opened handle on the same index.
type rootRegistry struct {
	pool *buffer.Pool
}

func (r *rootRegistry) get(indexID uint32) (page.PageID, bool, error) {
	buf, err := r.pool.FetchPage(RootsPageID)
	if err != nil {
		return page.InvalidPageID, false, err
	}
	defer r.pool.UnpinPage(RootsPageID, false)
	rp := page.WrapRoots(buf)
	pid, ok := rp.GetRoot(indexID)
	return pid, ok, nil
}

func (r *rootRegistry) set(indexID uint32, root page.PageID) error {
	buf, err := r.pool.FetchPage(RootsPageID)
	if err != nil {
		return err
	}
	defer r.pool.UnpinPage(RootsPageID, true)
	rp := page.WrapRoots(buf)
	return rp.SetRoot(indexID, root)
}

func (r *rootRegistry) delete(indexID uint32) error {
	buf, err := r.pool.FetchPage(RootsPageID)
	if err != nil {
		return err
	}
	defer r.pool.UnpinPage(RootsPageID, true)
	rp := page.WrapRoots(buf)
	rp.DeleteRoot(indexID)
	return nil
}
