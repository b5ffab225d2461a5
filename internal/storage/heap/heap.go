// Package heap implements the table heap: an unordered, singly-linked
// chain of slotted pages holding row tuples, addressed by RID (page-id,
// slot-index). It is the physical home for a table's rows; a clustered
// B+-tree index keys rows by the same RIDs.
package heap

import (
	"fmt"

	"github.com/gopagedb/pagedb/internal/storage/buffer"
	"github.com/gopagedb/pagedb/internal/storage/page"
)

// TableHeap manages the page chain for one table.
type TableHeap struct {
	pool        *buffer.Pool
	firstPageID page.PageID
}

// Open wraps an existing heap whose first page is firstPageID.
func Open(pool *buffer.Pool, firstPageID page.PageID) *TableHeap {
	return &TableHeap{pool: pool, firstPageID: firstPageID}
}

// Create allocates a fresh, empty heap and returns a handle to it.
func Create(pool *buffer.Pool) (*TableHeap, error) {
	id, buf, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	page.InitHeap(buf, id, page.InvalidPageID)
	if err := pool.UnpinPage(id, true); err != nil {
		return nil, err
	}
	return &TableHeap{pool: pool, firstPageID: id}, nil
}

// FirstPageID returns the heap's entry page, stored in the catalog so the
// heap can be reopened later.
func (h *TableHeap) FirstPageID() page.PageID { return h.firstPageID }

func (h *TableHeap) fetch(id page.PageID) (*page.HeapPage, error) {
	buf, err := h.pool.FetchPage(id)
	if err != nil {
		return nil, err
	}
	return page.WrapHeap(buf), nil
}

// InsertTuple appends data to the heap, walking the page chain for the
// first page with room and allocating a new tail page if none has space.
// A tuple larger than an empty page can hold is rejected with an error.
func (h *TableHeap) InsertTuple(data []byte) (page.RID, error) {
	id := h.firstPageID
	for {
		hp, err := h.fetch(id)
		if err != nil {
			return page.RID{}, err
		}
		if hp.FreeSpace() >= len(data) {
			slot, err := hp.InsertTuple(data)
			if err != nil {
				h.pool.UnpinPage(id, false)
				return page.RID{}, err
			}
			h.pool.UnpinPage(id, true)
			return page.RID{PageID: id, Slot: uint32(slot)}, nil
		}
		next := hp.NextPageID()
		if next == page.InvalidPageID {
			empty := page.InitHeap(make([]byte, h.pool.PageSize()), page.InvalidPageID, page.InvalidPageID)
			if len(data) > empty.FreeSpace() {
				h.pool.UnpinPage(id, false)
				return page.RID{}, fmt.Errorf("heap: tuple of %d bytes exceeds page capacity %d", len(data), empty.FreeSpace())
			}
			newID, newBuf, err := h.pool.NewPage()
			if err != nil {
				h.pool.UnpinPage(id, false)
				return page.RID{}, err
			}
			page.InitHeap(newBuf, newID, id)
			h.pool.UnpinPage(newID, true)
			hp.SetNextPageID(newID)
			h.pool.UnpinPage(id, true)
			id = newID
			continue
		}
		h.pool.UnpinPage(id, false)
		id = next
	}
}

// GetTuple returns the tuple bytes at rid, or (nil, false) if tombstoned.
func (h *TableHeap) GetTuple(rid page.RID) ([]byte, bool, error) {
	hp, err := h.fetch(rid.PageID)
	if err != nil {
		return nil, false, err
	}
	defer h.pool.UnpinPage(rid.PageID, false)
	t := hp.GetTuple(int(rid.Slot))
	if t == nil {
		return nil, false, nil
	}
	out := make([]byte, len(t))
	copy(out, t)
	return out, true, nil
}

// UpdateTuple rewrites rid's bytes in place if the new tuple fits in the
// slot's reserved space, reporting false when an insert-elsewhere is
// required instead.
func (h *TableHeap) UpdateTuple(rid page.RID, data []byte) (bool, error) {
	hp, err := h.fetch(rid.PageID)
	if err != nil {
		return false, err
	}
	ok := hp.UpdateTupleInPlace(int(rid.Slot), data)
	if err := h.pool.UnpinPage(rid.PageID, ok); err != nil {
		return false, err
	}
	return ok, nil
}

// MarkDelete tombstones rid without reclaiming its storage.
func (h *TableHeap) MarkDelete(rid page.RID) error {
	hp, err := h.fetch(rid.PageID)
	if err != nil {
		return err
	}
	if err := hp.MarkDelete(int(rid.Slot)); err != nil {
		h.pool.UnpinPage(rid.PageID, false)
		return err
	}
	return h.pool.UnpinPage(rid.PageID, true)
}

// RollbackDelete clears a tombstone set by MarkDelete, e.g. when an
// aborted operation must restore visibility of the row it marked.
func (h *TableHeap) RollbackDelete(rid page.RID) error {
	hp, err := h.fetch(rid.PageID)
	if err != nil {
		return err
	}
	if err := hp.RollbackDelete(int(rid.Slot)); err != nil {
		h.pool.UnpinPage(rid.PageID, false)
		return err
	}
	return h.pool.UnpinPage(rid.PageID, true)
}

// ApplyDelete physically reclaims a previously-tombstoned slot's space.
func (h *TableHeap) ApplyDelete(rid page.RID) error {
	hp, err := h.fetch(rid.PageID)
	if err != nil {
		return err
	}
	if err := hp.ApplyDelete(int(rid.Slot)); err != nil {
		h.pool.UnpinPage(rid.PageID, false)
		return err
	}
	return h.pool.UnpinPage(rid.PageID, true)
}

// Iterator walks every live (non-tombstoned) tuple in page then slot order.
type Iterator struct {
	heap    *TableHeap
	pageID  page.PageID
	slot    int
	hp      *page.HeapPage
	current []byte
	rid     page.RID
}

// Begin returns an iterator positioned before the first tuple.
func (h *TableHeap) Begin() *Iterator {
	return &Iterator{heap: h, pageID: h.firstPageID, slot: -1}
}

// Next advances to the next live tuple, returning false at end of heap.
func (it *Iterator) Next() (bool, error) {
	for {
		if it.hp == nil {
			if it.pageID == page.InvalidPageID {
				return false, nil
			}
			hp, err := it.heap.fetch(it.pageID)
			if err != nil {
				return false, err
			}
			it.hp = hp
			it.slot = -1
		}
		it.slot++
		if it.slot >= it.hp.TupleCount() {
			next := it.hp.NextPageID()
			it.heap.pool.UnpinPage(it.pageID, false)
			it.hp = nil
			it.pageID = next
			continue
		}
		if it.hp.IsDeleted(it.slot) {
			continue
		}
		t := it.hp.GetTuple(it.slot)
		out := make([]byte, len(t))
		copy(out, t)
		it.current = out
		it.rid = page.RID{PageID: it.pageID, Slot: uint32(it.slot)}
		return true, nil
	}
}

// Tuple and RID return the iterator's current position.
func (it *Iterator) Tuple() []byte   { return it.current }
func (it *Iterator) RID() page.RID   { return it.rid }

// Close releases any page the iterator still holds pinned.
func (it *Iterator) Close() {
	if it.hp != nil {
		it.heap.pool.UnpinPage(it.pageID, false)
		it.hp = nil
	}
}
