// Package buffer implements a bounded, pinned buffer pool over a
// diskmgr.DiskManager: a fixed number of in-memory frames, each holding one
// page's bytes, a dirty bit, and a pin count, backed by a pluggable
// Replacer for choosing eviction victims among unpinned frames.
package buffer

import (
	"fmt"
	"sync"

	"github.com/gopagedb/pagedb/internal/storage/diskmgr"
	"github.com/gopagedb/pagedb/internal/storage/page"
)

// frame is one in-memory page slot.
type frame struct {
	pageID  page.PageID
	buf     []byte
	dirty   bool
	pinCnt  int
}

// Pool is a fixed-capacity pinned page cache.
type Pool struct {
	mu        sync.Mutex
	disk      *diskmgr.DiskManager
	replacer  Replacer
	pageSize  int
	frames    []frame
	pageTable map[page.PageID]int // pageID -> frame index
	freeList  []int                // frame indices not holding any page
}

// NewPool creates a buffer pool of numFrames frames over disk. replacer
// selects eviction victims; pass NewLRUReplacer or NewLRUKReplacer.
func NewPool(disk *diskmgr.DiskManager, numFrames int, replacer Replacer) *Pool {
	frames := make([]frame, numFrames)
	free := make([]int, numFrames)
	for i := range frames {
		frames[i].buf = make([]byte, disk.PageSize())
		free[i] = i
	}
	return &Pool{
		disk:      disk,
		replacer:  replacer,
		pageSize:  disk.PageSize(),
		frames:    frames,
		pageTable: make(map[page.PageID]int, numFrames),
		freeList:  free,
	}
}

// victimFrame picks a frame to reuse: free list first, then the replacer.
// Returns the frame index, or (-1, false) if the pool is fully pinned.
func (p *Pool) victimFrame() (int, bool) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx, true
	}
	idx, ok := p.replacer.Victim()
	if !ok {
		return -1, false
	}
	return idx, true
}

func (p *Pool) evict(idx int) error {
	f := &p.frames[idx]
	if cur, ok := p.pageTable[f.pageID]; !ok || cur != idx {
		return nil // frame holds no page (fresh or from the free list)
	}
	if f.dirty {
		if err := p.disk.WritePage(f.pageID, f.buf); err != nil {
			return err
		}
		f.dirty = false
	}
	delete(p.pageTable, f.pageID)
	return nil
}

// FetchPage pins and returns the bytes for pageID, loading it from disk if
// not already cached. Callers must call UnpinPage when finished.
func (p *Pool) FetchPage(id page.PageID) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[id]; ok {
		f := &p.frames[idx]
		f.pinCnt++
		p.replacer.RecordAccess(idx)
		p.replacer.Pin(idx)
		return f.buf, nil
	}

	idx, ok := p.victimFrame()
	if !ok {
		return nil, fmt.Errorf("buffer pool exhausted: all frames pinned")
	}
	if err := p.evict(idx); err != nil {
		return nil, err
	}
	f := &p.frames[idx]
	if err := p.disk.ReadPage(id, f.buf); err != nil {
		p.freeList = append(p.freeList, idx)
		return nil, err
	}
	f.pageID = id
	f.dirty = false
	f.pinCnt = 1
	p.pageTable[id] = idx
	p.replacer.RecordAccess(idx)
	p.replacer.Pin(idx)
	return f.buf, nil
}

// NewPage allocates a fresh page on disk, pins it in a frame, and returns
// its ID and zeroed bytes for the caller to initialize.
func (p *Pool) NewPage() (page.PageID, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.victimFrame()
	if !ok {
		return page.InvalidPageID, nil, fmt.Errorf("buffer pool exhausted: all frames pinned")
	}
	if err := p.evict(idx); err != nil {
		return page.InvalidPageID, nil, err
	}
	id, err := p.disk.AllocatePage()
	if err != nil {
		p.freeList = append(p.freeList, idx)
		return page.InvalidPageID, nil, err
	}
	f := &p.frames[idx]
	for i := range f.buf {
		f.buf[i] = 0
	}
	f.pageID = id
	f.dirty = true
	f.pinCnt = 1
	p.pageTable[id] = idx
	p.replacer.RecordAccess(idx)
	p.replacer.Pin(idx)
	return id, f.buf, nil
}

// UnpinPage decrements the pin count for pageID. isDirty ORs into the
// frame's dirty bit; once set, it is only cleared by a flush. When the pin
// count reaches zero the frame becomes eligible for eviction.
func (p *Pool) UnpinPage(id page.PageID, isDirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return fmt.Errorf("unpin: page %d not in buffer pool", id)
	}
	f := &p.frames[idx]
	if f.pinCnt <= 0 {
		return fmt.Errorf("unpin: page %d already at zero pin count", id)
	}
	if isDirty {
		f.dirty = true
	}
	f.pinCnt--
	if f.pinCnt == 0 {
		p.replacer.Unpin(idx)
	}
	return nil
}

// FlushPage writes pageID's current bytes to disk regardless of pin count,
// clearing its dirty bit.
func (p *Pool) FlushPage(id page.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.pageTable[id]
	if !ok {
		return fmt.Errorf("flush: page %d not in buffer pool", id)
	}
	f := &p.frames[idx]
	if err := p.disk.WritePage(id, f.buf); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// FlushAll writes every dirty frame to disk. Called at clean shutdown.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, idx := range p.pageTable {
		f := &p.frames[idx]
		if f.dirty {
			if err := p.disk.WritePage(id, f.buf); err != nil {
				return err
			}
			f.dirty = false
		}
	}
	return nil
}

// DeletePage removes pageID from the pool and frees it on disk. Fails if
// the page is still pinned.
func (p *Pool) DeletePage(id page.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.pageTable[id]
	if !ok {
		return p.disk.DeallocatePage(id)
	}
	f := &p.frames[idx]
	if f.pinCnt > 0 {
		return fmt.Errorf("delete: page %d still pinned (count=%d)", id, f.pinCnt)
	}
	if f.dirty {
		if err := p.disk.WritePage(id, f.buf); err != nil {
			return err
		}
		f.dirty = false
	}
	delete(p.pageTable, id)
	p.replacer.Pin(idx) // remove from replacer candidacy before reuse
	p.freeList = append(p.freeList, idx)
	return p.disk.DeallocatePage(id)
}

func (p *Pool) PageSize() int { return p.pageSize }

// Capacity returns the pool's fixed frame count.
func (p *Pool) Capacity() int { return len(p.frames) }
