// Package diskmgr implements the single database file layout: fixed-size
// pages, a free-page bitmap allocator striped across the file in fixed-size
// extents, and raw page read/write with CRC validation on every read.
package diskmgr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gopagedb/pagedb/internal/storage/page"
)

// ExtentStride is the number of data pages governed by one bitmap page. A
// bitmap page plus its S governed data pages form one extent on disk:
//
//	extent layout: [bitmap page][data page 0][data page 1]...[data page S-1]
//
// For a page p, its extent index e = p / S, its intra-extent index
// i = p % S, and its file offset is (e*(S+1)+1+i)*PageSize — the bitmap
// page for extent e sits at (e*(S+1))*PageSize.
const ExtentStride = 8 * (page.DefaultPageSize - 24) // bits a bitmap page can hold at default page size

// DiskManager owns the database file and translates logical page IDs to
// file offsets, routing allocation through per-extent bitmap pages.
type DiskManager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	stride   int // pages governed per extent (== bitmap capacity at pageSize)
	numPages uint32
}

// Config configures a DiskManager.
type Config struct {
	Path     string
	PageSize int // 0 = page.DefaultPageSize
}

// Open opens or creates the database file at cfg.Path.
func Open(cfg Config) (*DiskManager, error) {
	ps := cfg.PageSize
	if ps == 0 {
		ps = page.DefaultPageSize
	}
	if ps < page.MinPageSize || ps > page.MaxPageSize || ps&(ps-1) != 0 {
		return nil, fmt.Errorf("diskmgr: invalid page size %d", ps)
	}
	f, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("diskmgr: open %s: %w", cfg.Path, err)
	}
	dm := &DiskManager{
		file:     f,
		pageSize: ps,
		stride:   page.BitmapCapacity(ps),
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	dm.numPages = uint32(fi.Size() / int64(ps))
	return dm, nil
}

func (dm *DiskManager) PageSize() int { return dm.pageSize }

// extentOffset returns the file byte offset of data page p, and the offset
// of the bitmap page governing it.
func (dm *DiskManager) extentOffset(p page.PageID) (dataOff, bitmapOff int64) {
	s := int64(dm.stride)
	e := int64(p) / s
	i := int64(p) % s
	bitmapOff = e * (s + 1) * int64(dm.pageSize)
	dataOff = (e*(s+1) + 1 + i) * int64(dm.pageSize)
	return dataOff, bitmapOff
}

// ReadPage reads page id into buf (len(buf) must equal PageSize) and
// verifies its CRC.
func (dm *DiskManager) ReadPage(id page.PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	off, _ := dm.extentOffset(id)
	if _, err := dm.file.ReadAt(buf, off); err != nil {
		return fmt.Errorf("diskmgr: read page %d: %w", id, err)
	}
	return page.VerifyCRC(buf)
}

// WritePage stamps buf's CRC and writes it to page id's slot.
func (dm *DiskManager) WritePage(id page.PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	page.SetCRC(buf)
	off, _ := dm.extentOffset(id)
	if _, err := dm.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("diskmgr: write page %d: %w", id, err)
	}
	if id+1 > page.PageID(dm.numPages) {
		dm.numPages = uint32(id) + 1
	}
	return nil
}

// readBitmap loads the bitmap page governing extent e. A bitmap page beyond
// the current end of file is treated as a fresh, all-free bitmap rather
// than an error — this is how the allocator grows the file one extent at a
// time.
func (dm *DiskManager) readBitmap(e int64) (*page.Bitmap, []byte, error) {
	buf := make([]byte, dm.pageSize)
	off := e * (int64(dm.stride) + 1) * int64(dm.pageSize)
	bitmapID := page.PageID(e * (int64(dm.stride) + 1))
	if _, err := dm.file.ReadAt(buf, off); err != nil {
		if errors.Is(err, io.EOF) {
			return page.InitBitmap(buf, bitmapID), buf, nil
		}
		return nil, nil, fmt.Errorf("diskmgr: read bitmap for extent %d: %w", e, err)
	}
	if err := page.VerifyCRC(buf); err != nil {
		return page.InitBitmap(buf, bitmapID), buf, nil
	}
	return page.WrapBitmap(buf), buf, nil
}

func (dm *DiskManager) writeBitmap(e int64, buf []byte) error {
	page.SetCRC(buf)
	off := e * (int64(dm.stride) + 1) * int64(dm.pageSize)
	_, err := dm.file.WriteAt(buf, off)
	return err
}

// AllocatePage finds a free page in an existing extent, or grows the file
// by one new extent, and marks the chosen page allocated.
func (dm *DiskManager) AllocatePage() (page.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	numExtents := int64(dm.numPages)/int64(dm.stride) + 1
	for e := int64(0); e < numExtents; e++ {
		bm, buf, err := dm.readBitmap(e)
		if err != nil {
			return page.InvalidPageID, err
		}
		if idx, ok := bm.Allocate(dm.stride); ok {
			if err := dm.writeBitmap(e, buf); err != nil {
				return page.InvalidPageID, err
			}
			pid := page.PageID(e*int64(dm.stride) + int64(idx))
			if uint32(pid)+1 > dm.numPages {
				dm.numPages = uint32(pid) + 1
			}
			return pid, nil
		}
	}
	// All existing extents full: start a fresh one.
	e := numExtents
	buf := make([]byte, dm.pageSize)
	bm := page.InitBitmap(buf, page.PageID(e*(int64(dm.stride)+1)))
	idx, ok := bm.Allocate(dm.stride)
	if !ok {
		return page.InvalidPageID, fmt.Errorf("diskmgr: new extent has zero capacity")
	}
	if err := dm.writeBitmap(e, buf); err != nil {
		return page.InvalidPageID, err
	}
	pid := page.PageID(e*int64(dm.stride) + int64(idx))
	if uint32(pid)+1 > dm.numPages {
		dm.numPages = uint32(pid) + 1
	}
	return pid, nil
}

// DeallocatePage clears page id's bit in its governing extent's bitmap.
func (dm *DiskManager) DeallocatePage(id page.PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	e := int64(id) / int64(dm.stride)
	i := int(int64(id) % int64(dm.stride))
	bm, buf, err := dm.readBitmap(e)
	if err != nil {
		return err
	}
	bm.Free(i)
	return dm.writeBitmap(e, buf)
}

// IsPageFree reports whether page id is currently unallocated.
func (dm *DiskManager) IsPageFree(id page.PageID) (bool, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	e := int64(id) / int64(dm.stride)
	i := int(int64(id) % int64(dm.stride))
	bm, _, err := dm.readBitmap(e)
	if err != nil {
		return false, err
	}
	return bm.IsFree(i), nil
}

// NumPages returns the high-water mark of allocated page IDs + 1.
func (dm *DiskManager) NumPages() uint32 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.numPages
}

func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.file.Close()
}

func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.file.Sync()
}
