package page

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Index-roots page — page 1
// ───────────────────────────────────────────────────────────────────────────
//
// A mapping from index-id to the current root page-id of that index, kept
// in a single page and updated atomically whenever a root page is created,
// replaced, or deleted.
//
//   [0:16]   Common Header (Type=IndexRoots)
//   [16:20]  Magic   (uint32 LE, 0x5E0D5E0D)
//   [20:24]  Count   (uint32 LE)
//   [24:...] Count pairs of (IndexID uint32 LE, RootPageID uint32 LE)

const (
	RootsMagic = uint32(0x5E0D5E0D)

	rootsMagicOff = HeaderSize     // 16
	rootsCountOff = rootsMagicOff + 4 // 20
	rootsDataOff  = rootsCountOff + 4 // 24
	rootsEntrySize = 8
)

// RootsPage wraps the index-roots registry page.
type RootsPage struct {
	buf []byte
}

func WrapRoots(buf []byte) *RootsPage { return &RootsPage{buf: buf} }

func InitRoots(buf []byte) *RootsPage {
	h := &Header{Type: TypeIndexRoots, ID: 1}
	MarshalHeader(h, buf)
	binary.LittleEndian.PutUint32(buf[rootsMagicOff:], RootsMagic)
	binary.LittleEndian.PutUint32(buf[rootsCountOff:], 0)
	return &RootsPage{buf: buf}
}

func (r *RootsPage) Count() int {
	return int(binary.LittleEndian.Uint32(r.buf[rootsCountOff:]))
}

func (r *RootsPage) setCount(n int) {
	binary.LittleEndian.PutUint32(r.buf[rootsCountOff:], uint32(n))
}

func (r *RootsPage) entryOff(i int) int { return rootsDataOff + i*rootsEntrySize }

// GetRoot returns the root page-id for indexID, or (InvalidPageID, false).
func (r *RootsPage) GetRoot(indexID uint32) (PageID, bool) {
	n := r.Count()
	for i := 0; i < n; i++ {
		off := r.entryOff(i)
		if binary.LittleEndian.Uint32(r.buf[off:]) == indexID {
			return PageID(binary.LittleEndian.Uint32(r.buf[off+4:])), true
		}
	}
	return InvalidPageID, false
}

// SetRoot inserts or updates the root page-id for indexID.
func (r *RootsPage) SetRoot(indexID uint32, root PageID) error {
	n := r.Count()
	for i := 0; i < n; i++ {
		off := r.entryOff(i)
		if binary.LittleEndian.Uint32(r.buf[off:]) == indexID {
			binary.LittleEndian.PutUint32(r.buf[off+4:], uint32(root))
			return nil
		}
	}
	off := r.entryOff(n)
	if off+rootsEntrySize > len(r.buf) {
		return fmt.Errorf("index-roots page full: cannot add index %d", indexID)
	}
	binary.LittleEndian.PutUint32(r.buf[off:], indexID)
	binary.LittleEndian.PutUint32(r.buf[off+4:], uint32(root))
	r.setCount(n + 1)
	return nil
}

// DeleteRoot removes the entry for indexID, compacting the array.
func (r *RootsPage) DeleteRoot(indexID uint32) bool {
	n := r.Count()
	for i := 0; i < n; i++ {
		off := r.entryOff(i)
		if binary.LittleEndian.Uint32(r.buf[off:]) == indexID {
			for j := i; j < n-1; j++ {
				copy(r.buf[r.entryOff(j):r.entryOff(j)+rootsEntrySize], r.buf[r.entryOff(j+1):r.entryOff(j+1)+rootsEntrySize])
			}
			r.setCount(n - 1)
			return true
		}
	}
	return false
}

func (r *RootsPage) Bytes() []byte { return r.buf }
