package page

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Table heap page (slotted page)
// ───────────────────────────────────────────────────────────────────────────
//
// Fixed header plus two growing arrays: tuple bytes from the page tail down,
// slot descriptors {offset, length, deleted-flag} from just after the header
// up.
//
//   [0:16]   Common Header (Type=Heap)
//   [16:18]  FreeSpacePtr  (uint16 LE) -- byte offset where the next tuple
//                                         is written (grows downward)
//   [18:20]  TupleCount    (uint16 LE) -- slot count, including tombstones
//   [20:24]  PrevPageID    (uint32 LE)
//   [24:28]  NextPageID    (uint32 LE)
//   [28:...] slot directory, 4 bytes/slot: Offset(2) Length(2, top bit =
//            deleted-flag)

const (
	heapFreeSpacePtrOff = HeaderSize       // 16
	heapTupleCountOff   = heapFreeSpacePtrOff + 2 // 18
	heapPrevPageOff     = heapTupleCountOff + 2   // 20
	heapNextPageOff     = heapPrevPageOff + 4     // 24
	heapSlotDirOff      = heapNextPageOff + 4     // 28
	heapSlotEntrySize   = 4

	heapDeletedBit = uint16(1) << 15
	heapLengthMask = heapDeletedBit - 1
)

// HeapSlot describes one slot in the directory.
type HeapSlot struct {
	Offset  uint16
	Length  uint16
	Deleted bool
}

// HeapPage wraps a raw page buffer as a table-heap slotted page.
type HeapPage struct {
	buf []byte
}

func WrapHeap(buf []byte) *HeapPage { return &HeapPage{buf: buf} }

func InitHeap(buf []byte, id, prev PageID) *HeapPage {
	h := &Header{Type: TypeHeap, ID: id}
	MarshalHeader(h, buf)
	binary.LittleEndian.PutUint16(buf[heapFreeSpacePtrOff:], uint16(len(buf)))
	binary.LittleEndian.PutUint16(buf[heapTupleCountOff:], 0)
	binary.LittleEndian.PutUint32(buf[heapPrevPageOff:], uint32(prev))
	binary.LittleEndian.PutUint32(buf[heapNextPageOff:], uint32(InvalidPageID))
	return &HeapPage{buf: buf}
}

func (p *HeapPage) PageID() PageID { return PageID(binary.LittleEndian.Uint32(p.buf[4:8])) }

func (p *HeapPage) freeSpacePtr() int {
	return int(binary.LittleEndian.Uint16(p.buf[heapFreeSpacePtrOff:]))
}
func (p *HeapPage) setFreeSpacePtr(v int) {
	binary.LittleEndian.PutUint16(p.buf[heapFreeSpacePtrOff:], uint16(v))
}

func (p *HeapPage) TupleCount() int {
	return int(binary.LittleEndian.Uint16(p.buf[heapTupleCountOff:]))
}
func (p *HeapPage) setTupleCount(n int) {
	binary.LittleEndian.PutUint16(p.buf[heapTupleCountOff:], uint16(n))
}

func (p *HeapPage) PrevPageID() PageID {
	return PageID(binary.LittleEndian.Uint32(p.buf[heapPrevPageOff:]))
}
func (p *HeapPage) SetPrevPageID(pid PageID) {
	binary.LittleEndian.PutUint32(p.buf[heapPrevPageOff:], uint32(pid))
}

func (p *HeapPage) NextPageID() PageID {
	return PageID(binary.LittleEndian.Uint32(p.buf[heapNextPageOff:]))
}
func (p *HeapPage) SetNextPageID(pid PageID) {
	binary.LittleEndian.PutUint32(p.buf[heapNextPageOff:], uint32(pid))
}

func (p *HeapPage) slotOff(i int) int { return heapSlotDirOff + i*heapSlotEntrySize }

func (p *HeapPage) slotDirEnd() int { return heapSlotDirOff + p.TupleCount()*heapSlotEntrySize }

// FreeSpace returns bytes available for a new tuple plus its slot entry.
func (p *HeapPage) FreeSpace() int {
	return p.freeSpacePtr() - p.slotDirEnd() - heapSlotEntrySize
}

// GetSlot returns the slot descriptor at index i.
func (p *HeapPage) GetSlot(i int) HeapSlot {
	off := p.slotOff(i)
	lenField := binary.LittleEndian.Uint16(p.buf[off+2:])
	return HeapSlot{
		Offset:  binary.LittleEndian.Uint16(p.buf[off:]),
		Length:  lenField & heapLengthMask,
		Deleted: lenField&heapDeletedBit != 0,
	}
}

func (p *HeapPage) setSlot(i int, s HeapSlot) {
	off := p.slotOff(i)
	binary.LittleEndian.PutUint16(p.buf[off:], s.Offset)
	lenField := s.Length & heapLengthMask
	if s.Deleted {
		lenField |= heapDeletedBit
	}
	binary.LittleEndian.PutUint16(p.buf[off+2:], lenField)
}

// GetTuple returns the raw tuple bytes at slot i, or nil if tombstoned.
func (p *HeapPage) GetTuple(i int) []byte {
	s := p.GetSlot(i)
	if s.Deleted {
		return nil
	}
	return p.buf[s.Offset : s.Offset+s.Length]
}

// IsDeleted reports whether slot i carries a tombstone.
func (p *HeapPage) IsDeleted(i int) bool { return p.GetSlot(i).Deleted }

// InsertTuple appends a new tuple, returning its slot index.
func (p *HeapPage) InsertTuple(data []byte) (int, error) {
	needed := len(data)
	if p.FreeSpace() < needed {
		return -1, fmt.Errorf("heap page full: need %d bytes, have %d", needed, p.FreeSpace())
	}
	newPtr := p.freeSpacePtr() - needed
	copy(p.buf[newPtr:], data)
	p.setFreeSpacePtr(newPtr)
	idx := p.TupleCount()
	p.setSlot(idx, HeapSlot{Offset: uint16(newPtr), Length: uint16(needed)})
	p.setTupleCount(idx + 1)
	return idx, nil
}

// MarkDelete tombstones slot i without reclaiming space.
func (p *HeapPage) MarkDelete(i int) error {
	if i < 0 || i >= p.TupleCount() {
		return fmt.Errorf("slot %d out of range [0,%d)", i, p.TupleCount())
	}
	s := p.GetSlot(i)
	s.Deleted = true
	p.setSlot(i, s)
	return nil
}

// RollbackDelete clears a tombstone previously set by MarkDelete, restoring
// visibility without a physical copy.
func (p *HeapPage) RollbackDelete(i int) error {
	if i < 0 || i >= p.TupleCount() {
		return fmt.Errorf("slot %d out of range [0,%d)", i, p.TupleCount())
	}
	s := p.GetSlot(i)
	s.Deleted = false
	p.setSlot(i, s)
	return nil
}

// UpdateTupleInPlace overwrites slot i's bytes when the new tuple fits in
// the old slot's reserved space. Returns false when it does not fit — the
// caller must delete-then-insert.
func (p *HeapPage) UpdateTupleInPlace(i int, data []byte) bool {
	s := p.GetSlot(i)
	if int(s.Length) < len(data) {
		return false
	}
	copy(p.buf[s.Offset:], data)
	s.Length = uint16(len(data))
	p.setSlot(i, s)
	return true
}

// ApplyDelete physically reclaims slot i's bytes and compacts the slot
// directory, shifting later slots down by one.
func (p *HeapPage) ApplyDelete(i int) error {
	n := p.TupleCount()
	if i < 0 || i >= n {
		return fmt.Errorf("slot %d out of range [0,%d)", i, n)
	}
	// Compact tuple storage: shift every tuple placed before slot i's
	// offset toward the tail by the reclaimed length, then fix up offsets.
	victim := p.GetSlot(i)
	if !victim.Deleted {
		return fmt.Errorf("slot %d is not tombstoned; call MarkDelete first", i)
	}
	reclaimed := int(victim.Length)
	victimOff := int(victim.Offset)
	base := p.freeSpacePtr()
	if victimOff > base {
		copy(p.buf[base+reclaimed:victimOff+reclaimed], p.buf[base:victimOff])
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			sj := p.GetSlot(j)
			if int(sj.Offset) < victimOff {
				sj.Offset += uint16(reclaimed)
				p.setSlot(j, sj)
			}
		}
	}
	p.setFreeSpacePtr(base + reclaimed)
	for j := i; j < n-1; j++ {
		copy(p.buf[p.slotOff(j):p.slotOff(j)+heapSlotEntrySize], p.buf[p.slotOff(j+1):p.slotOff(j+1)+heapSlotEntrySize])
	}
	p.setTupleCount(n - 1)
	return nil
}

func (p *HeapPage) Bytes() []byte { return p.buf }
