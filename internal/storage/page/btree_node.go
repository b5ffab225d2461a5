package page

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// B+-tree node pages
// ───────────────────────────────────────────────────────────────────────────
//
// A page carries a header {page-type, size, max-size, key-size, page-id,
// parent-page-id} and a packed array of fixed-width (key, value) pairs.
// For internal nodes the value is a child page-id; slot 0's key is a dummy
// (only its child pointer is meaningful). For leaf nodes the value is a
// row-id, and the header additionally carries next-leaf-page-id forming a
// singly-linked list in ascending key order.
//
// Layout (after the 16-byte common Header):
//   [16:20] Size            (uint32 LE) -- number of live entries
//   [20:24] MaxSize         (uint32 LE)
//   [24:28] KeySize         (uint32 LE) -- bytes per key
//   [28:32] ParentPageID    (uint32 LE)
//   [32:36] NextLeafPageID  (uint32 LE) -- leaf only, InvalidPageID otherwise
//   [36:...] packed entries: internal = [4]byte childID + key;
//                            leaf     = key + [8]byte RID (pageID,slot)

const (
	nodeSizeOff       = HeaderSize      // 16
	nodeMaxSizeOff    = nodeSizeOff + 4 // 20
	nodeKeySizeOff    = nodeMaxSizeOff + 4 // 24
	nodeParentOff     = nodeKeySizeOff + 4 // 28
	nodeNextLeafOff   = nodeParentOff + 4  // 32
	nodeDataOff       = nodeNextLeafOff + 4 // 36

	// RIDSize is the on-disk size of a row-id: page-id (4) + slot index (4).
	RIDSize = 8
	// ChildPtrSize is the on-disk size of an internal node's child pointer.
	ChildPtrSize = 4
)

// RID locates a tuple in a table heap: (page-id, slot-index).
type RID struct {
	PageID PageID
	Slot   uint32
}

func (r RID) Marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.PageID))
	binary.LittleEndian.PutUint32(buf[4:8], r.Slot)
}

func UnmarshalRID(buf []byte) RID {
	return RID{PageID: PageID(binary.LittleEndian.Uint32(buf[0:4])), Slot: binary.LittleEndian.Uint32(buf[4:8])}
}

// BTreeNode wraps a page buffer as a B+-tree node (internal or leaf).
type BTreeNode struct {
	buf     []byte
	keySize int
}

// WrapBTreeNode wraps an existing node page buffer.
func WrapBTreeNode(buf []byte) *BTreeNode {
	ks := int(binary.LittleEndian.Uint32(buf[nodeKeySizeOff:]))
	return &BTreeNode{buf: buf, keySize: ks}
}

// InitBTreeNode initializes buf as an empty node of the given kind.
func InitBTreeNode(buf []byte, id, parent PageID, leaf bool, keySize, maxSize int) *BTreeNode {
	t := TypeBTreeInner
	if leaf {
		t = TypeBTreeLeaf
	}
	h := &Header{Type: t, ID: id}
	MarshalHeader(h, buf)
	binary.LittleEndian.PutUint32(buf[nodeSizeOff:], 0)
	binary.LittleEndian.PutUint32(buf[nodeMaxSizeOff:], uint32(maxSize))
	binary.LittleEndian.PutUint32(buf[nodeKeySizeOff:], uint32(keySize))
	binary.LittleEndian.PutUint32(buf[nodeParentOff:], uint32(parent))
	binary.LittleEndian.PutUint32(buf[nodeNextLeafOff:], uint32(InvalidPageID))
	return &BTreeNode{buf: buf, keySize: keySize}
}

func (n *BTreeNode) IsLeaf() bool { return Type(n.buf[0]) == TypeBTreeLeaf }

func (n *BTreeNode) PageID() PageID {
	return PageID(binary.LittleEndian.Uint32(n.buf[4:8]))
}

func (n *BTreeNode) Size() int { return int(binary.LittleEndian.Uint32(n.buf[nodeSizeOff:])) }

func (n *BTreeNode) setSize(s int) { binary.LittleEndian.PutUint32(n.buf[nodeSizeOff:], uint32(s)) }

func (n *BTreeNode) MaxSize() int { return int(binary.LittleEndian.Uint32(n.buf[nodeMaxSizeOff:])) }

func (n *BTreeNode) KeySize() int { return n.keySize }

func (n *BTreeNode) ParentPageID() PageID {
	return PageID(binary.LittleEndian.Uint32(n.buf[nodeParentOff:]))
}

func (n *BTreeNode) SetParentPageID(p PageID) {
	binary.LittleEndian.PutUint32(n.buf[nodeParentOff:], uint32(p))
}

func (n *BTreeNode) NextLeafPageID() PageID {
	return PageID(binary.LittleEndian.Uint32(n.buf[nodeNextLeafOff:]))
}

func (n *BTreeNode) SetNextLeafPageID(p PageID) {
	binary.LittleEndian.PutUint32(n.buf[nodeNextLeafOff:], uint32(p))
}

// MinSize returns the minimum occupancy for this node per spec §4.4:
// ceil((max+1)/2) for non-root nodes, 1 for a root leaf, 2 for a root
// internal. The caller (btree package) knows root-ness; this computes only
// the non-root figure.
func (n *BTreeNode) MinSize() int {
	return (n.MaxSize() + 2) / 2 // ceil((max+1)/2)
}

// entryStride returns the byte width of one packed entry.
func (n *BTreeNode) entryStride() int {
	if n.IsLeaf() {
		return n.keySize + RIDSize
	}
	return ChildPtrSize + n.keySize
}

func (n *BTreeNode) entryOff(i int) int { return nodeDataOff + i*n.entryStride() }

func (n *BTreeNode) Bytes() []byte { return n.buf }

// ── Leaf entry access ──────────────────────────────────────────────────────

// LeafKeyAt returns the key bytes at slot i.
func (n *BTreeNode) LeafKeyAt(i int) []byte {
	off := n.entryOff(i)
	return n.buf[off : off+n.keySize]
}

// LeafValueAt returns the RID at slot i.
func (n *BTreeNode) LeafValueAt(i int) RID {
	off := n.entryOff(i) + n.keySize
	return UnmarshalRID(n.buf[off : off+RIDSize])
}

// LeafFind returns the index of the first key >= target, and whether an
// exact match was found at that index (binary search; keys are sorted).
func (n *BTreeNode) LeafFind(key []byte) (idx int, found bool) {
	lo, hi := 0, n.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		c := bytes.Compare(n.LeafKeyAt(mid), key)
		if c < 0 {
			lo = mid + 1
		} else if c > 0 {
			hi = mid
		} else {
			return mid, true
		}
	}
	return lo, false
}

// LeafInsertAt inserts (key, rid) at slot i, shifting later entries right.
// Caller must ensure Size() < MaxSize()+1 capacity-wise (one extra slot of
// headroom is reserved by the max-size formula so the page can always hold
// one overflow entry before the caller splits).
func (n *BTreeNode) LeafInsertAt(i int, key []byte, rid RID) {
	sz := n.Size()
	stride := n.entryStride()
	// Shift [i, sz) right by one entry.
	for j := sz; j > i; j-- {
		copy(n.buf[n.entryOff(j):n.entryOff(j)+stride], n.buf[n.entryOff(j-1):n.entryOff(j-1)+stride])
	}
	off := n.entryOff(i)
	copy(n.buf[off:off+n.keySize], key)
	rid.Marshal(n.buf[off+n.keySize : off+stride])
	n.setSize(sz + 1)
}

// LeafRemoveAt removes the entry at slot i, shifting later entries left.
func (n *BTreeNode) LeafRemoveAt(i int) {
	sz := n.Size()
	stride := n.entryStride()
	for j := i; j < sz-1; j++ {
		copy(n.buf[n.entryOff(j):n.entryOff(j)+stride], n.buf[n.entryOff(j+1):n.entryOff(j+1)+stride])
	}
	n.setSize(sz - 1)
}

// ── Internal entry access ──────────────────────────────────────────────────

// InternalChildAt returns the child page-id at slot i.
func (n *BTreeNode) InternalChildAt(i int) PageID {
	off := n.entryOff(i)
	return PageID(binary.LittleEndian.Uint32(n.buf[off : off+ChildPtrSize]))
}

func (n *BTreeNode) setInternalChildAt(i int, child PageID) {
	off := n.entryOff(i)
	binary.LittleEndian.PutUint32(n.buf[off:off+ChildPtrSize], uint32(child))
}

// SetChildAt overwrites slot i's child pointer in place, leaving its key
// untouched. Used by redistribution to rewrite a borrowed slot's child
// without disturbing the surrounding entry order.
func (n *BTreeNode) SetChildAt(i int, child PageID) { n.setInternalChildAt(i, child) }

// InternalKeyAt returns the separator key at slot i. Slot 0's key is a
// dummy and must not be used for comparisons.
func (n *BTreeNode) InternalKeyAt(i int) []byte {
	off := n.entryOff(i) + ChildPtrSize
	return n.buf[off : off+n.keySize]
}

func (n *BTreeNode) setInternalKeyAt(i int, key []byte) {
	off := n.entryOff(i) + ChildPtrSize
	copy(n.buf[off:off+n.keySize], key)
}

// InternalFindChild returns the child index to descend into for key: the
// largest i such that InternalKeyAt(i) <= key (slot 0 always qualifies).
func (n *BTreeNode) InternalFindChild(key []byte) int {
	sz := n.Size()
	idx := 0
	for i := 1; i < sz; i++ {
		if bytes.Compare(n.InternalKeyAt(i), key) <= 0 {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// InternalPopulateNewRoot sets this freshly-initialized node to hold exactly
// two children, leftChild under slot 0 (dummy key) and rightChild under
// slot 1 keyed by sep.
func (n *BTreeNode) InternalPopulateNewRoot(leftChild PageID, sep []byte, rightChild PageID) {
	n.setInternalChildAt(0, leftChild)
	n.setInternalKeyAt(0, make([]byte, n.keySize))
	n.setSize(1)
	n.InternalInsertAt(1, sep, rightChild)
}

// InternalInsertAt inserts (key, child) at slot i, shifting later entries.
func (n *BTreeNode) InternalInsertAt(i int, key []byte, child PageID) {
	sz := n.Size()
	stride := n.entryStride()
	for j := sz; j > i; j-- {
		copy(n.buf[n.entryOff(j):n.entryOff(j)+stride], n.buf[n.entryOff(j-1):n.entryOff(j-1)+stride])
	}
	n.setSize(sz + 1)
	n.setInternalChildAt(i, child)
	if i > 0 {
		n.setInternalKeyAt(i, key)
	}
}

// InternalRemoveAt removes the entry at slot i, shifting later entries left.
func (n *BTreeNode) InternalRemoveAt(i int) {
	sz := n.Size()
	stride := n.entryStride()
	for j := i; j < sz-1; j++ {
		copy(n.buf[n.entryOff(j):n.entryOff(j)+stride], n.buf[n.entryOff(j+1):n.entryOff(j+1)+stride])
	}
	n.setSize(sz - 1)
}

// InternalChildIndex returns the slot index whose child pointer equals pid.
func (n *BTreeNode) InternalChildIndex(pid PageID) (int, error) {
	for i := 0; i < n.Size(); i++ {
		if n.InternalChildAt(i) == pid {
			return i, nil
		}
	}
	return -1, fmt.Errorf("child page %d not found among %d children", pid, n.Size())
}

// MaxEntriesForPage computes the largest max-size such that one page of the
// given size can hold max-size+1 entries of the given stride (the +1 slot
// of headroom lets an insert always overflow into a representable page
// before the caller splits), per spec §4.4's numeric semantics.
func MaxEntriesForPage(pageSize, keySize int, leaf bool) int {
	stride := ChildPtrSize + keySize
	if leaf {
		stride = keySize + RIDSize
	}
	usable := pageSize - nodeDataOff
	maxSize := usable/stride - 1
	if maxSize < 2 {
		maxSize = 2
	}
	return maxSize
}
