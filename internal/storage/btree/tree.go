// Package btree implements the clustered and unclustered B+-tree index:
// the database's sole ordered access method. Keys are fixed-width byte
// strings compared lexicographically; leaves hold (key, RID) pairs and are
// threaded together for ordered range scans.
package btree

import (
	"fmt"

	"github.com/gopagedb/pagedb/internal/storage/buffer"
	"github.com/gopagedb/pagedb/internal/storage/page"
)

// Tree is a handle onto one named index's root. Multiple Tree handles over
// the same indexID and pool observe each other's structural changes
// through the shared root-registry page and buffer pool cache.
type Tree struct {
	pool        *buffer.Pool
	roots       *rootRegistry
	indexID     uint32
	keySize     int
	leafMax     int
	internalMax int
}

// New returns a handle on indexID, sizing node capacity for keySize-byte
// keys against the pool's page size.
func New(pool *buffer.Pool, indexID uint32, keySize int) *Tree {
	return &Tree{
		pool:        pool,
		roots:       &rootRegistry{pool: pool},
		indexID:     indexID,
		keySize:     keySize,
		leafMax:     page.MaxEntriesForPage(pool.PageSize(), keySize, true),
		internalMax: page.MaxEntriesForPage(pool.PageSize(), keySize, false),
	}
}

func (t *Tree) fetchNode(id page.PageID) (*page.BTreeNode, error) {
	buf, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, err
	}
	return page.WrapBTreeNode(buf), nil
}

func (t *Tree) unpin(id page.PageID, dirty bool) {
	_ = t.pool.UnpinPage(id, dirty)
}

// IsEmpty reports whether the index has no root page yet.
func (t *Tree) IsEmpty() (bool, error) {
	_, ok, err := t.roots.get(t.indexID)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// GetValue looks up key, descending from the root with no structural
// modification.
func (t *Tree) GetValue(key []byte) (page.RID, bool, error) {
	root, ok, err := t.roots.get(t.indexID)
	if err != nil || !ok {
		return page.RID{}, false, err
	}
	leaf, err := t.findLeaf(root, key)
	if err != nil {
		return page.RID{}, false, err
	}
	defer t.unpin(leaf.PageID(), false)
	idx, found := leaf.LeafFind(key)
	if !found {
		return page.RID{}, false, nil
	}
	return leaf.LeafValueAt(idx), true, nil
}

// findLeaf descends from pageID to the leaf that would hold key, pinning
// only the returned leaf (intermediate pages are unpinned as the descent
// passes through them).
func (t *Tree) findLeaf(id page.PageID, key []byte) (*page.BTreeNode, error) {
	node, err := t.fetchNode(id)
	if err != nil {
		return nil, err
	}
	for !node.IsLeaf() {
		childIdx := node.InternalFindChild(key)
		childID := node.InternalChildAt(childIdx)
		t.unpin(node.PageID(), false)
		node, err = t.fetchNode(childID)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// Insert adds (key, rid). Returns an error if key already exists — this
// tree stores one RID per key, so equal keys are rejected whatever the
// index's uniqueness label.
func (t *Tree) Insert(key []byte, rid page.RID) error {
	empty, err := t.IsEmpty()
	if err != nil {
		return err
	}
	if empty {
		return t.startNewTree(key, rid)
	}

	root, _, err := t.roots.get(t.indexID)
	if err != nil {
		return err
	}
	leaf, err := t.findLeaf(root, key)
	if err != nil {
		return err
	}
	idx, found := leaf.LeafFind(key)
	if found {
		t.unpin(leaf.PageID(), false)
		return fmt.Errorf("btree: key already exists")
	}
	leaf.LeafInsertAt(idx, key, rid)
	if leaf.Size() <= t.leafMax {
		t.unpin(leaf.PageID(), true)
		return nil
	}
	return t.splitLeaf(leaf)
}

func (t *Tree) startNewTree(key []byte, rid page.RID) error {
	id, buf, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	leaf := page.InitBTreeNode(buf, id, page.InvalidPageID, true, t.keySize, t.leafMax)
	leaf.LeafInsertAt(0, key, rid)
	t.unpin(id, true)
	return t.roots.set(t.indexID, id)
}

// splitLeaf splits an overflowing leaf and promotes its first right-side
// key into the parent.
func (t *Tree) splitLeaf(leaf *page.BTreeNode) error {
	total := leaf.Size()
	leftCount := (total + 1) / 2

	newID, newBuf, err := t.pool.NewPage()
	if err != nil {
		t.unpin(leaf.PageID(), true)
		return err
	}
	right := page.InitBTreeNode(newBuf, newID, leaf.ParentPageID(), true, t.keySize, t.leafMax)
	for i := leftCount; i < total; i++ {
		right.LeafInsertAt(i-leftCount, leaf.LeafKeyAt(i), leaf.LeafValueAt(i))
	}
	for i := total - 1; i >= leftCount; i-- {
		leaf.LeafRemoveAt(i)
	}
	right.SetNextLeafPageID(leaf.NextLeafPageID())
	leaf.SetNextLeafPageID(newID)

	sep := append([]byte(nil), right.LeafKeyAt(0)...)
	leftID := leaf.PageID()
	t.unpin(leftID, true)
	t.unpin(newID, true)
	return t.insertIntoParent(leftID, sep, newID)
}

// insertIntoParent links right into left's parent under separator key,
// creating a new root if left was previously the root.
func (t *Tree) insertIntoParent(leftID page.PageID, sep []byte, rightID page.PageID) error {
	left, err := t.fetchNode(leftID)
	if err != nil {
		return err
	}
	parentID := left.ParentPageID()
	t.unpin(leftID, false)

	if parentID == page.InvalidPageID {
		newRootID, buf, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		root := page.InitBTreeNode(buf, newRootID, page.InvalidPageID, false, t.keySize, t.internalMax)
		root.InternalPopulateNewRoot(leftID, sep, rightID)
		t.unpin(newRootID, true)

		if err := t.setParent(leftID, newRootID); err != nil {
			return err
		}
		if err := t.setParent(rightID, newRootID); err != nil {
			return err
		}
		return t.roots.set(t.indexID, newRootID)
	}

	parent, err := t.fetchNode(parentID)
	if err != nil {
		return err
	}
	childIdx, err := parent.InternalChildIndex(leftID)
	if err != nil {
		t.unpin(parentID, false)
		return err
	}
	parent.InternalInsertAt(childIdx+1, sep, rightID)
	if err := t.setParent(rightID, parentID); err != nil {
		t.unpin(parentID, true)
		return err
	}
	if parent.Size() <= t.internalMax {
		t.unpin(parentID, true)
		return nil
	}
	return t.splitInternal(parent)
}

func (t *Tree) setParent(childID, parentID page.PageID) error {
	child, err := t.fetchNode(childID)
	if err != nil {
		return err
	}
	child.SetParentPageID(parentID)
	t.unpin(childID, true)
	return nil
}

// splitInternal splits an overflowing internal node, promoting the
// boundary key (removed from the right side, which keeps only its child
// pointer at slot 0) to the parent.
func (t *Tree) splitInternal(node *page.BTreeNode) error {
	total := node.Size()
	mid := (total + 1) / 2

	newID, newBuf, err := t.pool.NewPage()
	if err != nil {
		t.unpin(node.PageID(), true)
		return err
	}
	right := page.InitBTreeNode(newBuf, newID, node.ParentPageID(), false, t.keySize, t.internalMax)

	sep := append([]byte(nil), node.InternalKeyAt(mid)...)
	right.InternalInsertAt(0, make([]byte, t.keySize), node.InternalChildAt(mid))
	for i := mid + 1; i < total; i++ {
		right.InternalInsertAt(i-mid, node.InternalKeyAt(i), node.InternalChildAt(i))
	}
	for i := total - 1; i >= mid; i-- {
		node.InternalRemoveAt(i)
	}

	for i := 0; i < right.Size(); i++ {
		if err := t.setParent(right.InternalChildAt(i), newID); err != nil {
			t.unpin(node.PageID(), true)
			t.unpin(newID, true)
			return err
		}
	}

	leftID := node.PageID()
	t.unpin(leftID, true)
	t.unpin(newID, true)
	return t.insertIntoParent(leftID, sep, newID)
}

// Remove deletes key if present. It is not an error to remove a missing
// key; the tree is left unchanged.
func (t *Tree) Remove(key []byte) error {
	empty, err := t.IsEmpty()
	if err != nil || empty {
		return err
	}
	root, _, err := t.roots.get(t.indexID)
	if err != nil {
		return err
	}
	leaf, err := t.findLeaf(root, key)
	if err != nil {
		return err
	}
	idx, found := leaf.LeafFind(key)
	if !found {
		t.unpin(leaf.PageID(), false)
		return nil
	}
	leaf.LeafRemoveAt(idx)

	if leaf.ParentPageID() == page.InvalidPageID {
		if leaf.Size() == 0 {
			id := leaf.PageID()
			t.unpin(id, true)
			if err := t.roots.delete(t.indexID); err != nil {
				return err
			}
			return t.pool.DeletePage(id)
		}
		t.unpin(leaf.PageID(), true)
		return nil
	}

	minSize := (t.leafMax + 2) / 2
	if leaf.Size() >= minSize {
		t.unpin(leaf.PageID(), true)
		return nil
	}
	return t.coalesceOrRedistribute(leaf, minSize)
}

// coalesceOrRedistribute restores node's minimum occupancy by borrowing
// from a sibling or merging with one, recursing upward as structural
// changes propagate.
func (t *Tree) coalesceOrRedistribute(node *page.BTreeNode, minSize int) error {
	parentID := node.ParentPageID()
	parent, err := t.fetchNode(parentID)
	if err != nil {
		t.unpin(node.PageID(), true)
		return err
	}
	idx, err := parent.InternalChildIndex(node.PageID())
	if err != nil {
		t.unpin(node.PageID(), true)
		t.unpin(parentID, false)
		return err
	}

	siblingIdx := idx - 1
	leftIsSibling := true
	if siblingIdx < 0 {
		siblingIdx = idx + 1
		leftIsSibling = false
	}
	sibling, err := t.fetchNode(parent.InternalChildAt(siblingIdx))
	if err != nil {
		t.unpin(node.PageID(), true)
		t.unpin(parentID, false)
		return err
	}

	maxSize := t.leafMax
	if !node.IsLeaf() {
		maxSize = t.internalMax
	}
	if node.Size()+sibling.Size() <= maxSize {
		if leftIsSibling {
			return t.coalesce(sibling, node, parent, idx)
		}
		return t.coalesce(node, sibling, parent, siblingIdx)
	}
	return t.redistribute(node, sibling, parent, idx, leftIsSibling, minSize)
}

// coalesce merges right's entries into left, removes the separator at
// childIdx (right's slot) from parent, deletes right's page, and checks
// parent for underflow.
func (t *Tree) coalesce(left, right *page.BTreeNode, parent *page.BTreeNode, rightChildIdx int) error {
	if left.IsLeaf() {
		n := right.Size()
		for i := 0; i < n; i++ {
			left.LeafInsertAt(left.Size(), right.LeafKeyAt(i), right.LeafValueAt(i))
		}
		left.SetNextLeafPageID(right.NextLeafPageID())
	} else {
		sepKey := append([]byte(nil), parent.InternalKeyAt(rightChildIdx)...)
		left.InternalInsertAt(left.Size(), sepKey, right.InternalChildAt(0))
		if err := t.setParent(right.InternalChildAt(0), left.PageID()); err != nil {
			return err
		}
		n := right.Size()
		for i := 1; i < n; i++ {
			left.InternalInsertAt(left.Size(), right.InternalKeyAt(i), right.InternalChildAt(i))
			if err := t.setParent(right.InternalChildAt(i), left.PageID()); err != nil {
				return err
			}
		}
	}

	rightID := right.PageID()
	parent.InternalRemoveAt(rightChildIdx)

	t.unpin(left.PageID(), true)
	t.unpin(rightID, true)
	if err := t.pool.DeletePage(rightID); err != nil {
		t.unpin(parent.PageID(), true)
		return err
	}

	if parent.ParentPageID() == page.InvalidPageID {
		return t.adjustRoot(parent)
	}
	minSize := (t.internalMax + 2) / 2
	if parent.Size() >= minSize {
		t.unpin(parent.PageID(), true)
		return nil
	}
	return t.coalesceOrRedistribute(parent, minSize)
}

// redistribute borrows one entry from sibling to bring node back to
// minSize, rewriting the separating key in parent.
func (t *Tree) redistribute(node, sibling, parent *page.BTreeNode, nodeChildIdx int, siblingIsLeft bool, minSize int) error {
	_ = minSize
	if node.IsLeaf() {
		if siblingIsLeft {
			// Borrow sibling's last entry onto node's front; the new
			// separator between them is node's new first key.
			last := sibling.Size() - 1
			k, v := sibling.LeafKeyAt(last), sibling.LeafValueAt(last)
			sibling.LeafRemoveAt(last)
			node.LeafInsertAt(0, k, v)
			newSep := append([]byte(nil), k...)
			parent.InternalRemoveAt(nodeChildIdx)
			parent.InternalInsertAt(nodeChildIdx, newSep, node.PageID())
		} else {
			// Borrow sibling's first entry onto node's tail; the new
			// separator is sibling's new first key.
			k, v := sibling.LeafKeyAt(0), sibling.LeafValueAt(0)
			sibling.LeafRemoveAt(0)
			node.LeafInsertAt(node.Size(), k, v)
			newSep := append([]byte(nil), sibling.LeafKeyAt(0)...)
			parent.InternalRemoveAt(nodeChildIdx + 1)
			parent.InternalInsertAt(nodeChildIdx+1, newSep, sibling.PageID())
		}
	} else {
		if siblingIsLeft {
			// Borrow sibling's last child; the old parent separator
			// descends to become node's new slot-1 key, and sibling's old
			// last separator rises to replace it in parent.
			last := sibling.Size() - 1
			borrowedChild := sibling.InternalChildAt(last)
			risingSep := append([]byte(nil), sibling.InternalKeyAt(last)...)
			descendingSep := append([]byte(nil), parent.InternalKeyAt(nodeChildIdx)...)
			sibling.InternalRemoveAt(last)
			oldChild0 := node.InternalChildAt(0)
			node.InternalInsertAt(1, descendingSep, oldChild0)
			node.SetChildAt(0, borrowedChild)
			if err := t.setParent(borrowedChild, node.PageID()); err != nil {
				return err
			}
			parent.InternalRemoveAt(nodeChildIdx)
			parent.InternalInsertAt(nodeChildIdx, risingSep, node.PageID())
		} else {
			// Borrow sibling's first child; the old parent separator
			// descends to become node's new last key, and sibling's new
			// first key (after dropping slot 0) rises to replace it.
			firstChild := sibling.InternalChildAt(0)
			descendingSep := append([]byte(nil), parent.InternalKeyAt(nodeChildIdx+1)...)
			risingSep := append([]byte(nil), sibling.InternalKeyAt(1)...)
			sibling.InternalRemoveAt(0)
			node.InternalInsertAt(node.Size(), descendingSep, firstChild)
			if err := t.setParent(firstChild, node.PageID()); err != nil {
				return err
			}
			parent.InternalRemoveAt(nodeChildIdx + 1)
			parent.InternalInsertAt(nodeChildIdx+1, risingSep, sibling.PageID())
		}
	}
	t.unpin(node.PageID(), true)
	t.unpin(sibling.PageID(), true)
	t.unpin(parent.PageID(), true)
	return nil
}

// adjustRoot collapses an internal root that has been reduced to a single
// child into that child. A leaf root is only unpinned here; Remove itself
// deletes a root leaf that has become empty.
func (t *Tree) adjustRoot(root *page.BTreeNode) error {
	if root.IsLeaf() {
		t.unpin(root.PageID(), true)
		return nil
	}
	if root.Size() > 1 {
		t.unpin(root.PageID(), true)
		return nil
	}
	newRootID := root.InternalChildAt(0)
	oldRootID := root.PageID()
	t.unpin(oldRootID, true)
	if err := t.setParent(newRootID, page.InvalidPageID); err != nil {
		return err
	}
	if err := t.roots.set(t.indexID, newRootID); err != nil {
		return err
	}
	return t.pool.DeletePage(oldRootID)
}

// Destroy frees every page belonging to this index and clears its root
// registry entry.
func (t *Tree) Destroy() error {
	root, ok, err := t.roots.get(t.indexID)
	if err != nil || !ok {
		return err
	}
	if err := t.destroySubtree(root); err != nil {
		return err
	}
	return t.roots.delete(t.indexID)
}

func (t *Tree) destroySubtree(id page.PageID) error {
	node, err := t.fetchNode(id)
	if err != nil {
		return err
	}
	if !node.IsLeaf() {
		children := make([]page.PageID, node.Size())
		for i := range children {
			children[i] = node.InternalChildAt(i)
		}
		t.unpin(id, false)
		for _, c := range children {
			if err := t.destroySubtree(c); err != nil {
				return err
			}
		}
	} else {
		t.unpin(id, false)
	}
	return t.pool.DeletePage(id)
}

// Iterator walks leaves in ascending key order starting from the given
// key (inclusive), or from the first key if key is nil.
type Iterator struct {
	tree *Tree
	leaf *page.BTreeNode
	idx  int
}

// Begin returns an iterator positioned at the first key >= key (or the
// very first key, if key is nil).
func (t *Tree) Begin(key []byte) (*Iterator, error) {
	root, ok, err := t.roots.get(t.indexID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Iterator{tree: t}, nil
	}
	var leaf *page.BTreeNode
	if key == nil {
		leaf, err = t.findLeaf(root, make([]byte, t.keySize))
	} else {
		leaf, err = t.findLeaf(root, key)
	}
	if err != nil {
		return nil, err
	}
	idx := 0
	if key != nil {
		idx, _ = leaf.LeafFind(key)
	}
	it := &Iterator{tree: t, leaf: leaf, idx: idx}
	if idx >= leaf.Size() {
		// Every key in this leaf is below key; the first key >= key, if
		// any, opens the next leaf.
		it.idx = leaf.Size() - 1
		if _, err := it.Next(); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// Valid reports whether the iterator currently references an entry.
func (it *Iterator) Valid() bool {
	return it.leaf != nil && it.idx < it.leaf.Size()
}

// Key and Value return the current entry. Only valid when Valid() is true.
func (it *Iterator) Key() []byte      { return it.leaf.LeafKeyAt(it.idx) }
func (it *Iterator) Value() page.RID  { return it.leaf.LeafValueAt(it.idx) }

// Next advances the iterator, crossing to the next leaf via its sibling
// pointer when the current leaf is exhausted. Returns false once the scan
// reaches the end of the index.
func (it *Iterator) Next() (bool, error) {
	if it.leaf == nil {
		return false, nil
	}
	it.idx++
	if it.idx < it.leaf.Size() {
		return true, nil
	}
	next := it.leaf.NextLeafPageID()
	it.tree.unpin(it.leaf.PageID(), false)
	it.leaf = nil
	if next == page.InvalidPageID {
		return false, nil
	}
	node, err := it.tree.fetchNode(next)
	if err != nil {
		return false, err
	}
	it.leaf = node
	it.idx = 0
	if it.leaf.Size() == 0 {
		return it.Next()
	}
	return true, nil
}

// Close releases the iterator's pinned leaf, if any.
func (it *Iterator) Close() {
	if it.leaf != nil {
		it.tree.unpin(it.leaf.PageID(), false)
		it.leaf = nil
	}
}
