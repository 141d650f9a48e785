package mem

// MinFragmentSize is the smallest fragment a memtree will track; smaller
// pieces are thrown away by the caller rather than inserted (spec's
// "fragments smaller than sizeof(memtree node) are discarded"). There is
// no in-band node header in this port, so the number is chosen to keep
// fragment recycling worthwhile rather than to fit a struct.
const MinFragmentSize = 32

// memtree is a red-black tree of free memory fragments keyed by size, with
// a same-size overflow chain per node (spec §4.1). It is implemented as a
// left-leaning red-black tree (Sedgewick): "smaller" plays the role of the
// left child and "larger" the right child. The colour bit the original C
// packs into the fragment's size field becomes a plain bool, per the
// design note that the packed representation is an implementation
// artifact, not a contract.
type memtree struct {
	root *memtreeNode
}

type memtreeNode struct {
	size    int
	bufs    [][]byte // bufs[0] is the tree-resident fragment; any others chain on the same size
	red     bool
	smaller *memtreeNode
	larger  *memtreeNode
}

func isRed(n *memtreeNode) bool { return n != nil && n.red }

func rotateLeft(h *memtreeNode) *memtreeNode {
	x := h.larger
	h.larger = x.smaller
	x.smaller = h
	x.red = h.red
	h.red = true
	return x
}

func rotateRight(h *memtreeNode) *memtreeNode {
	x := h.smaller
	h.smaller = x.larger
	x.larger = h
	x.red = h.red
	h.red = true
	return x
}

func flipColors(h *memtreeNode) {
	h.red = !h.red
	h.smaller.red = !h.smaller.red
	h.larger.red = !h.larger.red
}

// insert splices mem into the tree, keyed by len(mem). A fragment whose
// size matches an existing node chains onto that node without touching
// tree shape or colour, per spec's "never rebalancing for equal-size
// inserts".
func (t *memtree) insert(mem []byte) {
	t.root = insertNode(t.root, mem)
	t.root.red = false
}

func insertNode(h *memtreeNode, mem []byte) *memtreeNode {
	size := len(mem)
	if h == nil {
		return &memtreeNode{size: size, bufs: [][]byte{mem}, red: true}
	}
	switch {
	case size == h.size:
		h.bufs = append(h.bufs, mem)
		return h
	case size < h.size:
		h.smaller = insertNode(h.smaller, mem)
	default:
		h.larger = insertNode(h.larger, mem)
	}

	if isRed(h.larger) && !isRed(h.smaller) {
		h = rotateLeft(h)
	}
	if isRed(h.smaller) && isRed(h.smaller.smaller) {
		h = rotateRight(h)
	}
	if isRed(h.smaller) && isRed(h.larger) {
		flipColors(h)
	}
	return h
}

// fetch returns the smallest cached fragment whose size is >= size and
// removes it from the tree (spec's best-fit fetch). Among fragments of
// that size, the most recently chained one is returned first and the
// tree-resident one last. It returns nil if nothing fits.
func (t *memtree) fetch(size int) []byte {
	target, ok := ceiling(t.root, size)
	if !ok {
		return nil
	}
	node := find(t.root, target)
	if len(node.bufs) > 1 {
		// Hand out a chained fragment; the node stays: O(1), no rebalance.
		buf := node.bufs[len(node.bufs)-1]
		node.bufs = node.bufs[:len(node.bufs)-1]
		return buf
	}
	buf := node.bufs[0]
	t.root = deleteKey(t.root, target)
	if t.root != nil {
		t.root.red = false
	}
	return buf
}

func ceiling(h *memtreeNode, size int) (int, bool) {
	var best int
	found := false
	for h != nil {
		switch {
		case h.size == size:
			return h.size, true
		case h.size < size:
			h = h.larger
		default:
			best, found = h.size, true
			h = h.smaller
		}
	}
	return best, found
}

func find(h *memtreeNode, size int) *memtreeNode {
	for h != nil {
		switch {
		case size == h.size:
			return h
		case size < h.size:
			h = h.smaller
		default:
			h = h.larger
		}
	}
	return nil
}

func moveRedLeft(h *memtreeNode) *memtreeNode {
	flipColors(h)
	if isRed(h.larger.smaller) {
		h.larger = rotateRight(h.larger)
		h = rotateLeft(h)
		flipColors(h)
	}
	return h
}

func moveRedRight(h *memtreeNode) *memtreeNode {
	flipColors(h)
	if isRed(h.smaller.smaller) {
		h = rotateRight(h)
		flipColors(h)
	}
	return h
}

func fixUp(h *memtreeNode) *memtreeNode {
	if isRed(h.larger) {
		h = rotateLeft(h)
	}
	if isRed(h.smaller) && isRed(h.smaller.smaller) {
		h = rotateRight(h)
	}
	if isRed(h.smaller) && isRed(h.larger) {
		flipColors(h)
	}
	return h
}

func minNode(h *memtreeNode) *memtreeNode {
	for h.smaller != nil {
		h = h.smaller
	}
	return h
}

func deleteMin(h *memtreeNode) *memtreeNode {
	if h.smaller == nil {
		return nil
	}
	if !isRed(h.smaller) && !isRed(h.smaller.smaller) {
		h = moveRedLeft(h)
	}
	h.smaller = deleteMin(h.smaller)
	return fixUp(h)
}

func deleteKey(h *memtreeNode, size int) *memtreeNode {
	if size < h.size {
		if !isRed(h.smaller) && !isRed(h.smaller.smaller) {
			h = moveRedLeft(h)
		}
		h.smaller = deleteKey(h.smaller, size)
	} else {
		if isRed(h.smaller) {
			h = rotateRight(h)
		}
		if size == h.size && h.larger == nil {
			return nil
		}
		if !isRed(h.larger) && !isRed(h.larger.smaller) {
			h = moveRedRight(h)
		}
		if size == h.size {
			m := minNode(h.larger)
			h.size, h.bufs = m.size, m.bufs
			h.larger = deleteMin(h.larger)
		} else {
			h.larger = deleteKey(h.larger, size)
		}
	}
	return fixUp(h)
}
