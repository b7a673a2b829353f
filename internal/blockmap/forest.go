package blockmap

import (
	"fmt"

	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// Forest is root_count balanced trees of fixed TreeHeight, together
// mapping the entire logical address space. Pages are allocated lazily:
// a Page exists in memory (and may be unallocated on disk) as soon as it
// is addressed, but its PBN stays zero until something is actually written
// through it.
type Forest struct {
	RootCount int
	// roots[t] is the root page of tree t, always present (roots are
	// allocated at format time, never lazily).
	roots []*Page
	// pages indexes every page below the root by (tree, level, index),
	// created on first access.
	pages map[pageKey]*Page
}

type pageKey struct {
	tree, level, index int
}

// NewForest creates an empty forest with rootCount trees, each of
// TreeHeight levels, every root page allocated up front.
func NewForest(rootCount int) (*Forest, error) {
	if rootCount <= 0 {
		return nil, fmt.Errorf("blockmap: root count must be positive: %w", vdoerr.ErrInvalidArgument)
	}
	f := &Forest{RootCount: rootCount, pages: make(map[pageKey]*Page)}
	f.roots = make([]*Page, rootCount)
	for t := 0; t < rootCount; t++ {
		root := newInterior(t, TreeHeight-1, 0)
		f.roots[t] = root
		f.pages[pageKey{t, TreeHeight - 1, 0}] = root
	}
	return f, nil
}

// ComputeForestSize returns a slight over-estimate of the number of tree
// pages (across every level, including leaves) needed to address
// logicalBlocks logical blocks with rootCount trees (spec §4.4). The
// over-estimate comes from rounding each level's page count up to a whole
// number of pages and then up again at the next level.
func ComputeForestSize(logicalBlocks uint64, rootCount int) uint64 {
	if rootCount <= 0 || logicalBlocks == 0 {
		return 0
	}
	totalLeaves := ceilDiv(logicalBlocks, uint64(EntriesPerLeafPage))
	leavesPerRoot := ceilDiv(totalLeaves, uint64(rootCount))

	var total uint64
	pages := leavesPerRoot
	for level := 0; level < TreeHeight; level++ {
		total += pages * uint64(rootCount)
		if pages <= 1 {
			break
		}
		pages = ceilDiv(pages, uint64(PointersPerInteriorPage))
	}
	return total
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// locate computes which tree and which leaf-page index within that tree
// covers lbn: the low bits (lbn mod rootCount) select the tree, and the
// remaining high bits select the page (spec §4.4).
func (f *Forest) locate(lbn types.LBN) (tree, leafIndex int) {
	tree = int(uint64(lbn) % uint64(f.RootCount))
	rest := uint64(lbn) / uint64(f.RootCount)
	leafIndex = int(rest / uint64(EntriesPerLeafPage))
	return tree, leafIndex
}

// SlotInLeaf returns the entry slot within its leaf page that lbn occupies.
func (f *Forest) SlotInLeaf(lbn types.LBN) int {
	rest := uint64(lbn) / uint64(f.RootCount)
	return int(rest % uint64(EntriesPerLeafPage))
}

// LeafBase returns the lowest LBN covered by leaf page (tree, leafIndex).
func (f *Forest) LeafBase(tree, leafIndex int) types.LBN {
	return types.LBN(uint64(leafIndex)*uint64(EntriesPerLeafPage)*uint64(f.RootCount) + uint64(tree))
}

// pathToLeaf returns the chain of page keys from the root (exclusive, it
// is always f.roots[tree]) down to the leaf for lbn, ordered root-adjacent
// first.
func (f *Forest) pathToLeaf(lbn types.LBN) (tree int, path []pageKey) {
	tree, leafIndex := f.locate(lbn)
	path = make([]pageKey, 0, TreeHeight-1)
	index := leafIndex
	for level := 0; level < TreeHeight-1; level++ {
		path = append(path, pageKey{tree, level, index})
		index = index / PointersPerInteriorPage
	}
	// path is currently leaf-first; reverse to root-adjacent-first.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return tree, path
}

// getOrCreatePage returns the in-memory page for key, lazily allocating
// interior pages along the path as needed. It never allocates a PBN; that
// only happens when the page is actually written (Forest tracks the
// logical tree shape, not disk placement).
func (f *Forest) getOrCreatePage(key pageKey) *Page {
	if p, ok := f.pages[key]; ok {
		return p
	}
	var p *Page
	if key.level == 0 {
		p = newLeaf(key.tree, key.index)
	} else {
		p = newInterior(key.tree, key.level, key.index)
	}
	f.pages[key] = p
	return p
}

// Leaf returns the (possibly lazily created) leaf page covering lbn, and
// the slot within it lbn occupies.
func (f *Forest) Leaf(lbn types.LBN) (page *Page, slot int) {
	tree, leafIndex := f.locate(lbn)
	leaf := f.getOrCreatePage(pageKey{tree, 0, leafIndex})
	return leaf, f.SlotInLeaf(lbn)
}

// InteriorPath returns the pages below the root on the way from the root
// to the leaf covering lbn: the root-adjacent page (level TreeHeight-2)
// first and the level-0 leaf last. The root itself (f.roots[tree]) is not
// included.
func (f *Forest) InteriorPath(lbn types.LBN) (tree int, interior []*Page) {
	tree, keys := f.pathToLeaf(lbn)
	interior = make([]*Page, 0, len(keys))
	for _, k := range keys {
		interior = append(interior, f.getOrCreatePage(k))
	}
	return tree, interior
}

// Root returns tree t's root page.
func (f *Forest) Root(t int) *Page { return f.roots[t] }

// TraversalCallback is invoked once per allocated page PBN visited by
// TraverseForest.
type TraversalCallback func(pbn types.PBN)

// TraverseForest visits every allocated tree page's PBN exactly once, then
// invokes done. It is used by grow-physical to record every existing tree
// page's PBN in the new slab depot before any new slabs are made
// available for ordinary allocation (spec §4.4).
func (f *Forest) TraverseForest(visit TraversalCallback, done func()) {
	seen := make(map[types.PBN]bool)
	for _, p := range f.pages {
		if p.IsAllocated() && !seen[p.PBN] {
			seen[p.PBN] = true
			visit(p.PBN)
		}
	}
	for _, r := range f.roots {
		if r.IsAllocated() && !seen[r.PBN] {
			seen[r.PBN] = true
			visit(r.PBN)
		}
	}
	done()
}
