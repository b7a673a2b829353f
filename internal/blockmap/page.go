// Package blockmap implements the persistent, B-tree-like forest mapping
// 48-bit logical block numbers to (physical block number, state) entries,
// together with its in-memory page cache and era-based dirty-page
// writeback (spec §4.4). The forest is a fixed set of root_count trees; a
// tree page cycles absent -> loading -> resident-clean -> dirty -> writing
// -> resident-clean (spec §3, "Lifecycles").
package blockmap

import (
	"github.com/KnightKu/kvdo/internal/types"
)

// leafEntrySize is the packed size in bytes of one leaf entry: pbn (6
// bytes) + state (1 byte), rounded up to 8 for alignment.
const leafEntrySize = 8

// pointerSize is the packed size in bytes of one interior-page child
// pointer (a PBN, 6 bytes rounded up to 8).
const pointerSize = 8

const pageHeaderSize = 24

// EntriesPerLeafPage is the number of logical-block mappings one leaf page
// holds.
var EntriesPerLeafPage = (types.BlockSize - pageHeaderSize) / leafEntrySize

// PointersPerInteriorPage is the number of child-page pointers one
// interior page holds.
var PointersPerInteriorPage = (types.BlockSize - pageHeaderSize) / pointerSize

// TreeHeight is the fixed height of every tree in the forest: levels 0
// (leaves) through TreeHeight-1 (roots).
const TreeHeight = 5

// PageKind distinguishes a leaf page (holding block mappings) from an
// interior page (holding child pointers).
type PageKind uint8

const (
	KindInterior PageKind = iota
	KindLeaf
)

// Page is one tree page, interior or leaf. Only one of Entries/Children is
// meaningful, selected by Kind.
type Page struct {
	PBN      types.PBN // this page's own on-disk location; 0 if never allocated
	Tree     int
	Level    int // 0 == leaf
	Index    int // position within its level
	Kind     PageKind
	Entries  []types.BlockMapping // leaf: EntriesPerLeafPage mappings
	Children []types.PBN          // interior: PointersPerInteriorPage pointers; 0 == "all descendants unmapped"
}

// newLeaf allocates an all-unmapped leaf page.
func newLeaf(tree, index int) *Page {
	return &Page{Tree: tree, Level: 0, Index: index, Kind: KindLeaf, Entries: make([]types.BlockMapping, EntriesPerLeafPage)}
}

// newInterior allocates an interior page with every child pointer null.
func newInterior(tree, level, index int) *Page {
	return &Page{Tree: tree, Level: level, Index: index, Kind: KindInterior, Children: make([]types.PBN, PointersPerInteriorPage)}
}

// IsAllocated reports whether this page has ever been written to a
// physical location.
func (p *Page) IsAllocated() bool { return p.PBN != 0 }
