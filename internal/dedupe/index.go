package dedupe

import (
	"fmt"

	arc "github.com/hashicorp/golang-lru/arc/v2"

	"github.com/KnightKu/kvdo/internal/types"
)

// VirtualChapter numbers chapters monotonically as they close; it never
// wraps, unlike the physical slot a chapter occupies on disk.
type VirtualChapter uint64

// ChapterRegion classifies a closed chapter: dense chapters are fully
// resident on disk and always searched directly; sparse chapters are
// older and only partly cached, searched through the ARC cache (spec
// §4.6).
type ChapterRegion uint8

const (
	RegionDense ChapterRegion = iota
	RegionSparse
)

// DenseRecords is one dense chapter's full, hash-ordered record set, kept
// entirely in memory in this reference implementation in place of the
// on-disk page format (the out-of-scope on-disk page allocator owns the
// real page I/O, spec §1).
type DenseRecords map[types.ChunkName]Advice

// VolumeIndex is the zone-shared chapter store: a ring of dense chapters
// plus an ARC-cached sparse region. ARC fits "partly evicted, cached on
// demand" better than a plain LRU because it keeps a ghost list of
// recently-evicted chapters and favors re-admitting ones that come back
// into demand, matching sparse-region access patterns where a handful of
// older chapters get hammered again after a detected-advice spike.
type VolumeIndex struct {
	chaptersPerVolume int
	denseChapters     int // how many of the most recent closed chapters stay dense

	dense  map[VirtualChapter]DenseRecords
	sparse *arc.ARCCache[VirtualChapter, DenseRecords]

	oldestChapter VirtualChapter
	newestChapter VirtualChapter
	hasChapters   bool
}

// NewVolumeIndex creates an index over chaptersPerVolume chapter slots,
// keeping the denseChapters most recent closed chapters fully resident
// and caching up to sparseCacheSize older chapters on demand.
func NewVolumeIndex(chaptersPerVolume, denseChapters, sparseCacheSize int) (*VolumeIndex, error) {
	sparse, err := arc.NewARC[VirtualChapter, DenseRecords](sparseCacheSize)
	if err != nil {
		return nil, fmt.Errorf("dedupe: volume index: %w", err)
	}
	return &VolumeIndex{
		chaptersPerVolume: chaptersPerVolume,
		denseChapters:     denseChapters,
		dense:             make(map[VirtualChapter]DenseRecords),
		sparse:            sparse,
	}, nil
}

// CloseChapter commits a zone shard's records into virtual chapter v,
// placing it in the dense region. Every hash zone closes the same virtual
// chapter number for a given generation (spec §4.6: each zone's shard of
// the records_per_chapter budget becomes part of one shared chapter), so
// records from multiple zones merge into the same chapter rather than
// overwriting each other. If the dense region then holds more than
// denseChapters chapters, the oldest migrates to the sparse cache rather
// than being dropped.
func (vi *VolumeIndex) CloseChapter(v VirtualChapter, records DenseRecords) {
	existing, ok := vi.dense[v]
	if !ok {
		existing = make(DenseRecords, len(records))
		vi.dense[v] = existing
	}
	for name, advice := range records {
		existing[name] = advice
	}
	if !vi.hasChapters {
		vi.oldestChapter = v
		vi.hasChapters = true
	}
	vi.newestChapter = v

	for len(vi.dense) > vi.denseChapters {
		oldest := vi.oldestDenseChapter()
		migrating := vi.dense[oldest]
		delete(vi.dense, oldest)
		vi.sparse.Add(oldest, migrating)
	}
}

func (vi *VolumeIndex) oldestDenseChapter() VirtualChapter {
	var oldest VirtualChapter
	first := true
	for v := range vi.dense {
		if first || v < oldest {
			oldest = v
			first = false
		}
	}
	return oldest
}

// Search looks up name, trying the dense region first (always resident),
// then the sparse ARC cache (which may miss and report absent even for a
// fingerprint that was once indexed, per spec §4.6's "partly evicted").
func (vi *VolumeIndex) Search(name types.ChunkName) (Advice, bool) {
	for _, records := range vi.dense {
		if a, ok := records[name]; ok {
			return a, true
		}
	}
	a, probe := vi.SearchSparse(name)
	return a, probe != ProbeMiss
}

// CacheProbeType classifies why a sparse lookup did or did not need to
// touch disk, for metrics (spec glossary: "cache_probe_type
// classification").
type CacheProbeType uint8

const (
	ProbeMiss CacheProbeType = iota
	ProbeHitDense
	ProbeHitSparseCached
	ProbeHitSparseColdLoad
)

// SearchSparse scans every chapter the ARC cache currently holds (a
// simplification of the real per-chapter index, adequate for a reference
// implementation) and reports which probe classification applied.
func (vi *VolumeIndex) SearchSparse(name types.ChunkName) (Advice, CacheProbeType) {
	for _, v := range vi.sparse.Keys() {
		records, ok := vi.sparse.Peek(v)
		if !ok {
			continue
		}
		if a, ok := records[name]; ok {
			return a, ProbeHitSparseCached
		}
	}
	return Advice{}, ProbeMiss
}
