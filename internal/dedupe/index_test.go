package dedupe

import (
	"testing"
)

func TestVolumeIndexFindsRecordInDenseRegion(t *testing.T) {
	vi, err := NewVolumeIndex(10, 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	vi.CloseChapter(0, DenseRecords{name(1): {PBN: 9}})

	a, ok := vi.Search(name(1))
	if !ok || a.PBN != 9 {
		t.Fatalf("expected advice pbn 9, got %+v ok=%v", a, ok)
	}
}

func TestVolumeIndexMigratesOldestChapterToSparse(t *testing.T) {
	vi, err := NewVolumeIndex(10, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	vi.CloseChapter(0, DenseRecords{name(1): {PBN: 1}})
	vi.CloseChapter(1, DenseRecords{name(2): {PBN: 2}})

	if len(vi.dense) != 1 {
		t.Fatalf("expected exactly 1 dense chapter retained, got %d", len(vi.dense))
	}
	if _, ok := vi.dense[0]; ok {
		t.Fatal("expected chapter 0 to have migrated out of the dense region")
	}

	// Chapter 0's record should still be reachable through the sparse
	// cache (spec S5: "query of a fingerprint from the closed chapter
	// still returns its advice").
	a, ok := vi.Search(name(1))
	if !ok || a.PBN != 1 {
		t.Fatalf("expected migrated record still findable via sparse cache, got %+v ok=%v", a, ok)
	}
}

func TestVolumeIndexSearchMissReturnsAbsent(t *testing.T) {
	vi, _ := NewVolumeIndex(10, 2, 4)
	if _, ok := vi.Search(name(99)); ok {
		t.Fatal("expected absent for never-seen fingerprint")
	}
}
