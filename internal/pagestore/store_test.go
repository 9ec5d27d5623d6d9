package pagestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/d-bee/dbee/internal/fileio"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.hive")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	h := fileio.Open(f)
	s, err := Open(h)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestAllocUniqueness(t *testing.T) {
	s := newTestStore(t)
	seen := map[uint64]bool{}
	for i := 0; i < 50; i++ {
		h, err := s.AllocPage()
		if err != nil {
			t.Fatalf("alloc: %v", err)
		}
		if seen[h.ID] {
			t.Fatalf("duplicate id %d", h.ID)
		}
		seen[h.ID] = true
	}
}

func TestReuseBeforeGrowth(t *testing.T) {
	s := newTestStore(t)
	a, err := s.AllocPage()
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.AllocPage()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeallocPage(a); err != nil {
		t.Fatalf("dealloc: %v", err)
	}
	c, err := s.AllocPage()
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != a.ID {
		t.Fatalf("expected reuse of id %d, got %d", a.ID, c.ID)
	}
}

func TestFindFitting(t *testing.T) {
	s := newTestStore(t)
	h, err := s.AllocPage()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WritePage(h, make([]byte, 100), 100); err != nil {
		t.Fatalf("write: %v", err)
	}
	found, ok, err := s.FindFitting(PageSize - 100)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || found.ID != h.ID {
		t.Fatalf("expected to find page %d with room, got %v ok=%v", h.ID, found, ok)
	}
	_, ok, err = s.FindFitting(PageSize)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected no page fitting a full page after partial write")
	}
}

func TestDeallocReturnsToFreeList(t *testing.T) {
	s := newTestStore(t)
	h, err := s.AllocPage()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeallocPage(h); err != nil {
		t.Fatal(err)
	}
	_, found, err := s.IsPage(h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatalf("page %d should no longer be registered", h.ID)
	}
	head, err := s.freeListHead()
	if err != nil {
		t.Fatal(err)
	}
	if head != h.ID {
		t.Fatalf("expected free list head %d, got %d", h.ID, head)
	}
}

func TestIterateVisitsEachOnce(t *testing.T) {
	s := newTestStore(t)
	ids := map[uint64]int{}
	for i := 0; i < 5; i++ {
		h, err := s.AllocPage()
		if err != nil {
			t.Fatal(err)
		}
		if err := s.WritePage(h, []byte{byte(i)}, 1); err != nil {
			t.Fatal(err)
		}
	}
	err := s.Iterate(func(h PageHeader, payload []byte) (bool, error) {
		ids[h.ID]++
		return false, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 5 {
		t.Fatalf("expected 5 pages, got %d", len(ids))
	}
	for id, n := range ids {
		if n != 1 {
			t.Fatalf("page %d visited %d times", id, n)
		}
	}
}

func TestManyHeaderPagesChain(t *testing.T) {
	s := newTestStore(t)
	total := entriesPerHeaderPage*2 + 3
	for i := 0; i < total; i++ {
		if _, err := s.AllocPage(); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
	}
	count := 0
	err := s.Iterate(func(h PageHeader, payload []byte) (bool, error) {
		count++
		return false, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != total {
		t.Fatalf("expected %d pages, iterated %d", total, count)
	}
}
