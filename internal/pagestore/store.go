package pagestore

import (
	"encoding/binary"
	"sync"

	"github.com/d-bee/dbee/internal/dbeeerr"
	"github.com/d-bee/dbee/internal/fileio"
)

// Store owns one paged file: the free list, the header-page chain, and
// the data pages they describe. Every structural mutation (alloc, dealloc,
// linking a new header page into the chain) takes store's own mutex, on
// top of the byte-range locking fileio.Handle already provides for raw
// reads/writes — the chain's shape has to change as one atomic step, not
// just each page write.
type Store struct {
	mu sync.Mutex
	h  *fileio.Handle
}

// Open wraps an already-open file handle as a page store, initializing
// the free-list head and the first header page (page 0) if the file is
// new (size < 8+PageSize).
func Open(h *fileio.Handle) (*Store, error) {
	s := &Store{h: h}
	size, err := h.Size()
	if err != nil {
		return nil, err
	}
	if size < firstPageOffset+PageSize {
		if err := s.h.WriteAt(freeListHeadOffset, encodeUint64(0)); err != nil {
			return nil, err
		}
		buf := make([]byte, PageSize)
		putSelfHeader(buf, PageHeader{ID: 0, Used: headerEntrySize, Next: 0})
		if err := s.h.WriteAt(pageOffset(0), buf); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func (s *Store) freeListHead() (uint64, error) {
	buf, err := s.h.ReadAt(freeListHeadOffset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func (s *Store) setFreeListHead(id uint64) error {
	return s.h.WriteAt(freeListHeadOffset, encodeUint64(id))
}

func (s *Store) readHeaderPage(id uint64) ([]byte, error) {
	return s.h.ReadAt(pageOffset(id), PageSize)
}

func (s *Store) writeHeaderPage(id uint64, buf []byte) error {
	return s.h.WriteAt(pageOffset(id), buf)
}

func (s *Store) fileSizeInPages() (uint64, error) {
	size, err := s.h.Size()
	if err != nil {
		return 0, err
	}
	if size <= firstPageOffset {
		return 0, nil
	}
	return uint64((size - firstPageOffset) / PageSize), nil
}

// allocID pops a page id off the free list, or mints a fresh one past the
// current end of file if the list is empty (the next never-used id).
func (s *Store) allocID() (uint64, error) {
	head, err := s.freeListHead()
	if err != nil {
		return 0, err
	}
	if head != 0 {
		buf, err := s.h.ReadAt(pageOffset(head), 8)
		if err != nil {
			return 0, err
		}
		next := binary.LittleEndian.Uint64(buf)
		if err := s.setFreeListHead(next); err != nil {
			return 0, err
		}
		return head, nil
	}
	fresh, err := s.fileSizeInPages()
	if err != nil {
		return 0, err
	}
	zero := make([]byte, PageSize)
	if err := s.h.WriteAt(pageOffset(fresh), zero); err != nil {
		return 0, err
	}
	return fresh, nil
}

// freeID pushes id back onto the head of the free list.
func (s *Store) freeID(id uint64) error {
	head, err := s.freeListHead()
	if err != nil {
		return err
	}
	if err := s.h.WriteAt(pageOffset(id), encodeUint64(head)); err != nil {
		return err
	}
	return s.setFreeListHead(id)
}

// headerChainIDs returns the ids of every header page in chain order,
// starting at page 0.
func (s *Store) headerChainIDs() ([]uint64, error) {
	var ids []uint64
	id := uint64(0)
	for {
		ids = append(ids, id)
		buf, err := s.readHeaderPage(id)
		if err != nil {
			return nil, err
		}
		self := selfHeader(buf)
		if self.ID != id {
			return nil, dbeeerr.Newf(dbeeerr.Corruption, "header page %d has self id %d", id, self.ID)
		}
		if self.Next == 0 {
			return ids, nil
		}
		id = self.Next
	}
}

// FindFitting returns the header of the first registered data page with
// at least n free bytes, scanning the header chain in order.
func (s *Store) FindFitting(n uint64) (PageHeader, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain, err := s.headerChainIDs()
	if err != nil {
		return PageHeader{}, false, err
	}
	for _, hpID := range chain {
		buf, err := s.readHeaderPage(hpID)
		if err != nil {
			return PageHeader{}, false, err
		}
		self := selfHeader(buf)
		count := entryCount(self)
		for i := 0; i < count; i++ {
			e := entryAt(buf, i)
			if PageSize-e.Used >= n {
				e.HeaderPageID = hpID
				return e, true, nil
			}
		}
	}
	return PageHeader{}, false, nil
}

// IsPage reports whether id is currently registered as a data page, and
// returns its header with lookup context populated.
func (s *Store) IsPage(id uint64) (PageHeader, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPageLocked(id)
}

func (s *Store) isPageLocked(id uint64) (PageHeader, bool, error) {
	chain, err := s.headerChainIDs()
	if err != nil {
		return PageHeader{}, false, err
	}
	for _, hpID := range chain {
		buf, err := s.readHeaderPage(hpID)
		if err != nil {
			return PageHeader{}, false, err
		}
		self := selfHeader(buf)
		if self.ID == id {
			return self, true, nil
		}
		count := entryCount(self)
		for i := 0; i < count; i++ {
			e := entryAt(buf, i)
			if e.ID == id {
				e.HeaderPageID = hpID
				return e, true, nil
			}
		}
	}
	return PageHeader{}, false, nil
}

// AllocPage registers a freshly allocated data page, extending or chaining
// header pages as needed, and returns its header.
func (s *Store) AllocPage() (PageHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain, err := s.headerChainIDs()
	if err != nil {
		return PageHeader{}, err
	}
	tailID := chain[len(chain)-1]
	buf, err := s.readHeaderPage(tailID)
	if err != nil {
		return PageHeader{}, err
	}
	self := selfHeader(buf)
	if entryCount(self) >= entriesPerHeaderPage {
		newHeaderID, err := s.allocID()
		if err != nil {
			return PageHeader{}, err
		}
		newBuf := make([]byte, PageSize)
		putSelfHeader(newBuf, PageHeader{ID: newHeaderID, Used: headerEntrySize, Next: 0})
		if err := s.writeHeaderPage(newHeaderID, newBuf); err != nil {
			return PageHeader{}, err
		}
		self.Next = newHeaderID
		putSelfHeader(buf, self)
		if err := s.writeHeaderPage(tailID, buf); err != nil {
			return PageHeader{}, err
		}
		tailID = newHeaderID
		buf = newBuf
		self = selfHeader(buf)
	}

	dataID, err := s.allocID()
	if err != nil {
		return PageHeader{}, err
	}
	idx := entryCount(self)
	entry := PageHeader{ID: dataID, Used: 0, Next: 0, HeaderPageID: tailID, EntryIndex: idx}
	putEntryAt(buf, idx, entry)
	self.Used += headerEntrySize
	putSelfHeader(buf, self)
	if err := s.writeHeaderPage(tailID, buf); err != nil {
		return PageHeader{}, err
	}
	return entry, nil
}

// DeallocPage removes a data page's entry from its header page, freeing
// the header page itself if that empties it (and it isn't page 0), then
// recursively frees any page reachable via header.Next.
func (s *Store) DeallocPage(header PageHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deallocPageLocked(header)
}

// deallocPageLocked is DeallocPage's body, callable while s.mu is already
// held (the header.Next recursion must not re-lock a non-reentrant mutex).
func (s *Store) deallocPageLocked(header PageHeader) error {
	hpID := header.HeaderPageID
	buf, err := s.readHeaderPage(hpID)
	if err != nil {
		return err
	}
	self := selfHeader(buf)
	count := entryCount(self)
	idx := -1
	for i := 0; i < count; i++ {
		if entryAt(buf, i).ID == header.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return dbeeerr.Newf(dbeeerr.Corruption, "page %d not registered in header page %d", header.ID, hpID)
	}
	for i := idx; i < count-1; i++ {
		putEntryAt(buf, i, entryAt(buf, i+1))
	}
	self.Used -= headerEntrySize
	putSelfHeader(buf, self)
	if err := s.writeHeaderPage(hpID, buf); err != nil {
		return err
	}
	if err := s.freeID(header.ID); err != nil {
		return err
	}

	if entryCount(self) == 0 && hpID != 0 {
		if err := s.spliceOutHeaderPage(hpID); err != nil {
			return err
		}
	}

	if header.Next != 0 {
		next, found, err := s.isPageLocked(header.Next)
		if err != nil {
			return err
		}
		if found {
			if err := s.deallocPageLocked(next); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) spliceOutHeaderPage(hpID uint64) error {
	chain, err := s.headerChainIDs()
	if err != nil {
		return err
	}
	var prevID uint64
	found := false
	for i, id := range chain {
		if id == hpID {
			if i == 0 {
				return dbeeerr.New(dbeeerr.Corruption, "cannot splice out page 0")
			}
			prevID = chain[i-1]
			found = true
			break
		}
	}
	if !found {
		return dbeeerr.Newf(dbeeerr.Corruption, "header page %d not in chain", hpID)
	}
	selfBuf, err := s.readHeaderPage(hpID)
	if err != nil {
		return err
	}
	self := selfHeader(selfBuf)

	prevBuf, err := s.readHeaderPage(prevID)
	if err != nil {
		return err
	}
	prevSelf := selfHeader(prevBuf)
	prevSelf.Next = self.Next
	putSelfHeader(prevBuf, prevSelf)
	if err := s.writeHeaderPage(prevID, prevBuf); err != nil {
		return err
	}
	return s.freeID(hpID)
}

// ReadPage returns the full PageSize payload of a registered data page.
func (s *Store) ReadPage(header PageHeader) ([]byte, error) {
	return s.h.ReadAt(pageOffset(header.ID), PageSize)
}

// WritePage writes the data page's bytes, then updates Used in the
// header's home header page. The payload write happens first so a crash
// between the two leaves only a stale Used value, never corrupted row
// bytes.
func (s *Store) WritePage(header PageHeader, data []byte, usedPrime uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(data) > PageSize {
		return dbeeerr.Newf(dbeeerr.Storage, "page payload of %d bytes exceeds page size %d", len(data), PageSize)
	}
	buf := make([]byte, PageSize)
	copy(buf, data)
	if err := s.h.WriteAt(pageOffset(header.ID), buf); err != nil {
		return err
	}

	hpBuf, err := s.readHeaderPage(header.HeaderPageID)
	if err != nil {
		return err
	}
	if header.IsSelfHeader() {
		self := selfHeader(hpBuf)
		if self.ID != header.ID {
			return dbeeerr.Newf(dbeeerr.Corruption, "stale header: header page %d no longer has id %d", header.HeaderPageID, header.ID)
		}
		self.Used = usedPrime
		putSelfHeader(hpBuf, self)
		return s.writeHeaderPage(header.HeaderPageID, hpBuf)
	}
	self := selfHeader(hpBuf)
	count := entryCount(self)
	if header.EntryIndex < 0 || header.EntryIndex >= count || entryAt(hpBuf, header.EntryIndex).ID != header.ID {
		// Stale header context: re-locate by id before giving up.
		fresh, found, err := s.isPageLocked(header.ID)
		if err != nil {
			return err
		}
		if !found {
			return dbeeerr.Newf(dbeeerr.Corruption, "stale header: page %d no longer registered", header.ID)
		}
		header = fresh
		hpBuf, err = s.readHeaderPage(header.HeaderPageID)
		if err != nil {
			return err
		}
	}
	entry := entryAt(hpBuf, header.EntryIndex)
	entry.Used = usedPrime
	putEntryAt(hpBuf, header.EntryIndex, entry)
	return s.writeHeaderPage(header.HeaderPageID, hpBuf)
}

// IterFunc is invoked for each registered data page in header-chain order.
// Returning stop=true ends the traversal early.
type IterFunc func(header PageHeader, payload []byte) (stop bool, err error)

// Iterate visits every registered data page exactly once, in header-chain
// order.
func (s *Store) Iterate(f IterFunc) error {
	return s.IterateFrom(0, f)
}

// IterateFrom resumes a traversal at the data page with id startID
// (inclusive); if startID is 0 and page 0 is never a data page, iteration
// starts from the very first registered data page.
//
// The callback may itself call WritePage/DeallocPage/AllocPage (as
// DeleteRow's compaction pass does): IterateFrom does not hold s.mu across
// the callback, only while taking its own snapshot of the header chain, so
// those calls do not deadlock against a non-reentrant mutex. Callers own
// their own higher-level serialization (tablestore.Table.mu guards every
// public Table method end to end).
func (s *Store) IterateFrom(startID uint64, f IterFunc) error {
	s.mu.Lock()
	chain, err := s.headerChainIDs()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	skipping := startID != 0
	for _, hpID := range chain {
		buf, err := s.readHeaderPage(hpID)
		if err != nil {
			return err
		}
		self := selfHeader(buf)
		count := entryCount(self)
		for i := 0; i < count; i++ {
			e := entryAt(buf, i)
			e.HeaderPageID = hpID
			if skipping {
				if e.ID != startID {
					continue
				}
				skipping = false
			}
			payload, err := s.ReadPage(e)
			if err != nil {
				return err
			}
			stop, err := f(e, payload)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}
