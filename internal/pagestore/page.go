// Package pagestore implements the fixed-size paged file store: an
// intrusive free list plus a chain of header pages, each holding an array
// of 24-byte page headers describing the data pages it owns. The file
// starts with an 8-byte free-list head, followed by page 0 (the first
// header page) and then consecutive PageSize-byte slots.
package pagestore

import "encoding/binary"

// PageSize is the fixed page size P used throughout the storage engine.
const PageSize = 4096

// headerEntrySize is the persisted size of one PageHeader: id, used, next,
// each an 8-byte little-endian integer (24 bytes total).
const headerEntrySize = 24

// freeListHeadOffset is the file offset of the 8-byte free-list head id.
const freeListHeadOffset = 0

// firstPageOffset is the file offset of page 0 (the first header page).
const firstPageOffset = 8

// PageHeader is the persisted (id, used, next) triple for one page, plus
// the transient lookup context populated during traversal. Only ID, Used,
// and Next are written to disk; HeaderPageID and EntryIndex exist only to
// let a caller hand a header back to WritePage/DeallocPage without
// re-walking the chain.
type PageHeader struct {
	ID   uint64
	Used uint64
	Next uint64

	// Transient lookup context, not persisted.
	HeaderPageID uint64
	EntryIndex   int // -1 when this header is a header page's own self-header
}

// IsSelfHeader reports whether this PageHeader describes a header page
// itself rather than a data page registered inside one.
func (h PageHeader) IsSelfHeader() bool { return h.EntryIndex < 0 }

func encodeHeader(h PageHeader) []byte {
	buf := make([]byte, headerEntrySize)
	binary.LittleEndian.PutUint64(buf[0:8], h.ID)
	binary.LittleEndian.PutUint64(buf[8:16], h.Used)
	binary.LittleEndian.PutUint64(buf[16:24], h.Next)
	return buf
}

func decodeHeader(buf []byte) PageHeader {
	return PageHeader{
		ID:   binary.LittleEndian.Uint64(buf[0:8]),
		Used: binary.LittleEndian.Uint64(buf[8:16]),
		Next: binary.LittleEndian.Uint64(buf[16:24]),
	}
}

// entriesPerHeaderPage is how many data-page headers fit after the
// header page's own self-header.
const entriesPerHeaderPage = (PageSize - headerEntrySize) / headerEntrySize

func pageOffset(id uint64) int64 {
	return firstPageOffset + int64(id)*PageSize
}

func selfHeader(buf []byte) PageHeader {
	h := decodeHeader(buf[0:headerEntrySize])
	h.EntryIndex = -1
	h.HeaderPageID = h.ID
	return h
}

func putSelfHeader(buf []byte, h PageHeader) {
	copy(buf[0:headerEntrySize], encodeHeader(h))
}

func entryAt(buf []byte, idx int) PageHeader {
	start := headerEntrySize + idx*headerEntrySize
	h := decodeHeader(buf[start : start+headerEntrySize])
	h.EntryIndex = idx
	return h
}

func putEntryAt(buf []byte, idx int, h PageHeader) {
	start := headerEntrySize + idx*headerEntrySize
	copy(buf[start:start+headerEntrySize], encodeHeader(h))
}

// entryCount returns how many data-page entries a header page (given its
// self.Used) currently holds.
func entryCount(self PageHeader) int {
	return int((self.Used - headerEntrySize) / headerEntrySize)
}
