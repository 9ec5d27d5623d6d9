// Package tablestore implements the slotted-page table store on top of
// pagestore: a forward-growing slot directory, a backward-growing row
// heap, and schema-driven row (de)serialization. Slot offsets are
// end-of-page-relative, and deletes compact the heap in place so the
// slot after a deleted row immediately takes its index.
package tablestore

import (
	"encoding/binary"

	"github.com/d-bee/dbee/internal/pagestore"
)

const slotSize = 2 // bytes per directory slot (u16)

// slottedPage is a thin view over one page's raw payload.
type slottedPage struct {
	buf []byte
}

func wrapSlottedPage(buf []byte) slottedPage { return slottedPage{buf: buf} }

func newSlottedPage() slottedPage {
	buf := make([]byte, pagestore.PageSize)
	return slottedPage{buf: buf}
}

func (p slottedPage) slotCount() int {
	return int(binary.LittleEndian.Uint16(p.buf[0:2]))
}

func (p slottedPage) setSlotCount(n int) {
	binary.LittleEndian.PutUint16(p.buf[0:2], uint16(n))
}

func (p slottedPage) slot(i int) int {
	off := 2 + i*slotSize
	return int(binary.LittleEndian.Uint16(p.buf[off : off+2]))
}

func (p slottedPage) setSlot(i int, v int) {
	off := 2 + i*slotSize
	binary.LittleEndian.PutUint16(p.buf[off:off+2], uint16(v))
}

// slotStart returns the end-of-page-relative offset of the preceding
// row's boundary, i.e. slot[i-1] with slot[-1] = 0.
func (p slottedPage) slotStart(i int) int {
	if i == 0 {
		return 0
	}
	return p.slot(i - 1)
}

// directoryLen is the byte length of the slot_count field plus all slots.
func (p slottedPage) directoryLen() int {
	return 2 + p.slotCount()*slotSize
}

// heapLen is the byte length of the row heap currently in use.
func (p slottedPage) heapLen() int {
	n := p.slotCount()
	if n == 0 {
		return 0
	}
	return p.slot(n - 1)
}

// used is the figure reported to the page store: directory + heap.
func (p slottedPage) used() int {
	return p.directoryLen() + p.heapLen()
}

// freeBytes is how much room is left for a new row of rowSize bytes plus
// its slot entry.
func (p slottedPage) freeBytes() int {
	return pagestore.PageSize - p.used()
}

// rowBytes returns the raw bytes of row i.
func (p slottedPage) rowBytes(i int) []byte {
	start := pagestore.PageSize - p.slot(i)
	end := pagestore.PageSize - p.slotStart(i)
	return p.buf[start:end]
}

// insertRow appends a new row to the heap and directory; the caller must
// have already confirmed freeBytes() >= len(row)+slotSize.
func (p slottedPage) insertRow(row []byte) {
	n := p.slotCount()
	prevEnd := 0
	if n > 0 {
		prevEnd = p.slot(n - 1)
	}
	newEnd := prevEnd + len(row)
	start := pagestore.PageSize - newEnd
	copy(p.buf[start:start+len(row)], row)
	p.setSlot(n, newEnd)
	p.setSlotCount(n + 1)
}

// deleteRow removes row i, compacting the heap in place and shifting the
// directory down. Rows at index > i are relabeled to index-1 but their
// byte contents do not move relative to each other beyond the shift
// needed to close the gap.
func (p slottedPage) deleteRow(i int) {
	n := p.slotCount()
	rowStart := p.slotStart(i)
	rowEnd := p.slot(i)
	rowSize := rowEnd - rowStart
	heapLeftEdge := pagestore.PageSize - p.heapLen()
	deletedStart := pagestore.PageSize - rowEnd

	if deletedStart > heapLeftEdge {
		copy(p.buf[heapLeftEdge+rowSize:deletedStart+rowSize], p.buf[heapLeftEdge:deletedStart])
	}

	for j := i + 1; j < n; j++ {
		p.setSlot(j, p.slot(j)-rowSize)
	}
	for j := i; j < n-1; j++ {
		p.setSlot(j, p.slot(j+1))
	}
	p.setSlotCount(n - 1)
}
