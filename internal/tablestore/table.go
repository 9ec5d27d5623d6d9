package tablestore

import (
	"sort"
	"sync"

	"github.com/d-bee/dbee/internal/dbeeerr"
	"github.com/d-bee/dbee/internal/fileio"
	"github.com/d-bee/dbee/internal/pagestore"
	"github.com/d-bee/dbee/internal/types"
)

// Operator is a predicate comparison operator.
type Operator int

const (
	Equal Operator = iota
	NotEqual
	Less
	LessOrEqual
	Bigger
	BiggerOrEqual
)

// Predicate is a (column, operator, value) triple applied to each
// candidate row; a nil *Predicate matches every row.
type Predicate struct {
	Column string
	Op     Operator
	Value  types.Value
}

// matches evaluates the predicate against one row, given the row's
// schema to locate the column.
func (pred *Predicate) matches(schema types.Schema, row types.Row) (bool, error) {
	if pred == nil {
		return true, nil
	}
	idx := schema.IndexOf(pred.Column)
	if idx < 0 {
		return false, dbeeerr.Newf(dbeeerr.InvalidInput, "unknown predicate column %q", pred.Column)
	}
	cmp, err := types.Compare(row[idx], pred.Value)
	if err != nil {
		return false, err
	}
	switch pred.Op {
	case Equal:
		return cmp == 0, nil
	case NotEqual:
		return cmp != 0, nil
	case Less:
		return cmp < 0, nil
	case LessOrEqual:
		return cmp <= 0, nil
	case Bigger:
		return cmp > 0, nil
	case BiggerOrEqual:
		return cmp >= 0, nil
	default:
		return false, dbeeerr.Newf(dbeeerr.Internal, "unknown operator %d", pred.Op)
	}
}

// Table is one heap-organized, schema-typed table backed by one page
// store file.
type Table struct {
	mu     sync.Mutex
	handle *fileio.Handle
	pages  *pagestore.Store
	schema types.Schema
}

// Open opens (creating if necessary) the table file at path with the
// given schema.
func Open(path string, schema types.Schema) (*Table, error) {
	h, err := fileio.OpenFile(path)
	if err != nil {
		return nil, err
	}
	ps, err := pagestore.Open(h)
	if err != nil {
		return nil, err
	}
	return &Table{handle: h, pages: ps, schema: schema}, nil
}

func (t *Table) Close() error { return t.handle.Close() }

func (t *Table) Schema() types.Schema { return t.schema }

// CreateValue parses one text value into the schema-declared type of the
// named column.
func (t *Table) CreateValue(colName, text string) (types.Value, error) {
	idx := t.schema.IndexOf(colName)
	if idx < 0 {
		return types.Value{}, dbeeerr.Newf(dbeeerr.InvalidInput, "unknown column %q", colName)
	}
	return types.ParseLiteral(t.schema[idx].Type, text)
}

// ColsToRow projects user-provided string values onto the table's schema.
// If names is non-nil, each name must be a schema column and there must be
// as many names as schema columns (fewer is a missing-columns error); each
// value is paired with the name at the same position and placed in schema
// order. If names is nil, values must appear in schema order, one per
// column.
func (t *Table) ColsToRow(names []string, values []string) (types.Row, error) {
	if names == nil {
		if len(values) != len(t.schema) {
			return nil, dbeeerr.Newf(dbeeerr.InvalidInput, "expected %d values, got %d", len(t.schema), len(values))
		}
		row := make(types.Row, len(t.schema))
		for i, col := range t.schema {
			v, err := types.ParseLiteral(col.Type, values[i])
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		return row, nil
	}

	if len(names) != len(values) {
		return nil, dbeeerr.Newf(dbeeerr.InvalidInput, "column name count %d does not match value count %d", len(names), len(values))
	}
	type pair struct {
		idx int
		val string
	}
	pairs := make([]pair, 0, len(names))
	for i, name := range names {
		idx := t.schema.IndexOf(name)
		if idx < 0 {
			return nil, dbeeerr.Newf(dbeeerr.InvalidInput, "unknown column %q", name)
		}
		pairs = append(pairs, pair{idx: idx, val: values[i]})
	}
	if len(pairs) != len(t.schema) {
		return nil, dbeeerr.Newf(dbeeerr.InvalidInput, "missing columns: expected %d, got %d", len(t.schema), len(pairs))
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].idx < pairs[j].idx })
	row := make(types.Row, len(t.schema))
	for _, p := range pairs {
		v, err := types.ParseLiteral(t.schema[p.idx].Type, p.val)
		if err != nil {
			return nil, err
		}
		row[p.idx] = v
	}
	return row, nil
}

// GetCol retrieves one column by name from a full-arity row.
func (t *Table) GetCol(row types.Row, colName string) (types.Value, error) {
	idx := t.schema.IndexOf(colName)
	if idx < 0 {
		return types.Value{}, dbeeerr.Newf(dbeeerr.InvalidInput, "unknown column %q", colName)
	}
	if idx >= len(row) {
		return types.Value{}, dbeeerr.Newf(dbeeerr.InvalidInput, "row has %d columns, want column %d", len(row), idx)
	}
	return row[idx], nil
}

// InsertRow serializes row, finds a fitting page (or allocates a new
// one), and appends it.
func (t *Table) InsertRow(row types.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	encoded := encodeRow(row)
	need := uint64(len(encoded) + slotSize)
	if len(encoded)+slotSize+2 > pagestore.PageSize {
		return dbeeerr.Newf(dbeeerr.InvalidInput, "row of %d bytes does not fit in a %d-byte page", len(encoded), pagestore.PageSize)
	}

	header, found, err := t.pages.FindFitting(need)
	if err != nil {
		return err
	}
	var buf []byte
	if found {
		payload, err := t.pages.ReadPage(header)
		if err != nil {
			return err
		}
		buf = payload
	} else {
		header, err = t.pages.AllocPage()
		if err != nil {
			return err
		}
		buf = make([]byte, pagestore.PageSize)
	}

	sp := wrapSlottedPage(buf)
	sp.insertRow(encoded)
	return t.pages.WritePage(header, sp.buf, uint64(sp.used()))
}

// Cursor is a resumable point in a table scan: the page header it was
// captured against, the next slot index to examine, and the predicate /
// projection the scan was started with.
type Cursor struct {
	TableName  string
	header     pagestore.PageHeader
	nextSlot   int
	predicate  *Predicate
	projection []string
	exhausted  bool
}

func (t *Table) scanFrom(startHeader pagestore.PageHeader, startSlot int, pred *Predicate) (types.Row, pagestore.PageHeader, int, bool, error) {
	var (
		result    types.Row
		foundAt   pagestore.PageHeader
		foundSlot int
		found     bool
	)
	first := true
	err := t.pages.IterateFrom(startHeader.ID, func(h pagestore.PageHeader, payload []byte) (bool, error) {
		sp := wrapSlottedPage(append([]byte(nil), payload...))
		from := 0
		if first {
			from = startSlot
			first = false
		}
		for i := from; i < sp.slotCount(); i++ {
			row, err := decodeRow(sp.rowBytes(i), t.schema)
			if err != nil {
				return false, err
			}
			ok, err := pred.matches(t.schema, row)
			if err != nil {
				return false, err
			}
			if ok {
				result = row
				foundAt = h
				foundSlot = i + 1
				found = true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, pagestore.PageHeader{}, 0, false, err
	}
	return result, foundAt, foundSlot, found, nil
}

// SelectRow scans pages in header-chain order for the first row matching
// predicate, applies projection if given, and returns a cursor positioned
// just past the match.
func (t *Table) SelectRow(pred *Predicate, projection []string) (*Cursor, types.Row, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, header, slot, found, err := t.scanFrom(pagestore.PageHeader{}, 0, pred)
	if err != nil {
		return nil, nil, false, err
	}
	if !found {
		return nil, nil, false, nil
	}
	projected, err := applyProjection(t.schema, row, projection)
	if err != nil {
		return nil, nil, false, err
	}
	cur := &Cursor{header: header, nextSlot: slot, predicate: pred, projection: projection}
	return cur, projected, true, nil
}

// Next resumes scanning from the cursor's (page, next slot).
func (t *Table) Next(cur *Cursor) (types.Row, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur.exhausted {
		return nil, false, nil
	}
	row, header, slot, found, err := t.scanFrom(cur.header, cur.nextSlot, cur.predicate)
	if err != nil {
		return nil, false, err
	}
	if !found {
		cur.exhausted = true
		return nil, false, nil
	}
	cur.header = header
	cur.nextSlot = slot
	projected, err := applyProjection(t.schema, row, cur.projection)
	if err != nil {
		return nil, false, err
	}
	return projected, true, nil
}

// DeleteRow scans every page, removing every row matching predicate via
// in-place heap compaction, and returns the count removed.
func (t *Table) DeleteRow(pred *Predicate) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	deleted := 0
	err := t.pages.Iterate(func(h pagestore.PageHeader, payload []byte) (bool, error) {
		buf := append([]byte(nil), payload...)
		sp := wrapSlottedPage(buf)
		i := 0
		changed := false
		for i < sp.slotCount() {
			row, err := decodeRow(sp.rowBytes(i), t.schema)
			if err != nil {
				return false, err
			}
			ok, err := pred.matches(t.schema, row)
			if err != nil {
				return false, err
			}
			if ok {
				sp.deleteRow(i)
				deleted++
				changed = true
				continue // do not advance i: the next row now occupies index i
			}
			i++
		}
		if changed {
			if err := t.pages.WritePage(h, sp.buf, uint64(sp.used())); err != nil {
				return false, err
			}
			if sp.slotCount() == 0 {
				if err := t.pages.DeallocPage(h); err != nil {
					return false, err
				}
			}
		}
		return false, nil
	})
	if err != nil {
		return deleted, err
	}
	return deleted, nil
}

// applyProjection drops columns not named in projection, in reverse
// schema order so earlier removals don't invalidate later indices.
func applyProjection(schema types.Schema, row types.Row, projection []string) (types.Row, error) {
	if projection == nil {
		return row, nil
	}
	keep := make(map[int]bool, len(projection))
	for _, name := range projection {
		idx := schema.IndexOf(name)
		if idx < 0 {
			return nil, dbeeerr.Newf(dbeeerr.InvalidInput, "unknown projected column %q", name)
		}
		keep[idx] = true
	}
	out := append(types.Row(nil), row...)
	for i := len(out) - 1; i >= 0; i-- {
		if !keep[i] {
			out = append(out[:i], out[i+1:]...)
		}
	}
	return out, nil
}
