package catalog

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/d-bee/dbee/internal/dbeeerr"
	"github.com/d-bee/dbee/internal/tablestore"
	"github.com/d-bee/dbee/internal/types"
)

// tableSchemaColumns is the fixed schema of the schema.hive catalog
// table: (table_id, col_name, col_type, col_id).
var tableSchemaColumns = types.Schema{
	{Type: types.Text, Name: "table_id"},
	{Type: types.Text, Name: "col_name"},
	{Type: types.Number, Name: "col_type"},
	{Type: types.Number, Name: "col_id"},
}

// TableCatalog is the per-database table-schema catalog: one row per
// (table, column) pair, reconstructed into an ordered Schema on read.
type TableCatalog struct {
	mu    sync.Mutex
	table *tablestore.Table
}

// OpenTableCatalog opens (creating if necessary) the schema.hive file in
// dbDir.
func OpenTableCatalog(dbDir string) (*TableCatalog, error) {
	t, err := tablestore.Open(filepath.Join(dbDir, "schema.hive"), tableSchemaColumns)
	if err != nil {
		return nil, err
	}
	return &TableCatalog{table: t}, nil
}

func (c *TableCatalog) Close() error { return c.table.Close() }

// AddColData appends one (type, name) column to table's schema. Fails
// with already-exists if a column of that name is already registered for
// table; the new column's col_id is the count of existing columns.
func (c *TableCatalog) AddColData(table string, colType types.Kind, colName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.getColDataLocked(table)
	if err != nil {
		return err
	}
	for _, col := range existing {
		if col.Name == colName {
			return dbeeerr.Newf(dbeeerr.AlreadyExists, "column %q already exists on table %q", colName, table)
		}
	}
	colID := len(existing)
	row := types.Row{
		types.TextValue(table),
		types.TextValue(colName),
		types.NumberValue(uint64(colType)),
		types.NumberValue(uint64(colID)),
	}
	return c.table.InsertRow(row)
}

func (c *TableCatalog) getColDataLocked(table string) (types.Schema, error) {
	type entry struct {
		colID int
		col   types.ColumnDescriptor
	}
	var entries []entry
	pred := &tablestore.Predicate{Column: "table_id", Op: tablestore.Equal, Value: types.TextValue(table)}
	cur, row, found, err := c.table.SelectRow(pred, nil)
	if err != nil {
		return nil, err
	}
	for found {
		colID, colName, colType, err := decodeSchemaRow(c.table, row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{colID: colID, col: types.ColumnDescriptor{Type: colType, Name: colName}})
		row, found, err = c.table.Next(cur)
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].colID < entries[j].colID })
	out := make(types.Schema, len(entries))
	for i, e := range entries {
		out[i] = e.col
	}
	return out, nil
}

// GetColData returns table's column list, ordered by col_id.
func (c *TableCatalog) GetColData(table string) (types.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getColDataLocked(table)
}

// GetTableData returns every known table's schema, keyed by table name.
func (c *TableCatalog) GetTableData() (map[string]types.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type entry struct {
		colID int
		col   types.ColumnDescriptor
	}
	grouped := map[string][]entry{}
	cur, row, found, err := c.table.SelectRow(nil, nil)
	if err != nil {
		return nil, err
	}
	for found {
		tableID, err := c.table.GetCol(row, "table_id")
		if err != nil {
			return nil, err
		}
		colID, colName, colType, err := decodeSchemaRow(c.table, row)
		if err != nil {
			return nil, err
		}
		grouped[tableID.Text] = append(grouped[tableID.Text], entry{colID: colID, col: types.ColumnDescriptor{Type: colType, Name: colName}})
		row, found, err = c.table.Next(cur)
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]types.Schema, len(grouped))
	for tableName, entries := range grouped {
		sort.Slice(entries, func(i, j int) bool { return entries[i].colID < entries[j].colID })
		schema := make(types.Schema, len(entries))
		for i, e := range entries {
			schema[i] = e.col
		}
		out[tableName] = schema
	}
	return out, nil
}

// RemoveTableData deletes every schema row for table.
func (c *TableCatalog) RemoveTableData(table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.table.DeleteRow(&tablestore.Predicate{Column: "table_id", Op: tablestore.Equal, Value: types.TextValue(table)})
	return err
}

func decodeSchemaRow(t *tablestore.Table, row types.Row) (colID int, colName string, colType types.Kind, err error) {
	nameVal, err := t.GetCol(row, "col_name")
	if err != nil {
		return 0, "", 0, err
	}
	typeVal, err := t.GetCol(row, "col_type")
	if err != nil {
		return 0, "", 0, err
	}
	idVal, err := t.GetCol(row, "col_id")
	if err != nil {
		return 0, "", 0, err
	}
	return int(idVal.Num), nameVal.Text, types.Kind(typeVal.Num), nil
}
