// Package executor implements the per-database executor and cursor
// registry: it translates a parsed query plan into table-store calls and
// hands back opaque cursor handles so a client can stream a SELECT's
// remaining rows across multiple requests.
package executor

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/d-bee/dbee/internal/catalog"
	"github.com/d-bee/dbee/internal/dbeeerr"
	"github.com/d-bee/dbee/internal/query"
	"github.com/d-bee/dbee/internal/tablestore"
	"github.com/d-bee/dbee/internal/types"
)

// Result is what Run hands back to the caller (the server's dispatch
// layer), covering every shape a plan can produce: a row plus a fresh
// cursor handle (SELECT's first match), or neither (a SELECT with no match,
// or CREATE/DROP/INSERT/DELETE's "successful" acknowledgement). Stepping a
// cursor goes through Next, which returns the row directly.
type Result struct {
	Row       types.Row
	HasRow    bool
	Handle    uuid.UUID
	HasHandle bool
}

type cursorEntry struct {
	tableName string
	cur       *tablestore.Cursor
}

// Executor owns one database's table handles and its cursor registry.
type Executor struct {
	dir string

	tablesMu sync.RWMutex
	tables   map[string]*tablestore.Table
	schema   *catalog.TableCatalog

	cursorsMu sync.Mutex
	cursors   map[uuid.UUID]*cursorEntry
}

// Open opens (creating if necessary) the database directory dir: its
// table-schema catalog, and every table already on record, so a restart
// against the same directory sees the same tables.
func Open(dir string) (*Executor, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dbeeerr.Wrap(dbeeerr.Storage, "create database directory", err)
	}
	sc, err := catalog.OpenTableCatalog(dir)
	if err != nil {
		return nil, err
	}
	e := &Executor{
		dir:     dir,
		tables:  map[string]*tablestore.Table{},
		schema:  sc,
		cursors: map[uuid.UUID]*cursorEntry{},
	}
	known, err := sc.GetTableData()
	if err != nil {
		return nil, err
	}
	for name, schema := range known {
		t, err := tablestore.Open(e.tablePath(name), schema)
		if err != nil {
			return nil, err
		}
		e.tables[name] = t
	}
	return e, nil
}

func (e *Executor) tablePath(name string) string {
	return filepath.Join(e.dir, name+".hive")
}

// Close closes every open table handle and the schema catalog.
func (e *Executor) Close() error {
	e.tablesMu.Lock()
	defer e.tablesMu.Unlock()
	var firstErr error
	for _, t := range e.tables {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.schema.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Evict removes a cursor handle without returning its current row. The
// server calls this for every handle it minted on a connection that has
// since disconnected.
func (e *Executor) Evict(handle uuid.UUID) {
	e.cursorsMu.Lock()
	delete(e.cursors, handle)
	e.cursorsMu.Unlock()
}

func operatorFromToken(tok string) (tablestore.Operator, error) {
	switch tok {
	case "==":
		return tablestore.Equal, nil
	case "!=":
		return tablestore.NotEqual, nil
	case "<":
		return tablestore.Less, nil
	case "<=":
		return tablestore.LessOrEqual, nil
	case ">":
		return tablestore.Bigger, nil
	case ">=":
		return tablestore.BiggerOrEqual, nil
	default:
		return 0, dbeeerr.Newf(dbeeerr.InvalidInput, "unknown operator %q", tok)
	}
}

func first(plan query.Bindings, key string) (string, bool) {
	vals, ok := plan[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// buildPredicate assembles an optional predicate from the plan's
// predicate_col/operator/predicate_val bindings: all three present means
// a predicate, otherwise nil matches every row.
func (e *Executor) buildPredicate(table *tablestore.Table, plan query.Bindings) (*tablestore.Predicate, error) {
	col, hasCol := first(plan, "predicate_col")
	opTok, hasOp := first(plan, "operator")
	val, hasVal := first(plan, "predicate_val")
	if !hasCol || !hasOp || !hasVal {
		return nil, nil
	}
	op, err := operatorFromToken(opTok)
	if err != nil {
		return nil, err
	}
	v, err := table.CreateValue(col, val)
	if err != nil {
		return nil, err
	}
	return &tablestore.Predicate{Column: col, Op: op, Value: v}, nil
}

func projectionFrom(plan query.Bindings) []string {
	cols := plan["column_name"]
	if len(cols) == 0 {
		return nil
	}
	return cols
}

// Run dispatches a parsed plan against this database and returns the
// caller-visible result.
func (e *Executor) Run(plan query.Bindings) (Result, error) {
	cmd, ok := first(plan, "command")
	if !ok {
		return Result{}, dbeeerr.New(dbeeerr.InvalidInput, "plan has no command")
	}
	switch cmd {
	case "create":
		return Result{}, e.create(plan)
	case "drop":
		return Result{}, e.drop(plan)
	case "insert":
		return Result{}, e.insert(plan)
	case "select":
		return e.selectCmd(plan)
	case "delete":
		return Result{}, e.deleteCmd(plan)
	default:
		return Result{}, dbeeerr.Newf(dbeeerr.InvalidInput, "unknown command %q", cmd)
	}
}

func (e *Executor) create(plan query.Bindings) error {
	name, ok := first(plan, "table_name")
	if !ok {
		return dbeeerr.New(dbeeerr.InvalidInput, "create table: missing table name")
	}
	names := plan["column_name"]
	types_ := plan["column_type"]
	if len(names) != len(types_) {
		return dbeeerr.Newf(dbeeerr.InvalidInput, "create table %q: %d column names but %d column types", name, len(names), len(types_))
	}
	if len(names) == 0 {
		return dbeeerr.Newf(dbeeerr.InvalidInput, "create table %q: no columns", name)
	}

	e.tablesMu.Lock()
	defer e.tablesMu.Unlock()
	if _, exists := e.tables[name]; exists {
		return dbeeerr.Newf(dbeeerr.AlreadyExists, "table %q already exists", name)
	}

	schema := make(types.Schema, len(names))
	for i := range names {
		kind, err := types.ParseKind(strings.ToUpper(types_[i]))
		if err != nil {
			return err
		}
		schema[i] = types.ColumnDescriptor{Type: kind, Name: names[i]}
	}
	for _, col := range schema {
		if err := e.schema.AddColData(name, col.Type, col.Name); err != nil {
			return err
		}
	}
	t, err := tablestore.Open(e.tablePath(name), schema)
	if err != nil {
		return err
	}
	e.tables[name] = t
	return nil
}

func (e *Executor) drop(plan query.Bindings) error {
	name, ok := first(plan, "table_name")
	if !ok {
		return dbeeerr.New(dbeeerr.InvalidInput, "drop table: missing table name")
	}
	e.tablesMu.Lock()
	defer e.tablesMu.Unlock()
	t, exists := e.tables[name]
	if !exists {
		return dbeeerr.Newf(dbeeerr.NotFound, "table %q does not exist", name)
	}
	if err := e.schema.RemoveTableData(name); err != nil {
		return err
	}
	delete(e.tables, name)
	path := e.tablePath(name)
	if err := t.Close(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return dbeeerr.Wrap(dbeeerr.Storage, "remove table file", err)
	}
	return nil
}

func (e *Executor) lookupTable(name string) (*tablestore.Table, error) {
	e.tablesMu.RLock()
	defer e.tablesMu.RUnlock()
	t, ok := e.tables[name]
	if !ok {
		return nil, dbeeerr.Newf(dbeeerr.NotFound, "table %q does not exist", name)
	}
	return t, nil
}

func (e *Executor) insert(plan query.Bindings) error {
	name, ok := first(plan, "table_name")
	if !ok {
		return dbeeerr.New(dbeeerr.InvalidInput, "insert: missing table name")
	}
	t, err := e.lookupTable(name)
	if err != nil {
		return err
	}
	var names []string
	if len(plan["column_name"]) > 0 {
		names = plan["column_name"]
	}
	values := plan["column_value"]
	row, err := t.ColsToRow(names, values)
	if err != nil {
		return err
	}
	return t.InsertRow(row)
}

func (e *Executor) newCursorHandle() uuid.UUID {
	for {
		h := uuid.New()
		e.cursorsMu.Lock()
		_, exists := e.cursors[h]
		if !exists {
			e.cursorsMu.Unlock()
			return h
		}
		e.cursorsMu.Unlock()
	}
}

// selectCmd runs SELECT: the table map is read-locked, then the cursor
// registry is mutex-locked, in that order, to avoid deadlocking against
// drop's map-write lock.
func (e *Executor) selectCmd(plan query.Bindings) (Result, error) {
	name, ok := first(plan, "table_name")
	if !ok {
		return Result{}, dbeeerr.New(dbeeerr.InvalidInput, "select: missing table name")
	}
	t, err := e.lookupTable(name)
	if err != nil {
		return Result{}, err
	}
	pred, err := e.buildPredicate(t, plan)
	if err != nil {
		return Result{}, err
	}
	cur, row, found, err := t.SelectRow(pred, projectionFrom(plan))
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, nil
	}
	handle := e.newCursorHandle()
	e.cursorsMu.Lock()
	e.cursors[handle] = &cursorEntry{tableName: name, cur: cur}
	e.cursorsMu.Unlock()
	return Result{Row: row, HasRow: true, Handle: handle, HasHandle: true}, nil
}

func (e *Executor) deleteCmd(plan query.Bindings) error {
	name, ok := first(plan, "table_name")
	if !ok {
		return dbeeerr.New(dbeeerr.InvalidInput, "delete: missing table name")
	}
	t, err := e.lookupTable(name)
	if err != nil {
		return err
	}
	pred, err := e.buildPredicate(t, plan)
	if err != nil {
		return err
	}
	_, err = t.DeleteRow(pred)
	return err
}

// Next steps the cursor named by handle and returns its next row, or
// not-found if handle is stale or unknown.
func (e *Executor) Next(handle uuid.UUID) (types.Row, bool, error) {
	e.cursorsMu.Lock()
	entry, ok := e.cursors[handle]
	e.cursorsMu.Unlock()
	if !ok {
		return nil, false, dbeeerr.Newf(dbeeerr.NotFound, "unknown cursor handle")
	}
	t, err := e.lookupTable(entry.tableName)
	if err != nil {
		return nil, false, err
	}
	row, found, err := t.Next(entry.cur)
	if err != nil {
		return nil, false, err
	}
	return row, found, nil
}
