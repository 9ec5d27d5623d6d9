package tablestore

import (
	"path/filepath"
	"testing"

	"github.com/d-bee/dbee/internal/types"
)

func newTestTable(t *testing.T, schema types.Schema) *Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t.hive")
	tbl, err := Open(path, schema)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func TestInsertSelectCycle(t *testing.T) {
	schema := types.Schema{{Type: types.Text, Name: "a"}, {Type: types.Number, Name: "b"}}
	tbl := newTestTable(t, schema)

	if err := tbl.InsertRow(types.Row{types.TextValue("alice"), types.NumberValue(30)}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.InsertRow(types.Row{types.TextValue("bob"), types.NumberValue(10)}); err != nil {
		t.Fatal(err)
	}

	pred := &Predicate{Column: "b", Op: Equal, Value: types.NumberValue(10)}
	cur, row, found, err := tbl.SelectRow(pred, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected a row")
	}
	if row[0].Text != "bob" || row[1].Num != 10 {
		t.Fatalf("unexpected row %+v", row)
	}
	_, found, err = tbl.Next(cur)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected no further rows")
	}
}

func TestDeleteWithPredicate(t *testing.T) {
	schema := types.Schema{{Type: types.Text, Name: "a"}, {Type: types.Number, Name: "b"}}
	tbl := newTestTable(t, schema)
	tbl.InsertRow(types.Row{types.TextValue("alice"), types.NumberValue(30)})
	tbl.InsertRow(types.Row{types.TextValue("bob"), types.NumberValue(10)})

	n, err := tbl.DeleteRow(&Predicate{Column: "a", Op: Equal, Value: types.TextValue("alice")})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}

	_, row, found, err := tbl.SelectRow(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !found || row[0].Text != "bob" {
		t.Fatalf("expected only bob left, got %+v found=%v", row, found)
	}
}

func TestProjectionPreservesOrder(t *testing.T) {
	schema := types.Schema{
		{Type: types.Text, Name: "x"},
		{Type: types.Text, Name: "y"},
		{Type: types.Number, Name: "z"},
	}
	tbl := newTestTable(t, schema)
	tbl.InsertRow(types.Row{types.TextValue("p"), types.TextValue("q"), types.NumberValue(1)})
	tbl.InsertRow(types.Row{types.TextValue("r"), types.TextValue("s"), types.NumberValue(2)})

	pred := &Predicate{Column: "z", Op: BiggerOrEqual, Value: types.NumberValue(1)}
	cur, row1, found, err := tbl.SelectRow(pred, []string{"z", "x"})
	if err != nil {
		t.Fatal(err)
	}
	if !found || len(row1) != 2 || row1[0].Text != "p" || row1[1].Num != 1 {
		t.Fatalf("unexpected projected row %+v", row1)
	}
	row2, found, err := tbl.Next(cur)
	if err != nil {
		t.Fatal(err)
	}
	if !found || row2[0].Text != "r" || row2[1].Num != 2 {
		t.Fatalf("unexpected second projected row %+v", row2)
	}
}

func TestPageBoundarySpansMultiplePages(t *testing.T) {
	schema := types.Schema{{Type: types.Text, Name: "padding"}, {Type: types.Number, Name: "n"}}
	tbl := newTestTable(t, schema)

	padding := make([]byte, 580)
	for i := range padding {
		padding[i] = 'x'
	}
	for i := 0; i < 20; i++ {
		row := types.Row{types.TextValue(string(padding)), types.NumberValue(uint64(i))}
		if err := tbl.InsertRow(row); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	seen := map[uint64]bool{}
	cur, row, found, err := tbl.SelectRow(nil, nil)
	for found {
		seen[row[1].Num] = true
		row, found, err = tbl.Next(cur)
		if err != nil {
			t.Fatal(err)
		}
	}
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 20 {
		t.Fatalf("expected 20 distinct rows, saw %d", len(seen))
	}

	n, err := tbl.DeleteRow(nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 20 {
		t.Fatalf("expected to delete 20 rows, deleted %d", n)
	}
	_, _, found, err = tbl.SelectRow(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected table empty after deleting everything")
	}
}
