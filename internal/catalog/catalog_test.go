package catalog

import (
	"testing"

	"github.com/d-bee/dbee/internal/types"
)

func TestTableCatalogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenTableCatalog(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.AddColData("t1", types.Text, "name"); err != nil {
		t.Fatal(err)
	}
	if err := c.AddColData("t1", types.Number, "age"); err != nil {
		t.Fatal(err)
	}
	if err := c.AddColData("t2", types.Number, "count"); err != nil {
		t.Fatal(err)
	}

	schema, err := c.GetColData("t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(schema) != 2 || schema[0].Name != "name" || schema[1].Name != "age" {
		t.Fatalf("unexpected schema %+v", schema)
	}

	if err := c.AddColData("t1", types.Text, "name"); err == nil {
		t.Fatal("expected already-exists error for duplicate column")
	}

	all, err := c.GetTableData()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(all))
	}

	if err := c.RemoveTableData("t1"); err != nil {
		t.Fatal(err)
	}
	schema, err = c.GetColData("t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(schema) != 0 {
		t.Fatalf("expected t1 schema empty after removal, got %+v", schema)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	dir := t.TempDir()
	r, err := OpenRegistry(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err := r.AddDatabase("demo", "secretkey"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddDatabase("demo", "other"); err == nil {
		t.Fatal("expected already-exists for duplicate database")
	}
	if !r.CheckKey("demo", "secretkey") {
		t.Fatal("expected key to check out")
	}
	if r.CheckKey("demo", "wrong") {
		t.Fatal("expected wrong key to fail")
	}
	if err := r.RemoveDatabase("demo"); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.GetDatabaseKey("demo"); ok {
		t.Fatal("expected demo to be gone")
	}
}

func TestAdminKeyBootstrapIsStable(t *testing.T) {
	dir := t.TempDir()
	k1, err := LoadOrCreateAdminKey(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(k1) != KeyLength {
		t.Fatalf("expected key of length %d, got %d", KeyLength, len(k1))
	}
	k2, err := LoadOrCreateAdminKey(dir)
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Fatal("expected admin key to persist across calls")
	}
}
