package executor

import (
	"testing"

	"github.com/d-bee/dbee/internal/query"
)

func mustParse(t *testing.T, text string) query.Bindings {
	t.Helper()
	plan, err := query.Parse(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	return plan
}

func TestCreateInsertSelectDelete(t *testing.T) {
	e, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, err := e.Run(mustParse(t, "create table users (name text, age number);")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.Run(mustParse(t, `insert into users values ("alice", 30);`)); err != nil {
		t.Fatalf("insert alice: %v", err)
	}
	if _, err := e.Run(mustParse(t, `insert into users values ("bob", 10);`)); err != nil {
		t.Fatalf("insert bob: %v", err)
	}

	result, err := e.Run(mustParse(t, "select * from users where age >= 10;"))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !result.HasHandle {
		t.Fatal("expected a cursor handle for a matching select")
	}
	if result.Row[0].Text != "alice" {
		t.Fatalf("expected alice first, got %+v", result.Row)
	}

	row, found, err := e.Next(result.Handle)
	if err != nil {
		t.Fatal(err)
	}
	if !found || row[0].Text != "bob" {
		t.Fatalf("expected bob second, got %+v found=%v", row, found)
	}
	_, found, err = e.Next(result.Handle)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected cursor exhausted")
	}

	if _, err := e.Run(mustParse(t, `delete from users where name == "alice";`)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	result, err = e.Run(mustParse(t, "select * from users;"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.HasHandle || result.Row[0].Text != "bob" {
		t.Fatalf("expected only bob left, got %+v", result)
	}
}

func TestSelectNoMatchReturnsNoHandle(t *testing.T) {
	e, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, err := e.Run(mustParse(t, "create table t (n number);")); err != nil {
		t.Fatal(err)
	}
	result, err := e.Run(mustParse(t, "select * from t;"))
	if err != nil {
		t.Fatal(err)
	}
	if result.HasHandle {
		t.Fatal("expected no cursor handle on an empty table")
	}
}

func TestEvictForgetsHandle(t *testing.T) {
	e, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, err := e.Run(mustParse(t, "create table t (n number);")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(mustParse(t, "insert into t values (1);")); err != nil {
		t.Fatal(err)
	}
	result, err := e.Run(mustParse(t, "select * from t;"))
	if err != nil {
		t.Fatal(err)
	}
	e.Evict(result.Handle)
	if _, _, err := e.Next(result.Handle); err == nil {
		t.Fatal("expected evicted handle to be unknown")
	}
}

func TestDropThenCreateReusesName(t *testing.T) {
	e, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, err := e.Run(mustParse(t, "create table t (n number);")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(mustParse(t, "drop table t;")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(mustParse(t, "create table t (n number);")); err != nil {
		t.Fatalf("recreate after drop: %v", err)
	}
}

func TestRehydrationAfterReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(mustParse(t, "create table t (n number);")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(mustParse(t, "insert into t values (7);")); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	e2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer e2.Close()
	result, err := e2.Run(mustParse(t, "select * from t;"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.HasHandle || result.Row[0].Num != 7 {
		t.Fatalf("expected row surviving reopen, got %+v", result)
	}
}
