package query

import (
	"strings"
	"testing"
)

func TestParseCreate(t *testing.T) {
	plan, err := Parse("CREATE TABLE users (name TEXT, age NUMBER);")
	if err != nil {
		t.Fatal(err)
	}
	if got := plan["command"]; len(got) != 1 || got[0] != "create" {
		t.Fatalf("command = %v", got)
	}
	if got := plan["table_name"]; len(got) != 1 || got[0] != "users" {
		t.Fatalf("table_name = %v", got)
	}
	wantNames := []string{"name", "age"}
	wantTypes := []string{"TEXT", "NUMBER"}
	for i, name := range plan["column_name"] {
		if name != wantNames[i] {
			t.Fatalf("column_name[%d] = %q, want %q", i, name, wantNames[i])
		}
	}
	for i, typ := range plan["column_type"] {
		if typ != wantTypes[i] {
			t.Fatalf("column_type[%d] = %q, want %q", i, typ, wantTypes[i])
		}
	}
}

func TestParseInsertWithAndWithoutColumns(t *testing.T) {
	plan, err := Parse("insert into t (a, b) values (1, 2);")
	if err != nil {
		t.Fatal(err)
	}
	if len(plan["column_name"]) != 2 || len(plan["column_value"]) != 2 {
		t.Fatalf("unexpected bindings %v", plan)
	}

	plan, err = Parse("insert into t values (1, 2, 3);")
	if err != nil {
		t.Fatal(err)
	}
	if len(plan["column_name"]) != 0 {
		t.Fatalf("expected no column names, got %v", plan["column_name"])
	}
	if len(plan["column_value"]) != 3 {
		t.Fatalf("expected 3 values, got %v", plan["column_value"])
	}
}

func TestParseSelectStarLeavesProjectionEmpty(t *testing.T) {
	plan, err := Parse("select * from t;")
	if err != nil {
		t.Fatal(err)
	}
	if len(plan["column_name"]) != 0 {
		t.Fatalf("star projection should bind no column names, got %v", plan["column_name"])
	}
}

func TestParseSelectWithPredicate(t *testing.T) {
	plan, err := Parse("select a, b from t where a >= 10;")
	if err != nil {
		t.Fatal(err)
	}
	if got := plan["column_name"]; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("projection = %v", got)
	}
	if got := plan["predicate_col"]; len(got) != 1 || got[0] != "a" {
		t.Fatalf("predicate_col = %v", got)
	}
	if got := plan["operator"]; len(got) != 1 || got[0] != ">=" {
		t.Fatalf("operator = %v", got)
	}
	if got := plan["predicate_val"]; len(got) != 1 || got[0] != "10" {
		t.Fatalf("predicate_val = %v", got)
	}
}

func TestParseDeleteWithoutPredicate(t *testing.T) {
	plan, err := Parse("delete from t;")
	if err != nil {
		t.Fatal(err)
	}
	if got := plan["command"]; len(got) != 1 || got[0] != "delete" {
		t.Fatalf("command = %v", got)
	}
	if len(plan["predicate_col"]) != 0 {
		t.Fatalf("expected no predicate, got %v", plan["predicate_col"])
	}
}

func TestParseDrop(t *testing.T) {
	plan, err := Parse("DROP TABLE old;")
	if err != nil {
		t.Fatal(err)
	}
	if got := plan["table_name"]; len(got) != 1 || got[0] != "old" {
		t.Fatalf("table_name = %v", got)
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		"select from t;",
		"create table t;",
		"insert into t values (1, 2)", // missing terminator
		"select * from t; extra",
		"frobnicate the database;",
	}
	for _, q := range cases {
		if _, err := Parse(q); err == nil {
			t.Errorf("expected %q to fail to parse", q)
		}
	}
}

func TestParseErrorNamesOffendingToken(t *testing.T) {
	_, err := Parse("select * frm t;")
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if !strings.Contains(err.Error(), "frm") {
		t.Fatalf("error should name the offending token, got %q", err)
	}
}

func TestTokenizeOperators(t *testing.T) {
	tokens, err := Tokenize("a >= 1 b <= 2 c == 3 d != 4 e < 5 f > 6")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", ">=", "1", "b", "<=", "2", "c", "==", "3", "d", "!=", "4", "e", "<", "5", "f", ">", "6"}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(tokens), tokens, len(want))
	}
	for i, tok := range tokens {
		if tok != want[i] {
			t.Fatalf("token[%d] = %q, want %q", i, tok, want[i])
		}
	}
}
