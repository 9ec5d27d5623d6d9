package query

// Concrete grammars for the five recognized statements. Each binds the
// plan keys the executor consumes: command, table_name, column_name,
// column_type, column_value, operator, predicate_col, predicate_val.

func columnDefList() *Symbol {
	def := Seq(V("column_name"), V("column_type"))
	return Seq(def, Rpt(Seq(T(","), def)))
}

func columnNameList() *Symbol {
	return Seq(V("column_name"), Rpt(Seq(T(","), V("column_name"))))
}

func valueList() *Symbol {
	return Seq(V("column_value"), Rpt(Seq(T(","), V("column_value"))))
}

func wherePredicate() *Symbol {
	return O(
		Seq(T("where"), V("predicate_col"), V("operator"), V("predicate_val")),
		Seq(),
	)
}

func createGrammar() *Symbol {
	return Seq(
		W(T("create"), "command", "create"),
		T("table"),
		V("table_name"),
		T("("),
		columnDefList(),
		T(")"),
		T(";"),
	)
}

func dropGrammar() *Symbol {
	return Seq(
		W(T("drop"), "command", "drop"),
		T("table"),
		V("table_name"),
		T(";"),
	)
}

func insertGrammar() *Symbol {
	optionalCols := O(Seq(T("("), columnNameList(), T(")")), Seq())
	return Seq(
		W(T("insert"), "command", "insert"),
		T("into"),
		V("table_name"),
		optionalCols,
		T("values"),
		T("("),
		valueList(),
		T(")"),
		T(";"),
	)
}

func selectGrammar() *Symbol {
	projection := O(T("*"), columnNameList())
	return Seq(
		W(T("select"), "command", "select"),
		projection,
		T("from"),
		V("table_name"),
		wherePredicate(),
		T(";"),
	)
}

func deleteGrammar() *Symbol {
	return Seq(
		W(T("delete"), "command", "delete"),
		T("from"),
		V("table_name"),
		wherePredicate(),
		T(";"),
	)
}

func statementGrammar() *Symbol {
	return O(
		createGrammar(),
		dropGrammar(),
		insertGrammar(),
		selectGrammar(),
		deleteGrammar(),
	)
}
