package query

import "github.com/d-bee/dbee/internal/dbeeerr"

// Parse tokenizes and matches query against the five recognized
// statement grammars, returning the plan map the executor consumes.
func Parse(query string) (Bindings, error) {
	tokens, err := Tokenize(query)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, dbeeerr.New(dbeeerr.InvalidInput, "empty query")
	}

	acc := Bindings{}
	remaining, err := solve(statementGrammar(), tokens, acc)
	if err != nil {
		return nil, err
	}
	if len(remaining) != 0 {
		return nil, dbeeerr.Newf(dbeeerr.InvalidInput, "unexpected trailing input starting at %q", remaining[0])
	}
	return acc, nil
}
