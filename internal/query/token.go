// Package query implements the BNF-style query parser: a fixed-token-set
// tokenizer plus a tagged-sum grammar ({Terminal, Wrapper, Value, Option,
// Repeat, Sequence}) matched against the token stream by a small solver
// that carries the pending grammar symbols as an explicit stack.
package query

import (
	"regexp"
	"strings"

	"github.com/d-bee/dbee/internal/dbeeerr"
)

// tokenPattern matches the fixed token set: word characters, the single
// punctuation characters ( ) ; , *, and the two-character comparison
// operators (tried before their one-character prefixes).
var tokenPattern = regexp.MustCompile(`\w+|[();,*]|>=|<=|==|!=|<|>`)

// Tokenize splits a query string into its token stream. Word tokens keep
// their original case; keyword comparisons are done case-insensitively at
// match time so identifiers are never silently re-cased.
func Tokenize(input string) ([]string, error) {
	matches := tokenPattern.FindAllString(input, -1)
	if matches == nil && strings.TrimSpace(input) != "" {
		return nil, dbeeerr.Newf(dbeeerr.InvalidInput, "no recognizable tokens in %q", input)
	}
	return matches, nil
}
