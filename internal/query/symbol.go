package query

import (
	"strings"

	"github.com/d-bee/dbee/internal/dbeeerr"
)

type symbolKind int

const (
	kindTerminal symbolKind = iota
	kindWrapper
	kindValue
	kindOption
	kindRepeat
	kindSequence
	// kindConstSet is an internal desugaring of Wrapper: binds a constant
	// key/value pair without consuming input. Not constructed directly by
	// grammar authors.
	kindConstSet
)

// Symbol is one node of the grammar tree: a tagged sum with variants
// Terminal, Wrapper(inner, key, value), Value(key), Option(alternatives),
// Repeat(inner), and Sequence(children).
type Symbol struct {
	kind     symbolKind
	literal  string
	key      string
	value    string
	inner    *Symbol
	children []*Symbol
}

// T builds a Terminal matching literal (case-insensitively).
func T(literal string) *Symbol { return &Symbol{kind: kindTerminal, literal: literal} }

// W builds a Wrapper: inner must match; on success key is bound to the
// constant value.
func W(inner *Symbol, key, value string) *Symbol {
	return &Symbol{kind: kindWrapper, inner: inner, key: key, value: value}
}

// V builds a Value: the next token is bound under key.
func V(key string) *Symbol { return &Symbol{kind: kindValue, key: key} }

// O builds an Option: the first alternative (considering the rest of the
// grammar after it) that leads to an overall successful parse is taken.
func O(alternatives ...*Symbol) *Symbol {
	return &Symbol{kind: kindOption, children: alternatives}
}

// Rpt builds a Repeat: zero or more occurrences of inner, greedy (prefers
// matching one more occurrence over stopping).
func Rpt(inner *Symbol) *Symbol { return &Symbol{kind: kindRepeat, inner: inner} }

// Seq builds a Sequence of symbols matched in order.
func Seq(children ...*Symbol) *Symbol { return &Symbol{kind: kindSequence, children: children} }

// Bindings is the plan map the parser produces: a map from key to the
// ordered list of values bound to it.
type Bindings map[string][]string

func cloneBindings(b Bindings) Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func overwriteBindings(dst, src Bindings) {
	for k := range dst {
		delete(dst, k)
	}
	for k, v := range src {
		dst[k] = v
	}
}

// frame is one backtracking choice point: the alternatives not yet tried,
// plus the machine state to restore before trying each one. A nil
// alternative matches nothing (Repeat's stop case).
type frame struct {
	alts  []*Symbol
	stack []*Symbol
	pos   int
	saved Bindings
}

// solve matches start against input, consuming tokens from the front and
// accumulating bindings in acc. The pending grammar symbols live on an
// explicit stack and untried alternatives on an explicit trail, so depth
// never grows the Go call stack: backtracking restores a recorded
// (stack, position, bindings) snapshot instead of unwinding recursion.
// On success the remaining (unconsumed) input is returned; on failure,
// the error from the candidate that got furthest into the input.
func solve(start *Symbol, input []string, acc Bindings) ([]string, error) {
	stack := []*Symbol{start}
	pos := 0
	var trail []frame
	bestPos := -1
	var bestErr error

	// fail records err for diagnostics, then resumes the most recent
	// choice point with alternatives left, reporting whether one existed.
	fail := func(err error) bool {
		if pos > bestPos {
			bestPos, bestErr = pos, err
		}
		for len(trail) > 0 {
			cp := &trail[len(trail)-1]
			if len(cp.alts) == 0 {
				trail = trail[:len(trail)-1]
				continue
			}
			alt := cp.alts[0]
			cp.alts = cp.alts[1:]
			stack = append([]*Symbol(nil), cp.stack...)
			pos = cp.pos
			overwriteBindings(acc, cloneBindings(cp.saved))
			if alt != nil {
				stack = append(stack, alt)
			}
			return true
		}
		return false
	}

	for {
		if len(stack) == 0 {
			return input[pos:], nil
		}
		sym := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch sym.kind {
		case kindTerminal:
			switch {
			case pos >= len(input):
				if !fail(dbeeerr.Newf(dbeeerr.InvalidInput, "expected %q, found end of input", sym.literal)) {
					return input, bestErr
				}
			case !strings.EqualFold(input[pos], sym.literal):
				if !fail(dbeeerr.Newf(dbeeerr.InvalidInput, "expected %q, found %q", sym.literal, input[pos])) {
					return input, bestErr
				}
			default:
				pos++
			}

		case kindValue:
			if pos >= len(input) {
				if !fail(dbeeerr.Newf(dbeeerr.InvalidInput, "expected a value for %q, found end of input", sym.key)) {
					return input, bestErr
				}
				continue
			}
			acc[sym.key] = append(acc[sym.key], input[pos])
			pos++

		case kindConstSet:
			acc[sym.key] = append(acc[sym.key], sym.value)

		case kindWrapper:
			// The constant binding lands under the inner symbol so it is
			// applied only after inner has matched.
			stack = append(stack, &Symbol{kind: kindConstSet, key: sym.key, value: sym.value}, sym.inner)

		case kindSequence:
			for i := len(sym.children) - 1; i >= 0; i-- {
				stack = append(stack, sym.children[i])
			}

		case kindOption:
			if len(sym.children) == 0 {
				if !fail(dbeeerr.New(dbeeerr.InvalidInput, "no alternative matched")) {
					return input, bestErr
				}
				continue
			}
			trail = append(trail, frame{
				alts:  sym.children[1:],
				stack: append([]*Symbol(nil), stack...),
				pos:   pos,
				saved: cloneBindings(acc),
			})
			stack = append(stack, sym.children[0])

		case kindRepeat:
			// Greedy: try one more occurrence before the stop case (the
			// nil alternative).
			trail = append(trail, frame{
				alts:  []*Symbol{nil},
				stack: append([]*Symbol(nil), stack...),
				pos:   pos,
				saved: cloneBindings(acc),
			})
			stack = append(stack, sym, sym.inner)

		default:
			return input, dbeeerr.Newf(dbeeerr.Internal, "unknown symbol kind %d", sym.kind)
		}
	}
}
