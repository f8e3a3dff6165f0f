package intake

import (
	"strings"

	"github.com/teranos/airlock/errors"
)

// Repair turns a near-JSON line into strict, compact JSON. Agents emit
// records with the usual large-model defects: single-quoted strings,
// bare object keys, trailing commas, unbalanced or mismatched brackets,
// unterminated strings, raw control characters. Repair is a single
// tokenizer pass over the line, not a chain of regex rewrites, so each
// fix is applied with knowledge of whether the cursor is inside a
// string, at an object key, or at a value.
//
// It repairs shape, not meaning: tokens that are invalid in value
// position (a bare word where JSON needs a literal) pass through and
// fail at decode with a precise diagnostic.
func Repair(line string) (string, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", errors.NewParseError("empty line")
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return "", errors.NewParseError("record must begin with '{' or '['")
	}

	r := &repairer{in: trimmed}
	r.run()
	return string(r.out), nil
}

// Object frames cycle through key, colon, and value positions so the
// tokenizer knows when a bare token is a key to quote. Array frames and
// malformed sequences stay in phaseValue; misplaced tokens are emitted
// as-is and rejected at decode.
const (
	phaseKey = iota
	phaseColon
	phaseValue
	phaseNext // after a value: comma or closer
)

type frame struct {
	open  byte // '{' or '['
	phase int  // object position, unused for arrays
}

type repairer struct {
	in    string
	pos   int
	out   []byte
	stack []frame
}

func (r *repairer) run() {
	for r.pos < len(r.in) {
		c := r.in[r.pos]
		switch {
		case c == '{' || c == '[':
			r.pos++
			r.openContainer(c)
		case c == '}' || c == ']':
			r.pos++
			r.closeContainer(c)
			if len(r.stack) == 0 {
				return // top level balanced; trailing bytes are junk
			}
		case c == ':':
			r.pos++
			r.out = append(r.out, ':')
			if t := r.top(); t != nil && t.open == '{' && t.phase == phaseColon {
				t.phase = phaseValue
			}
		case c == ',':
			r.pos++
			r.out = append(r.out, ',')
			if t := r.top(); t != nil && t.open == '{' {
				t.phase = phaseKey
			}
		case c == '"' || c == '\'':
			r.pos++
			r.scanString(c)
		case c <= ' ' || c == 0x7F:
			r.pos++ // whitespace and controls are never emitted outside strings
		default:
			r.scanBare()
		}
	}

	// EOF with open containers: drop a dangling separator, then close
	// everything in nesting order.
	r.trimComma()
	for i := len(r.stack) - 1; i >= 0; i-- {
		r.out = append(r.out, closerFor(r.stack[i].open))
	}
	r.stack = r.stack[:0]
}

func (r *repairer) top() *frame {
	if len(r.stack) == 0 {
		return nil
	}
	return &r.stack[len(r.stack)-1]
}

func (r *repairer) openContainer(c byte) {
	r.markValue()
	r.out = append(r.out, c)
	r.stack = append(r.stack, frame{open: c, phase: phaseKey})
}

// closeContainer balances the stack for a closer. A matching closer
// pops one frame. A closer matching a deeper frame first closes the
// frames above it. A closer matching nothing is dropped.
func (r *repairer) closeContainer(c byte) {
	depth := -1
	for i := len(r.stack) - 1; i >= 0; i-- {
		if closerFor(r.stack[i].open) == c {
			depth = i
			break
		}
	}
	if depth < 0 {
		return
	}
	r.trimComma()
	for i := len(r.stack) - 1; i >= depth; i-- {
		r.out = append(r.out, closerFor(r.stack[i].open))
	}
	r.stack = r.stack[:depth]
}

// trimComma removes a separator emitted just before a closer or EOF.
func (r *repairer) trimComma() {
	if n := len(r.out); n > 0 && r.out[n-1] == ',' {
		r.out = r.out[:n-1]
	}
}

// markValue advances an object frame past its value position. Called
// before emitting any value token so the frame expects a separator next.
func (r *repairer) markValue() {
	if t := r.top(); t != nil && t.open == '{' && t.phase == phaseValue {
		t.phase = phaseNext
	}
}

// inKeyPosition reports whether the next token names an object member.
func (r *repairer) inKeyPosition() bool {
	t := r.top()
	return t != nil && t.open == '{' && t.phase == phaseKey
}

// scanString consumes a string opened by quote ('"' or '\''), emitting
// a double-quoted JSON string. Valid escape sequences pass through
// unchanged; an invalid escape loses its backslash; raw control
// characters are re-escaped or dropped. An unterminated string is
// closed at EOF.
func (r *repairer) scanString(quote byte) {
	key := r.inKeyPosition()
	if !key {
		r.markValue()
	}
	r.out = append(r.out, '"')

	for r.pos < len(r.in) {
		c := r.in[r.pos]
		switch {
		case c == quote:
			r.pos++
			r.finishString(key)
			return
		case c == '\\':
			r.scanEscape()
		case c == '"':
			// Raw double quote inside a single-quoted string.
			r.pos++
			r.out = append(r.out, '\\', '"')
		case c == '\t':
			r.pos++
			r.out = append(r.out, '\\', 't')
		case c == '\r':
			r.pos++
			r.out = append(r.out, '\\', 'r')
		case c == '\n':
			r.pos++
			r.out = append(r.out, '\\', 'n')
		case c < 0x20 || c == 0x7F:
			r.pos++ // other controls cannot be represented; drop
		default:
			r.pos++
			r.out = append(r.out, c)
		}
	}
	r.finishString(key) // unterminated: close at EOF
}

func (r *repairer) finishString(key bool) {
	r.out = append(r.out, '"')
	if key {
		if t := r.top(); t != nil {
			t.phase = phaseColon
		}
	}
}

// scanEscape handles a backslash inside a string.
func (r *repairer) scanEscape() {
	r.pos++ // consume the backslash
	if r.pos >= len(r.in) {
		return // dangling backslash at EOF
	}
	e := r.in[r.pos]
	switch e {
	case '\'':
		// Escapes the delimiter in a single-quoted string, invalid in a
		// double-quoted one. The output wants a plain apostrophe either way.
		r.pos++
		r.out = append(r.out, '\'')
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		r.pos++
		r.out = append(r.out, '\\', e)
	case 'u':
		if r.pos+4 < len(r.in) && isHex(r.in[r.pos+1:r.pos+5]) {
			r.out = append(r.out, '\\')
			r.out = append(r.out, r.in[r.pos:r.pos+5]...)
			r.pos += 5
			return
		}
		r.pos++
		r.out = append(r.out, 'u') // malformed \u escape loses the backslash
	default:
		r.pos++
		r.out = append(r.out, e) // unknown escape loses the backslash
	}
}

// scanBare consumes an unquoted token: a number, literal, or bare word.
// In key position the token is quoted; in value position it is emitted
// verbatim so strict decoding decides its fate.
func (r *repairer) scanBare() {
	start := r.pos
	for r.pos < len(r.in) && !isStructural(r.in[r.pos]) {
		r.pos++
	}
	token := r.in[start:r.pos]
	if token == "" {
		return
	}

	if r.inKeyPosition() {
		r.out = append(r.out, '"')
		for i := 0; i < len(token); i++ {
			if token[i] == '\\' {
				r.out = append(r.out, '\\')
			}
			r.out = append(r.out, token[i])
		}
		r.out = append(r.out, '"')
		if t := r.top(); t != nil {
			t.phase = phaseColon
		}
		return
	}

	r.markValue()
	r.out = append(r.out, token...)
}

func isStructural(c byte) bool {
	switch c {
	case '{', '}', '[', ']', ',', ':', '"', '\'':
		return true
	}
	return c <= ' ' || c == 0x7F
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

func closerFor(open byte) byte {
	if open == '{' {
		return '}'
	}
	return ']'
}
