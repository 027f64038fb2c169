// Package sqlsplit splits MySQL-dialect scripts into statements and performs
// the coarse keyword classification used to gate read-only scripts.
//
// The package has no dependencies so the same rules run wherever a script is
// checked, whether that is an advisory check in an interactive client or the
// authoritative check next to the database session.
package sqlsplit

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Statement is one trimmed, non-empty unit of a script.
type Statement struct {
	// Index is the 0-based position among the statements of the script.
	Index int
	// Text is a verbatim substring of the script, trimmed of surrounding
	// whitespace.
	Text string
}

func (s Statement) String() string {
	return s.Text
}

type scanState int

const (
	stateNormal scanState = iota
	stateSingleQuote
	stateDoubleQuote
	stateBacktick
	stateLineComment
	stateBlockComment
)

// closingQuote returns the character that ends a quote state.
func (s scanState) closingQuote() rune {
	switch s {
	case stateSingleQuote:
		return '\''
	case stateDoubleQuote:
		return '"'
	case stateBacktick:
		return '`'
	}
	return 0
}

func (s scanState) quoted() bool {
	return s == stateSingleQuote || s == stateDoubleQuote || s == stateBacktick
}

// scanner walks a script one code point at a time. Segments are tracked as
// byte offsets into the script so emitted text is always a verbatim slice.
type scanner struct {
	src   string
	pos   int
	start int
	state scanState
	// lastTerm is the offset just past the most recent terminating semicolon,
	// or -1 when none has been seen.
	lastTerm int
	emit     func(text string)
}

func newScanner(src string, emit func(string)) *scanner {
	return &scanner{src: src, lastTerm: -1, emit: emit}
}

// peek returns the code point at offset off, or utf8.RuneError with width 0
// at end of input.
func (sc *scanner) peek(off int) (rune, int) {
	if off >= len(sc.src) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(sc.src[off:])
}

func (sc *scanner) flush(end int) {
	text := strings.TrimSpace(sc.src[sc.start:end])
	if text != "" && sc.emit != nil {
		sc.emit(text)
	}
}

func (sc *scanner) run() {
	for sc.pos < len(sc.src) {
		r, w := sc.peek(sc.pos)
		next, nw := sc.peek(sc.pos + w)

		switch {
		case sc.state == stateLineComment:
			sc.pos += w
			if r == '\n' {
				sc.state = stateNormal
			}

		case sc.state == stateBlockComment:
			if r == '*' && next == '/' {
				sc.pos += w + nw
				sc.state = stateNormal
				continue
			}
			sc.pos += w

		case sc.state.quoted():
			switch r {
			case '\\':
				// The escaped character is taken verbatim, whatever it is.
				sc.pos += w + nw
			case sc.state.closingQuote():
				sc.pos += w
				sc.state = stateNormal
			default:
				sc.pos += w
			}

		default:
			sc.pos += sc.stepNormal(r, w, next, nw)
		}
	}
	sc.flush(len(sc.src))
}

// stepNormal handles one code point in the Normal state and returns the
// number of bytes consumed.
func (sc *scanner) stepNormal(r rune, w int, next rune, nw int) int {
	switch r {
	case '\'':
		sc.state = stateSingleQuote
	case '"':
		sc.state = stateDoubleQuote
	case '`':
		sc.state = stateBacktick
	case '#':
		sc.state = stateLineComment
	case '-':
		if next == '-' && sc.lineCommentAt(sc.pos+w+nw) {
			sc.state = stateLineComment
			return w + nw
		}
	case '/':
		if next == '*' {
			sc.state = stateBlockComment
			return w + nw
		}
	case ';':
		sc.flush(sc.pos)
		sc.start = sc.pos + w
		sc.lastTerm = sc.start
	}
	return w
}

// lineCommentAt reports whether the character after a "--" pair permits a
// line comment: whitespace or end of input.
func (sc *scanner) lineCommentAt(off int) bool {
	r, w := sc.peek(off)
	return w == 0 || unicode.IsSpace(r)
}

// Split returns the statements of script in order. Semicolons inside quoted
// regions and comments never terminate a statement. Unterminated quotes or
// comments are not an error: whatever remains is returned as the final
// statement.
func Split(script string) []Statement {
	var stmts []Statement
	newScanner(script, func(text string) {
		stmts = append(stmts, Statement{Index: len(stmts), Text: text})
	}).run()
	return stmts
}

// Texts returns the text of each statement.
func Texts(stmts []Statement) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.Text
	}
	return out
}

// Complete reports whether script ends with a terminating semicolon in the
// Normal state, followed only by whitespace. Interactive callers use it to
// decide when buffered input is ready to run.
func Complete(script string) bool {
	sc := newScanner(script, nil)
	sc.run()
	if sc.state != stateNormal || sc.lastTerm < 0 {
		return false
	}
	return strings.TrimSpace(script[sc.lastTerm:]) == ""
}
