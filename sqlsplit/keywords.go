package sqlsplit

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// LeadingKeywords returns up to n leading keywords of stmt, uppercased.
//
// Whitespace and comments are skipped, as is any other character that is not
// an ASCII letter, one at a time. Quotes are not tracked: the statement is
// expected to be already isolated by Split.
func LeadingKeywords(stmt string, n int) []string {
	if n <= 0 {
		return nil
	}
	var keywords []string
	i := 0
	for i < len(stmt) && len(keywords) < n {
		r, w := utf8.DecodeRuneInString(stmt[i:])
		switch {
		case unicode.IsSpace(r):
			i += w
		case r == '-' && strings.HasPrefix(stmt[i:], "--") && lineCommentFollows(stmt, i+2):
			i = skipLine(stmt, i+2)
		case r == '#':
			i = skipLine(stmt, i+1)
		case r == '/' && strings.HasPrefix(stmt[i:], "/*"):
			end := strings.Index(stmt[i+2:], "*/")
			if end < 0 {
				return keywords
			}
			i += 2 + end + 2
		case isASCIILetter(stmt[i]):
			start := i
			for i < len(stmt) && isASCIILetter(stmt[i]) {
				i++
			}
			keywords = append(keywords, strings.ToUpper(stmt[start:i]))
		default:
			i += w
		}
	}
	return keywords
}

// LeadingKeyword returns the first keyword of stmt, or "" when it has none.
func LeadingKeyword(stmt string) string {
	if kw := LeadingKeywords(stmt, 1); len(kw) > 0 {
		return kw[0]
	}
	return ""
}

func lineCommentFollows(s string, off int) bool {
	if off >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[off:])
	return unicode.IsSpace(r)
}

// skipLine returns the offset of the next newline at or after off, or len(s).
func skipLine(s string, off int) int {
	if nl := strings.IndexByte(s[off:], '\n'); nl >= 0 {
		return off + nl
	}
	return len(s)
}

func isASCIILetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
