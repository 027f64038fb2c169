package sqlsplit

import "fmt"

// readOnlyKeywords is the whitelist of leading keywords a read-only script
// may use.
var readOnlyKeywords = map[string]struct{}{
	"SELECT":   {},
	"SHOW":     {},
	"DESCRIBE": {},
	"DESC":     {},
	"EXPLAIN":  {},
}

// Violation identifies the first statement of a script rejected by the
// read-only whitelist.
type Violation struct {
	Statement Statement
	Keyword   string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("statement %d (%s) is not read-only", v.Statement.Index, v.Keyword)
}

// IsReadOnly reports whether stmt passes the read-only whitelist. A statement
// without any leading keyword, such as one made only of comments, passes.
func IsReadOnly(stmt string) bool {
	kw := LeadingKeyword(stmt)
	if kw == "" {
		return true
	}
	_, ok := readOnlyKeywords[kw]
	return ok
}

// CheckReadOnly returns a *Violation for the first statement that is not
// read-only, or nil when every statement passes.
func CheckReadOnly(stmts []Statement) error {
	for _, s := range stmts {
		if !IsReadOnly(s.Text) {
			return &Violation{Statement: s, Keyword: LeadingKeyword(s.Text)}
		}
	}
	return nil
}

// ValidateReadOnly splits script and checks it with CheckReadOnly.
func ValidateReadOnly(script string) error {
	return CheckReadOnly(Split(script))
}
