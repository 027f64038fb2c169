package runner

import (
	"fmt"
	"strings"
)

// Mode is the declared command category of a script. It is supplied by the
// caller and decides read-only enforcement and transaction policy.
type Mode int

const (
	ModeUnknown Mode = iota
	SchemaDefinition
	ReadQuery
	DataMutation
	AccessControl
)

// Modes lists the valid modes in display order.
var Modes = []Mode{SchemaDefinition, ReadQuery, DataMutation, AccessControl}

// String returns the boundary token for the mode.
func (m Mode) String() string {
	switch m {
	case SchemaDefinition:
		return "DDL"
	case ReadQuery:
		return "DQL"
	case DataMutation:
		return "DML"
	case AccessControl:
		return "DCL"
	default:
		return "UNKNOWN"
	}
}

// Description is a human readable label for the mode.
func (m Mode) Description() string {
	switch m {
	case SchemaDefinition:
		return "schema definition"
	case ReadQuery:
		return "read query"
	case DataMutation:
		return "data mutation"
	case AccessControl:
		return "access control"
	default:
		return "unknown"
	}
}

// Transactional reports whether scripts of this mode run inside a single
// transaction. The server auto-commits DDL and DCL regardless of wrapping, so
// only DML gets atomicity on failure.
func (m Mode) Transactional() bool {
	return m == DataMutation
}

// ParseMode maps a boundary token (DDL, DQL, DML, DCL, any case) to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DDL":
		return SchemaDefinition, nil
	case "DQL":
		return ReadQuery, nil
	case "DML":
		return DataMutation, nil
	case "DCL":
		return AccessControl, nil
	}
	return ModeUnknown, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
