// Package record defines the row data handed to the table engine on every
// refresh. Records are replaced wholesale each cycle and never mutated once
// published.
package record

import (
	"math"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	Missing ValueKind = iota
	Number
	String
)

// Value is a single field value: a number, a string, or the N/A sentinel.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
}

// NA is the missing/unknown sentinel.
var NA = Value{Kind: Missing}

func Num(v float64) Value { return Value{Kind: Number, Num: v} }

func Str(s string) Value { return Value{Kind: String, Str: s} }

// Float reports the numeric reading of v. Strings count only when they parse
// as a finite float; NaN and infinities are never numeric.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case Number:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return 0, false
		}
		return v.Num, true
	case String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// String renders v for display and case-insensitive comparison.
func (v Value) String() string {
	switch v.Kind {
	case Number:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case String:
		return v.Str
	default:
		return "N/A"
	}
}

// IsMissing reports whether v is the N/A sentinel.
func (v Value) IsMissing() bool { return v.Kind == Missing }

// Record is one row of a data feed. Key is the stable identity used by the
// reconciler; Group is optional (e.g. node name).
type Record struct {
	Key    string
	Group  string
	Fields map[string]Value
}

// Get returns the named field or NA.
func (r Record) Get(field string) Value {
	if r.Fields == nil {
		return NA
	}
	v, ok := r.Fields[field]
	if !ok {
		return NA
	}
	return v
}

// Kind identifies which resource table a record list belongs to.
type Kind int

const (
	Guests Kind = iota
	Storage
	Snapshots
	PVEBackups
	PBSTasks
)

// Kinds lists every resource kind in page order.
var Kinds = []Kind{Guests, Storage, Snapshots, PVEBackups, PBSTasks}

func (k Kind) String() string {
	switch k {
	case Guests:
		return "dashboard"
	case Storage:
		return "storage"
	case Snapshots:
		return "snapshots"
	case PVEBackups:
		return "backups"
	case PBSTasks:
		return "pbs"
	default:
		return "unknown"
	}
}

// ParseKind maps a page/view name back to its Kind.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range Kinds {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}
