// Package args converts typed Go values into script variable declarations.
//
// Every Argument renders to a deterministic `const <name> = <expr>;`
// declaration. Arguments hold no shared mutable state and may be used from
// any number of goroutines.
//
// Example Usage:
//
//	user, _ := args.JSON("user", `{"id": 7}`)
//	list := []args.Argument{args.String("greeting", "hi"), user}
//	for _, a := range list {
//		src += args.Declare(a) + "\n"
//	}
package args

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

var (
	ErrInvalidJSON = errors.New("argument is not valid JSON")
	ErrMixedArray  = errors.New("array elements must share one kind")
)

// Kind identifies the value type of an argument
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindJSON   Kind = "json"
	KindArray  Kind = "array"
	KindRecord Kind = "record"
)

// Argument is a named value that can be declared in a script
type Argument interface {
	Name() string
	Kind() Kind
	// Expression returns the script expression producing the value
	Expression() string
}

// Declare returns the declaration of arg
func Declare(arg Argument) string {
	return "const " + arg.Name() + " = " + arg.Expression() + ";"
}

// NameOf returns the identifier arg is bound to
func NameOf(arg Argument) string {
	return arg.Name()
}

type scalar struct {
	name string
	kind Kind
	expr string
}

func (s scalar) Name() string       { return s.name }
func (s scalar) Kind() Kind         { return s.kind }
func (s scalar) Expression() string { return s.expr }

// String creates a string argument
func String(name, value string) Argument {
	return scalar{name: name, kind: KindString, expr: quote(value)}
}

// Number creates a numeric argument
func Number(name string, value float64) Argument {
	return scalar{name: name, kind: KindNumber, expr: formatFloat(value)}
}

// Int creates an integer argument
func Int(name string, value int64) Argument {
	return scalar{name: name, kind: KindNumber, expr: strconv.FormatInt(value, 10)}
}

// Bool creates a boolean argument
func Bool(name string, value bool) Argument {
	return scalar{name: name, kind: KindBool, expr: strconv.FormatBool(value)}
}

// JSON creates an argument from JSON text. The text is validated here so a
// malformed value never reaches the sandbox.
func JSON(name, text string) (Argument, error) {
	if !sonic.Valid([]byte(text)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJSON, name)
	}
	return scalar{name: name, kind: KindJSON, expr: "(" + strings.TrimSpace(text) + ")"}, nil
}

// Array is an ordered list of arguments of the same kind
type Array struct {
	name  string
	elems []Argument
}

// NewArray creates an array argument. Element names are ignored.
func NewArray(name string, elems ...Argument) (*Array, error) {
	for i, e := range elems {
		if e == nil {
			return nil, fmt.Errorf("array %s: element %d is nil", name, i)
		}
		if e.Kind() != elems[0].Kind() {
			return nil, fmt.Errorf("%w: %s has %s and %s", ErrMixedArray, name, elems[0].Kind(), e.Kind())
		}
	}
	return &Array{name: name, elems: append([]Argument(nil), elems...)}, nil
}

func (a *Array) Name() string { return a.name }
func (a *Array) Kind() Kind   { return KindArray }
func (a *Array) Len() int     { return len(a.elems) }

func (a *Array) Expression() string {
	parts := make([]string, len(a.elems))
	for i, e := range a.elems {
		parts[i] = e.Expression()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Record is an object literal composed of named fields
type Record struct {
	name   string
	fields []Argument
}

// NewRecord creates a record argument. A later field replaces an earlier
// field with the same name.
func NewRecord(name string, fields ...Argument) *Record {
	return (&Record{name: name}).With(fields...)
}

func (r *Record) Name() string { return r.name }
func (r *Record) Kind() Kind   { return KindRecord }

// With returns a copy of the record with fields added or replaced
func (r *Record) With(fields ...Argument) *Record {
	out := &Record{name: r.name, fields: append([]Argument(nil), r.fields...)}
	for _, f := range fields {
		if f == nil {
			continue
		}
		if i := out.index(f.Name()); i >= 0 {
			out.fields[i] = f
			continue
		}
		out.fields = append(out.fields, f)
	}
	return out
}

// Rename returns a copy of the record bound to a different name
func (r *Record) Rename(name string) *Record {
	return &Record{name: name, fields: append([]Argument(nil), r.fields...)}
}

// Field returns the field with the given name
func (r *Record) Field(name string) (Argument, bool) {
	if i := r.index(name); i >= 0 {
		return r.fields[i], true
	}
	return nil, false
}

func (r *Record) index(name string) int {
	for i, f := range r.fields {
		if f.Name() == name {
			return i
		}
	}
	return -1
}

func (r *Record) Expression() string {
	parts := make([]string, len(r.fields))
	for i, f := range r.fields {
		parts[i] = quote(f.Name()) + ": " + f.Expression()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func quote(s string) string {
	out, err := sonic.ConfigStd.MarshalToString(s)
	if err != nil {
		return strconv.Quote(s)
	}
	return out
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

var reserved = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true, "do": true,
	"else": true, "export": true, "extends": true, "false": true, "finally": true,
	"for": true, "function": true, "if": true, "import": true, "in": true,
	"instanceof": true, "let": true, "new": true, "null": true, "return": true,
	"super": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "var": true, "void": true, "while": true,
	"with": true, "yield": true, "await": true, "enum": true,
}

// ValidName reports whether name can be used as a script identifier
func ValidName(name string) bool {
	return identRe.MatchString(name) && !reserved[name]
}
