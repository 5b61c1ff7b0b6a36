// Package raw holds the PDF object model produced by the object reader.
package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
}

// Name object
type Name string

func (Name) Type() string { return "name" }

// Number object
type Number struct {
	I     int64
	F     float64
	IsInt bool
}

func (Number) Type() string { return "number" }
func (n Number) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}

// Int truncates real numbers, matching how readers treat e.g. "/Count 3.0".
func (n Number) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}

// Boolean object
type Bool bool

func (Bool) Type() string { return "boolean" }

// Null object
type Null struct{}

func (Null) Type() string { return "null" }

// String object (literal or hex)
type String struct {
	Bytes []byte
	Hex   bool
}

func (String) Type() string { return "string" }

// Array object
type Array []Object

func (Array) Type() string { return "array" }

// Dict object
type Dict map[string]Object

func (Dict) Type() string { return "dict" }

func (d Dict) Get(key string) (Object, bool) {
	o, ok := d[key]
	return o, ok
}

// Name returns the name value stored under key.
func (d Dict) Name(key string) (string, bool) {
	n, ok := d[key].(Name)
	return string(n), ok
}

// Int returns the integer value stored under key.
func (d Dict) Int(key string) (int64, bool) {
	n, ok := d[key].(Number)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

// Stream object
type Stream struct {
	Dict Dict
	Data []byte
}

func (*Stream) Type() string { return "stream" }

// Ref object
type Ref ObjectRef

func (Ref) Type() string { return "ref" }

// Helpers
func Int(i int64) Number      { return Number{I: i, F: float64(i), IsInt: true} }
func Real(f float64) Number   { return Number{F: f} }
func Str(s string) String     { return String{Bytes: []byte(s)} }
func NewRef(num, gen int) Ref { return Ref{Num: num, Gen: gen} }

// Float converts a number object to float64.
func Float(o Object) (float64, bool) {
	n, ok := o.(Number)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}
