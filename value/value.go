// Package value implements InputLayer's tagged-union Value, the fixed
// arity Tuple built from it, and their total ordering. Representing
// Value as a closed variant set (rather than an interface hierarchy)
// keeps the per-tag dispatch in Compare/Equal exhaustive.
package value

import (
	"bytes"
	"fmt"
	"math"
	"sort"
)

// Kind tags a Value's variant. Ordering between Values of different
// kinds follows Kind's numeric order first.
type Kind uint8

const (
	KindUnit Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindTimestamp
	KindVectorF32
	KindVectorI8
	KindRecord
	KindList
)

// canonicalNaN is the single bit pattern used for every NaN float so
// that NaN compares and hashes equal to itself.
var canonicalNaN = math.Float64frombits(0x7FF8000000000001)

// Value is a single InputLayer scalar, vector, record, or list.
type Value struct {
	kind   Kind
	i      int64
	f      float64
	s      string
	b      bool
	vecF32 []float32
	vecI8  []int8
	fields []RecordField
	list   []Value
}

// RecordField is one named slot of a Record value, in declaration order.
type RecordField struct {
	Name  string
	Value Value
}

func Int(v int64) Value     { return Value{kind: KindInt, i: v} }
func Bool(v bool) Value     { return Value{kind: KindBool, b: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }
func Timestamp(nanos int64) Value {
	return Value{kind: KindTimestamp, i: nanos}
}
func Unit() Value { return Value{kind: KindUnit} }

// Float normalizes NaN to the canonical bit pattern before storing.
func Float(v float64) Value {
	if math.IsNaN(v) {
		v = canonicalNaN
	}
	return Value{kind: KindFloat, f: v}
}

func VectorF32(v []float32) Value {
	cp := make([]float32, len(v))
	copy(cp, v)
	return Value{kind: KindVectorF32, vecF32: cp}
}

func VectorI8(v []int8) Value {
	cp := make([]int8, len(v))
	copy(cp, v)
	return Value{kind: KindVectorI8, vecI8: cp}
}

func Record(fields []RecordField) Value {
	cp := make([]RecordField, len(fields))
	copy(cp, fields)
	return Value{kind: KindRecord, fields: cp}
}

func List(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsInt() (int64, bool)         { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)     { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool)     { return v.s, v.kind == KindString }
func (v Value) AsBool() (bool, bool)         { return v.b, v.kind == KindBool }
func (v Value) AsTimestamp() (int64, bool)   { return v.i, v.kind == KindTimestamp }
func (v Value) AsVectorF32() ([]float32, bool) { return v.vecF32, v.kind == KindVectorF32 }
func (v Value) AsVectorI8() ([]int8, bool)   { return v.vecI8, v.kind == KindVectorI8 }
func (v Value) AsRecord() ([]RecordField, bool) { return v.fields, v.kind == KindRecord }
func (v Value) AsList() ([]Value, bool)      { return v.list, v.kind == KindList }

// Field looks up a named field on a record value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindRecord {
		return Value{}, false
	}
	for _, f := range v.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Compare implements a total order across all value kinds: values of
// different kinds order by kind tag first, then by payload within a
// kind. Equality follows ordering: Equal(a,b) iff Compare(a,b) == 0.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindUnit:
		return 0
	case KindInt, KindTimestamp:
		return cmpInt64(a.i, b.i)
	case KindFloat:
		return cmpFloat64(a.f, b.f)
	case KindString:
		return bytes.Compare([]byte(a.s), []byte(b.s))
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case KindVectorF32:
		return cmpFloat32Slice(a.vecF32, b.vecF32)
	case KindVectorI8:
		return cmpInt8Slice(a.vecI8, b.vecI8)
	case KindRecord:
		return cmpRecord(a.fields, b.fields)
	case KindList:
		return cmpList(a.list, b.list)
	default:
		panic(fmt.Sprintf("value: unhandled kind %d in Compare", a.kind))
	}
}

// Equal reports whether a and b are the same value under Compare.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

// Less reports whether a sorts strictly before b.
func Less(a, b Value) bool { return Compare(a, b) < 0 }

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	// At least one side is NaN: NaN equals only NaN and sorts before
	// every other float, which keeps the order total.
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	default:
		return 1
	}
}

func cmpFloat32Slice(a, b []float32) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := cmpFloat64(float64(a[i]), float64(b[i])); c != 0 {
			return c
		}
	}
	return cmpInt64(int64(len(a)), int64(len(b)))
}

func cmpInt8Slice(a, b []int8) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return cmpInt64(int64(len(a)), int64(len(b)))
}

func cmpRecord(a, b []RecordField) int {
	sa := sortedCopy(a)
	sb := sortedCopy(b)
	n := len(sa)
	if len(sb) < n {
		n = len(sb)
	}
	for i := 0; i < n; i++ {
		if c := bytes.Compare([]byte(sa[i].Name), []byte(sb[i].Name)); c != 0 {
			return c
		}
		if c := Compare(sa[i].Value, sb[i].Value); c != 0 {
			return c
		}
	}
	return cmpInt64(int64(len(sa)), int64(len(sb)))
}

func sortedCopy(fields []RecordField) []RecordField {
	cp := make([]RecordField, len(fields))
	copy(cp, fields)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Name < cp[j].Name })
	return cp
}

func cmpList(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmpInt64(int64(len(a)), int64(len(b)))
}

// String renders a Value for diagnostics and textual query results.
func (v Value) String() string {
	switch v.kind {
	case KindUnit:
		return "()"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindTimestamp:
		return fmt.Sprintf("@%d", v.i)
	case KindVectorF32:
		return fmt.Sprintf("%v", v.vecF32)
	case KindVectorI8:
		return fmt.Sprintf("%v", v.vecI8)
	case KindRecord:
		buf := bytes.Buffer{}
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteString(", ")
			}
			fmt.Fprintf(&buf, "%s: %s", f.Name, f.Value.String())
		}
		buf.WriteByte('}')
		return buf.String()
	case KindList:
		buf := bytes.Buffer{}
		buf.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(e.String())
		}
		buf.WriteByte(']')
		return buf.String()
	default:
		return "<invalid>"
	}
}
