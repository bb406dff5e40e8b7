package value

import (
	"hash/fnv"
	"math"
)

func floatBits(f float64) uint64 { return math.Float64bits(f) }

// Tuple is a fixed-arity, ordered sequence of Values. Identity is
// structural: two tuples are equal iff every positional Value is equal.
type Tuple struct {
	Values []Value
}

// NewTuple builds a Tuple over the given Values, in positional order.
func NewTuple(values ...Value) Tuple {
	cp := make([]Value, len(values))
	copy(cp, values)
	return Tuple{Values: cp}
}

func (t Tuple) Arity() int { return len(t.Values) }

func (t Tuple) At(i int) Value { return t.Values[i] }

// Project returns a new Tuple holding only the given positions, in order.
func (t Tuple) Project(positions ...int) Tuple {
	out := make([]Value, len(positions))
	for i, p := range positions {
		out[i] = t.Values[p]
	}
	return Tuple{Values: out}
}

// Concat appends the other tuple's values after this tuple's.
func (t Tuple) Concat(other Tuple) Tuple {
	out := make([]Value, 0, len(t.Values)+len(other.Values))
	out = append(out, t.Values...)
	out = append(out, other.Values...)
	return Tuple{Values: out}
}

// TupleEqual reports whether two tuples hold the same arity and values.
func TupleEqual(a, b Tuple) bool {
	if len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if !Equal(a.Values[i], b.Values[i]) {
			return false
		}
	}
	return true
}

// CompareTuple gives tuples the same total order as lexicographic
// comparison of their positional Values.
func CompareTuple(a, b Tuple) int {
	n := len(a.Values)
	if len(b.Values) < n {
		n = len(b.Values)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a.Values[i], b.Values[i]); c != 0 {
			return c
		}
	}
	return cmpInt64(int64(len(a.Values)), int64(len(b.Values)))
}

// Hash64 returns a structural hash suitable for arrangement key
// buckets. It is not required to be collision-free; Equal is the
// source of truth for identity.
func (t Tuple) Hash64() uint64 {
	h := fnv.New64a()
	for _, v := range t.Values {
		writeValueHash(h, v)
	}
	return h.Sum64()
}

func writeValueHash(h interface{ Write([]byte) (int, error) }, v Value) {
	h.Write([]byte{byte(v.kind)})
	switch v.kind {
	case KindInt, KindTimestamp:
		var buf [8]byte
		putUint64(buf[:], uint64(v.i))
		h.Write(buf[:])
	case KindFloat:
		var buf [8]byte
		putUint64(buf[:], floatBits(v.f))
		h.Write(buf[:])
	case KindString:
		h.Write([]byte(v.s))
	case KindBool:
		if v.b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case KindVectorF32:
		for _, f := range v.vecF32 {
			var buf [8]byte
			putUint64(buf[:], floatBits(float64(f)))
			h.Write(buf[:])
		}
	case KindVectorI8:
		for _, b := range v.vecI8 {
			h.Write([]byte{byte(b)})
		}
	case KindRecord:
		for _, f := range sortedCopy(v.fields) {
			h.Write([]byte(f.Name))
			writeValueHash(h, f.Value)
		}
	case KindList:
		for _, e := range v.list {
			writeValueHash(h, e)
		}
	}
}

func putUint64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}
