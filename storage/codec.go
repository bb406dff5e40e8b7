package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/inputlayer/inputlayer/value"
)

// byteWriter is the common capability bytes.Buffer and bufio.Writer
// share; encodeValue is written against it so the WAL's per-record
// framing and the batch segment writer's streaming output can share
// one tuple codec.
type byteWriter interface {
	io.Writer
	WriteByte(byte) error
}

func writeVarint(w byteWriter, v int64) error {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	_, err := w.Write(tmp[:n])
	return err
}

// writeFixed64/writeFixed32 use little-endian, matching the segment
// format's "raw little-endian numerics/vectors" requirement; the WAL
// reuses the same primitives for uniformity.
func writeFixed64(w byteWriter, v uint64) error {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	_, err := w.Write(tmp[:])
	return err
}

func writeFixed32(w byteWriter, v uint32) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	_, err := w.Write(tmp[:])
	return err
}

// encodeTuple serializes a tuple's values in positional order, each
// self-describing with a leading Kind byte.
func encodeTuple(w byteWriter, t value.Tuple) error {
	if err := writeVarint(w, int64(t.Arity())); err != nil {
		return err
	}
	for _, v := range t.Values {
		if err := encodeValue(w, v); err != nil {
			return err
		}
	}
	return nil
}

func decodeTuple(r *bytes.Reader) (value.Tuple, error) {
	n, err := binary.ReadVarint(r)
	if err != nil {
		return value.Tuple{}, err
	}
	vals := make([]value.Value, n)
	for i := range vals {
		v, err := decodeValue(r)
		if err != nil {
			return value.Tuple{}, err
		}
		vals[i] = v
	}
	return value.NewTuple(vals...), nil
}

func encodeValue(w byteWriter, v value.Value) error {
	if err := w.WriteByte(byte(v.Kind())); err != nil {
		return err
	}
	switch v.Kind() {
	case value.KindUnit:
		return nil
	case value.KindInt:
		i, _ := v.AsInt()
		return writeVarint(w, i)
	case value.KindTimestamp:
		i, _ := v.AsTimestamp()
		return writeVarint(w, i)
	case value.KindFloat:
		f, _ := v.AsFloat()
		return writeFixed64(w, math.Float64bits(f))
	case value.KindBool:
		b, _ := v.AsBool()
		if b {
			return w.WriteByte(1)
		}
		return w.WriteByte(0)
	case value.KindString:
		s, _ := v.AsString()
		if err := writeVarint(w, int64(len(s))); err != nil {
			return err
		}
		_, err := w.Write([]byte(s))
		return err
	case value.KindVectorF32:
		vec, _ := v.AsVectorF32()
		if err := writeVarint(w, int64(len(vec))); err != nil {
			return err
		}
		for _, f := range vec {
			if err := writeFixed32(w, math.Float32bits(f)); err != nil {
				return err
			}
		}
		return nil
	case value.KindVectorI8:
		vec, _ := v.AsVectorI8()
		if err := writeVarint(w, int64(len(vec))); err != nil {
			return err
		}
		for _, b := range vec {
			if err := w.WriteByte(byte(b)); err != nil {
				return err
			}
		}
		return nil
	case value.KindRecord:
		fields, _ := v.AsRecord()
		if err := writeVarint(w, int64(len(fields))); err != nil {
			return err
		}
		for _, f := range fields {
			if err := writeVarint(w, int64(len(f.Name))); err != nil {
				return err
			}
			if _, err := w.Write([]byte(f.Name)); err != nil {
				return err
			}
			if err := encodeValue(w, f.Value); err != nil {
				return err
			}
		}
		return nil
	case value.KindList:
		items, _ := v.AsList()
		if err := writeVarint(w, int64(len(items))); err != nil {
			return err
		}
		for _, it := range items {
			if err := encodeValue(w, it); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("storage: unknown value kind %d", v.Kind())
	}
}

func decodeValue(r *bytes.Reader) (value.Value, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return value.Value{}, err
	}
	switch value.Kind(kindByte) {
	case value.KindUnit:
		return value.Unit(), nil
	case value.KindInt:
		i, err := binary.ReadVarint(r)
		return value.Int(i), err
	case value.KindTimestamp:
		i, err := binary.ReadVarint(r)
		return value.Timestamp(i), err
	case value.KindFloat:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return value.Value{}, err
		}
		return value.Float(math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))), nil
	case value.KindBool:
		b, err := r.ReadByte()
		return value.Bool(b == 1), err
	case value.KindString:
		n, err := binary.ReadVarint(r)
		if err != nil {
			return value.Value{}, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return value.Value{}, err
		}
		return value.String(string(buf)), nil
	case value.KindVectorF32:
		n, err := binary.ReadVarint(r)
		if err != nil {
			return value.Value{}, err
		}
		vec := make([]float32, n)
		for i := range vec {
			var buf [4]byte
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return value.Value{}, err
			}
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))
		}
		return value.VectorF32(vec), nil
	case value.KindVectorI8:
		n, err := binary.ReadVarint(r)
		if err != nil {
			return value.Value{}, err
		}
		vec := make([]int8, n)
		for i := range vec {
			b, err := r.ReadByte()
			if err != nil {
				return value.Value{}, err
			}
			vec[i] = int8(b)
		}
		return value.VectorI8(vec), nil
	case value.KindRecord:
		n, err := binary.ReadVarint(r)
		if err != nil {
			return value.Value{}, err
		}
		fields := make([]value.RecordField, n)
		for i := range fields {
			nameLen, err := binary.ReadVarint(r)
			if err != nil {
				return value.Value{}, err
			}
			nameBuf := make([]byte, nameLen)
			if _, err := io.ReadFull(r, nameBuf); err != nil {
				return value.Value{}, err
			}
			v, err := decodeValue(r)
			if err != nil {
				return value.Value{}, err
			}
			fields[i] = value.RecordField{Name: string(nameBuf), Value: v}
		}
		return value.Record(fields), nil
	case value.KindList:
		n, err := binary.ReadVarint(r)
		if err != nil {
			return value.Value{}, err
		}
		items := make([]value.Value, n)
		for i := range items {
			v, err := decodeValue(r)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v
		}
		return value.List(items), nil
	default:
		return value.Value{}, fmt.Errorf("storage: unknown value kind byte %d", kindByte)
	}
}
