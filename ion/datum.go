// Copyright 2024 The kfx authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package ion

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/exp/slices"
)

// Datum represents a single ion value decoded into memory.
//
// Datum trees are produced by ReadDatum and serialized by
// Encode. The concrete types are Null, Bool, Int, Uint,
// Float32, Float64, DecimalDatum, TimestampDatum, SymbolDatum,
// String, Blob, List, Struct, and Annotation.
type Datum interface {
	// Type returns the ion type of this datum.
	Type() Type
	// Encode appends the binary encoding of this
	// datum to the buffer.
	Encode(dst *Buffer)

	equal(Datum) bool
}

// Null is an ion null of any type.
type Null struct {
	// Of is the type carried by the null descriptor;
	// NullType for a plain untyped null.
	Of Type
}

func (n Null) Type() Type { return n.Of }

func (n Null) Encode(dst *Buffer) {
	if n.Of == NullType {
		dst.WriteNull()
		return
	}
	dst.WriteTypedNull(n.Of)
}

func (n Null) equal(x Datum) bool {
	o, ok := x.(Null)
	return ok && o.Of == n.Of
}

// Bool is an ion bool.
type Bool bool

func (b Bool) Type() Type         { return BoolType }
func (b Bool) Encode(dst *Buffer) { dst.WriteBool(bool(b)) }

func (b Bool) equal(x Datum) bool {
	o, ok := x.(Bool)
	return ok && o == b
}

// Int is a signed ion integer.
type Int int64

func (i Int) Type() Type {
	if i < 0 {
		return IntType
	}
	return UintType
}

func (i Int) Encode(dst *Buffer) { dst.WriteInt(int64(i)) }

func (i Int) equal(x Datum) bool {
	switch o := x.(type) {
	case Int:
		return o == i
	case Uint:
		return i >= 0 && uint64(i) == uint64(o)
	}
	return false
}

// Uint is an unsigned ion integer too large for Int.
type Uint uint64

func (u Uint) Type() Type         { return UintType }
func (u Uint) Encode(dst *Buffer) { dst.WriteUint(uint64(u)) }

func (u Uint) equal(x Datum) bool {
	switch o := x.(type) {
	case Uint:
		return o == u
	case Int:
		return o >= 0 && uint64(o) == uint64(u)
	}
	return false
}

// Float64 is a double-precision ion float.
type Float64 float64

func (f Float64) Type() Type         { return FloatType }
func (f Float64) Encode(dst *Buffer) { dst.WriteFloat64(float64(f)) }

func (f Float64) equal(x Datum) bool {
	switch o := x.(type) {
	case Float64:
		return o == f
	case Float32:
		return Float64(o) == f
	}
	return false
}

// Float32 is a single-precision ion float.
// The 4-byte width is preserved on re-encode.
type Float32 float32

func (f Float32) Type() Type         { return FloatType }
func (f Float32) Encode(dst *Buffer) { dst.WriteFloat32(float32(f)) }

func (f Float32) equal(x Datum) bool {
	switch o := x.(type) {
	case Float32:
		return o == f
	case Float64:
		return o == Float64(f)
	}
	return false
}

// DecimalDatum wraps a Decimal as a Datum.
type DecimalDatum struct {
	Decimal
}

func (d DecimalDatum) Type() Type         { return DecimalType }
func (d DecimalDatum) Encode(dst *Buffer) { dst.WriteDecimal(&d.Decimal) }

func (d DecimalDatum) equal(x Datum) bool {
	o, ok := x.(DecimalDatum)
	return ok && d.Decimal.Equal(&o.Decimal)
}

// TimestampDatum wraps a Timestamp as a Datum.
type TimestampDatum struct {
	Timestamp
}

func (t TimestampDatum) Type() Type         { return TimestampType }
func (t TimestampDatum) Encode(dst *Buffer) { dst.WriteTimestamp(&t.Timestamp) }

func (t TimestampDatum) equal(x Datum) bool {
	o, ok := x.(TimestampDatum)
	return ok && t.Timestamp.Equal(&o.Timestamp)
}

// SymbolDatum is an ion symbol value (a symbol ID).
type SymbolDatum Symbol

func (s SymbolDatum) Type() Type         { return SymbolType }
func (s SymbolDatum) Encode(dst *Buffer) { dst.WriteSymbol(Symbol(s)) }

func (s SymbolDatum) equal(x Datum) bool {
	o, ok := x.(SymbolDatum)
	return ok && o == s
}

// String is an ion string.
type String string

func (s String) Type() Type         { return StringType }
func (s String) Encode(dst *Buffer) { dst.WriteString(string(s)) }

func (s String) equal(x Datum) bool {
	o, ok := x.(String)
	return ok && o == s
}

// Blob is an ion blob.
type Blob []byte

func (b Blob) Type() Type         { return BlobType }
func (b Blob) Encode(dst *Buffer) { dst.WriteBlob(b) }

func (b Blob) equal(x Datum) bool {
	o, ok := x.(Blob)
	return ok && bytes.Equal(o, b)
}

// List is an ion list.
type List struct {
	Items []Datum
}

// NewList constructs a List from items.
func NewList(items ...Datum) List { return List{Items: items} }

func (l List) Type() Type { return ListType }

func (l List) Encode(dst *Buffer) {
	dst.BeginList()
	for i := range l.Items {
		l.Items[i].Encode(dst)
	}
	dst.EndList()
}

func (l List) equal(x Datum) bool {
	o, ok := x.(List)
	if !ok || len(o.Items) != len(l.Items) {
		return false
	}
	for i := range l.Items {
		if !l.Items[i].equal(o.Items[i]) {
			return false
		}
	}
	return true
}

// Field is a single field of a Struct.
type Field struct {
	Sym   Symbol
	Value Datum
}

// Struct is an ion struct.
//
// Field order as it appeared in the input is preserved in
// Fields, but Encode always emits fields sorted by ascending
// symbol ID so that output is deterministic.
type Struct struct {
	Fields []Field
}

// NewStruct constructs a Struct from fields.
func NewStruct(fields ...Field) Struct { return Struct{Fields: fields} }

func (s Struct) Type() Type { return StructType }

// Field returns the first field with the given symbol,
// or nil if no such field exists.
func (s Struct) Field(sym Symbol) Datum {
	for i := range s.Fields {
		if s.Fields[i].Sym == sym {
			return s.Fields[i].Value
		}
	}
	return nil
}

func (s Struct) Encode(dst *Buffer) {
	fields := slices.Clone(s.Fields)
	slices.SortStableFunc(fields, func(a, b Field) int {
		return int(a.Sym) - int(b.Sym)
	})
	dst.BeginStruct()
	for i := range fields {
		dst.BeginField(fields[i].Sym)
		fields[i].Value.Encode(dst)
	}
	dst.EndStruct()
}

func (s Struct) equal(x Datum) bool {
	o, ok := x.(Struct)
	if !ok || len(o.Fields) != len(s.Fields) {
		return false
	}
	// order-insensitive comparison over sorted copies
	a := slices.Clone(s.Fields)
	b := slices.Clone(o.Fields)
	byid := func(x, y Field) int { return int(x.Sym) - int(y.Sym) }
	slices.SortStableFunc(a, byid)
	slices.SortStableFunc(b, byid)
	for i := range a {
		if a[i].Sym != b[i].Sym || !a[i].Value.equal(b[i].Value) {
			return false
		}
	}
	return true
}

// Annotation is an ion annotation wrapper: one or more
// annotation symbol IDs attached to a single value.
type Annotation struct {
	IDs   []Symbol
	Value Datum
}

func (a Annotation) Type() Type { return AnnotationType }

func (a Annotation) Encode(dst *Buffer) {
	dst.BeginAnnotation(a.IDs...)
	a.Value.Encode(dst)
	dst.EndAnnotation()
}

func (a Annotation) equal(x Datum) bool {
	o, ok := x.(Annotation)
	return ok && slices.Equal(o.IDs, a.IDs) && a.Value.equal(o.Value)
}

// Equal returns true if a and b are structurally equal.
// Struct field order is ignored; everything else, including
// decimal exponents and timestamp precision, must match.
func Equal(a, b Datum) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.equal(b)
}

// ReadDatum reads a single ion value from the front of msg
// into a Datum tree and returns the remaining message bytes.
// NOP padding before the value is skipped.
func ReadDatum(msg []byte) (Datum, []byte, error) {
	for len(msg) > 0 && IsNopPad(msg) {
		s := SizeOf(msg)
		if s <= 0 || s > len(msg) {
			return nil, nil, ErrInvalidLength
		}
		msg = msg[s:]
	}
	if len(msg) == 0 {
		return nil, nil, io.ErrUnexpectedEOF
	}
	t := TypeOf(msg)
	if IsNull(msg) {
		s := SizeOf(msg)
		if s <= 0 || s > len(msg) {
			return nil, nil, ErrInvalidLength
		}
		return Null{Of: t}, msg[s:], nil
	}
	switch t {
	case NullType:
		// non-null pad bytes were consumed above
		return nil, nil, ErrInvalidTypeCode
	case BoolType:
		v, rest, err := ReadBool(msg)
		return Bool(v), rest, err
	case UintType:
		u, rest, err := ReadUint(msg)
		if err != nil {
			return nil, nil, err
		}
		if u <= 0x7fffffffffffffff {
			return Int(u), rest, nil
		}
		return Uint(u), rest, nil
	case IntType:
		i, rest, err := ReadInt(msg)
		return Int(i), rest, err
	case FloatType:
		if msg[0] == 0x44 {
			f, rest, err := ReadFloat32(msg)
			return Float32(f), rest, err
		}
		f, rest, err := ReadFloat64(msg)
		return Float64(f), rest, err
	case DecimalType:
		d, rest, err := ReadDecimal(msg)
		return DecimalDatum{d}, rest, err
	case TimestampType:
		ts, rest, err := ReadTimestamp(msg)
		return TimestampDatum{ts}, rest, err
	case SymbolType:
		s, rest, err := ReadSymbol(msg)
		return SymbolDatum(s), rest, err
	case StringType:
		s, rest, err := ReadString(msg)
		return String(s), rest, err
	case ClobType, BlobType:
		b, rest, err := ReadBytes(msg)
		return Blob(b), rest, err
	case ListType, SexpType:
		body, rest := Contents(msg)
		if body == nil {
			return nil, nil, ErrInvalidLength
		}
		var items []Datum
		var err error
		for len(body) > 0 {
			if IsNopPad(body) {
				s := SizeOf(body)
				if s <= 0 || s > len(body) {
					return nil, nil, ErrInvalidLength
				}
				body = body[s:]
				continue
			}
			var item Datum
			item, body, err = ReadDatum(body)
			if err != nil {
				return nil, nil, err
			}
			items = append(items, item)
		}
		return List{Items: items}, rest, nil
	case StructType:
		if msg[0] == 0xd1 {
			return nil, nil, ErrSortedStruct
		}
		body, rest := Contents(msg)
		if body == nil {
			return nil, nil, ErrInvalidLength
		}
		var fields []Field
		var err error
		for len(body) > 0 {
			var sym Symbol
			sym, body, err = ReadLabel(body)
			if err != nil {
				return nil, nil, err
			}
			if len(body) > 0 && IsNopPad(body) {
				// a field name followed by a NOP pad
				// is padding, not a field
				s := SizeOf(body)
				if s <= 0 || s > len(body) {
					return nil, nil, ErrInvalidLength
				}
				body = body[s:]
				continue
			}
			var val Datum
			val, body, err = ReadDatum(body)
			if err != nil {
				return nil, nil, err
			}
			fields = append(fields, Field{Sym: sym, Value: val})
		}
		return Struct{Fields: fields}, rest, nil
	case AnnotationType:
		ids, wrapped, rest, err := ReadAnnotationIDs(msg)
		if err != nil {
			return nil, nil, err
		}
		val, extra, err := ReadDatum(wrapped)
		if err != nil {
			return nil, nil, err
		}
		if len(extra) != 0 {
			return nil, nil, fmt.Errorf("ion.ReadDatum: %w: %d trailing bytes in annotation body", ErrInvalidLength, len(extra))
		}
		return Annotation{IDs: ids, Value: val}, rest, nil
	}
	return nil, nil, ErrInvalidTypeCode
}

// typed accessors

// AsString returns d as a Go string or a TypeError
// if d is not an ion string.
func AsString(d Datum) (string, error) {
	s, ok := d.(String)
	if !ok {
		return "", bad(dtype(d), StringType, "AsString")
	}
	return string(s), nil
}

// AsInt returns d as an int64 or a TypeError if d is not
// an integer (or does not fit in an int64).
func AsInt(d Datum) (int64, error) {
	switch v := d.(type) {
	case Int:
		return int64(v), nil
	case Uint:
		if uint64(v) > 0x7fffffffffffffff {
			return 0, fmt.Errorf("ion.AsInt: %d overflows int64", uint64(v))
		}
		return int64(v), nil
	}
	return 0, bad(dtype(d), IntType, "AsInt")
}

// AsSymbol returns d as a Symbol or a TypeError
// if d is not an ion symbol.
func AsSymbol(d Datum) (Symbol, error) {
	s, ok := d.(SymbolDatum)
	if !ok {
		return 0, bad(dtype(d), SymbolType, "AsSymbol")
	}
	return Symbol(s), nil
}

// AsBlob returns d as raw bytes or a TypeError
// if d is not an ion blob.
func AsBlob(d Datum) ([]byte, error) {
	b, ok := d.(Blob)
	if !ok {
		return nil, bad(dtype(d), BlobType, "AsBlob")
	}
	return []byte(b), nil
}

// AsList returns d as a List or a TypeError
// if d is not an ion list.
func AsList(d Datum) (List, error) {
	l, ok := d.(List)
	if !ok {
		return List{}, bad(dtype(d), ListType, "AsList")
	}
	return l, nil
}

// AsStruct returns d as a Struct or a TypeError
// if d is not an ion struct.
func AsStruct(d Datum) (Struct, error) {
	s, ok := d.(Struct)
	if !ok {
		return Struct{}, bad(dtype(d), StructType, "AsStruct")
	}
	return s, nil
}

// AsDecimal returns d as a Decimal or a TypeError
// if d is not an ion decimal.
func AsDecimal(d Datum) (Decimal, error) {
	v, ok := d.(DecimalDatum)
	if !ok {
		return Decimal{}, bad(dtype(d), DecimalType, "AsDecimal")
	}
	return v.Decimal, nil
}

func dtype(d Datum) Type {
	if d == nil {
		return NullType
	}
	return d.Type()
}
