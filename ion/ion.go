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

// Package ion implements the subset of the Amazon Ion 1.0 binary
// format that KFX containers embed: null, bool, int, float, decimal,
// timestamp, symbol, string, blob, list, struct, and annotation
// values, plus the three-tier symbol table built on the shared
// YJ_symbols catalog.
//
// The read path operates directly on byte slices: TypeOf, SizeOf and
// Contents inspect the descriptor at the front of a message, and the
// Read* functions return (value, rest, error) triples. The write path
// goes through Buffer, which backpatches container lengths when a
// struct, list, or annotation is closed.
package ion

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"
)

// Type is one of the ion datatypes.
type Type byte

const (
	NullType Type = iota
	BoolType
	UintType // unsigned integer
	IntType  // signed integer; always negative
	FloatType
	DecimalType
	TimestampType
	SymbolType
	StringType
	ClobType
	BlobType
	ListType
	SexpType
	StructType
	AnnotationType
	ReservedType
)

func (t Type) String() string {
	switch t {
	case NullType:
		return "null"
	case BoolType:
		return "bool"
	case UintType:
		return "uint"
	case IntType:
		return "int"
	case FloatType:
		return "float"
	case DecimalType:
		return "decimal"
	case TimestampType:
		return "timestamp"
	case SymbolType:
		return "symbol"
	case StringType:
		return "string"
	case ClobType:
		return "clob"
	case BlobType:
		return "blob"
	case ListType:
		return "list"
	case SexpType:
		return "sexp"
	case StructType:
		return "struct"
	case AnnotationType:
		return "annotation"
	case ReservedType:
		return "reserved"
	default:
		return "invalid"
	}
}

// BVM is the Ion 1.0 binary version marker that begins every stream.
var BVM = [4]byte{0xe0, 0x01, 0x00, 0xea}

// IsBVM returns whether the next 4 bytes of the message
// are a 4-byte ion BVM marker.
func IsBVM(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	word := binary.LittleEndian.Uint32(buf)
	return word&0xff0000ff == 0xea0000e0
}

// CheckBVM verifies that buf begins with the Ion 1.0 BVM and
// returns the remaining bytes.
func CheckBVM(buf []byte) ([]byte, error) {
	if len(buf) < 4 {
		return nil, io.ErrUnexpectedEOF
	}
	if buf[0] != 0xe0 || buf[1] != 0x01 || buf[2] != 0x00 || buf[3] != 0xea {
		return nil, ErrNotIon10
	}
	return buf[4:], nil
}

// TypeOf returns the type of the next object in the buffer.
func TypeOf(msg []byte) Type {
	return Type(msg[0] >> 4)
}

// DecodeTLV explodes a TLV byte into type (t) and raw length nibble (l).
func DecodeTLV(b byte) (t Type, l byte) {
	t = Type(b >> 4)
	l = b & 0x0f
	return
}

// SizeOf returns the size of the next ion object, including the
// beginning TLV descriptor bytes.
//
// The return value of SizeOf is negative when msg is empty or the
// length encoding is unterminated.
func SizeOf(msg []byte) int {
	if len(msg) == 0 {
		return -1
	}
	if msg[0] == 0x11 {
		return 1
	}
	lo := msg[0] & 0x0f
	switch lo {
	case 0x0f:
		return 1
	case 0x0e:
		out := 0
		rest := msg[1:]
		if len(rest) > 8 {
			// guard against overflow
			rest = rest[:8]
		}
		for i := range rest {
			out <<= 7
			out += int(rest[i] & 0x7f)
			if rest[i]&0x80 != 0 {
				return out + i + 2
			}
		}
		return -1 // unterminated length
	default:
		return int(lo) + 1
	}
}

// Contents parses the TLV descriptor at the beginning of msg and
// returns the non-descriptor bytes of the object, plus the remaining
// bytes in the buffer as the second return value.
//
// The returned []byte is nil if the encoded object size does not fit
// into msg. (A zero-length but non-nil slice is a valid empty body.)
func Contents(msg []byte) ([]byte, []byte) {
	if len(msg) == 0 {
		return nil, msg
	}
	if msg[0] == 0x11 {
		return msg[:0], msg[1:]
	}
	lo := msg[0] & 0x0f
	if lo == 0x0f {
		return msg[:0], msg[1:]
	}
	if lo < 0x0e {
		if len(msg) < int(lo)+1 {
			return nil, msg
		}
		return msg[1 : 1+lo], msg[1+lo:]
	}
	// lo == 0x0e: length follows as a VarUInt
	rest := msg[1:]
	out := 0
	for i := range rest {
		out <<= 7
		out += int(rest[i] & 0x7f)
		if rest[i]&0x80 != 0 {
			if out < 0 || len(rest) < i+out+1 {
				return nil, msg
			}
			return rest[i+1 : i+out+1], rest[i+out+1:]
		}
	}
	return nil, msg
}

// IsNull returns whether the next object in msg is a null of any type
// (low nibble 0xF).
func IsNull(msg []byte) bool {
	return len(msg) > 0 && msg[0]&0x0f == 0x0f
}

// IsNopPad returns whether the next object is NOP padding
// (type 0 with a non-null length nibble).
func IsNopPad(msg []byte) bool {
	return len(msg) > 0 && msg[0]>>4 == 0 && msg[0]&0x0f != 0x0f
}

// ReadString reads a string from msg and returns the string and the
// subsequent message bytes. Non-UTF-8 payloads yield ErrInvalidUTF8.
func ReadString(msg []byte) (string, []byte, error) {
	if t := TypeOf(msg); t != StringType {
		return "", nil, bad(t, StringType, "ReadString")
	}
	body, rest := Contents(msg)
	if body == nil {
		return "", nil, ErrInvalidLength
	}
	if !utf8.Valid(body) {
		return "", nil, ErrInvalidUTF8
	}
	return string(body), rest, nil
}

// ReadBytesShared reads a []byte (as an ion blob) and returns the
// blob and the subsequent message bytes. The returned []byte aliases
// the input message.
func ReadBytesShared(msg []byte) ([]byte, []byte, error) {
	if t := TypeOf(msg); t != BlobType {
		return nil, nil, bad(t, BlobType, "ReadBytesShared")
	}
	body, rest := Contents(msg)
	if body == nil {
		return nil, nil, ErrInvalidLength
	}
	return body, rest, nil
}

// ReadBytes reads an ion blob from msg.
// The returned slice does not alias msg.
func ReadBytes(msg []byte) ([]byte, []byte, error) {
	orig, rest, err := ReadBytesShared(msg)
	if err != nil {
		return nil, rest, err
	}
	out := make([]byte, len(orig))
	copy(out, orig)
	return out, rest, nil
}

// ReadFloat64 reads an ion float as a float64 and returns the value
// and the subsequent message bytes.
func ReadFloat64(msg []byte) (float64, []byte, error) {
	switch msg[0] {
	case 0x40:
		return 0.0, msg[1:], nil
	case 0x44:
		if len(msg) < 5 {
			return 0, nil, io.ErrUnexpectedEOF
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(msg[1:]))), msg[5:], nil
	case 0x48:
		if len(msg) < 9 {
			return 0, nil, io.ErrUnexpectedEOF
		}
		return math.Float64frombits(binary.BigEndian.Uint64(msg[1:])), msg[9:], nil
	}
	if t := TypeOf(msg); t != FloatType {
		return 0, nil, bad(t, FloatType, "ReadFloat64")
	}
	return 0, nil, ErrInvalidLength
}

// ReadFloat32 reads an ion float as a float32 and returns the value
// and the subsequent message bytes.
func ReadFloat32(msg []byte) (float32, []byte, error) {
	switch msg[0] {
	case 0x40:
		return 0.0, msg[1:], nil
	case 0x44:
		if len(msg) < 5 {
			return 0, nil, io.ErrUnexpectedEOF
		}
		return math.Float32frombits(binary.BigEndian.Uint32(msg[1:])), msg[5:], nil
	}
	if t := TypeOf(msg); t != FloatType {
		return 0, nil, bad(t, FloatType, "ReadFloat32")
	}
	return 0, nil, ErrInvalidLength
}

func readmag(msg []byte) uint64 {
	u := uint64(0)
	for i := range msg {
		u <<= 8
		u |= uint64(msg[i])
	}
	return u
}

// ReadInt reads an ion integer as an int64 and returns the
// subsequent message bytes.
func ReadInt(msg []byte) (int64, []byte, error) {
	t := TypeOf(msg)
	if t < UintType || t > IntType {
		return 0, nil, bad(t, IntType, "ReadInt")
	}
	body, rest := Contents(msg)
	if body == nil {
		return 0, nil, ErrInvalidLength
	}
	if len(body) > 8 {
		return 0, nil, ErrInvalidLength
	}
	mag := readmag(body)
	max := uint64(math.MaxInt64)
	if t == IntType {
		max++
	}
	if mag > max {
		return 0, nil, ErrInvalidLength
	}
	v := int64(mag)
	if t == IntType {
		v = -v
	}
	return v, rest, nil
}

// ReadUint reads an ion integer as a uint64 and returns the
// subsequent message bytes.
func ReadUint(msg []byte) (uint64, []byte, error) {
	if t := TypeOf(msg); t != UintType {
		return 0, nil, bad(t, UintType, "ReadUint")
	}
	body, rest := Contents(msg)
	if body == nil {
		return 0, nil, ErrInvalidLength
	}
	if len(body) > 8 {
		return 0, nil, ErrInvalidLength
	}
	return readmag(body), rest, nil
}

// ReadSymbol reads an ion symbol from msg and returns the
// subsequent message bytes.
func ReadSymbol(msg []byte) (Symbol, []byte, error) {
	if t := TypeOf(msg); t != SymbolType {
		return 0, nil, bad(t, SymbolType, "ReadSymbol")
	}
	body, rest := Contents(msg)
	if body == nil {
		return 0, nil, ErrInvalidLength
	}
	if len(body) > 4 {
		return 0, nil, ErrInvalidLength
	}
	return Symbol(readmag(body)), rest, nil
}

// ReadBool reads a boolean value and returns it along with the
// subsequent message bytes.
func ReadBool(msg []byte) (bool, []byte, error) {
	switch msg[0] {
	case 0x10:
		return false, msg[1:], nil
	case 0x11:
		return true, msg[1:], nil
	default:
		return false, nil, bad(TypeOf(msg), BoolType, "ReadBool")
	}
}

// ReadLabel reads the VarUInt symbol preceding a structure field
// and returns the subsequent message bytes.
func ReadLabel(msg []byte) (Symbol, []byte, error) {
	uv, rest, err := ReadVarUint(msg)
	if err != nil {
		return 0, nil, err
	}
	if uv > math.MaxUint32 {
		return 0, nil, ErrInvalidVarInt
	}
	return Symbol(uv), rest, nil
}

// ReadAnnotationIDs reads the descriptor and annotation IDs of an
// annotation object and returns the IDs, the wrapped value bytes,
// and the remaining bytes after the whole annotation.
//
// KFX fragments carry exactly two IDs (fid, ftype), but the reader
// accepts any count of at least one, per Ion 1.0.
func ReadAnnotationIDs(msg []byte) ([]Symbol, []byte, []byte, error) {
	if t := TypeOf(msg); t != AnnotationType {
		return nil, nil, nil, bad(t, AnnotationType, "ReadAnnotationIDs")
	}
	body, rest := Contents(msg)
	if body == nil {
		return nil, nil, nil, ErrInvalidLength
	}
	alen, body, err := ReadVarUint(body)
	if err != nil {
		return nil, nil, nil, err
	}
	if alen == 0 || alen > uint64(len(body)) {
		return nil, nil, nil, ErrInvalidLength
	}
	ids := body[:alen]
	value := body[alen:]
	var out []Symbol
	for len(ids) > 0 {
		var sym Symbol
		sym, ids, err = ReadLabel(ids)
		if err != nil {
			return nil, nil, nil, err
		}
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil, nil, nil, ErrInvalidLength
	}
	return out, value, rest, nil
}

// UnpackList calls fn for each item in a list, returning the
// remaining bytes. NOP padding between elements is skipped.
func UnpackList(body []byte, fn func([]byte) error) (rest []byte, err error) {
	if t := TypeOf(body); t != ListType {
		return body, bad(t, ListType, "UnpackList")
	}
	body, rest = Contents(body)
	if body == nil {
		return rest, ErrInvalidLength
	}
	for len(body) > 0 {
		next := SizeOf(body)
		if next <= 0 || next > len(body) {
			return rest, ErrInvalidLength
		}
		if !IsNopPad(body) {
			if err := fn(body[:next]); err != nil {
				return rest, err
			}
		}
		body = body[next:]
	}
	return rest, nil
}

// UnpackStruct calls fn for each (field ID, value bytes) pair in a
// struct, returning the remaining bytes. A sorted struct (L=1) is
// rejected with ErrSortedStruct.
func UnpackStruct(body []byte, fn func(Symbol, []byte) error) (rest []byte, err error) {
	if t := TypeOf(body); t != StructType {
		return body, bad(t, StructType, "UnpackStruct")
	}
	if body[0] == 0xd1 {
		return body, ErrSortedStruct
	}
	body, rest = Contents(body)
	if body == nil {
		return rest, ErrInvalidLength
	}
	var sym Symbol
	for len(body) > 0 {
		sym, body, err = ReadLabel(body)
		if err != nil {
			return rest, err
		}
		next := SizeOf(body)
		if next <= 0 || next > len(body) {
			return rest, ErrInvalidLength
		}
		if err := fn(sym, body[:next]); err != nil {
			return rest, err
		}
		body = body[next:]
	}
	return rest, nil
}
