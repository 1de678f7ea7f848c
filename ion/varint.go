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
	"io"
	"math"
	"math/bits"
)

// maxVarUintLen is the longest VarUInt encoding that can
// still describe a value that fits in a uint64.
const maxVarUintLen = 10

// uvsize returns the encoded size of value as a VarUInt.
func uvsize(value uint64) int {
	// oring in 1 does not change the result except
	// for the number 0, where bits.Len64 must yield 1
	return (bits.Len64(value|1) + 6) / 7
}

// ivsize returns the encoded size of value as a VarInt.
func ivsize(value int64) int {
	mag := uint64(value)
	if value < 0 {
		mag = uint64(-value)
	}
	// the first byte holds 6 data bits; the rest hold 7
	return (bits.Len64(mag|1) + 7) / 7
}

// ReadVarUint reads a VarUInt from the front of msg and
// returns the value plus the remaining message bytes.
//
// Values that do not fit in a uint64, and encodings longer
// than ten bytes, yield ErrInvalidVarInt. A message that
// ends before the terminator byte yields io.ErrUnexpectedEOF.
func ReadVarUint(msg []byte) (uint64, []byte, error) {
	out := uint64(0)
	for i := range msg {
		if i == maxVarUintLen || out > math.MaxUint64>>7 {
			return 0, nil, ErrInvalidVarInt
		}
		out = out<<7 | uint64(msg[i]&0x7f)
		if msg[i]&0x80 != 0 {
			return out, msg[i+1:], nil
		}
	}
	return 0, nil, io.ErrUnexpectedEOF
}

// ReadVarInt reads a VarInt from the front of msg and
// returns the value plus the remaining message bytes.
//
// The sign lives in bit 6 of the first byte; the remaining
// bits accumulate a magnitude. Magnitudes that do not fit
// in an int64 yield ErrInvalidVarInt.
func ReadVarInt(msg []byte) (int64, []byte, error) {
	mag, rest, neg, err := readVarIntMag(msg)
	if err != nil {
		return 0, nil, err
	}
	if neg {
		if mag > uint64(math.MaxInt64)+1 {
			return 0, nil, ErrInvalidVarInt
		}
		return -int64(mag), rest, nil
	}
	if mag > math.MaxInt64 {
		return 0, nil, ErrInvalidVarInt
	}
	return int64(mag), rest, nil
}

// readVarIntMag reads a VarInt as an explicit (magnitude, sign)
// pair so that callers can distinguish negative zero, which the
// timestamp codec uses to mean "no offset".
func readVarIntMag(msg []byte) (mag uint64, rest []byte, neg bool, err error) {
	if len(msg) == 0 {
		return 0, nil, false, io.ErrUnexpectedEOF
	}
	neg = msg[0]&0x40 != 0
	mag = uint64(msg[0] & 0x3f)
	if msg[0]&0x80 != 0 {
		return mag, msg[1:], neg, nil
	}
	rest = msg[1:]
	for i := range rest {
		if i+1 == maxVarUintLen || mag > math.MaxUint64>>7 {
			return 0, nil, false, ErrInvalidVarInt
		}
		mag = mag<<7 | uint64(rest[i]&0x7f)
		if rest[i]&0x80 != 0 {
			return mag, rest[i+1:], neg, nil
		}
	}
	return 0, nil, false, io.ErrUnexpectedEOF
}

// AppendVarUint appends the minimum-length VarUInt encoding
// of u to dst and returns the extended buffer.
// Zero encodes as the single byte 0x80.
func AppendVarUint(dst []byte, u uint64) []byte {
	n := uvsize(u)
	for n > 1 {
		n--
		dst = append(dst, byte(u>>(7*uint(n)))&0x7f)
	}
	return append(dst, byte(u&0x7f)|0x80)
}

// AppendVarInt appends the minimum-length VarInt encoding
// of v to dst and returns the extended buffer.
func AppendVarInt(dst []byte, v int64) []byte {
	mag := uint64(v)
	var sign byte
	if v < 0 {
		mag = uint64(-v)
		sign = 0x40
	}
	n := ivsize(v)
	if n == 1 {
		return append(dst, 0x80|sign|byte(mag))
	}
	// first byte carries the sign and the top 6 data bits
	shift := 7 * uint(n-1)
	dst = append(dst, sign|byte(mag>>shift)&0x3f)
	for n > 2 {
		n--
		shift -= 7
		dst = append(dst, byte(mag>>shift)&0x7f)
	}
	return append(dst, byte(mag&0x7f)|0x80)
}
