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
	"fmt"
	"io"
	"time"
)

// TimestampPrecision indicates how many components of a
// timestamp were actually present in its encoding.
type TimestampPrecision int

const (
	PrecisionYear TimestampPrecision = iota
	PrecisionMonth
	PrecisionDay
	PrecisionMinute
	PrecisionSecond
	PrecisionFraction
)

// Timestamp is an ion timestamp with its original precision
// and UTC offset preserved.
//
// Components beyond Precision hold their zero defaults
// (month and day default to 1) so a Timestamp can always be
// converted to a time.Time.
type Timestamp struct {
	// Offset is the UTC offset in minutes.
	// Only meaningful when HasOffset is true; a timestamp
	// encoded with the unknown offset -00:00 has HasOffset
	// false and Offset zero.
	Offset    int
	HasOffset bool

	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int

	// FracExp and FracCoef describe the fractional-second
	// component as FracCoef * 10^FracExp seconds. They are
	// only meaningful at PrecisionFraction.
	FracExp  int
	FracCoef int64

	Precision TimestampPrecision
}

// NewTimestamp builds a second-precision UTC timestamp
// from a time.Time.
func NewTimestamp(t time.Time) Timestamp {
	t = t.UTC()
	return Timestamp{
		HasOffset: true,
		Year:      t.Year(),
		Month:     int(t.Month()),
		Day:       t.Day(),
		Hour:      t.Hour(),
		Minute:    t.Minute(),
		Second:    t.Second(),
		Precision: PrecisionSecond,
	}
}

// Time converts the timestamp to a time.Time, dropping any
// sub-nanosecond precision. Timestamps with no offset are
// interpreted as UTC.
func (t *Timestamp) Time() time.Time {
	month := t.Month
	if month == 0 {
		month = 1
	}
	day := t.Day
	if day == 0 {
		day = 1
	}
	loc := time.UTC
	if t.HasOffset && t.Offset != 0 {
		loc = time.FixedZone("", t.Offset*60)
	}
	nsec := 0
	if t.Precision >= PrecisionFraction {
		f := float64(t.FracCoef)
		for e := t.FracExp; e < 0; e++ {
			f /= 10
		}
		for e := t.FracExp; e > 0; e-- {
			f *= 10
		}
		nsec = int(f * 1e9)
	}
	return time.Date(t.Year, time.Month(month), day, t.Hour, t.Minute, t.Second, nsec, loc)
}

func (t *Timestamp) String() string {
	return t.Time().Format(time.RFC3339Nano)
}

// Equal compares two timestamps component by component,
// including precision and offset.
func (t *Timestamp) Equal(other *Timestamp) bool {
	return *t == *other
}

// ReadTimestamp reads an ion timestamp from the front of msg
// and returns the remaining message bytes.
func ReadTimestamp(msg []byte) (Timestamp, []byte, error) {
	if len(msg) == 0 {
		return Timestamp{}, nil, io.ErrUnexpectedEOF
	}
	if TypeOf(msg) != TimestampType {
		return Timestamp{}, nil, bad(TypeOf(msg), TimestampType, "ReadTimestamp")
	}
	body, rest := Contents(msg)
	if body == nil {
		return Timestamp{}, nil, ErrInvalidLength
	}
	var out Timestamp
	// the offset is a VarInt where negative zero (-00:00)
	// means "offset unknown"
	mag, body, neg, err := readVarIntMag(body)
	if err != nil {
		return Timestamp{}, nil, err
	}
	if neg && mag == 0 {
		out.HasOffset = false
	} else {
		out.HasOffset = true
		out.Offset = int(mag)
		if neg {
			out.Offset = -out.Offset
		}
	}
	next := func() (int, bool, error) {
		if len(body) == 0 {
			return 0, false, nil
		}
		v, rest, err := ReadVarUint(body)
		if err != nil {
			return 0, false, err
		}
		body = rest
		return int(v), true, nil
	}
	comps := []struct {
		dst  *int
		prec TimestampPrecision
	}{
		{&out.Year, PrecisionYear},
		{&out.Month, PrecisionMonth},
		{&out.Day, PrecisionDay},
		{&out.Hour, PrecisionMinute},
		{&out.Minute, PrecisionMinute},
		{&out.Second, PrecisionSecond},
	}
	for i := range comps {
		v, ok, err := next()
		if err != nil {
			return Timestamp{}, nil, err
		}
		if !ok {
			if comps[i].prec == PrecisionYear {
				return Timestamp{}, nil, fmt.Errorf("ion.ReadTimestamp: %w: missing year", ErrInvalidLength)
			}
			// hour without minute is not a valid precision
			if comps[i].prec == PrecisionMinute && comps[i].dst == &out.Minute {
				return Timestamp{}, nil, fmt.Errorf("ion.ReadTimestamp: %w: hour without minute", ErrInvalidLength)
			}
			return out, rest, nil
		}
		*comps[i].dst = v
		out.Precision = comps[i].prec
	}
	if len(body) > 0 {
		// fractional seconds: VarInt exponent plus Int coefficient
		exp, fbody, err := ReadVarInt(body)
		if err != nil {
			return Timestamp{}, nil, err
		}
		var coef int64
		if len(fbody) > 0 {
			neg := fbody[0]&0x80 != 0
			u := uint64(fbody[0] & 0x7f)
			for _, b := range fbody[1:] {
				u = u<<8 | uint64(b)
			}
			coef = int64(u)
			if neg {
				coef = -coef
			}
		}
		// a fraction of 0d0 or 0d-0 adds no precision
		if exp < 0 || coef != 0 {
			out.Precision = PrecisionFraction
			out.FracExp = int(exp)
			out.FracCoef = coef
		}
	}
	return out, rest, nil
}

// WriteTimestamp writes t to the buffer as an ion timestamp.
func (b *Buffer) WriteTimestamp(t *Timestamp) {
	var body []byte
	if t.HasOffset {
		body = AppendVarInt(body, int64(t.Offset))
	} else {
		// negative zero: offset unknown
		body = append(body, 0xc0)
	}
	body = AppendVarUint(body, uint64(t.Year))
	if t.Precision >= PrecisionMonth {
		body = AppendVarUint(body, uint64(t.Month))
	}
	if t.Precision >= PrecisionDay {
		body = AppendVarUint(body, uint64(t.Day))
	}
	if t.Precision >= PrecisionMinute {
		body = AppendVarUint(body, uint64(t.Hour))
		body = AppendVarUint(body, uint64(t.Minute))
	}
	if t.Precision >= PrecisionSecond {
		body = AppendVarUint(body, uint64(t.Second))
	}
	if t.Precision >= PrecisionFraction {
		body = AppendVarInt(body, int64(t.FracExp))
		mag := uint64(t.FracCoef)
		var sign byte
		if t.FracCoef < 0 {
			mag = uint64(-t.FracCoef)
			sign = 0x80
		}
		if mag != 0 || sign != 0 {
			size := 1
			for mag>>(uint(size-1)*8) > 0x7f {
				size++
			}
			for i := size - 1; i >= 0; i-- {
				by := byte(mag >> (uint(i) * 8))
				if i == size-1 {
					by |= sign
				}
				body = append(body, by)
			}
		}
	}
	if len(body) < 14 {
		b.buf = append(b.buf, 0x60|byte(len(body)))
	} else {
		b.buf = append(b.buf, 0x6e)
		b.putuv(uint64(len(body)))
	}
	b.buf = append(b.buf, body...)
}
