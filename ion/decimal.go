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
	"math/big"
	"strings"
)

// Decimal is an arbitrary-precision decimal value,
// coefficient * 10^exponent.
//
// The exponent is preserved exactly across decode and encode,
// so 1.00 (coefficient 100, exponent -2) stays distinct from
// 1 (coefficient 1, exponent 0). Style dimension values in
// books rely on this distinction surviving a round trip.
type Decimal struct {
	// Coef is the signed coefficient.
	// A nil Coef is treated as zero.
	Coef *big.Int
	// Exp is the base-10 exponent.
	Exp int
}

// NewDecimal constructs a decimal from an int64 coefficient
// and a base-10 exponent.
func NewDecimal(coef int64, exp int) Decimal {
	return Decimal{Coef: big.NewInt(coef), Exp: exp}
}

// Zero returns true if the coefficient is zero,
// regardless of exponent.
func (d *Decimal) Zero() bool {
	return d.Coef == nil || d.Coef.Sign() == 0
}

// Equal returns true if d and other have the same
// coefficient and exponent. 1.00 and 1 are not Equal.
func (d *Decimal) Equal(other *Decimal) bool {
	if d.Exp != other.Exp {
		return false
	}
	if d.Zero() || other.Zero() {
		return d.Zero() == other.Zero() &&
			d.negcoef() == other.negcoef()
	}
	return d.Coef.Cmp(other.Coef) == 0
}

func (d *Decimal) negcoef() bool {
	return d.Coef != nil && d.Coef.Sign() < 0
}

// String formats the decimal in the conventional
// coefficient-with-point notation, e.g. "1.00" or "25d3".
func (d *Decimal) String() string {
	var mag string
	neg := false
	if d.Coef == nil {
		mag = "0"
	} else {
		neg = d.Coef.Sign() < 0
		mag = new(big.Int).Abs(d.Coef).String()
	}
	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	switch {
	case d.Exp == 0:
		sb.WriteString(mag)
	case d.Exp < 0 && -d.Exp < len(mag):
		point := len(mag) + d.Exp
		sb.WriteString(mag[:point])
		sb.WriteByte('.')
		sb.WriteString(mag[point:])
	case d.Exp < 0 && -d.Exp >= len(mag):
		sb.WriteString("0.")
		for i := len(mag); i < -d.Exp; i++ {
			sb.WriteByte('0')
		}
		sb.WriteString(mag)
	default:
		sb.WriteString(mag)
		fmt.Fprintf(&sb, "d%d", d.Exp)
	}
	return sb.String()
}

// ReadDecimal reads an ion decimal from the front of msg
// and returns the remaining message bytes.
func ReadDecimal(msg []byte) (Decimal, []byte, error) {
	if len(msg) == 0 {
		return Decimal{}, nil, io.ErrUnexpectedEOF
	}
	if TypeOf(msg) != DecimalType {
		return Decimal{}, nil, bad(TypeOf(msg), DecimalType, "ReadDecimal")
	}
	body, rest := Contents(msg)
	if body == nil {
		return Decimal{}, nil, ErrInvalidLength
	}
	// zero-length body means 0d0
	if len(body) == 0 {
		return Decimal{Coef: new(big.Int)}, rest, nil
	}
	exp, body, err := ReadVarInt(body)
	if err != nil {
		return Decimal{}, nil, err
	}
	coef := new(big.Int)
	if len(body) > 0 {
		// sign-magnitude Int: the sign lives in the high bit
		// of the first magnitude byte
		neg := body[0]&0x80 != 0
		mag := make([]byte, len(body))
		copy(mag, body)
		mag[0] &= 0x7f
		coef.SetBytes(mag)
		if neg {
			coef.Neg(coef)
		}
	}
	return Decimal{Coef: coef, Exp: int(exp)}, rest, nil
}

// WriteDecimal writes d to the buffer as an ion decimal.
//
// The canonical form is used: 0d0 encodes as an empty body,
// and the coefficient magnitude gets a leading zero byte
// when its high bit would otherwise collide with the sign.
func (b *Buffer) WriteDecimal(d *Decimal) {
	if d.Zero() && d.Exp == 0 && !d.negcoef() {
		b.buf = append(b.buf, 0x50)
		return
	}
	var body []byte
	body = AppendVarInt(body, int64(d.Exp))
	neg := d.negcoef()
	var mag []byte
	if d.Coef != nil {
		mag = new(big.Int).Abs(d.Coef).Bytes()
	}
	if len(mag) == 0 {
		if neg {
			// negative zero coefficient
			mag = []byte{0x80}
		}
	} else if mag[0]&0x80 != 0 {
		// high bit taken; pad so the sign bit is unambiguous
		mag = append([]byte{0}, mag...)
	}
	if len(mag) > 0 && neg {
		mag[0] |= 0x80
	}
	body = append(body, mag...)
	if len(body) < 14 {
		b.buf = append(b.buf, 0x50|byte(len(body)))
	} else {
		b.buf = append(b.buf, 0x5e)
		b.putuv(uint64(len(body)))
	}
	b.buf = append(b.buf, body...)
}
