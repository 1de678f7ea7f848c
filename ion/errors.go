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
	"errors"
	"fmt"
)

// Sentinel errors for malformed Ion input. Truncation is reported
// as io.ErrUnexpectedEOF so callers can use the usual errors.Is
// checks regardless of which layer detected it.
var (
	// ErrInvalidVarInt indicates a VarUInt/VarInt that is unterminated,
	// too long, or whose value does not fit the target integer width.
	ErrInvalidVarInt = errors.New("ion: invalid varint")

	// ErrInvalidLength indicates a length field that does not fit
	// inside its enclosing object or buffer.
	ErrInvalidLength = errors.New("ion: invalid length")

	// ErrInvalidTypeCode indicates a reserved or nonsensical
	// type descriptor byte.
	ErrInvalidTypeCode = errors.New("ion: invalid type code")

	// ErrInvalidUTF8 indicates a string whose payload is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("ion: string is not valid UTF-8")

	// ErrSortedStruct indicates a struct descriptor with L=1
	// ("sorted struct"), which KFX never produces and this
	// implementation rejects as malformed.
	ErrSortedStruct = errors.New("ion: sorted struct rejected")

	// ErrNotIon10 indicates a stream that does not begin with the
	// Ion 1.0 binary version marker E0 01 00 EA.
	ErrNotIon10 = errors.New("ion: expected Ion 1.0 binary version marker")
)

// TypeError is returned by read operations and typed accessors
// when the encoded data (or datum) has a different type than the
// one requested.
type TypeError struct {
	Wanted, Found Type
	Func          string
}

func (t *TypeError) Error() string {
	return fmt.Sprintf("ion.%s: found type %s, wanted type %s", t.Func, t.Found, t.Wanted)
}

func bad(got, want Type, fn string) error {
	return &TypeError{Wanted: want, Found: got, Func: fn}
}

// UnknownSymbolError is returned when a symbol ID used by an Ion
// value does not resolve against the owning symbol table.
type UnknownSymbolError struct {
	Sym Symbol
}

func (u *UnknownSymbolError) Error() string {
	return fmt.Sprintf("ion: symbol $%d not in symbol table", u.Sym)
}
