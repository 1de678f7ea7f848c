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
	"testing"
)

func TestBVM(t *testing.T) {
	ok := []byte{0xe0, 0x01, 0x00, 0xea, 0x20}
	if !IsBVM(ok) {
		t.Error("valid BVM not recognized")
	}
	rest, err := CheckBVM(ok)
	if err != nil || len(rest) != 1 {
		t.Errorf("CheckBVM: rest=%d err=%v", len(rest), err)
	}
	bad := [][]byte{
		{},
		{0xe0, 0x01, 0x00},
		{0xe0, 0x01, 0x01, 0xea},
		{0xe1, 0x01, 0x00, 0xea},
	}
	for _, in := range bad {
		if _, err := CheckBVM(in); err == nil {
			t.Errorf("input %x: CheckBVM accepted", in)
		}
	}
}

func TestSizeOf(t *testing.T) {
	cases := []struct {
		in   []byte
		want int
	}{
		{[]byte{0x0f}, 1},                // null
		{[]byte{0x11}, 1},                // true
		{[]byte{0x21, 0x07}, 2},          // int 7
		{[]byte{0x83, 'a', 'b', 'c'}, 4}, // "abc"
		{[]byte{0x2e, 0x90, 1, 2, 3, 4, 5, 6, 7, 8,
			9, 10, 11, 12, 13, 14, 15, 16}, 18}, // 16-byte int
		{[]byte{0xbf}, 1}, // null.list
	}
	for _, c := range cases {
		if got := SizeOf(c.in); got != c.want {
			t.Errorf("SizeOf(%x) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestTypedNulls(t *testing.T) {
	cases := []struct {
		in   byte
		want Type
	}{
		{0x0f, NullType},
		{0x1f, BoolType},
		{0x2f, UintType},
		{0x5f, DecimalType},
		{0x8f, StringType},
		{0xbf, ListType},
		{0xdf, StructType},
	}
	for _, c := range cases {
		d, rest, err := ReadDatum([]byte{c.in})
		if err != nil {
			t.Fatalf("descriptor %02x: %s", c.in, err)
		}
		n, ok := d.(Null)
		if !ok || n.Of != c.want || len(rest) != 0 {
			t.Errorf("descriptor %02x: got %#v", c.in, d)
		}
	}
}

func TestReadStringRejectsBadUTF8(t *testing.T) {
	_, _, err := ReadString([]byte{0x82, 0xff, 0xfe})
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("got %v, want ErrInvalidUTF8", err)
	}
}

func TestSortedStructRejected(t *testing.T) {
	in := []byte{0xd1, 0x83, 0x84, 0x85, 0x21, 0x01}
	_, _, err := ReadDatum(in)
	if !errors.Is(err, ErrSortedStruct) {
		t.Errorf("got %v, want ErrSortedStruct", err)
	}
}

func TestReadAnnotationIDs(t *testing.T) {
	// $20::$21::true
	in := []byte{0xe4, 0x82, 0x94, 0x95, 0x11}
	ids, body, rest, err := ReadAnnotationIDs(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 20 || ids[1] != 21 {
		t.Errorf("ids = %v", ids)
	}
	if len(body) != 1 || body[0] != 0x11 || len(rest) != 0 {
		t.Errorf("body=%x rest=%x", body, rest)
	}
}
