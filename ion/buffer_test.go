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
	"strings"
	"testing"
)

func TestBufferSmallStruct(t *testing.T) {
	var b Buffer
	b.BeginStruct()
	b.BeginField(4)
	b.WriteString("ab")
	b.EndStruct()
	want := []byte{0xd4, 0x84, 0x82, 'a', 'b'}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("got %x, want %x", b.Bytes(), want)
	}
	if !b.Ok() {
		t.Error("unbalanced buffer")
	}
}

func TestBufferBackpatchLongStruct(t *testing.T) {
	// a struct body over 14 bytes forces the descriptor into
	// the VarUInt length form
	long := strings.Repeat("x", 40)
	var b Buffer
	b.BeginStruct()
	b.BeginField(4)
	b.WriteString(long)
	b.EndStruct()
	out := b.Bytes()
	if out[0] != 0xde {
		t.Fatalf("descriptor %02x, want de", out[0])
	}
	d, rest, err := ReadDatum(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Errorf("%d trailing bytes", len(rest))
	}
	s, err := AsStruct(d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := AsString(s.Field(4))
	if err != nil || got != long {
		t.Errorf("field readback: %q, %v", got, err)
	}
}

func TestBufferNestedBackpatch(t *testing.T) {
	// nesting where every level crosses the 14-byte boundary
	var b Buffer
	b.BeginList()
	for i := 0; i < 4; i++ {
		b.BeginStruct()
		b.BeginField(4)
		b.WriteString(strings.Repeat("y", 20))
		b.EndStruct()
	}
	b.EndList()
	d, _, err := ReadDatum(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	l, err := AsList(d)
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Items) != 4 {
		t.Errorf("%d items, want 4", len(l.Items))
	}
}

func TestBufferAnnotation(t *testing.T) {
	var b Buffer
	b.BeginAnnotation(600, 417)
	b.WriteBool(true)
	b.EndAnnotation()
	ids, body, rest, err := ReadAnnotationIDs(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 600 || ids[1] != 417 {
		t.Errorf("ids = %v", ids)
	}
	if len(body) != 1 || body[0] != 0x11 || len(rest) != 0 {
		t.Errorf("body=%x rest=%x", body, rest)
	}
}

func TestBufferIntWidths(t *testing.T) {
	cases := []struct {
		in   int64
		want []byte
	}{
		{0, []byte{0x20}},
		{1, []byte{0x21, 0x01}},
		{-1, []byte{0x31, 0x01}},
		{255, []byte{0x21, 0xff}},
		{256, []byte{0x22, 0x01, 0x00}},
		{-4096, []byte{0x32, 0x10, 0x00}},
	}
	for _, c := range cases {
		var b Buffer
		b.WriteInt(c.in)
		if !bytes.Equal(b.Bytes(), c.want) {
			t.Errorf("WriteInt(%d) = %x, want %x", c.in, b.Bytes(), c.want)
		}
		got, _, err := ReadInt(c.want)
		if err != nil || got != c.in {
			t.Errorf("ReadInt(%x) = %d, %v", c.want, got, err)
		}
	}
}

func TestBufferFloats(t *testing.T) {
	var b Buffer
	b.WriteFloat64(0)
	if !bytes.Equal(b.Bytes(), []byte{0x40}) {
		t.Errorf("zero float encoded as %x", b.Bytes())
	}
	b.Reset()
	b.WriteFloat32(1.5)
	if b.Bytes()[0] != 0x44 {
		t.Errorf("float32 descriptor %02x", b.Bytes()[0])
	}
	f, _, err := ReadFloat32(b.Bytes())
	if err != nil || f != 1.5 {
		t.Errorf("readback %v, %v", f, err)
	}
	b.Reset()
	b.WriteFloat64(3.25)
	g, _, err := ReadFloat64(b.Bytes())
	if err != nil || g != 3.25 {
		t.Errorf("readback %v, %v", g, err)
	}
}
