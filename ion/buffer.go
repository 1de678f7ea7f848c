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
	"encoding/binary"
	"io"
	"math"
	"math/bits"
)

// Symbol represents an ion symbol ID.
// KFX symbol IDs fit in 32 bits.
type Symbol uint32

type segkind int

const (
	segstruct segkind = iota
	seglist
	segannotation
)

type segment struct {
	off, width int
	kind       segkind
}

// Buffer buffers ion objects.
//
// The contents of Buffer can be inspected directly with
// Buffer.Bytes() or written to an io.Writer with Buffer.WriteTo.
// Lengths of structs, lists, and annotations are backpatched
// when the matching End* call closes them.
type Buffer struct {
	buf  []byte
	segs []segment
}

// Set sets the buffer used by b and resets its state.
// Subsequent Write* calls append to the given buffer.
func (b *Buffer) Set(p []byte) {
	b.Reset()
	b.buf = p
}

// Bytes returns the current contents of the buffer.
func (b *Buffer) Bytes() []byte { return b.buf }

// Size returns the number of bytes in the buffer.
func (b *Buffer) Size() int { return len(b.buf) }

// Reset resets a buffer to its initial state.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.segs = b.segs[:0]
}

// Ok returns false if there are any open calls to BeginStruct,
// BeginList, or BeginAnnotation that have not been closed.
func (b *Buffer) Ok() bool { return len(b.segs) == 0 }

// WriteTo implements io.WriterTo.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	i, err := w.Write(b.buf)
	return int64(i), err
}

// WriteBVM writes the Ion 1.0 binary version marker.
func (b *Buffer) WriteBVM() {
	b.buf = append(b.buf, BVM[0], BVM[1], BVM[2], BVM[3])
}

// get the next n bytes at the end of the buffer
func (b *Buffer) grow(n int) []byte {
	off := len(b.buf)
	if cap(b.buf)-off >= n {
		b.buf = b.buf[:off+n]
	} else {
		nb := make([]byte, off+n, n+(2*off))
		copy(nb, b.buf)
		b.buf = nb
	}
	return b.buf[off:]
}

// write an integer as a VarUInt
func (b *Buffer) putuv(s uint64) {
	b.buf = AppendVarUint(b.buf, s)
}

// term backpatches the length of the segment that just ended.
func (b *Buffer) term(seg *segment) {
	size := len(b.buf) - (seg.off + seg.width)
	if size < 14 {
		// we over-allocated...
		if seg.width > 1 {
			copy(b.buf[seg.off+1:], b.buf[seg.off+seg.width:])
			b.buf = b.buf[:seg.off+1+size]
		}
		b.buf[seg.off] = b.buf[seg.off]&0xf0 | byte(size)
		return
	}
	// need one byte for the descriptor plus space for the uvarint
	needwidth := uvsize(uint64(size)) + 1
	if seg.width != needwidth {
		// if we didn't allocate enough space, make sure there is
		// enough room at the end of the buffer to shift the data
		for s := seg.width; s < needwidth; s++ {
			b.buf = append(b.buf, 0)
		}
		n := copy(b.buf[seg.off+needwidth:], b.buf[seg.off+seg.width:])
		seg.width = needwidth
		b.buf = b.buf[:seg.off+seg.width+n]
	}
	b.buf[seg.off] = b.buf[seg.off]&0xf0 | 0xe
	usize := size
	for i := seg.width - 1; i > 0; i-- {
		b.buf[seg.off+i] = byte(usize & 0x7f)
		usize >>= 7
	}
	b.buf[seg.off+seg.width-1] |= 0x80
}

// BeginStruct begins a structure. Fields should be written with
// paired calls to BeginField and one of the Write* methods, followed
// by Buffer.EndStruct.
func (b *Buffer) BeginStruct() {
	b.segs = append(b.segs, segment{
		off:   len(b.buf),
		width: 2,
		kind:  segstruct,
	})
	b.buf = append(b.buf, 0xde, 0)
}

// EndStruct ends a structure.
// It panics if not paired with a BeginStruct call.
func (b *Buffer) EndStruct() {
	s := &b.segs[len(b.segs)-1]
	if s.kind != segstruct {
		panic("EndStruct() called when current segment is not a struct")
	}
	b.segs = b.segs[:len(b.segs)-1]
	b.term(s)
}

// BeginList begins a list object.
func (b *Buffer) BeginList() {
	b.segs = append(b.segs, segment{
		off:   len(b.buf),
		width: 1, // assume the list is short
		kind:  seglist,
	})
	b.buf = append(b.buf, 0xb0)
}

// EndList ends a list object.
// It panics if not paired with a BeginList call.
func (b *Buffer) EndList() {
	s := &b.segs[len(b.segs)-1]
	if s.kind != seglist {
		panic("EndList() called when current segment is not a list")
	}
	b.segs = b.segs[:len(b.segs)-1]
	b.term(s)
}

// BeginAnnotation begins an annotation object wrapping one value.
// ids are the annotation symbol IDs preceding the wrapped object;
// there must be at least one.
func (b *Buffer) BeginAnnotation(ids ...Symbol) {
	if len(ids) == 0 {
		panic("BeginAnnotation() requires at least one annotation ID")
	}
	b.segs = append(b.segs, segment{
		off:   len(b.buf),
		width: 2,
		kind:  segannotation,
	})
	b.buf = append(b.buf, 0xe0, 0)
	alen := 0
	for _, id := range ids {
		alen += uvsize(uint64(id))
	}
	b.putuv(uint64(alen))
	for _, id := range ids {
		b.putuv(uint64(id))
	}
}

// EndAnnotation ends an annotation object.
func (b *Buffer) EndAnnotation() {
	s := &b.segs[len(b.segs)-1]
	if s.kind != segannotation {
		panic("EndAnnotation() called when current segment is not an annotation")
	}
	b.segs = b.segs[:len(b.segs)-1]
	b.term(s)
}

// BeginField begins a field of a structure.
func (b *Buffer) BeginField(sym Symbol) {
	b.putuv(uint64(sym))
}

// WriteBool writes a bool into the buffer.
func (b *Buffer) WriteBool(n bool) {
	bt := byte(0x10)
	if n {
		bt++
	}
	b.buf = append(b.buf, bt)
}

// WriteNull writes an untyped ion null into the buffer.
func (b *Buffer) WriteNull() {
	b.buf = append(b.buf, 0x0f)
}

// WriteTypedNull writes a null tagged with the given type.
func (b *Buffer) WriteTypedNull(t Type) {
	b.buf = append(b.buf, byte(t)<<4|0x0f)
}

// BeginString begins a string object with the given size.
// Typically this call is followed by UnsafeAppend calls that add
// the string contents.
func (b *Buffer) BeginString(size int) {
	if size < 14 {
		b.buf = append(b.buf, 0x80|byte(size))
	} else {
		b.buf = append(b.buf, 0x8e)
		b.putuv(uint64(size))
	}
}

// WriteString writes a string as an ion string into the buffer.
func (b *Buffer) WriteString(s string) {
	b.BeginString(len(s))
	copy(b.grow(len(s)), s)
}

// WriteInt writes an integer to the buffer.
func (b *Buffer) WriteInt(i int64) {
	mag := uint64(i)
	pre := byte(0x20)
	if i < 0 {
		mag = uint64(-i)
		pre = 0x30
	}
	b.writeint(mag, pre)
}

func (b *Buffer) writeint(mag uint64, pre byte) {
	// size of integer in bytes
	size := (bits.Len64(mag) + 7) >> 3
	b.buf = append(b.buf, pre|byte(size))
	mag = bits.ReverseBytes64(mag)
	mag >>= (8 - size) * 8
	for size != 0 {
		b.buf = append(b.buf, byte(mag))
		mag >>= 8
		size--
	}
}

// WriteUint writes an unsigned integer to the buffer.
func (b *Buffer) WriteUint(u uint64) {
	b.writeint(u, 0x20)
}

// WriteSymbol writes a symbol to the buffer.
func (b *Buffer) WriteSymbol(s Symbol) {
	b.writeint(uint64(s), 0x70)
}

// WriteFloat64 writes an ion float64 to the buffer.
func (b *Buffer) WriteFloat64(f float64) {
	if f == 0.0 && !math.Signbit(f) {
		b.buf = append(b.buf, 0x40)
		return
	}
	dst := b.grow(9)
	dst[0] = 0x48
	binary.BigEndian.PutUint64(dst[1:], math.Float64bits(f))
}

// WriteFloat32 writes an ion float32 to the buffer.
func (b *Buffer) WriteFloat32(f float32) {
	if f == 0.0 && !math.Signbit(float64(f)) {
		b.buf = append(b.buf, 0x40)
		return
	}
	dst := b.grow(5)
	dst[0] = 0x44
	binary.BigEndian.PutUint32(dst[1:], math.Float32bits(f))
}

// WriteBlob writes a []byte as an ion blob to the buffer.
func (b *Buffer) WriteBlob(p []byte) {
	if len(p) < 14 {
		b.buf = append(b.buf, 0xa0|byte(len(p)))
	} else {
		b.buf = append(b.buf, 0xae)
		b.putuv(uint64(len(p)))
	}
	copy(b.grow(len(p)), p)
}

// UnsafeAppend appends arbitrary data to the buffer.
func (b *Buffer) UnsafeAppend(buf []byte) {
	copy(b.grow(len(buf)), buf)
}

// StartChunk writes a BVM marker followed by the symbol table.
func (b *Buffer) StartChunk(symtab *Symtab) {
	symtab.Marshal(b, true)
}
