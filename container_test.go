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

package kfx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ebookfmt/kfx/ion"
)

func mustSerialize(t *testing.T, c *Container) []byte {
	t.Helper()
	buf, err := Serialize(c, DiscardDiags)
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func mustParse(t *testing.T, buf []byte) *Container {
	t.Helper()
	c, err := Parse(buf, DiscardDiags)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestEmptyContainerRoundTrip(t *testing.T) {
	c := &Container{
		Version: 2,
		Info: ion.NewStruct(
			ion.Field{Sym: SymContainerID, Value: ion.String("X")},
		),
	}
	first := mustSerialize(t, c)
	got := mustParse(t, first)
	if got.Version != 2 {
		t.Errorf("version %d", got.Version)
	}
	if got.ContainerID() != "X" {
		t.Errorf("container ID %q", got.ContainerID())
	}
	if len(got.Fragments) != 0 {
		t.Errorf("%d fragments in empty container", len(got.Fragments))
	}
	// the info struct carries the layout fields
	for _, sym := range []ion.Symbol{SymCompression, SymDRMScheme, SymChunkSize,
		SymIndexTabOffset, SymIndexTabLength, SymDocSymOffset, SymDocSymLength} {
		if got.Info.Field(sym) == nil {
			t.Errorf("info missing $%d", sym)
		}
	}
	second := mustSerialize(t, got)
	if !bytes.Equal(first, second) {
		t.Error("re-serialization is not byte-identical")
	}
}

func TestStyleFragmentRoundTrip(t *testing.T) {
	c := &Container{Version: 2}
	s1 := c.Symbols.Intern("s1")
	style := ion.NewStruct(
		ion.Field{Sym: SymStyleName, Value: ion.SymbolDatum(s1)},
		ion.Field{Sym: 34, Value: ion.SymbolDatum(321)},
		ion.Field{Sym: 47, Value: ion.NewStruct(
			ion.Field{Sym: 306, Value: ion.SymbolDatum(308)},
			ion.Field{Sym: 307, Value: ion.DecimalDatum{Decimal: ion.NewDecimal(1, 0)}},
		)},
	)
	c.Fragments = []Fragment{{FID: s1, FType: SymStyle, Value: style}}

	got := mustParse(t, mustSerialize(t, c))
	if len(got.Fragments) != 1 {
		t.Fatalf("%d fragments", len(got.Fragments))
	}
	f := got.Fragments[0]
	if f.FType != SymStyle {
		t.Errorf("ftype $%d", f.FType)
	}
	if id, ok := f.DeriveID(&got.Symbols); !ok || id != f.FID {
		t.Errorf("derived $%d, fid $%d", id, f.FID)
	}
	if !ion.Equal(f.Value, style) {
		t.Errorf("value changed: %#v", f.Value)
	}
	// 1d0 keeps its exponent
	sv, _ := ion.AsStruct(f.Value)
	inner, _ := ion.AsStruct(sv.Field(47))
	d, err := ion.AsDecimal(inner.Field(307))
	if err != nil {
		t.Fatal(err)
	}
	if d.Exp != 0 || d.String() != "1" {
		t.Errorf("decimal %s (exp %d)", d.String(), d.Exp)
	}
}

func TestRawMediaRoundTrip(t *testing.T) {
	jpeg := append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0xab}, 64)...)
	c := &Container{Version: 2}
	r0 := c.Symbols.Intern("r0")
	c.Fragments = []Fragment{{FID: r0, FType: SymRawMedia, Raw: jpeg}}

	buf := mustSerialize(t, c)
	got := mustParse(t, buf)
	if len(got.Fragments) != 1 {
		t.Fatalf("%d fragments", len(got.Fragments))
	}
	f := got.Fragments[0]
	if f.FType != SymRawMedia || f.Value != nil {
		t.Fatalf("fragment %+v", f)
	}
	if !bytes.Equal(f.Raw, jpeg) {
		t.Error("raw payload changed")
	}
	if SniffMediaType(f.Raw) != "image/jpeg" {
		t.Errorf("sniffed %q", SniffMediaType(f.Raw))
	}
	// the payload appears in the file unframed: the JPEG bytes
	// are the trailing bytes of the container
	if !bytes.HasSuffix(buf, jpeg) {
		t.Error("raw media payload is not stored verbatim")
	}
}

func TestTextContentChunks(t *testing.T) {
	c := &Container{Version: 2}
	t0 := c.Symbols.Intern("t0")
	text := ion.NewStruct(
		ion.Field{Sym: ion.SystemSymName, Value: ion.String("t0")},
		ion.Field{Sym: SymContentArray, Value: ion.NewList(
			ion.String("Hello "), ion.String("world"), ion.String(""),
		)},
	)
	c.Fragments = []Fragment{{FID: t0, FType: SymTextContent, Value: text}}

	got := mustParse(t, mustSerialize(t, c))
	f := got.Fragments[0]
	if id, ok := f.DeriveID(&got.Symbols); !ok || id != f.FID {
		t.Errorf("derived $%d, fid $%d", id, f.FID)
	}
	s, _ := ion.AsStruct(f.Value)
	lst, _ := ion.AsList(s.Field(SymContentArray))
	if len(lst.Items) != 3 {
		t.Fatalf("%d chunks", len(lst.Items))
	}
	// a storyline reference {$145:{name:"t0", $403:1}} points
	// at chunk 1
	chunk, err := f.TextChunk(1)
	if err != nil || chunk != "world" {
		t.Errorf("TextChunk(1) = %q, %v", chunk, err)
	}
	if _, err := f.TextChunk(2); err == nil {
		t.Error("terminator addressable as a chunk")
	}
}

func TestTextContentValidation(t *testing.T) {
	noTerm := Fragment{FID: 900, FType: SymTextContent, Value: ion.NewStruct(
		ion.Field{Sym: ion.SystemSymName, Value: ion.String("t")},
		ion.Field{Sym: SymContentArray, Value: ion.NewList(ion.String("x"))},
	)}
	var st ion.Symtab
	if err := noTerm.Validate(&st, DiscardDiags); err == nil {
		t.Error("missing terminator accepted")
	}

	big := string(bytes.Repeat([]byte{'a'}, maxTextChunkBytes+1))
	tooBig := Fragment{FID: 900, FType: SymTextContent, Value: ion.NewStruct(
		ion.Field{Sym: ion.SystemSymName, Value: ion.String("t")},
		ion.Field{Sym: SymContentArray, Value: ion.NewList(ion.String(big), ion.String(""))},
	)}
	if err := tooBig.Validate(&st, DiscardDiags); err == nil {
		t.Error("oversized content accepted")
	}
}

func TestDependencyMapAndClassification(t *testing.T) {
	var book Container
	secA := book.Symbols.Intern("section_A")
	resB := book.Symbols.Intern("resource_B")
	rawC := book.Symbols.Intern("rawmedia_C")

	depMap := ion.NewStruct(
		ion.Field{Sym: SymContentArray, Value: ion.NewList(
			ion.NewList(ion.SymbolDatum(secA), ion.SymbolDatum(resB)),
			ion.NewList(ion.SymbolDatum(resB), ion.SymbolDatum(rawC)),
		)},
	)
	frags := []Fragment{
		{FID: SymContainerEntityMap, FType: SymContainerEntityMap, Value: depMap},
		{FID: SymKindleMetadata, FType: SymKindleMetadata, Value: ion.NewStruct()},
		{FID: secA, FType: SymSection, Value: ion.NewStruct(
			ion.Field{Sym: SymSectionName, Value: ion.SymbolDatum(secA)},
		)},
		{FID: resB, FType: SymResource, Value: ion.NewStruct(
			ion.Field{Sym: SymResourceName, Value: ion.SymbolDatum(resB)},
			ion.Field{Sym: SymLocation, Value: ion.SymbolDatum(rawC)},
		)},
		{FID: rawC, FType: SymRawMedia, Raw: []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}},
	}

	main, meta, attach := PartitionBook(frags, DiscardDiags)
	if len(main) != 1 || main[0].FType != SymSection {
		t.Errorf("main partition: %d fragments", len(main))
	}
	if len(meta) != 2 {
		t.Errorf("metadata partition: %d fragments", len(meta))
	}
	if len(attach) != 1 || attach[0].FType != SymRawMedia {
		t.Errorf("attachable partition: %d fragments", len(attach))
	}
	// resources are neither main nor metadata; they default
	// to main with a warning
	var diags collected
	main, _, _ = PartitionBook(frags, &diags)
	if len(main) != 2 {
		t.Errorf("main partition with resource: %d fragments", len(main))
	}
	if len(diags.all) == 0 {
		t.Error("no diagnostic for unclassified type")
	}

	// each partition serializes to a container of its class,
	// and the dependency map survives the round trip
	for _, tc := range []struct {
		frags []Fragment
		want  ContainerClass
	}{
		{meta, ClassMetadata},
		{attach, ClassAttachable},
	} {
		src := &Container{Version: 2, Symbols: book.Symbols, Fragments: tc.frags}
		got := mustParse(t, mustSerialize(t, src))
		if got.Class() != tc.want {
			t.Errorf("class %s, want %s", got.Class(), tc.want)
		}
		for i := range got.Fragments {
			if got.Fragments[i].FType == SymContainerEntityMap {
				if !ion.Equal(got.Fragments[i].Value, depMap) {
					t.Error("dependency map changed")
				}
			}
		}
	}
}

func TestSortedStructRejectedAtOffset(t *testing.T) {
	// entity payload: BVM, fragment annotation wrapping a
	// sorted struct (descriptor D1)
	var b ion.Buffer
	b.WriteBVM()
	b.BeginAnnotation(SymStyle, SymStyle)
	b.UnsafeAppend([]byte{0xd3, 0x84, 0x21, 0x01})
	b.EndAnnotation()
	payload := b.Bytes()
	idx := bytes.IndexByte(payload, 0xd3)
	payload[idx] = 0xd1

	buf := buildContainer(t, SymStyle, SymStyle, payload)
	_, err := Parse(buf, DiscardDiags)
	if !errors.Is(err, ion.ErrSortedStruct) {
		t.Fatalf("got %v, want ErrSortedStruct", err)
	}
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Offset <= 0 {
		t.Errorf("no offset attached: %v", err)
	}
}

func TestContainerPolicyRejected(t *testing.T) {
	// a container-info struct declaring nonzero compression
	// or DRM aborts the parse
	build := func(field ion.Symbol, v int64) []byte {
		var b ion.Buffer
		b.WriteBVM()
		b.BeginStruct()
		b.BeginField(SymContainerID)
		b.WriteString("X")
		b.BeginField(field)
		b.WriteInt(v)
		b.EndStruct()
		info := b.Bytes()
		headerLen := contFixedSize + len(info)
		out := append([]byte{}, contMagic[:]...)
		out = binary.LittleEndian.AppendUint16(out, 2)
		out = binary.LittleEndian.AppendUint32(out, uint32(headerLen))
		out = binary.LittleEndian.AppendUint32(out, 0)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(info)))
		return append(out, info...)
	}
	if _, err := Parse(build(SymCompression, 1), nil); !errors.Is(err, ErrUnsupportedCompression) {
		t.Errorf("compression: %v", err)
	}
	if _, err := Parse(build(SymDRMScheme, 2), nil); !errors.Is(err, ErrUnsupportedDRM) {
		t.Errorf("drm: %v", err)
	}
}

func TestHostileRegionOffset(t *testing.T) {
	// a header-region offset near MaxInt64 must come back as a
	// length error, not overflow the bounds check
	var b ion.Buffer
	b.WriteBVM()
	b.BeginStruct()
	b.BeginField(SymContainerID)
	b.WriteString("X")
	b.BeginField(SymIndexTabOffset)
	b.WriteInt(math.MaxInt64 - 10)
	b.BeginField(SymIndexTabLength)
	b.WriteInt(24)
	b.EndStruct()
	info := b.Bytes()
	headerLen := contFixedSize + len(info)
	out := append([]byte{}, contMagic[:]...)
	out = binary.LittleEndian.AppendUint16(out, 2)
	out = binary.LittleEndian.AppendUint32(out, uint32(headerLen))
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(info)))
	out = append(out, info...)

	_, err := Parse(out, DiscardDiags)
	if !errors.Is(err, ion.ErrInvalidLength) {
		t.Fatalf("got %v, want ErrInvalidLength", err)
	}
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Errorf("no offset attached: %v", err)
	}
}

func TestHostileEntityOffset(t *testing.T) {
	// an index entry whose offset is near MaxInt64 must fail the
	// bounds check rather than overflow it
	var b ion.Buffer
	b.WriteBVM()
	b.BeginAnnotation(SymDocumentData, SymDocumentData)
	b.BeginStruct()
	b.EndStruct()
	b.EndAnnotation()
	buf := buildContainer(t, SymDocumentData, SymDocumentData, b.Bytes())
	binary.LittleEndian.PutUint64(buf[contFixedSize+8:], uint64(math.MaxInt64-5))

	_, err := Parse(buf, DiscardDiags)
	if !errors.Is(err, ion.ErrInvalidLength) {
		t.Fatalf("got %v, want ErrInvalidLength", err)
	}
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Errorf("no offset attached: %v", err)
	}
}

func TestParseWarnsOnDeprecated(t *testing.T) {
	c := &Container{Version: 2}
	s1 := c.Symbols.Intern("s1")
	c.Fragments = []Fragment{{FID: s1, FType: SymStyle, Value: ion.NewStruct(
		ion.Field{Sym: SymStyleName, Value: ion.SymbolDatum(s1)},
		ion.Field{Sym: 700, Value: ion.SymbolDatum(737)},
	)}}
	buf := mustSerialize(t, c)

	var diags collected
	if _, err := Parse(buf, &diags); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range diags.all {
		if d.FType == SymStyle && strings.Contains(d.Msg, "deprecated") {
			found = true
		}
	}
	if !found {
		t.Errorf("no deprecation warning on input: %v", diags.all)
	}
}

func TestEntityPolicy(t *testing.T) {
	// nonzero compression in an entity header is fatal
	var b ion.Buffer
	b.WriteBVM()
	b.BeginStruct()
	b.BeginField(SymCompression)
	b.WriteInt(1)
	b.BeginField(SymDRMScheme)
	b.WriteInt(0)
	b.EndStruct()
	err := checkEntityInfo(b.Bytes(), 0)
	if !errors.Is(err, ErrUnsupportedCompression) {
		t.Errorf("got %v, want ErrUnsupportedCompression", err)
	}

	b.Reset()
	b.WriteBVM()
	b.BeginStruct()
	b.BeginField(SymCompression)
	b.WriteInt(0)
	b.BeginField(SymDRMScheme)
	b.WriteInt(2)
	b.EndStruct()
	err = checkEntityInfo(b.Bytes(), 0)
	if !errors.Is(err, ErrUnsupportedDRM) {
		t.Errorf("got %v, want ErrUnsupportedDRM", err)
	}
}

func TestEntityHeaderTooLong(t *testing.T) {
	ent := appendEntity(nil, []byte("payload"))
	// claim a header_len past the end of the entity
	binary.LittleEndian.PutUint32(ent[6:], uint32(len(ent)+1))
	_, err := parseEntityHeader(ent, 0)
	if !errors.Is(err, ion.ErrInvalidLength) {
		t.Errorf("got %v, want ErrInvalidLength", err)
	}
}

func TestBadMagicAndVersion(t *testing.T) {
	if _, err := Parse([]byte("NOTKFX container bytes"), nil); !errors.Is(err, ErrBadMagic) {
		t.Errorf("bad magic: %v", err)
	}
	good := mustSerialize(t, &Container{Version: 2})
	bad := bytes.Clone(good)
	binary.LittleEndian.PutUint16(bad[4:], 9)
	if _, err := Parse(bad, nil); !errors.Is(err, ErrBadVersion) {
		t.Errorf("bad version: %v", err)
	}
	if _, err := Parse(good[:10], nil); err == nil {
		t.Error("truncated container accepted")
	}
}

// buildContainer assembles a minimal container by hand around
// one entity payload.
func buildContainer(t *testing.T, fid, ftype ion.Symbol, payload []byte) []byte {
	t.Helper()
	entity := appendEntity(nil, payload)
	var tbl []byte
	tbl = binary.LittleEndian.AppendUint32(tbl, uint32(fid))
	tbl = binary.LittleEndian.AppendUint32(tbl, uint32(ftype))
	tbl = binary.LittleEndian.AppendUint64(tbl, 0)
	tbl = binary.LittleEndian.AppendUint64(tbl, uint64(len(entity)))
	info := encodeContainerInfo("X", defaultChunkSize, nil, region{0, int64(len(tbl))}, region{int64(len(tbl)), 0}, region{int64(len(tbl)), 0})
	headerLen := contFixedSize + len(tbl) + len(info)
	out := append([]byte{}, contMagic[:]...)
	out = binary.LittleEndian.AppendUint16(out, 2)
	out = binary.LittleEndian.AppendUint32(out, uint32(headerLen))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(tbl)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(info)))
	out = append(out, tbl...)
	out = append(out, info...)
	return append(out, entity...)
}
