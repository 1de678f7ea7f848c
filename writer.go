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
	"encoding/binary"
	"fmt"

	"github.com/ebookfmt/kfx/ion"
	"golang.org/x/exp/slices"
)

// Serialize encodes the container to bytes. The output is
// always a version-2 container; version-1 inputs can be read
// but not re-written as version 1.
//
// Serialization is deterministic: fragments are emitted in
// the canonical type order and by ascending fid within a
// type, the local symbol table is rebuilt minimally in
// first-encountered order, and struct fields are sorted by
// ID. Any output of Serialize parses back to an equal
// container.
//
// A GeneratorInfo entry with key kfxgen_payload_sha1 and an
// empty value is filled with the SHA-1 of the entity bytes.
func Serialize(c *Container, sink DiagSink) ([]byte, error) {
	frags := orderFragments(c.Fragments)

	// rebuild a minimal local table in first-encountered
	// order and remap every symbol onto it
	var newst ion.Symtab
	remap, err := buildRemap(frags, &c.Symbols, &newst)
	if err != nil {
		return nil, err
	}
	for i := range frags {
		frags[i].FID = remap(frags[i].FID)
		frags[i].FType = remap(frags[i].FType)
		if frags[i].Value != nil {
			frags[i].Value = remapDatum(frags[i].Value, remap)
		}
		// mirror the read-path checks so that any output of
		// Serialize parses back cleanly
		if err := frags[i].Validate(&newst, sink); err != nil {
			return nil, err
		}
		warnDeprecated(&frags[i], &newst, sink)
	}

	// entity payload area and index table
	var entities []byte
	var tbl []byte
	var buf ion.Buffer
	for i := range frags {
		var payload []byte
		if frags[i].FType == SymRawMedia {
			payload = frags[i].Raw
		} else {
			buf.Reset()
			buf.WriteBVM()
			frags[i].Encode(&buf)
			if !buf.Ok() {
				return nil, fmt.Errorf("kfx: unbalanced encoding for fragment $%d/$%d", frags[i].FID, frags[i].FType)
			}
			payload = slices.Clone(buf.Bytes())
		}
		start := len(entities)
		entities = appendEntity(entities, payload)
		tbl = binary.LittleEndian.AppendUint32(tbl, uint32(frags[i].FID))
		tbl = binary.LittleEndian.AppendUint32(tbl, uint32(frags[i].FType))
		tbl = binary.LittleEndian.AppendUint64(tbl, uint64(start))
		tbl = binary.LittleEndian.AppendUint64(tbl, uint64(len(entities)-start))
	}

	// doc symbol table region, only when the container has
	// local symbols to declare (or the input carried one)
	var symRegion []byte
	if newst.LocalCount() > 0 || c.hasDocSymbols {
		buf.Reset()
		newst.Marshal(&buf, true)
		symRegion = slices.Clone(buf.Bytes())
	}

	// format capabilities region
	var capsRegion []byte
	if c.FormatCapabilities != nil {
		buf.Reset()
		buf.WriteBVM()
		buf.BeginAnnotation(SymFormatCapabilities)
		c.FormatCapabilities.Encode(&buf)
		buf.EndAnnotation()
		capsRegion = slices.Clone(buf.Bytes())
	}

	// header-region layout: index table, doc symbols, format
	// capabilities, container info, generator info; offsets
	// are relative to the end of the fixed header
	idx := region{0, int64(len(tbl))}
	sym := region{idx.length, int64(len(symRegion))}
	caps := region{sym.off + sym.length, int64(len(capsRegion))}
	infoOff := caps.off + caps.length

	id := c.ContainerID()
	if id == "" {
		id = NewACR()
	}
	infoRegionBytes := encodeContainerInfo(id, chunkSize(c.Info), extraInfoFields(c.Info), idx, sym, caps)

	gen, err := generatorRegion(c, entities)
	if err != nil {
		return nil, err
	}

	headerLen := contFixedSize + infoOff + int64(len(infoRegionBytes)) + int64(len(gen))
	out := make([]byte, 0, headerLen+int64(len(entities)))
	out = append(out, contMagic[:]...)
	out = binary.LittleEndian.AppendUint16(out, 2)
	out = binary.LittleEndian.AppendUint32(out, uint32(headerLen))
	out = binary.LittleEndian.AppendUint32(out, uint32(infoOff))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(infoRegionBytes)))
	out = append(out, tbl...)
	out = append(out, symRegion...)
	out = append(out, capsRegion...)
	out = append(out, infoRegionBytes...)
	out = append(out, gen...)
	out = append(out, entities...)
	return out, nil
}

// chunkSize returns the $412 value to re-emit: the input's, if
// it declared one, else the default.
func chunkSize(info ion.Struct) int64 {
	if f := info.Field(SymChunkSize); f != nil {
		if v, err := ion.AsInt(f); err == nil && v > 0 {
			return v
		}
	}
	return defaultChunkSize
}

// standardInfoFields are the container-info fields the writer
// regenerates itself; anything else in the input info struct is
// carried through unchanged.
var standardInfoFields = map[ion.Symbol]bool{
	SymContainerID:    true,
	SymCompression:    true,
	SymDRMScheme:      true,
	SymChunkSize:      true,
	SymIndexTabOffset: true,
	SymIndexTabLength: true,
	SymDocSymOffset:   true,
	SymDocSymLength:   true,
	SymFCOffset:       true,
	SymFCLength:       true,
}

func extraInfoFields(info ion.Struct) []ion.Field {
	var extra []ion.Field
	for i := range info.Fields {
		if !standardInfoFields[info.Fields[i].Sym] {
			extra = append(extra, info.Fields[i])
		}
	}
	slices.SortStableFunc(extra, func(a, b ion.Field) int {
		return int(a.Sym) - int(b.Sym)
	})
	return extra
}

func encodeContainerInfo(id string, chunk int64, extra []ion.Field, idx, sym, caps region) []byte {
	var b ion.Buffer
	b.WriteBVM()
	b.BeginStruct()
	b.BeginField(SymContainerID)
	b.WriteString(id)
	b.BeginField(SymCompression)
	b.WriteInt(0)
	b.BeginField(SymDRMScheme)
	b.WriteInt(0)
	b.BeginField(SymChunkSize)
	b.WriteInt(chunk)
	b.BeginField(SymIndexTabOffset)
	b.WriteInt(idx.off)
	b.BeginField(SymIndexTabLength)
	b.WriteInt(idx.length)
	b.BeginField(SymDocSymOffset)
	b.WriteInt(sym.off)
	b.BeginField(SymDocSymLength)
	b.WriteInt(sym.length)
	if caps.length > 0 {
		b.BeginField(SymFCOffset)
		b.WriteInt(caps.off)
		b.BeginField(SymFCLength)
		b.WriteInt(caps.length)
	}
	for i := range extra {
		b.BeginField(extra[i].Sym)
		extra[i].Value.Encode(&b)
	}
	b.EndStruct()
	return b.Bytes()
}

func generatorRegion(c *Container, entities []byte) ([]byte, error) {
	if c.GeneratorRaw == nil && len(c.GeneratorInfo) > 0 {
		kvs := slices.Clone(c.GeneratorInfo)
		for i := range kvs {
			if kvs[i].Key == GenKeyPayloadSHA1 && kvs[i].Value == "" {
				kvs[i].Value = payloadSHA1(entities)
			}
		}
		tmp := *c
		tmp.GeneratorInfo = kvs
		return appendGeneratorInfo(nil, &tmp)
	}
	return appendGeneratorInfo(nil, c)
}

// orderFragments returns a sorted copy: canonical type order
// first, unranked types after by numeric type ID, ascending
// fid within a type.
func orderFragments(frags []Fragment) []Fragment {
	out := slices.Clone(frags)
	rank := func(t ion.Symbol) int {
		if r, ok := typeRank[t]; ok {
			return r
		}
		return len(canonicalTypeOrder) + int(t)
	}
	slices.SortStableFunc(out, func(a, b Fragment) int {
		if ra, rb := rank(a.FType), rank(b.FType); ra != rb {
			return ra - rb
		}
		return int(a.FID) - int(b.FID)
	})
	return out
}

// buildRemap scans the ordered fragments for local symbols
// and interns them into newst in first-encountered order. The
// returned function maps old symbol IDs to new ones; system
// and shared IDs map to themselves.
func buildRemap(frags []Fragment, old *ion.Symtab, newst *ion.Symtab) (func(ion.Symbol) ion.Symbol, error) {
	var err error
	remap := func(s ion.Symbol) ion.Symbol {
		if s < old.SharedEnd() {
			return s
		}
		name, ok := old.NameForID(s)
		if !ok {
			if err == nil {
				err = &ion.UnknownSymbolError{Sym: s}
			}
			return s
		}
		return newst.Intern(name)
	}
	for i := range frags {
		remap(frags[i].FID)
		remap(frags[i].FType)
		if frags[i].Value != nil {
			walkSymbols(frags[i].Value, remap)
		}
	}
	if err != nil {
		return nil, err
	}
	return remap, nil
}

// walkSymbols visits every symbol ID in d in encoding order:
// struct fields are visited sorted by field ID so the intern
// order matches the bytes that will be written.
func walkSymbols(d ion.Datum, visit func(ion.Symbol) ion.Symbol) {
	switch v := d.(type) {
	case ion.SymbolDatum:
		visit(ion.Symbol(v))
	case ion.List:
		for i := range v.Items {
			walkSymbols(v.Items[i], visit)
		}
	case ion.Struct:
		fields := slices.Clone(v.Fields)
		slices.SortStableFunc(fields, func(a, b ion.Field) int {
			return int(a.Sym) - int(b.Sym)
		})
		for i := range fields {
			visit(fields[i].Sym)
			walkSymbols(fields[i].Value, visit)
		}
	case ion.Annotation:
		for _, id := range v.IDs {
			visit(id)
		}
		walkSymbols(v.Value, visit)
	}
}

// remapDatum rewrites every symbol ID in d through f,
// returning a new datum tree.
func remapDatum(d ion.Datum, f func(ion.Symbol) ion.Symbol) ion.Datum {
	switch v := d.(type) {
	case ion.SymbolDatum:
		return ion.SymbolDatum(f(ion.Symbol(v)))
	case ion.List:
		items := make([]ion.Datum, len(v.Items))
		for i := range v.Items {
			items[i] = remapDatum(v.Items[i], f)
		}
		return ion.List{Items: items}
	case ion.Struct:
		fields := make([]ion.Field, len(v.Fields))
		for i := range v.Fields {
			fields[i] = ion.Field{
				Sym:   f(v.Fields[i].Sym),
				Value: remapDatum(v.Fields[i].Value, f),
			}
		}
		return ion.Struct{Fields: fields}
	case ion.Annotation:
		ids := make([]ion.Symbol, len(v.IDs))
		for i := range v.IDs {
			ids[i] = f(v.IDs[i])
		}
		return ion.Annotation{IDs: ids, Value: remapDatum(v.Value, f)}
	}
	return d
}

// warnDeprecated reports deprecated shared symbols that are
// about to be written.
func warnDeprecated(f *Fragment, st *ion.Symtab, sink DiagSink) {
	if sink == nil || f.Value == nil {
		return
	}
	walkSymbols(f.Value, func(s ion.Symbol) ion.Symbol {
		if st.IsDeprecated(s) {
			warnFragf(sink, f.FID, f.FType, "emitting deprecated symbol $%d", s)
		}
		return s
	})
}
