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
	"fmt"

	"github.com/ebookfmt/kfx/ion"
)

// Fragment is one unit of book content: an identified, typed
// Ion value. On disk a fragment is an annotation with exactly
// two annotation IDs, fid then ftype, wrapping the value.
//
// Raw-media fragments ($417) carry opaque bytes in Raw and a
// nil Value; every other type carries an Ion Value and nil Raw.
type Fragment struct {
	FID   ion.Symbol
	FType ion.Symbol
	Value ion.Datum
	Raw   []byte
}

// IsRoot reports whether the fragment's type is a root type,
// which requires fid == ftype.
func (f *Fragment) IsRoot() bool { return rootFragmentTypes[f.FType] }

// DeriveID computes the fragment ID implied by the fragment's
// value. Root fragments derive their own type. Identifiable
// types read the ID-key field of the value; $145 matches its
// textual name against the symbol table. The second return is
// false when the type carries no derivable ID (raw media, or
// types outside the identifiable set).
func (f *Fragment) DeriveID(st *ion.Symtab) (ion.Symbol, bool) {
	if f.IsRoot() {
		return f.FType, true
	}
	key, ok := idKeyForType[f.FType]
	if !ok || f.FType == SymRawMedia {
		return 0, false
	}
	s, err := ion.AsStruct(f.Value)
	if err != nil {
		return 0, false
	}
	field := s.Field(key)
	if field == nil {
		return 0, false
	}
	if f.FType == SymTextContent {
		name, err := ion.AsString(field)
		if err != nil {
			return 0, false
		}
		id, ok := st.IDForName(name)
		return id, ok
	}
	id, err := ion.AsSymbol(field)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Validate checks the fragment's identity rules against the
// symbol table. Root-type violations are returned as errors;
// non-root mismatches between the annotation fid and the
// derived ID are reported to sink.
func (f *Fragment) Validate(st *ion.Symtab, sink DiagSink) error {
	if f.IsRoot() && f.FID != f.FType {
		return fmt.Errorf("%w: root fragment $%d annotated with fid $%d", ErrBadFragment, f.FType, f.FID)
	}
	if f.FType == SymTextContent {
		if err := f.checkTextContent(); err != nil {
			return err
		}
	}
	if id, ok := f.DeriveID(st); ok && id != f.FID {
		warnFragf(sink, f.FID, f.FType, "annotation fid does not match derived ID $%d", id)
	}
	return nil
}

// checkTextContent enforces the $145 shape: the content array
// ends with an empty-string terminator, and the non-terminator
// chunks total at most 8192 UTF-8 bytes.
func (f *Fragment) checkTextContent() error {
	s, err := ion.AsStruct(f.Value)
	if err != nil {
		return fmt.Errorf("%w: text content: %v", ErrBadFragment, err)
	}
	arr := s.Field(SymContentArray)
	if arr == nil {
		return fmt.Errorf("%w: text content without $%d", ErrBadFragment, SymContentArray)
	}
	lst, err := ion.AsList(arr)
	if err != nil {
		return fmt.Errorf("%w: text content: %v", ErrBadFragment, err)
	}
	if len(lst.Items) == 0 {
		return fmt.Errorf("%w: text content array is empty", ErrBadFragment)
	}
	total := 0
	for i, item := range lst.Items {
		chunk, err := ion.AsString(item)
		if err != nil {
			return fmt.Errorf("%w: text content chunk %d: %v", ErrBadFragment, i, err)
		}
		if i == len(lst.Items)-1 {
			if chunk != "" {
				return fmt.Errorf("%w: text content array missing empty terminator", ErrBadFragment)
			}
			break
		}
		total += len(chunk)
	}
	if total > maxTextChunkBytes {
		return fmt.Errorf("%w: text content is %d bytes, limit %d", ErrBadFragment, total, maxTextChunkBytes)
	}
	return nil
}

// TextChunk returns chunk i of a $145 fragment's content
// array, not counting the terminator.
func (f *Fragment) TextChunk(i int) (string, error) {
	s, err := ion.AsStruct(f.Value)
	if err != nil {
		return "", err
	}
	lst, err := ion.AsList(s.Field(SymContentArray))
	if err != nil {
		return "", err
	}
	if i < 0 || i >= len(lst.Items)-1 {
		return "", fmt.Errorf("kfx: text chunk %d out of range [0,%d)", i, len(lst.Items)-1)
	}
	return ion.AsString(lst.Items[i])
}

// Encode appends the fragment's annotation encoding to dst.
// Raw-media fragments have no Ion encoding; Encode panics on
// them, the container writer handles them separately.
func (f *Fragment) Encode(dst *ion.Buffer) {
	if f.FType == SymRawMedia {
		panic("raw media fragments have no Ion encoding")
	}
	dst.BeginAnnotation(f.FID, f.FType)
	f.Value.Encode(dst)
	dst.EndAnnotation()
}

// parseFragment decodes one fragment annotation from msg and
// returns the remaining bytes.
func parseFragment(msg []byte, st *ion.Symtab, sink DiagSink) (Fragment, []byte, error) {
	ids, body, rest, err := ion.ReadAnnotationIDs(msg)
	if err != nil {
		return Fragment{}, nil, err
	}
	if len(ids) != 2 {
		return Fragment{}, nil, fmt.Errorf("%w: %d annotation IDs, want 2", ErrBadFragment, len(ids))
	}
	val, extra, err := ion.ReadDatum(body)
	if err != nil {
		return Fragment{}, nil, err
	}
	if len(extra) != 0 {
		return Fragment{}, nil, fmt.Errorf("%w: trailing bytes after fragment value", ErrBadFragment)
	}
	f := Fragment{FID: ids[0], FType: ids[1], Value: val}
	if err := checkSymbols(val, st); err != nil {
		return Fragment{}, nil, err
	}
	if err := f.Validate(st, sink); err != nil {
		return Fragment{}, nil, err
	}
	if sink != nil {
		walkSymbols(val, func(s ion.Symbol) ion.Symbol {
			if st.IsDeprecated(s) {
				warnFragf(sink, f.FID, f.FType, "deprecated symbol $%d", s)
			}
			return s
		})
	}
	return f, rest, nil
}

// checkSymbols walks an Ion value and verifies every symbol
// ID it mentions resolves in the symbol table.
func checkSymbols(d ion.Datum, st *ion.Symtab) error {
	switch v := d.(type) {
	case ion.SymbolDatum:
		if !st.Contains(ion.Symbol(v)) {
			return &ion.UnknownSymbolError{Sym: ion.Symbol(v)}
		}
	case ion.List:
		for i := range v.Items {
			if err := checkSymbols(v.Items[i], st); err != nil {
				return err
			}
		}
	case ion.Struct:
		for i := range v.Fields {
			if !st.Contains(v.Fields[i].Sym) {
				return &ion.UnknownSymbolError{Sym: v.Fields[i].Sym}
			}
			if err := checkSymbols(v.Fields[i].Value, st); err != nil {
				return err
			}
		}
	case ion.Annotation:
		for _, id := range v.IDs {
			if !st.Contains(id) {
				return &ion.UnknownSymbolError{Sym: id}
			}
		}
		return checkSymbols(v.Value, st)
	}
	return nil
}
