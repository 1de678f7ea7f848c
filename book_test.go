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
	"strings"
	"testing"

	"github.com/ebookfmt/kfx/ion"
)

func rootFrag(t ion.Symbol) Fragment {
	return Fragment{FID: t, FType: t, Value: ion.NewStruct()}
}

func TestCheckBookComplete(t *testing.T) {
	frags := []Fragment{
		rootFrag(SymMetadata),
		rootFrag(SymBookNavigation),
		rootFrag(SymContainerEntityMap),
		rootFrag(SymDocumentData),
		rootFrag(SymLocationMap),
		rootFrag(SymPositionIDMap),
		rootFrag(SymPositionMap),
	}
	var diags collected
	if n := CheckBook(frags, &diags); n != 0 {
		t.Errorf("%d problems in complete book: %v", n, diags.all)
	}
}

func TestCheckBookMissing(t *testing.T) {
	frags := []Fragment{
		rootFrag(SymKindleMetadata), // satisfies $258|$490
		rootFrag(SymDocumentData),
	}
	var diags collected
	n := CheckBook(frags, &diags)
	// navigation, entity map, location map, and both
	// position maps are missing
	if n != 5 {
		t.Errorf("%d problems, want 5: %v", n, diags.all)
	}
}

func TestCheckBookDuplicateSingleton(t *testing.T) {
	frags := []Fragment{
		rootFrag(SymMetadata),
		rootFrag(SymMetadata),
		rootFrag(SymBookNavigation),
		rootFrag(SymContainerEntityMap),
		rootFrag(SymDocumentData),
		rootFrag(SymLocationMap),
		rootFrag(SymPositionIDMap),
		rootFrag(SymPositionMap),
	}
	var diags collected
	if n := CheckBook(frags, &diags); n != 1 {
		t.Errorf("%d problems, want 1: %v", n, diags.all)
	}
	if len(diags.all) != 1 || !strings.Contains(diags.all[0].Msg, "singleton") {
		t.Errorf("diagnostics: %v", diags.all)
	}
}

func TestClassifyPriority(t *testing.T) {
	// main beats metadata beats attachable
	mixed := map[ion.Symbol]bool{
		SymSection:  true,
		SymMetadata: true,
		SymRawMedia: true,
	}
	if c := classify(mixed, false); c != ClassMain {
		t.Errorf("mixed set classified %s", c)
	}
	metaAndRaw := map[ion.Symbol]bool{
		SymMetadata: true,
		SymRawMedia: true,
	}
	if c := classify(metaAndRaw, false); c != ClassMetadata {
		t.Errorf("metadata+raw classified %s", c)
	}
	rawOnly := map[ion.Symbol]bool{SymRawMedia: true}
	if c := classify(rawOnly, false); c != ClassAttachable {
		t.Errorf("raw classified %s", c)
	}
	// a doc symbol table makes an otherwise empty container
	// a metadata container
	if c := classify(nil, true); c != ClassMetadata {
		t.Errorf("doc-symbols classified %s", c)
	}
	if c := classify(nil, false); c != ClassUnknown {
		t.Errorf("empty classified %s", c)
	}
}

func TestRootFragmentIdentity(t *testing.T) {
	bad := Fragment{FID: 900, FType: SymDocumentData, Value: ion.NewStruct()}
	var st ion.Symtab
	if err := bad.Validate(&st, DiscardDiags); err == nil {
		t.Error("root fragment with fid != ftype accepted")
	}
	good := rootFrag(SymDocumentData)
	if err := good.Validate(&st, DiscardDiags); err != nil {
		t.Errorf("valid root fragment rejected: %v", err)
	}
}

func TestNonRootMismatchIsWarning(t *testing.T) {
	var st ion.Symtab
	s1 := st.Intern("s1")
	s2 := st.Intern("s2")
	f := Fragment{FID: s2, FType: SymStyle, Value: ion.NewStruct(
		ion.Field{Sym: SymStyleName, Value: ion.SymbolDatum(s1)},
	)}
	var diags collected
	if err := f.Validate(&st, &diags); err != nil {
		t.Fatalf("mismatch treated as fatal: %v", err)
	}
	if len(diags.all) != 1 {
		t.Errorf("diagnostics: %v", diags.all)
	}
}
