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
	"strings"

	"golang.org/x/exp/maps"
)

// system symbols; these IDs are fixed by the Ion 1.0 spec
var systemsyms = []string{
	"$0",
	"$ion",
	"$ion_1_0",
	"$ion_symbol_table",
	"name",
	"version",
	"imports",
	"symbols",
	"max_id",
	"$ion_shared_symbol_table",
}

const (
	// SystemSymSymbolTable is the $ion_symbol_table annotation ID.
	SystemSymSymbolTable Symbol = 3
	// SystemSymName is the system symbol ID of "name".
	SystemSymName Symbol = 4

	symVersion Symbol = 5
	symImports Symbol = 6
	symSymbols Symbol = 7
	symMaxID   Symbol = 8
)

// SharedImport identifies a shared symbol table pulled in
// by a local symbol table's imports list.
type SharedImport struct {
	Name    string
	Version int
	MaxID   int
}

// Symtab is a symbol table: the fixed system symbols,
// followed by an imported shared table, followed by
// locally-interned symbols.
//
// The zero value imports the full shared book catalog.
type Symtab struct {
	// interned symbols, in order of intern()ing;
	// these come after the shared table IDs
	interned []string
	// toindex maps local symbol names to their
	// index within interned
	toindex map[string]int

	// shared is the in-use prefix of the shared catalog;
	// nil means the full catalog
	shared []string

	// import header to emit when marshalling
	imp SharedImport

	// clamped records that the imported max_id did not
	// match the catalog size and was adjusted
	clamped bool
}

func (s *Symtab) sharednames() []string {
	if s.shared == nil {
		return sharedCatalog
	}
	return s.shared
}

func (s *Symtab) init() {
	if s.toindex == nil {
		s.toindex = make(map[string]int)
	}
}

// Reset restores the symbol table to its initial state:
// the full shared catalog imported and no local symbols.
func (s *Symtab) Reset() {
	s.interned = s.interned[:0]
	maps.Clear(s.toindex)
	s.shared = nil
	s.imp = SharedImport{}
	s.clamped = false
}

// Import returns the shared table import currently in effect.
func (s *Symtab) Import() SharedImport {
	if s.imp.Name == "" {
		return SharedImport{
			Name:    sharedCatalogName,
			Version: sharedCatalogVersion,
			MaxID:   len(sharedCatalog),
		}
	}
	return s.imp
}

// Clamped reports whether the most recent Unmarshal had to
// adjust a declared max_id that disagreed with the catalog.
func (s *Symtab) Clamped() bool { return s.clamped }

// MaxID returns the total number of symbol IDs in use,
// which is one past the largest valid symbol ID.
func (s *Symtab) MaxID() int {
	return len(systemsyms) + len(s.sharednames()) + len(s.interned)
}

// LocalCount returns the number of locally-interned symbols.
func (s *Symtab) LocalCount() int { return len(s.interned) }

// SharedEnd returns the first symbol ID beyond the system and
// shared tiers; IDs at or above it are local symbols.
func (s *Symtab) SharedEnd() Symbol {
	return Symbol(len(systemsyms) + len(s.sharednames()))
}

// Locals returns the locally-interned symbol names in ID order.
func (s *Symtab) Locals() []string { return s.interned }

// NameForID returns the name associated with a symbol ID,
// or ("", false) if the ID is out of range.
//
// Deprecated shared symbols resolve like any other; callers
// that care can check IsDeprecated on the result.
func (s *Symtab) NameForID(id Symbol) (string, bool) {
	i := int(id)
	if i < len(systemsyms) {
		return systemsyms[i], true
	}
	i -= len(systemsyms)
	shared := s.sharednames()
	if i < len(shared) {
		return strings.TrimSuffix(shared[i], "?"), true
	}
	i -= len(shared)
	if i < len(s.interned) {
		return s.interned[i], true
	}
	return "", false
}

// IsDeprecated reports whether id refers to a shared symbol
// that is marked deprecated in the catalog.
func (s *Symtab) IsDeprecated(id Symbol) bool {
	i := int(id) - len(systemsyms)
	shared := s.sharednames()
	return i >= 0 && i < len(shared) && strings.HasSuffix(shared[i], "?")
}

// Contains reports whether id is a valid symbol ID
// in this table.
func (s *Symtab) Contains(id Symbol) bool {
	return int(id) < s.MaxID()
}

// IDForName returns the symbol ID associated with a name,
// or (0, false) if the name is not present. System symbols,
// shared symbols (with or without the deprecation marker),
// and locals are all searched.
func (s *Symtab) IDForName(name string) (Symbol, bool) {
	for i := range systemsyms {
		if systemsyms[i] == name {
			return Symbol(i), true
		}
	}
	shared := s.sharednames()
	if i, ok := sharedCatalogIndex[name]; ok && i < len(shared) {
		return Symbol(len(systemsyms) + i), true
	}
	if i, ok := s.toindex[name]; ok {
		return Symbol(len(systemsyms) + len(shared) + i), true
	}
	return 0, false
}

// Intern returns the symbol ID for name, adding it to the
// local symbol list if it is not already present anywhere
// in the table. Interning is idempotent.
func (s *Symtab) Intern(name string) Symbol {
	if id, ok := s.IDForName(name); ok {
		return id
	}
	s.init()
	s.toindex[name] = len(s.interned)
	s.interned = append(s.interned, name)
	return Symbol(s.MaxID() - 1)
}

// Unmarshal reads a BVM followed by a local symbol table
// annotation from the front of msg, replaces the contents
// of s, and returns the remaining message bytes.
func (s *Symtab) Unmarshal(msg []byte) ([]byte, error) {
	rest, err := CheckBVM(msg)
	if err != nil {
		return nil, err
	}
	return s.UnmarshalTable(rest)
}

// UnmarshalTable is like Unmarshal, but expects msg to begin
// directly at the $ion_symbol_table annotation.
func (s *Symtab) UnmarshalTable(msg []byte) ([]byte, error) {
	if TypeOf(msg) != AnnotationType {
		return nil, fmt.Errorf("ion: symbol table: %w", bad(TypeOf(msg), AnnotationType, "UnmarshalTable"))
	}
	ids, body, rest, err := ReadAnnotationIDs(msg)
	if err != nil {
		return nil, err
	}
	if len(ids) != 1 || ids[0] != SystemSymSymbolTable {
		return nil, fmt.Errorf("ion: symbol table: unexpected annotation %v", ids)
	}
	d, _, err := ReadDatum(body)
	if err != nil {
		return nil, fmt.Errorf("ion: symbol table: %w", err)
	}
	st, err := AsStruct(d)
	if err != nil {
		return nil, fmt.Errorf("ion: symbol table: %w", err)
	}
	s.Reset()
	s.init()
	if imp := st.Field(symImports); imp != nil {
		if err := s.readImports(imp); err != nil {
			return nil, err
		}
	}
	if syms := st.Field(symSymbols); syms != nil {
		lst, err := AsList(syms)
		if err != nil {
			return nil, fmt.Errorf("ion: symbol table: symbols: %w", err)
		}
		for i := range lst.Items {
			name, err := AsString(lst.Items[i])
			if err != nil {
				return nil, fmt.Errorf("ion: symbol table: symbols[%d]: %w", i, err)
			}
			// duplicate and shadowing names still get their
			// own ID slot; lookup prefers the first
			if _, ok := s.toindex[name]; !ok {
				s.toindex[name] = len(s.interned)
			}
			s.interned = append(s.interned, name)
		}
	}
	return rest, nil
}

func (s *Symtab) readImports(imp Datum) error {
	lst, err := AsList(imp)
	if err != nil {
		return fmt.Errorf("ion: symbol table: imports: %w", err)
	}
	for i := range lst.Items {
		fields, err := AsStruct(lst.Items[i])
		if err != nil {
			return fmt.Errorf("ion: symbol table: imports[%d]: %w", i, err)
		}
		var got SharedImport
		if f := fields.Field(SystemSymName); f != nil {
			got.Name, _ = AsString(f)
		}
		if f := fields.Field(symVersion); f != nil {
			v, _ := AsInt(f)
			got.Version = int(v)
		}
		if f := fields.Field(symMaxID); f != nil {
			v, _ := AsInt(f)
			got.MaxID = int(v)
		}
		if got.Name != sharedCatalogName {
			return fmt.Errorf("ion: symbol table: unknown shared import %q", got.Name)
		}
		// tolerate version mismatches; the catalog is keyed
		// by name and truncated to the declared max_id
		n := got.MaxID
		if n > len(sharedCatalog) {
			n = len(sharedCatalog)
		}
		if n < 0 {
			n = 0
		}
		s.clamped = got.MaxID != len(sharedCatalog)
		s.shared = sharedCatalog[:n]
		s.imp = got
	}
	return nil
}

// Marshal writes the symbol table to dst as a local symbol
// table annotation, preceded by a BVM when withBVM is set.
func (s *Symtab) Marshal(dst *Buffer, withBVM bool) {
	if withBVM {
		dst.WriteBVM()
	}
	dst.BeginAnnotation(SystemSymSymbolTable)
	dst.BeginStruct()
	imp := s.Import()
	dst.BeginField(symImports)
	dst.BeginList()
	dst.BeginStruct()
	dst.BeginField(SystemSymName)
	dst.WriteString(imp.Name)
	dst.BeginField(symVersion)
	dst.WriteInt(int64(imp.Version))
	dst.BeginField(symMaxID)
	dst.WriteInt(int64(imp.MaxID))
	dst.EndStruct()
	dst.EndList()
	if len(s.interned) > 0 {
		dst.BeginField(symSymbols)
		dst.BeginList()
		for i := range s.interned {
			dst.WriteString(s.interned[i])
		}
		dst.EndList()
	}
	dst.EndStruct()
	dst.EndAnnotation()
}
