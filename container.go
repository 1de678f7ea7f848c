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
	"io"

	"github.com/ebookfmt/kfx/ion"
)

var contMagic = [4]byte{'C', 'O', 'N', 'T'}

// contFixedSize is the fixed prefix of a CONT header: magic,
// version, header_len, info_off, and info_len.
const contFixedSize = 18

// indexEntrySize is the size of one entity index entry:
// fid, ftype, offset, length.
const indexEntrySize = 24

// defaultChunkSize is the $412 value emitted by the writer.
const defaultChunkSize = 4096

// Container is a parsed KFX container: its info struct, its
// symbol table, and the fragments its entities decode to.
type Container struct {
	// Version is 1 or 2. Version-1 containers are read-only;
	// Serialize always emits version 2.
	Version int

	// Info is the container-info struct. The offset fields
	// inside it describe the input file and are recomputed on
	// write; the chunk size and any unrecognized fields are
	// carried through.
	Info ion.Struct

	// Symbols is the container's symbol table.
	Symbols ion.Symtab

	// Fragments holds the decoded entities in index order.
	Fragments []Fragment

	// FormatCapabilities is the $593 block, present only in
	// version-2 containers that carry one.
	FormatCapabilities ion.Datum

	// GeneratorInfo holds the parsed generator key/value
	// pairs; GeneratorRaw preserves the region byte-for-byte
	// for round trips.
	GeneratorInfo []GeneratorKV
	GeneratorRaw  []byte

	// hasDocSymbols records that the input carried a document
	// symbol table region, which affects classification.
	hasDocSymbols bool
}

// ContainerID returns the $409 identifier, or "" if absent.
func (c *Container) ContainerID() string {
	f := c.Info.Field(SymContainerID)
	if f == nil {
		return ""
	}
	s, err := ion.AsString(f)
	if err != nil {
		return ""
	}
	return s
}

// region describes one sub-range of the header block.
// Offsets are relative to the end of the fixed CONT header.
type region struct {
	off, length int64
}

func (r region) empty() bool { return r.length == 0 }

// slice bounds-checks the region against the header block and
// returns its bytes. Each operand is checked separately so the
// arithmetic cannot overflow on hostile offsets.
func (r region) slice(buf []byte, headerLen int64, what string) ([]byte, error) {
	avail := headerLen - contFixedSize
	if r.off < 0 || r.length < 0 || r.off > avail || r.length > avail-r.off {
		return nil, errAt(contFixedSize, fmt.Errorf("%w: %s region offset %d length %d in %d-byte header block", ion.ErrInvalidLength, what, r.off, r.length, avail))
	}
	base := contFixedSize + r.off
	return buf[base : base+r.length], nil
}

func infoRegion(s ion.Struct, offSym, lenSym ion.Symbol) (region, error) {
	var r region
	if f := s.Field(offSym); f != nil {
		v, err := ion.AsInt(f)
		if err != nil {
			return r, fmt.Errorf("$%d: %w", offSym, err)
		}
		r.off = v
	}
	if f := s.Field(lenSym); f != nil {
		v, err := ion.AsInt(f)
		if err != nil {
			return r, fmt.Errorf("$%d: %w", lenSym, err)
		}
		r.length = v
	}
	return r, nil
}

// Parse decodes a complete KFX container from buf.
//
// Structural problems (bad magic, truncation, malformed Ion,
// unresolvable symbols, nonzero compression or DRM) abort the
// parse with an error carrying the byte offset where they were
// detected. Schema-level oddities are reported to sink, which
// may be nil.
func Parse(buf []byte, sink DiagSink) (*Container, error) {
	if len(buf) < contFixedSize {
		return nil, errAt(0, io.ErrUnexpectedEOF)
	}
	if [4]byte(buf[:4]) != contMagic {
		return nil, errAt(0, fmt.Errorf("%w: container magic %q", ErrBadMagic, buf[:4]))
	}
	c := &Container{Version: int(binary.LittleEndian.Uint16(buf[4:]))}
	if c.Version != 1 && c.Version != 2 {
		return nil, errAt(4, fmt.Errorf("%w: container version %d", ErrBadVersion, c.Version))
	}
	headerLen := int64(binary.LittleEndian.Uint32(buf[6:]))
	infoOff := int64(binary.LittleEndian.Uint32(buf[10:]))
	infoLen := int64(binary.LittleEndian.Uint32(buf[14:]))
	if headerLen < contFixedSize || headerLen > int64(len(buf)) {
		return nil, errAt(6, fmt.Errorf("%w: header_len %d in %d-byte container", ion.ErrInvalidLength, headerLen, len(buf)))
	}

	// container info, parsed with an empty local table: it
	// uses only shared and system symbols
	info, err := region{infoOff, infoLen}.slice(buf, headerLen, "container info")
	if err != nil {
		return nil, err
	}
	if err := c.parseInfo(info, contFixedSize+infoOff); err != nil {
		return nil, err
	}

	index, err := infoRegion(c.Info, SymIndexTabOffset, SymIndexTabLength)
	if err != nil {
		return nil, errAt(contFixedSize+infoOff, err)
	}
	docsym, err := infoRegion(c.Info, SymDocSymOffset, SymDocSymLength)
	if err != nil {
		return nil, errAt(contFixedSize+infoOff, err)
	}

	// document symbol table
	if !docsym.empty() {
		blk, err := docsym.slice(buf, headerLen, "doc symbols")
		if err != nil {
			return nil, err
		}
		if _, err := c.Symbols.Unmarshal(blk); err != nil {
			return nil, errAt(contFixedSize+docsym.off, err)
		}
		if c.Symbols.Clamped() {
			imp := c.Symbols.Import()
			warnf(sink, contFixedSize+docsym.off,
				"shared import max_id %d clamped to catalog size", imp.MaxID)
		}
		c.hasDocSymbols = true
	}

	// format capabilities, version 2 only
	if c.Version == 2 {
		caps, err := infoRegion(c.Info, SymFCOffset, SymFCLength)
		if err != nil {
			return nil, errAt(contFixedSize+infoOff, err)
		}
		if !caps.empty() {
			blk, err := caps.slice(buf, headerLen, "format capabilities")
			if err != nil {
				return nil, err
			}
			if err := c.parseFormatCaps(blk, contFixedSize+caps.off); err != nil {
				return nil, err
			}
		}
	}

	// generator info trails the container info inside the
	// header block; preserve it byte-for-byte
	genStart := contFixedSize + infoOff + infoLen
	if genStart < headerLen {
		c.GeneratorRaw = buf[genStart:headerLen]
		c.GeneratorInfo = parseGeneratorInfo(c.GeneratorRaw, sink)
	}

	// entity index and entity payloads
	if !index.empty() {
		tbl, err := index.slice(buf, headerLen, "entity index")
		if err != nil {
			return nil, err
		}
		if err := c.parseEntities(buf, tbl, headerLen, contFixedSize+index.off, sink); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Container) parseInfo(blk []byte, off int64) error {
	rest, err := ion.CheckBVM(blk)
	if err != nil {
		return errAt(off, err)
	}
	d, _, err := ion.ReadDatum(rest)
	if err != nil {
		return errAt(off, err)
	}
	s, err := ion.AsStruct(d)
	if err != nil {
		return errAt(off, err)
	}
	if err := checkPolicy(s, off); err != nil {
		return err
	}
	c.Info = s
	return nil
}

func (c *Container) parseFormatCaps(blk []byte, off int64) error {
	rest, err := ion.CheckBVM(blk)
	if err != nil {
		return errAt(off, err)
	}
	d, _, err := ion.ReadDatum(rest)
	if err != nil {
		return errAt(off, err)
	}
	if a, ok := d.(ion.Annotation); ok && len(a.IDs) == 1 && a.IDs[0] == SymFormatCapabilities {
		d = a.Value
	}
	c.FormatCapabilities = d
	return nil
}

func (c *Container) parseEntities(buf, tbl []byte, headerLen, tblOff int64, sink DiagSink) error {
	if len(tbl)%indexEntrySize != 0 {
		return errAt(tblOff, fmt.Errorf("%w: %d-byte entity index", ion.ErrInvalidLength, len(tbl)))
	}
	for i := 0; i < len(tbl); i += indexEntrySize {
		fid := ion.Symbol(binary.LittleEndian.Uint32(tbl[i:]))
		ftype := ion.Symbol(binary.LittleEndian.Uint32(tbl[i+4:]))
		off := int64(binary.LittleEndian.Uint64(tbl[i+8:]))
		length := int64(binary.LittleEndian.Uint64(tbl[i+16:]))

		// entity offsets are relative to header_len; check each
		// operand separately so the sums cannot overflow
		avail := int64(len(buf)) - headerLen
		if off < 0 || length < 0 || off > avail || length > avail-off {
			return errAt(tblOff+int64(i), fmt.Errorf("%w: entity $%d/$%d offset %d length %d in %d-byte payload area", ion.ErrInvalidLength, fid, ftype, off, length, avail))
		}
		base := headerLen + off
		if !c.Symbols.Contains(fid) || !c.Symbols.Contains(ftype) {
			return errAt(tblOff + int64(i), &ion.UnknownSymbolError{Sym: ftype})
		}
		payload, err := parseEntityHeader(buf[base:base+length], base)
		if err != nil {
			return err
		}
		f, err := c.parsePayload(fid, ftype, payload, base+length-int64(len(payload)), sink)
		if err != nil {
			return err
		}
		c.Fragments = append(c.Fragments, f)
	}
	return nil
}

func (c *Container) parsePayload(fid, ftype ion.Symbol, payload []byte, off int64, sink DiagSink) (Fragment, error) {
	if ftype == SymRawMedia {
		// raw media has no Ion framing inside the payload
		return Fragment{FID: fid, FType: ftype, Raw: payload}, nil
	}
	rest, err := ion.CheckBVM(payload)
	if err != nil {
		return Fragment{}, errAt(off, err)
	}
	// a $ion_symbol_table annotation preceding the fragment
	// resets the local table
	if symtabNext(rest) {
		rest, err = c.Symbols.UnmarshalTable(rest)
		if err != nil {
			return Fragment{}, errAt(off, err)
		}
	}
	f, rest, err := parseFragment(rest, &c.Symbols, sink)
	if err != nil {
		return Fragment{}, errAt(off, err)
	}
	if len(rest) != 0 {
		return Fragment{}, errAt(off, fmt.Errorf("%w: trailing bytes after fragment", ion.ErrInvalidLength))
	}
	if f.FID != fid || f.FType != ftype {
		warnFragf(sink, fid, ftype, "index entry disagrees with annotation $%d/$%d", f.FID, f.FType)
	}
	return f, nil
}

// symtabNext reports whether msg begins with a
// $ion_symbol_table annotation.
func symtabNext(msg []byte) bool {
	if len(msg) == 0 || ion.TypeOf(msg) != ion.AnnotationType {
		return false
	}
	ids, _, _, err := ion.ReadAnnotationIDs(msg)
	return err == nil && len(ids) == 1 && ids[0] == ion.SystemSymSymbolTable
}
