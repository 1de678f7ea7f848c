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
)

var entyMagic = [4]byte{'E', 'N', 'T', 'Y'}

// entyFixedSize is the fixed prefix of an ENTY header:
// magic, version, and header_len.
const entyFixedSize = 10

// Entity is one indexed region of a container: an ENTY header
// plus a payload holding either an Ion fragment encoding or,
// for raw media, opaque bytes.
type Entity struct {
	FID     ion.Symbol
	FType   ion.Symbol
	Payload []byte
}

// parseEntityHeader validates the ENTY header at the front of
// buf and returns the payload bytes after it. off is the
// absolute container offset of buf, used for error locations.
func parseEntityHeader(buf []byte, off int64) ([]byte, error) {
	if len(buf) < entyFixedSize {
		return nil, errAt(off, fmt.Errorf("%w: %d-byte entity", ion.ErrInvalidLength, len(buf)))
	}
	if [4]byte(buf[:4]) != entyMagic {
		return nil, errAt(off, fmt.Errorf("%w: entity magic %q", ErrBadMagic, buf[:4]))
	}
	if v := binary.LittleEndian.Uint16(buf[4:]); v != 1 {
		return nil, errAt(off, fmt.Errorf("%w: entity version %d", ErrBadVersion, v))
	}
	hlen := int64(binary.LittleEndian.Uint32(buf[6:]))
	if hlen < entyFixedSize || hlen > int64(len(buf)) {
		return nil, errAt(off, fmt.Errorf("%w: entity header_len %d exceeds entity length %d", ion.ErrInvalidLength, hlen, len(buf)))
	}
	if err := checkEntityInfo(buf[entyFixedSize:hlen], off+entyFixedSize); err != nil {
		return nil, err
	}
	return buf[hlen:], nil
}

// checkEntityInfo parses the Ion entity-info struct and
// rejects nonzero compression or DRM.
func checkEntityInfo(info []byte, off int64) error {
	rest, err := ion.CheckBVM(info)
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
	return checkPolicy(s, off)
}

// checkPolicy rejects nonzero $410/$411 in a container or
// entity info struct.
func checkPolicy(s ion.Struct, off int64) error {
	if f := s.Field(SymCompression); f != nil {
		if v, err := ion.AsInt(f); err != nil || v != 0 {
			return errAt(off, fmt.Errorf("%w: $%d = %v", ErrUnsupportedCompression, SymCompression, f))
		}
	}
	if f := s.Field(SymDRMScheme); f != nil {
		if v, err := ion.AsInt(f); err != nil || v != 0 {
			return errAt(off, fmt.Errorf("%w: $%d = %v", ErrUnsupportedDRM, SymDRMScheme, f))
		}
	}
	return nil
}

// appendEntityInfo appends the standard entity-info Ion
// stream {$410:0, $411:0}.
func appendEntityInfo(dst []byte) []byte {
	var b ion.Buffer
	b.Set(dst)
	b.WriteBVM()
	b.BeginStruct()
	b.BeginField(SymCompression)
	b.WriteInt(0)
	b.BeginField(SymDRMScheme)
	b.WriteInt(0)
	b.EndStruct()
	return b.Bytes()
}

// appendEntity appends a complete entity (ENTY header plus
// payload) to dst.
func appendEntity(dst []byte, payload []byte) []byte {
	info := appendEntityInfo(nil)
	hlen := entyFixedSize + len(info)
	dst = append(dst, entyMagic[:]...)
	dst = binary.LittleEndian.AppendUint16(dst, 1)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(hlen))
	dst = append(dst, info...)
	return append(dst, payload...)
}
