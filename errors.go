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
	"errors"
	"fmt"
)

var (
	// ErrBadMagic indicates a container or entity that does not
	// begin with its expected magic bytes.
	ErrBadMagic = errors.New("kfx: bad magic")

	// ErrBadVersion indicates an unsupported container or
	// entity version.
	ErrBadVersion = errors.New("kfx: unsupported version")

	// ErrUnsupportedCompression indicates a nonzero $410
	// compression type in a container or entity header.
	ErrUnsupportedCompression = errors.New("kfx: unsupported compression type")

	// ErrUnsupportedDRM indicates a nonzero $411 DRM scheme
	// in a container or entity header.
	ErrUnsupportedDRM = errors.New("kfx: unsupported DRM scheme")

	// ErrBadFragment indicates a fragment whose annotation IDs
	// or value shape violate the fragment rules.
	ErrBadFragment = errors.New("kfx: malformed fragment")
)

// FormatError wraps a structural parse error with the byte
// offset into the container where it was detected.
type FormatError struct {
	Offset int64
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("kfx: offset %d: %v", e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// errAt wraps err with the offset where it was detected,
// unless it already carries one.
func errAt(off int64, err error) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		return err
	}
	return &FormatError{Offset: off, Err: err}
}
