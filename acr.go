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
	"crypto/sha1"
	"encoding/hex"

	"github.com/google/uuid"
)

const acrAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewACR generates a fresh Amazon Content Reference: the
// literal "CR!" followed by 28 characters drawn from the
// uppercase alphanumeric alphabet.
func NewACR() string {
	u := uuid.New()
	out := make([]byte, 0, 31)
	out = append(out, "CR!"...)
	// two alphabet characters per random byte keeps the
	// mapping simple; 14 bytes cover the 28 characters
	for i := 0; len(out) < 31; i++ {
		b := u[i%len(u)]
		out = append(out, acrAlphabet[int(b>>4)%len(acrAlphabet)])
		if len(out) < 31 {
			out = append(out, acrAlphabet[int(b&0x0f|b>>6)%len(acrAlphabet)])
		}
	}
	return string(out)
}

// payloadSHA1 computes the hex SHA-1 over the concatenated
// entity bytes, recorded under kfxgen_payload_sha1.
func payloadSHA1(entities []byte) string {
	sum := sha1.Sum(entities)
	return hex.EncodeToString(sum[:])
}
