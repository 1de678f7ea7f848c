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
	"github.com/goccy/go-json"
)

// Recognized generator-info keys. Unrecognized keys are
// preserved untouched.
const (
	GenKeyPackageVersion     = "kfxgen_package_version"
	GenKeyApplicationVersion = "kfxgen_application_version"
	GenKeyPayloadSHA1        = "kfxgen_payload_sha1"
	GenKeyACR                = "kfxgen_acr"
)

// GeneratorKV is one key/value pair of the generator-info
// region. The region is advisory metadata only.
type GeneratorKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// parseGeneratorInfo decodes the generator-info JSON region.
// Producers in the wild emit this region with varying degrees
// of JSON strictness, so a region that fails to decode is
// reported to sink and returned as nil; the raw bytes are
// preserved separately either way.
func parseGeneratorInfo(raw []byte, sink DiagSink) []GeneratorKV {
	var kvs []GeneratorKV
	if err := json.Unmarshal(raw, &kvs); err != nil {
		warnf(sink, 0, "generator info is not well-formed JSON: %v", err)
		return nil
	}
	return kvs
}

// GeneratorValue returns the value for key in the container's
// generator info, or ("", false) when absent.
func (c *Container) GeneratorValue(key string) (string, bool) {
	for i := range c.GeneratorInfo {
		if c.GeneratorInfo[i].Key == key {
			return c.GeneratorInfo[i].Value, true
		}
	}
	return "", false
}

// appendGeneratorInfo appends the generator-info region for a
// container being serialized. The raw input region wins when
// present so that round trips are byte-exact; otherwise the
// key/value pairs are marshalled as JSON.
func appendGeneratorInfo(dst []byte, c *Container) ([]byte, error) {
	if c.GeneratorRaw != nil {
		return append(dst, c.GeneratorRaw...), nil
	}
	if len(c.GeneratorInfo) == 0 {
		return dst, nil
	}
	enc, err := json.Marshal(c.GeneratorInfo)
	if err != nil {
		return nil, err
	}
	return append(dst, enc...), nil
}
