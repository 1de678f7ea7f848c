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

import "github.com/ebookfmt/kfx/ion"

// ContainerClass is the role a container plays within a book.
type ContainerClass int

const (
	ClassUnknown ContainerClass = iota
	ClassMain
	ClassMetadata
	ClassAttachable
)

func (c ContainerClass) String() string {
	switch c {
	case ClassMain:
		return "main"
	case ClassMetadata:
		return "metadata"
	case ClassAttachable:
		return "attachable"
	}
	return "unknown"
}

// classify decides a container class from the fragment types
// present, in priority order main > metadata > attachable.
// A document symbol table counts toward metadata.
func classify(types map[ion.Symbol]bool, hasDocSymbols bool) ContainerClass {
	for t := range types {
		if mainTypes[t] {
			return ClassMain
		}
	}
	if hasDocSymbols {
		return ClassMetadata
	}
	for t := range types {
		if metadataTypes[t] {
			return ClassMetadata
		}
	}
	for t := range types {
		if attachableTypes[t] {
			return ClassAttachable
		}
	}
	return ClassUnknown
}

// Class returns the container's class.
func (c *Container) Class() ContainerClass {
	types := make(map[ion.Symbol]bool, len(c.Fragments))
	for i := range c.Fragments {
		types[c.Fragments[i].FType] = true
	}
	return classify(types, c.hasDocSymbols)
}

// PartitionBook splits a book's fragments into the fragment
// sets of its main, metadata, and attachable containers.
// Fragments whose type belongs to no class default to main so
// nothing is silently dropped; each such type is reported to
// sink once.
func PartitionBook(frags []Fragment, sink DiagSink) (main, metadata, attachable []Fragment) {
	warned := make(map[ion.Symbol]bool)
	for i := range frags {
		t := frags[i].FType
		switch {
		case mainTypes[t]:
			main = append(main, frags[i])
		case metadataTypes[t]:
			metadata = append(metadata, frags[i])
		case attachableTypes[t]:
			attachable = append(attachable, frags[i])
		default:
			if !warned[t] {
				warned[t] = true
				warnFragf(sink, frags[i].FID, t, "unclassified fragment type, placing in main container")
			}
			main = append(main, frags[i])
		}
	}
	return main, metadata, attachable
}

// CheckBook verifies the book-level fragment constraints:
// required fragments are present and singleton types appear
// at most once. Violations are schema warnings, reported to
// sink; the count of problems is returned.
func CheckBook(frags []Fragment, sink DiagSink) int {
	problems := 0
	count := make(map[ion.Symbol]int, len(frags))
	for i := range frags {
		count[frags[i].FType]++
	}
	for _, alts := range requiredFragments {
		found := false
		for _, t := range alts {
			if count[t] > 0 {
				found = true
				break
			}
		}
		if !found {
			problems++
			warnFragf(sink, 0, alts[0], "required fragment type missing")
		}
	}
	for t, n := range count {
		if n > 1 && singletonTypes[t] {
			problems++
			warnFragf(sink, 0, t, "singleton fragment type appears %d times", n)
		}
	}
	return problems
}
