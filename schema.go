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

// Well-known YJ_symbols IDs. The $NNN spellings follow the
// catalog; the Go names describe how each symbol is used.
const (
	// fragment types
	SymStyle        ion.Symbol = 157 // $157 style
	SymResource     ion.Symbol = 164 // $164 external_resource
	SymTextContent  ion.Symbol = 145 // $145 text_content
	SymContentBlock ion.Symbol = 259 // $259 storyline content
	SymSection      ion.Symbol = 260 // $260 section
	SymPageTemplate ion.Symbol = 266 // $266 page template
	SymNavContainer ion.Symbol = 391 // $391 nav_container
	SymRawMedia     ion.Symbol = 417 // $417 bcRawMedia

	// root fragment types
	SymMetadata           ion.Symbol = 258 // $258 metadata
	SymCoverImage         ion.Symbol = 262 // $262 cover image
	SymPositionMap        ion.Symbol = 264 // $264 spm
	SymPositionIDMap      ion.Symbol = 265 // $265 position_id_map
	SymBookNavigation     ion.Symbol = 389 // $389 book_navigation
	SymAuxiliaryData      ion.Symbol = 395 // $395 auxiliary_data
	SymContainerEntityMap ion.Symbol = 419 // $419 container_entity_map
	SymKindleMetadata     ion.Symbol = 490 // $490 book_metadata
	SymDocumentData       ion.Symbol = 538 // $538 document_data
	SymLocationMap        ion.Symbol = 550 // $550 yj.print.location_map
	SymContentFeatures    ion.Symbol = 585 // $585 content_features

	// fragment-ID keys
	SymStyleName    ion.Symbol = 173 // $173 style name
	SymSectionName  ion.Symbol = 174 // $174 section name
	SymResourceName ion.Symbol = 175 // $175 resource name
	SymContentName  ion.Symbol = 176 // $176 storyline name
	SymTemplateName ion.Symbol = 180 // $180 template name
	SymNavID        ion.Symbol = 239 // $239 nav identifier
	SymLocation     ion.Symbol = 165 // $165 location (raw media path)

	// content item schema
	SymContentKind  ion.Symbol = 159 // $159 content kind
	SymContentArray ion.Symbol = 146 // $146 content array / children
	SymChunkIndex   ion.Symbol = 403 // $403 chunk index into $146
	SymStyleRuns    ion.Symbol = 142 // $142 inline style runs
	SymRunOffset    ion.Symbol = 143 // $143 run offset
	SymRunLength    ion.Symbol = 144 // $144 run length

	// container info fields
	SymContainerID    ion.Symbol = 409 // $409 bcContId
	SymCompression    ion.Symbol = 410 // $410 bcComprType
	SymDRMScheme      ion.Symbol = 411 // $411 bcDRMScheme
	SymChunkSize      ion.Symbol = 412 // $412 bcChunkSize
	SymIndexTabOffset ion.Symbol = 413 // bcIndexTabOffset
	SymIndexTabLength ion.Symbol = 414 // bcIndexTabLength
	SymDocSymOffset   ion.Symbol = 415 // bcDocSymbolOffset
	SymDocSymLength   ion.Symbol = 416 // bcDocSymbolLength

	// format capabilities
	SymFormatCapabilities ion.Symbol = 593 // $593
	SymFCOffset           ion.Symbol = 594 // $594 capabilities offset
	SymFCLength           ion.Symbol = 595 // $595 capabilities length
)

// maxTextChunkBytes caps the UTF-8 byte size of the
// non-terminator chunks in a $145 content array.
const maxTextChunkBytes = 8192

// rootFragmentTypes are the fragment types that must satisfy
// fid == ftype and appear at most once per book.
var rootFragmentTypes = map[ion.Symbol]bool{
	SymMetadata:           true,
	SymCoverImage:         true,
	SymPositionMap:        true,
	SymPositionIDMap:      true,
	SymBookNavigation:     true,
	SymAuxiliaryData:      true,
	SymContainerEntityMap: true,
	SymKindleMetadata:     true,
	SymDocumentData:       true,
	SymLocationMap:        true,
	SymContentFeatures:    true,
	SymFormatCapabilities: true,
}

// singletonTypes appear at most once per book.
var singletonTypes = map[ion.Symbol]bool{
	SymMetadata:           true,
	SymCoverImage:         true,
	SymBookNavigation:     true,
	SymAuxiliaryData:      true,
	SymContainerEntityMap: true,
	SymKindleMetadata:     true,
	SymDocumentData:       true,
	SymLocationMap:        true,
	SymContentFeatures:    true,
}

// idKeyForType maps identifiable fragment types to the struct
// field that carries the fragment's own ID. $145 is special:
// its ID lives under the system symbol "name".
var idKeyForType = map[ion.Symbol]ion.Symbol{
	SymStyle:        SymStyleName,
	SymSection:      SymSectionName,
	SymContentBlock: SymContentName,
	SymResource:     SymResourceName,
	SymPageTemplate: SymTemplateName,
	SymNavContainer: SymNavID,
	SymRawMedia:     SymLocation,
	SymTextContent:  ion.SystemSymName,
}

// classification sets, checked in priority order main >
// metadata > attachable
var (
	mainTypes = map[ion.Symbol]bool{
		SymContentBlock: true,
		SymSection:      true,
		SymDocumentData: true,
	}
	metadataTypes = map[ion.Symbol]bool{
		SymMetadata:           true,
		SymContainerEntityMap: true,
		SymKindleMetadata:     true,
		SymContentFeatures:    true,
	}
	attachableTypes = map[ion.Symbol]bool{
		SymRawMedia: true,
	}
)

// requiredFragments lists the fragment types every complete
// book must carry; each inner slice is satisfied by any one
// of its members.
var requiredFragments = [][]ion.Symbol{
	{SymMetadata, SymKindleMetadata},
	{SymBookNavigation},
	{SymContainerEntityMap},
	{SymDocumentData},
	{SymLocationMap},
	{SymPositionIDMap},
	{SymPositionMap},
}

// canonicalTypeOrder fixes the order fragment types are
// emitted in so that serialization is deterministic.
// Types not listed sort after these, by numeric ID.
var canonicalTypeOrder = []ion.Symbol{
	SymDocumentData,
	SymMetadata,
	SymKindleMetadata,
	SymContentFeatures,
	SymBookNavigation,
	SymNavContainer,
	SymSection,
	SymPageTemplate,
	SymContentBlock,
	SymTextContent,
	SymStyle,
	SymResource,
	SymRawMedia,
	SymCoverImage,
	SymLocationMap,
	SymPositionIDMap,
	SymPositionMap,
	SymAuxiliaryData,
	SymContainerEntityMap,
}

var typeRank = func() map[ion.Symbol]int {
	m := make(map[ion.Symbol]int, len(canonicalTypeOrder))
	for i, t := range canonicalTypeOrder {
		m[t] = i
	}
	return m
}()
