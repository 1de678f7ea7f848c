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
	"log"

	"github.com/ebookfmt/kfx/ion"
)

// Diagnostic is a non-fatal condition noticed while parsing
// or serializing: an unknown fragment type, a missing optional
// singleton, a deprecated symbol, an annotation that disagrees
// with the derived fragment ID, and so on.
//
// Either Offset or FID/FType locates the condition, depending
// on whether it was detected at the byte or fragment level.
type Diagnostic struct {
	Offset int64
	FID    ion.Symbol
	FType  ion.Symbol
	Msg    string
}

func (d *Diagnostic) String() string {
	if d.FType != 0 {
		return fmt.Sprintf("fragment $%d/$%d: %s", d.FID, d.FType, d.Msg)
	}
	return fmt.Sprintf("offset %d: %s", d.Offset, d.Msg)
}

// DiagSink receives diagnostics. Implementations must be safe
// for use from a single goroutine only; the codec never calls
// Report concurrently for one parse or serialize.
type DiagSink interface {
	Report(d Diagnostic)
}

// DiagFunc adapts a function to the DiagSink interface.
type DiagFunc func(Diagnostic)

func (f DiagFunc) Report(d Diagnostic) { f(d) }

// DiscardDiags ignores all diagnostics.
var DiscardDiags DiagSink = DiagFunc(func(Diagnostic) {})

// LogDiags writes diagnostics to a log.Logger.
func LogDiags(l *log.Logger) DiagSink {
	return DiagFunc(func(d Diagnostic) {
		l.Printf("kfx: %s", d.String())
	})
}

func warnf(sink DiagSink, off int64, format string, args ...any) {
	if sink == nil {
		return
	}
	sink.Report(Diagnostic{Offset: off, Msg: fmt.Sprintf(format, args...)})
}

func warnFragf(sink DiagSink, fid, ftype ion.Symbol, format string, args ...any) {
	if sink == nil {
		return
	}
	sink.Report(Diagnostic{FID: fid, FType: ftype, Msg: fmt.Sprintf(format, args...)})
}
