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
	"testing"
	"time"
)

func TestTimestampRoundTrip(t *testing.T) {
	cases := []Timestamp{
		{HasOffset: true, Year: 2024, Precision: PrecisionYear},
		{HasOffset: true, Year: 2024, Month: 6, Precision: PrecisionMonth},
		{HasOffset: true, Year: 2024, Month: 6, Day: 15, Precision: PrecisionDay},
		{HasOffset: true, Year: 2024, Month: 6, Day: 15, Hour: 12, Minute: 30, Precision: PrecisionMinute},
		{HasOffset: true, Year: 2024, Month: 6, Day: 15, Hour: 12, Minute: 30, Second: 45, Precision: PrecisionSecond},
		{HasOffset: true, Offset: -300, Year: 2024, Month: 1, Day: 2, Hour: 3, Minute: 4, Second: 5, Precision: PrecisionSecond},
		{Year: 2024, Month: 6, Day: 15, Hour: 12, Minute: 30, Precision: PrecisionMinute},
		{HasOffset: true, Year: 2024, Month: 6, Day: 15, Hour: 12, Minute: 30, Second: 45,
			FracExp: -3, FracCoef: 250, Precision: PrecisionFraction},
	}
	for i, want := range cases {
		var b Buffer
		b.WriteTimestamp(&want)
		got, rest, err := ReadTimestamp(b.Bytes())
		if err != nil {
			t.Fatalf("case %d: %s", i, err)
		}
		if len(rest) != 0 {
			t.Errorf("case %d: %d trailing bytes", i, len(rest))
		}
		if !got.Equal(&want) {
			t.Errorf("case %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestTimestampNoOffset(t *testing.T) {
	ts := Timestamp{Year: 2024, Month: 3, Day: 1, Hour: 0, Minute: 0, Precision: PrecisionMinute}
	var b Buffer
	b.WriteTimestamp(&ts)
	// the first body byte is the negative-zero offset marker
	if b.Bytes()[1] != 0xc0 {
		t.Errorf("offset byte %02x, want c0", b.Bytes()[1])
	}
	got, _, err := ReadTimestamp(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got.HasOffset {
		t.Error("no-offset timestamp read back with an offset")
	}
}

func TestTimestampFromTime(t *testing.T) {
	in := time.Date(2024, 6, 15, 12, 30, 45, 0, time.UTC)
	ts := NewTimestamp(in)
	if ts.Precision != PrecisionSecond || !ts.HasOffset {
		t.Fatalf("NewTimestamp: %+v", ts)
	}
	if !ts.Time().Equal(in) {
		t.Errorf("Time() = %s, want %s", ts.Time(), in)
	}
	var b Buffer
	b.WriteTimestamp(&ts)
	got, _, err := ReadTimestamp(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Time().Equal(in) {
		t.Errorf("round trip Time() = %s, want %s", got.Time(), in)
	}
}
