// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package genomics contains definitions related to positions on a sequence.
package genomics

import "fmt"

// Interval defines a half-open span [Start, End) of a sequence, in base pairs
// from the start of the sequence.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bases covered by the interval.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

// Covers reports whether iv fully contains other.
func (iv Interval) Covers(other Interval) bool {
	return iv.Start <= other.Start && iv.End >= other.End
}

// Offset returns the interval shifted by n bases.
func (iv Interval) Offset(n int) Interval {
	return Interval{iv.Start + n, iv.End + n}
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%d:%d]", iv.Start, iv.End)
}
