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

package genomics

import "fmt"

// Relationship describes how one interval is placed with respect to another.
type Relationship int

const (
	// Child means the first interval is shorter than, and inside, the second.
	Child Relationship = iota + 1
	// Equal means both intervals have the same endpoints.
	Equal
	// Parent means the first interval is longer than, and contains, the second.
	Parent
	// Partial means the intervals overlap without either containing the other.
	Partial
	// Before means the first interval ends before the second starts.
	Before
	// After means the first interval starts after the second ends.
	After
)

var relationshipNames = map[Relationship]string{
	Child:   "child",
	Equal:   "equal",
	Parent:  "parent",
	Partial: "partial",
	Before:  "before",
	After:   "after",
}

func (r Relationship) String() string {
	if name, ok := relationshipNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Relationship(%d)", int(r))
}

// Mirror returns the relationship seen from the other interval.
func (r Relationship) Mirror() Relationship {
	switch r {
	case Child:
		return Parent
	case Parent:
		return Child
	case Before:
		return After
	case After:
		return Before
	}
	return r
}

// Classify returns the relationship of a to b.  The rules are tested in a
// fixed order and the first match wins: child, equal, parent, partial,
// before, after.
//
// Classify panics if either interval is malformed (negative start or end
// before start).  Callers are expected to only ever build well-formed
// intervals, so this indicates a programming error rather than bad data.
func Classify(a, b Interval) Relationship {
	mustBeValid(a)
	mustBeValid(b)

	switch {
	case a.Len() < b.Len() && b.Covers(a):
		return Child
	case a.Len() == b.Len() && a.Start == b.Start && a.End == b.End:
		return Equal
	case a.Len() > b.Len() && a.Covers(b):
		return Parent
	case (a.Start <= b.Start && a.End > b.Start) || (a.Start < b.End && a.End >= b.End):
		return Partial
	case a.End-1 < b.Start:
		return Before
	case a.Start > b.End-1:
		return After
	}
	panic(fmt.Sprintf("genomics: no relationship between %v and %v", a, b))
}

func mustBeValid(iv Interval) {
	if iv.Start < 0 || iv.Len() < 0 {
		panic(fmt.Sprintf("genomics: malformed interval %v", iv))
	}
}
