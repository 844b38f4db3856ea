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

// Package variant enumerates the combinations of a design whose blocks offer
// alternatives.
//
// A Selection picks one enabled option for every variant holder of a
// construct.  Selections are values: advancing one returns a new Selection and
// leaves the blocks untouched, so combinations can be flattened concurrently.
package variant

import (
	"context"

	"github.com/googlegenomics/construct/internal/block"
)

// Holders returns the ids of the variant holders at or below rootID, in
// depth-first order.  A holder with at least one enabled option hides
// everything below it; any other block is searched through its components.
// Ids that are not in blocks are ignored.
func Holders(blocks map[string]*block.Block, rootID string) []string {
	var holders []string
	visited := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		b, ok := blocks[id]
		if !ok || visited[id] {
			return
		}
		visited[id] = true
		if b.Kind() == block.Variant && len(b.Options.Enabled()) > 0 {
			holders = append(holders, id)
			return
		}
		for _, child := range b.Components {
			walk(child)
		}
	}
	walk(rootID)
	return holders
}

// Choice is the selected option of one holder.
type Choice struct {
	Holder  string
	Enabled []string
	Index   int
}

// Option returns the id of the selected option.
func (c Choice) Option() string {
	return c.Enabled[c.Index]
}

// Selection is one combination of options.  The zero Selection selects
// nothing.
type Selection struct {
	choices []Choice
}

// First returns the selection of the first enabled option of every holder
// below rootID.
func First(blocks map[string]*block.Block, rootID string) Selection {
	var s Selection
	for _, id := range Holders(blocks, rootID) {
		s.choices = append(s.choices, Choice{Holder: id, Enabled: blocks[id].Options.Enabled()})
	}
	return s
}

// Len returns the number of holders in s.
func (s Selection) Len() int {
	return len(s.choices)
}

// Choices returns a copy of the choices in s, in holder order.
func (s Selection) Choices() []Choice {
	return append([]Choice(nil), s.choices...)
}

// Option returns the option selected for holder.  It returns false if holder
// is not part of s.
func (s Selection) Option(holder string) (string, bool) {
	for _, c := range s.choices {
		if c.Holder == holder {
			return c.Option(), true
		}
	}
	return "", false
}

// Next returns the combination following s.  The first holder is the least
// significant digit: it advances to its next enabled option, and when it runs
// out it goes back to its first one and the next holder advances instead.  Next
// returns false once every combination has been produced.
func (s Selection) Next() (Selection, bool) {
	next := Selection{choices: s.Choices()}
	for i := range next.choices {
		c := &next.choices[i]
		if c.Index+1 < len(c.Enabled) {
			c.Index++
			return next, true
		}
		c.Index = 0
	}
	return next, false
}

// Count returns the number of combinations starting from the first one.
func (s Selection) Count() int {
	n := 1
	for _, c := range s.choices {
		n *= len(c.Enabled)
	}
	return n
}

// Enumerate calls fn with every combination of the construct rootID, numbered
// from 0.  A construct without holders has exactly one, empty, combination.
// Enumeration stops at the first error from fn or when ctx is done.
func Enumerate(ctx context.Context, blocks map[string]*block.Block, rootID string, fn func(n int, s Selection) error) error {
	s, more := First(blocks, rootID), true
	for n := 0; more; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(n, s); err != nil {
			return err
		}
		s, more = s.Next()
	}
	return nil
}
