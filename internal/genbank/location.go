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

package genbank

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/googlegenomics/construct/internal/genomics"
)

// parseLocation converts a feature location to a zero-based half-open span
// and a strand.  Compound locations (join, order) collapse to the span from
// their first to their last base; partial markers are dropped.
func parseLocation(text string) (genomics.Interval, int, error) {
	text = strings.Join(strings.Fields(text), "")
	strand := 1
	if inner, ok := unwrap(text, "complement"); ok {
		strand, text = -1, inner
	}
	for _, operator := range []string{"join", "order"} {
		if inner, ok := unwrap(text, operator); ok {
			text = inner
			break
		}
	}

	var (
		span  genomics.Interval
		found bool
	)
	parts := strings.Split(text, ",")
	complemented := 0
	for _, part := range parts {
		if inner, ok := unwrap(part, "complement"); ok {
			complemented++
			part = inner
		}
		s, err := parseRange(part)
		if err != nil {
			return genomics.Interval{}, 0, fmt.Errorf("location %q: %v", text, err)
		}
		if !found || s.Start < span.Start {
			span.Start = s.Start
		}
		if !found || s.End > span.End {
			span.End = s.End
		}
		found = true
	}
	if complemented == len(parts) {
		strand = -strand
	}
	return span, strand, nil
}

func unwrap(text, operator string) (string, bool) {
	if strings.HasPrefix(text, operator+"(") && strings.HasSuffix(text, ")") {
		return text[len(operator)+1 : len(text)-1], true
	}
	return text, false
}

// parseRange parses a single "a..b", "a^b" or "a" range.
func parseRange(text string) (genomics.Interval, error) {
	// Remote references are reduced to their local coordinates.
	if i := strings.LastIndexByte(text, ':'); i >= 0 {
		text = text[i+1:]
	}
	text = strings.NewReplacer("<", "", ">", "").Replace(text)

	if from, to, ok := strings.Cut(text, ".."); ok {
		start, err := position(from)
		if err != nil {
			return genomics.Interval{}, err
		}
		end, err := position(to)
		if err != nil {
			return genomics.Interval{}, err
		}
		if end < start {
			return genomics.Interval{}, fmt.Errorf("end %d before start %d", end, start)
		}
		return genomics.Interval{Start: start - 1, End: end}, nil
	}
	if from, _, ok := strings.Cut(text, "^"); ok {
		// The site between the first base and its predecessor is 0^1.
		start, err := strconv.Atoi(from)
		if err != nil || start < 0 {
			return genomics.Interval{}, fmt.Errorf("invalid position %q", from)
		}
		return genomics.Interval{Start: start, End: start}, nil
	}
	start, err := position(text)
	if err != nil {
		return genomics.Interval{}, err
	}
	return genomics.Interval{Start: start - 1, End: start}, nil
}

func position(text string) (int, error) {
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q", text)
	}
	if n < 1 {
		return 0, fmt.Errorf("position %d out of range", n)
	}
	return n, nil
}

// formatLocation is the inverse of parseLocation for simple spans.
func formatLocation(span genomics.Interval, strand int) string {
	var text string
	switch span.Len() {
	case 0:
		text = fmt.Sprintf("%d^%d", span.Start, span.Start+1)
	case 1:
		text = strconv.Itoa(span.End)
	default:
		text = fmt.Sprintf("%d..%d", span.Start+1, span.End)
	}
	if strand == -1 {
		return "complement(" + text + ")"
	}
	return text
}
