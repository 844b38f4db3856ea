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

// Package note encodes design metadata into the free-text "note" qualifier of
// a flat-file feature.
//
// The qualifier grammar does not allow embedded double quotes or newlines, so
// the payload is written as compact JSON with every double quote replaced by
// a single quote and every newline replaced by a space.  Values that contain
// single quotes do not survive a round trip.
package note

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kinds of design element a payload may describe.
const (
	KindBlock      = "block"
	KindAnnotation = "annotation"
)

// Design is the design-tool specific part of a payload.
type Design struct {
	Name        string   `json:"name"`
	Kind        string   `json:"type"`
	ID          string   `json:"id,omitempty"`
	Parents     []string `json:"parents"`
	Color       string   `json:"color,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Payload is the structured content of a note qualifier.  Note carries the
// feature's original free-text note, if it had one.
type Payload struct {
	Design Design `json:"GC"`
	Note   string `json:"note,omitempty"`
}

// IsAnnotation reports whether the payload describes a former annotation.
func (p Payload) IsAnnotation() bool {
	return p.Design.Kind == KindAnnotation
}

// Encode returns the qualifier text for p.
func Encode(p Payload) string {
	if p.Design.Parents == nil {
		p.Design.Parents = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		// Payload only holds strings, which always marshal.
		panic(err)
	}
	return Escape(strings.TrimSuffix(buf.String(), "\n"))
}

// Escape makes s safe to store in a qualifier value.
func Escape(s string) string {
	return strings.NewReplacer(`"`, `'`, "\n", " ").Replace(s)
}

// Unescape reverses Escape for strings without literal single quotes.
func Unescape(s string) string {
	return strings.Replace(s, `'`, `"`, -1)
}

// Result is the outcome of Decode: either Decoded or Opaque.
type Result interface {
	result()
}

// Decoded holds a payload that was recovered from a note.
type Decoded struct {
	Payload
}

// Opaque holds a note that did not contain a payload.  Text is the original,
// unmodified qualifier value.
type Opaque struct {
	Text string
}

func (Decoded) result() {}
func (Opaque) result()  {}

// Decode parses a note qualifier value.  It never fails: anything that is not
// a well-formed payload is returned as Opaque.
func Decode(text string) Result {
	var raw struct {
		Design *struct {
			Name        *string  `json:"name"`
			Kind        string   `json:"type"`
			ID          string   `json:"id"`
			Parents     []string `json:"parents"`
			Color       string   `json:"color"`
			Description string   `json:"description"`
		} `json:"GC"`
		Note *string `json:"note"`
	}
	if err := json.Unmarshal([]byte(Unescape(text)), &raw); err != nil {
		return Opaque{text}
	}
	if raw.Design == nil || raw.Design.Name == nil {
		return Opaque{text}
	}

	p := Payload{Design: Design{
		Name:        *raw.Design.Name,
		Kind:        raw.Design.Kind,
		ID:          raw.Design.ID,
		Parents:     raw.Design.Parents,
		Color:       raw.Design.Color,
		Description: raw.Design.Description,
	}}
	if raw.Note != nil {
		p.Note = *raw.Note
	}
	return Decoded{p}
}
