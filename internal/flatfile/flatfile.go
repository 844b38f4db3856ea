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

// Package flatfile defines the flat annotation model: a sequence plus an
// ordered list of located features, each with a bag of qualifiers.
package flatfile

import (
	"io"

	"github.com/googlegenomics/construct/internal/genomics"
)

// SourceType is the feature type that spans a whole record.
const SourceType = "source"

// Feature is a single located annotation on a record's sequence.
type Feature struct {
	Type       string
	Location   genomics.Interval
	Strand     int
	Qualifiers Qualifiers
}

// Reference is a literature reference from a record header.
type Reference struct {
	Location   string `json:"location,omitempty"`
	Authors    string `json:"authors,omitempty"`
	Consortium string `json:"consrtm,omitempty"`
	Title      string `json:"title,omitempty"`
	Journal    string `json:"journal,omitempty"`
	MedlineID  string `json:"medline_id,omitempty"`
	PubmedID   string `json:"pubmed_id,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

// Record is one entry of a flat file.  Annotations holds header-level values
// keyed by name (for example "molecule_type", "topology", "organism").
type Record struct {
	Name        string
	ID          string
	Description string
	Sequence    string
	Features    []Feature
	Annotations map[string]string
	References  []Reference
}

// Parser reads records from flat-file text.
type Parser interface {
	Parse(r io.Reader) ([]Record, error)
}

// Writer writes records as flat-file text.  Feature order is preserved.
type Writer interface {
	Write(w io.Writer, records []Record) error
}

// Qualifiers is an insertion-ordered multimap of qualifier values.  The zero
// value is empty and ready to use.
type Qualifiers struct {
	keys   []string
	values map[string][]string
}

// Add appends value to the values of key.
func (q *Qualifiers) Add(key, value string) {
	if q.values == nil {
		q.values = make(map[string][]string)
	}
	if _, ok := q.values[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.values[key] = append(q.values[key], value)
}

// Set replaces the values of key, keeping its original position if present.
func (q *Qualifiers) Set(key string, values ...string) {
	if q.values == nil {
		q.values = make(map[string][]string)
	}
	if _, ok := q.values[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.values[key] = append([]string(nil), values...)
}

// Get returns all values of key.
func (q Qualifiers) Get(key string) []string {
	return q.values[key]
}

// First returns the first value of key.
func (q Qualifiers) First(key string) (string, bool) {
	if values := q.values[key]; len(values) > 0 {
		return values[0], true
	}
	return "", false
}

// Keys returns the qualifier keys in insertion order.
func (q Qualifiers) Keys() []string {
	return q.keys
}

// Len returns the number of distinct keys.
func (q Qualifiers) Len() int {
	return len(q.keys)
}
