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

// Package block contains the design hierarchy model: blocks that either hold a
// literal sequence or an ordered list of child blocks, plus the annotations
// attached to them.
package block

import (
	"sort"

	"github.com/googlegenomics/construct/internal/flatfile"
	"github.com/googlegenomics/construct/internal/genomics"
)

// Qualifier is a single key/value pair kept from a flat-file feature.
type Qualifier struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Origin is the provenance of a block that was imported from a flat file.  It
// is carried through the design untouched so that export can restore it.
type Origin struct {
	// Type is the flat-file feature type.
	Type string `json:"type,omitempty"`
	// Name and ID are the record name and identifier (roots only).
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
	// NameSource is the qualifier key the block name was read from.
	NameSource string `json:"name_source,omitempty"`
	// Note is the feature's original free-text note.
	Note       string      `json:"note,omitempty"`
	Qualifiers []Qualifier `json:"qualifiers,omitempty"`

	// Record header values and the qualifiers of the record's source feature
	// (roots only).
	Annotations        map[string]string    `json:"annotations,omitempty"`
	References         []flatfile.Reference `json:"references,omitempty"`
	FeatureAnnotations []Qualifier          `json:"feature_annotations,omitempty"`
}

// Metadata is the descriptive part of a block.
type Metadata struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Color       string            `json:"color,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	// Strand is 1 for forward, -1 for reverse, 0 if unknown.
	Strand int `json:"strand,omitempty"`
	// InitialBases is a short preview of the sequence of a filler block.
	InitialBases string `json:"initialBases,omitempty"`
	Origin       Origin `json:"genbank"`
}

// Rules holds design constraints on a block.
type Rules struct {
	Role Role `json:"role,omitempty"`
}

// Sequence describes the bases of a block.  Only leaf blocks have a literal;
// the sequence of a block with components is the concatenation of its
// children and its Length is zero.
type Sequence struct {
	Length      int          `json:"length"`
	Hash        string       `json:"hash,omitempty"`
	Literal     string       `json:"sequence,omitempty"`
	Annotations []Annotation `json:"annotations"`
}

// Block is a node of the design tree.
type Block struct {
	ID         string   `json:"id"`
	Metadata   Metadata `json:"metadata"`
	Rules      Rules    `json:"rules"`
	Components []string `json:"components"`
	Sequence   Sequence `json:"sequence"`

	// Options lists the alternatives of a variant block.  CurrentOption is the
	// persisted selection, if any.
	Options       Options `json:"options,omitempty"`
	CurrentOption string  `json:"current_option,omitempty"`
}

// Kind distinguishes the three shapes a block can take.
type Kind int

const (
	// Leaf blocks hold a literal sequence.
	Leaf Kind = iota
	// Structural blocks hold an ordered list of children.
	Structural
	// Variant blocks offer alternative blocks, one of which is used at a time.
	Variant
)

// Kind returns the shape of b.
func (b *Block) Kind() Kind {
	switch {
	case len(b.Options) > 0:
		return Variant
	case len(b.Components) > 0:
		return Structural
	}
	return Leaf
}

// IsFiller reports whether b is a synthetic block that only covers a gap
// between named siblings.
func (b *Block) IsFiller() bool {
	return b.Metadata.Name == "" && b.Sequence.Literal != "" && b.Metadata.InitialBases != ""
}

// Annotation is non-structural metadata attached to a block.  Start and End
// are offsets from the start of the owning block.
type Annotation struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Start       int               `json:"start"`
	End         int               `json:"end"`
	IsForward   bool              `json:"isForward"`
	Role        Role              `json:"role,omitempty"`
	Color       string            `json:"color,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Origin      Origin            `json:"genbank"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// Project groups the top-level constructs of a design.
type Project struct {
	ID         string          `json:"id"`
	Metadata   ProjectMetadata `json:"metadata"`
	Components []string        `json:"components"`
}

// ProjectMetadata is the descriptive part of a project.
type ProjectMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Envelope is a record's full sequence together with the absolute span of
// every block built from it.
type Envelope struct {
	Sequence string                       `json:"sequence"`
	Blocks   map[string]genomics.Interval `json:"blocks"`
}

// Rollup is a project with all of its blocks.
type Rollup struct {
	Project   Project           `json:"project"`
	Blocks    map[string]*Block `json:"blocks"`
	Sequences []Envelope        `json:"sequences,omitempty"`
}

// IDs returns the ids of all blocks in r, sorted.
func (r *Rollup) IDs() []string {
	ids := make([]string, 0, len(r.Blocks))
	for id := range r.Blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Merge adds the constructs of other to r.  r keeps its own id and metadata;
// other's constructs are listed after r's and its blocks and sequences are
// added to r's.
func (r *Rollup) Merge(other *Rollup) {
	r.Project.Components = append(r.Project.Components, other.Project.Components...)
	if r.Blocks == nil {
		r.Blocks = make(map[string]*Block, len(other.Blocks))
	}
	for id, b := range other.Blocks {
		r.Blocks[id] = b
	}
	r.Sequences = append(r.Sequences, other.Sequences...)
}

// Parents returns, for every block id, the ids of the blocks listing it as a
// component.  Parents are in sorted id order.
func Parents(blocks map[string]*Block) map[string][]string {
	ids := make([]string, 0, len(blocks))
	for id := range blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parents := make(map[string][]string)
	for _, id := range ids {
		for _, child := range blocks[id].Components {
			parents[child] = append(parents[child], id)
		}
	}
	return parents
}
