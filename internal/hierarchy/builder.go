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

// Package hierarchy builds a design tree out of a flat list of located
// features.
//
// Candidates are placed from the shortest to the longest.  Each one becomes a
// structural child of the shortest longer candidate that contains it, or an
// annotation of a block it cannot be cleanly placed in.  Overlapping siblings
// are never kept: a block that would partially overlap a sibling is folded
// into the parent as an annotation instead.  Once every candidate is placed,
// gaps between children are covered by unnamed filler blocks.
package hierarchy

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/googlegenomics/construct/internal/block"
	"github.com/googlegenomics/construct/internal/genomics"
)

// fillerPreviewLength is the number of bases shown in a filler's preview.
const fillerPreviewLength = 3

// Prior is provenance recovered from a previous export of the same design.
type Prior struct {
	// ID is the block id at the time of export.
	ID string
	// Parents are the ids of the block's parents at the time of export.
	Parents []string
	// IsAnnotation is set if the feature was exported from an annotation.
	IsAnnotation bool
}

// Candidate is a block waiting to be placed, with its absolute span on the
// record sequence.
type Candidate struct {
	Block *block.Block
	Span  genomics.Interval
	Prior Prior
}

// PlacementError reports a block that could not be placed anywhere in the
// tree.  The block is dropped.
type PlacementError struct {
	Name string
	Span genomics.Interval
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("no place for block %q %v", e.Name, e.Span)
}

// Result is a finished design tree.
type Result struct {
	Root     *block.Block
	Blocks   map[string]*block.Block
	Envelope block.Envelope
	Failures []*PlacementError
}

// Option configures a build.
type Option func(*options)

type options struct {
	log        *slog.Logger
	newID      func() string
	sourceName string
}

// WithLogger sets the logger placement failures are reported to.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithIDs sets the function used to generate ids for new blocks.  It must be
// safe for concurrent use if the options are shared between imports.
func WithIDs(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithSourceName names the constructs that wrap records without any parts,
// usually after the imported file.  The default is the project name.
func WithSourceName(name string) Option {
	return func(o *options) { o.sourceName = name }
}

func newOptions(opts []Option) options {
	o := options{log: slog.Default(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type node struct {
	block *block.Block
	span  genomics.Interval
	prior Prior
}

// builder owns the registry of one tree.  It is not safe for concurrent use.
type builder struct {
	options
	sequence  string
	root      *node
	nodes     map[string]*node
	order     []*node
	removed   map[string]bool
	hasParent map[string]bool
	failures  []*PlacementError
}

// Build places candidates under root.  root's span must cover the whole of
// sequence.  The candidate blocks are modified and the ones that end up in
// the tree are returned in the result.
func Build(root Candidate, candidates []Candidate, sequence string, opts ...Option) *Result {
	b := &builder{
		options:   newOptions(opts),
		sequence:  sequence,
		nodes:     make(map[string]*node),
		removed:   make(map[string]bool),
		hasParent: make(map[string]bool),
	}
	b.root = b.add(root)
	for _, c := range candidates {
		b.add(c)
	}

	b.place()
	b.sweep()
	b.fillGaps()
	return b.finish()
}

func (b *builder) add(c Candidate) *node {
	n := &node{block: c.Block, span: c.Span, prior: c.Prior}
	if n.block.Sequence.Annotations == nil {
		n.block.Sequence.Annotations = []block.Annotation{}
	}
	b.nodes[n.block.ID] = n
	b.order = append(b.order, n)
	return n
}

// sortKey orders candidates by length.  The root counts as one base longer
// so that it sorts after any candidate spanning the whole record.
func (b *builder) sortKey(n *node) int {
	if n == b.root {
		return n.span.Len() + 1
	}
	return n.span.Len()
}

func (b *builder) place() {
	sorted := append([]*node(nil), b.order...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return b.sortKey(sorted[i]) < b.sortKey(sorted[j])
	})

	for i, n := range sorted {
		if n == b.root || b.removed[n.block.ID] || b.hasParent[n.block.ID] {
			continue
		}
		if b.placeFromPrior(n) {
			continue
		}

		inserted := false
		for _, other := range sorted[i+1:] {
			if b.removed[other.block.ID] {
				continue
			}
			// Only the root may contain candidates of the root's length.
			if other != b.root && other.span.Len() == b.root.span.Len() {
				continue
			}
			if !other.span.Covers(n.span) {
				continue
			}

			switch genomics.Classify(n.span, other.span) {
			case genomics.Child:
				b.insert(n, other)
				inserted = true
			case genomics.Equal:
				if len(n.block.Components) <= len(other.block.Components) {
					b.fold(n, other)
					inserted = true
				} else {
					b.fold(other, n)
				}
			}
			if inserted {
				break
			}
		}
		if inserted {
			continue
		}

		if n.span.Len() == b.root.span.Len() {
			b.fold(n, b.root)
			continue
		}
		err := &PlacementError{Name: n.block.Metadata.Name, Span: n.span}
		b.log.Warn("Dropping block that could not be placed", "name", err.Name, "start", n.span.Start, "end", n.span.End)
		b.failures = append(b.failures, err)
		b.drop(n)
	}
}

// drop removes n and its subtree from the tree.
func (b *builder) drop(n *node) {
	b.removed[n.block.ID] = true
	for _, id := range n.block.Components {
		if child, ok := b.nodes[id]; ok {
			b.drop(child)
		}
	}
}

// placeFromPrior restores the placement recorded by a previous export.  It
// returns false if n has no usable prior placement.
func (b *builder) placeFromPrior(n *node) bool {
	if len(n.prior.Parents) == 0 {
		return false
	}

	var parents []*node
	for _, id := range n.prior.Parents {
		if parent := b.byPriorID(id); parent != nil && parent != n {
			parents = append(parents, parent)
		} else {
			b.log.Warn("Former parent not found", "name", n.block.Metadata.Name, "parent", id)
		}
	}
	if len(parents) == 0 {
		return false
	}

	if n.prior.IsAnnotation {
		b.fold(n, parents[0])
		return true
	}
	for _, parent := range parents {
		if b.removed[n.block.ID] {
			break
		}
		b.insert(n, parent)
	}
	return true
}

func (b *builder) byPriorID(id string) *node {
	for _, n := range b.order {
		if n.prior.ID == id && !b.removed[n.block.ID] {
			return n
		}
	}
	return nil
}

// insert adds n to the components of parent, keeping them in sequence order.
// If n overlaps any existing child it becomes an annotation of parent.
func (b *builder) insert(n, parent *node) {
	position := 0
	for _, id := range parent.block.Components {
		switch genomics.Classify(n.span, b.nodes[id].span) {
		case genomics.After:
			position++
		case genomics.Before:
		default:
			b.fold(n, parent)
			return
		}
	}

	components := parent.block.Components
	components = append(components, "")
	copy(components[position+1:], components[position:])
	components[position] = n.block.ID
	parent.block.Components = components
	b.hasParent[n.block.ID] = true
}

// fold turns n, its annotations and its whole subtree into annotations of
// target, and marks them all for removal.
func (b *builder) fold(n, target *node) {
	shift := n.span.Start - target.span.Start

	meta := n.block.Metadata
	annotation := block.Annotation{
		Name:        meta.Name,
		Description: meta.Description,
		Start:       shift,
		End:         n.span.End - target.span.Start,
		IsForward:   meta.Strand == 1,
		Role:        n.block.Rules.Role,
		Color:       meta.Color,
		Tags:        meta.Tags,
		Origin:      meta.Origin,
	}
	if meta.InitialBases != "" {
		annotation.Notes = map[string]string{"initialBases": meta.InitialBases}
	}

	owned := &target.block.Sequence.Annotations
	*owned = append(*owned, annotation)
	b.removed[n.block.ID] = true

	for _, a := range n.block.Sequence.Annotations {
		a.Start += shift
		a.End += shift
		*owned = append(*owned, a)
	}
	for _, id := range n.block.Components {
		if child, ok := b.nodes[id]; ok {
			b.fold(child, target)
		}
	}
}

// sweep drops removed blocks from the registry and from any component list
// still referring to them.
func (b *builder) sweep() {
	kept := b.order[:0]
	for _, n := range b.order {
		if b.removed[n.block.ID] {
			delete(b.nodes, n.block.ID)
			continue
		}
		kept = append(kept, n)
	}
	b.order = kept

	for _, n := range b.order {
		components := n.block.Components[:0]
		for _, id := range n.block.Components {
			if !b.removed[id] {
				components = append(components, id)
			}
		}
		n.block.Components = components
	}
}

// fillGaps covers every stretch of a parent not covered by a child with a
// filler block.
func (b *builder) fillGaps() {
	parents := append([]*node(nil), b.order...)
	for _, parent := range parents {
		if len(parent.block.Components) == 0 {
			continue
		}

		cursor := parent.span.Start
		var components []string
		for _, id := range parent.block.Components {
			child := b.nodes[id]
			if child.span.Start > cursor {
				components = append(components, b.filler(genomics.Interval{Start: cursor, End: child.span.Start}))
			}
			components = append(components, id)
			cursor = child.span.End
		}
		if cursor < parent.span.End {
			components = append(components, b.filler(genomics.Interval{Start: cursor, End: parent.span.End}))
		}
		parent.block.Components = components
	}
}

func (b *builder) filler(span genomics.Interval) string {
	preview := genomics.Interval{Start: span.Start, End: span.Start + fillerPreviewLength}
	filler := &block.Block{
		ID: b.newID(),
		Metadata: block.Metadata{
			InitialBases: b.slice(preview) + "...",
		},
		Components: []string{},
	}
	b.add(Candidate{Block: filler, Span: span})
	return filler.ID
}

// slice returns the bases of the record under span, clipped to the record.
func (b *builder) slice(span genomics.Interval) string {
	start, end := span.Start, span.End
	if end > len(b.sequence) {
		end = len(b.sequence)
	}
	if start > end {
		return ""
	}
	return b.sequence[start:end]
}

func (b *builder) finish() *Result {
	result := &Result{
		Root:   b.root.block,
		Blocks: make(map[string]*block.Block, len(b.order)),
		Envelope: block.Envelope{
			Sequence: b.sequence,
			Blocks:   make(map[string]genomics.Interval, len(b.order)),
		},
		Failures: b.failures,
	}
	for _, n := range b.order {
		blk := n.block
		if blk.Components == nil {
			blk.Components = []string{}
		}
		if len(blk.Components) > 0 {
			blk.Sequence.Length = 0
			blk.Sequence.Literal = ""
		} else {
			blk.Sequence.Literal = b.slice(n.span)
			blk.Sequence.Length = len(blk.Sequence.Literal)
		}
		result.Blocks[blk.ID] = blk
		result.Envelope.Blocks[blk.ID] = n.span
	}
	return result
}
