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

package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/googlegenomics/construct/internal/block"
	"github.com/googlegenomics/construct/internal/flatfile"
	"github.com/googlegenomics/construct/internal/genomics"
	"github.com/googlegenomics/construct/internal/note"
	"golang.org/x/sync/errgroup"
)

const noteQualifier = "note"

var (
	// ErrNoSequence is returned for records without any bases.
	ErrNoSequence = errors.New("record has no sequence")
	// ErrNoRecords is returned when there is nothing to import.
	ErrNoRecords = errors.New("no records to import")
)

// Import builds the design tree of a single record.
func Import(record flatfile.Record, opts ...Option) (*Result, error) {
	if record.Sequence == "" {
		return nil, ErrNoSequence
	}
	o := newOptions(opts)

	root := Candidate{
		Block: newBlock(o.newID()),
		Span:  genomics.Interval{Start: 0, End: len(record.Sequence)},
	}
	root.Block.Metadata.Name = record.Name
	root.Block.Metadata.Description = record.Description
	root.Block.Metadata.Origin = block.Origin{
		Name:        record.Name,
		ID:          record.ID,
		Annotations: record.Annotations,
		References:  record.References,
	}

	features := append([]flatfile.Feature(nil), record.Features...)
	sort.SliceStable(features, func(i, j int) bool {
		return features[i].Location.Len() < features[j].Location.Len()
	})

	var candidates []Candidate
	for _, f := range features {
		if f.Location.Start < 0 || f.Location.End < f.Location.Start {
			return nil, fmt.Errorf("feature %s has invalid location %v", f.Type, f.Location)
		}
		if strings.TrimSpace(f.Type) == flatfile.SourceType {
			applySource(&root, f)
			continue
		}
		candidates = append(candidates, newCandidate(o.newID(), f))
	}

	return Build(root, candidates, record.Sequence, opts...), nil
}

// Imported is a project built from a set of records.
type Imported struct {
	Rollup   *block.Rollup
	Failures []*PlacementError
}

// ImportRecords builds one construct per record and groups them in a new
// project.  Records are built concurrently; the project lists the constructs
// in record order and takes its name and description from the last one.
func ImportRecords(ctx context.Context, records []flatfile.Record, opts ...Option) (*Imported, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	o := newOptions(opts)

	results := make([]*Result, len(records))
	g, ctx := errgroup.WithContext(ctx)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := Import(records[i], opts...)
			if err != nil {
				return fmt.Errorf("importing record %d (%s): %v", i, records[i].Name, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	imported := &Imported{Rollup: &block.Rollup{
		Project: block.Project{ID: o.newID(), Components: []string{}},
		Blocks:  make(map[string]*block.Block),
	}}
	for _, result := range results {
		rollup := imported.Rollup
		rollup.Project.Components = append(rollup.Project.Components, result.Root.ID)
		rollup.Project.Metadata = block.ProjectMetadata{
			Name:        result.Root.Metadata.Name,
			Description: result.Root.Metadata.Description,
		}
		for id, b := range result.Blocks {
			rollup.Blocks[id] = b
		}
		rollup.Sequences = append(rollup.Sequences, result.Envelope)
		imported.Failures = append(imported.Failures, result.Failures...)
	}
	wrapChildless(imported.Rollup, o)
	return imported, nil
}

// wrapChildless moves every construct without components into a new construct
// of its own, named after the source.  The project lists the constructs that
// have components first, followed by the wrappers.
func wrapChildless(r *block.Rollup, o options) {
	name := o.sourceName
	if name == "" {
		name = r.Project.Metadata.Name
	}
	var kept, wrappers []string
	for _, id := range r.Project.Components {
		if len(r.Blocks[id].Components) > 0 {
			kept = append(kept, id)
			continue
		}
		wrapper := newBlock(o.newID())
		wrapper.Metadata.Name = name
		if n := len(wrappers); n > 0 {
			wrapper.Metadata.Name = fmt.Sprintf("%s - Construct %d", name, n+1)
		}
		wrapper.Components = []string{id}
		r.Blocks[wrapper.ID] = wrapper
		wrappers = append(wrappers, wrapper.ID)
	}
	r.Project.Components = append(append([]string{}, kept...), wrappers...)
}

func newBlock(id string) *block.Block {
	return &block.Block{
		ID:         id,
		Components: []string{},
		Sequence:   block.Sequence{Annotations: []block.Annotation{}},
	}
}

// applySource merges the record's source feature into the root.
func applySource(root *Candidate, f flatfile.Feature) {
	if text, ok := f.Qualifiers.First(noteQualifier); ok {
		applyNote(root, text)
	}
	origin := &root.Block.Metadata.Origin
	for _, key := range f.Qualifiers.Keys() {
		if key == noteQualifier {
			continue
		}
		if value, ok := f.Qualifiers.First(key); ok {
			origin.FeatureAnnotations = append(origin.FeatureAnnotations, block.Qualifier{Key: key, Value: value})
		}
	}
}

func newCandidate(id string, f flatfile.Feature) Candidate {
	c := Candidate{Block: newBlock(id), Span: f.Location}
	b := c.Block
	b.Metadata.Strand = f.Strand
	b.Metadata.Origin.Type = f.Type
	b.Rules.Role = block.RoleForType(f.Type)
	b.Sequence.Length = f.Location.Len()

	if keys, ok := block.NameQualifiers(f.Type); ok {
		for _, key := range keys {
			if value, ok := f.Qualifiers.First(key); ok {
				b.Metadata.Name = value
				b.Metadata.Origin.NameSource = key
				break
			}
		}
	} else {
		b.Metadata.Name = f.Type
	}

	if text, ok := f.Qualifiers.First(noteQualifier); ok {
		applyNote(&c, text)
	}

	for _, key := range f.Qualifiers.Keys() {
		if key == noteQualifier {
			continue
		}
		// Keys without a value cannot be carried and are skipped.
		if value, ok := f.Qualifiers.First(key); ok {
			b.Metadata.Origin.Qualifiers = append(b.Metadata.Origin.Qualifiers, block.Qualifier{Key: key, Value: value})
		}
	}
	return c
}

// applyNote restores design metadata from a note qualifier, or keeps the note
// as plain text.
func applyNote(c *Candidate, text string) {
	meta := &c.Block.Metadata
	switch r := note.Decode(text).(type) {
	case note.Decoded:
		meta.Name = r.Design.Name
		if r.Design.Color != "" {
			meta.Color = r.Design.Color
		}
		if r.Design.Description != "" {
			meta.Description = r.Design.Description
		}
		if r.Note != "" {
			meta.Origin.Note = r.Note
		}
		c.Prior = Prior{
			ID:           r.Design.ID,
			Parents:      r.Design.Parents,
			IsAnnotation: r.IsAnnotation(),
		}
	case note.Opaque:
		meta.Origin.Note = r.Text
	}
}
