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

// Package flatten turns a design tree back into a flat list of located
// features.
package flatten

import (
	"errors"
	"fmt"
	"strings"

	"github.com/googlegenomics/construct/internal/block"
	"github.com/googlegenomics/construct/internal/flatfile"
	"github.com/googlegenomics/construct/internal/genomics"
	"github.com/googlegenomics/construct/internal/note"
	"github.com/googlegenomics/construct/internal/variant"
)

const (
	defaultType     = "misc_feature"
	defaultRecordID = "GC_DNA"
	recordNameRunes = 5

	noteQualifier        = "note"
	nameQualifier        = "name"
	descriptionQualifier = "description"
)

var (
	// ErrUnknownBlock is returned when a component or option refers to a block
	// that does not exist.
	ErrUnknownBlock = errors.New("unknown block")
	// ErrCycle is returned when a block is its own descendant.
	ErrCycle = errors.New("block contains itself")
)

// Flattener flattens the constructs of a set of blocks.  The blocks are only
// read, so a Flattener may be used from several goroutines at once.
type Flattener struct {
	blocks  map[string]*block.Block
	parents map[string][]string
}

// New returns a Flattener over blocks.
func New(blocks map[string]*block.Block) *Flattener {
	return &Flattener{blocks: blocks, parents: block.Parents(blocks)}
}

// Flatten returns the record of the construct rootID with the options in sel
// substituted for their holders.
//
// The record starts with a source feature for the whole construct, followed by
// the root's annotations and then, depth first, the annotations, descendants
// and own feature of every non-filler block.
func (f *Flattener) Flatten(rootID string, sel variant.Selection) (flatfile.Record, error) {
	root, ok := f.blocks[rootID]
	if !ok {
		return flatfile.Record{}, fmt.Errorf("construct %q: %w", rootID, ErrUnknownBlock)
	}
	r := &run{Flattener: f, sel: sel, visiting: make(map[string]bool)}

	sequence, err := r.sequence(rootID)
	if err != nil {
		return flatfile.Record{}, err
	}
	content, err := r.resolve(root)
	if err != nil {
		return flatfile.Record{}, err
	}

	origin := root.Metadata.Origin
	record := flatfile.Record{
		Name:        recordName(root),
		ID:          recordID(root),
		Description: root.Metadata.Description,
		Sequence:    sequence,
		Annotations: origin.Annotations,
		References:  origin.References,
	}

	source := flatfile.Feature{
		Type:     flatfile.SourceType,
		Location: genomics.Interval{Start: 0, End: len(sequence)},
		Strand:   1,
	}
	source.Qualifiers.Set(noteQualifier, f.blockNote(root))
	for _, q := range origin.FeatureAnnotations {
		source.Qualifiers.Set(q.Key, q.Value)
	}
	r.features = append(r.features, source)

	r.annotations(content, 0)
	cursor := 0
	for _, id := range content.Components {
		if cursor, err = r.add(id, cursor); err != nil {
			return flatfile.Record{}, err
		}
	}
	record.Features = r.features
	return record, nil
}

// Sequence returns the bases of the construct rootID with the options in sel
// substituted for their holders.
func (f *Flattener) Sequence(rootID string, sel variant.Selection) (string, error) {
	r := &run{Flattener: f, sel: sel, visiting: make(map[string]bool)}
	return r.sequence(rootID)
}

// run is the state of a single Flatten call.
type run struct {
	*Flattener
	sel      variant.Selection
	visiting map[string]bool
	features []flatfile.Feature
}

func (r *run) lookup(id string) (*block.Block, error) {
	b, ok := r.blocks[id]
	if !ok {
		return nil, fmt.Errorf("block %q: %w", id, ErrUnknownBlock)
	}
	return b, nil
}

// resolve returns the block standing in for b: the selected option of a
// variant holder, or b itself.  A holder missing from the selection falls back
// to its stored current option.
func (r *run) resolve(b *block.Block) (*block.Block, error) {
	seen := map[string]bool{b.ID: true}
	for b.Kind() == block.Variant {
		option, ok := r.sel.Option(b.ID)
		if !ok {
			option = b.CurrentOption
		}
		if option == "" {
			return b, nil
		}
		if seen[option] || r.visiting[option] {
			return nil, fmt.Errorf("option %q of %q: %w", option, b.ID, ErrCycle)
		}
		next, err := r.lookup(option)
		if err != nil {
			return nil, fmt.Errorf("option of %q: %w", b.ID, err)
		}
		seen[option] = true
		b = next
	}
	return b, nil
}

func (r *run) enter(id string) error {
	if r.visiting[id] {
		return fmt.Errorf("block %q: %w", id, ErrCycle)
	}
	r.visiting[id] = true
	return nil
}

func (r *run) sequence(id string) (string, error) {
	b, err := r.lookup(id)
	if err != nil {
		return "", err
	}
	if b, err = r.resolve(b); err != nil {
		return "", err
	}
	if err := r.enter(b.ID); err != nil {
		return "", err
	}
	defer delete(r.visiting, b.ID)

	if len(b.Components) == 0 {
		return b.Sequence.Literal, nil
	}
	var sb strings.Builder
	for _, child := range b.Components {
		s, err := r.sequence(child)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// add emits the features of block id placed at start and returns the
// position just past it.
func (r *run) add(id string, start int) (int, error) {
	b, err := r.lookup(id)
	if err != nil {
		return 0, err
	}
	if b.IsFiller() {
		return start + length(b), nil
	}
	if b, err = r.resolve(b); err != nil {
		return 0, err
	}
	if err := r.enter(b.ID); err != nil {
		return 0, err
	}
	defer delete(r.visiting, b.ID)

	feature := flatfile.Feature{Type: featureType(b), Strand: b.Metadata.Strand}
	if feature.Strand == 0 {
		feature.Strand = 1
	}
	origin := b.Metadata.Origin
	for _, q := range origin.Qualifiers {
		if q.Key == noteQualifier {
			continue
		}
		feature.Qualifiers.Set(q.Key, q.Value)
	}
	if name := b.Metadata.Name; name != "" {
		if key := nameKey(b, feature.Type); key != "" {
			feature.Qualifiers.Set(key, name)
		}
	}
	feature.Qualifiers.Set(noteQualifier, r.blockNote(b))

	r.annotations(b, start)

	end := start
	for _, child := range b.Components {
		if end, err = r.add(child, end); err != nil {
			return 0, err
		}
	}
	if len(b.Components) == 0 {
		end = start + length(b)
	}

	feature.Location = genomics.Interval{Start: start, End: end}
	r.features = append(r.features, feature)
	return end, nil
}

// annotations emits the annotations of b, which starts at start.  The end of
// every annotation is emitted one base past its stored end.
func (r *run) annotations(b *block.Block, start int) {
	for _, a := range b.Sequence.Annotations {
		feature := flatfile.Feature{
			Type:     defaultType,
			Location: genomics.Interval{Start: start + a.Start, End: start + a.End + 1},
			Strand:   1,
		}
		if a.Role != "" {
			feature.Type = string(a.Role)
		}
		if a.Origin.Type != "" {
			feature.Type = a.Origin.Type
		}
		if !a.IsForward {
			feature.Strand = -1
		}

		// The current name and description replace the imported ones.
		for _, q := range a.Origin.Qualifiers {
			if q.Key == noteQualifier {
				continue
			}
			feature.Qualifiers.Set(q.Key, q.Value)
		}
		feature.Qualifiers.Set(nameQualifier, a.Name)
		if a.Description != "" {
			feature.Qualifiers.Set(descriptionQualifier, a.Description)
		}
		feature.Qualifiers.Set(noteQualifier, note.Encode(note.Payload{
			Design: note.Design{
				Name:    a.Name,
				Kind:    note.KindAnnotation,
				Parents: []string{b.ID},
				Color:   a.Color,
			},
			Note: a.Origin.Note,
		}))
		r.features = append(r.features, feature)
	}
}

func (f *Flattener) blockNote(b *block.Block) string {
	return note.Encode(note.Payload{
		Design: note.Design{
			Name:        b.Metadata.Name,
			Kind:        note.KindBlock,
			ID:          b.ID,
			Parents:     f.parents[b.ID],
			Color:       b.Metadata.Color,
			Description: b.Metadata.Description,
		},
		Note: b.Metadata.Origin.Note,
	})
}

func featureType(b *block.Block) string {
	switch {
	case b.Metadata.Origin.Type != "":
		return b.Metadata.Origin.Type
	case b.Rules.Role != "":
		return string(b.Rules.Role)
	}
	return defaultType
}

// nameKey returns the qualifier the name of b is written to, or "" if the
// name cannot be represented.
func nameKey(b *block.Block, featureType string) string {
	if key := b.Metadata.Origin.NameSource; key != "" {
		return key
	}
	if keys, ok := block.NameQualifiers(featureType); ok && len(keys) > 0 {
		return keys[0]
	}
	return ""
}

func length(b *block.Block) int {
	if b.Sequence.Length == 0 {
		return len(b.Sequence.Literal)
	}
	return b.Sequence.Length
}

func recordID(root *block.Block) string {
	switch origin := root.Metadata.Origin; {
	case origin.ID != "":
		return origin.ID
	case origin.Name != "":
		return origin.Name
	}
	return defaultRecordID
}

func recordName(root *block.Block) string {
	if name := root.Metadata.Origin.Name; name != "" {
		return name
	}
	name := []rune(strings.ReplaceAll(root.Metadata.Name, " ", ""))
	if len(name) > recordNameRunes {
		name = name[:recordNameRunes]
	}
	if len(name) == 0 {
		return defaultRecordID
	}
	return string(name)
}
