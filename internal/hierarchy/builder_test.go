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
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/googlegenomics/construct/internal/block"
	"github.com/googlegenomics/construct/internal/flatfile"
	"github.com/googlegenomics/construct/internal/genomics"
	"github.com/googlegenomics/construct/internal/note"
)

const testSequence = "ACGTTGCAAGGCTTACCGATAGCTAGGCATCGATCGGATC"

func sequentialIDs() func() string {
	var (
		mu   sync.Mutex
		next int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("id%d", next)
	}
}

func testOptions() []Option {
	return []Option{
		WithIDs(sequentialIDs()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
}

func feature(featureType string, start, end int, qualifiers ...string) flatfile.Feature {
	f := flatfile.Feature{Type: featureType, Location: genomics.Interval{Start: start, End: end}, Strand: 1}
	for i := 0; i+1 < len(qualifiers); i += 2 {
		f.Qualifiers.Add(qualifiers[i], qualifiers[i+1])
	}
	return f
}

func mustImport(t *testing.T, record flatfile.Record) *Result {
	t.Helper()
	result, err := Import(record, testOptions()...)
	if err != nil {
		t.Fatalf("Import() returned error: %v", err)
	}
	return result
}

// assemble concatenates the leaf sequences below id.
func assemble(blocks map[string]*block.Block, id string) string {
	b := blocks[id]
	if len(b.Components) == 0 {
		return b.Sequence.Literal
	}
	var sb strings.Builder
	for _, child := range b.Components {
		sb.WriteString(assemble(blocks, child))
	}
	return sb.String()
}

func names(blocks map[string]*block.Block, ids []string) []string {
	var out []string
	for _, id := range ids {
		out = append(out, blocks[id].Metadata.Name)
	}
	return out
}

func TestImport_FillsGapBetweenFeatures(t *testing.T) {
	sequence := testSequence[:30]
	result := mustImport(t, flatfile.Record{
		Name:     "example",
		Sequence: sequence,
		Features: []flatfile.Feature{
			feature("promoter", 0, 10),
			feature("CDS", 20, 30, "gene", "lacZ"),
		},
	})

	root := result.Root
	if got, want := len(root.Components), 3; got != want {
		t.Fatalf("Wrong number of root components: got %d, want %d", got, want)
	}
	if got, want := strings.Join(names(result.Blocks, root.Components), ","), "promoter,,lacZ"; got != want {
		t.Errorf("Wrong component names: got %q, want %q", got, want)
	}

	filler := result.Blocks[root.Components[1]]
	if !filler.IsFiller() {
		t.Errorf("Middle component is not a filler: %+v", filler)
	}
	if got, want := filler.Metadata.InitialBases, sequence[10:13]+"..."; got != want {
		t.Errorf("Wrong filler preview: got %q, want %q", got, want)
	}
	for i, id := range root.Components {
		if got, want := result.Blocks[id].Sequence.Length, 10; got != want {
			t.Errorf("Component %d: wrong length: got %d, want %d", i, got, want)
		}
	}
	if got, want := root.Sequence.Length, 0; got != want {
		t.Errorf("Wrong root length: got %d, want %d", got, want)
	}
	if got := assemble(result.Blocks, root.ID); got != sequence {
		t.Errorf("Assembled sequence mismatch: got %q, want %q", got, sequence)
	}
}

func TestImport_NestsContainedFeatures(t *testing.T) {
	result := mustImport(t, flatfile.Record{
		Sequence: testSequence[:30],
		Features: []flatfile.Feature{
			feature("gene", 0, 20, "gene", "outer"),
			feature("CDS", 2, 18, "gene", "inner"),
			feature("promoter", 0, 2),
		},
	})

	root := result.Root
	if got, want := strings.Join(names(result.Blocks, root.Components), ","), "outer,"; got != want {
		t.Fatalf("Wrong root components: got %q, want %q", got, want)
	}
	outer := result.Blocks[root.Components[0]]
	if got, want := strings.Join(names(result.Blocks, outer.Components), ","), "promoter,inner,"; got != want {
		t.Errorf("Wrong gene components: got %q, want %q", got, want)
	}
	if got, want := outer.Sequence.Length, 0; got != want {
		t.Errorf("Structural block keeps a length: got %d, want %d", got, want)
	}
	if got, want := outer.Rules.Role, block.RoleCDS; got != want {
		t.Errorf("Wrong role: got %q, want %q", got, want)
	}
}

func TestImport_FoldsEqualSpans(t *testing.T) {
	t.Run("fewer children folds into richer", func(t *testing.T) {
		result := mustImport(t, flatfile.Record{
			Sequence: testSequence[:30],
			Features: []flatfile.Feature{
				feature("misc_feature", 5, 15, "label", "rich"),
				feature("misc_feature", 5, 15, "label", "bare"),
				feature("misc_feature", 5, 8, "label", "c1"),
				feature("misc_feature", 10, 15, "label", "c2"),
			},
		})

		root := result.Root
		if got, want := strings.Join(names(result.Blocks, root.Components), ","), ",rich,"; got != want {
			t.Fatalf("Wrong root components: got %q, want %q", got, want)
		}
		rich := result.Blocks[root.Components[1]]
		if got, want := strings.Join(names(result.Blocks, rich.Components), ","), "c1,,c2"; got != want {
			t.Errorf("Wrong components: got %q, want %q", got, want)
		}
		if got, want := len(rich.Sequence.Annotations), 1; got != want {
			t.Fatalf("Wrong annotation count: got %d, want %d", got, want)
		}
		a := rich.Sequence.Annotations[0]
		if a.Name != "bare" || a.Start != 0 || a.End != 10 {
			t.Errorf("Wrong annotation: got %+v", a)
		}
	})

	t.Run("tie folds the shorter-sorted block", func(t *testing.T) {
		result := mustImport(t, flatfile.Record{
			Sequence: testSequence[:30],
			Features: []flatfile.Feature{
				feature("misc_feature", 5, 15, "label", "first"),
				feature("misc_feature", 5, 15, "label", "second"),
			},
		})
		root := result.Root
		if got, want := strings.Join(names(result.Blocks, root.Components), ","), ",second,"; got != want {
			t.Fatalf("Wrong root components: got %q, want %q", got, want)
		}
		second := result.Blocks[root.Components[1]]
		if got, want := len(second.Sequence.Annotations), 1; got != want {
			t.Fatalf("Wrong annotation count: got %d, want %d", got, want)
		}
		if got, want := second.Sequence.Annotations[0].Name, "first"; got != want {
			t.Errorf("Wrong annotation: got %q, want %q", got, want)
		}
	})
}

func TestImport_PartialOverlapBecomesAnnotation(t *testing.T) {
	result := mustImport(t, flatfile.Record{
		Sequence: testSequence,
		Features: []flatfile.Feature{
			feature("misc_feature", 12, 16, "label", "inside"),
			feature("misc_feature", 0, 15, "label", "left"),
			feature("misc_feature", 10, 30, "label", "overlapping"),
		},
	})

	root := result.Root
	if got, want := strings.Join(names(result.Blocks, root.Components), ","), "left,"; got != want {
		t.Fatalf("Wrong root components: got %q, want %q", got, want)
	}

	got := map[string][2]int{}
	for _, a := range root.Sequence.Annotations {
		got[a.Name] = [2]int{a.Start, a.End}
	}
	want := map[string][2]int{
		"overlapping": {10, 30},
		"inside":      {12, 16},
	}
	if len(got) != len(want) {
		t.Fatalf("Wrong annotations: got %v, want %v", got, want)
	}
	for name, span := range want {
		if got[name] != span {
			t.Errorf("Annotation %q: got %v, want %v", name, got[name], span)
		}
	}
	for _, b := range result.Blocks {
		if b.Metadata.Name == "overlapping" || b.Metadata.Name == "inside" {
			t.Errorf("Folded block %q still in the tree", b.Metadata.Name)
		}
	}
}

func TestImport_FullLengthFeatureAnnotatesRoot(t *testing.T) {
	result := mustImport(t, flatfile.Record{
		Sequence: testSequence[:20],
		Features: []flatfile.Feature{feature("misc_feature", 0, 20, "label", "everything")},
	})
	root := result.Root
	if got, want := len(root.Components), 0; got != want {
		t.Errorf("Wrong component count: got %d, want %d", got, want)
	}
	if got, want := len(root.Sequence.Annotations), 1; got != want {
		t.Fatalf("Wrong annotation count: got %d, want %d", got, want)
	}
	if a := root.Sequence.Annotations[0]; a.Start != 0 || a.End != 20 || !a.IsForward {
		t.Errorf("Wrong annotation: %+v", a)
	}
	if got, want := root.Sequence.Literal, testSequence[:20]; got != want {
		t.Errorf("Leaf root has wrong literal: got %q, want %q", got, want)
	}
}

func TestImport_ReportsUnplaceableBlocks(t *testing.T) {
	result := mustImport(t, flatfile.Record{
		Sequence: testSequence[:30],
		Features: []flatfile.Feature{
			feature("misc_feature", 0, 10, "label", "ok"),
			feature("misc_feature", 25, 40, "label", "outside"),
		},
	})
	if got, want := len(result.Failures), 1; got != want {
		t.Fatalf("Wrong failure count: got %d, want %d", got, want)
	}
	failure := result.Failures[0]
	if failure.Name != "outside" || failure.Span != (genomics.Interval{Start: 25, End: 40}) {
		t.Errorf("Wrong failure: %v", failure)
	}
	if !strings.Contains(failure.Error(), "outside") {
		t.Errorf("Error message %q does not name the block", failure.Error())
	}
	for _, b := range result.Blocks {
		if b.Metadata.Name == "outside" {
			t.Error("Unplaceable block kept in the tree")
		}
	}
}

func TestImport_RestoresPriorPlacement(t *testing.T) {
	rootNote := note.Encode(note.Payload{Design: note.Design{Name: "design", Kind: note.KindBlock, ID: "old-root"}})
	outerNote := note.Encode(note.Payload{Design: note.Design{Name: "outer", Kind: note.KindBlock, ID: "old-outer", Parents: []string{"old-root"}}})
	innerNote := note.Encode(note.Payload{Design: note.Design{Name: "inner", Kind: note.KindBlock, ID: "old-inner", Parents: []string{"old-outer"}}})
	tagNote := note.Encode(note.Payload{Design: note.Design{Name: "tag", Kind: note.KindAnnotation, Parents: []string{"old-root"}, Color: "#123456"}})

	result := mustImport(t, flatfile.Record{
		Sequence: testSequence[:30],
		Features: []flatfile.Feature{
			feature("source", 0, 30, "note", rootNote, "organism", "synthetic"),
			feature("misc_feature", 0, 20, "note", outerNote),
			feature("misc_feature", 5, 10, "note", innerNote),
			feature("misc_feature", 2, 8, "note", tagNote),
		},
	})

	root := result.Root
	if got, want := root.Metadata.Name, "design"; got != want {
		t.Errorf("Wrong root name: got %q, want %q", got, want)
	}
	if got, want := root.Metadata.Origin.FeatureAnnotations, []block.Qualifier{{Key: "organism", Value: "synthetic"}}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("Wrong source qualifiers: got %v, want %v", got, want)
	}
	if got, want := strings.Join(names(result.Blocks, root.Components), ","), "outer,"; got != want {
		t.Fatalf("Wrong root components: got %q, want %q", got, want)
	}
	outer := result.Blocks[root.Components[0]]
	if got, want := strings.Join(names(result.Blocks, outer.Components), ","), ",inner,"; got != want {
		t.Errorf("Wrong outer components: got %q, want %q", got, want)
	}
	if got, want := len(root.Sequence.Annotations), 1; got != want {
		t.Fatalf("Wrong root annotation count: got %d, want %d", got, want)
	}
	if a := root.Sequence.Annotations[0]; a.Name != "tag" || a.Color != "#123456" || a.Start != 2 || a.End != 8 {
		t.Errorf("Wrong restored annotation: %+v", a)
	}
}

func TestImport_KeepsPlainNotes(t *testing.T) {
	result := mustImport(t, flatfile.Record{
		Sequence: testSequence[:30],
		Features: []flatfile.Feature{
			feature("CDS", 0, 9, "gene", "abc", "note", "just a note", "product", "protein"),
		},
	})
	b := result.Blocks[result.Root.Components[0]]
	if got, want := b.Metadata.Origin.Note, "just a note"; got != want {
		t.Errorf("Wrong note: got %q, want %q", got, want)
	}
	if got, want := b.Metadata.Origin.NameSource, "gene"; got != want {
		t.Errorf("Wrong name source: got %q, want %q", got, want)
	}
	want := []block.Qualifier{{Key: "gene", Value: "abc"}, {Key: "product", Value: "protein"}}
	if got := b.Metadata.Origin.Qualifiers; fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Wrong qualifiers: got %v, want %v", got, want)
	}
}

func TestImport_UnknownTypeIsNamedAfterType(t *testing.T) {
	result := mustImport(t, flatfile.Record{
		Sequence: testSequence[:30],
		Features: []flatfile.Feature{feature("promoter", 0, 9)},
	})
	if got, want := result.Blocks[result.Root.Components[0]].Metadata.Name, "promoter"; got != want {
		t.Errorf("Wrong name: got %q, want %q", got, want)
	}
}

func TestImport_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		record flatfile.Record
	}{
		{"no sequence", flatfile.Record{}},
		{"inverted feature", flatfile.Record{Sequence: "ACGT", Features: []flatfile.Feature{feature("gene", 3, 1)}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Import(tc.record, testOptions()...); err == nil {
				t.Error("Import() succeeded, want error")
			}
		})
	}
}

func TestBuild_DisjointChildrenLeaveNoGaps(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		length := 20 + rng.Intn(80)
		var sb strings.Builder
		for i := 0; i < length; i++ {
			sb.WriteByte("ACGT"[rng.Intn(4)])
		}
		sequence := sb.String()

		var features []flatfile.Feature
		for position := rng.Intn(5); position < length-1; {
			end := position + 1 + rng.Intn(10)
			if end >= length {
				break
			}
			features = append(features, feature("misc_feature", position, end, "label", fmt.Sprintf("f%d", position)))
			position = end + rng.Intn(5)
		}

		result := mustImport(t, flatfile.Record{Sequence: sequence, Features: features})
		if got := assemble(result.Blocks, result.Root.ID); got != sequence {
			t.Fatalf("Trial %d: assembled sequence mismatch:\n got %q\nwant %q", trial, got, sequence)
		}
		if len(result.Failures) > 0 {
			t.Fatalf("Trial %d: unexpected failures: %v", trial, result.Failures)
		}
	}
}

func TestImportRecords(t *testing.T) {
	records := []flatfile.Record{
		{Name: "first", Sequence: testSequence[:10], Features: []flatfile.Feature{feature("misc_feature", 0, 4, "label", "a")}},
		{Name: "second", Description: "last one", Sequence: testSequence[10:30]},
	}
	imported, err := ImportRecords(context.Background(), records, testOptions()...)
	if err != nil {
		t.Fatalf("ImportRecords() returned error: %v", err)
	}

	rollup := imported.Rollup
	if got, want := len(rollup.Project.Components), 2; got != want {
		t.Fatalf("Wrong construct count: got %d, want %d", got, want)
	}
	for i, id := range rollup.Project.Components {
		if got, want := rollup.Blocks[id].Metadata.Name, records[i].Name; got != want {
			t.Errorf("Construct %d: got %q, want %q", i, got, want)
		}
	}
	if got, want := rollup.Project.Metadata.Name, "second"; got != want {
		t.Errorf("Wrong project name: got %q, want %q", got, want)
	}
	if got, want := len(rollup.Sequences), 2; got != want {
		t.Errorf("Wrong envelope count: got %d, want %d", got, want)
	}
	// The second record has no parts and is wrapped.
	wrapper := rollup.Blocks[rollup.Project.Components[1]]
	if got := names(rollup.Blocks, wrapper.Components); len(got) != 1 || got[0] != "second" {
		t.Errorf("Wrong wrapped construct: got %v, want [second]", got)
	}
	if got, want := len(rollup.Blocks), 5; got != want {
		t.Errorf("Wrong block count: got %d, want %d", got, want)
	}

	if _, err := ImportRecords(context.Background(), nil); err != ErrNoRecords {
		t.Errorf("Wrong error for no records: got %v, want %v", err, ErrNoRecords)
	}
}

func TestImportRecords_WrapsChildless(t *testing.T) {
	records := []flatfile.Record{
		{Name: "bare1", Sequence: testSequence[:8]},
		{Name: "parts", Sequence: testSequence[:10], Features: []flatfile.Feature{feature("misc_feature", 0, 4, "label", "a")}},
		{Name: "bare2", Sequence: testSequence[8:16]},
	}
	imported, err := ImportRecords(context.Background(), records, append(testOptions(), WithSourceName("demo.gb"))...)
	if err != nil {
		t.Fatalf("ImportRecords() returned error: %v", err)
	}

	rollup := imported.Rollup
	got := names(rollup.Blocks, rollup.Project.Components)
	want := []string{"parts", "demo.gb", "demo.gb - Construct 2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Wrong constructs: got %v, want %v", got, want)
	}
	for i, wantChild := range []string{"bare1", "bare2"} {
		wrapper := rollup.Blocks[rollup.Project.Components[i+1]]
		if got := names(rollup.Blocks, wrapper.Components); len(got) != 1 || got[0] != wantChild {
			t.Errorf("Wrapper %q: got components %v, want [%s]", wrapper.Metadata.Name, got, wantChild)
		}
		if got, want := assemble(rollup.Blocks, wrapper.ID), records[2*i].Sequence; got != want {
			t.Errorf("Wrapper %q: got sequence %q, want %q", wrapper.Metadata.Name, got, want)
		}
	}
}
