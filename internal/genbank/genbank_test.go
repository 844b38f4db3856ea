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
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/googlegenomics/construct/internal/flatfile"
	"github.com/googlegenomics/construct/internal/genomics"
)

const sample = `LOCUS       pTEST                     70 bp    DNA     circular SYN 15-OCT-2026
DEFINITION  Test plasmid with a promoter and a coding
            sequence.
ACCESSION   TST001
VERSION     TST001.2
KEYWORDS    synthetic; test.
SOURCE      synthetic construct
  ORGANISM  synthetic construct
            other sequences; artificial sequences.
REFERENCE   1  (bases 1 to 70)
  AUTHORS   Doe,J. and Roe,R.
  TITLE     Direct Submission
  JOURNAL   Submitted (01-JAN-2026) Nowhere
COMMENT     First line.
            Second line.
FEATURES             Location/Qualifiers
     source          1..70
                     /organism="synthetic construct"
                     /mol_type="other DNA"
     promoter        <1..10
                     /note="a ""quoted"" word"
     CDS             complement(join(21..30,41..>55))
                     /gene="abc"
                     /codon_start=1
                     /translation="MKVLAAGIVGLLLAIVALLPQAKAEEKTEAPKSEAEKKAEAEGK
                     QMLL"
                     /pseudo
     misc_feature    60^61
                     /note="between bases"
ORIGIN
        1 acgtacgtac gtacgtacgt acgtacgtac gtacgtacgt acgtacgtac gtacgtacgt
       61 acgtacgtac
//
`

func TestParse(t *testing.T) {
	records, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}
	if got, want := len(records), 1; got != want {
		t.Fatalf("Wrong number of records: got %d, want %d", got, want)
	}
	record := records[0]

	if got, want := record.Name, "pTEST"; got != want {
		t.Errorf("Wrong name: got %q, want %q", got, want)
	}
	if got, want := record.ID, "TST001.2"; got != want {
		t.Errorf("Wrong id: got %q, want %q", got, want)
	}
	if got, want := record.Description, "Test plasmid with a promoter and a coding sequence"; got != want {
		t.Errorf("Wrong description: got %q, want %q", got, want)
	}
	if got, want := record.Sequence, strings.Repeat("ACGT", 17)+"AC"; got != want {
		t.Errorf("Wrong sequence: got %q, want %q", got, want)
	}

	wantAnnotations := map[string]string{
		MoleculeType: "DNA",
		Topology:     "circular",
		Division:     "SYN",
		Date:         "15-OCT-2026",
		Accessions:   "TST001",
		Keywords:     "synthetic; test",
		Source:       "synthetic construct",
		Organism:     "synthetic construct",
		Taxonomy:     "other sequences; artificial sequences",
		Comment:      "First line.\nSecond line.",
	}
	if !reflect.DeepEqual(record.Annotations, wantAnnotations) {
		t.Errorf("Wrong annotations:\n got %v\nwant %v", record.Annotations, wantAnnotations)
	}

	wantRefs := []flatfile.Reference{{
		Location: "1  (bases 1 to 70)",
		Authors:  "Doe,J. and Roe,R.",
		Title:    "Direct Submission",
		Journal:  "Submitted (01-JAN-2026) Nowhere",
	}}
	if !reflect.DeepEqual(record.References, wantRefs) {
		t.Errorf("Wrong references:\n got %+v\nwant %+v", record.References, wantRefs)
	}

	type summary struct {
		Type     string
		Location genomics.Interval
		Strand   int
	}
	var got []summary
	for _, f := range record.Features {
		got = append(got, summary{f.Type, f.Location, f.Strand})
	}
	want := []summary{
		{"source", genomics.Interval{Start: 0, End: 70}, 1},
		{"promoter", genomics.Interval{Start: 0, End: 10}, 1},
		{"CDS", genomics.Interval{Start: 20, End: 55}, -1},
		{"misc_feature", genomics.Interval{Start: 60, End: 60}, 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong features:\n got %v\nwant %v", got, want)
	}

	promoter := record.Features[1]
	if note, _ := promoter.Qualifiers.First("note"); note != `a "quoted" word` {
		t.Errorf("Wrong note: got %q", note)
	}
	cds := record.Features[2]
	qualifiers := map[string]string{}
	for _, key := range cds.Qualifiers.Keys() {
		qualifiers[key], _ = cds.Qualifiers.First(key)
	}
	wantQualifiers := map[string]string{
		"gene":        "abc",
		"codon_start": "1",
		"translation": "MKVLAAGIVGLLLAIVALLPQAKAEEKTEAPKSEAEKKAEAEGKQMLL",
		"pseudo":      "",
	}
	if !reflect.DeepEqual(qualifiers, wantQualifiers) {
		t.Errorf("Wrong CDS qualifiers:\n got %v\nwant %v", qualifiers, wantQualifiers)
	}
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name, input string
		want        error
	}{
		{"empty", "\n\n", ErrNoRecords},
		{"no locus", "DEFINITION  nothing.\n//\n", ErrNoLocus},
		{"cut in origin", sample[:strings.Index(sample, "       61")], io.ErrUnexpectedEOF},
		{"cut in features", sample[:strings.Index(sample, "     CDS")], io.ErrUnexpectedEOF},
		{"no terminator", strings.TrimSuffix(sample, "//\n"), io.ErrUnexpectedEOF},
		{"short origin", "LOCUS       x 8 bp DNA\nORIGIN\n        1 acgt\n//\n", ErrLength},
		{"long origin", "LOCUS       x 2 bp DNA\nORIGIN\n        1 acgt\n//\n", ErrLength},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tc.input)); !errors.Is(err, tc.want) {
				t.Errorf("Wrong error: got %v, want %v", err, tc.want)
			}
		})
	}

	bad := "LOCUS       x 4 bp DNA\nFEATURES             Location/Qualifiers\n     gene            4..1\nORIGIN\n        1 acgt\n//\n"
	if _, err := Parse(strings.NewReader(bad)); err == nil {
		t.Error("Parse() accepted an inverted location")
	}
}

func TestParseLocation(t *testing.T) {
	testCases := []struct {
		text       string
		want       genomics.Interval
		wantStrand int
	}{
		{"1..10", genomics.Interval{Start: 0, End: 10}, 1},
		{"5", genomics.Interval{Start: 4, End: 5}, 1},
		{"<1..>10", genomics.Interval{Start: 0, End: 10}, 1},
		{"complement(3..9)", genomics.Interval{Start: 2, End: 9}, -1},
		{"join(1..5,20..30)", genomics.Interval{Start: 0, End: 30}, 1},
		{"order(20..30,1..5)", genomics.Interval{Start: 0, End: 30}, 1},
		{"join(complement(20..30),complement(1..5))", genomics.Interval{Start: 0, End: 30}, -1},
		{"J00194.1:100..202", genomics.Interval{Start: 99, End: 202}, 1},
		{"0^1", genomics.Interval{Start: 0, End: 0}, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			got, strand, err := parseLocation(tc.text)
			if err != nil {
				t.Fatalf("parseLocation(%q) returned error: %v", tc.text, err)
			}
			if got != tc.want || strand != tc.wantStrand {
				t.Errorf("parseLocation(%q) = %v, %d; want %v, %d", tc.text, got, strand, tc.want, tc.wantStrand)
			}
		})
	}

	for _, text := range []string{"", "a..b", "0..5", "10..2"} {
		if _, _, err := parseLocation(text); err == nil {
			t.Errorf("parseLocation(%q) succeeded, want error", text)
		}
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	long := "{'GC':{'name':'a block with a long name','type':'block','id':'0123456789abcdef0123456789abcdef','parents':['fedcba9876543210fedcba9876543210']}}"

	source := flatfile.Feature{Type: "source", Location: genomics.Interval{Start: 0, End: 30}, Strand: 1}
	source.Qualifiers.Add("organism", "synthetic construct")
	cds := flatfile.Feature{Type: "CDS", Location: genomics.Interval{Start: 20, End: 30}, Strand: -1}
	cds.Qualifiers.Add("gene", "lacZ")
	cds.Qualifiers.Add("note", long)
	cds.Qualifiers.Add("note", strings.Repeat("x", 150))
	cds.Qualifiers.Add("codon_start", "1")
	single := flatfile.Feature{Type: "misc_feature", Location: genomics.Interval{Start: 4, End: 5}, Strand: 1}
	single.Qualifiers.Add("label", `say "hi"`)

	records := []flatfile.Record{
		{
			Name:        "first",
			ID:          "ACC1.1",
			Description: "A record",
			Sequence:    strings.Repeat("ACGTTGCAAG", 3),
			Features:    []flatfile.Feature{source, cds, single},
			Annotations: map[string]string{Topology: "circular", Organism: "synthetic construct", Taxonomy: "other sequences"},
			References:  []flatfile.Reference{{Location: "1", Authors: "Doe,J.", Title: "Designs", PubmedID: "42"}},
		},
		{Name: "second", ID: "second", Sequence: strings.Repeat("T", 125)},
	}

	var buf bytes.Buffer
	if err := Write(&buf, records); err != nil {
		t.Fatalf("Write() returned error: %v", err)
	}
	for i, line := range strings.Split(buf.String(), "\n") {
		if len(line) > lineWidth+1 {
			t.Errorf("Line %d is %d characters long: %q", i+1, len(line), line)
		}
	}

	got, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse() of written records returned error: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("Wrong number of records: got %d, want %d", len(got), len(records))
	}

	first := got[0]
	if first.Name != "first" || first.ID != "ACC1.1" || first.Description != "A record" {
		t.Errorf("Wrong record header: %q %q %q", first.Name, first.ID, first.Description)
	}
	if first.Sequence != records[0].Sequence {
		t.Errorf("Wrong sequence: got %q, want %q", first.Sequence, records[0].Sequence)
	}
	if !reflect.DeepEqual(first.References, records[0].References) {
		t.Errorf("Wrong references: got %+v, want %+v", first.References, records[0].References)
	}
	if got, want := first.Annotations[Taxonomy], "other sequences"; got != want {
		t.Errorf("Wrong taxonomy: got %q, want %q", got, want)
	}
	if len(first.Features) != 3 {
		t.Fatalf("Wrong number of features: got %d, want 3", len(first.Features))
	}
	for i, f := range first.Features {
		want := records[0].Features[i]
		if f.Type != want.Type || f.Location != want.Location || f.Strand != want.Strand {
			t.Errorf("Feature %d: got %s %v %d, want %s %v %d", i, f.Type, f.Location, f.Strand, want.Type, want.Location, want.Strand)
		}
		for _, key := range want.Qualifiers.Keys() {
			if got, want := f.Qualifiers.Get(key), want.Qualifiers.Get(key); !reflect.DeepEqual(got, want) {
				t.Errorf("Feature %d qualifier %s: got %q, want %q", i, key, got, want)
			}
		}
	}
	if got[1].Sequence != records[1].Sequence {
		t.Errorf("Wrong second sequence: got %d bases, want %d", len(got[1].Sequence), len(records[1].Sequence))
	}
}

func TestWrite_KeepsQualifierOrder(t *testing.T) {
	f := flatfile.Feature{Type: "misc_feature", Location: genomics.Interval{Start: 0, End: 8}, Strand: 1}
	keys := []string{"name", "label", "gene", "note", "description", "codon_start"}
	for _, key := range keys {
		f.Qualifiers.Add(key, "v")
	}
	records := []flatfile.Record{{Name: "order", ID: "order", Sequence: "ACGTACGT", Features: []flatfile.Feature{f}}}

	var buf bytes.Buffer
	if err := Write(&buf, records); err != nil {
		t.Fatalf("Write() returned error: %v", err)
	}
	got, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}
	if got, want := got[0].Features[0].Qualifiers.Keys(), keys; !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong qualifier order: got %v, want %v", got, want)
	}
}

func TestWrapQualifier(t *testing.T) {
	testCases := []string{
		`/note="short"`,
		`/note="` + strings.Repeat("word ", 30) + `"`,
		`/note="` + strings.Repeat("a", 200) + `"`,
		`/note="` + strings.Repeat("abc def", 20) + strings.Repeat("z", 90) + `"`,
	}
	for _, text := range testCases {
		lines := wrapQualifier(text)
		for _, line := range lines {
			if len(line) > qualifierWidth {
				t.Errorf("Line too long (%d): %q", len(line), line)
			}
		}
		key, value := parseQualifier(lines)
		if want := strings.TrimSuffix(strings.TrimPrefix(text, `/note="`), `"`); key != "note" || value != strings.TrimRight(want, " ") && value != want {
			t.Errorf("Round trip of %q: got %s=%q", text, key, value)
		}
	}
}
