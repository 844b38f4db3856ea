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
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/googlegenomics/construct/internal/flatfile"
)

const (
	defaultMoleculeType = "DNA"
	defaultTopology     = "linear"
	defaultDivision     = "SYN"
	defaultDate         = "01-JAN-1980"

	basesPerGroup = 10
	basesPerLine  = 60
)

// unquoted lists the qualifiers whose values are written without quotes.
var unquoted = map[string]bool{
	"anticodon":        true,
	"citation":         true,
	"codon_start":      true,
	"compare":          true,
	"direction":        true,
	"estimated_length": true,
	"mod_base":         true,
	"number":           true,
	"rpt_type":         true,
	"rpt_unit_range":   true,
	"tag_peptide":      true,
	"transl_except":    true,
	"transl_table":     true,
}

// Write writes records to w, in order.
func Write(w io.Writer, records []flatfile.Record) error {
	bw := bufio.NewWriter(w)
	for i := range records {
		writeRecord(bw, &records[i])
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing GenBank: %v", err)
	}
	return nil
}

func writeRecord(w *bufio.Writer, record *flatfile.Record) {
	annotation := func(key, fallback string) string {
		if v := record.Annotations[key]; v != "" {
			return v
		}
		return fallback
	}

	name := strings.Join(strings.Fields(record.Name), "_")
	if name == "" {
		name = "unnamed"
	}
	fmt.Fprintf(w, "LOCUS       %-16s %11d bp    %-7s %-8s %s %s\n",
		name, len(record.Sequence),
		annotation(MoleculeType, defaultMoleculeType),
		annotation(Topology, defaultTopology),
		annotation(Division, defaultDivision),
		annotation(Date, defaultDate))

	description := record.Description
	if !strings.HasSuffix(description, ".") {
		description += "."
	}
	writeHeader(w, "DEFINITION", description)

	accession := annotation(Accessions, "")
	if accession == "" {
		accession, _, _ = strings.Cut(record.ID, ".")
	}
	writeHeader(w, "ACCESSION", accession)
	writeHeader(w, "VERSION", record.ID)
	keywords := annotation(Keywords, "")
	writeHeader(w, "KEYWORDS", keywords+".")
	if source := annotation(Source, ""); source != "" {
		writeHeader(w, "SOURCE", source)
	}
	if organism := annotation(Organism, ""); organism != "" {
		writeHeader(w, "  ORGANISM", organism)
		if taxonomy := annotation(Taxonomy, ""); taxonomy != "" {
			writeHeader(w, "", taxonomy+".")
		}
	}

	for _, ref := range record.References {
		writeHeader(w, "REFERENCE", ref.Location)
		for _, field := range []struct{ key, value string }{
			{"  AUTHORS", ref.Authors},
			{"  CONSRTM", ref.Consortium},
			{"  TITLE", ref.Title},
			{"  JOURNAL", ref.Journal},
			{"   PUBMED", ref.PubmedID},
			{"  MEDLINE", ref.MedlineID},
			{"  REMARK", ref.Comment},
		} {
			if field.value != "" {
				writeHeader(w, field.key, field.value)
			}
		}
	}

	if comment := annotation(Comment, ""); comment != "" {
		for i, line := range strings.Split(comment, "\n") {
			key := ""
			if i == 0 {
				key = "COMMENT"
			}
			fmt.Fprintf(w, "%-*s%s\n", keywordWidth, key, line)
		}
	}

	fmt.Fprintf(w, "%-*sLocation/Qualifiers\n", qualifierStart, "FEATURES")
	for _, f := range record.Features {
		writeFeature(w, f)
	}

	w.WriteString("ORIGIN\n")
	sequence := strings.ToLower(record.Sequence)
	for start := 0; start < len(sequence); start += basesPerLine {
		fmt.Fprintf(w, "%9d", start+1)
		for group := start; group < start+basesPerLine && group < len(sequence); group += basesPerGroup {
			end := group + basesPerGroup
			if end > len(sequence) {
				end = len(sequence)
			}
			w.WriteString(" " + sequence[group:end])
		}
		w.WriteString("\n")
	}
	w.WriteString("//\n")
}

// writeHeader writes a header value word-wrapped below its keyword.
func writeHeader(w *bufio.Writer, key, text string) {
	lines := wrapWords(text, lineWidth-keywordWidth)
	if len(lines) == 0 {
		lines = []string{""}
	}
	for i, line := range lines {
		if i > 0 {
			key = ""
		}
		fmt.Fprintf(w, "%s\n", strings.TrimRight(fmt.Sprintf("%-*s%s", keywordWidth, key, line), " "))
	}
}

func wrapWords(text string, width int) []string {
	var (
		lines []string
		line  string
	)
	for _, word := range strings.Fields(text) {
		switch {
		case line == "":
			line = word
		case len(line)+1+len(word) > width:
			lines = append(lines, line)
			line = word
		default:
			line += " " + word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

func writeFeature(w *bufio.Writer, f flatfile.Feature) {
	fmt.Fprintf(w, "%*s%-*s%s\n", featureKeyStart, "", qualifierStart-featureKeyStart, f.Type, formatLocation(f.Location, f.Strand))
	for _, key := range f.Qualifiers.Keys() {
		for _, value := range f.Qualifiers.Get(key) {
			for _, line := range wrapQualifier(formatQualifier(key, value)) {
				fmt.Fprintf(w, "%*s%s\n", qualifierStart, "", line)
			}
		}
	}
}

func formatQualifier(key, value string) string {
	switch {
	case value == "":
		return "/" + key
	case unquoted[key]:
		return "/" + key + "=" + value
	}
	return "/" + key + `="` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// wrapQualifier splits text into lines that fit the qualifier column.  Lines
// are broken at a space, which is dropped, and are then always shorter than
// the column.  Text without a usable space is cut at exactly the column
// width, which tells the reader to join it back without a space.
func wrapQualifier(text string) []string {
	var lines []string
	for len(text) > qualifierWidth {
		cut := strings.LastIndexByte(text[:qualifierWidth], ' ')
		if cut <= 0 {
			lines = append(lines, text[:qualifierWidth])
			text = text[qualifierWidth:]
			continue
		}
		lines = append(lines, text[:cut])
		text = text[cut+1:]
	}
	return append(lines, text)
}
