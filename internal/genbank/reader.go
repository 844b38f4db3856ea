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

// Package genbank reads and writes records in the GenBank flat file format.
package genbank

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/googlegenomics/construct/internal/flatfile"
)

// Column layout of a GenBank record.
const (
	keywordWidth    = 12
	featureKeyStart = 5
	qualifierStart  = 21
	lineWidth       = 79
	qualifierWidth  = lineWidth - qualifierStart
)

// Keys of the header values kept in flatfile.Record.Annotations.
const (
	MoleculeType = "molecule_type"
	Topology     = "topology"
	Division     = "data_file_division"
	Date         = "date"
	Accessions   = "accessions"
	Keywords     = "keywords"
	Source       = "source"
	Organism     = "organism"
	Taxonomy     = "taxonomy"
	Comment      = "comment"
)

var (
	// ErrNoLocus is returned when a record does not start with a LOCUS line.
	ErrNoLocus = errors.New("record does not start with LOCUS")
	// ErrNoRecords is returned when the input holds no records at all.
	ErrNoRecords = errors.New("no GenBank records found")
	// ErrLength is returned when the ORIGIN section does not hold the number
	// of bases given on the LOCUS line.
	ErrLength = errors.New("sequence length does not match LOCUS")
)

// Codec implements flatfile.Parser and flatfile.Writer for GenBank.
type Codec struct{}

var (
	_ flatfile.Parser = Codec{}
	_ flatfile.Writer = Codec{}
)

// Parse implements flatfile.Parser.
func (Codec) Parse(r io.Reader) ([]flatfile.Record, error) {
	return Parse(r)
}

// Write implements flatfile.Writer.
func (Codec) Write(w io.Writer, records []flatfile.Record) error {
	return Write(w, records)
}

// Parse reads every record from r.
func Parse(r io.Reader) ([]flatfile.Record, error) {
	p := &parser{scanner: bufio.NewScanner(r)}
	p.scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var records []flatfile.Record
	for {
		record, err := p.record()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
		records = append(records, *record)
	}
	if err := p.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading GenBank: %v", err)
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

type parser struct {
	scanner *bufio.Scanner
	line    int
	pending *string
}

func (p *parser) next() (string, bool) {
	if p.pending != nil {
		text := *p.pending
		p.pending = nil
		return text, true
	}
	if !p.scanner.Scan() {
		return "", false
	}
	p.line++
	return strings.TrimRight(p.scanner.Text(), " \t\r"), true
}

func (p *parser) unread(text string) {
	p.pending = &text
}

// record reads one record.  It returns io.EOF if only blank lines remain.
func (p *parser) record() (*flatfile.Record, error) {
	var text string
	for {
		var ok bool
		if text, ok = p.next(); !ok {
			return nil, io.EOF
		}
		if strings.TrimSpace(text) != "" {
			break
		}
	}
	if keyword(text) != "LOCUS" {
		return nil, ErrNoLocus
	}

	record := &flatfile.Record{Annotations: make(map[string]string)}
	length := parseLocus(record, value(text))

	var terminated, origin bool
	for {
		text, ok := p.next()
		if !ok {
			break
		}
		if text == "//" {
			terminated = true
			break
		}
		switch keyword(text) {
		case "DEFINITION":
			record.Description = strings.TrimSuffix(p.continued(value(text)), ".")
		case "ACCESSION":
			record.Annotations[Accessions] = p.continued(value(text))
			if fields := strings.Fields(record.Annotations[Accessions]); record.ID == "" && len(fields) > 0 {
				record.ID = fields[0]
			}
		case "VERSION":
			if fields := strings.Fields(value(text)); len(fields) > 0 {
				record.ID = fields[0]
			}
		case "KEYWORDS":
			if keywords := strings.TrimSuffix(p.continued(value(text)), "."); keywords != "" {
				record.Annotations[Keywords] = keywords
			}
		case "SOURCE":
			record.Annotations[Source] = p.continued(value(text))
		case "ORGANISM":
			record.Annotations[Organism] = value(text)
			if taxonomy := strings.TrimSuffix(p.continued(""), "."); taxonomy != "" {
				record.Annotations[Taxonomy] = taxonomy
			}
		case "REFERENCE":
			record.References = append(record.References, flatfile.Reference{Location: p.continued(value(text))})
		case "AUTHORS", "CONSRTM", "TITLE", "JOURNAL", "MEDLINE", "PUBMED", "REMARK":
			if len(record.References) == 0 {
				return nil, fmt.Errorf("%s outside of a reference", keyword(text))
			}
			setReferenceField(&record.References[len(record.References)-1], keyword(text), p.continued(value(text)))
		case "COMMENT":
			record.Annotations[Comment] = p.continuedLines(value(text))
		case "FEATURES":
			if err := p.features(record); err != nil {
				return nil, err
			}
		case "ORIGIN":
			record.Sequence = p.sequence()
			origin = true
		default:
			// Other sections are not kept.
			p.continued("")
		}
	}
	if !terminated {
		return nil, fmt.Errorf("record %s ends before //: %w", record.Name, io.ErrUnexpectedEOF)
	}
	if origin && length >= 0 && len(record.Sequence) != length {
		return nil, fmt.Errorf("record %s: %w: %d bp on LOCUS, %d in ORIGIN",
			record.Name, ErrLength, length, len(record.Sequence))
	}
	return record, nil
}

// keyword returns the keyword of a header line, or "" for continuation lines.
func keyword(text string) string {
	field := text
	if len(field) > keywordWidth {
		field = field[:keywordWidth]
	}
	field = strings.TrimSpace(field)
	if i := strings.IndexByte(field, ' '); i >= 0 {
		field = field[:i]
	}
	// BASE COUNT is the only keyword with a space in it.
	if strings.HasPrefix(text, "BASE COUNT") {
		return "BASE COUNT"
	}
	return field
}

func value(text string) string {
	if len(text) <= keywordWidth {
		return ""
	}
	return strings.TrimSpace(text[keywordWidth:])
}

// isContinuation reports whether text continues the value of the previous
// header line.
func isContinuation(text string) bool {
	return len(text) > keywordWidth && strings.TrimSpace(text[:keywordWidth]) == ""
}

// continued joins first with any continuation lines, separated by spaces.
func (p *parser) continued(first string) string {
	parts := []string{}
	if first != "" {
		parts = append(parts, first)
	}
	for {
		text, ok := p.next()
		if !ok {
			break
		}
		if !isContinuation(text) {
			p.unread(text)
			break
		}
		parts = append(parts, value(text))
	}
	return strings.Join(parts, " ")
}

// continuedLines is like continued but keeps line breaks.
func (p *parser) continuedLines(first string) string {
	lines := []string{first}
	for {
		text, ok := p.next()
		if !ok {
			break
		}
		if !isContinuation(text) {
			p.unread(text)
			break
		}
		lines = append(lines, value(text))
	}
	return strings.Join(lines, "\n")
}

// parseLocus fills the record from a LOCUS line and returns the sequence
// length it gives, or -1 if there is none.
func parseLocus(record *flatfile.Record, text string) int {
	length := -1
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return length
	}
	record.Name = fields[0]
	for i := 1; i < len(fields); i++ {
		field := fields[i]
		switch {
		case field == "bp" || field == "aa":
			if n, err := strconv.Atoi(fields[i-1]); err == nil && i > 1 {
				length = n
			}
			if i+1 < len(fields) {
				record.Annotations[MoleculeType] = fields[i+1]
				i++
			}
		case field == "linear" || field == "circular":
			record.Annotations[Topology] = field
		case len(field) == 3 && strings.ToUpper(field) == field && isLetters(field):
			record.Annotations[Division] = field
		case strings.Count(field, "-") == 2:
			record.Annotations[Date] = field
		}
	}
	return length
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func setReferenceField(ref *flatfile.Reference, key, text string) {
	switch key {
	case "AUTHORS":
		ref.Authors = text
	case "CONSRTM":
		ref.Consortium = text
	case "TITLE":
		ref.Title = text
	case "JOURNAL":
		ref.Journal = text
	case "MEDLINE":
		ref.MedlineID = text
	case "PUBMED":
		ref.PubmedID = text
	case "REMARK":
		ref.Comment = text
	}
}

// features reads the feature table up to the next header keyword.
func (p *parser) features(record *flatfile.Record) error {
	var (
		feature   *flatfile.Feature
		location  string
		qualifier []string
	)
	flush := func() error {
		if feature == nil {
			return nil
		}
		if len(qualifier) > 0 {
			key, value := parseQualifier(qualifier)
			feature.Qualifiers.Add(key, value)
			qualifier = nil
		}
		if location != "" {
			span, strand, err := parseLocation(location)
			if err != nil {
				return fmt.Errorf("feature %s: %v", feature.Type, err)
			}
			feature.Location, feature.Strand = span, strand
			location = ""
		}
		return nil
	}

	for {
		text, ok := p.next()
		if !ok {
			break
		}
		if len(text) > 0 && text[0] != ' ' {
			p.unread(text)
			break
		}
		if len(text) <= qualifierStart {
			continue
		}
		content := text[qualifierStart:]

		switch {
		case strings.TrimSpace(text[:qualifierStart]) != "":
			if feature != nil {
				if err := flush(); err != nil {
					return err
				}
				record.Features = append(record.Features, *feature)
			}
			feature = &flatfile.Feature{Type: strings.TrimSpace(text[:qualifierStart])}
			location = strings.TrimSpace(content)
		case feature == nil:
			return errors.New("qualifier before the first feature key")
		case len(qualifier) > 0 && open(qualifier):
			qualifier = append(qualifier, content)
		case strings.HasPrefix(content, "/"):
			if len(qualifier) > 0 {
				key, value := parseQualifier(qualifier)
				feature.Qualifiers.Add(key, value)
			}
			qualifier = []string{content}
		case len(qualifier) > 0:
			qualifier = append(qualifier, content)
		default:
			location += strings.TrimSpace(content)
		}
	}
	if feature != nil {
		if err := flush(); err != nil {
			return err
		}
		record.Features = append(record.Features, *feature)
	}
	return nil
}

// open reports whether the quoted value started in lines is not closed yet.
func open(lines []string) bool {
	text := strings.Join(lines, "")
	i := strings.Index(text, `="`)
	if i < 0 {
		return false
	}
	rest := strings.ReplaceAll(text[i+2:], `""`, "")
	return !strings.HasSuffix(rest, `"`)
}

// parseQualifier joins the lines of a qualifier and splits it into key and
// value.  Lines that fill the qualifier column were broken inside a word and
// are joined without a space; translations never contain spaces.
func parseQualifier(lines []string) (string, string) {
	var sb strings.Builder
	for i, line := range lines {
		sb.WriteString(line)
		if i+1 < len(lines) && len(line) < qualifierWidth {
			sb.WriteByte(' ')
		}
	}
	text := strings.TrimPrefix(sb.String(), "/")

	key, value, ok := strings.Cut(text, "=")
	if !ok {
		return key, ""
	}
	if strings.HasPrefix(value, `"`) {
		value = strings.TrimPrefix(value, `"`)
		value = strings.TrimSuffix(value, `"`)
		value = strings.ReplaceAll(value, `""`, `"`)
	}
	if key == "translation" {
		value = strings.ReplaceAll(value, " ", "")
	}
	return key, value
}

// sequence reads the ORIGIN section.
func (p *parser) sequence() string {
	var sb strings.Builder
	for {
		text, ok := p.next()
		if !ok {
			break
		}
		if text == "//" {
			p.unread(text)
			break
		}
		for _, r := range text {
			if unicode.IsLetter(r) {
				sb.WriteRune(unicode.ToUpper(r))
			}
		}
	}
	return sb.String()
}
