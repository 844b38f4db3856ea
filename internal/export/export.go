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

// Package export writes projects and constructs as flat files.
//
// A project without any variant blocks is written as a single file holding
// one record per construct.  Otherwise every combination of every construct
// is written to its own file and the files are packed in a zip archive.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/googlegenomics/construct/internal/block"
	"github.com/googlegenomics/construct/internal/flatfile"
	"github.com/googlegenomics/construct/internal/flatten"
	"github.com/googlegenomics/construct/internal/genbank"
	"github.com/googlegenomics/construct/internal/variant"
	"golang.org/x/sync/errgroup"
)

// UntitledProject names projects that have no name.
const UntitledProject = "Untitled Project"

// ErrNoBlocks is returned when a block export lists no blocks.
var ErrNoBlocks = errors.New("no blocks to export")

// Format is the kind of file produced by an export.
type Format int

const (
	// GenBank is a flat file with one or more records.
	GenBank Format = iota
	// Zip is an archive of GenBank files.
	Zip
)

// Extension returns the file name extension for f, including the dot.
func (f Format) Extension() string {
	if f == Zip {
		return ".zip"
	}
	return ".gb"
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == Zip {
		return "application/zip"
	}
	return "text/plain; charset=utf-8"
}

// File is the output of an export.
type File struct {
	Name   string
	Format Format
	Data   []byte
}

// Exporter converts rollups to files.  It is safe for concurrent use.
type Exporter struct {
	writer      flatfile.Writer
	parallelism int
	log         *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithWriter sets the flat file writer.  The default writes GenBank.
func WithWriter(w flatfile.Writer) Option {
	return func(e *Exporter) { e.writer = w }
}

// WithParallelism limits the number of combinations flattened at once.
// Values below one mean one per CPU.
func WithParallelism(n int) Option {
	return func(e *Exporter) { e.parallelism = n }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Exporter) { e.log = log }
}

// New returns an Exporter.
func New(opts ...Option) *Exporter {
	e := &Exporter{writer: genbank.Codec{}, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.parallelism < 1 {
		e.parallelism = runtime.GOMAXPROCS(0)
	}
	return e
}

// job is one combination of one construct.
type job struct {
	construct string
	selection variant.Selection
	name      string
}

// Project exports every construct of r.
func (e *Exporter) Project(ctx context.Context, r *block.Rollup) (*File, error) {
	name := projectName(r)
	if !hasVariants(r.Blocks) {
		f := flatten.New(r.Blocks)
		records := make([]flatfile.Record, 0, len(r.Project.Components))
		for _, id := range r.Project.Components {
			record, err := f.Flatten(id, variant.Selection{})
			if err != nil {
				return nil, fmt.Errorf("flattening construct %s: %v", id, err)
			}
			records = append(records, record)
		}
		return e.single(name, records)
	}
	return e.archive(ctx, r, name, r.Project.Components)
}

// Construct exports the construct id of r.  A construct with variant blocks
// is exported as an archive of its combinations.
func (e *Exporter) Construct(ctx context.Context, r *block.Rollup, id string) (*File, error) {
	construct, ok := r.Blocks[id]
	if !ok {
		return nil, fmt.Errorf("construct %q: %w", id, flatten.ErrUnknownBlock)
	}
	if len(variant.Holders(r.Blocks, id)) > 0 {
		return e.archive(ctx, r, projectName(r)+" - "+construct.Metadata.Name, []string{id})
	}
	record, err := flatten.New(r.Blocks).Flatten(id, variant.Selection{})
	if err != nil {
		return nil, fmt.Errorf("flattening construct %s: %v", id, err)
	}
	return e.single(fileName(construct.Metadata.Name, "construct"), []flatfile.Record{record})
}

// Blocks exports the blocks ids of r as the parts of one construct named
// after the project.  The construct exists only in the export.
func (e *Exporter) Blocks(ctx context.Context, r *block.Rollup, ids []string) (*File, error) {
	if len(ids) == 0 {
		return nil, ErrNoBlocks
	}
	for _, id := range ids {
		if _, ok := r.Blocks[id]; !ok {
			return nil, fmt.Errorf("block %q: %w", id, flatten.ErrUnknownBlock)
		}
	}
	name := r.Project.Metadata.Name
	if name == "" {
		name = r.Project.ID
	}
	wrapper := &block.Block{
		ID:         uuid.NewString(),
		Metadata:   block.Metadata{Name: name},
		Components: append([]string(nil), ids...),
	}
	blocks := make(map[string]*block.Block, len(r.Blocks)+1)
	for id, b := range r.Blocks {
		blocks[id] = b
	}
	blocks[wrapper.ID] = wrapper
	view := &block.Rollup{
		Project:   r.Project,
		Blocks:    blocks,
		Sequences: r.Sequences,
	}
	if len(variant.Holders(blocks, wrapper.ID)) > 0 {
		return e.archive(ctx, view, name, []string{wrapper.ID})
	}
	record, err := flatten.New(blocks).Flatten(wrapper.ID, variant.Selection{})
	if err != nil {
		return nil, fmt.Errorf("flattening blocks: %v", err)
	}
	return e.single(fileName(name, "blocks"), []flatfile.Record{record})
}

func (e *Exporter) single(name string, records []flatfile.Record) (*File, error) {
	var buf bytes.Buffer
	if err := e.writer.Write(&buf, records); err != nil {
		return nil, err
	}
	return &File{Name: name + GenBank.Extension(), Format: GenBank, Data: buf.Bytes()}, nil
}

// archive writes every combination of constructs to its own entry.  Entries
// are numbered from one across all constructs.
func (e *Exporter) archive(ctx context.Context, r *block.Rollup, name string, constructs []string) (*File, error) {
	project := projectName(r)
	var jobs []job
	for _, id := range constructs {
		construct, ok := r.Blocks[id]
		if !ok {
			return nil, fmt.Errorf("construct %q: %w", id, flatten.ErrUnknownBlock)
		}
		err := variant.Enumerate(ctx, r.Blocks, id, func(_ int, s variant.Selection) error {
			jobs = append(jobs, job{
				construct: id,
				selection: s,
				name:      fileName(fmt.Sprintf("%s - %s - %d", project, construct.Metadata.Name, len(jobs)+1), "construct") + GenBank.Extension(),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	e.log.Info("Exporting combinations", "name", name, "files", len(jobs))

	f := flatten.New(r.Blocks)
	outputs := make([][]byte, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			record, err := f.Flatten(j.construct, j.selection)
			if err != nil {
				return fmt.Errorf("flattening %s: %v", j.name, err)
			}
			var buf bytes.Buffer
			if err := e.writer.Write(&buf, []flatfile.Record{record}); err != nil {
				return fmt.Errorf("writing %s: %v", j.name, err)
			}
			outputs[i] = buf.Bytes()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, j := range jobs {
		w, err := zw.Create(j.name)
		if err != nil {
			return nil, fmt.Errorf("adding %s: %v", j.name, err)
		}
		if _, err := w.Write(outputs[i]); err != nil {
			return nil, fmt.Errorf("adding %s: %v", j.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %v", err)
	}
	return &File{Name: fileName(name, "export") + Zip.Extension(), Format: Zip, Data: buf.Bytes()}, nil
}

// hasVariants reports whether any block offers options.
func hasVariants(blocks map[string]*block.Block) bool {
	for _, b := range blocks {
		if b.Kind() == block.Variant {
			return true
		}
	}
	return false
}

func projectName(r *block.Rollup) string {
	if name := r.Project.Metadata.Name; name != "" {
		return name
	}
	return UntitledProject
}

// fileName replaces characters that are not safe in file names.
func fileName(name, fallback string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return fallback
	}
	return name
}
