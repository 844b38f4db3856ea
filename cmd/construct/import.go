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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/googlegenomics/construct/internal/flatfile"
	"github.com/googlegenomics/construct/internal/genbank"
	"github.com/googlegenomics/construct/internal/hierarchy"
	"github.com/spf13/cobra"
)

func (a *app) importCommand() *cobra.Command {
	var (
		output string
		save   bool
		into   string
	)
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Build a project from GenBank files",
		Long: "Import reads every record of the GenBank files, builds one construct\n" +
			"per record and writes the project as JSON.  Records without any parts\n" +
			"are wrapped in a construct named after the first file.  With --into the\n" +
			"constructs are added to a stored project instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var records []flatfile.Record
			for _, path := range args {
				parsed, err := parseFile(path)
				if err != nil {
					return err
				}
				records = append(records, parsed...)
			}

			imported, err := hierarchy.ImportRecords(cmd.Context(), records,
				hierarchy.WithLogger(a.log), hierarchy.WithSourceName(filepath.Base(args[0])))
			if err != nil {
				return err
			}
			rollup := imported.Rollup
			a.log.Info("Imported records", "records", len(records),
				"blocks", len(rollup.Blocks), "failures", len(imported.Failures))

			if save || into != "" {
				s, err := a.openStore()
				if err != nil {
					return err
				}
				defer s.Close()
				if into != "" {
					if rollup, err = s.LoadRollup(into); err != nil {
						return err
					}
					rollup.Merge(imported.Rollup)
				}
				if err := s.SaveRollup(rollup); err != nil {
					return fmt.Errorf("saving project: %v", err)
				}
				a.log.Info("Saved project", "project", rollup.Project.ID, "constructs", len(rollup.Project.Components))
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output: %v", err)
				}
				defer f.Close()
				w = f
			}
			return writeJSON(w, rollup)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output filename (default stdout)")
	cmd.Flags().BoolVar(&save, "save", false, "also save the project to the store")
	cmd.Flags().StringVar(&into, "into", "", "add the constructs to this stored project")
	return cmd
}

func parseFile(path string) ([]flatfile.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := genbank.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %v", path, err)
	}
	return records, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("writing JSON: %v", err)
	}
	return nil
}
