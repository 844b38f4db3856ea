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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/googlegenomics/construct/internal/block"
	"github.com/googlegenomics/construct/internal/export"
	"github.com/spf13/cobra"
)

func (a *app) exportCommand() *cobra.Command {
	var (
		project   string
		construct string
		output    string
		dir       string
	)
	cmd := &cobra.Command{
		Use:   "export [PROJECT.json]",
		Short: "Write a project as GenBank",
		Long: "Export writes a project, read from a JSON file or from the store, as a\n" +
			"GenBank file.  Projects with variant blocks are written as a zip archive\n" +
			"holding one file per combination.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				rollup *block.Rollup
				err    error
			)
			switch {
			case project != "" && len(args) == 1:
				return errors.New("give either a project file or --project, not both")
			case project != "":
				rollup, err = a.loadProject(project)
			case len(args) == 1:
				rollup, err = readProject(args[0])
			default:
				return errors.New("no project given")
			}
			if err != nil {
				return err
			}

			exporter := export.New(export.WithParallelism(a.cfg.Export.Parallelism), export.WithLogger(a.log))
			var file *export.File
			if construct != "" {
				file, err = exporter.Construct(cmd.Context(), rollup, construct)
			} else {
				file, err = exporter.Project(cmd.Context(), rollup)
			}
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = filepath.Join(dir, file.Name)
			}
			if err := os.WriteFile(path, file.Data, 0644); err != nil {
				return fmt.Errorf("writing %s: %v", path, err)
			}
			a.log.Info("Exported project", "project", rollup.Project.ID, "file", path, "bytes", len(file.Data))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&project, "project", "", "id of a stored project")
	flags.StringVar(&construct, "construct", "", "export only this construct")
	flags.StringVarP(&output, "output", "o", "", "output filename (default named after the project)")
	flags.StringVar(&dir, "dir", ".", "output directory when no filename is given")
	return cmd
}

func (a *app) loadProject(id string) (*block.Rollup, error) {
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.LoadRollup(id)
}

func readProject(path string) (*block.Rollup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rollup block.Rollup
	if err := json.Unmarshal(data, &rollup); err != nil {
		return nil, fmt.Errorf("parsing %s: %v", path, err)
	}
	return &rollup, nil
}
