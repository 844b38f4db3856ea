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

// This binary converts GenBank files to block designs and back, and serves the
// design API over HTTP.
package main

import (
	"fmt"
	"log"
	"log/slog"

	"github.com/googlegenomics/construct/internal/config"
	"github.com/googlegenomics/construct/internal/logging"
	"github.com/googlegenomics/construct/internal/store"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

func main() {
	root, a := newRootCommand()
	if err := a.execute(root); err != nil {
		log.Fatalf("construct: %v", err)
	}
}

// app holds the state shared by all subcommands.
type app struct {
	configPath  string
	logLevel    string
	logFormat   string
	profileMode string
	profilePath string

	cfg      config.Config
	log      *slog.Logger
	profiler interface{ Stop() }
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:               "construct",
		Short:             "Convert GenBank files to and from block designs",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	flags.StringVar(&a.profileMode, "profile", "", "write a cpu or mem profile")
	flags.StringVar(&a.profilePath, "profile-path", ".", "directory profiles are written to")

	root.AddCommand(a.importCommand(), a.exportCommand(), a.serveCommand())
	return root, a
}

// execute runs root and stops the profile started by setup, whether or not
// the command failed.  Cobra skips post-run hooks after an error.
func (a *app) execute(root *cobra.Command) error {
	defer a.stopProfile()
	return root.Execute()
}

func (a *app) stopProfile() {
	if a.profiler != nil {
		a.profiler.Stop()
		a.profiler = nil
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.cfg = config.Default()
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		a.cfg.Log.Format = a.logFormat
	}

	log, err := logging.New(a.cfg.Log.Level, a.cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.log = log

	switch a.profileMode {
	case "":
	case "cpu":
		a.profiler = profile.Start(profile.CPUProfile, profile.ProfilePath(a.profilePath), profile.Quiet)
	case "mem":
		a.profiler = profile.Start(profile.MemProfile, profile.ProfilePath(a.profilePath), profile.Quiet)
	default:
		return fmt.Errorf("unknown profile mode %q", a.profileMode)
	}
	return nil
}

func (a *app) openStore() (*store.Store, error) {
	return store.Open(store.Config{
		Path:       a.cfg.Store.Path,
		InMemory:   a.cfg.Store.InMemory,
		SyncWrites: a.cfg.Store.SyncWrites,
		Logger:     a.log.With("component", "store"),
	})
}
