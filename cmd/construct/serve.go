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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/construct/api"
	"github.com/googlegenomics/construct/internal/export"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCommand() *cobra.Command {
	var (
		port               int
		buckets            []string
		defaultCredentials bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the design API over HTTP",
		Long: "Serve imports GenBank files posted to it or read from Cloud Storage and\n" +
			"exports designs as GenBank.  In secure mode the client's bearer token is\n" +
			"used to read from Cloud Storage.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			if len(buckets) > 0 {
				a.cfg.Server.Buckets = buckets
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			newStorageClient := api.NewPublicClient
			switch {
			case a.cfg.Server.Secure:
				newStorageClient = api.NewClientFromBearerToken
			case defaultCredentials:
				newStorageClient = api.NewDefaultClient
			}

			gin.SetMode(gin.ReleaseMode)
			server := api.NewServer(newStorageClient,
				api.WithStore(s),
				api.WithExporter(export.New(export.WithParallelism(a.cfg.Export.Parallelism), export.WithLogger(a.log))),
				api.WithLogger(a.log),
				api.WithMaxBodyBytes(a.cfg.Server.MaxBodyBytes))
			server.Whitelist(a.cfg.Server.Buckets)

			httpServer := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:           server.Handler(),
				ReadHeaderTimeout: 30 * time.Second,
			}
			return a.listen(cmd.Context(), httpServer)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&port, "port", 8080, "HTTP service port")
	flags.StringSliceVar(&buckets, "buckets", nil, "if set, restricts imports to a comma-separated list of buckets")
	flags.BoolVar(&defaultCredentials, "default_credentials", false, "read from Cloud Storage with the application default credentials")
	return cmd
}

// listen serves until the process is interrupted.
func (a *app) listen(ctx context.Context, server *http.Server) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		a.log.Info("Serving", "address", server.Addr, "secure", a.cfg.Server.Secure)
		if a.cfg.Server.Secure {
			errs <- server.ListenAndServeTLS(a.cfg.Server.HTTPSCert, a.cfg.Server.HTTPSKey)
		} else {
			errs <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("HTTP server returned an error: %v", err)
	case <-ctx.Done():
	}

	a.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutting down: %v", err)
	}
	return nil
}
