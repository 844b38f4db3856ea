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

// Package api implements the HTTP interface for importing GenBank files into
// block designs and exporting designs back to GenBank.
//
// Routes:
//
//	POST /import                           import a GenBank body
//	POST /import/:id                       import a GenBank body into a stored project
//	GET  /import/:bucket/*object           import a GenBank object from storage
//	POST /export                           export a project posted as JSON
//	GET  /projects                         list stored projects
//	GET  /projects/:id                     fetch a stored project
//	GET  /projects/:id/export              export a stored project
//	GET  /projects/:id/export/blocks/:ids  export blocks of a stored project
//	GET  /metrics                          Prometheus metrics
//
// The project export routes accept a construct query parameter to export a
// single construct of the project.  Block exports take a comma-separated
// list of block ids and write them as the parts of one construct.  Uploads
// accept a name query parameter naming the file; it names the constructs
// built around records without any parts.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/construct/internal/block"
	"github.com/googlegenomics/construct/internal/export"
	"github.com/googlegenomics/construct/internal/flatten"
	"github.com/googlegenomics/construct/internal/genbank"
	"github.com/googlegenomics/construct/internal/genomics"
	"github.com/googlegenomics/construct/internal/hierarchy"
	"github.com/googlegenomics/construct/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultMaxBodyBytes limits request bodies when no other limit is set.
const DefaultMaxBodyBytes = 32 << 20

var (
	errInvalidOrUnspecifiedID = errors.New("invalid or unspecified ID")
	errMissingOrInvalidToken  = errors.New("missing or invalid token")
	errNoBlocks               = errors.New("project has no blocks")
	errObjectTooLarge         = errors.New("object is larger than the size limit")
)

// NewStorageClientFunc is the type of function that constructs the appropriate
// storage client to satisfy the incoming request.  Any headers that caused
// this particular client to be created are returned as well.
type NewStorageClientFunc func(*http.Request) (Client, http.Header, error)

// Store persists imported projects.
type Store interface {
	SaveRollup(r *block.Rollup) error
	LoadRollup(id string) (*block.Rollup, error)
	Projects() ([]block.Project, error)
}

// Server provides the design import and export API.  Must be created with
// NewServer.
type Server struct {
	newStorageClient NewStorageClientFunc
	store            Store
	exporter         *export.Exporter
	log              *slog.Logger
	maxBodyBytes     int64
	importOptions    []hierarchy.Option
	whitelist        map[string]bool
}

// Option configures a Server.
type Option func(*Server)

// WithStore saves every import to s and enables the /projects routes.
func WithStore(s Store) Option {
	return func(server *Server) { server.store = s }
}

// WithExporter sets the exporter used by the export routes.
func WithExporter(e *export.Exporter) Option {
	return func(server *Server) { server.exporter = e }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(server *Server) { server.log = log }
}

// WithMaxBodyBytes limits the size of request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(server *Server) { server.maxBodyBytes = n }
}

// WithImportOptions passes opts to every import.
func WithImportOptions(opts ...hierarchy.Option) Option {
	return func(server *Server) { server.importOptions = append(server.importOptions, opts...) }
}

// NewServer returns a new Server that reads stored GenBank objects with the
// client returned by newStorageClient.  The server calls newStorageClient on
// each request that reads from storage.
func NewServer(newStorageClient NewStorageClientFunc, opts ...Option) *Server {
	server := &Server{
		newStorageClient: newStorageClient,
		log:              slog.Default(),
		maxBodyBytes:     DefaultMaxBodyBytes,
		whitelist:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.exporter == nil {
		server.exporter = export.New(export.WithLogger(server.log))
	}
	server.importOptions = append([]hierarchy.Option{hierarchy.WithLogger(server.log)}, server.importOptions...)
	return server
}

// Whitelist adds buckets to the set of buckets which the server is allowed to
// access. If Whitelist is never called for a given Server then reads from any
// bucket are allowed.
func (server *Server) Whitelist(buckets []string) {
	for _, bucket := range buckets {
		if bucket = strings.TrimSpace(bucket); bucket != "" {
			server.whitelist[bucket] = true
		}
	}
}

// Export registers the API routes with router.
func (server *Server) Export(router gin.IRouter) {
	router.Use(forwardOrigin)
	router.POST("/import", server.serveImport)
	router.GET("/import/:bucket/*object", server.serveStoredImport)
	router.POST("/export", server.serveExport)
	if server.store != nil {
		router.POST("/import/:id", server.serveMergeImport)
		router.GET("/projects", server.serveProjects)
		router.GET("/projects/:id", server.serveProject)
		router.GET("/projects/:id/export", server.serveProjectExport)
		router.GET("/projects/:id/export/blocks/:ids", server.serveBlocksExport)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Handler returns a gin engine serving the API.
func (server *Server) Handler() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), instrument)
	server.Export(engine)
	return engine
}

func (server *Server) serveImport(c *gin.Context) {
	data, err := server.readBody(c)
	if err != nil {
		server.writeError(c, err)
		return
	}
	imported, err := server.importRecords(c, "upload", c.Query("name"), bytes.NewReader(data))
	if err != nil {
		server.writeError(c, err)
		return
	}
	server.saveImport(c, imported.Rollup, imported)
}

// serveMergeImport adds the constructs of the posted records to a stored
// project.
func (server *Server) serveMergeImport(c *gin.Context) {
	rollup, err := server.loadProject(c.Param("id"))
	if err != nil {
		server.writeError(c, err)
		return
	}
	data, err := server.readBody(c)
	if err != nil {
		server.writeError(c, err)
		return
	}
	imported, err := server.importRecords(c, "upload", c.Query("name"), bytes.NewReader(data))
	if err != nil {
		server.writeError(c, err)
		return
	}
	rollup.Merge(imported.Rollup)
	server.saveImport(c, rollup, imported)
}

func (server *Server) serveStoredImport(c *gin.Context) {
	bucket, object, err := parseID(c.Param("bucket") + c.Param("object"))
	if err != nil {
		server.writeError(c, newInvalidInputError("parsing object ID", err))
		return
	}

	if err := server.checkWhitelist(bucket); err != nil {
		server.writeError(c, newPermissionDeniedError("checking whitelist", err))
		return
	}

	gcs, _, err := server.newStorageClient(c.Request)
	if err != nil {
		server.writeError(c, newStorageError("creating client", err))
		return
	}

	reader, err := gcs.NewObjectHandle(bucket, object).NewReader(c.Request.Context())
	if err != nil {
		server.writeError(c, newStorageError("opening object", err))
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, server.maxBodyBytes+1))
	if err != nil {
		server.writeError(c, newStorageError("reading object", err))
		return
	}
	if int64(len(data)) > server.maxBodyBytes {
		server.writeError(c, newPayloadTooLargeError("reading object", errObjectTooLarge))
		return
	}
	imported, err := server.importRecords(c, "gcs", path.Base(object), bytes.NewReader(data))
	if err != nil {
		server.writeError(c, err)
		return
	}
	server.saveImport(c, imported.Rollup, imported)
}

type placementFailure struct {
	Name string            `json:"name"`
	Span genomics.Interval `json:"span"`
}

type importResponse struct {
	*block.Rollup
	Failures []placementFailure `json:"failures,omitempty"`
}

// importRecords builds a new project out of the GenBank records read from r.
// name is the name of the file the records came from.
func (server *Server) importRecords(c *gin.Context, source, name string, r io.Reader) (*hierarchy.Imported, error) {
	records, err := genbank.Parse(r)
	if err != nil {
		return nil, newInvalidInputError("parsing GenBank", err)
	}

	opts := server.importOptions
	if name != "" {
		opts = append(opts[:len(opts):len(opts)], hierarchy.WithSourceName(name))
	}
	imported, err := hierarchy.ImportRecords(c.Request.Context(), records, opts...)
	if err != nil {
		return nil, newInvalidInputError("importing records", err)
	}
	importedRecords.WithLabelValues(source).Add(float64(len(records)))
	placementFailures.Add(float64(len(imported.Failures)))
	return imported, nil
}

// saveImport stores rollup, which holds the constructs of imported, and
// writes it to the response.
func (server *Server) saveImport(c *gin.Context, rollup *block.Rollup, imported *hierarchy.Imported) {
	if server.store != nil {
		if err := server.store.SaveRollup(rollup); err != nil {
			server.writeError(c, fmt.Errorf("saving project: %v", err))
			return
		}
	}
	server.log.Info("Imported project", "project", rollup.Project.ID,
		"constructs", len(imported.Rollup.Project.Components), "blocks", len(rollup.Blocks), "failures", len(imported.Failures))

	response := importResponse{Rollup: rollup}
	for _, failure := range imported.Failures {
		response.Failures = append(response.Failures, placementFailure{failure.Name, failure.Span})
	}
	c.JSON(http.StatusOK, response)
}

func (server *Server) serveExport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, server.maxBodyBytes)
	var rollup block.Rollup
	if err := c.ShouldBindJSON(&rollup); err != nil {
		server.writeError(c, bodyError("decoding project", err))
		return
	}
	if len(rollup.Blocks) == 0 {
		server.writeError(c, newInvalidInputError("checking project", errNoBlocks))
		return
	}
	server.export(c, &rollup)
}

func (server *Server) serveProjects(c *gin.Context) {
	projects, err := server.store.Projects()
	if err != nil {
		server.writeError(c, fmt.Errorf("listing projects: %v", err))
		return
	}
	if projects == nil {
		projects = []block.Project{}
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (server *Server) serveProject(c *gin.Context) {
	rollup, err := server.loadProject(c.Param("id"))
	if err != nil {
		server.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rollup)
}

func (server *Server) serveProjectExport(c *gin.Context) {
	rollup, err := server.loadProject(c.Param("id"))
	if err != nil {
		server.writeError(c, err)
		return
	}
	server.export(c, rollup)
}

func (server *Server) serveBlocksExport(c *gin.Context) {
	rollup, err := server.loadProject(c.Param("id"))
	if err != nil {
		server.writeError(c, err)
		return
	}
	var ids []string
	for _, id := range strings.Split(c.Param("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	file, err := server.exporter.Blocks(c.Request.Context(), rollup, ids)
	if err != nil {
		server.writeError(c, exportError(err))
		return
	}
	server.writeFile(c, file)
}

func (server *Server) loadProject(id string) (*block.Rollup, error) {
	rollup, err := server.store.LoadRollup(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newNotFoundError("loading project", err)
	}
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %v", id, err)
	}
	return rollup, nil
}

// export writes the project, or the construct named by the construct query
// parameter, as an attachment.
func (server *Server) export(c *gin.Context, rollup *block.Rollup) {
	var (
		file *export.File
		err  error
	)
	if construct := c.Query("construct"); construct != "" {
		file, err = server.exporter.Construct(c.Request.Context(), rollup, construct)
	} else {
		file, err = server.exporter.Project(c.Request.Context(), rollup)
	}
	if err != nil {
		server.writeError(c, exportError(err))
		return
	}
	server.writeFile(c, file)
}

func (server *Server) writeFile(c *gin.Context, file *export.File) {
	exportedFiles.WithLabelValues(strings.TrimPrefix(file.Format.Extension(), ".")).Inc()
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Data(http.StatusOK, file.Format.ContentType(), file.Data)
}

func (server *Server) readBody(c *gin.Context) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, server.maxBodyBytes))
	if err != nil {
		return nil, bodyError("reading body", err)
	}
	return data, nil
}

func (server *Server) checkWhitelist(bucket string) error {
	if len(server.whitelist) == 0 || server.whitelist[bucket] {
		return nil
	}
	return fmt.Errorf("access to bucket %s is not allowed", bucket)
}

// parseID parses path and returns a GCS bucket and object, or an error.
func parseID(path string) (string, string, error) {
	if parts := strings.SplitN(path, "/", 2); len(parts) == 2 {
		if parts[0] != "" && parts[1] != "" {
			return parts[0], parts[1], nil
		}
	}
	return "", "", errInvalidOrUnspecifiedID
}

func bodyError(context string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return newPayloadTooLargeError(context, err)
	}
	return newInvalidInputError(context, err)
}

func exportError(err error) error {
	switch {
	case errors.Is(err, flatten.ErrUnknownBlock):
		return newNotFoundError("exporting", err)
	case errors.Is(err, flatten.ErrCycle), errors.Is(err, export.ErrNoBlocks):
		return newInvalidInputError("exporting", err)
	}
	return fmt.Errorf("exporting: %v", err)
}

// apiError is used to capture errors that have been defined in the API.
type apiError struct {
	name  string
	code  int
	cause error
}

func (err *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %v", err.name, err.code, err.cause)
}

func (err *apiError) Unwrap() error {
	return err.cause
}

func newAPIError(name string, code int, context string, err error) error {
	return &apiError{name, code, fmt.Errorf("%s: %w", context, err)}
}

func newInvalidAuthenticationError(context string, err error) error {
	return newAPIError("InvalidAuthentication", http.StatusUnauthorized, context, err)
}

func newInvalidInputError(context string, err error) error {
	return newAPIError("InvalidInput", http.StatusBadRequest, context, err)
}

func newPayloadTooLargeError(context string, err error) error {
	return newAPIError("PayloadTooLarge", http.StatusRequestEntityTooLarge, context, err)
}

func newPermissionDeniedError(context string, err error) error {
	return newAPIError("PermissionDenied", http.StatusForbidden, context, err)
}

func newNotFoundError(context string, err error) error {
	return newAPIError("NotFound", http.StatusNotFound, context, err)
}

// writeError writes either a JSON object or bare HTTP error describing err.
// A JSON object is written only when the error has a name and code defined
// by the API.
func (server *Server) writeError(c *gin.Context, err error) {
	var e *apiError
	if errors.As(err, &e) {
		c.AbortWithStatusJSON(e.code, gin.H{
			"error":   e.name,
			"message": fmt.Sprintf("%s: %v", http.StatusText(e.code), e.cause),
		})
		return
	}

	server.log.Error("Request failed", "path", c.Request.URL.Path, "error", err)
	code := http.StatusInternalServerError
	c.Error(err)
	c.Abort()
	c.String(code, "%s: %v", http.StatusText(code), err)
}

// forwardOrigin allows the requesting origin to read the response.
func forwardOrigin(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
	}
	c.Next()
}
