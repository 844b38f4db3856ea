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

// Package config holds the settings of the construct server and tools.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration.
type Config struct {
	Server Server `yaml:"server"`
	Store  Store  `yaml:"store"`
	Log    Log    `yaml:"log"`
	Export Export `yaml:"export"`
}

// Server configures the HTTP API.
type Server struct {
	Port      int    `yaml:"port"`
	Secure    bool   `yaml:"secure"`
	HTTPSCert string `yaml:"https_cert"`
	HTTPSKey  string `yaml:"https_key"`
	// Buckets lists the Cloud Storage buckets records may be imported from.
	// An empty list allows any bucket.
	Buckets      []string `yaml:"buckets"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

// Store configures the project database.
type Store struct {
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Export configures flat file export.
type Export struct {
	// Parallelism is the number of combinations flattened at once.  Zero
	// means one per CPU.
	Parallelism int `yaml:"parallelism"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Port:         8080,
			MaxBodyBytes: 32 << 20,
		},
		Store: Store{
			Path:       "construct-data",
			SyncWrites: true,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %v", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Server.Secure && (c.Server.HTTPSCert == "" || c.Server.HTTPSKey == "") {
		return errors.New("secure server requires https_cert and https_key")
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		return errors.New("store path is required unless in_memory is set")
	}
	if c.Export.Parallelism < 0 {
		return fmt.Errorf("invalid export parallelism %d", c.Export.Parallelism)
	}
	return nil
}
