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

// Package store persists design projects in an embedded key-value database.
//
// Keys are laid out as:
//
//	project/<id>      project with the ids of its blocks and sequences
//	block/<id>        block, with leaf sequences replaced by their hash
//	sequence/<hash>   bases, keyed by their BLAKE3 hash
//
// Sequences are stored once however many blocks or projects share them.
package store

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/googlegenomics/construct/internal/block"
	"github.com/googlegenomics/construct/internal/genomics"
	"github.com/zeebo/blake3"
)

const (
	projectPrefix  = "project/"
	blockPrefix    = "block/"
	sequencePrefix = "sequence/"
)

// ErrNotFound is returned when a project, block or sequence does not exist.
var ErrNotFound = errors.New("not found")

// Config configures the database.
type Config struct {
	// Path is the database directory.  It is ignored if InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives the database's own messages.  If nil they are dropped.
	Logger *slog.Logger
}

// Store is a project store.  It is safe for concurrent use.
type Store struct {
	db *badger.DB
}

type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("store path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("creating store directory: %v", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening store: %v", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Hash returns the key under which sequence is stored.
func Hash(sequence string) string {
	sum := blake3.Sum256([]byte(sequence))
	return hex.EncodeToString(sum[:])
}

type storedEnvelope struct {
	Hash   string                       `json:"hash"`
	Blocks map[string]genomics.Interval `json:"blocks"`
}

type storedProject struct {
	Project   block.Project    `json:"project"`
	Blocks    []string         `json:"blocks"`
	Sequences []storedEnvelope `json:"sequences,omitempty"`
}

// SaveRollup stores r, replacing any previous version of its project and
// blocks.  Blocks dropped from the project since the previous version are
// left in place.
func (s *Store) SaveRollup(r *block.Rollup) error {
	if r.Project.ID == "" {
		return errors.New("project has no id")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		stored := storedProject{Project: r.Project, Blocks: r.IDs()}
		for _, envelope := range r.Sequences {
			hash, err := putSequence(txn, envelope.Sequence)
			if err != nil {
				return err
			}
			stored.Sequences = append(stored.Sequences, storedEnvelope{Hash: hash, Blocks: envelope.Blocks})
		}

		for _, id := range stored.Blocks {
			b := *r.Blocks[id]
			if b.Sequence.Literal != "" {
				hash, err := putSequence(txn, b.Sequence.Literal)
				if err != nil {
					return err
				}
				b.Sequence.Hash, b.Sequence.Literal = hash, ""
			}
			if err := putJSON(txn, blockPrefix+id, &b); err != nil {
				return err
			}
		}
		return putJSON(txn, projectPrefix+r.Project.ID, &stored)
	})
}

// LoadRollup returns the project id with all of its blocks and sequences.
func (s *Store) LoadRollup(id string) (*block.Rollup, error) {
	r := &block.Rollup{Blocks: make(map[string]*block.Block)}
	err := s.db.View(func(txn *badger.Txn) error {
		var stored storedProject
		if err := getJSON(txn, projectPrefix+id, &stored); err != nil {
			return fmt.Errorf("project %s: %w", id, err)
		}
		r.Project = stored.Project

		for _, envelope := range stored.Sequences {
			sequence, err := getSequence(txn, envelope.Hash)
			if err != nil {
				return err
			}
			r.Sequences = append(r.Sequences, block.Envelope{Sequence: sequence, Blocks: envelope.Blocks})
		}

		for _, blockID := range stored.Blocks {
			b := &block.Block{}
			if err := getJSON(txn, blockPrefix+blockID, b); err != nil {
				return fmt.Errorf("block %s: %w", blockID, err)
			}
			if b.Sequence.Hash != "" {
				sequence, err := getSequence(txn, b.Sequence.Hash)
				if err != nil {
					return err
				}
				b.Sequence.Literal = sequence
			}
			r.Blocks[blockID] = b
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Projects returns every stored project, sorted by id.
func (s *Store) Projects() ([]block.Project, error) {
	var projects []block.Project
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(projectPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var stored storedProject
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &stored)
			})
			if err != nil {
				return fmt.Errorf("decoding %s: %v", it.Item().Key(), err)
			}
			projects = append(projects, stored.Project)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

func putSequence(txn *badger.Txn, sequence string) (string, error) {
	hash := Hash(sequence)
	key := []byte(sequencePrefix + hash)
	if _, err := txn.Get(key); err == nil {
		return hash, nil
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("checking sequence %s: %v", hash, err)
	}
	if err := txn.Set(key, []byte(sequence)); err != nil {
		return "", fmt.Errorf("storing sequence %s: %v", hash, err)
	}
	return hash, nil
}

func getSequence(txn *badger.Txn, hash string) (string, error) {
	item, err := txn.Get([]byte(sequencePrefix + hash))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("sequence %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading sequence %s: %v", hash, err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return "", fmt.Errorf("reading sequence %s: %v", hash, err)
	}
	return string(value), nil
}

func putJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %v", key, err)
	}
	if err := txn.Set([]byte(key), data); err != nil {
		return fmt.Errorf("storing %s: %v", key, err)
	}
	return nil
}

func getJSON(txn *badger.Txn, key string, v interface{}) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(value []byte) error {
		return json.Unmarshal(value, v)
	})
}
