// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report persists the durable half of a job: the aggregated report
// document and, for failed jobs, the error trace. Records are keyed by job
// id in a Badger database so they survive a process restart and can be
// loaded independently of the in-memory registry. The per-job working
// directory holding stage artifacts lives next to the database.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/sbomscan/services/scanner/datatypes"
)

const (
	reportKeyPrefix = "report/"
	errorKeyPrefix  = "error/"
)

// Store is the durable job record store. Safe for concurrent use; Badger
// serializes conflicting writes and all writes here are idempotent
// last-write-wins puts.
type Store struct {
	db      *badger.DB
	dataDir string
}

// Open initializes the store under dataDir, creating the directory layout
// (<dataDir>/index for the database, <dataDir>/jobs/<id> per job) as needed.
func Open(dataDir string) (*Store, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, "jobs"), 0750); err != nil {
		return nil, fmt.Errorf("creating jobs dir: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(abs, "index")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening record index: %w", err)
	}

	return &Store{db: db, dataDir: abs}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DataDir returns the absolute base directory of the store.
func (s *Store) DataDir() string {
	return s.dataDir
}

// JobDir returns the absolute working directory for a job id. The
// directory is not created.
func (s *Store) JobDir(id string) string {
	return filepath.Join(s.dataDir, "jobs", id)
}

// EnsureJobDir creates the job working directory and returns its absolute
// path.
func (s *Store) EnsureJobDir(id string) (string, error) {
	dir := s.JobDir(id)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating job dir for %q: %w", id, err)
	}
	return dir, nil
}

// SaveReport durably records the aggregated report for a job. A copy is
// also written as report.json inside the job directory for inspection with
// ordinary tools. Idempotent.
func (s *Store) SaveReport(id string, rep *datatypes.Report) error {
	payload, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report for %q: %w", id, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(reportKeyPrefix+id), payload)
	})
	if err != nil {
		return fmt.Errorf("storing report for %q: %w", id, err)
	}

	if dir, err := s.EnsureJobDir(id); err == nil {
		// Best effort; the database record is authoritative.
		_ = os.WriteFile(filepath.Join(dir, "report.json"), payload, 0640)
	}
	return nil
}

// LoadReport returns the persisted report for a job id, or
// ErrRecordNotFound when none exists.
func (s *Store) LoadReport(id string) (*datatypes.Report, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(reportKeyPrefix + id))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading report for %q: %w", id, err)
	}

	var rep datatypes.Report
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, fmt.Errorf("decoding report for %q: %w", id, err)
	}
	return &rep, nil
}

// SaveErrorTrace durably records the full failure trace for a job. A copy
// is written as error.txt inside the job directory. Idempotent.
func (s *Store) SaveErrorTrace(id, trace string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(errorKeyPrefix+id), []byte(trace))
	})
	if err != nil {
		return fmt.Errorf("storing error trace for %q: %w", id, err)
	}

	if dir, err := s.EnsureJobDir(id); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "error.txt"), []byte(trace), 0640)
	}
	return nil
}

// LoadErrorTrace returns the persisted failure trace for a job id, or
// ErrRecordNotFound when none exists.
func (s *Store) LoadErrorTrace(id string) (string, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(errorKeyPrefix + id))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("loading error trace for %q: %w", id, err)
	}
	return string(payload), nil
}

// Remove deletes every durable trace of a job: both record keys and the
// working directory with all stage artifacts. Removing an unknown id is
// not an error.
func (s *Store) Remove(id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(reportKeyPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(errorKeyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("removing records for %q: %w", id, err)
	}

	if err := os.RemoveAll(s.JobDir(id)); err != nil {
		return fmt.Errorf("removing job dir for %q: %w", id, err)
	}
	return nil
}
