// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists the remediation journal.
//
// Every action the pipeline executes or blocks is appended here under a
// monotonic sequence number. The journal survives restarts, warms the
// in-memory remediation history on startup, and can be snapshotted to
// object storage for compliance review.
package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	storagebadger "github.com/AleutianAI/AleutianSentinel/services/storage/badger"
)

// keyPrefix namespaces journal entries. Sequence numbers are encoded
// big-endian so key order is chronological order.
var keyPrefix = []byte("rem/")

// ErrNilDB indicates the journal was constructed without a database.
var ErrNilDB = errors.New("audit: db must not be nil")

// Record is one journal entry: an action the pipeline decided on,
// whether it ran, and why it was blocked if it did not.
type Record struct {
	Seq         uint64    `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	RootCause   string    `json:"root_cause"`
	Action      string    `json:"action"`
	Command     string    `json:"command,omitempty"`
	Confidence  float64   `json:"confidence"`
	Executed    bool      `json:"executed"`
	Blocked     bool      `json:"blocked"`
	BlockReason string    `json:"block_reason,omitempty"`
}

// Journal is an append-only remediation log backed by BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use. Appends are serialized by a mutex so
// sequence numbers never collide.
type Journal struct {
	mu     sync.Mutex
	db     *storagebadger.DB
	logger *slog.Logger

	nextSeq uint64
}

// NewJournal opens a journal over the given database and recovers the
// next sequence number from the highest existing key.
func NewJournal(db *storagebadger.DB, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if logger == nil {
		logger = slog.Default()
	}

	j := &Journal{db: db, logger: logger, nextSeq: 1}

	err := db.WithReadTxn(context.Background(), func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse-seek to the last key under the prefix.
		seek := append(append([]byte{}, keyPrefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seek); it.ValidForPrefix(keyPrefix); it.Next() {
			key := it.Item().Key()
			j.nextSeq = binary.BigEndian.Uint64(key[len(keyPrefix):]) + 1
			break
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recover journal sequence: %w", err)
	}

	if j.nextSeq > 1 {
		logger.Info("remediation journal recovered",
			"entries", j.nextSeq-1)
	}
	return j, nil
}

// Append assigns the record a sequence number and timestamp (when
// unset) and persists it. Returns the assigned sequence number.
func (j *Journal) Append(ctx context.Context, rec Record) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec.Seq = j.nextSeq
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode journal record: %w", err)
	}

	err = j.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Set(seqKey(rec.Seq), payload)
	})
	if err != nil {
		return 0, fmt.Errorf("append journal record: %w", err)
	}

	j.nextSeq++
	return rec.Seq, nil
}

// Replay returns up to limit of the most recent records in
// chronological order. limit <= 0 returns everything.
//
// Used on startup to warm the in-memory remediation history.
func (j *Journal) Replay(ctx context.Context, limit int) ([]Record, error) {
	var records []Record

	err := j.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, keyPrefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seek); it.ValidForPrefix(keyPrefix); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				j.logger.Warn("skipping corrupt journal record",
					"key", string(it.Item().Key()), "error", err)
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	// Newest-first from the reverse iterator; flip to chronological.
	for i, n := 0, len(records); i < n/2; i++ {
		records[i], records[n-1-i] = records[n-1-i], records[i]
	}
	return records, nil
}

// Count returns the number of persisted records.
func (j *Journal) Count(ctx context.Context) (int, error) {
	count := 0
	err := j.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count journal records: %w", err)
	}
	return count, nil
}

// WriteSnapshot streams every record to w as JSON lines in
// chronological order and returns the number of records written.
func (j *Journal) WriteSnapshot(ctx context.Context, w io.Writer) (int, error) {
	written := 0
	enc := json.NewEncoder(w)

	err := j.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				j.logger.Warn("skipping corrupt journal record",
					"key", string(it.Item().Key()), "error", err)
				continue
			}
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("write snapshot record %d: %w", rec.Seq, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return written, err
	}
	return written, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], seq)
	return key
}
