package numpool

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"otprelay/core/logger"

	"log/slog"
)

// snapshot is the on-disk layout of the store: the record set plus the
// per-requester bookkeeping that cannot be derived from it.
type snapshot struct {
	Numbers        []*NumberRecord `json:"numbers"`
	ReassignCounts map[int64]int   `json:"reassign_counts,omitempty"`
	KnownUsers     []int64         `json:"known_users,omitempty"`
}

// Store holds every NumberRecord in pool-insertion order and persists the
// whole set as one JSON snapshot after each mutation. It performs no locking
// of its own; the Manager serializes all access.
type Store struct {
	path    string
	records []*NumberRecord
	byValue map[string]*NumberRecord

	// holders is the lease index (requester id -> number value). It is
	// derived state: rebuilt from the record set on load, maintained as a
	// cache afterwards, never persisted on its own.
	holders map[int64]string

	reassigns map[int64]int
	known     map[int64]struct{}
}

// Load reads the snapshot at path. A missing file yields an empty store; an
// unreadable or unparsable one is logged loudly and also yields an empty
// store, so a damaged snapshot never prevents startup.
func Load(path string) *Store {
	s := &Store{
		path:      path,
		byValue:   make(map[string]*NumberRecord),
		holders:   make(map[int64]string),
		reassigns: make(map[int64]int),
		known:     make(map[int64]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error(logger.Background(), "pool.store", "store.load.fail",
				slog.String("path", path),
				slog.String("err", err.Error()),
			)
		}
		return s
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// Data loss: the previous pool state is unrecoverable from here.
		logger.Error(logger.Background(), "pool.store", "store.corrupt",
			slog.String("path", path),
			slog.String("err", err.Error()),
			slog.Int("bytes", len(data)),
		)
		return s
	}

	repaired := 0
	for _, rec := range snap.Numbers {
		if rec == nil || rec.Value == "" {
			repaired++
			continue
		}
		if _, dup := s.byValue[rec.Value]; dup {
			repaired++
			continue
		}
		if rec.repair() {
			repaired++
		}
		s.records = append(s.records, rec)
		s.byValue[rec.Value] = rec
		if rec.Status == StatusAssigned {
			s.holders[rec.Holder] = rec.Value
		}
	}
	for holder, n := range snap.ReassignCounts {
		s.reassigns[holder] = n
	}
	for _, id := range snap.KnownUsers {
		s.known[id] = struct{}{}
	}

	logger.Info(logger.Background(), "pool.store", "store.loaded",
		slog.String("path", path),
		slog.Int("count", len(s.records)),
		slog.Int("repaired", repaired),
	)
	return s
}

// Checkpoint writes the full snapshot atomically: the JSON goes to a
// temporary file in the same directory which is then renamed over the
// previous snapshot, so a crash mid-write never leaves a corrupt store.
func (s *Store) Checkpoint() error {
	snap := snapshot{
		Numbers:        s.records,
		ReassignCounts: s.reassigns,
		KnownUsers:     s.knownUsers(),
	}
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// FindByValue returns the record for a canonical number value, or nil.
func (s *Store) FindByValue(value string) *NumberRecord {
	return s.byValue[value]
}

// All returns the records in pool-insertion order. The slice is shared;
// callers must not reorder it.
func (s *Store) All() []*NumberRecord {
	return s.records
}

// Len reports the pool size.
func (s *Store) Len() int { return len(s.records) }

// append adds a record, reporting false for duplicates.
func (s *Store) append(rec *NumberRecord) bool {
	if rec == nil || rec.Value == "" {
		return false
	}
	if _, dup := s.byValue[rec.Value]; dup {
		return false
	}
	s.records = append(s.records, rec)
	s.byValue[rec.Value] = rec
	return true
}

// removeList drops every record belonging to the named sub-pool and returns
// the removed records so the caller can invalidate leases.
func (s *Store) removeList(list string) []*NumberRecord {
	var removed []*NumberRecord
	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.List == list {
			removed = append(removed, rec)
			delete(s.byValue, rec.Value)
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed
}

// remove drops a single record by value, reporting whether it existed.
func (s *Store) remove(value string) *NumberRecord {
	rec, ok := s.byValue[value]
	if !ok {
		return nil
	}
	delete(s.byValue, value)
	for i, r := range s.records {
		if r == rec {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	return rec
}

// holderValue returns the number currently leased by the requester.
func (s *Store) holderValue(holder int64) (string, bool) {
	v, ok := s.holders[holder]
	return v, ok
}

func (s *Store) setHolder(holder int64, value string) {
	s.holders[holder] = value
}

// dropHoldersOf removes every lease index entry pointing at value.
func (s *Store) dropHoldersOf(value string) {
	for holder, v := range s.holders {
		if v == value {
			delete(s.holders, holder)
		}
	}
}

func (s *Store) bumpReassign(holder int64) int {
	s.reassigns[holder]++
	return s.reassigns[holder]
}

func (s *Store) reassignCount(holder int64) int {
	return s.reassigns[holder]
}

// registerKnown records a user for broadcast purposes.
func (s *Store) registerKnown(id int64) bool {
	if _, ok := s.known[id]; ok {
		return false
	}
	s.known[id] = struct{}{}
	return true
}

func (s *Store) knownUsers() []int64 {
	ids := make([]int64, 0, len(s.known))
	for id := range s.known {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
