// Package store implements the append-only, time-ordered store of canonical
// records, backed by a CSV-like logfile. The scheduler is the only writer;
// slicing and export read concurrently through copy-on-read range queries.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/seubert/gammalog/internal/pkg/constants"
	"github.com/seubert/gammalog/internal/pkg/logger"
)

// ErrIOFailure marks a durable-write failure. Fatal to the logging session:
// the scheduler must stop rather than silently drop records.
var ErrIOFailure = errors.New("store I/O failure")

// ErrOutOfOrder marks an append whose timestamp precedes the last record.
var ErrOutOfOrder = errors.New("record timestamp out of order")

// nanosPerDay converts between fractional-day stamps and wall time.
const nanosPerDay = 24 * 60 * 60 * 1e9

// Record is the atomic unit of the time series: one merged reading of all
// canonical variables at one instant. Immutable after creation.
type Record struct {
	Index  int64   // monotonic, 1-based
	Stamp  float64 // fractional days since the Unix epoch
	Values [constants.VariableCount]float64
}

// StampFromTime converts wall time to a fractional-day stamp.
func StampFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / nanosPerDay
}

// TimeFromStamp converts a fractional-day stamp back to wall time.
func TimeFromStamp(stamp float64) time.Time {
	return time.Unix(0, int64(stamp*nanosPerDay))
}

// Store owns the ordered record sequence and its on-disk representation.
// Single writer, many readers: every record is durably written before the
// in-memory sequence is updated, so memory never gets ahead of disk.
type Store struct {
	mu      sync.RWMutex
	records []Record

	path string
	file *os.File
	w    *bufio.Writer
}

// NewMemory creates a store without a backing file. Used for slicing
// records loaded from an existing logfile, and in tests.
func NewMemory() *Store {
	return &Store{}
}

// Open opens (or creates) a logfile-backed store. An existing file is
// replayed so a restarted session continues the index sequence; comment
// lines are skipped, unparseable data lines are reported and skipped.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		records, skipped := parseLog(data)
		s.records = records
		if skipped > 0 {
			logger.Warn("Skipped unparseable lines while replaying logfile",
				"path", path, "skipped", skipped)
		}
		logger.Info("Replayed existing logfile", "path", path, "records", len(records))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIOFailure, path, err)
	}
	s.file = f
	s.w = bufio.NewWriter(f)
	return s, nil
}

// Load reads an existing logfile into a memory-only store, without taking
// the file over for appending. Used by the stats and export commands.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIOFailure, path, err)
	}
	records, skipped := parseLog(data)
	if skipped > 0 {
		logger.Warn("Skipped unparseable lines while loading logfile",
			"path", path, "skipped", skipped)
	}
	return &Store{records: records}, nil
}

// Path returns the backing file path, empty for a memory store.
func (s *Store) Path() string {
	return s.path
}

// Append durably writes the record, then publishes it to readers. On a
// write failure the in-memory sequence is left untouched so memory and
// disk stay consistent.
func (s *Store) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.records); n > 0 {
		last := s.records[n-1]
		if r.Stamp < last.Stamp {
			return fmt.Errorf("%w: %.8f after %.8f", ErrOutOfOrder, r.Stamp, last.Stamp)
		}
		if r.Index != last.Index+1 {
			return fmt.Errorf("index %d does not continue %d", r.Index, last.Index)
		}
	}

	if s.w != nil {
		if _, err := s.w.WriteString(formatRecord(r)); err != nil {
			return fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
		if err := s.w.Flush(); err != nil {
			return fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
	}

	s.records = append(s.records, r)
	return nil
}

// Comment writes a #-prefixed metadata line (session markers, device
// events) into the logfile. Comments are not part of the record sequence.
func (s *Store) Comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return nil
	}
	stamp := TimeFromStamp(StampFromTime(time.Now())).Format(stampLayout)
	if _, err := fmt.Fprintf(s.w, "# %s %s\n", stamp, text); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Last returns the most recent record, if any.
func (s *Store) Last() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return Record{}, false
	}
	return s.records[len(s.records)-1], true
}

// First returns the oldest record, if any.
func (s *Store) First() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return Record{}, false
	}
	return s.records[0], true
}

// Range returns a copy of all records with t0 <= Stamp <= t1 in increasing
// stamp order. An empty store or a window outside the stored span yields
// an empty slice, never an error.
func (s *Store) Range(t0, t1 float64) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 || t1 < t0 {
		return nil
	}

	lo := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].Stamp >= t0
	})
	hi := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].Stamp > t1
	})
	if lo >= hi {
		return nil
	}

	out := make([]Record, hi-lo)
	copy(out, s.records[lo:hi])
	return out
}

// All returns a copy of every record.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Span returns the first and last stamps. ok is false for an empty store.
func (s *Store) Span() (first, last float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return 0, 0, false
	}
	return s.records[0].Stamp, s.records[len(s.records)-1].Stamp, true
}

// NextIndex returns the index the next appended record must carry.
func (s *Store) NextIndex() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return 1
	}
	return s.records[len(s.records)-1].Index + 1
}

// Clear empties both the in-memory sequence and the backing file. Starting
// a fresh log is always an explicit operation.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		if err := s.file.Truncate(0); err != nil {
			return fmt.Errorf("%w: truncate: %v", ErrIOFailure, err)
		}
		if _, err := s.file.Seek(0, 0); err != nil {
			return fmt.Errorf("%w: seek: %v", ErrIOFailure, err)
		}
		s.w.Reset(s.file)
	}
	s.records = nil
	return nil
}

// Close flushes and closes the backing file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w != nil {
		if err := s.w.Flush(); err != nil {
			return fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
		s.file = nil
		s.w = nil
	}
	return nil
}

// NaNRecord returns a record with every variable slot missing.
func NaNRecord(index int64, stamp float64) Record {
	r := Record{Index: index, Stamp: stamp}
	for i := range r.Values {
		r.Values[i] = math.NaN()
	}
	return r
}
