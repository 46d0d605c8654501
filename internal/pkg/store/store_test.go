package store

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(index int64, stamp float64, cpm float64) Record {
	r := NaNRecord(index, stamp)
	r.Values[0] = cpm
	return r
}

func TestStampRoundTrip(t *testing.T) {
	now := time.Now()
	stamp := StampFromTime(now)
	back := TimeFromStamp(stamp)
	assert.WithinDuration(t, now, back, time.Millisecond)
}

func TestAppendAndRange(t *testing.T) {
	s := NewMemory()

	for i := int64(1); i <= 10; i++ {
		require.NoError(t, s.Append(rec(i, float64(i), float64(i*10))))
	}
	assert.Equal(t, 10, s.Len())

	got := s.Range(3, 7)
	require.Len(t, got, 5) // inclusive on both ends
	assert.Equal(t, int64(3), got[0].Index)
	assert.Equal(t, int64(7), got[4].Index)

	// Consecutive records: non-decreasing stamps, index step exactly 1
	all := s.All()
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Stamp, all[i].Stamp)
		assert.Equal(t, all[i-1].Index+1, all[i].Index)
	}
}

func TestRangeEmptyAndOutside(t *testing.T) {
	s := NewMemory()
	assert.Empty(t, s.Range(0, 100))

	require.NoError(t, s.Append(rec(1, 5, 1)))
	assert.Empty(t, s.Range(10, 20), "window after the stored span")
	assert.Empty(t, s.Range(0, 4), "window before the stored span")
	assert.Empty(t, s.Range(7, 3), "inverted window")
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Append(rec(1, 10, 1)))

	err := s.Append(rec(2, 9, 1))
	assert.ErrorIs(t, err, ErrOutOfOrder)

	// Equal stamps are allowed, ties broken by index
	assert.NoError(t, s.Append(rec(2, 10, 1)))

	// Index must continue the sequence
	assert.Error(t, s.Append(rec(7, 11, 1)))
}

func TestDurableAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Comment("log started"))
	require.NoError(t, s.Append(rec(1, 100.5, 42)))
	require.NoError(t, s.Append(rec(2, 100.6, 43)))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "# ")
	assert.Contains(t, text, "log started")
	assert.Contains(t, text, "1, 100.50000000, 42")

	// A fresh open replays the records and continues the index sequence
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, 2, s2.Len())
	assert.Equal(t, int64(3), s2.NextIndex())

	last, ok := s2.Last()
	require.True(t, ok)
	assert.Equal(t, int64(2), last.Index)
	assert.Equal(t, 43.0, last.Values[0])
	assert.True(t, math.IsNaN(last.Values[1]), "missing slots replay as NaN")
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(rec(1, 1, 1)))
	require.NoError(t, s.Clear())

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, int64(1), s.NextIndex())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	// The store stays usable after a clear
	assert.NoError(t, s.Append(rec(1, 2, 5)))
}

func TestFirstLastSpan(t *testing.T) {
	s := NewMemory()
	_, _, ok := s.Span()
	assert.False(t, ok)
	_, ok = s.Last()
	assert.False(t, ok)

	require.NoError(t, s.Append(rec(1, 2.5, 1)))
	require.NoError(t, s.Append(rec(2, 4.5, 2)))

	first, last, ok := s.Span()
	require.True(t, ok)
	assert.Equal(t, 2.5, first)
	assert.Equal(t, 4.5, last)

	f, ok := s.First()
	require.True(t, ok)
	assert.Equal(t, int64(1), f.Index)
}

func TestParseLine(t *testing.T) {
	t.Run("comment", func(t *testing.T) {
		_, ok, err := ParseLine("# 2025-03-01 12:00:00 device GMC connected")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("blank", func(t *testing.T) {
		_, ok, err := ParseLine("   ")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("data", func(t *testing.T) {
		r, ok, err := ParseLine("17, 20514.12345678, 42, 0.7, , , , , , , 21.5, 1013.25, 44, ")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(17), r.Index)
		assert.InDelta(t, 20514.12345678, r.Stamp, 1e-12)
		assert.Equal(t, 42.0, r.Values[0])
		assert.Equal(t, 0.7, r.Values[1])
		assert.True(t, math.IsNaN(r.Values[2]))
		assert.Equal(t, 1013.25, r.Values[9])
		assert.True(t, math.IsNaN(r.Values[11]))
	})

	t.Run("malformed", func(t *testing.T) {
		_, _, err := ParseLine("1, 2, 3")
		assert.Error(t, err)
		_, _, err = ParseLine("x, 20514.1, , , , , , , , , , , , ")
		assert.Error(t, err)
	})
}

func TestCSVRoundTrip(t *testing.T) {
	s := NewMemory()
	r1 := NaNRecord(1, 20514.25)
	r1.Values[0] = 42
	r1.Values[8] = 21.5
	r2 := NaNRecord(2, 20514.26)
	r2.Values[0] = 17.25
	r2.Values[10] = 63
	require.NoError(t, s.Append(r1))
	require.NoError(t, s.Append(r2))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, s.All()))
	assert.True(t, strings.HasPrefix(buf.String(), "# index, stamp, CPM, CPS"))

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, back, 2)
	for i, orig := range s.All() {
		assert.Equal(t, orig.Index, back[i].Index)
		assert.InDelta(t, orig.Stamp, back[i].Stamp, 1e-8)
		for j := range orig.Values {
			if math.IsNaN(orig.Values[j]) {
				assert.True(t, math.IsNaN(back[i].Values[j]), "record %d column %d", i, j)
			} else {
				assert.Equal(t, orig.Values[j], back[i].Values[j], "record %d column %d", i, j)
			}
		}
	}
}

func TestNaNRecordShape(t *testing.T) {
	r := NaNRecord(3, 7)
	assert.Len(t, r.Values, 12)
	for _, v := range r.Values {
		assert.True(t, math.IsNaN(v))
	}
}
