package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorygrid.ai/internal/sim/factory"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "ticks")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	require.NoError(t, w.Write(map[string]int{"n": 1}))
	require.NoError(t, w.Write(map[string]int{"n": 2}))
	assert.Equal(t, 2, w.Lines())
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, w.Write(map[string]int{"n": 3}))
	assert.Equal(t, 1, w.Lines())
	require.NoError(t, w.Close())

	count := func(name string) []int {
		var out []int
		err := ReadJSONL(filepath.Join(dir, name), func(raw json.RawMessage) error {
			var v map[string]int
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			out = append(out, v["n"])
			return nil
		})
		require.NoError(t, err)
		return out
	}
	assert.Equal(t, []int{1, 2}, count("ticks-2026-03-01-10.jsonl.zst"))
	assert.Equal(t, []int{3}, count("ticks-2026-03-01-11.jsonl.zst"))
}

func TestJSONLZstdWriter_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	fixed := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	for i := 1; i <= 2; i++ {
		w := NewJSONLZstdWriter(dir, "audit")
		w.now = fixed
		require.NoError(t, w.Write(map[string]int{"n": i}))
		require.NoError(t, w.Close())
	}
	var got int
	err := ReadJSONL(filepath.Join(dir, "audit-2026-03-01-10.jsonl.zst"), func(json.RawMessage) error {
		got++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestTickLogger_WritesEntries(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	require.NoError(t, l.WriteTick(factory.TickLogEntry{Tick: 7, Exported: 2, Digest: "d"}))
	require.NoError(t, l.Close())

	files, err := filepath.Glob(filepath.Join(dir, "ticks", "ticks-*.jsonl.zst"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	var entries []factory.TickLogEntry
	require.NoError(t, ReadJSONL(files[0], func(raw json.RawMessage) error {
		var e factory.TickLogEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	}))
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(7), entries[0].Tick)
	assert.Equal(t, 2, entries[0].Exported)
}

func TestReadJSONL_MissingFile(t *testing.T) {
	err := ReadJSONL(filepath.Join(t.TempDir(), "nope.jsonl.zst"), func(json.RawMessage) error { return nil })
	assert.True(t, os.IsNotExist(err))
}

func TestListFiles_SortedByHour(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"ticks-2026-03-01-11.jsonl.zst",
		"ticks-2026-02-28-23.jsonl.zst",
		"audit-2026-03-01-10.jsonl.zst",
		"ticks-notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "ticks-dir.jsonl.zst"), 0o755))

	files, err := ListFiles(dir, "ticks")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "ticks-2026-02-28-23.jsonl.zst"),
		filepath.Join(dir, "ticks-2026-03-01-11.jsonl.zst"),
	}, files)

	_, err = ListFiles(filepath.Join(dir, "missing"), "ticks")
	assert.Error(t, err)
}
