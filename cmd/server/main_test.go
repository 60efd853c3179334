package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"factorygrid.ai/internal/persistence/indexdb"
	"factorygrid.ai/internal/sim/catalogs"
	"factorygrid.ai/internal/sim/factory"
	"factorygrid.ai/internal/sim/factory/logic/direction"
)

func newServerTestEngine(t *testing.T) *factory.Engine {
	t.Helper()
	cats, err := catalogs.Builtin(nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	e, err := factory.New(factory.Config{}, cats, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	if got := latestSnapshot(dir); got != "" {
		t.Fatalf("empty dir: got %q", got)
	}
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"9.layout.zst", "120.layout.zst", "30.layout.zst", "999.snap.zst", "x.layout.zst"} {
		if err := os.WriteFile(filepath.Join(snaps, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got, want := latestSnapshot(dir), filepath.Join(snaps, "120.layout.zst"); got != want {
		t.Fatalf("latest: got %q want %q", got, want)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:5000":     true,
		"10.0.0.4:5000":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}

func TestLoadCatalogFallsBackToBuiltin(t *testing.T) {
	cats, err := loadCatalog(t.TempDir(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := cats.Recipe("square"); !ok {
		t.Fatalf("builtin catalog missing square")
	}
}

func TestSaveThenRestoreFromFile(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)

	src := newServerTestEngine(t)
	if err := src.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := src.Place(0, 0, "square", direction.Down); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := src.Place(0, 1, "conveyor", direction.Down); err != nil {
		t.Fatalf("place: %v", err)
	}
	saver := &layoutSaver{e: src, dataDir: dir, logger: logger}
	if _, err := saver.save(context.Background(), "test"); err != nil {
		t.Fatalf("save: %v", err)
	}

	dst := newServerTestEngine(t)
	if err := restore(dst, nil, "default", "", true, dir, "", logger); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if n := dst.CellCount(); n != 2 {
		t.Fatalf("restored cells: got %d want 2", n)
	}
	c, ok := dst.GetCell(0, 1)
	if !ok || c.Kind != "conveyor" || c.Direction != direction.Down {
		t.Fatalf("conveyor not restored: %+v ok=%v", c, ok)
	}
}

func TestRestorePrefersSaveSlot(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)
	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index", "factory.sqlite"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()

	src := newServerTestEngine(t)
	if err := src.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := src.Place(2, 2, "square", direction.Left); err != nil {
		t.Fatalf("place: %v", err)
	}
	saver := &layoutSaver{e: src, idx: idx, slot: "main", dataDir: dir, logger: logger}
	if _, err := saver.save(context.Background(), "test"); err != nil {
		t.Fatalf("save: %v", err)
	}

	dst := newServerTestEngine(t)
	if err := restore(dst, idx, "main", "", false, dir, "", logger); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if c, ok := dst.GetCell(2, 2); !ok || c.Direction != direction.Left {
		t.Fatalf("square not restored from slot: %+v ok=%v", c, ok)
	}

	empty := newServerTestEngine(t)
	if err := restore(empty, idx, "other", "", false, dir, "", logger); err != nil {
		t.Fatalf("restore missing slot: %v", err)
	}
	if n := empty.CellCount(); n != 0 {
		t.Fatalf("missing slot should start empty, got %d cells", n)
	}
}

func TestRestoreResumesTick(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)

	src := newServerTestEngine(t)
	if err := src.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, ok := src.Tick(1); !ok {
			t.Fatalf("tick %d not executed", i)
		}
	}
	saver := &layoutSaver{e: src, dataDir: dir, logger: logger}
	if _, err := saver.save(context.Background(), "test"); err != nil {
		t.Fatalf("save: %v", err)
	}

	dst := newServerTestEngine(t)
	if err := restore(dst, nil, "default", filepath.Join(dir, "snapshots", "5.layout.zst"), false, dir, "", logger); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := dst.CurrentTick(); got != 5 {
		t.Fatalf("tick: got %d want 5", got)
	}
}
