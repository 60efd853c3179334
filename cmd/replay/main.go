package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "factorygrid.ai/internal/persistence/log"
	"factorygrid.ai/internal/persistence/snapshot"
	"factorygrid.ai/internal/sim/catalogs"
	"factorygrid.ai/internal/sim/factory"
	"factorygrid.ai/internal/sim/factory/logic/direction"
	"factorygrid.ai/internal/sim/tuning"
)

func main() {
	var (
		layoutPath = flag.String("layout", "", "path to .layout.zst to start from (default: empty grid at tick 0)")
		dataDir    = flag.String("data", "./data", "runtime data directory holding ticks/ and audit/")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml used by the server (grid bounds, catalog)")
		catalog    = flag.String("catalog", "", "recipes JSON file (default: tuning catalog_path, else built-in)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	catPath := *catalog
	if catPath == "" {
		catPath = tune.CatalogPath
	}
	cats, err := loadCatalog(catPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalog:", err)
		os.Exit(1)
	}

	e, err := factory.New(tune.EngineConfig(), cats, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}
	if *layoutPath != "" {
		f, _, err := snapshot.ReadFile(*layoutPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read layout:", err)
			os.Exit(1)
		}
		if f.Header.CatalogDigest != "" && f.Header.CatalogDigest != cats.Digest {
			fmt.Fprintln(os.Stderr, "warning: layout was saved with a different catalog")
		}
		if _, err := e.Restore(f.Layout); err != nil {
			fmt.Fprintln(os.Stderr, "restore:", err)
			os.Exit(1)
		}
		if err := e.ResumeAt(f.Header.Tick); err != nil {
			fmt.Fprintln(os.Stderr, "resume:", err)
			os.Exit(1)
		}
		fmt.Printf("layout v%d tick=%d cells=%d\n", f.Header.Version, f.Header.Tick, len(f.Layout))
	}
	if err := e.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(1)
	}

	startTick := e.CurrentTick()
	edits, err := loadEdits(filepath.Join(*dataDir, "audit"), startTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "audit:", err)
		os.Exit(1)
	}
	files, err := persistlog.ListFiles(filepath.Join(*dataDir, "ticks"), "ticks")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", filepath.Join(*dataDir, "ticks"))
		os.Exit(1)
	}

	r := &replayer{e: e, edits: edits, startTick: startTick, verifyFrom: *fromTick, toTick: *toTick}
	if r.verifyFrom == 0 {
		r.verifyFrom = startTick + 1
	}
	for _, path := range files {
		done, err := r.replayFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		if done {
			break
		}
	}
	fmt.Printf("replay ok: checked=%d ticks edits=%d (from tick=%d)\n", r.checked, r.applied, startTick)
}

func loadCatalog(path string) (*catalogs.Catalog, error) {
	if path == "" {
		return catalogs.Builtin(nil)
	}
	return catalogs.Load(path)
}

// loadEdits returns the successful edits recorded at or after tick from, in log
// order. Refused edits never touched the grid and are skipped.
func loadEdits(dir string, from uint64) ([]factory.AuditEntry, error) {
	files, err := persistlog.ListFiles(dir, "audit")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []factory.AuditEntry
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(raw json.RawMessage) error {
			var a factory.AuditEntry
			if err := json.Unmarshal(raw, &a); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if a.Code == "" && a.Tick >= from {
				out = append(out, a)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type replayer struct {
	e          *factory.Engine
	edits      []factory.AuditEntry
	startTick  uint64
	verifyFrom uint64
	toTick     uint64

	checked uint64
	applied int
}

// replayFile steps the engine through one tick file. It reports true once toTick
// has been reached.
func (r *replayer) replayFile(path string) (bool, error) {
	done := false
	err := persistlog.ReadJSONL(path, func(raw json.RawMessage) error {
		if done {
			return nil
		}
		var entry factory.TickLogEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if entry.Tick <= r.startTick {
			return nil
		}
		if r.toTick != 0 && entry.Tick > r.toTick {
			done = true
			return nil
		}
		return r.step(entry, filepath.Base(path))
	})
	return done, err
}

func (r *replayer) step(entry factory.TickLogEntry, file string) error {
	cur := r.e.CurrentTick()
	if entry.Tick != cur+1 {
		return fmt.Errorf("tick gap: want=%d got=%d (file=%s)", cur+1, entry.Tick, file)
	}
	for len(r.edits) > 0 && r.edits[0].Tick <= cur {
		a := r.edits[0]
		r.edits = r.edits[1:]
		if err := r.apply(a); err != nil {
			return fmt.Errorf("edit at tick %d (%s %d,%d): %w", a.Tick, a.Action, a.X, a.Y, err)
		}
	}
	sum, ok := r.e.Tick(entry.Elapsed)
	if !ok {
		return fmt.Errorf("tick %d not executed (elapsed %g)", entry.Tick, entry.Elapsed)
	}
	if sum.Tick >= r.verifyFrom {
		r.checked++
		if got := r.e.StateDigest(); got != entry.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", sum.Tick, got, entry.Digest)
		}
	}
	return nil
}

func (r *replayer) apply(a factory.AuditEntry) error {
	dir := factory.DefaultDirection
	if a.Direction != "" {
		d, ok := direction.Parse(a.Direction)
		if !ok {
			return fmt.Errorf("bad direction %q", a.Direction)
		}
		dir = d
	}
	_, err := r.e.Apply(factory.Edit{Action: a.Action, X: a.X, Y: a.Y, Kind: a.Kind, Dir: dir})
	if err == nil {
		r.applied++
	}
	return err
}
