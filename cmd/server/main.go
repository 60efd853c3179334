package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"factorygrid.ai/internal/metrics"
	"factorygrid.ai/internal/persistence/archive"
	"factorygrid.ai/internal/persistence/indexdb"
	persistlog "factorygrid.ai/internal/persistence/log"
	"factorygrid.ai/internal/persistence/snapshot"
	"factorygrid.ai/internal/sim/catalogs"
	"factorygrid.ai/internal/sim/factory"
	"factorygrid.ai/internal/sim/tuning"
	"factorygrid.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		slot       = flag.String("slot", "default", "save slot used for restore and autosave")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (save slots + tick/audit rows)")

		layoutPath = flag.String("layout", "", "path to a .layout.zst file to restore (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "restore the latest layout file from the data dir when no save slot exists")

		allowRemote = flag.Bool("allow_remote_observers", false, "accept observer connections from non-loopback addresses")
		enablePprof = flag.Bool("pprof", false, "serve /debug/pprof")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
		if _, err := os.Stat(tp); err != nil {
			tp = ""
		}
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	cats, err := loadCatalog(*configDir, tune.CatalogPath)
	if err != nil {
		logger.Fatalf("load catalog: %v", err)
	}
	logger.Printf("catalog: kinds=%d buildable=%v digest=%s", len(cats.Kinds()), cats.Buildable(), short(cats.Digest))

	e, err := factory.New(tune.EngineConfig(), cats, log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	_ = os.MkdirAll(*dataDir, 0o755)
	idx, err := openIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalog(context.Background(), cats); err != nil {
			logger.Printf("index catalog: %v", err)
		}
	}

	if err := restore(e, idx, *slot, *layoutPath, *loadLatest, *dataDir, cats.Digest, logger); err != nil {
		logger.Fatalf("restore: %v", err)
	}
	if err := e.Start(); err != nil {
		logger.Fatalf("start: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLogger := persistlog.NewTickLogger(*dataDir)
	defer tickLogger.Close()
	auditLogger := persistlog.NewAuditLogger(*dataDir)
	defer auditLogger.Close()

	src := metrics.Sources{DroppedTicks: func() uint64 { return e.Stats().DroppedTicks }}
	if idx != nil {
		src.IndexDrops = func() (uint64, uint64) {
			s := idx.Stats()
			return s.DropTickTotal, s.DropAuditTotal
		}
	}
	mc := metrics.New(src)

	obsSrv := observer.NewServer(e, log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds), observer.Options{
		CommandRate:     tune.Observer.CommandRate,
		CommandBurst:    tune.Observer.CommandBurst,
		MaxSessions:     tune.Observer.MaxSessions,
		PushEveryFrames: tune.Observer.PushEveryFrames,
		AllowRemote:     *allowRemote,
		Metrics:         mc,
		Audit: func(entry factory.AuditEntry) {
			if err := auditLogger.WriteAudit(entry); err != nil {
				logger.Printf("audit log: %v", err)
			}
			if idx != nil {
				idx.RecordAudit(entry)
			}
		},
	})

	saver := &layoutSaver{
		e:             e,
		idx:           idx,
		slot:          *slot,
		dataDir:       *dataDir,
		catalogDigest: cats.Digest,
		keep:          tune.Persistence.KeepSnapshots,
		logger:        logger,
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		err := e.Run(ctx, func(sum factory.TickSummary) {
			mc.ObserveTick(sum)
			obsSrv.Publish(sum)
			entry := factory.NewTickLogEntry(sum)
			if err := tickLogger.WriteTick(entry); err != nil {
				logger.Printf("tick log: %v", err)
			}
			if idx != nil {
				idx.RecordTick(entry)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("engine run: %v", err)
		}
	}()

	go func() {
		t := time.NewTicker(tune.AutosaveInterval())
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				saver.save(ctx, "autosave")
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", mc.Handler())
	mux.HandleFunc("/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/observer/ws", obsSrv.WSHandler())
	mux.HandleFunc("/debug/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"lifecycle": e.Lifecycle().String(),
			"tick":      e.CurrentTick(),
			"stats":     e.Stats(),
			"digest":    e.StateDigest(),
			"observers": obsSrv.SessionIDs(),
		})
	})
	mux.HandleFunc("/debug/save", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel2()
		tick, err := saver.save(ctx2, "manual")
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
	})
	if *enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (grid %dx%d, %d Hz)", *addr, tune.Grid.Width, tune.Grid.Height, tune.Sim.FrameRateHz)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	<-runDone
	ctx3, cancel3 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel3()
	saver.save(ctx3, "shutdown")
}

func loadCatalog(configDir, path string) (*catalogs.Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		def := filepath.Join(configDir, "recipes.json")
		if _, err := os.Stat(def); err != nil {
			return catalogs.Builtin(nil)
		}
		path = def
	}
	return catalogs.Load(path)
}

// restore applies, in order: an explicit layout file, the save slot, the latest
// layout file under <data>/snapshots.
func restore(e *factory.Engine, idx *indexdb.SQLiteStore, slot, layoutPath string, loadLatest bool, dataDir, catalogDigest string, logger *log.Logger) error {
	var (
		l      snapshot.Layout
		tick   uint64
		source string
	)
	switch {
	case layoutPath != "":
		f, dropped, err := snapshot.ReadFile(layoutPath)
		if err != nil {
			return err
		}
		logDropped(logger, layoutPath, dropped)
		warnDigest(logger, catalogDigest, f.Header.CatalogDigest)
		l, tick, source = f.Layout, f.Header.Tick, layoutPath
	default:
		if idx != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			info, sl, dropped, err := idx.LoadLayout(ctx, slot)
			cancel()
			switch {
			case err == nil:
				logDropped(logger, "slot "+slot, dropped)
				warnDigest(logger, catalogDigest, info.CatalogDigest)
				l, tick, source = sl, info.Tick, "slot "+slot+" ("+info.ID+")"
			case errors.Is(err, indexdb.ErrNoSave):
			default:
				return err
			}
		}
		if l == nil && loadLatest {
			if p := latestSnapshot(dataDir); p != "" {
				f, dropped, err := snapshot.ReadFile(p)
				if err != nil {
					return err
				}
				logDropped(logger, p, dropped)
				warnDigest(logger, catalogDigest, f.Header.CatalogDigest)
				l, tick, source = f.Layout, f.Header.Tick, p
			}
		}
	}
	if l == nil {
		logger.Printf("starting with an empty grid")
		return nil
	}
	rep, err := e.Restore(l)
	if err != nil {
		return err
	}
	if err := e.ResumeAt(tick); err != nil {
		return err
	}
	logger.Printf("restored %d cells at tick %d from %s (dropped %d)", rep.Restored, tick, source, len(rep.Dropped))
	return nil
}

func logDropped(logger *log.Logger, source string, dropped []snapshot.Dropped) {
	for _, d := range dropped {
		logger.Printf("%s: drop %q: %s", source, d.Key, d.Reason)
	}
}

func warnDigest(logger *log.Logger, want, got string) {
	if got != "" && got != want {
		logger.Printf("layout was saved with catalog %s, running %s", short(got), short(want))
	}
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

type layoutSaver struct {
	e             *factory.Engine
	idx           *indexdb.SQLiteStore
	slot          string
	dataDir       string
	catalogDigest string
	keep          int
	logger        *log.Logger
}

// save writes <data>/snapshots/<tick>.layout.zst and, when the index is open, the
// save slot.
func (s *layoutSaver) save(ctx context.Context, reason string) (uint64, error) {
	tick, l := s.e.LayoutAt()
	dir := filepath.Join(s.dataDir, "snapshots")
	path := filepath.Join(dir, strconv.FormatUint(tick, 10)+".layout.zst")
	f := snapshot.File{
		Header: snapshot.Header{
			Version:       snapshot.Version,
			Tick:          tick,
			CatalogDigest: s.catalogDigest,
			SavedAt:       time.Now().UTC(),
		},
		Layout: l,
	}
	if err := snapshot.WriteFile(path, f); err != nil {
		s.logger.Printf("%s: write %s: %v", reason, path, err)
		return tick, err
	}
	if dst, ok, err := archive.ArchiveDaily(s.dataDir, path, f); err != nil {
		s.logger.Printf("%s: archive: %v", reason, err)
	} else if ok {
		s.logger.Printf("%s: archived %s", reason, dst)
	}
	if s.keep > 0 {
		if _, err := archive.PruneLayouts(dir, s.keep); err != nil {
			s.logger.Printf("%s: prune: %v", reason, err)
		}
	}
	if s.idx != nil {
		info, err := s.idx.SaveLayout(ctx, s.slot, tick, s.catalogDigest, l)
		if err != nil {
			s.logger.Printf("%s: save slot %s: %v", reason, s.slot, err)
			return tick, err
		}
		s.logger.Printf("%s: tick=%d cells=%d slot=%s id=%s", reason, tick, info.Cells, s.slot, info.ID)
		return tick, nil
	}
	s.logger.Printf("%s: tick=%d cells=%d path=%s", reason, tick, len(l), path)
	return tick, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(dataDir string) string {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if !strings.HasSuffix(name, ".layout.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".layout.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
