package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"factorygrid.ai/internal/persistence/snapshot"
	"factorygrid.ai/internal/sim/catalogs"
	"factorygrid.ai/internal/sim/factory"
)

// ErrNoSave is returned by LoadLayout when a slot has never been saved.
var ErrNoSave = errors.New("no save for slot")

// SQLiteStore keeps save slots (synchronous) and a secondary tick/audit index
// written by a background goroutine.
type SQLiteStore struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick  atomic.Uint64
	dropAudit atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
)

type req struct {
	kind reqKind

	tick  factory.TickLogEntry
	audit factory.AuditEntry
}

// SaveInfo describes one stored layout.
type SaveInfo struct {
	ID            string    `json:"id"`
	Slot          string    `json:"slot"`
	Tick          uint64    `json:"tick"`
	Cells         int       `json:"cells"`
	CatalogDigest string    `json:"catalog_digest,omitempty"`
	SavedAt       time.Time `json:"saved_at"`
}

// QueueStats reports the async writer queue.
type QueueStats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropTickTotal  uint64 `json:"drop_tick_total"`
	DropAuditTotal uint64 `json:"drop_audit_total"`
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			id TEXT PRIMARY KEY,
			slot TEXT NOT NULL,
			tick INTEGER NOT NULL,
			cells INTEGER NOT NULL,
			catalog_digest TEXT NOT NULL,
			layout_json TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			seq INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saves_slot_seq ON saves(slot, seq);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			elapsed REAL NOT NULL,
			duration_us INTEGER NOT NULL,
			exported INTEGER NOT NULL,
			delivered INTEGER NOT NULL,
			discarded INTEGER NOT NULL,
			fell_off INTEGER NOT NULL,
			handed_off INTEGER NOT NULL,
			cells INTEGER NOT NULL,
			in_flight INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			kind TEXT,
			code TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos_tick ON audits(x, y, tick);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordTick queues a tick for the index. Entries are dropped (and counted) when
// the writer falls behind; the JSONL tick log stays the source of truth.
func (s *SQLiteStore) RecordTick(entry factory.TickLogEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
}

func (s *SQLiteStore) RecordAudit(entry factory.AuditEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
}

func (s *SQLiteStore) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropTickTotal:  s.dropTick.Load(),
		DropAuditTotal: s.dropAudit.Load(),
	}
}

// UpsertCatalog stores the recipe definitions the server runs with.
func (s *SQLiteStore) UpsertCatalog(ctx context.Context, cat *catalogs.Catalog) error {
	if s == nil || cat == nil {
		return nil
	}
	b, err := json.Marshal(cat.Defs())
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"recipes", cat.Digest, string(b), now)
	return err
}

// SaveLayout stores a new save for slot. Older saves are kept.
func (s *SQLiteStore) SaveLayout(ctx context.Context, slot string, tick uint64, catalogDigest string, l snapshot.Layout) (SaveInfo, error) {
	if slot == "" {
		return SaveInfo{}, fmt.Errorf("empty slot")
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return SaveInfo{}, err
	}
	info := SaveInfo{
		ID:            uuid.NewString(),
		Slot:          slot,
		Tick:          tick,
		Cells:         len(l),
		CatalogDigest: catalogDigest,
		SavedAt:       time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO saves(id,slot,tick,cells,catalog_digest,layout_json,saved_at,seq)
		VALUES(?,?,?,?,?,?,?,(SELECT COALESCE(MAX(seq),0)+1 FROM saves))`,
		info.ID, info.Slot, int64(info.Tick), info.Cells, info.CatalogDigest, string(raw),
		info.SavedAt.Format(time.RFC3339Nano))
	if err != nil {
		return SaveInfo{}, err
	}
	return info, nil
}

// LoadLayout returns the most recent save for slot. Stored entries go through the
// same tolerant decoding as layout files.
func (s *SQLiteStore) LoadLayout(ctx context.Context, slot string) (SaveInfo, snapshot.Layout, []snapshot.Dropped, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,slot,tick,cells,catalog_digest,saved_at,layout_json
		FROM saves WHERE slot=? ORDER BY seq DESC LIMIT 1`, slot)
	var (
		info    SaveInfo
		tick    int64
		savedAt string
		raw     string
	)
	if err := row.Scan(&info.ID, &info.Slot, &tick, &info.Cells, &info.CatalogDigest, &savedAt, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SaveInfo{}, nil, nil, fmt.Errorf("%w: %q", ErrNoSave, slot)
		}
		return SaveInfo{}, nil, nil, err
	}
	info.Tick = uint64(tick)
	info.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
	l, dropped, err := snapshot.DecodeJSON([]byte(raw))
	if err != nil {
		return info, nil, nil, err
	}
	return info, l, dropped, nil
}

// ListSaves returns every save, newest first.
func (s *SQLiteStore) ListSaves(ctx context.Context) ([]SaveInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,slot,tick,cells,catalog_digest,saved_at FROM saves ORDER BY seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SaveInfo
	for rows.Next() {
		var (
			info    SaveInfo
			tick    int64
			savedAt string
		)
		if err := rows.Scan(&info.ID, &info.Slot, &tick, &info.Cells, &info.CatalogDigest, &savedAt); err != nil {
			return nil, err
		}
		info.Tick = uint64(tick)
		info.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,elapsed,duration_us,exported,delivered,discarded,fell_off,handed_off,cells,in_flight,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,x,y,kind,code,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			if insertTick == nil {
				continue
			}
			raw, _ := json.Marshal(t)
			if _, err := tx.Stmt(insertTick).Exec(
				int64(t.Tick), t.Digest, t.Elapsed, t.DurationUS,
				t.Exported, t.Delivered, t.Discarded, t.FellOff, t.HandedOff,
				t.Cells, t.InFlight, string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqAudit:
			a := r.audit
			if insertAudit == nil {
				continue
			}
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			if _, err := tx.Stmt(insertAudit).Exec(
				int64(a.Tick), seq, a.Actor, a.Action, a.X, a.Y, a.Kind, a.Code, string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		// Commit when idle so synchronous save queries never wait on the
		// batch transaction (the pool holds a single connection).
		if len(s.ch) == 0 || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
