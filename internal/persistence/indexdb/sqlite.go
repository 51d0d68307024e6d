// Package indexdb keeps a queryable sqlite index of plan telemetry. The zstd
// plan logs stay the source of truth; the index may drop events under load.
package indexdb

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelmind.ai/internal/ai/telemetry"
	"voxelmind.ai/internal/sim/catalogs"
	"voxelmind.ai/internal/sim/tuning"
)

var ErrClosed = errors.New("index closed")

const DefaultQueueSize = 65536

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusAborted   = "aborted"
)

type SQLiteIndex struct {
	db     *sql.DB
	logger *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
	written atomic.Uint64
}

type req struct {
	event telemetry.Event
	flush chan struct{}
}

type Stats struct {
	Written       uint64
	Dropped       uint64
	QueueDepth    int
	QueueCapacity int
}

type Options struct {
	QueueSize int
	Logger    *log.Logger
}

func OpenSQLite(path string, opts Options) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
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

	s := &SQLiteIndex{
		db:     db,
		logger: opts.Logger,
		ch:     make(chan req, opts.QueueSize),
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
		`CREATE TABLE IF NOT EXISTS plans (
			plan_id TEXT PRIMARY KEY,
			agent INTEGER NOT NULL,
			root TEXT NOT NULL,
			steps_json TEXT NOT NULL,
			score REAL NOT NULL,
			status TEXT NOT NULL,
			found_ms INTEGER NOT NULL,
			ended_ms INTEGER,
			failed_step TEXT,
			outcome TEXT,
			unsupported INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_plans_agent_found ON plans(agent, found_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);`,
		`CREATE TABLE IF NOT EXISTS steps (
			plan_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			step TEXT NOT NULL,
			at_ms INTEGER NOT NULL,
			PRIMARY KEY (plan_id, seq)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Emit queues e for the writer goroutine. Events are dropped when the queue
// is full.
func (s *SQLiteIndex) Emit(e telemetry.Event) {
	if s == nil || s.closed.Load() || e.PlanID == "" {
		return
	}
	select {
	case s.ch <- req{event: e}:
	default:
		s.dropped.Add(1)
	}
}

// Flush waits until every event queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{flush: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		Written:       s.written.Load(),
		Dropped:       s.dropped.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
}

// UpsertCatalogs records the configuration the run was started with.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if cats != nil {
		sets := make([]catalogs.BehaviorSet, 0, len(cats.Sets.ByID))
		for _, bs := range cats.Sets.ByID {
			sets = append(sets, bs)
		}
		slices.SortFunc(sets, func(a, b catalogs.BehaviorSet) int { return cmp.Compare(a.ID, b.ID) })
		if b, err := json.Marshal(sets); err == nil {
			rows = append(rows, kv{name: "behavior_sets", digest: cats.Sets.Digest, json: b})
		}
		arch := make([]catalogs.Archetype, 0, len(cats.Archetypes.IDs))
		for _, id := range cats.Archetypes.IDs {
			arch = append(arch, cats.Archetypes.ByID[id])
		}
		if b, err := json.Marshal(arch); err == nil {
			rows = append(rows, kv{name: "archetypes", digest: cats.Archetypes.Digest, json: b})
		}
	}
	if b, err := json.Marshal(tune); err == nil {
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = time.Second
		stepSeq       = map[string]int{}
	)

	begin := func() bool {
		if tx != nil {
			return true
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.logger.Printf("indexdb begin: %v", err)
			return false
		}
		tx = txx
		opCount = 0
		return true
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.logger.Printf("indexdb commit: %v", err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.flush != nil {
			commit()
			close(r.flush)
			continue
		}
		if !begin() {
			s.dropped.Add(1)
			continue
		}
		if err := s.apply(tx, r.event, stepSeq); err != nil {
			s.logger.Printf("indexdb plan=%s kind=%s: %v", r.event.PlanID, r.event.Kind, err)
			s.dropped.Add(1)
			continue
		}
		s.written.Add(1)
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}

func (s *SQLiteIndex) apply(tx *sql.Tx, e telemetry.Event, stepSeq map[string]int) error {
	switch e.Kind {
	case telemetry.PlanFound:
		steps, err := json.Marshal(e.Steps)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT OR REPLACE INTO plans(plan_id,agent,root,steps_json,score,status,found_ms) VALUES(?,?,?,?,?,?,?)`,
			e.PlanID, int64(e.Agent), e.Root, string(steps), e.Score, StatusRunning, e.AtMS)
		return err

	case telemetry.StepCompleted:
		seq := stepSeq[e.PlanID]
		stepSeq[e.PlanID] = seq + 1
		_, err := tx.Exec(`INSERT OR REPLACE INTO steps(plan_id,seq,step,at_ms) VALUES(?,?,?,?)`,
			e.PlanID, seq, e.Step, e.AtMS)
		return err

	case telemetry.PlanFailed:
		delete(stepSeq, e.PlanID)
		_, err := tx.Exec(`UPDATE plans SET status=?, ended_ms=?, failed_step=?, outcome=?, unsupported=? WHERE plan_id=?`,
			StatusFailed, e.AtMS, e.Step, e.Outcome, e.Unsupported, e.PlanID)
		return err

	case telemetry.PlanAborted:
		delete(stepSeq, e.PlanID)
		_, err := tx.Exec(`UPDATE plans SET status=?, ended_ms=?, outcome=? WHERE plan_id=?`,
			StatusAborted, e.AtMS, e.Outcome, e.PlanID)
		return err

	case telemetry.PlanCompleted:
		delete(stepSeq, e.PlanID)
		_, err := tx.Exec(`UPDATE plans SET status=?, ended_ms=? WHERE plan_id=?`,
			StatusCompleted, e.AtMS, e.PlanID)
		return err
	}
	return fmt.Errorf("unknown event kind %q", e.Kind)
}
