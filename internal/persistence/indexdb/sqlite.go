package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"parkcraft.ai/internal/persistence/snapshot"
	"parkcraft.ai/internal/sim/catalogs"
	"parkcraft.ai/internal/sim/dispatch"
	"parkcraft.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index of the replay log. Writes are
// queued to a single writer goroutine and dropped when it falls behind; the
// replay log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropAction   atomic.Uint64
	dropReject   atomic.Uint64
	dropSnapshot atomic.Uint64
}

var (
	_ dispatch.Sink           = (*SQLiteIndex)(nil)
	_ dispatch.RejectObserver = (*SQLiteIndex)(nil)
)

type reqKind int

const (
	reqAction reqKind = iota + 1
	reqReject
	reqSnapshot
)

type req struct {
	kind reqKind

	action   dispatch.ReplayEntry
	reject   dispatch.Rejection
	snapshot snapshotRow
}

type snapshotRow struct {
	Seq      uint32
	Tick     uint32
	Path     string
	Digest   string
	Rides    int
	Guests   int
	Elements int
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropActionTotal   uint64
	DropRejectTotal   uint64
	DropSnapshotTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
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

func openDB(path string) (*sql.DB, error) {
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
	return db, nil
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
		`CREATE TABLE IF NOT EXISTS actions (
			seq INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			kind INTEGER NOT NULL,
			kind_name TEXT NOT NULL,
			player INTEGER NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL,
			cost INTEGER NOT NULL,
			digest TEXT NOT NULL,
			params BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_player_tick ON actions(player, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_kind ON actions(kind_name, status);`,
		`CREATE TABLE IF NOT EXISTS rejects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			player INTEGER NOT NULL,
			kind_name TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL,
			args_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rejects_player_tick ON rejects(player, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			rides INTEGER NOT NULL,
			guests INTEGER NOT NULL,
			elements INTEGER NOT NULL
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

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropActionTotal:   s.dropAction.Load(),
		DropRejectTotal:   s.dropReject.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

// Record implements dispatch.Sink. It never fails; a full queue drops.
func (s *SQLiteIndex) Record(e dispatch.ReplayEntry) error {
	s.enqueue(req{kind: reqAction, action: e}, &s.dropAction)
	return nil
}

func (s *SQLiteIndex) Rejected(r dispatch.Rejection) error {
	s.enqueue(req{kind: reqReject, reject: r}, &s.dropReject)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	elements := 0
	for _, c := range snap.Columns {
		elements += len(c.Elements)
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Seq:      snap.Header.Seq,
		Tick:     snap.Header.Tick,
		Path:     path,
		Digest:   snap.Header.Digest,
		Rides:    len(snap.Rides),
		Guests:   len(snap.Guests),
		Elements: elements,
	}}, &s.dropSnapshot)
}

// UpsertCatalogs stores the catalogs and tuning the park runs with, so an
// index can be matched to the configuration that produced it. It shares the
// single connection with the writer, so call it before the first Record.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
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
	if b, err := os.ReadFile(filepath.Join(configDir, "track_pieces.json")); err == nil {
		rows = append(rows, kv{name: "track_pieces", digest: cats.Tracks.Digest, json: b})
	}
	if b, err := os.ReadFile(filepath.Join(configDir, "ride_types.json")); err == nil {
		rows = append(rows, kv{name: "ride_types", digest: cats.Rides.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1'),('catalog_digest',?)`, cats.Digest()); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(seq,tick,kind,kind_name,player,status,message,cost,digest,params) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertReject, _ := s.db.Prepare(`INSERT INTO rejects(tick,player,kind_name,status,message,args_json) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(seq,tick,path,digest,rides,guests,elements) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAction, insertReject, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
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
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()
	for {
		var r req
		select {
		case <-ticker.C:
			// Idle parks still get their tail committed.
			commit()
			continue
		case next, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = next
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAction:
			a := r.action
			exec(insertAction, int64(a.Seq), int64(a.Tick), int64(a.Kind), a.KindName, int64(a.Player),
				a.Status, a.Message, a.Cost, a.Digest, a.Params)
		case reqReject:
			rj := r.reject
			args, _ := json.Marshal(rj.Result.Args)
			exec(insertReject, int64(rj.Tick), int64(rj.Player), rj.Kind.String(),
				rj.Result.Status.String(), string(rj.Result.Message), string(args))
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Seq), int64(sn.Tick), sn.Path, sn.Digest, sn.Rides, sn.Guests, sn.Elements)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
}
