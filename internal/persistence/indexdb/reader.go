package indexdb

import (
	"context"
	"database/sql"
	"errors"
)

// Reader runs queries against an index written by SQLiteIndex.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

type ActionRow struct {
	Seq      uint32
	Tick     uint32
	KindName string
	Player   uint32
	Status   string
	Message  string
	Cost     int64
	Digest   string
}

type KindSummary struct {
	KindName string
	Status   string
	Count    int64
	Cost     int64
}

type PlayerSummary struct {
	Player   uint32
	Actions  int64
	Cost     int64
	LastTick uint32
}

// Actions lists indexed actions in seq order. player 0 means every player.
func (r *Reader) Actions(ctx context.Context, player uint32, limit int) ([]ActionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT seq,tick,kind_name,player,status,message,cost,digest FROM actions`
	args := []any{}
	if player != 0 {
		q += ` WHERE player = ?`
		args = append(args, int64(player))
	}
	q += ` ORDER BY seq LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActionRow
	for rows.Next() {
		var a ActionRow
		if err := rows.Scan(&a.Seq, &a.Tick, &a.KindName, &a.Player, &a.Status, &a.Message, &a.Cost, &a.Digest); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Reader) ByKind(ctx context.Context) ([]KindSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT kind_name,status,COUNT(*),COALESCE(SUM(cost),0)
		FROM actions GROUP BY kind_name,status ORDER BY kind_name,status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []KindSummary
	for rows.Next() {
		var k KindSummary
		if err := rows.Scan(&k.KindName, &k.Status, &k.Count, &k.Cost); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *Reader) ByPlayer(ctx context.Context) ([]PlayerSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT player,COUNT(*),COALESCE(SUM(cost),0),MAX(tick)
		FROM actions WHERE status = 'ok' GROUP BY player ORDER BY player`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlayerSummary
	for rows.Next() {
		var p PlayerSummary
		if err := rows.Scan(&p.Player, &p.Actions, &p.Cost, &p.LastTick); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Reader) RejectCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rejects`).Scan(&n)
	return n, err
}

// LatestSnapshot returns the path of the newest indexed snapshot.
func (r *Reader) LatestSnapshot(ctx context.Context) (path string, seq uint32, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT path,seq FROM snapshots ORDER BY seq DESC LIMIT 1`).Scan(&path, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	return path, seq, err
}

func (r *Reader) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}
