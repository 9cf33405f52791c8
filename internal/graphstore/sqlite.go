package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/xspider/internal/model"
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "xspider.db"

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// Options configures SQLiteStore behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if needed.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so readers do not block the
	// crawler's writes.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the store in dbDir.
func Open(dbDir string, opts Options) (*SQLiteStore, error) {
	dbPath := filepath.Join(dbDir, DatabaseFile)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, dbPath: dbPath, now: time.Now}

	// busy_timeout comes first so that concurrent opens wait for each
	// other instead of failing the journal mode switch.
	if _, err := db.ExecContext(context.Background(), "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	schema := `
	-- Accounts discovered by the crawler
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		followers_count INTEGER NOT NULL DEFAULT 0,
		following_count INTEGER NOT NULL DEFAULT 0,
		is_seed INTEGER NOT NULL DEFAULT 0,
		depth INTEGER NOT NULL,
		first_seen_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_handle ON nodes(handle);
	CREATE INDEX IF NOT EXISTS idx_nodes_depth ON nodes(depth);

	-- Follow relations: source follows target
	CREATE TABLE IF NOT EXISTS edges (
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		discovered_at TEXT NOT NULL,
		PRIMARY KEY (source_id, target_id)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

	-- Latest ranking run, replaced wholesale
	CREATE TABLE IF NOT EXISTS rankings (
		node_id TEXT PRIMARY KEY,
		handle TEXT NOT NULL DEFAULT '',
		authority REAL NOT NULL,
		in_degree INTEGER NOT NULL,
		out_degree INTEGER NOT NULL,
		followers_count INTEGER NOT NULL,
		seed_followers INTEGER NOT NULL,
		hidden REAL NOT NULL,
		category TEXT NOT NULL,
		rank INTEGER NOT NULL,
		computed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rankings_rank ON rankings(rank);

	-- Crawl run summaries
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT '',
		seeds TEXT NOT NULL DEFAULT '[]',
		max_depth INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		pending_at_stop INTEGER NOT NULL DEFAULT 0,
		stopped INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	-- Per-node failures within a run
	CREATE TABLE IF NOT EXISTS node_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		cause TEXT NOT NULL,
		failed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_failures_run ON node_failures(run_id);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// UpsertNode implements Store.
func (s *SQLiteStore) UpsertNode(ctx context.Context, n model.Node) error {
	if err := validateNode(n); err != nil {
		return err
	}
	now := s.now().UTC()
	firstSeen := n.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = now
	}

	// depth and first_seen_at are left alone on conflict.
	query := `
	INSERT INTO nodes (id, handle, display_name, followers_count, following_count, is_seed, depth, first_seen_at, updated_at)
	VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9)
	ON CONFLICT(id) DO UPDATE SET
		handle = CASE WHEN ?10 THEN excluded.handle ELSE nodes.handle END,
		display_name = CASE WHEN ?10 THEN excluded.display_name ELSE nodes.display_name END,
		followers_count = CASE WHEN ?10 THEN excluded.followers_count ELSE nodes.followers_count END,
		following_count = CASE WHEN ?10 THEN excluded.following_count ELSE nodes.following_count END,
		is_seed = MAX(nodes.is_seed, excluded.is_seed),
		updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID,
		n.Handle,
		n.DisplayName,
		n.FollowersCount,
		n.FollowingCount,
		boolToInt(n.IsSeed),
		n.Depth,
		formatTimestamp(firstSeen),
		formatTimestamp(now),
		boolToInt(n.HasProfile()),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", n.ID, err)
	}
	return nil
}

// UpsertEdge implements Store.
func (s *SQLiteStore) UpsertEdge(ctx context.Context, e model.Edge) error {
	if err := validateEdge(e); err != nil {
		return err
	}
	discovered := e.DiscoveredAt
	if discovered.IsZero() {
		discovered = s.now().UTC()
	}

	query := `
	INSERT INTO edges (source_id, target_id, discovered_at)
	VALUES (?, ?, ?)
	ON CONFLICT(source_id, target_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, e.SourceID, e.TargetID, formatTimestamp(discovered)); err != nil {
		return fmt.Errorf("failed to upsert edge %s->%s: %w", e.SourceID, e.TargetID, err)
	}
	return nil
}

const nodeColumns = `id, handle, display_name, followers_count, following_count, is_seed, depth, first_seen_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (model.Node, error) {
	var (
		n         model.Node
		isSeed    int
		firstSeen string
	)
	if err := row.Scan(&n.ID, &n.Handle, &n.DisplayName, &n.FollowersCount, &n.FollowingCount, &isSeed, &n.Depth, &firstSeen); err != nil {
		return model.Node{}, err
	}
	n.IsSeed = isSeed != 0
	n.FirstSeenAt = parseTimestamp(firstSeen)
	return n, nil
}

// Node implements Store.
func (s *SQLiteStore) Node(ctx context.Context, id string) (model.Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Node{}, ErrNodeNotFound
	}
	if err != nil {
		return model.Node{}, fmt.Errorf("failed to get node %s: %w", id, err)
	}
	return n, nil
}

// Nodes implements Store.
func (s *SQLiteStore) Nodes(ctx context.Context) ([]model.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var out []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Edges implements Store.
func (s *SQLiteStore) Edges(ctx context.Context) ([]model.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, target_id, discovered_at FROM edges ORDER BY source_id, target_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var out []model.Edge
	for rows.Next() {
		var (
			e          model.Edge
			discovered string
		)
		if err := rows.Scan(&e.SourceID, &e.TargetID, &discovered); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.DiscoveredAt = parseTimestamp(discovered)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Graph implements Store.
func (s *SQLiteStore) Graph(ctx context.Context) (*Graph, error) {
	nodes, err := s.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := s.Edges(ctx)
	if err != nil {
		return nil, err
	}
	return NewGraph(nodes, edges), nil
}

// ReplaceRankings implements Store.
func (s *SQLiteStore) ReplaceRankings(ctx context.Context, records []model.RankingRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM rankings`); err != nil {
		return fmt.Errorf("failed to clear rankings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO rankings (node_id, handle, authority, in_degree, out_degree, followers_count, seed_followers, hidden, category, rank, computed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ranking insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.NodeID,
			r.Handle,
			r.Authority,
			r.InDegree,
			r.OutDegree,
			r.FollowersCount,
			r.SeedFollowers,
			r.Hidden,
			string(r.Category),
			r.Rank,
			formatTimestamp(r.ComputedAt),
		); err != nil {
			return fmt.Errorf("failed to insert ranking for %s: %w", r.NodeID, err)
		}
	}
	return tx.Commit()
}

// Rankings implements Store.
func (s *SQLiteStore) Rankings(ctx context.Context) ([]model.RankingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT node_id, handle, authority, in_degree, out_degree, followers_count, seed_followers, hidden, category, rank, computed_at
	FROM rankings ORDER BY rank, node_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rankings: %w", err)
	}
	defer rows.Close()

	var out []model.RankingRecord
	for rows.Next() {
		var (
			r        model.RankingRecord
			category string
			computed string
		)
		if err := rows.Scan(&r.NodeID, &r.Handle, &r.Authority, &r.InDegree, &r.OutDegree,
			&r.FollowersCount, &r.SeedFollowers, &r.Hidden, &category, &r.Rank, &computed); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		r.Category = model.Category(category)
		r.ComputedAt = parseTimestamp(computed)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordFailure implements Store.
func (s *SQLiteStore) RecordFailure(ctx context.Context, f FailureRecord) error {
	failedAt := f.FailedAt
	if failedAt.IsZero() {
		failedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO node_failures (run_id, node_id, cause, failed_at) VALUES (?, ?, ?, ?)`,
		f.RunID, f.NodeID, f.Cause, formatTimestamp(failedAt))
	if err != nil {
		return fmt.Errorf("failed to record failure for %s: %w", f.NodeID, err)
	}
	return nil
}

// Failures implements Store.
func (s *SQLiteStore) Failures(ctx context.Context, runID string) ([]FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, node_id, cause, failed_at FROM node_failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var out []FailureRecord
	for rows.Next() {
		var (
			f        FailureRecord
			failedAt string
		)
		if err := rows.Scan(&f.RunID, &f.NodeID, &f.Cause, &failedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.FailedAt = parseTimestamp(failedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveRun implements Store.
func (s *SQLiteStore) SaveRun(ctx context.Context, r RunRecord) error {
	seeds, err := json.Marshal(r.Seeds)
	if err != nil {
		return fmt.Errorf("failed to serialize seeds: %w", err)
	}

	finished := ""
	if !r.FinishedAt.IsZero() {
		finished = formatTimestamp(r.FinishedAt)
	}

	query := `
	INSERT INTO crawl_runs (id, started_at, finished_at, seeds, max_depth, completed, failed, pending_at_stop, stopped, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		completed = excluded.completed,
		failed = excluded.failed,
		pending_at_stop = excluded.pending_at_stop,
		stopped = excluded.stopped,
		error = excluded.error
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID,
		formatTimestamp(r.StartedAt),
		finished,
		string(seeds),
		r.MaxDepth,
		r.Completed,
		r.Failed,
		r.PendingAtStop,
		boolToInt(r.Stopped),
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}
	return nil
}

// Runs implements Store.
func (s *SQLiteStore) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, started_at, finished_at, seeds, max_depth, completed, failed, pending_at_stop, stopped, error
	FROM crawl_runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r                 RunRecord
			started, finished string
			seeds             string
			stopped           int
		)
		if err := rows.Scan(&r.ID, &started, &finished, &seeds, &r.MaxDepth,
			&r.Completed, &r.Failed, &r.PendingAtStop, &stopped, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTimestamp(started)
		r.FinishedAt = parseTimestamp(finished)
		r.Stopped = stopped != 0
		if err := json.Unmarshal([]byte(seeds), &r.Seeds); err != nil {
			return nil, fmt.Errorf("failed to parse seeds of run %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Counts implements Store.
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	query := `
	SELECT
		(SELECT COUNT(*) FROM nodes),
		(SELECT COUNT(*) FROM edges),
		(SELECT COUNT(*) FROM rankings),
		(SELECT COUNT(*) FROM crawl_runs)
	`
	if err := s.db.QueryRowContext(ctx, query).Scan(&c.Nodes, &c.Edges, &c.Rankings, &c.Runs); err != nil {
		return Counts{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats are tried in order when reading timestamps back.
// SQLite's CURRENT_TIMESTAMP format is accepted for rows written by hand.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
