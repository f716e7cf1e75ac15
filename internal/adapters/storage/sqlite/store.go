package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/core/ports"

	_ "modernc.org/sqlite"
)

var _ ports.Store = (*Store)(nil)

// Store implements ports.Store using modernc.org/sqlite (pure Go).
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates a SQLite database at the given path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers, which is what the port
	// allocation transaction relies on.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		id           TEXT PRIMARY KEY,
		filename     TEXT NOT NULL DEFAULT '',
		content_path TEXT NOT NULL,
		fingerprint  TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS container_records (
		resource_id   TEXT PRIMARY KEY,
		unique_name   TEXT NOT NULL UNIQUE,
		host_port     INTEGER NOT NULL UNIQUE,
		needs_rebuild INTEGER NOT NULL DEFAULT 1,
		built_at      TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS port_allocator (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		high_water INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Resource operations

func (s *Store) GetResource(ctx context.Context, id string) (*domain.Resource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, content_path, fingerprint, source, created_at, updated_at
		 FROM resources WHERE id = ?`, id)
	res, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, id)
	}
	return res, err
}

func (s *Store) ListResources(ctx context.Context) ([]*domain.Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, content_path, fingerprint, source, created_at, updated_at
		 FROM resources ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []*domain.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}

// SaveResource inserts or replaces a resource.
func (s *Store) SaveResource(ctx context.Context, res *domain.Resource) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resources (id, filename, content_path, fingerprint, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   filename = excluded.filename,
		   content_path = excluded.content_path,
		   fingerprint = excluded.fingerprint,
		   source = excluded.source,
		   updated_at = excluded.updated_at`,
		res.ID, res.Filename, res.ContentPath, res.Fingerprint, res.Source,
		formatTime(res.CreatedAt), formatTime(res.UpdatedAt),
	)
	return err
}

func (s *Store) DeleteResource(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	return err
}

// Container record operations

const recordColumns = `resource_id, unique_name, host_port, needs_rebuild, built_at, created_at, updated_at`

func (s *Store) GetRecord(ctx context.Context, resourceID string) (*domain.ContainerRecord, error) {
	return getRecord(ctx, s.db, resourceID)
}

func (s *Store) ListRecords(ctx context.Context) ([]*domain.ContainerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM container_records ORDER BY host_port`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.ContainerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CreateRecord reads the port usage, allocates and inserts inside one transaction.
func (s *Store) CreateRecord(ctx context.Context, resourceID, uniqueName string, allocate ports.AllocateFunc) (*domain.ContainerRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT resource_id FROM container_records WHERE resource_id = ?`, resourceID).Scan(&owner)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateRecord, resourceID)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	err = tx.QueryRowContext(ctx, `SELECT resource_id FROM container_records WHERE unique_name = ?`, uniqueName).Scan(&owner)
	if err == nil {
		return nil, fmt.Errorf("%w: %s (owned by %s)", domain.ErrNameInUse, uniqueName, owner)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	usage, err := portUsage(ctx, tx)
	if err != nil {
		return nil, err
	}
	port, err := allocate(usage)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &domain.ContainerRecord{
		ResourceID:   resourceID,
		UniqueName:   uniqueName,
		HostPort:     port,
		NeedsRebuild: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO container_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ResourceID, rec.UniqueName, rec.HostPort, rec.NeedsRebuild,
		formatTime(rec.BuiltAt), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO port_allocator (id, high_water) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET high_water = excluded.high_water`, port,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) UpdateRecord(ctx context.Context, resourceID string, fn func(*domain.ContainerRecord) error) (*domain.ContainerRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rec, err := getRecord(ctx, tx, resourceID)
	if err != nil {
		return nil, err
	}
	orig := *rec
	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.UniqueName = orig.UniqueName
	rec.HostPort = orig.HostPort
	rec.CreatedAt = orig.CreatedAt
	rec.UpdatedAt = s.now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE container_records SET needs_rebuild = ?, built_at = ?, updated_at = ? WHERE resource_id = ?`,
		rec.NeedsRebuild, formatTime(rec.BuiltAt), formatTime(rec.UpdatedAt), resourceID,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	rec.ResourceID = resourceID
	return rec, nil
}

func (s *Store) DeleteRecord(ctx context.Context, resourceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM container_records WHERE resource_id = ?`, resourceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, resourceID)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func getRecord(ctx context.Context, q queryer, resourceID string) (*domain.ContainerRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM container_records WHERE resource_id = ?`, resourceID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, resourceID)
	}
	return rec, err
}

func portUsage(ctx context.Context, tx *sql.Tx) (ports.PortUsage, error) {
	var usage ports.PortUsage

	var highWater sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT high_water FROM port_allocator WHERE id = 1`).Scan(&highWater)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return usage, err
	}
	if highWater.Valid {
		usage.Allocated = true
		usage.HighWater = int(highWater.Int64)
	}

	var maxLive sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(host_port) FROM container_records`).Scan(&maxLive); err != nil {
		return usage, err
	}
	if maxLive.Valid && (!usage.Allocated || int(maxLive.Int64) > usage.HighWater) {
		usage.Allocated = true
		usage.HighWater = int(maxLive.Int64)
	}
	return usage, nil
}

func scanRecord(row scanner) (*domain.ContainerRecord, error) {
	var (
		rec                       domain.ContainerRecord
		builtAt, created, updated string
	)
	if err := row.Scan(&rec.ResourceID, &rec.UniqueName, &rec.HostPort, &rec.NeedsRebuild,
		&builtAt, &created, &updated); err != nil {
		return nil, err
	}
	rec.BuiltAt = parseTime(builtAt)
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}

func scanResource(row scanner) (*domain.Resource, error) {
	var (
		res              domain.Resource
		created, updated string
	)
	if err := row.Scan(&res.ID, &res.Filename, &res.ContentPath, &res.Fingerprint, &res.Source,
		&created, &updated); err != nil {
		return nil, err
	}
	res.CreatedAt = parseTime(created)
	res.UpdatedAt = parseTime(updated)
	return &res, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
