package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/provision/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath selects a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens its own empty database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// The migrate instance is not closed: closing it would close s.db.
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

const installationColumns = `id, location, state, digest, size, priority, installed_at, last_modified, started_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstallation(row rowScanner) (*Installation, error) {
	inst := &Installation{}
	err := row.Scan(
		&inst.ID,
		&inst.Location,
		&inst.State,
		&inst.Digest,
		&inst.Size,
		&inst.Priority,
		&inst.InstalledAt,
		&inst.LastModified,
		&inst.StartedAt,
	)
	return inst, err
}

// CreateInstallation records a new installation.
func (s *SQLiteStore) CreateInstallation(ctx context.Context, inst *Installation) error {
	if err := inst.State.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO installations (` + installationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		inst.ID,
		inst.Location,
		inst.State,
		inst.Digest,
		inst.Size,
		inst.Priority,
		inst.InstalledAt.UTC(),
		inst.LastModified.UTC(),
		inst.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create installation: %w", err)
	}

	return nil
}

// GetInstallation retrieves an installation by ID
func (s *SQLiteStore) GetInstallation(ctx context.Context, id string) (*Installation, error) {
	query := `SELECT ` + installationColumns + ` FROM installations WHERE id = ?`

	inst, err := scanInstallation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("installation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}

	return inst, nil
}

// GetInstallationByLocation retrieves the installation of location.
func (s *SQLiteStore) GetInstallationByLocation(ctx context.Context, location string) (*Installation, error) {
	query := `SELECT ` + installationColumns + ` FROM installations WHERE location = ?`

	inst, err := scanInstallation(s.db.QueryRowContext(ctx, query, location))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("installation of %s: %w", location, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}

	return inst, nil
}

// ListInstallations lists installations ordered by priority then install time.
// A nil state lists every installation; a limit of 0 means no limit.
func (s *SQLiteStore) ListInstallations(ctx context.Context, state *engine.State, limit, offset int) ([]*Installation, error) {
	query := `SELECT ` + installationColumns + ` FROM installations
		WHERE (? IS NULL OR state = ?)
		ORDER BY COALESCE(priority, 0), installed_at, id
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, state, state, sqlLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list installations: %w", err)
	}
	defer rows.Close()

	installations := []*Installation{}
	for rows.Next() {
		inst, err := scanInstallation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installation: %w", err)
		}
		installations = append(installations, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installations: %w", err)
	}

	return installations, nil
}

// UpdateInstallationContent records refreshed artifact bytes.
func (s *SQLiteStore) UpdateInstallationContent(ctx context.Context, id, digest string, size int64, modified time.Time) error {
	query := `UPDATE installations SET digest = ?, size = ?, last_modified = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, digest, size, modified.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update installation content: %w", err)
	}

	return expectRow(result, "installation", id)
}

// UpdateInstallationState moves an installation to state. Entering the
// started state records at as the start time.
func (s *SQLiteStore) UpdateInstallationState(ctx context.Context, id string, state engine.State, at time.Time) error {
	if err := state.Validate(); err != nil {
		return err
	}
	var startedAt *time.Time
	if state == engine.StateStarted {
		t := at.UTC()
		startedAt = &t
	}

	query := `UPDATE installations SET state = ?, started_at = COALESCE(?, started_at) WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, state, startedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update installation state: %w", err)
	}

	return expectRow(result, "installation", id)
}

// UpdateInstallationPriority sets the run priority of an installation.
func (s *SQLiteStore) UpdateInstallationPriority(ctx context.Context, id string, priority int) error {
	result, err := s.db.ExecContext(ctx, `UPDATE installations SET priority = ? WHERE id = ?`, priority, id)
	if err != nil {
		return fmt.Errorf("failed to update installation priority: %w", err)
	}

	return expectRow(result, "installation", id)
}

// DeleteInstallation removes an installation
func (s *SQLiteStore) DeleteInstallation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM installations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete installation: %w", err)
	}

	return expectRow(result, "installation", id)
}

const resolutionColumns = `id, spec, status, artifact_count, artifacts, properties, error, started_at, completed_at`

func scanResolution(row rowScanner) (*Resolution, error) {
	res := &Resolution{}
	err := row.Scan(
		&res.ID,
		&res.Spec,
		&res.Status,
		&res.ArtifactCount,
		&res.Artifacts,
		&res.Properties,
		&res.Error,
		&res.StartedAt,
		&res.CompletedAt,
	)
	return res, err
}

// CreateResolution records the start of a resolution run
func (s *SQLiteStore) CreateResolution(ctx context.Context, res *Resolution) error {
	if res.Status == "" {
		res.Status = ResolutionStatusRunning
	}
	if res.Artifacts == "" {
		res.Artifacts = "[]"
	}
	if res.Properties == "" {
		res.Properties = "{}"
	}
	query := `INSERT INTO resolutions (` + resolutionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		res.ID,
		res.Spec,
		res.Status,
		res.ArtifactCount,
		res.Artifacts,
		res.Properties,
		res.Error,
		res.StartedAt.UTC(),
		res.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create resolution: %w", err)
	}

	return nil
}

// CompleteResolution stores the final status, artifacts and error of a run.
func (s *SQLiteStore) CompleteResolution(ctx context.Context, res *Resolution) error {
	if res.CompletedAt == nil {
		now := time.Now().UTC()
		res.CompletedAt = &now
	}
	query := `
		UPDATE resolutions
		SET status = ?, artifact_count = ?, artifacts = ?, properties = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		res.Status,
		res.ArtifactCount,
		orDefault(res.Artifacts, "[]"),
		orDefault(res.Properties, "{}"),
		res.Error,
		res.CompletedAt.UTC(),
		res.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete resolution: %w", err)
	}

	return expectRow(result, "resolution", res.ID)
}

// GetResolution retrieves a resolution by ID
func (s *SQLiteStore) GetResolution(ctx context.Context, id string) (*Resolution, error) {
	query := `SELECT ` + resolutionColumns + ` FROM resolutions WHERE id = ?`

	res, err := scanResolution(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolution %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution: %w", err)
	}

	return res, nil
}

// ListResolutions lists resolutions, newest first.
func (s *SQLiteStore) ListResolutions(ctx context.Context, limit, offset int) ([]*Resolution, error) {
	query := `SELECT ` + resolutionColumns + ` FROM resolutions ORDER BY started_at DESC, id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, sqlLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}
	defer rows.Close()

	resolutions := []*Resolution{}
	for rows.Next() {
		res, err := scanResolution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		resolutions = append(resolutions, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolutions: %w", err)
	}

	return resolutions, nil
}

// AppendEvent appends an event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	query := `
		INSERT INTO events (id, resolution_id, type, source, level, location, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.ResolutionID,
		event.Type,
		event.Source,
		event.Level,
		event.Location,
		event.Message,
		event.Details,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// GetEvents retrieves events in append order.
func (s *SQLiteStore) GetEvents(ctx context.Context, q EventQuery) ([]*Event, error) {
	query := `
		SELECT id, resolution_id, type, source, level, location, message, details, timestamp
		FROM events
		WHERE (? = '' OR resolution_id = ?)
		  AND (? = '' OR location = ?)
		  AND (? = '' OR level = ?)
		ORDER BY seq
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		q.ResolutionID, q.ResolutionID,
		q.Location, q.Location,
		string(q.Level), string(q.Level),
		sqlLimit(q.Limit), q.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.ResolutionID,
			&event.Type,
			&event.Source,
			&event.Level,
			&event.Location,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func expectRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// sqlLimit maps 0 to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
