// Package postgres implements the §6 Persistence Contract: durable CRUD
// on Goal/Job/Pattern and append-only episodic-memory writes, backed by
// pgx/v5's connection pool with golang-migrate-managed schema, following
// codeready-toolchain-tarsy's context-first, JSONB-column style for its
// Postgres-backed service.
package postgres

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver, used only to drive migrations
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

// Store implements core.Storage against a Postgres database.
type Store struct {
	pool   *pgxpool.Pool
	logger core.Logger
}

// Config configures connection and migration behavior.
type Config struct {
	DSN            string
	MigrationsPath string // file:// source directory, e.g. "storage/postgres/migrations"
	Logger         core.Logger
}

// Open connects to Postgres and applies any pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("storage/postgres")
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, core.NewFrameworkError("postgres.Open", "storage", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, core.NewFrameworkError("postgres.Open", "storage", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}

	if cfg.MigrationsPath != "" {
		if err := runMigrations(cfg.DSN, cfg.MigrationsPath); err != nil {
			pool.Close()
			return nil, core.NewFrameworkError("postgres.Open", "storage", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
	}

	logger.Info("postgres store ready", nil)
	return &Store{pool: pool, logger: logger}, nil
}

// runMigrations drives golang-migrate through a short-lived database/sql
// connection (the pgx stdlib driver registered above), separate from the
// pgxpool.Pool used for application queries, following
// codeready-toolchain-tarsy's pkg/database/client.go pattern of handing
// golang-migrate a *sql.DB rather than the application's own pool.
func runMigrations(dsn, migrationsPath string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("building postgres migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("building migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() { s.pool.Close() }

// --- GoalStore ---------------------------------------------------------

func (s *Store) SaveGoal(ctx context.Context, goal *core.Goal) error {
	data, err := json.Marshal(goal)
	if err != nil {
		return core.NewFrameworkErrorWithID("postgres.SaveGoal", "goal", goal.ID, fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO goals (id, tenant_id, status, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET status = $3, data = $4, updated_at = $6
	`, goal.ID, goal.TenantID, string(goal.Status), data, goal.CreatedAt, goal.UpdatedAt)
	if err != nil {
		return core.NewFrameworkErrorWithID("postgres.SaveGoal", "goal", goal.ID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return nil
}

func (s *Store) GetGoal(ctx context.Context, tenantID, id string) (*core.Goal, error) {
	row := s.pool.QueryRow(ctx, `SELECT data FROM goals WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, core.NewFrameworkErrorWithID("postgres.GetGoal", "goal", id, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	var goal core.Goal
	if err := json.Unmarshal(data, &goal); err != nil {
		return nil, core.NewFrameworkErrorWithID("postgres.GetGoal", "goal", id, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return &goal, nil
}

func (s *Store) ListGoals(ctx context.Context, tenantID string, status core.GoalStatus) ([]*core.Goal, error) {
	var rows pgx.Rows
	var err error
	if status == "" {
		rows, err = s.pool.Query(ctx, `SELECT data FROM goals WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT data FROM goals WHERE tenant_id = $1 AND status = $2 ORDER BY created_at`, tenantID, string(status))
	}
	if err != nil {
		return nil, core.NewFrameworkError("postgres.ListGoals", "goal", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	defer rows.Close()

	var out []*core.Goal
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, core.NewFrameworkError("postgres.ListGoals", "goal", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
		var goal core.Goal
		if err := json.Unmarshal(data, &goal); err != nil {
			return nil, core.NewFrameworkError("postgres.ListGoals", "goal", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
		out = append(out, &goal)
	}
	return out, rows.Err()
}

// --- JobStore ------------------------------------------------------------

func (s *Store) SaveJob(ctx context.Context, job *core.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return core.NewFrameworkErrorWithID("postgres.SaveJob", "job", job.ID, fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, tenant_id, goal_ref, status, data, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET status = $4, data = $5
	`, job.ID, job.TenantID, job.GoalRef, string(job.Status), data, job.EnqueuedAt)
	if err != nil {
		return core.NewFrameworkErrorWithID("postgres.SaveJob", "job", job.ID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*core.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT data FROM jobs WHERE id = $1`, id)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, core.NewFrameworkErrorWithID("postgres.GetJob", "job", id, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	var job core.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, core.NewFrameworkErrorWithID("postgres.GetJob", "job", id, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return &job, nil
}

// --- PatternStore ----------------------------------------------------------

func (s *Store) SavePattern(ctx context.Context, pattern *core.Pattern) error {
	data, err := json.Marshal(pattern)
	if err != nil {
		return core.NewFrameworkErrorWithID("postgres.SavePattern", "pattern", pattern.PatternID, fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO patterns (pattern_id, tenant_id, signature, data, last_used_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, pattern_id) DO UPDATE SET data = $4, last_used_at = $5
	`, pattern.PatternID, patternTenant(pattern), pattern.Signature, data, pattern.LastUsedAt)
	if err != nil {
		return core.NewFrameworkErrorWithID("postgres.SavePattern", "pattern", pattern.PatternID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return nil
}

// patternTenant extracts the tenant id embedded in the signature by the
// Learning Store ("tenantID/goalClass::normalized_description" scoping is
// applied at the Store layer, not on core.Pattern itself), falling back to
// the literal signature when no separator is present.
func patternTenant(p *core.Pattern) string {
	for i := 0; i < len(p.Signature); i++ {
		if p.Signature[i] == '/' {
			return p.Signature[:i]
		}
	}
	return p.Signature
}

func (s *Store) GetPattern(ctx context.Context, tenantID, signature string) (*core.Pattern, error) {
	row := s.pool.QueryRow(ctx, `SELECT data FROM patterns WHERE tenant_id = $1 AND signature = $2`, tenantID, signature)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, core.NewFrameworkError("postgres.GetPattern", "pattern", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	var pattern core.Pattern
	if err := json.Unmarshal(data, &pattern); err != nil {
		return nil, core.NewFrameworkError("postgres.GetPattern", "pattern", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return &pattern, nil
}

func (s *Store) ListPatterns(ctx context.Context, tenantID string) ([]*core.Pattern, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM patterns WHERE tenant_id = $1 ORDER BY last_used_at DESC`, tenantID)
	if err != nil {
		return nil, core.NewFrameworkError("postgres.ListPatterns", "pattern", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	defer rows.Close()

	var out []*core.Pattern
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, core.NewFrameworkError("postgres.ListPatterns", "pattern", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
		var pattern core.Pattern
		if err := json.Unmarshal(data, &pattern); err != nil {
			return nil, core.NewFrameworkError("postgres.ListPatterns", "pattern", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
		out = append(out, &pattern)
	}
	return out, rows.Err()
}

func (s *Store) DeletePattern(ctx context.Context, tenantID, patternID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM patterns WHERE tenant_id = $1 AND pattern_id = $2`, tenantID, patternID)
	if err != nil {
		return core.NewFrameworkErrorWithID("postgres.DeletePattern", "pattern", patternID, fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return nil
}

// --- EpisodicStore ---------------------------------------------------------

// AppendEpisodic writes one episodic entry. The (tenant_id, goal_id, seq)
// primary key rejects any caller that tries to reuse a sequence number,
// turning a monotonicity bug in the caller into a loud persistence error
// instead of silent data loss.
func (s *Store) AppendEpisodic(ctx context.Context, tenantID, goalID string, entry core.EpisodicEntry) error {
	data, err := json.Marshal(entry.Payload)
	if err != nil {
		return core.NewFrameworkError("postgres.AppendEpisodic", "episodic", fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}
	ts := entry.Ts
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO episodic_entries (tenant_id, goal_id, seq, kind, payload, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tenantID, goalID, entry.Seq, string(entry.Kind), data, ts)
	if err != nil {
		return core.NewFrameworkError("postgres.AppendEpisodic", "episodic", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	return nil
}

func (s *Store) ListEpisodic(ctx context.Context, tenantID, goalID string, sinceSeq int64) ([]core.EpisodicEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, kind, payload, ts FROM episodic_entries
		WHERE tenant_id = $1 AND goal_id = $2 AND seq > $3
		ORDER BY seq ASC
	`, tenantID, goalID, sinceSeq)
	if err != nil {
		return nil, core.NewFrameworkError("postgres.ListEpisodic", "episodic", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
	}
	defer rows.Close()

	var out []core.EpisodicEntry
	for rows.Next() {
		var (
			seq     int64
			kind    string
			payload []byte
			ts      time.Time
		)
		if err := rows.Scan(&seq, &kind, &payload, &ts); err != nil {
			return nil, core.NewFrameworkError("postgres.ListEpisodic", "episodic", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
		var decoded interface{}
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, core.NewFrameworkError("postgres.ListEpisodic", "episodic", fmt.Errorf("%w: %v", core.ErrInfrastructure, err))
		}
		out = append(out, core.EpisodicEntry{Seq: seq, Kind: core.MemoryEntryKind(kind), Payload: decoded, Ts: ts})
	}
	return out, rows.Err()
}

var _ core.Storage = (*Store)(nil)
