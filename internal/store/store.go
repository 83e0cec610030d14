package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Jojodayolo/testforge/internal/crawler"
	"github.com/Jojodayolo/testforge/internal/engine"
	"github.com/Jojodayolo/testforge/internal/model"
)

// Verify at compile time that Store implements all interfaces.
var (
	_ JobReader              = (*Store)(nil)
	_ JobWriter              = (*Store)(nil)
	_ JobClaimer             = (*Store)(nil)
	_ PageReader             = (*Store)(nil)
	_ GenerationReader       = (*Store)(nil)
	_ crawler.RecordSink     = (*Store)(nil)
	_ engine.IdentityStore   = (*Store)(nil)
	_ engine.SessionRecorder = (*Store)(nil)
	_ engine.GenerationStore = (*Store)(nil)
)

// ErrNotRetryable is returned by RetryJob when the job is not FAILED.
var ErrNotRetryable = errors.New("job is not in a retryable state")

// Store provides data access to the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// currentSchemaVersion is bumped whenever the schema changes.
// Add a new migration function in the migrations slice below.
const currentSchemaVersion = 3

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// Index 0 = migration from v0 to v1, etc.
	migrations := []func() error{
		s.migrateV1, // v0 → v1: pages and jobs
		s.migrateV2, // v1 → v2: sessions, turns and generations
		s.migrateV3, // v2 → v3: backend identities
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) migrateV1() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS pages (
		url              TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		title            TEXT NOT NULL,
		meta_description TEXT NOT NULL DEFAULT '',
		headings         TEXT NOT NULL,
		links            TEXT NOT NULL,
		images           TEXT NOT NULL,
		body_text        TEXT NOT NULL,
		crawled_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pages_name ON pages(name);

	CREATE TABLE IF NOT EXISTS jobs (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		target     TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		summary    TEXT,
		error_info TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);
	`)
	return err
}

func (s *Store) migrateV2() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		backend      TEXT NOT NULL,
		artifact_ref TEXT NOT NULL,
		status       TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		signal     TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (session_id, seq)
	);

	CREATE TABLE IF NOT EXISTS generations (
		id               TEXT PRIMARY KEY,
		job_id           TEXT REFERENCES jobs(id),
		artifact_name    TEXT NOT NULL,
		requirement_name TEXT NOT NULL,
		page_name        TEXT NOT NULL,
		test_url         TEXT NOT NULL,
		status           TEXT NOT NULL,
		session_id       TEXT,
		turn_count       INTEGER NOT NULL DEFAULT 0,
		output           TEXT NOT NULL DEFAULT '',
		code             TEXT NOT NULL DEFAULT '',
		output_path      TEXT NOT NULL DEFAULT '',
		error_info       TEXT,
		created_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_generations_job ON generations(job_id, created_at);
	`)
	return err
}

func (s *Store) migrateV3() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS identities (
		backend       TEXT PRIMARY KEY,
		persona_id    TEXT NOT NULL,
		artifact_refs TEXT NOT NULL,
		created_at    TEXT NOT NULL
	);
	`)
	return err
}

// ---------------------------------------------------------------------------
// Pages
// ---------------------------------------------------------------------------

// UpsertPage stores a page record, replacing an earlier record for the same URL.
func (s *Store) UpsertPage(ctx context.Context, p model.PageRecord) error {
	headings, err := json.Marshal(p.Headings)
	if err != nil {
		return fmt.Errorf("encode headings: %w", err)
	}
	links, err := json.Marshal(nonNil(p.Links))
	if err != nil {
		return fmt.Errorf("encode links: %w", err)
	}
	images, err := json.Marshal(nonNil(p.Images))
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pages (url, name, title, meta_description, headings, links, images, body_text, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			name = excluded.name,
			title = excluded.title,
			meta_description = excluded.meta_description,
			headings = excluded.headings,
			links = excluded.links,
			images = excluded.images,
			body_text = excluded.body_text,
			crawled_at = excluded.crawled_at`,
		p.URL, p.Name, p.Title, p.MetaDescription, string(headings), string(links), string(images), p.Text, p.CrawledAt,
	)
	return err
}

const pageColumns = `url, name, title, meta_description, headings, links, images, body_text, crawled_at`

// GetPage returns the page record for url.
func (s *Store) GetPage(ctx context.Context, url string) (*model.PageRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE url = ?`, url)
	return scanPage(row)
}

// ListPages returns all page records ordered by name.
func (s *Store) ListPages(ctx context.Context) ([]model.PageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pageColumns+` FROM pages ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []model.PageRecord
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *p)
	}
	return pages, rows.Err()
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

const jobColumns = `id, kind, target, status, summary, error_info, created_at, updated_at`

// CreateJob inserts a new job.
func (s *Store) CreateJob(ctx context.Context, job model.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Kind, job.Target, job.Status, job.Summary, job.ErrorInfo, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// GetJob returns a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Store) ListJobs(ctx context.Context, f model.JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var conditions []string
	var args []interface{}

	if len(f.Status) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(f.Status))+")")
		for _, st := range f.Status {
			args = append(args, st)
		}
	}
	if len(f.Kind) > 0 {
		conditions = append(conditions, "kind IN ("+placeholders(len(f.Kind))+")")
		for _, k := range f.Kind {
			args = append(args, k)
		}
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// CountJobs returns the number of jobs in each status.
func (s *Store) CountJobs(ctx context.Context) (JobCounts, error) {
	var c JobCounts
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM jobs`, model.JobQueued, model.JobRunning, model.JobDone, model.JobFailed)
	err := row.Scan(&c.Queued, &c.Running, &c.Done, &c.Failed)
	return c, err
}

// UpdateJobStatus changes the status of a job and records its summary and
// error info.
func (s *Store) UpdateJobStatus(ctx context.Context, id, newStatus string, summary, errorInfo *string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, summary = ?, error_info = ?, updated_at = ? WHERE id = ?`,
		newStatus, summary, errorInfo, now, id)
	return err
}

// RetryJob re-queues a FAILED job. It returns sql.ErrNoRows for an unknown id
// and ErrNotRetryable when the job is not FAILED.
func (s *Store) RetryJob(ctx context.Context, id string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !job.CanRetry() {
		return ErrNotRetryable
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, summary = NULL, error_info = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		model.JobQueued, now, id, model.JobFailed)
	return err
}

// ClaimNextQueued atomically picks the oldest QUEUED job and sets it to RUNNING.
// Returns nil if no job is available.
func (s *Store) ClaimNextQueued(ctx context.Context) (*model.Job, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1)
		RETURNING `+jobColumns,
		model.JobRunning, now, model.JobQueued,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// ResetStaleRunning resets any RUNNING jobs back to QUEUED (for server restart).
func (s *Store) ResetStaleRunning(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`, model.JobQueued, now, model.JobRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// SaveSession stores a session and replaces its turns.
func (s *Store) SaveSession(ctx context.Context, sess *model.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, backend, artifact_ref, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at`,
		sess.ID, sess.Backend, sess.ArtifactRef, string(sess.Status), now,
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO turns (session_id, seq, role, content, signal) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare turn insert: %w", err)
	}
	defer stmt.Close()
	for i, t := range sess.Turns {
		if _, err := stmt.ExecContext(ctx, sess.ID, i, string(t.Role), t.RawContent, string(t.Signal)); err != nil {
			return fmt.Errorf("insert turn %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetSession returns a recorded session with its turns in order.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT id, backend, artifact_ref, status FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Backend, &sess.ArtifactRef, &status)
	if err != nil {
		return nil, err
	}
	sess.Status = model.SessionStatus(status)

	turns, err := s.listTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns
	return &sess, nil
}

func (s *Store) listTurns(ctx context.Context, sessionID string) ([]model.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, content, signal FROM turns WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var role, content, signal string
		if err := rows.Scan(&role, &content, &signal); err != nil {
			return nil, err
		}
		turns = append(turns, model.Turn{Role: model.Role(role), RawContent: content, Signal: model.Signal(signal)})
	}
	return turns, rows.Err()
}

// ---------------------------------------------------------------------------
// Generations
// ---------------------------------------------------------------------------

const generationColumns = `id, job_id, artifact_name, requirement_name, page_name, test_url, status, session_id, turn_count, output, code, output_path, error_info, created_at`

// CreateGeneration inserts a generation record.
func (s *Store) CreateGeneration(ctx context.Context, g model.Generation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generations (`+generationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.JobID, g.ArtifactName, g.RequirementName, g.PageName, g.TestURL, g.Status,
		g.SessionID, g.TurnCount, g.Output, g.Code, g.OutputPath, g.ErrorInfo, g.CreatedAt,
	)
	return err
}

// ListGenerations returns generations newest first. A non-empty jobID limits
// the result to that job.
func (s *Store) ListGenerations(ctx context.Context, jobID string) ([]model.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations`
	var args []interface{}
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gens []model.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		gens = append(gens, *g)
	}
	return gens, rows.Err()
}

// GetGeneration returns a generation together with its session turns.
func (s *Store) GetGeneration(ctx context.Context, id string) (*model.GenerationWithTurns, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = ?`, id)
	g, err := scanGeneration(row)
	if err != nil {
		return nil, err
	}

	out := &model.GenerationWithTurns{Generation: *g, Turns: []model.Turn{}}
	if g.SessionID != nil {
		turns, err := s.listTurns(ctx, *g.SessionID)
		if err != nil {
			return nil, err
		}
		if turns != nil {
			out.Turns = turns
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Identities
// ---------------------------------------------------------------------------

// GetIdentity returns the stored identity for backend, or nil if none exists.
func (s *Store) GetIdentity(ctx context.Context, backend string) (*model.Identity, error) {
	var id model.Identity
	var refs string
	err := s.db.QueryRowContext(ctx,
		`SELECT backend, persona_id, artifact_refs, created_at FROM identities WHERE backend = ?`, backend).
		Scan(&id.Backend, &id.PersonaID, &refs, &id.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(refs), &id.ArtifactRefs); err != nil {
		return nil, fmt.Errorf("decode artifact refs: %w", err)
	}
	return &id, nil
}

// SaveIdentity inserts or replaces the identity for id.Backend.
func (s *Store) SaveIdentity(ctx context.Context, id model.Identity) error {
	refs, err := json.Marshal(nonNil(id.ArtifactRefs))
	if err != nil {
		return fmt.Errorf("encode artifact refs: %w", err)
	}
	if id.CreatedAt == "" {
		id.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identities (backend, persona_id, artifact_refs, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(backend) DO UPDATE SET
			persona_id = excluded.persona_id,
			artifact_refs = excluded.artifact_refs,
			created_at = excluded.created_at`,
		id.Backend, id.PersonaID, string(refs), id.CreatedAt,
	)
	return err
}

// DeleteIdentity removes the identity for backend. Deleting a missing
// identity is not an error.
func (s *Store) DeleteIdentity(ctx context.Context, backend string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE backend = ?`, backend)
	return err
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*model.Job, error) {
	var j model.Job
	if err := row.Scan(&j.ID, &j.Kind, &j.Target, &j.Status, &j.Summary, &j.ErrorInfo, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func scanPage(row scanner) (*model.PageRecord, error) {
	var p model.PageRecord
	var headings, links, images string
	if err := row.Scan(&p.URL, &p.Name, &p.Title, &p.MetaDescription, &headings, &links, &images, &p.Text, &p.CrawledAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headings), &p.Headings); err != nil {
		return nil, fmt.Errorf("decode headings: %w", err)
	}
	if err := json.Unmarshal([]byte(links), &p.Links); err != nil {
		return nil, fmt.Errorf("decode links: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	return &p, nil
}

func scanGeneration(row scanner) (*model.Generation, error) {
	var g model.Generation
	err := row.Scan(&g.ID, &g.JobID, &g.ArtifactName, &g.RequirementName, &g.PageName, &g.TestURL, &g.Status,
		&g.SessionID, &g.TurnCount, &g.Output, &g.Code, &g.OutputPath, &g.ErrorInfo, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// nonNil keeps empty slices encoding as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
