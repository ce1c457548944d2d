package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/storage/models"
	"github.com/doc-analyzer/backend/pkg/logger"
)

// ErrNotFound is returned when no analysis has the requested key.
var ErrNotFound = errors.New("analysis not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		// Per-connection pragma; the PRAGMA below only reaches one pooled connection.
		dsn += "?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		filename TEXT NOT NULL,
		format TEXT NOT NULL,
		language TEXT,
		options TEXT,
		summary TEXT,
		record TEXT NOT NULL,
		warnings TEXT,
		degraded INTEGER DEFAULT 0,
		duration_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_fingerprint ON analyses(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);

	CREATE TABLE IF NOT EXISTS analysis_entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		mentions INTEGER DEFAULT 0,
		relevance REAL,
		FOREIGN KEY (analysis_id) REFERENCES analyses(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_entities_analysis ON analysis_entities(analysis_id);
	CREATE INDEX IF NOT EXISTS idx_entities_name ON analysis_entities(name);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// InsertAnalysis stores a and its entity mentions in one transaction.
// Re-inserting the same ID replaces the earlier row.
func (c *Client) InsertAnalysis(a *models.Analysis, entities []models.EntityMention) error {
	warningsJSON, err := json.Marshal(a.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO analyses (id, fingerprint, filename, format, language, options, summary, record,
			warnings, degraded, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			language = excluded.language,
			summary = excluded.summary,
			record = excluded.record,
			warnings = excluded.warnings,
			degraded = excluded.degraded,
			duration_ms = excluded.duration_ms
	`

	degraded := 0
	if a.Degraded {
		degraded = 1
	}

	_, err = tx.Exec(
		query,
		a.ID,
		a.Fingerprint,
		a.Filename,
		a.Format,
		a.Language,
		a.Options,
		a.Summary,
		string(a.Record),
		string(warningsJSON),
		degraded,
		a.DurationMS,
		a.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM analysis_entities WHERE analysis_id = ?`, a.ID); err != nil {
		return fmt.Errorf("failed to clear entities: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO analysis_entities (analysis_id, name, type, mentions, relevance) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		if _, err := stmt.Exec(a.ID, e.Name, e.Type, e.Mentions, e.Relevance); err != nil {
			return fmt.Errorf("failed to insert entity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analysis: %w", err)
	}

	logger.Debug("Analysis inserted",
		zap.String("analysis_id", a.ID),
		zap.String("filename", a.Filename),
		zap.Int("entities", len(entities)),
	)
	return nil
}

const analysisColumns = `id, fingerprint, filename, format, language, options, summary, record, warnings, degraded, duration_ms, created_at`

func (c *Client) GetAnalysis(id string) (*models.Analysis, error) {
	row := c.db.QueryRow(`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	return scanAnalysis(row)
}

// FindByFingerprint returns the newest analysis of identical input.
func (c *Client) FindByFingerprint(fingerprint string) (*models.Analysis, error) {
	row := c.db.QueryRow(`SELECT `+analysisColumns+` FROM analyses WHERE fingerprint = ? ORDER BY created_at DESC LIMIT 1`, fingerprint)
	return scanAnalysis(row)
}

func scanAnalysis(row *sql.Row) (*models.Analysis, error) {
	var a models.Analysis
	var language, options, summary, warnings sql.NullString
	var record string
	var degraded int
	var duration sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&a.ID,
		&a.Fingerprint,
		&a.Filename,
		&a.Format,
		&language,
		&options,
		&summary,
		&record,
		&warnings,
		&degraded,
		&duration,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	a.Language = language.String
	a.Options = options.String
	a.Summary = summary.String
	a.Record = []byte(record)
	a.Degraded = degraded != 0
	a.DurationMS = duration.Int64
	a.CreatedAt = time.Unix(createdAt, 0)
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &a.Warnings); err != nil {
			logger.Warn("Stored warnings unreadable", zap.String("analysis_id", a.ID), zap.Error(err))
		}
	}

	return &a, nil
}

// ListAnalyses returns the newest analyses first.
func (c *Client) ListAnalyses(limit, offset int) ([]models.AnalysisSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT a.id, a.filename, a.format, a.language, a.summary, a.duration_ms, a.created_at,
			(SELECT COUNT(*) FROM analysis_entities e WHERE e.analysis_id = a.id)
		FROM analyses a
		ORDER BY a.created_at DESC, a.id
		LIMIT ? OFFSET ?
	`

	rows, err := c.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	summaries := []models.AnalysisSummary{}
	for rows.Next() {
		var s models.AnalysisSummary
		var language, summary sql.NullString
		var duration sql.NullInt64
		var createdAt int64

		err := rows.Scan(&s.ID, &s.Filename, &s.Format, &language, &summary, &duration, &createdAt, &s.Entities)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		s.Language = language.String
		s.Summary = summary.String
		s.DurationMS = duration.Int64
		s.CreatedAt = time.Unix(createdAt, 0)
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// TopEntities aggregates entity mentions across all stored analyses.
func (c *Client) TopEntities(limit int) ([]models.EntityCount, error) {
	query := `
		SELECT name, type, COUNT(DISTINCT analysis_id) AS documents, SUM(mentions)
		FROM analysis_entities
		GROUP BY name, type
		ORDER BY documents DESC, name
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get entities: %w", err)
	}
	defer rows.Close()

	var counts []models.EntityCount
	for rows.Next() {
		var e models.EntityCount
		if err := rows.Scan(&e.Name, &e.Type, &e.Documents, &e.Mentions); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts = append(counts, e)
	}

	return counts, rows.Err()
}

func (c *Client) DeleteAnalysis(id string) error {
	res, err := c.db.Exec(`DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
