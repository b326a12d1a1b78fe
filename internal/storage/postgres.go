package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"repogauge/internal/models"

	"github.com/lib/pq"
)

// PostgresStore persists analysis results in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	MaxConns int
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(cfg Config) (*PostgresStore, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection. Used by tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// UpsertStatistics inserts or replaces one repository's analysis record.
// The most recent analysis wins; history is not kept.
func (s *PostgresStore) UpsertStatistics(rec *models.RepositoryStatistics) error {
	return upsertStatistics(s.db, rec)
}

func upsertStatistics(db execer, rec *models.RepositoryStatistics) error {
	languages, err := json.Marshal(rec.Languages)
	if err != nil {
		return fmt.Errorf("failed to encode languages: %w", err)
	}
	fileTypes, err := json.Marshal(rec.FileTypes)
	if err != nil {
		return fmt.Errorf("failed to encode file types: %w", err)
	}

	query := `
		INSERT INTO repository_statistics (
			full_name, name, visibility, default_branch, is_fork, is_archived,
			primary_language, languages, file_types, total_files, total_loc,
			has_docs, has_readme, has_tests, test_file_count, has_cicd,
			license, stars, forks, watchers, open_issues, contributors,
			last_commit, is_active, commit_frequency,
			maintenance_score, popularity_score, code_quality_score, documentation_score,
			anomalies, topics, is_empty, analyzed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
			$29, $30, $31, $32, $33
		)
		ON CONFLICT (full_name) DO UPDATE SET
			name = EXCLUDED.name,
			visibility = EXCLUDED.visibility,
			default_branch = EXCLUDED.default_branch,
			is_fork = EXCLUDED.is_fork,
			is_archived = EXCLUDED.is_archived,
			primary_language = EXCLUDED.primary_language,
			languages = EXCLUDED.languages,
			file_types = EXCLUDED.file_types,
			total_files = EXCLUDED.total_files,
			total_loc = EXCLUDED.total_loc,
			has_docs = EXCLUDED.has_docs,
			has_readme = EXCLUDED.has_readme,
			has_tests = EXCLUDED.has_tests,
			test_file_count = EXCLUDED.test_file_count,
			has_cicd = EXCLUDED.has_cicd,
			license = EXCLUDED.license,
			stars = EXCLUDED.stars,
			forks = EXCLUDED.forks,
			watchers = EXCLUDED.watchers,
			open_issues = EXCLUDED.open_issues,
			contributors = EXCLUDED.contributors,
			last_commit = EXCLUDED.last_commit,
			is_active = EXCLUDED.is_active,
			commit_frequency = EXCLUDED.commit_frequency,
			maintenance_score = EXCLUDED.maintenance_score,
			popularity_score = EXCLUDED.popularity_score,
			code_quality_score = EXCLUDED.code_quality_score,
			documentation_score = EXCLUDED.documentation_score,
			anomalies = EXCLUDED.anomalies,
			topics = EXCLUDED.topics,
			is_empty = EXCLUDED.is_empty,
			analyzed_at = EXCLUDED.analyzed_at`

	_, err = db.Exec(query,
		rec.FullName, rec.Name, rec.Visibility, rec.DefaultBranch, rec.IsFork, rec.IsArchived,
		rec.PrimaryLanguage, languages, fileTypes, rec.TotalFiles, rec.TotalLOC,
		rec.HasDocs, rec.HasReadme, rec.HasTests, rec.TestFileCount, rec.HasCICD,
		rec.License, rec.Stars, rec.Forks, rec.Watchers, rec.OpenIssues, rec.Contributors,
		nullableTime(rec.LastCommit), rec.IsActive, rec.CommitFrequency,
		rec.MaintenanceScore, rec.PopularityScore, rec.CodeQualityScore, rec.DocumentationScore,
		pq.Array(rec.Anomalies), pq.Array(rec.Topics), rec.IsEmpty, rec.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert statistics for %s: %w", rec.FullName, err)
	}
	return nil
}

// SaveAll upserts a whole report inside one transaction.
func (s *PostgresStore) SaveAll(records []models.RepositoryStatistics) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range records {
		if err := upsertStatistics(tx, &records[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListStatistics returns stored records ordered by full name.
func (s *PostgresStore) ListStatistics(limit int) ([]models.RepositoryStatistics, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT full_name, name, primary_language, total_files, total_loc,
			stars, forks, open_issues, is_active,
			maintenance_score, popularity_score, code_quality_score, documentation_score,
			anomalies, is_empty, analyzed_at
		FROM repository_statistics
		ORDER BY full_name
		LIMIT $1`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics: %w", err)
	}
	defer rows.Close()

	var records []models.RepositoryStatistics
	for rows.Next() {
		var rec models.RepositoryStatistics
		var lastAnomalies pq.StringArray
		var analyzedAt time.Time
		err := rows.Scan(
			&rec.FullName, &rec.Name, &rec.PrimaryLanguage, &rec.TotalFiles, &rec.TotalLOC,
			&rec.Stars, &rec.Forks, &rec.OpenIssues, &rec.IsActive,
			&rec.MaintenanceScore, &rec.PopularityScore, &rec.CodeQualityScore, &rec.DocumentationScore,
			&lastAnomalies, &rec.IsEmpty, &analyzedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statistics row: %w", err)
		}
		rec.Anomalies = lastAnomalies
		rec.AnalyzedAt = analyzedAt
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
