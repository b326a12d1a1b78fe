package models

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyRepository signals that a repository has no content at its root.
// This is a common, expected state for freshly created repositories.
var ErrEmptyRepository = errors.New("repository is empty")

// Tree entry types as reported by the remote API.
const (
	EntryTypeFile = "file"
	EntryTypeDir  = "dir"
)

// TreeEntry is one entry of a repository tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int    `json:"size"`
}

// RepoHandle identifies a single repository to analyze.
type RepoHandle struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

// HandleFromFullName builds a RepoHandle from an "owner/name" string.
func HandleFromFullName(fullName, defaultBranch string) RepoHandle {
	handle := RepoHandle{FullName: fullName, DefaultBranch: defaultBranch}
	if idx := strings.Index(fullName, "/"); idx > 0 {
		handle.Owner = fullName[:idx]
		handle.Name = fullName[idx+1:]
	} else {
		handle.Name = fullName
	}
	return handle
}

// RepoMetadata holds repository metadata fetched from the remote API.
type RepoMetadata struct {
	FullName      string    `json:"full_name"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Homepage      string    `json:"homepage"`
	DefaultBranch string    `json:"default_branch"`
	Private       bool      `json:"private"`
	Fork          bool      `json:"fork"`
	Archived      bool      `json:"archived"`
	Template      bool      `json:"template"`
	CreatedAt     time.Time `json:"created_at"`
	PushedAt      time.Time `json:"pushed_at"`
	License       string    `json:"license"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	Watchers      int       `json:"watchers"`
	OpenIssues    int       `json:"open_issues"`
	HasWiki       bool      `json:"has_wiki"`
	Topics        []string  `json:"topics"`
	SizeKB        int       `json:"size_kb"`
}

// FileStats is the raw accumulation produced by walking one repository tree.
type FileStats struct {
	TotalFiles      int            `json:"total_files"`
	TotalLOC        int            `json:"total_loc"`
	Languages       map[string]int `json:"languages"`
	FileTypes       map[string]int `json:"file_types"`
	TopLevelDirs    map[string]int `json:"top_level_dirs"`
	ExcludedFiles   int            `json:"excluded_files"`
	HasDocs         bool           `json:"has_docs"`
	HasReadme       bool           `json:"has_readme"`
	HasTests        bool           `json:"has_tests"`
	TestFileCount   int            `json:"test_file_count"`
	HasCICD         bool           `json:"has_cicd"`
	CICDFiles       []string       `json:"cicd_files"`
	DependencyFiles []string       `json:"dependency_files"`
	IsEmpty         bool           `json:"is_empty"`
	Partial         bool           `json:"partial"`
}

// NewFileStats returns a FileStats with all maps initialized.
func NewFileStats() *FileStats {
	return &FileStats{
		Languages:    make(map[string]int),
		FileTypes:    make(map[string]int),
		TopLevelDirs: make(map[string]int),
	}
}

// RepositoryStatistics is the unit record produced per analyzed repository.
type RepositoryStatistics struct {
	// Identity and metadata
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Visibility    string    `json:"visibility"`
	DefaultBranch string    `json:"default_branch"`
	IsFork        bool      `json:"is_fork"`
	IsArchived    bool      `json:"is_archived"`
	IsTemplate    bool      `json:"is_template"`
	CreatedAt     time.Time `json:"created_at"`
	PushedAt      time.Time `json:"pushed_at"`
	Description   string    `json:"description"`
	Homepage      string    `json:"homepage"`

	// Code statistics
	Languages       map[string]int `json:"languages"`
	PrimaryLanguage string         `json:"primary_language"`
	TotalFiles      int            `json:"total_files"`
	TotalLOC        int            `json:"total_loc"`
	AvgLOCPerFile   float64        `json:"avg_loc_per_file"`
	FileTypes       map[string]int `json:"file_types"`
	SizeKB          int            `json:"size_kb"`
	ExcludedFiles   int            `json:"excluded_files"`
	TopLevelDirs    map[string]int `json:"top_level_dirs"`
	IsEmpty         bool           `json:"is_empty"`

	// Quality indicators
	HasDocs         bool     `json:"has_docs"`
	HasReadme       bool     `json:"has_readme"`
	HasTests        bool     `json:"has_tests"`
	TestFileCount   int      `json:"test_file_count"`
	TestCoveragePct float64  `json:"test_coverage_pct"`
	HasCICD         bool     `json:"has_cicd"`
	CICDFiles       []string `json:"cicd_files"`
	DependencyFiles []string `json:"dependency_files"`

	// Activity metrics
	LastCommit      time.Time `json:"last_commit"`
	IsActive        bool      `json:"is_active"`
	CommitFrequency float64   `json:"commit_frequency"`
	CommitsLast30d  int       `json:"commits_last_30d"`
	CommitsLastYear int       `json:"commits_last_year"`

	// Community metrics
	License      string   `json:"license"`
	Contributors int      `json:"contributors"`
	OpenIssues   int      `json:"open_issues"`
	OpenPRs      int      `json:"open_prs"`
	ClosedIssues int      `json:"closed_issues"`
	Topics       []string `json:"topics"`
	Stars        int      `json:"stars"`
	Forks        int      `json:"forks"`
	Watchers     int      `json:"watchers"`

	// Scores and anomalies
	MaintenanceScore   float64  `json:"maintenance_score"`
	PopularityScore    float64  `json:"popularity_score"`
	CodeQualityScore   float64  `json:"code_quality_score"`
	DocumentationScore float64  `json:"documentation_score"`
	Anomalies          []string `json:"anomalies"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// IsMonorepo reports whether code is split across at least three languages
// each holding more than 10% of total LOC.
func (r *RepositoryStatistics) IsMonorepo() bool {
	if r.TotalLOC == 0 {
		return false
	}
	significant := 0
	for _, loc := range r.Languages {
		if float64(loc)/float64(r.TotalLOC) > 0.10 {
			significant++
		}
	}
	return significant >= 3
}

// CommitActivity summarizes recent commit history for a repository.
type CommitActivity struct {
	LastCommit     time.Time `json:"last_commit"`
	CommitsLast30d int       `json:"commits_last_30d"`
	CommitsLastYr  int       `json:"commits_last_yr"`
}

// CheckpointRecord is the persisted snapshot of run progress. Each save fully
// supersedes the previous one.
type CheckpointRecord struct {
	CompletedStats []RepositoryStatistics `json:"completed_stats"`
	CompletedNames []string               `json:"completed_names"`
	PendingRepos   []string               `json:"pending_repos"`
	SavedAt        time.Time              `json:"saved_at"`
}

// CompletedSet returns the completed repository names as a membership set.
func (c *CheckpointRecord) CompletedSet() map[string]bool {
	set := make(map[string]bool, len(c.CompletedNames))
	for _, name := range c.CompletedNames {
		set[name] = true
	}
	return set
}

// Validate checks that a RepoHandle carries the fields the pipeline needs.
func (h *RepoHandle) Validate() error {
	if h.Owner == "" {
		return &ValidationError{Field: "owner", Message: "owner is required"}
	}
	if h.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	return nil
}

// RateStatus is a snapshot of the remote API quota.
type RateStatus struct {
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
