// Package scoring derives quality, popularity, activity and anomaly signals
// from assembled repository statistics. All functions are pure.
package scoring

import (
	"time"

	"repogauge/internal/models"
)

// Anomaly tags, appended in predicate evaluation order.
const (
	TagEmptyRepository      = "Empty repository"
	TagLargeWithoutDocs     = "Large repository without documentation"
	TagLargeWithoutTests    = "Large repository without tests"
	TagPopularWithoutDocs   = "Popular repository without documentation"
	TagOpenIssuesInactive   = "Many open issues on inactive repository"
	TagPopularButAbandoned  = "Popular but abandoned"
	TagNoLicense            = "Substantial code without license"
	TagLowTestRatio         = "Low test-to-code ratio"
	TagActiveWithoutCICD    = "Active repository without CI/CD"
	TagOldAndStale          = "Old and stale"
)

// Config holds the scoring thresholds. The point bands below are reference
// defaults; the shapes (tiered contributions clamped to 100) are fixed.
type Config struct {
	InactiveThresholdDays int
	LargeRepoLOC          int
	LargeUntestedLOC      int
	PopularStars          int
	AbandonedStars        int
	ManyOpenIssues        int
	StaleAgeYears         int
	LowTestRatio          float64
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		InactiveThresholdDays: 180,
		LargeRepoLOC:          10000,
		LargeUntestedLOC:      5000,
		PopularStars:          50,
		AbandonedStars:        100,
		ManyOpenIssues:        20,
		StaleAgeYears:         5,
		LowTestRatio:          0.05,
	}
}

// Engine computes scores and anomalies with a fixed Config.
type Engine struct {
	cfg Config
}

// NewEngine creates a scoring engine.
func NewEngine(cfg Config) *Engine {
	if cfg.InactiveThresholdDays <= 0 {
		cfg.InactiveThresholdDays = 180
	}
	if cfg.LargeRepoLOC <= 0 {
		cfg.LargeRepoLOC = 10000
	}
	if cfg.LargeUntestedLOC <= 0 {
		cfg.LargeUntestedLOC = 5000
	}
	return &Engine{cfg: cfg}
}

// Scores holds the four independent 0-100 scores.
type Scores struct {
	Maintenance   float64
	Popularity    float64
	CodeQuality   float64
	Documentation float64
}

// Activity holds the derived activity metrics for one repository.
type Activity struct {
	LastCommit      time.Time
	IsActive        bool
	CommitFrequency float64
	CommitsLast30d  int
	CommitsLastYear int
}

// DeriveActivity computes activity metrics. A repository is active iff its
// last commit is strictly after now minus the inactivity threshold. Commit
// frequency is commits in the trailing year divided by min(12, age in
// months), so very young repositories do not report inflated frequencies.
func (e *Engine) DeriveActivity(lastCommit time.Time, commits30d, commitsYear int, createdAt, now time.Time) Activity {
	cutoff := now.AddDate(0, 0, -e.cfg.InactiveThresholdDays)

	months := int(now.Sub(createdAt).Hours() / (24 * 30))
	if months < 1 {
		months = 1
	}
	if months > 12 {
		months = 12
	}

	return Activity{
		LastCommit:      lastCommit,
		IsActive:        lastCommit.After(cutoff),
		CommitFrequency: float64(commitsYear) / float64(months),
		CommitsLast30d:  commits30d,
		CommitsLastYear: commitsYear,
	}
}

// Score computes the four scores from file statistics, repository metadata
// and derived activity. Each score is an independent capped sum of tiered
// point bands.
func (e *Engine) Score(fs *models.FileStats, meta *models.RepoMetadata, act Activity) Scores {
	if fs.IsEmpty {
		return Scores{}
	}
	return Scores{
		Maintenance:   e.maintenanceScore(fs, meta, act),
		Popularity:    e.popularityScore(meta),
		CodeQuality:   e.codeQualityScore(fs),
		Documentation: e.documentationScore(fs, meta),
	}
}

func (e *Engine) maintenanceScore(fs *models.FileStats, meta *models.RepoMetadata, act Activity) float64 {
	score := 0.0

	if fs.HasDocs {
		score += 15
	}

	// Test presence scaled by test-file-count tier.
	switch {
	case fs.TestFileCount >= 15:
		score += 20
	case fs.TestFileCount >= 5:
		score += 15
	case fs.TestFileCount >= 1:
		score += 10
	}

	if fs.HasCICD {
		score += 15
	}

	// Recent activity scaled by commits in the last month.
	switch {
	case act.CommitsLast30d >= 20:
		score += 20
	case act.CommitsLast30d >= 5:
		score += 15
	case act.CommitsLast30d >= 1:
		score += 10
	}

	if meta.License != "" {
		score += 10
	}

	// Reasonable open issue count.
	switch {
	case meta.OpenIssues < 10:
		score += 10
	case meta.OpenIssues < 50:
		score += 5
	}

	// Minimal structure: any files at all, plus a dependency manifest.
	if fs.TotalFiles > 0 {
		score += 5
	}
	if len(fs.DependencyFiles) > 0 {
		score += 5
	}

	return clamp(score)
}

func (e *Engine) popularityScore(meta *models.RepoMetadata) float64 {
	score := 0.0

	switch {
	case meta.Stars >= 1000:
		score += 40
	case meta.Stars >= 100:
		score += 30
	case meta.Stars >= 50:
		score += 20
	case meta.Stars >= 10:
		score += 10
	case meta.Stars >= 1:
		score += 5
	}

	switch {
	case meta.Forks >= 100:
		score += 25
	case meta.Forks >= 20:
		score += 15
	case meta.Forks >= 5:
		score += 10
	case meta.Forks >= 1:
		score += 5
	}

	switch {
	case meta.Watchers >= 100:
		score += 15
	case meta.Watchers >= 10:
		score += 10
	case meta.Watchers >= 1:
		score += 5
	}

	return clamp(score)
}

// popularityContributors folds the contributor tier into a popularity score
// computed from metadata alone.
func (e *Engine) popularityContributors(base float64, contributors int) float64 {
	switch {
	case contributors >= 10:
		base += 20
	case contributors >= 5:
		base += 15
	case contributors >= 2:
		base += 10
	case contributors >= 1:
		base += 5
	}
	return clamp(base)
}

func (e *Engine) codeQualityScore(fs *models.FileStats) float64 {
	score := 0.0

	if fs.HasTests {
		score += 30
	}
	if fs.HasCICD {
		score += 25
	}

	// Smaller average file size scores higher, up to a threshold.
	if fs.TotalFiles > 0 {
		avg := float64(fs.TotalLOC) / float64(fs.TotalFiles)
		switch {
		case avg > 0 && avg <= 200:
			score += 25
		case avg <= 400:
			score += 15
		case avg <= 800:
			score += 5
		}
	}

	if fs.HasDocs {
		score += 20
	}

	return clamp(score)
}

func (e *Engine) documentationScore(fs *models.FileStats, meta *models.RepoMetadata) float64 {
	score := 0.0
	if fs.HasReadme {
		score += 50
	}
	if fs.HasDocs {
		score += 30
	}
	if meta.HasWiki {
		score += 20
	}
	return clamp(score)
}

// ScoreWithContributors computes the full score set including the contributor
// tier of the popularity score.
func (e *Engine) ScoreWithContributors(fs *models.FileStats, meta *models.RepoMetadata, act Activity, contributors int) Scores {
	scores := e.Score(fs, meta, act)
	if !fs.IsEmpty {
		scores.Popularity = e.popularityContributors(scores.Popularity, contributors)
	}
	return scores
}

// DetectAnomalies evaluates the fixed battery of independent predicates
// against an assembled record. Tags are appended in evaluation order; zero,
// one or many may fire.
func (e *Engine) DetectAnomalies(rec *models.RepositoryStatistics) []string {
	if rec.IsEmpty {
		return []string{TagEmptyRepository}
	}

	var tags []string

	if rec.TotalLOC > e.cfg.LargeRepoLOC && !rec.HasDocs {
		tags = append(tags, TagLargeWithoutDocs)
	}
	if rec.TotalLOC > e.cfg.LargeUntestedLOC && !rec.HasTests {
		tags = append(tags, TagLargeWithoutTests)
	}
	if rec.Stars > e.cfg.PopularStars && !rec.HasDocs {
		tags = append(tags, TagPopularWithoutDocs)
	}
	if rec.OpenIssues > e.cfg.ManyOpenIssues && !rec.IsActive {
		tags = append(tags, TagOpenIssuesInactive)
	}
	if rec.Stars > e.cfg.AbandonedStars && !rec.IsActive {
		tags = append(tags, TagPopularButAbandoned)
	}
	if rec.TotalLOC > e.cfg.LargeRepoLOC && rec.License == "" {
		tags = append(tags, TagNoLicense)
	}
	if rec.HasTests && rec.TotalFiles >= 20 {
		ratio := float64(rec.TestFileCount) / float64(rec.TotalFiles)
		if ratio < e.cfg.LowTestRatio {
			tags = append(tags, TagLowTestRatio)
		}
	}
	if rec.IsActive && !rec.HasCICD && rec.TotalFiles > 3 {
		tags = append(tags, TagActiveWithoutCICD)
	}
	if !rec.CreatedAt.IsZero() && !rec.IsActive &&
		time.Since(rec.CreatedAt) > time.Duration(e.cfg.StaleAgeYears)*365*24*time.Hour {
		tags = append(tags, TagOldAndStale)
	}

	return tags
}

func clamp(score float64) float64 {
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}
