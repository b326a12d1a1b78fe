// Package analyzer drives the end-to-end account scan. It lists the
// account's repositories, walks and scores each one in rate-aware
// batches, and checkpoints progress so interrupted runs resume instead
// of starting over.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"repogauge/internal/checkpoint"
	"repogauge/internal/models"
	"repogauge/internal/ratelimit"
	"repogauge/internal/scoring"
	"repogauge/internal/walker"
	"repogauge/pkg/circuitbreaker"
	"repogauge/pkg/logger"
)

// Source is the remote API surface the orchestrator depends on. The
// production implementation lives in internal/github.
type Source interface {
	ListRepositories(ctx context.Context, owner string) ([]models.RepoMetadata, error)
	RepoMetadata(ctx context.Context, handle models.RepoHandle) (*models.RepoMetadata, error)
	CommitHistory(ctx context.Context, handle models.RepoHandle) (models.CommitActivity, error)
	ContributorsCount(ctx context.Context, handle models.RepoHandle) (int, error)
	OpenPullsCount(ctx context.Context, handle models.RepoHandle) (int, error)
	ClosedIssuesCount(ctx context.Context, handle models.RepoHandle) (int, error)
	LanguageBytes(ctx context.Context, handle models.RepoHandle) (map[string]int, error)
	walker.TreeAPI
}

// Observer receives progress events during a run. All methods are
// called from the orchestrator goroutine except RepoStarted, RepoCompleted
// and RepoFailed, which may fire concurrently when workers > 1.
type Observer interface {
	RepoStarted(fullName string)
	RepoCompleted(stats *models.RepositoryStatistics)
	RepoFailed(fullName string, err error)
	RateLimitWait(wait time.Duration, resetAt time.Time)
	Checkpointed(completed, pending int)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) RepoStarted(string)                         {}
func (NopObserver) RepoCompleted(*models.RepositoryStatistics) {}
func (NopObserver) RepoFailed(string, error)                   {}
func (NopObserver) RateLimitWait(time.Duration, time.Time)     {}
func (NopObserver) Checkpointed(int, int)                      {}

// Config controls a scan run.
type Config struct {
	// Owner is the account to scan. Empty means the authenticated user,
	// which also includes private repositories.
	Owner string
	// BatchSize is the number of repositories processed between
	// checkpoint saves and rate budget checks.
	BatchSize int
	// Workers bounds concurrent per-repository analysis within a batch.
	Workers int

	IncludeForks    bool
	IncludeArchived bool
}

// Validate applies defaults in place.
func (c *Config) Validate() {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
}

// Failure records one repository that could not be analyzed this run.
type Failure struct {
	FullName string
	Err      error
}

// Report is the outcome of a single Run.
type Report struct {
	Completed []models.RepositoryStatistics
	Failures  []Failure
	// Paused is set when the run stopped early because the rate budget
	// stayed exhausted past the maximum wait. Progress is checkpointed
	// and a later run resumes where this one stopped.
	Paused bool
	// Resumed is set when this run picked up a previous checkpoint.
	Resumed bool
}

// ErrRunInProgress is returned by Run when another scan already holds
// the orchestrator. The checkpoint store has a single owner, so
// overlapping runs would overwrite each other's progress snapshots.
var ErrRunInProgress = errors.New("a scan is already in progress")

// Orchestrator coordinates listing, walking, scoring, checkpointing
// and rate budgeting for a whole account scan.
type Orchestrator struct {
	runMu   sync.Mutex
	cfg     Config
	source  Source
	walker  *walker.Walker
	engine  *scoring.Engine
	store   *checkpoint.Store
	tracker *ratelimit.Tracker
	breaker *circuitbreaker.CircuitBreaker
	obs     Observer
	log     *logger.Logger
	now     func() time.Time
}

// New wires an Orchestrator. store, tracker and obs may be nil, which
// disables checkpointing, rate budgeting and progress events.
func New(cfg Config, source Source, w *walker.Walker, engine *scoring.Engine, store *checkpoint.Store, tracker *ratelimit.Tracker, obs Observer, log *logger.Logger) *Orchestrator {
	cfg.Validate()
	if obs == nil {
		obs = NopObserver{}
	}
	o := &Orchestrator{
		cfg:     cfg,
		source:  source,
		walker:  w,
		engine:  engine,
		store:   store,
		tracker: tracker,
		obs:     obs,
		log:     log,
		now:     time.Now,
	}
	// When the remote API starts failing wholesale, repeated per-repo
	// failures open the breaker and the rest of the run fails fast into
	// the deferred list instead of hammering a broken upstream.
	o.breaker = circuitbreaker.New(circuitbreaker.Config{
		MaxFailures: 5,
		Timeout:     time.Minute,
		OnStateChange: func(from, to circuitbreaker.State) {
			log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("analysis circuit breaker state changed")
		},
	})
	return o
}

// Run executes one scan. It resumes from a checkpoint when one exists,
// otherwise it lists the account's repositories fresh. A completed run
// clears the checkpoint; a paused or interrupted run leaves one behind.
// At most one Run is active at a time; callers that overlap, such as a
// cron tick firing while a triggered scan is still going, get
// ErrRunInProgress instead of a second run over the same checkpoint.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if !o.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.runMu.Unlock()

	report := &Report{}

	completed, pending, resumed, err := o.loadOrList(ctx)
	if err != nil {
		return nil, err
	}
	report.Resumed = resumed
	report.Completed = completed

	o.log.Info().
		Int("pending", len(pending)).
		Int("already_completed", len(completed)).
		Bool("resumed", resumed).
		Msg("scan starting")

	// Failed repositories are deferred to the next run instead of being
	// retried within this one, so a persistently broken repository
	// cannot stall the scan.
	var deferred []string

	for len(pending) > 0 {
		paused, err := o.checkBudget(ctx, report)
		if err != nil {
			return report, err
		}
		if paused {
			report.Paused = true
			o.saveCheckpoint(report, append(deferred, pending...))
			return report, nil
		}

		batch := pending
		if len(batch) > o.cfg.BatchSize {
			batch = batch[:o.cfg.BatchSize]
		}
		pending = pending[len(batch):]

		results := runPool(ctx, batch, o.cfg.Workers, o.analyzeRepoGuarded)

		for _, res := range results {
			if res.Err != nil {
				o.obs.RepoFailed(res.FullName, res.Err)
				o.log.WithRepo(res.FullName).WithError(res.Err).Warn().Msg("analysis failed, will retry next run")
				report.Failures = append(report.Failures, Failure{FullName: res.FullName, Err: res.Err})
				deferred = append(deferred, res.FullName)
				continue
			}
			o.obs.RepoCompleted(res.Stats)
			report.Completed = append(report.Completed, *res.Stats)
		}

		o.saveCheckpoint(report, append(deferred, pending...))

		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}

	if len(deferred) > 0 {
		o.saveCheckpoint(report, deferred)
	} else if o.store != nil {
		if err := o.store.Clear(); err != nil {
			o.log.WithError(err).Warn().Msg("clearing checkpoint failed")
		}
	}

	sort.Slice(report.Completed, func(i, j int) bool {
		return report.Completed[i].FullName < report.Completed[j].FullName
	})

	o.log.Info().
		Int("completed", len(report.Completed)).
		Int("failed", len(report.Failures)).
		Msg("scan finished")
	return report, nil
}

// loadOrList restores progress from a checkpoint when present,
// otherwise lists and filters the account's repositories.
func (o *Orchestrator) loadOrList(ctx context.Context) (completed []models.RepositoryStatistics, pending []string, resumed bool, err error) {
	if o.store != nil {
		rec, loadErr := o.store.Load()
		if loadErr != nil {
			o.log.WithError(loadErr).Warn().Msg("checkpoint unreadable, starting fresh")
		} else if rec != nil && len(rec.PendingRepos) > 0 {
			// A repository present in both lists was already analyzed;
			// trust the completed set over the pending one.
			done := rec.CompletedSet()
			for _, name := range rec.PendingRepos {
				if !done[name] {
					pending = append(pending, name)
				}
			}
			return rec.CompletedStats, pending, true, nil
		}
	}

	repos, err := o.source.ListRepositories(ctx, o.cfg.Owner)
	if err != nil {
		return nil, nil, false, fmt.Errorf("listing repositories: %w", err)
	}

	for _, repo := range repos {
		if repo.Fork && !o.cfg.IncludeForks {
			continue
		}
		if repo.Archived && !o.cfg.IncludeArchived {
			continue
		}
		pending = append(pending, repo.FullName)
	}
	sort.Strings(pending)
	return nil, pending, false, nil
}

// checkBudget enforces the rate budget at a batch boundary. It blocks
// through at most one capped reset wait; if the budget is still
// exhausted afterwards the run pauses.
func (o *Orchestrator) checkBudget(ctx context.Context, report *Report) (paused bool, err error) {
	if o.tracker == nil {
		return false, nil
	}

	status, err := o.tracker.Budget(ctx)
	if err != nil {
		o.log.WithError(err).Warn().Msg("rate status unavailable, continuing")
		return false, nil
	}
	if !o.tracker.ShouldPause(status.Remaining) {
		return false, nil
	}

	// A reset window beyond the wait cap cannot recover the budget by
	// waiting, so pause right away instead of burning the cap first.
	if wait := time.Until(status.ResetAt); wait > o.tracker.MaxWait() {
		o.log.Warn().
			Int("remaining", status.Remaining).
			Time("reset_at", status.ResetAt).
			Msg("rate budget exhausted with reset beyond wait cap, pausing run")
		return true, nil
	}

	o.obs.RateLimitWait(time.Until(status.ResetAt), status.ResetAt)
	if _, err := o.tracker.WaitForReset(ctx, status.ResetAt); err != nil {
		return false, err
	}

	status, err = o.tracker.Budget(ctx)
	if err != nil {
		return false, nil
	}
	if o.tracker.ShouldPause(status.Remaining) {
		o.log.Warn().
			Int("remaining", status.Remaining).
			Time("reset_at", status.ResetAt).
			Msg("rate budget still exhausted after wait, pausing run")
		return true, nil
	}
	return false, nil
}

func (o *Orchestrator) saveCheckpoint(report *Report, pending []string) {
	if o.store == nil {
		return
	}
	names := make([]string, 0, len(report.Completed))
	for _, stats := range report.Completed {
		names = append(names, stats.FullName)
	}
	if err := o.store.Save(report.Completed, names, pending); err != nil {
		o.log.WithError(err).Error().Msg("checkpoint save failed")
		return
	}
	o.obs.Checkpointed(len(report.Completed), len(pending))
}

// analyzeRepoGuarded runs one repository analysis behind the circuit
// breaker. A broken-open breaker fails the repository immediately; it
// stays pending and the next run retries it.
func (o *Orchestrator) analyzeRepoGuarded(ctx context.Context, fullName string) (*models.RepositoryStatistics, error) {
	var stats *models.RepositoryStatistics
	err := o.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var innerErr error
		stats, innerErr = o.analyzeRepo(ctx, fullName)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// analyzeRepo produces the full statistics record for one repository.
// Core signals (metadata, tree walk, commit history) are required;
// community counts degrade to zero on failure rather than dropping
// the repository.
func (o *Orchestrator) analyzeRepo(ctx context.Context, fullName string) (*models.RepositoryStatistics, error) {
	o.obs.RepoStarted(fullName)
	log := o.log.WithRepo(fullName)
	start := o.now()

	handle := models.HandleFromFullName(fullName, "")
	if err := handle.Validate(); err != nil {
		return nil, err
	}

	meta, err := o.source.RepoMetadata(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}
	handle.DefaultBranch = meta.DefaultBranch

	fs, err := o.walker.Analyze(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("walking tree: %w", err)
	}

	record := o.newRecord(meta, fs)

	if fs.IsEmpty {
		// An empty repository keeps its identity fields only; community
		// signals are zeroed so the record carries nothing to score.
		record.Stars = 0
		record.Forks = 0
		record.Watchers = 0
		record.OpenIssues = 0
		record.License = ""
		record.Topics = nil
		record.Anomalies = o.engine.DetectAnomalies(record)
		record.AnalyzedAt = o.now()
		log.Info().Dur("took", o.now().Sub(start)).Msg("repository is empty")
		return record, nil
	}

	history, err := o.source.CommitHistory(ctx, handle)
	if err != nil && !errors.Is(err, models.ErrEmptyRepository) {
		return nil, fmt.Errorf("fetching commit history: %w", err)
	}

	o.fillCommunity(ctx, handle, record, log)
	o.fillLanguages(ctx, handle, record, log)

	act := o.engine.DeriveActivity(history.LastCommit, history.CommitsLast30d, history.CommitsLastYr, meta.CreatedAt, o.now())
	record.LastCommit = act.LastCommit
	record.IsActive = act.IsActive
	record.CommitFrequency = act.CommitFrequency
	record.CommitsLast30d = act.CommitsLast30d
	record.CommitsLastYear = act.CommitsLastYear

	scores := o.engine.ScoreWithContributors(fs, meta, act, record.Contributors)
	record.MaintenanceScore = scores.Maintenance
	record.PopularityScore = scores.Popularity
	record.CodeQualityScore = scores.CodeQuality
	record.DocumentationScore = scores.Documentation

	record.Anomalies = o.engine.DetectAnomalies(record)
	record.AnalyzedAt = o.now()

	log.Info().
		Int("total_loc", record.TotalLOC).
		Int("total_files", record.TotalFiles).
		Bool("partial", fs.Partial).
		Dur("took", o.now().Sub(start)).
		Msg("repository analyzed")
	return record, nil
}

// newRecord merges repository metadata with walk results into the flat
// statistics record.
func (o *Orchestrator) newRecord(meta *models.RepoMetadata, fs *models.FileStats) *models.RepositoryStatistics {
	visibility := "public"
	if meta.Private {
		visibility = "private"
	}

	record := &models.RepositoryStatistics{
		Name:          meta.Name,
		FullName:      meta.FullName,
		Visibility:    visibility,
		DefaultBranch: meta.DefaultBranch,
		IsFork:        meta.Fork,
		IsArchived:    meta.Archived,
		IsTemplate:    meta.Template,
		CreatedAt:     meta.CreatedAt,
		PushedAt:      meta.PushedAt,
		Description:   meta.Description,
		Homepage:      meta.Homepage,

		Languages:     fs.Languages,
		TotalFiles:    fs.TotalFiles,
		TotalLOC:      fs.TotalLOC,
		FileTypes:     fs.FileTypes,
		SizeKB:        meta.SizeKB,
		ExcludedFiles: fs.ExcludedFiles,
		TopLevelDirs:  fs.TopLevelDirs,
		IsEmpty:       fs.IsEmpty,

		HasDocs:         fs.HasDocs,
		HasReadme:       fs.HasReadme,
		HasTests:        fs.HasTests,
		TestFileCount:   fs.TestFileCount,
		HasCICD:         fs.HasCICD,
		CICDFiles:       fs.CICDFiles,
		DependencyFiles: fs.DependencyFiles,

		License:    meta.License,
		OpenIssues: meta.OpenIssues,
		Topics:     meta.Topics,
		Stars:      meta.Stars,
		Forks:      meta.Forks,
		Watchers:   meta.Watchers,
	}

	if fs.TotalFiles > 0 {
		record.AvgLOCPerFile = float64(fs.TotalLOC) / float64(fs.TotalFiles)
		record.TestCoveragePct = float64(fs.TestFileCount) / float64(fs.TotalFiles) * 100
	}
	record.PrimaryLanguage = primaryLanguage(fs.Languages)
	return record
}

// fillCommunity fetches contributor and issue counts. These are
// secondary signals, so failures log and leave zeros.
func (o *Orchestrator) fillCommunity(ctx context.Context, handle models.RepoHandle, record *models.RepositoryStatistics, log *logger.Logger) {
	if n, err := o.source.ContributorsCount(ctx, handle); err != nil {
		log.WithError(err).Debug().Msg("contributor count unavailable")
	} else {
		record.Contributors = n
	}
	if n, err := o.source.OpenPullsCount(ctx, handle); err != nil {
		log.WithError(err).Debug().Msg("open PR count unavailable")
	} else {
		record.OpenPRs = n
	}
	if n, err := o.source.ClosedIssuesCount(ctx, handle); err != nil {
		log.WithError(err).Debug().Msg("closed issue count unavailable")
	} else {
		record.ClosedIssues = n
	}
}

// fillLanguages consults the remote byte-weighted language map as a
// presence signal. Local LOC counts stay authoritative for totals; the
// remote map only supplies a primary language when the walk saw no
// recognizable code, such as a partial walk of a huge repository.
func (o *Orchestrator) fillLanguages(ctx context.Context, handle models.RepoHandle, record *models.RepositoryStatistics, log *logger.Logger) {
	if record.PrimaryLanguage != "" {
		return
	}
	remote, err := o.source.LanguageBytes(ctx, handle)
	if err != nil {
		log.WithError(err).Debug().Msg("remote language map unavailable")
		return
	}
	record.PrimaryLanguage = primaryLanguage(remote)
}

// primaryLanguage picks the dominant key, breaking ties by name so the
// result is stable.
func primaryLanguage(weights map[string]int) string {
	best := ""
	bestWeight := 0
	for lang, weight := range weights {
		if weight > bestWeight || (weight == bestWeight && weight > 0 && lang < best) {
			best = lang
			bestWeight = weight
		}
	}
	return best
}
