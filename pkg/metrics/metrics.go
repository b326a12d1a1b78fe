// Package metrics exposes Prometheus collectors for the analysis
// pipeline. The Metrics type doubles as a run observer so the
// orchestrator stays free of Prometheus imports.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repogauge/internal/models"
)

// Prometheus metrics
var (
	reposAnalyzedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repogauge_repos_analyzed_total",
			Help: "Total repositories analyzed",
		},
		[]string{"status"},
	)

	reposInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "repogauge_repos_in_progress",
			Help: "Repositories currently being analyzed",
		},
	)

	filesProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "repogauge_files_processed_total",
			Help: "Total files seen across all analyzed repositories",
		},
	)

	locProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "repogauge_loc_processed_total",
			Help: "Total lines of code counted",
		},
	)

	languageLOCTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repogauge_language_loc_total",
			Help: "Lines of code counted by language",
		},
		[]string{"language"},
	)

	scoreHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repogauge_score",
			Help:    "Distribution of repository scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"dimension"},
	)

	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repogauge_anomalies_total",
			Help: "Anomalies detected by tag",
		},
		[]string{"tag"},
	)

	rateLimitWaitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "repogauge_rate_limit_waits_total",
			Help: "Times a run waited on the API rate budget",
		},
	)

	checkpointSavesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "repogauge_checkpoint_saves_total",
			Help: "Checkpoint snapshots written",
		},
	)

	pendingRepos = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "repogauge_pending_repos",
			Help: "Repositories still pending in the current run",
		},
	)
)

func init() {
	prometheus.MustRegister(
		reposAnalyzedTotal,
		reposInProgress,
		filesProcessedTotal,
		locProcessedTotal,
		languageLOCTotal,
		scoreHistogram,
		anomaliesTotal,
		rateLimitWaitsTotal,
		checkpointSavesTotal,
		pendingRepos,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics is an orchestrator observer that records run progress.
type Metrics struct{}

// NewMetrics creates the observer.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RepoStarted(string) {
	reposInProgress.Inc()
}

func (m *Metrics) RepoCompleted(stats *models.RepositoryStatistics) {
	reposInProgress.Dec()
	reposAnalyzedTotal.WithLabelValues("completed").Inc()
	filesProcessedTotal.Add(float64(stats.TotalFiles))
	locProcessedTotal.Add(float64(stats.TotalLOC))

	for language, loc := range stats.Languages {
		languageLOCTotal.WithLabelValues(language).Add(float64(loc))
	}

	scoreHistogram.WithLabelValues("maintenance").Observe(stats.MaintenanceScore)
	scoreHistogram.WithLabelValues("popularity").Observe(stats.PopularityScore)
	scoreHistogram.WithLabelValues("code_quality").Observe(stats.CodeQualityScore)
	scoreHistogram.WithLabelValues("documentation").Observe(stats.DocumentationScore)

	for _, tag := range stats.Anomalies {
		anomaliesTotal.WithLabelValues(tag).Inc()
	}
}

func (m *Metrics) RepoFailed(string, error) {
	reposInProgress.Dec()
	reposAnalyzedTotal.WithLabelValues("failed").Inc()
}

func (m *Metrics) RateLimitWait(time.Duration, time.Time) {
	rateLimitWaitsTotal.Inc()
}

func (m *Metrics) Checkpointed(_, pending int) {
	checkpointSavesTotal.Inc()
	pendingRepos.Set(float64(pending))
}
