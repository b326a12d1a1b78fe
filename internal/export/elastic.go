// Package export ships finished analysis records to Elasticsearch so
// scans can be searched and dashboarded.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"repogauge/internal/models"
	"repogauge/pkg/logger"
)

// Indexer writes repository statistics into an Elasticsearch index.
type Indexer struct {
	es    *elasticsearch.Client
	index string
	log   *logger.Logger
}

// Config holds exporter settings.
type Config struct {
	Addresses []string
	Index     string
}

// NewIndexer connects to the cluster and ensures the index exists.
func NewIndexer(cfg Config, log *logger.Logger) (*Indexer, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	idx := &Indexer{es: es, index: cfg.Index, log: log}
	if err := idx.createIndex(context.Background()); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Indexer) createIndex(ctx context.Context) error {
	mapping := `{
		"mappings": {
			"properties": {
				"name": {"type": "text"},
				"full_name": {"type": "keyword"},
				"description": {"type": "text"},
				"primary_language": {"type": "keyword"},
				"total_files": {"type": "integer"},
				"total_loc": {"type": "integer"},
				"stars": {"type": "integer"},
				"forks": {"type": "integer"},
				"open_issues": {"type": "integer"},
				"is_active": {"type": "boolean"},
				"is_empty": {"type": "boolean"},
				"last_commit": {"type": "date"},
				"maintenance_score": {"type": "float"},
				"popularity_score": {"type": "float"},
				"code_quality_score": {"type": "float"},
				"documentation_score": {"type": "float"},
				"anomalies": {"type": "keyword"},
				"topics": {"type": "keyword"},
				"analyzed_at": {"type": "date"}
			}
		}
	}`

	req := esapi.IndicesCreateRequest{
		Index: i.index,
		Body:  strings.NewReader(mapping),
	}
	res, err := req.Do(ctx, i.es)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == 400 || strings.Contains(res.Status(), "already_exists") {
			return nil
		}
		return fmt.Errorf("failed to create index: %s", res.Status())
	}
	return nil
}

// IndexRecord indexes one repository's statistics. The document ID is
// derived from the full name so re-analysis replaces the old document.
func (i *Indexer) IndexRecord(ctx context.Context, rec *models.RepositoryStatistics) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: strings.ReplaceAll(rec.FullName, "/", "-"),
		Body:       strings.NewReader(string(data)),
	}
	res, err := req.Do(ctx, i.es)
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", rec.FullName, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index %s: %s", rec.FullName, res.Status())
	}
	return nil
}

// IndexReport indexes every record of a finished run. Individual
// failures are logged and skipped so one bad document does not lose
// the rest of the report.
func (i *Indexer) IndexReport(ctx context.Context, records []models.RepositoryStatistics) int {
	indexed := 0
	for idx := range records {
		if err := i.IndexRecord(ctx, &records[idx]); err != nil {
			i.log.WithRepo(records[idx].FullName).WithError(err).Warn().Msg("export to elasticsearch failed")
			continue
		}
		indexed++
	}
	return indexed
}
