package analyzer

import (
	"context"
	"sync"

	"repogauge/internal/models"
)

// repoResult holds the outcome of analyzing a single repository.
type repoResult struct {
	FullName string
	Stats    *models.RepositoryStatistics
	Err      error
}

// processFunc analyzes a single repository by full name.
type processFunc func(ctx context.Context, fullName string) (*models.RepositoryStatistics, error)

// runPool analyzes names concurrently with a bounded worker pool.
// Results come back in submission order so batch output stays
// deterministic regardless of worker interleaving.
func runPool(ctx context.Context, names []string, concurrency int, process processFunc) []repoResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]repoResult, len(names))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, name := range names {
		if ctx.Err() != nil {
			results[i] = repoResult{FullName: name, Err: ctx.Err()}
			continue
		}

		sem <- struct{}{} // acquire
		wg.Add(1)

		go func(idx int, fullName string) {
			defer wg.Done()
			defer func() { <-sem }() // release

			stats, err := process(ctx, fullName)
			results[idx] = repoResult{FullName: fullName, Stats: stats, Err: err}
		}(i, name)
	}

	wg.Wait()
	return results
}
