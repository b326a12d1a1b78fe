// Package walker traverses a single repository's file tree through the
// remote API and accumulates raw file statistics.
package walker

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"repogauge/internal/classify"
	"repogauge/internal/models"
	"repogauge/pkg/logger"
)

// TreeAPI is the remote surface the walker needs.
type TreeAPI interface {
	// ListTree lists the entries of one directory. Pagination is handled by
	// the implementation. Listing the root of an empty repository returns
	// models.ErrEmptyRepository.
	ListTree(ctx context.Context, handle models.RepoHandle, path string) ([]models.TreeEntry, error)
	// FileContent fetches the raw bytes of one file.
	FileContent(ctx context.Context, handle models.RepoHandle, path string) ([]byte, error)
}

// DefaultExcludedDirs are path segments that are never descended into:
// build output, dependency trees and IDE metadata.
func DefaultExcludedDirs() []string {
	return []string{
		"node_modules", "vendor", "bower_components",
		".git", ".svn", ".hg",
		"__pycache__", ".pytest_cache", ".mypy_cache", ".tox",
		"venv", ".venv", "env",
		"dist", "build", "target", "out", "bin", "obj",
		".idea", ".vscode", ".vs",
		".next", ".nuxt", ".terraform",
		"coverage", ".gradle", ".m2",
	}
}

// Config holds walker settings.
type Config struct {
	ExcludedDirs []string
	MaxFileSize  int
}

// Walker analyzes one repository tree at a time. It is safe for concurrent
// use: all per-repository state lives in the FileStats being built.
type Walker struct {
	api      TreeAPI
	excluded map[string]bool
	maxSize  int
	log      *logger.Logger
}

// New creates a Walker.
func New(api TreeAPI, cfg Config, log *logger.Logger) *Walker {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = classify.MaxFileSize
	}
	dirs := cfg.ExcludedDirs
	if dirs == nil {
		dirs = DefaultExcludedDirs()
	}
	excluded := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		excluded[strings.ToLower(d)] = true
	}
	return &Walker{
		api:      api,
		excluded: excluded,
		maxSize:  cfg.MaxFileSize,
		log:      log,
	}
}

// Analyze walks the repository breadth-first from its root and returns the
// accumulated statistics. An empty repository is a terminal IsEmpty result.
// Remote errors below the root degrade to a partial result rather than
// failing the repository.
func (w *Walker) Analyze(ctx context.Context, handle models.RepoHandle) (*models.FileStats, error) {
	stats := models.NewFileStats()
	log := w.log.WithRepo(handle.FullName)

	rootEntries, err := w.api.ListTree(ctx, handle, "")
	if err != nil {
		if errors.Is(err, models.ErrEmptyRepository) {
			stats.IsEmpty = true
			return stats, nil
		}
		return nil, err
	}

	type dirItem struct {
		path  string
		depth int
	}

	var queue []dirItem
	w.consumeEntries(ctx, handle, rootEntries, 0, stats, func(path string) {
		queue = append(queue, dirItem{path: path, depth: 1})
	})

	for len(queue) > 0 {
		if ctx.Err() != nil {
			stats.Partial = true
			return stats, nil
		}

		dir := queue[0]
		queue = queue[1:]

		entries, err := w.api.ListTree(ctx, handle, dir.path)
		if err != nil {
			log.Warn().Err(err).Str("path", dir.path).Msg("tree listing failed, keeping partial result")
			stats.Partial = true
			continue
		}

		if dir.depth == 1 {
			stats.TopLevelDirs[dir.path] = len(entries)
		}

		w.consumeEntries(ctx, handle, entries, dir.depth, stats, func(path string) {
			queue = append(queue, dirItem{path: path, depth: dir.depth + 1})
		})
	}

	return stats, nil
}

// consumeEntries folds one directory listing into the stats, enqueueing
// subdirectories via enqueue.
func (w *Walker) consumeEntries(ctx context.Context, handle models.RepoHandle, entries []models.TreeEntry, depth int, stats *models.FileStats, enqueue func(string)) {
	log := w.log.WithRepo(handle.FullName)

	for _, entry := range entries {
		switch entry.Type {
		case models.EntryTypeDir:
			if w.isExcludedPath(entry.Path) {
				// Skipped wholesale: neither descended into nor enumerated.
				stats.ExcludedFiles++
				continue
			}
			enqueue(entry.Path)

		case models.EntryTypeFile:
			if w.isExcludedPath(entry.Path) {
				stats.ExcludedFiles++
				continue
			}
			w.consumeFile(ctx, handle, entry, stats, log)
		}
	}
}

func (w *Walker) consumeFile(ctx context.Context, handle models.RepoHandle, entry models.TreeEntry, stats *models.FileStats, log *logger.Logger) {
	stats.TotalFiles++
	stats.FileTypes[fileType(entry.Path)]++

	if classify.IsReadme(entry.Path) {
		stats.HasReadme = true
	}
	if classify.IsDocs(entry.Path) {
		stats.HasDocs = true
	}
	if classify.IsTest(entry.Path) {
		stats.HasTests = true
		stats.TestFileCount++
	}
	if classify.IsCICD(entry.Path) {
		stats.HasCICD = true
		stats.CICDFiles = append(stats.CICDFiles, entry.Path)
	}
	if classify.IsDependencyManifest(entry.Path) {
		stats.DependencyFiles = append(stats.DependencyFiles, entry.Path)
	}

	if classify.IsBinary(entry.Path) || entry.Size > w.maxSize {
		return
	}

	content, err := w.api.FileContent(ctx, handle, entry.Path)
	if err != nil {
		log.Debug().Err(err).Str("path", entry.Path).Msg("content fetch failed, skipping line count")
		stats.Partial = true
		return
	}
	if !utf8.Valid(content) {
		// Undecodable content still counts as a file, just not as code.
		return
	}

	loc := classify.CountLOC(content, entry.Path)
	if loc > 0 {
		stats.TotalLOC += loc
		stats.Languages[classify.LanguageOf(entry.Path)] += loc
	}
}

// isExcludedPath reports whether any segment of the path is in the
// exclusion set.
func (w *Walker) isExcludedPath(path string) bool {
	for _, segment := range strings.Split(strings.ToLower(path), "/") {
		if w.excluded[segment] {
			return true
		}
	}
	return false
}

// fileType returns the bucketing key for the extension histogram.
func fileType(path string) string {
	base := path
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx > 0 {
		return strings.ToLower(base[idx:])
	}
	return "(no extension)"
}
