package walker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"repogauge/internal/models"
	"repogauge/pkg/logger"
)

// fakeTree serves an in-memory repository layout. Directories map to entry
// lists; files map to contents.
type fakeTree struct {
	dirs     map[string][]models.TreeEntry
	files    map[string]string
	empty    bool
	failDirs map[string]error
	fetches  []string
}

func (f *fakeTree) ListTree(ctx context.Context, handle models.RepoHandle, path string) ([]models.TreeEntry, error) {
	if f.empty && path == "" {
		return nil, models.ErrEmptyRepository
	}
	if err, ok := f.failDirs[path]; ok {
		return nil, err
	}
	return f.dirs[path], nil
}

func (f *fakeTree) FileContent(ctx context.Context, handle models.RepoHandle, path string) ([]byte, error) {
	f.fetches = append(f.fetches, path)
	content, ok := f.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(content), nil
}

func file(path string, size int) models.TreeEntry {
	return models.TreeEntry{Path: path, Type: models.EntryTypeFile, Size: size}
}

func dir(path string) models.TreeEntry {
	return models.TreeEntry{Path: path, Type: models.EntryTypeDir}
}

func newWalker(api TreeAPI) *Walker {
	return New(api, Config{}, logger.Nop())
}

var testHandle = models.RepoHandle{Owner: "acme", Name: "proj", FullName: "acme/proj"}

func TestAnalyzeBasicRepo(t *testing.T) {
	tree := &fakeTree{
		dirs: map[string][]models.TreeEntry{
			"": {
				file("README.md", 100),
				file("main.go", 200),
				dir("src"),
				dir("docs"),
			},
			"src": {
				file("src/app.go", 300),
				file("src/app_test.go", 150),
			},
			"docs": {
				file("docs/guide.md", 50),
			},
		},
		files: map[string]string{
			"README.md":       "# Project\n\nHello.\n",
			"main.go":         "package main\n\nfunc main() {}\n",
			"src/app.go":      "package app\n\nvar X = 1\nvar Y = 2\n",
			"src/app_test.go": "package app\n\nfunc TestX(t *T) {}\n",
			"docs/guide.md":   "guide text\n",
		},
	}

	stats, err := newWalker(tree).Analyze(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.TotalFiles != 5 {
		t.Errorf("TotalFiles = %d, want 5", stats.TotalFiles)
	}
	if !stats.HasReadme || !stats.HasDocs {
		t.Error("expected readme and docs flags")
	}
	if !stats.HasTests || stats.TestFileCount != 1 {
		t.Errorf("expected 1 test file, got %d", stats.TestFileCount)
	}
	if stats.Languages["Go"] != 2+3+2 {
		t.Errorf("Go LOC = %d, want 7", stats.Languages["Go"])
	}
	if stats.TopLevelDirs["src"] != 2 || stats.TopLevelDirs["docs"] != 1 {
		t.Errorf("unexpected top-level dir counts: %v", stats.TopLevelDirs)
	}
	if stats.FileTypes[".go"] != 3 || stats.FileTypes[".md"] != 2 {
		t.Errorf("unexpected file types: %v", stats.FileTypes)
	}

	// LOC invariant: total equals the sum over languages.
	sum := 0
	for _, loc := range stats.Languages {
		sum += loc
	}
	if stats.TotalLOC != sum {
		t.Errorf("TotalLOC %d != language sum %d", stats.TotalLOC, sum)
	}
}

func TestAnalyzeEmptyRepo(t *testing.T) {
	stats, err := newWalker(&fakeTree{empty: true}).Analyze(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("empty repository must not be an error: %v", err)
	}
	if !stats.IsEmpty {
		t.Error("expected IsEmpty")
	}
	if stats.TotalFiles != 0 || stats.TotalLOC != 0 {
		t.Error("empty repository must carry zero code stats")
	}
}

func TestAnalyzeExcludedDirectory(t *testing.T) {
	tree := &fakeTree{
		dirs: map[string][]models.TreeEntry{
			"": {
				file("index.js", 100),
				dir("node_modules"),
			},
			// Never listed: the walker must not descend.
			"node_modules": {
				file("node_modules/lodash/index.js", 5000),
			},
		},
		files: map[string]string{
			"index.js": "const x = 1;\nconst y = 2;\n",
		},
	}

	stats, err := newWalker(tree).Analyze(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.ExcludedFiles != 1 {
		t.Errorf("ExcludedFiles = %d, want 1", stats.ExcludedFiles)
	}
	if stats.TotalFiles != 1 {
		t.Errorf("TotalFiles = %d, want 1 (excluded tree must not be counted)", stats.TotalFiles)
	}
	if stats.Languages["JavaScript"] != 2 {
		t.Errorf("JavaScript LOC = %d, want 2", stats.Languages["JavaScript"])
	}
	for _, fetched := range tree.fetches {
		if strings.HasPrefix(fetched, "node_modules/") {
			t.Errorf("file under excluded directory was fetched: %s", fetched)
		}
	}
}

func TestAnalyzeExcludedFilePathSegment(t *testing.T) {
	tree := &fakeTree{
		dirs: map[string][]models.TreeEntry{
			"": {
				file("vendor/lib.go", 10),
				file("main.go", 10),
			},
		},
		files: map[string]string{
			"main.go": "package main\n",
		},
	}

	stats, err := newWalker(tree).Analyze(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.ExcludedFiles != 1 || stats.TotalFiles != 1 {
		t.Errorf("excluded=%d total=%d, want 1/1", stats.ExcludedFiles, stats.TotalFiles)
	}
}

func TestAnalyzeBinaryAndOversizeSkipped(t *testing.T) {
	tree := &fakeTree{
		dirs: map[string][]models.TreeEntry{
			"": {
				file("logo.png", 100),
				file("huge.go", 10<<20),
				file("ok.go", 50),
			},
		},
		files: map[string]string{
			"ok.go": "package ok\n",
		},
	}

	stats, err := newWalker(tree).Analyze(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// All three count as files, only ok.go is decoded.
	if stats.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", stats.TotalFiles)
	}
	if stats.TotalLOC != 1 {
		t.Errorf("TotalLOC = %d, want 1", stats.TotalLOC)
	}
	if len(tree.fetches) != 1 || tree.fetches[0] != "ok.go" {
		t.Errorf("only ok.go should be fetched, got %v", tree.fetches)
	}
	if stats.FileTypes[".png"] != 1 {
		t.Errorf("binary file missing from file types: %v", stats.FileTypes)
	}
}

func TestAnalyzeNonUTF8ContentCountedButNotDecoded(t *testing.T) {
	tree := &fakeTree{
		dirs: map[string][]models.TreeEntry{
			"": {file("weird.go", 10)},
		},
		files: map[string]string{
			"weird.go": string([]byte{0xff, 0xfe, 0x01}),
		},
	}

	stats, err := newWalker(tree).Analyze(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalFiles != 1 {
		t.Errorf("TotalFiles = %d, want 1", stats.TotalFiles)
	}
	if stats.TotalLOC != 0 || len(stats.Languages) != 0 {
		t.Errorf("undecodable file must not contribute code: loc=%d langs=%v", stats.TotalLOC, stats.Languages)
	}
}

func TestAnalyzeSubtreeFailureDegradesToPartial(t *testing.T) {
	tree := &fakeTree{
		dirs: map[string][]models.TreeEntry{
			"": {
				file("main.go", 10),
				dir("broken"),
			},
		},
		files: map[string]string{
			"main.go": "package main\n",
		},
		failDirs: map[string]error{
			"broken": errors.New("http 500"),
		},
	}

	stats, err := newWalker(tree).Analyze(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("subtree failure must not fail the repository: %v", err)
	}
	if !stats.Partial {
		t.Error("expected Partial flag")
	}
	if stats.TotalFiles != 1 || stats.TotalLOC != 1 {
		t.Errorf("accumulated stats lost: files=%d loc=%d", stats.TotalFiles, stats.TotalLOC)
	}
}

func TestAnalyzeRootFailurePropagates(t *testing.T) {
	tree := &fakeTree{
		failDirs: map[string]error{"": errors.New("http 500")},
	}

	if _, err := newWalker(tree).Analyze(context.Background(), testHandle); err == nil {
		t.Fatal("root listing failure must propagate")
	}
}

func TestAnalyzeCICDAndManifests(t *testing.T) {
	tree := &fakeTree{
		dirs: map[string][]models.TreeEntry{
			"": {
				dir(".github"),
				file("go.mod", 40),
				file("main.go", 40),
			},
			".github": {dir(".github/workflows")},
			".github/workflows": {
				file(".github/workflows/ci.yml", 100),
			},
		},
		files: map[string]string{
			"go.mod":                    "module example\n",
			"main.go":                   "package main\n",
			".github/workflows/ci.yml":  "name: ci\n",
		},
	}

	stats, err := newWalker(tree).Analyze(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stats.HasCICD || len(stats.CICDFiles) != 1 {
		t.Errorf("expected one CI/CD file, got %v", stats.CICDFiles)
	}
	if len(stats.DependencyFiles) != 1 || stats.DependencyFiles[0] != "go.mod" {
		t.Errorf("expected go.mod manifest, got %v", stats.DependencyFiles)
	}
}
