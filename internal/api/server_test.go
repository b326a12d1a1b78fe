package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"repogauge/internal/analyzer"
	"repogauge/internal/models"
	"repogauge/pkg/logger"
)

type fakeRunner struct {
	mu        sync.Mutex
	calls     int
	report    *analyzer.Report
	err       error
	release   chan struct{}
	honourCtx bool
}

func (f *fakeRunner) Run(ctx context.Context) (*analyzer.Report, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.honourCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.release != nil {
		<-f.release
	}
	return f.report, f.err
}

type fakeLister struct {
	records []models.RepositoryStatistics
	err     error
}

func (f *fakeLister) ListStatistics(limit int) ([]models.RepositoryStatistics, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func newTestServer(runner Runner, lister StatisticsLister) *Server {
	return NewServer(Config{Addr: ":0"}, runner, lister, logger.Nop())
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&fakeRunner{}, nil)

	w := doRequest(s, "GET", "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestScanTriggersRun(t *testing.T) {
	runner := &fakeRunner{report: &analyzer.Report{}}
	s := newTestServer(runner, nil)

	w := doRequest(s, "POST", "/api/v1/scan")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}

	// The run happens in the background.
	deadline := time.Now().Add(2 * time.Second)
	for {
		runner.mu.Lock()
		calls := runner.calls
		runner.mu.Unlock()
		if calls == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("runner was never invoked")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScanRejectsConcurrentRuns(t *testing.T) {
	runner := &fakeRunner{report: &analyzer.Report{}, release: make(chan struct{})}
	s := newTestServer(runner, nil)

	if w := doRequest(s, "POST", "/api/v1/scan"); w.Code != http.StatusAccepted {
		t.Fatalf("first scan status = %d", w.Code)
	}
	if w := doRequest(s, "POST", "/api/v1/scan"); w.Code != http.StatusConflict {
		t.Fatalf("second scan status = %d, want 409", w.Code)
	}
	close(runner.release)
}

func TestScanStopsWhenBaseContextCancelled(t *testing.T) {
	runner := &fakeRunner{honourCtx: true}
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(Config{Addr: ":0", BaseContext: ctx}, runner, nil, logger.Nop())

	if w := doRequest(s, "POST", "/api/v1/scan"); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		running, lastErr := s.running, s.lastError
		s.mu.Unlock()
		if !running {
			if lastErr == nil {
				t.Fatal("cancelled scan recorded no error")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scan did not stop after base context cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatusReflectsLastReport(t *testing.T) {
	s := newTestServer(&fakeRunner{}, nil)
	s.mu.Lock()
	s.lastReport = &analyzer.Report{
		Completed: make([]models.RepositoryStatistics, 4),
		Failures:  []analyzer.Failure{{FullName: "octocat/broken"}},
		Paused:    true,
	}
	s.lastFinished = time.Now()
	s.mu.Unlock()

	w := doRequest(s, "GET", "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body statusResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Completed != 4 || body.Failed != 1 || !body.Paused {
		t.Errorf("unexpected status: %+v", body)
	}
}

func TestListRepositoriesFromStore(t *testing.T) {
	lister := &fakeLister{records: []models.RepositoryStatistics{
		{FullName: "octocat/alpha", TotalLOC: 100},
		{FullName: "octocat/beta", TotalLOC: 200},
	}}
	s := newTestServer(&fakeRunner{}, lister)

	w := doRequest(s, "GET", "/api/v1/repositories?limit=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Repositories []models.RepositoryStatistics `json:"repositories"`
		Count        int                           `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Repositories[0].FullName != "octocat/alpha" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestListRepositoriesBadLimit(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeLister{})
	if w := doRequest(s, "GET", "/api/v1/repositories?limit=zero"); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListRepositoriesStoreError(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeLister{err: fmt.Errorf("connection refused")})
	if w := doRequest(s, "GET", "/api/v1/repositories"); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}
