package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"repogauge/internal/models"
)

func setupMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreWithDB(db), mock
}

func sampleRecord() *models.RepositoryStatistics {
	return &models.RepositoryStatistics{
		FullName:         "octocat/widget",
		Name:             "widget",
		Visibility:       "public",
		DefaultBranch:    "main",
		PrimaryLanguage:  "Go",
		Languages:        map[string]int{"Go": 420},
		FileTypes:        map[string]int{".go": 7},
		TotalFiles:       9,
		TotalLOC:         420,
		HasReadme:        true,
		HasTests:         true,
		TestFileCount:    2,
		License:          "MIT",
		Stars:            12,
		LastCommit:       time.Now().AddDate(0, 0, -3),
		IsActive:         true,
		MaintenanceScore: 55,
		Anomalies:        []string{},
		AnalyzedAt:       time.Now(),
	}
}

func TestUpsertStatistics(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("INSERT INTO repository_statistics").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.UpsertStatistics(sampleRecord()); err != nil {
		t.Fatalf("UpsertStatistics: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpsertStatisticsPropagatesError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("INSERT INTO repository_statistics").
		WillReturnError(fmt.Errorf("connection reset"))

	if err := store.UpsertStatistics(sampleRecord()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSaveAllUsesOneTransaction(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO repository_statistics").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO repository_statistics").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	second := sampleRecord()
	second.FullName = "octocat/gadget"
	records := []models.RepositoryStatistics{*sampleRecord(), *second}

	if err := store.SaveAll(records); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSaveAllRollsBackOnFailure(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO repository_statistics").
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	if err := store.SaveAll([]models.RepositoryStatistics{*sampleRecord()}); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListStatistics(t *testing.T) {
	store, mock := setupMockStore(t)

	rows := sqlmock.NewRows([]string{
		"full_name", "name", "primary_language", "total_files", "total_loc",
		"stars", "forks", "open_issues", "is_active",
		"maintenance_score", "popularity_score", "code_quality_score", "documentation_score",
		"anomalies", "is_empty", "analyzed_at",
	}).AddRow(
		"octocat/widget", "widget", "Go", 9, 420,
		12, 1, 0, true,
		55.0, 20.0, 60.0, 50.0,
		"{}", false, time.Now(),
	)

	mock.ExpectQuery("SELECT full_name, name, primary_language").
		WithArgs(50).
		WillReturnRows(rows)

	records, err := store.ListStatistics(50)
	if err != nil {
		t.Fatalf("ListStatistics: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].FullName != "octocat/widget" || records[0].TotalLOC != 420 {
		t.Errorf("unexpected record: %+v", records[0])
	}
}
