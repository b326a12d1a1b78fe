package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repogauge/internal/models"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))
}

func TestLoadMissingIsSilentEmpty(t *testing.T) {
	store := tempStore(t)

	record, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	store := tempStore(t)

	completed := []models.RepositoryStatistics{
		{FullName: "acme/one", TotalLOC: 120, Languages: map[string]int{"Go": 120}},
		{FullName: "acme/two", TotalLOC: 40, Languages: map[string]int{"Python": 40}},
	}
	err := store.Save(completed, []string{"acme/one", "acme/two"}, []string{"acme/three"})
	require.NoError(t, err)

	record, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Len(t, record.CompletedStats, 2)
	assert.Equal(t, []string{"acme/one", "acme/two"}, record.CompletedNames)
	assert.Equal(t, []string{"acme/three"}, record.PendingRepos)
	assert.False(t, record.SavedAt.IsZero())
	assert.Equal(t, 120, record.CompletedStats[0].TotalLOC)
}

func TestSaveSupersedesPrevious(t *testing.T) {
	store := tempStore(t)

	require.NoError(t, store.Save(nil, []string{"acme/one"}, []string{"acme/two", "acme/three"}))
	require.NoError(t, store.Save(nil, []string{"acme/one", "acme/two"}, []string{"acme/three"}))

	record, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, record)

	// Last write wins, no merging.
	assert.Equal(t, []string{"acme/one", "acme/two"}, record.CompletedNames)
	assert.Equal(t, []string{"acme/three"}, record.PendingRepos)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "checkpoint.json"))

	require.NoError(t, store.Save(nil, []string{"a/b"}, nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "checkpoint.json", entries[0].Name())
}

func TestClear(t *testing.T) {
	store := tempStore(t)

	require.NoError(t, store.Save(nil, []string{"a/b"}, nil))
	require.NoError(t, store.Clear())

	record, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, record)

	// Clearing twice is fine.
	require.NoError(t, store.Clear())
}

func TestCompletedSet(t *testing.T) {
	record := &models.CheckpointRecord{CompletedNames: []string{"a/b", "c/d"}}
	set := record.CompletedSet()
	assert.True(t, set["a/b"])
	assert.True(t, set["c/d"])
	assert.False(t, set["e/f"])
}
