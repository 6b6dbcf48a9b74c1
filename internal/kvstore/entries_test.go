package kvstore

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kermitt2/article-dataset-builder/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir(), logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutAndGetEntryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	e := &model.Entry{ID: "e1", DOI: "10.1/a", Title: "hello"}
	require.NoError(t, s.PutEntry(e))

	got, err := s.GetEntry("e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "10.1/a", got.DOI)
	require.Equal(t, "hello", got.Title)
}

func TestGetEntryMissingReturnsNilNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetEntry("missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestIndexIdentifiersThenUUIDForIdentifierResolves(t *testing.T) {
	s := openTestStore(t)
	e := &model.Entry{ID: "e2", DOI: "10.1/b", PMID: "555"}
	require.NoError(t, s.IndexIdentifiers(e))

	id, err := s.UUIDForIdentifier("10.1/b")
	require.NoError(t, err)
	require.Equal(t, "e2", id)

	id, err = s.UUIDForIdentifier("555")
	require.NoError(t, err)
	require.Equal(t, "e2", id)

	id, err = s.UUIDForIdentifier("never-seen")
	require.NoError(t, err)
	require.Equal(t, "", id)
}

func TestResetClearsBothMapsAndCache(t *testing.T) {
	s := openTestStore(t)
	e := &model.Entry{ID: "e3", DOI: "10.1/c"}
	require.NoError(t, s.PutEntry(e))
	require.NoError(t, s.IndexIdentifiers(e))

	require.NoError(t, s.Reset())

	got, err := s.GetEntry("e3")
	require.NoError(t, err)
	require.Nil(t, got)

	id, err := s.UUIDForIdentifier("10.1/c")
	require.NoError(t, err)
	require.Equal(t, "", id)
}

func TestIterateEntriesVisitsAllStored(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutEntry(&model.Entry{ID: "a"}))
	require.NoError(t, s.PutEntry(&model.Entry{ID: "b"}))

	seen := map[string]bool{}
	require.NoError(t, s.IterateEntries(func(e *model.Entry) bool {
		seen[e.ID] = true
		return true
	}))
	require.Len(t, seen, 2)
	require.True(t, seen["a"])
	require.True(t, seen["b"])
}
