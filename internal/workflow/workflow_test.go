package workflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kermitt2/article-dataset-builder/internal/downloader"
	"github.com/kermitt2/article-dataset-builder/internal/kvstore"
	"github.com/kermitt2/article-dataset-builder/internal/lookup"
	"github.com/kermitt2/article-dataset-builder/internal/resolver"
	"github.com/kermitt2/article-dataset-builder/internal/structurer"
)

// TestProcessTaskHappyPath implements spec scenario S1: a DOI-only entry
// whose metadata lookup returns an oaLink, whose download yields a valid
// PDF, and whose structuring call yields a valid TEI document.
func TestProcessTaskHappyPath(t *testing.T) {
	log := logrus.New()

	pdfServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.4 minimal valid body"))
	}))
	defer pdfServer.Close()

	gluttonServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"DOI":"10.1/abc","oaLink":"` + pdfServer.URL + `/x.pdf"}`))
	}))
	defer gluttonServer.Close()

	structServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<?xml version="1.0"?><TEI/>`))
	}))
	defer structServer.Close()

	store, err := kvstore.OpenStore(t.TempDir(), log)
	require.NoError(t, err)
	defer store.Close()

	scratch := t.TempDir()

	lookupClient := lookup.New(gluttonServer.URL, "", "", log)
	dl := downloader.New("", log)

	host, portStr := splitHostPort(t, structServer.URL)
	port := atoiT(t, portStr)
	structClient := structurer.New(host, port, 10*time.Millisecond, log)

	proc := &Processor{
		Store:      store,
		Lookup:     lookupClient,
		Resolver:   resolver.Config{Log: log},
		Downloader: dl,
		Structurer: structClient,
		ScratchDir: scratch,
		Options:    Options{EnableStructuring: true},
		Log:        log,
	}

	seed := Seed{ID: "id-1", DOI: "10.1/abc"}
	e, err := proc.ProcessTask(context.Background(), seed)
	require.NoError(t, err)
	require.NotNil(t, e)

	require.True(t, e.HasValidOAURL)
	require.True(t, e.HasValidPDF)
	require.True(t, e.HasValidTEI)
	require.Equal(t, "10.1/abc", e.DOI)

	stored, err := store.GetEntry("id-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.True(t, stored.HasValidPDF)

	_, statErr := os.Stat(filepath.Join(scratch, "id-1.json"))
	require.NoError(t, statErr)
}

// TestLoadOrSynthesizeRefreshesCORD19MetadataOnRevisit documents the
// RefreshAlways contract: a CORD-19 seed revisiting an already-stored entry
// must reapply the CSV row's fields rather than returning the stale entry
// untouched.
func TestLoadOrSynthesizeRefreshesCORD19MetadataOnRevisit(t *testing.T) {
	log := logrus.New()

	store, err := kvstore.OpenStore(t.TempDir(), log)
	require.NoError(t, err)
	defer store.Close()

	proc := &Processor{Store: store, Log: log}

	first := Seed{ID: "cord-1", Extra: map[string]string{"sha": "sha-a", "title": "Original Title"}}
	e, err := proc.loadOrSynthesize(context.Background(), first)
	require.NoError(t, err)
	require.NoError(t, store.PutEntry(e))
	require.Equal(t, "Original Title", e.Title)
	require.Equal(t, "sha-a", e.CordSHA)

	second := Seed{ID: "cord-1", Extra: map[string]string{"sha": "sha-b", "title": "Updated Title"}}
	refreshed, err := proc.loadOrSynthesize(context.Background(), second)
	require.NoError(t, err)
	require.Equal(t, "Updated Title", refreshed.Title)
	require.Equal(t, "sha-b", refreshed.CordSHA)
}

func splitHostPort(t *testing.T, rawURL string) (string, string) {
	t.Helper()
	trimmed := rawURL
	for _, prefix := range []string{"http://", "https://"} {
		if len(trimmed) >= len(prefix) && trimmed[:len(prefix)] == prefix {
			trimmed = trimmed[len(prefix):]
			break
		}
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] == ':' {
			return "http://" + trimmed[:i], trimmed[i+1:]
		}
	}
	return "http://" + trimmed, ""
}

func atoiT(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		require.True(t, c >= '0' && c <= '9')
		n = n*10 + int(c-'0')
	}
	return n
}
