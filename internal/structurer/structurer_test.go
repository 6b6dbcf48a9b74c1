package structurer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func splitBaseAndPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Scheme + "://" + u.Hostname(), port
}

func TestFullTextRetriesOnceOn503(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<?xml version="1.0"?><TEI/>`))
	}))
	defer srv.Close()
	base, port := splitBaseAndPort(t, srv.URL)

	pdfPath := filepath.Join(t.TempDir(), "in.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644))
	destPath := filepath.Join(t.TempDir(), "out.xml")

	c := New(base, port, 10*time.Millisecond, logrus.New())
	ok, err := c.FullText(context.Background(), pdfPath, destPath)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, calls)

	data, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, `<?xml version="1.0"?><TEI/>`, string(data))
}

func TestFullTextReturnsFalseOnPersistentNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	base, port := splitBaseAndPort(t, srv.URL)

	pdfPath := filepath.Join(t.TempDir(), "in.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644))
	destPath := filepath.Join(t.TempDir(), "out.xml")

	c := New(base, port, 10*time.Millisecond, logrus.New())
	ok, err := c.FullText(context.Background(), pdfPath, destPath)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsAliveReturnsErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	base, port := splitBaseAndPort(t, srv.URL)

	c := New(base, port, 10*time.Millisecond, logrus.New())
	err := c.IsAlive(context.Background())
	require.Error(t, err)
}

func TestIsAliveSucceedsOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	base, port := splitBaseAndPort(t, srv.URL)

	c := New(base, port, 10*time.Millisecond, logrus.New())
	require.NoError(t, c.IsAlive(context.Background()))
}
