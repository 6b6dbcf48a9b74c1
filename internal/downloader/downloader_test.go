package downloader

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFindRedirectAnchorFindsHref(t *testing.T) {
	body := `<html><body><p>please wait</p><a id="redirect" href="https://example.com/next">continue</a></body></html>`
	href, found := findRedirectAnchor(body)
	require.True(t, found)
	require.Equal(t, "https://example.com/next", href)
}

func TestFindRedirectAnchorNoMatch(t *testing.T) {
	_, found := findRedirectAnchor(`<html><body><a href="https://example.com">no id</a></body></html>`)
	require.False(t, found)
}

// TestCloudScrapeFetchRecoversFromInterstitial implements spec scenario S6:
// the first response is an interstitial redirect page, the second is a
// PDF body; the fetch should sleep once and return the second response's
// bytes.
func TestCloudScrapeFetchRecoversFromInterstitial(t *testing.T) {
	var hits int
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/first", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`<html><body><a id="redirect" href="` + srv.URL + `/second"></a></body></html>`))
	})
	mux.HandleFunc("/second", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("%PDF-1.4 rest of content"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	d := &Downloader{
		CallTimeout: 5 * time.Second,
		Rand:        rand.New(rand.NewSource(1)),
		Log:         logrus.New(),
	}

	dest := filepath.Join(t.TempDir(), "out.pdf")
	ok := d.cloudScrapeFetch(context.Background(), srv.URL+"/first", dest)
	require.True(t, ok)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Contains(t, string(data), "%PDF-")
	require.Equal(t, 2, hits)
}

func TestPickUserAgentAlwaysReturnsKnownValue(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	known := map[string]bool{}
	for _, ua := range userAgents {
		known[ua.value] = true
	}
	for i := 0; i < 50; i++ {
		require.True(t, known[pickUserAgent(rnd)])
	}
}

func TestValidateMIMERejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pdf")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.False(t, ValidateMIME(path, "application/pdf"))
}
