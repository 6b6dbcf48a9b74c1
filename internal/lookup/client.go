// Package lookup implements the metadata-lookup client (C3): a thin
// biblio-glutton client with a CrossRef fallback, modeled on the teacher's
// own plain net/http request helpers (edirect/eutils/extern.go, poster.go)
// rather than pulling in a full REST client framework.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
)

const requestTimeout = 5 * time.Second

// Identifiers is the subset of {DOI, PMID, PMCID, ISTEX} available for a
// lookup call.
type Identifiers struct {
	DOI   string
	PMID  string
	PMCID string
	Istex string
}

// Record is the bibliographic passthrough fields described in §3.2,
// decoded loosely since the lookup service's schema is otherwise opaque to
// this client.
type Record map[string]any

// Client queries biblio-glutton, falling back to the registrar agency API.
type Client struct {
	GluttonBase   string
	CrossrefBase  string
	CrossrefEmail string
	HTTP          *http.Client
	Log           logrus.FieldLogger
}

// New builds a Client with a bounded-timeout HTTP client.
func New(gluttonBase, crossrefBase, crossrefEmail string, log logrus.FieldLogger) *Client {
	return &Client{
		GluttonBase:   gluttonBase,
		CrossrefBase:  crossrefBase,
		CrossrefEmail: crossrefEmail,
		HTTP:          &http.Client{Timeout: requestTimeout},
		Log:           log,
	}
}

// Lookup issues up to four successive GETs against biblio-glutton in the
// order DOI, PMID, PMCID, ISTEX, returning the first 200 OK. If every
// attempt fails and a DOI is present, it falls back to the registrar API.
func (c *Client) Lookup(ctx context.Context, ids Identifiers) (Record, error) {
	type attempt struct {
		param string
		value string
	}
	attempts := []attempt{
		{"doi", ids.DOI},
		{"pmid", ids.PMID},
		{"pmc", ids.PMCID},
		{"istexid", ids.Istex},
	}

	var lastErr error
	for _, a := range attempts {
		if a.value == "" {
			continue
		}
		rec, err := c.gluttonCall(ctx, a.param, a.value)
		if err == nil {
			return rec, nil
		}
		lastErr = err
	}

	if ids.DOI != "" {
		rec, err := c.crossrefCall(ctx, ids.DOI)
		if err == nil {
			return rec, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no identifiers supplied")
	}
	return nil, errs.Network("metadata lookup", lastErr)
}

func (c *Client) gluttonCall(ctx context.Context, param, value string) (Record, error) {
	url := fmt.Sprintf("%s/service/lookup?%s=%s", c.GluttonBase, param, value)
	return c.getJSON(ctx, url, "")
}

func (c *Client) crossrefCall(ctx context.Context, doi string) (Record, error) {
	url := fmt.Sprintf("%s/works/%s", c.CrossrefBase, doi)
	ua := "article-dataset-builder"
	if c.CrossrefEmail != "" {
		ua = fmt.Sprintf("article-dataset-builder (mailto:%s)", c.CrossrefEmail)
	}
	rec, err := c.getJSON(ctx, url, ua)
	if err != nil {
		return nil, err
	}
	delete(rec, "reference")
	if msg, ok := rec["message"].(map[string]any); ok {
		delete(msg, "reference")
	}
	return rec, nil
}

func (c *Client) getJSON(ctx context.Context, url, userAgent string) (Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
