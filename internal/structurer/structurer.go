// Package structurer implements the GROBID client (C6): full-text
// structuring and reference-annotation calls, each posting a PDF as
// multipart form data and retrying once on HTTP 503.
package structurer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
	"github.com/kermitt2/article-dataset-builder/internal/metrics"
)

const callTimeout = 60 * time.Second

// Client posts PDFs to a running GROBID instance.
type Client struct {
	Base      string
	Port      int
	SleepTime time.Duration
	HTTP      *http.Client
	Metrics   *metrics.Collectors
	Log       logrus.FieldLogger
}

// New builds a Client bound to base:port.
func New(base string, port int, sleepTime time.Duration, log logrus.FieldLogger) *Client {
	return &Client{
		Base:      base,
		Port:      port,
		SleepTime: sleepTime,
		HTTP:      &http.Client{Timeout: callTimeout},
		Log:       log,
	}
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s:%d%s", c.Base, c.Port, path)
}

// IsAlive probes the service's isalive endpoint. A failure here is a
// DependencyError: logged at startup, never fatal, and later structuring
// calls degrade gracefully on their own retry path.
func (c *Client) IsAlive(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/isalive"), nil)
	if err != nil {
		return errs.Dependency("build GROBID aliveness probe", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errs.Dependency("reach GROBID service", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.Dependency("GROBID aliveness probe", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

// FullText posts pdfPath to processFulltextDocument and writes the
// resulting TEI XML to destXML. Returns true only when a body was
// written.
func (c *Client) FullText(ctx context.Context, pdfPath, destXML string) (bool, error) {
	fields := map[string]string{
		"generateIDs":            "1",
		"consolidateHeader":      "1",
		"consolidateCitations":   "0",
		"includeRawCitations":    "1",
		"includeRawAffiliations": "1",
		"teiCoordinates":         "ref,biblStruct,persName,figure,formula,s",
	}
	return c.call(ctx, "/api/processFulltextDocument", pdfPath, fields, "application/xml", destXML)
}

// ReferenceAnnotations posts pdfPath to referenceAnnotations and writes the
// resulting JSON to destJSON.
func (c *Client) ReferenceAnnotations(ctx context.Context, pdfPath, destJSON string) (bool, error) {
	fields := map[string]string{
		"consolidateCitations": "1",
	}
	return c.call(ctx, "/api/referenceAnnotations", pdfPath, fields, "application/json", destJSON)
}

func (c *Client) call(ctx context.Context, path, pdfPath string, fields map[string]string, accept, dest string) (bool, error) {
	body, contentType, err := buildMultipart(pdfPath, fields)
	if err != nil {
		return false, errs.Storage("build multipart request", err)
	}

	resp, err := c.post(ctx, path, body, contentType, accept)
	if err != nil {
		return false, errs.Network(fmt.Sprintf("call %s", path), err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		resp.Body.Close()
		c.Log.WithField("path", path).Debug("GROBID busy, retrying once after sleep")
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(c.SleepTime):
		}
		body, contentType, err = buildMultipart(pdfPath, fields)
		if err != nil {
			return false, errs.Storage("rebuild multipart request", err)
		}
		resp, err = c.post(ctx, path, body, contentType, accept)
		if err != nil {
			return false, errs.Network(fmt.Sprintf("retry call %s", path), err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Log.WithField("status", resp.StatusCode).WithField("path", path).Warn("structuring call returned non-200")
		c.recordOutcome(path, "non_200")
		return false, nil
	}
	c.recordOutcome(path, "success")

	out, err := os.Create(dest)
	if err != nil {
		return false, errs.Storage("create structuring output file", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return false, errs.Storage("write structuring output", err)
	}
	return true, nil
}

func (c *Client) recordOutcome(path, outcome string) {
	if c.Metrics == nil {
		return
	}
	c.Metrics.StructuringCalls.WithLabelValues(path, outcome).Inc()
}

func (c *Client) post(ctx context.Context, path string, body *bytes.Buffer, contentType, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", accept)
	return c.HTTP.Do(req)
}

func buildMultipart(pdfPath string, fields map[string]string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	part, err := w.CreateFormFile("input", pdfPath)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
