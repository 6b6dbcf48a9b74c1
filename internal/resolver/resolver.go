// Package resolver implements the OA URL resolution order (C4): local
// Elsevier mirror, legacy workspace, PMC OA FTP, Unpaywall, and finally the
// biblio-glutton oaLink already attached to an entry.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
	"github.com/kermitt2/article-dataset-builder/internal/kvstore"
	"github.com/kermitt2/article-dataset-builder/internal/model"
	"github.com/kermitt2/article-dataset-builder/internal/resources"
)

const unpaywallTimeout = 10 * time.Second

// Config carries every external dependency the resolver needs, all
// optional except what a given step requires.
type Config struct {
	ElsevierMap    resources.ElsevierOAMap
	ElsevierMirror string
	LegacyDataPath string
	PMCOAMap       *kvstore.Map
	PMCBaseFTP     string
	PMCBaseWeb     string
	UnpaywallBase  string
	UnpaywallEmail string
	HTTP           *http.Client
	Log            logrus.FieldLogger
}

// Resolve returns the best OA URL for e, trying each strategy in order and
// short-circuiting on the first success.
func Resolve(ctx context.Context, cfg Config, e *model.Entry) (string, bool) {
	if url, ok := fromElsevierMirror(cfg, e); ok {
		return url, true
	}
	if url, ok := fromLegacyWorkspace(cfg, e); ok {
		return url, true
	}
	if url, ok := fromPMCOAFTP(cfg, e); ok {
		return url, true
	}
	if url, ok := fromUnpaywall(ctx, cfg, e); ok {
		return url, true
	}
	if e.OALink != "" {
		return e.OALink, true
	}
	return "", false
}

func fromElsevierMirror(cfg Config, e *model.Entry) (string, bool) {
	if cfg.ElsevierMap == nil {
		return "", false
	}
	path, ok := cfg.ElsevierMap.Lookup(cfg.ElsevierMirror, e.DOI, e.PII)
	if !ok {
		return "", false
	}
	return "file://" + path, true
}

func fromLegacyWorkspace(cfg Config, e *model.Entry) (string, bool) {
	if cfg.LegacyDataPath == "" || e.ID == "" {
		return "", false
	}
	candidate := filepath.Join(cfg.LegacyDataPath, model.ShardedPath(e.ID), e.ID+".pdf")
	info, err := os.Stat(candidate)
	if err != nil || info.Size() == 0 {
		return "", false
	}
	mt, err := mimetype.DetectFile(candidate)
	if err != nil || mt.String() != "application/pdf" {
		return "", false
	}
	return "file://" + candidate, true
}

func fromPMCOAFTP(cfg Config, e *model.Entry) (string, bool) {
	if cfg.PMCOAMap == nil || e.PMCID == "" {
		return "", false
	}
	entry, err := resources.LookupPMCOA(cfg.PMCOAMap, e.PMCID)
	if err != nil || entry == nil {
		return "", false
	}
	return strings.TrimRight(cfg.PMCBaseFTP, "/") + "/" + strings.TrimLeft(entry.Subpath, "/"), true
}

type unpaywallResponse struct {
	BestOALocation *oaLocation `json:"best_oa_location"`
	OALocations    []oaLocation `json:"oa_locations"`
}

type oaLocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
}

func fromUnpaywall(ctx context.Context, cfg Config, e *model.Entry) (string, bool) {
	if cfg.UnpaywallBase == "" || e.DOI == "" {
		return "", false
	}
	client := cfg.HTTP
	if client == nil {
		client = &http.Client{Timeout: unpaywallTimeout}
	}
	url := fmt.Sprintf("%s/v2/%s?email=%s", strings.TrimRight(cfg.UnpaywallBase, "/"), e.DOI, cfg.UnpaywallEmail)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false
	}
	resp, err := client.Do(req)
	if err != nil {
		if cfg.Log != nil {
			cfg.Log.WithError(err).Debug("Unpaywall call failed")
		}
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}
	var parsed unpaywallResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false
	}
	return selectUnpaywallURL(parsed, cfg.PMCBaseWeb)
}

// selectUnpaywallURL implements the preference rules of §4.4 step 4 and the
// worked example of §8 testable property 6.
func selectUnpaywallURL(r unpaywallResponse, pmcBaseWeb string) (string, bool) {
	if r.BestOALocation != nil {
		if r.BestOALocation.URLForPDF != "" {
			return r.BestOALocation.URLForPDF, true
		}
		if pmcBaseWeb != "" && strings.HasPrefix(r.BestOALocation.URL, pmcBaseWeb) {
			return strings.TrimRight(r.BestOALocation.URL, "/") + "/pdf/", true
		}
	}

	var pmcCandidate, anyCandidate string
	for _, loc := range r.OALocations {
		if strings.Contains(loc.URL, "pmc") || strings.Contains(loc.URLForPDF, "pmc") {
			if pmcCandidate == "" {
				if loc.URL != "" {
					pmcCandidate = strings.TrimRight(loc.URL, "/") + "/pdf/"
				} else if loc.URLForPDF != "" {
					pmcCandidate = strings.TrimRight(loc.URLForPDF, "/") + "/pdf/"
				}
			}
		}
		if anyCandidate == "" && loc.URLForPDF != "" {
			anyCandidate = loc.URLForPDF
		}
	}
	if pmcCandidate != "" {
		return pmcCandidate, true
	}
	if anyCandidate != "" {
		return anyCandidate, true
	}
	return "", false
}
