// Package resources builds the two read-only lookup resources described in
// §4.2: the PMC OA file listing (a badger-backed map, built once) and the
// Elsevier OA mapping (an in-memory map loaded from a gzip CSV). Loading the
// PMC TSV with pgzip-free buffered scanning mirrors the teacher's own
// stdlib-bufio-scanner style (edirect/eutils/cache.go, extern.go), while the
// gzip CSV path reuses klauspost/pgzip, the teacher's direct decompression
// dependency.
package resources

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
	"github.com/kermitt2/article-dataset-builder/internal/kvstore"
)

// PMCOAEntry is the value stored for a PMCID in the pmc_oa map.
type PMCOAEntry struct {
	Subpath string `json:"subpath"`
	PMID    string `json:"pmid"`
	License string `json:"license"`
}

const pmcOAListURL = "ftp://ftp.ncbi.nlm.nih.gov/pub/pmc/oa_file_list.txt"

// EnsurePMCOAMap builds the pmc_oa badger map under resourcePath exactly
// once: if the TSV resource file is absent it is fetched first, then built
// idempotently (presence of the map directory short-circuits rebuilding on
// subsequent runs), and finally reopened read-only.
func EnsurePMCOAMap(resourcePath string, fetch func(url, dest string) error, log logrus.FieldLogger) (*kvstore.Map, error) {
	resourceFile := filepath.Join(resourcePath, "oa_file_list.txt")
	mapDir := filepath.Join(resourcePath, "pmc_oa")

	if _, err := os.Stat(resourceFile); os.IsNotExist(err) {
		log.WithField("url", pmcOAListURL).Info("downloading PMC resource file")
		if err := fetch(pmcOAListURL, resourceFile); err != nil {
			return nil, errs.Network("download PMC OA file list", err)
		}
	}

	if _, err := os.Stat(mapDir); os.IsNotExist(err) {
		if err := buildPMCOAMap(resourceFile, mapDir, log); err != nil {
			return nil, err
		}
	}

	return kvstore.Open("pmc_oa", mapDir, true, log)
}

func buildPMCOAMap(resourceFile, mapDir string, log logrus.FieldLogger) error {
	m, err := kvstore.Open("pmc_oa", mapDir, false, log)
	if err != nil {
		return err
	}
	defer m.Close()

	f, err := os.Open(resourceFile)
	if err != nil {
		return errs.Storage("open PMC OA resource file", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	count := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			// first line is just a build timestamp
			continue
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 5 {
			continue
		}
		subpath := cols[0]
		pmcid := cols[2]
		pmid := cols[3]
		license := strings.TrimRight(cols[4], "\r\n")

		value := fmt.Sprintf(`{"subpath":%q,"pmid":%q,"license":%q}`, subpath, pmid, license)
		if err := m.Put([]byte(pmcid), []byte(value)); err != nil {
			return err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return errs.Storage("scan PMC OA resource file", err)
	}
	log.WithField("entries", count).Info("built PMC OA resource map")
	return nil
}

// FetchHTTP is a basic fetch helper suitable for the fetch callback of
// EnsurePMCOAMap when the resource is reachable over HTTPS mirrors of the
// NCBI FTP listing (the FTP scheme itself is handled by the downloader
// package transports in production wiring).
func FetchHTTP(url, dest string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}
