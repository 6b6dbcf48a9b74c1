package resources

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
)

// ElsevierOAMap is the in-memory map from lowercased DOI or PII to a
// relative PDF filename inside the configured Elsevier mirror directory.
type ElsevierOAMap map[string]string

// LoadElsevierOAMap loads the gzip-compressed CSV resource (header columns
// include doi, pii, pdf) using klauspost/pgzip for parallel decompression,
// the same dependency the teacher package pulls in directly for its own
// large-file gzip handling (edirect/eutils/poster.go, extern.go).
func LoadElsevierOAMap(resourcePath, mapPath string, log logrus.FieldLogger) (ElsevierOAMap, error) {
	if mapPath == "" {
		return nil, nil
	}
	fullPath := filepath.Join(resourcePath, mapPath)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		log.WithField("path", fullPath).Warn("Elsevier OA map file not found, skipping")
		return ElsevierOAMap{}, nil
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, errs.Storage("open Elsevier OA map", err)
	}
	defer f.Close()

	zr, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errs.Storage("open gzip reader on Elsevier OA map", err)
	}
	defer zr.Close()

	result := make(ElsevierOAMap)
	reader := csv.NewReader(zr)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return result, nil
	}
	if err != nil {
		return nil, errs.Storage("read Elsevier OA map header", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	doiIdx, hasDOI := col["doi"]
	piiIdx, hasPII := col["pii"]
	pdfIdx, hasPDF := col["pdf"]
	if !hasPDF {
		return nil, errs.Validation("validate Elsevier OA map header", nil)
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Storage("read Elsevier OA map row", err)
		}
		if pdfIdx >= len(row) {
			continue
		}
		pdf := row[pdfIdx]
		if pdf == "" {
			continue
		}
		if hasDOI && doiIdx < len(row) && row[doiIdx] != "" {
			result[strings.ToLower(row[doiIdx])] = pdf
		}
		if hasPII && piiIdx < len(row) && row[piiIdx] != "" {
			result[row[piiIdx]] = pdf
		}
	}
	log.WithField("entries", len(result)).Info("loaded Elsevier OA map")
	return result, nil
}

// Lookup returns the mirrored PDF's full path for the given DOI or PII, and
// whether it was found.
func (m ElsevierOAMap) Lookup(mirrorDir, doi, pii string) (string, bool) {
	if m == nil {
		return "", false
	}
	if doi != "" {
		if pdf, ok := m[strings.ToLower(doi)]; ok {
			return filepath.Join(mirrorDir, pdf), true
		}
	}
	if pii != "" {
		if pdf, ok := m[pii]; ok {
			return filepath.Join(mirrorDir, pdf), true
		}
	}
	return "", false
}
