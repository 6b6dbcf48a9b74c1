package dispatcher

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/kermitt2/article-dataset-builder/internal/workflow"
)

// ListSource iterates a plain list file of DOIs, PMIDs, or PMCIDs, one per
// line, assigning a fresh UUID to every seed.
type ListSource struct {
	scanner *bufio.Scanner
	kind    string // "doi", "pmid", or "pmcid"
}

// NewListSource wraps r as a list-file source of the given identifier kind.
func NewListSource(r io.Reader, kind string) *ListSource {
	return &ListSource{scanner: bufio.NewScanner(r), kind: kind}
}

// Next returns the next non-blank line as a seed, or false when exhausted.
func (s *ListSource) Next() (workflow.Seed, bool) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		sd := workflow.Seed{ID: uuid.NewString()}
		switch s.kind {
		case "doi":
			sd.DOI = line
		case "pmid":
			sd.PMID = line
		case "pmcid":
			sd.PMCID = line
		}
		return sd, true
	}
	return workflow.Seed{}, false
}

// CORD19Source iterates a CORD-19 metadata CSV, using the externally
// supplied cord_uid as the entry id and the row itself as the metadata
// record, per §4.9 and §6's bit-exact resource file list.
type CORD19Source struct {
	reader *csv.Reader
	col    map[string]int
}

// NewCORD19Source wraps r, reading and indexing the header row.
func NewCORD19Source(r io.Reader) (*CORD19Source, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[normalizeHeader(h)] = i
	}
	return &CORD19Source{reader: reader, col: col}, nil
}

// normalizeHeader aliases the historical column-name variants (e.g.
// "Microsoft Academic Paper ID" vs "mag_id") onto the later
// cord_uid-keyed schema's names.
func normalizeHeader(h string) string {
	switch strings.ToLower(strings.TrimSpace(h)) {
	case "microsoft academic paper id":
		return "mag_id"
	case "who #covidence":
		return "who_covidence_id"
	default:
		return strings.ToLower(strings.TrimSpace(h))
	}
}

func (s *CORD19Source) field(row []string, name string) string {
	idx, ok := s.col[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Next returns the next CSV row as a seed keyed by cord_uid, or false when
// exhausted.
func (s *CORD19Source) Next() (workflow.Seed, bool) {
	for {
		row, err := s.reader.Read()
		if err == io.EOF {
			return workflow.Seed{}, false
		}
		if err != nil {
			continue
		}
		cordUID := s.field(row, "cord_uid")
		if cordUID == "" {
			continue
		}
		return workflow.Seed{
			ID:    cordUID,
			DOI:   s.field(row, "doi"),
			PMID:  s.field(row, "pubmed_id"),
			PMCID: s.field(row, "pmcid"),
			Extra: map[string]string{
				"sha":              s.field(row, "sha"),
				"title":            s.field(row, "title"),
				"license":          s.field(row, "license"),
				"abstract":         s.field(row, "abstract"),
				"publish_time":     s.field(row, "publish_time"),
				"mag_id":           s.field(row, "mag_id"),
				"who_covidence_id": s.field(row, "who_covidence_id"),
				"arxiv_id":         s.field(row, "arxiv_id"),
				"url":              s.field(row, "url"),
			},
		}, true
	}
}
