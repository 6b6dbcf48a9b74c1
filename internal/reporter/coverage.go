package reporter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
	"github.com/kermitt2/article-dataset-builder/internal/model"
)

// CoverageReport is the supplemented CORD-19 coverage diagnostic: it
// compares the official cord_uid list against the cord_uids of the stored
// entries, emitting missed/extra entry CSVs and per-year counts of the
// stored entries. It does not walk the document_parses trees or the
// sharded output tree.
type CoverageReport struct {
	MissedEntries []string // cord_uid present in official set, absent from ours
	ExtraEntries  []string // cord_uid present in ours, absent from official set
	YearCounts    map[string]int
}

// RunCoverageReport compares the official CORD-19 cord_uid set
// (officialUIDs) against every cord_uid currently stored, and writes
// missed_entries.csv / extra_entries.csv under outputDir.
func (r *Reporter) RunCoverageReport(officialUIDs []string, outputDir string) (CoverageReport, error) {
	official := make(map[string]bool, len(officialUIDs))
	for _, uid := range officialUIDs {
		official[uid] = true
	}

	ours := make(map[string]bool)
	report := CoverageReport{YearCounts: map[string]int{}}

	err := r.Store.IterateEntries(func(e *model.Entry) bool {
		if e.CordUID == "" {
			return true
		}
		ours[e.CordUID] = true
		if e.Year != "" {
			report.YearCounts[e.Year]++
		}
		return true
	})
	if err != nil {
		return report, err
	}

	for uid := range official {
		if !ours[uid] {
			report.MissedEntries = append(report.MissedEntries, uid)
		}
	}
	for uid := range ours {
		if !official[uid] {
			report.ExtraEntries = append(report.ExtraEntries, uid)
		}
	}

	if err := writeUIDCSV(filepath.Join(outputDir, "missed_entries.csv"), report.MissedEntries); err != nil {
		return report, err
	}
	if err := writeUIDCSV(filepath.Join(outputDir, "extra_entries.csv"), report.ExtraEntries); err != nil {
		return report, err
	}
	return report, nil
}

func writeUIDCSV(path string, uids []string) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.Storage("create coverage CSV", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	for _, uid := range uids {
		if err := w.Write([]string{uid}); err != nil {
			return errs.Storage("write coverage CSV row", err)
		}
	}
	return nil
}

// ReadCordUIDColumn extracts the cord_uid column from a CORD-19 metadata
// CSV, for callers building the officialUIDs list passed to
// RunCoverageReport.
func ReadCordUIDColumn(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Storage("open CORD-19 metadata CSV", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, errs.Storage("read CORD-19 metadata header", err)
	}
	idx := -1
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) == "cord_uid" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errs.Validation("locate cord_uid column", nil)
	}

	var uids []string
	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		if idx < len(row) && row[idx] != "" {
			uids = append(uids, strings.TrimSpace(row[idx]))
		}
	}
	return uids, nil
}
