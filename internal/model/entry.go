// Package model defines the Entry record and the pure functions that derive
// its on-disk layout and identifier normalization, independent of storage.
package model

import (
	"strings"
)

// Entry is the consolidated record for a single harvested article. Strong
// identifiers and bibliographic passthrough fields are optional; Extra holds
// any additional lookup-service fields that have no dedicated struct field,
// so that metadata from biblio-glutton/CrossRef is never silently dropped.
type Entry struct {
	ID string `json:"id"`

	DOI     string `json:"DOI,omitempty"`
	PMID    string `json:"pmid,omitempty"`
	PMCID   string `json:"pmcid,omitempty"`
	ArxivID string `json:"arxiv_id,omitempty"`
	PII     string `json:"pii,omitempty"`
	CordSHA string `json:"cord_sha,omitempty"`
	CordUID string `json:"cord_uid,omitempty"`

	Title             string   `json:"title,omitempty"`
	Year              string   `json:"year,omitempty"`
	Authors           []string `json:"authors,omitempty"`
	Journal           string   `json:"journal,omitempty"`
	Abstract          string   `json:"abstract,omitempty"`
	LicenseSimplified string   `json:"license-simplified,omitempty"`
	MAGID             string   `json:"MAG_ID,omitempty"`
	WHOCovidence      string   `json:"WHO_Covidence,omitempty"`
	OALink            string   `json:"oaLink,omitempty"`

	HasValidOAURL        bool `json:"has_valid_oa_url"`
	HasValidPDF          bool `json:"has_valid_pdf"`
	HasValidTEI          bool `json:"has_valid_tei"`
	HasValidRefAnnot     bool `json:"has_valid_ref_annotation"`
	HasValidThumbnail    bool `json:"has_valid_thumbnail"`

	DataPath string `json:"data_path,omitempty"`

	// Extra carries any lookup-service fields with no dedicated column above,
	// preserved verbatim through opaque passthrough.
	Extra map[string]any `json:"extra,omitempty"`
}

// StrongIdentifiers returns every non-empty strong identifier present on the
// entry, in a stable order, for indexing into the identifier->UUID map.
func (e *Entry) StrongIdentifiers() []string {
	var out []string
	if e.DOI != "" {
		out = append(out, e.DOI)
	}
	if e.PMID != "" {
		out = append(out, e.PMID)
	}
	if e.PMCID != "" {
		out = append(out, e.PMCID)
	}
	if e.ArxivID != "" {
		out = append(out, e.ArxivID)
	}
	if e.PII != "" {
		out = append(out, e.PII)
	}
	if e.CordUID != "" {
		out = append(out, e.CordUID)
	}
	if e.CordSHA != "" {
		out = append(out, e.CordSHA)
	}
	if e.ID != "" {
		out = append(out, e.ID)
	}
	return out
}

// ShardedPath computes the four-level 2-hex-character directory layout used
// to distribute entries on disk: id[0:2]/id[2:4]/id[4:6]/id[6:8]/id/. This is
// the only persistent path computation and must be reproduced bit-exactly.
func ShardedPath(id string) string {
	var b strings.Builder
	n := len(id)
	for _, end := range []int{2, 4, 6, 8} {
		if n < end {
			break
		}
		b.WriteString(id[end-2 : end])
		b.WriteByte('/')
	}
	b.WriteString(id)
	b.WriteByte('/')
	return b.String()
}

// CleanDOI lowercases, trims surrounding whitespace, and strips a leading
// doi.org resolver prefix from a raw DOI string.
func CleanDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	lower := strings.ToLower(doi)
	for _, prefix := range []string{"https://doi.org/", "http://dx.doi.org/"} {
		if strings.HasPrefix(lower, prefix) {
			doi = doi[len(prefix):]
			lower = lower[len(prefix):]
			break
		}
	}
	return strings.ToLower(strings.TrimSpace(doi))
}

// InitStateFlags ensures the five boolean flags exist set to false. Entry's
// zero value already satisfies this; the helper exists for parity with
// entries decoded from legacy byte blobs where the flags might be absent,
// and to make call sites that "initialize" an entry self-documenting.
func InitStateFlags(e *Entry) *Entry {
	return e
}

// IsFullyStructured reports whether the entry satisfies the terminal-success
// state for the set of features that were enabled for this run.
func (e *Entry) IsFullyStructured(wantTEI, wantAnnotation, wantThumbnail bool) bool {
	if !e.HasValidOAURL || !e.HasValidPDF {
		return false
	}
	if wantTEI && !e.HasValidTEI {
		return false
	}
	if wantAnnotation && !e.HasValidRefAnnot {
		return false
	}
	if wantThumbnail && !e.HasValidThumbnail {
		return false
	}
	return true
}
