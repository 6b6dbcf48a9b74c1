package resources

import (
	"encoding/json"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
	"github.com/kermitt2/article-dataset-builder/internal/kvstore"
)

// LookupPMCOA returns the PMC OA entry for pmcid, or nil if not present.
func LookupPMCOA(m *kvstore.Map, pmcid string) (*PMCOAEntry, error) {
	data, err := m.Get([]byte(pmcid))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var e PMCOAEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errs.Storage("unmarshal pmc_oa entry", err)
	}
	return &e, nil
}
