package main

import (
	"github.com/kermitt2/article-dataset-builder/internal/kvstore"
	"github.com/kermitt2/article-dataset-builder/internal/model"
	"github.com/kermitt2/article-dataset-builder/internal/workflow"
)

// reprocessSource walks every stored entry once, yielding a seed for any
// entry with at least one false state flag, per the supplemented
// reprocessFailed feature.
type reprocessSource struct {
	pending []workflow.Seed
	loaded  bool
	store   *kvstore.Store
}

func newReprocessSource(store *kvstore.Store) *reprocessSource {
	return &reprocessSource{store: store}
}

func (s *reprocessSource) load() {
	_ = s.store.IterateEntries(func(e *model.Entry) bool {
		if needsReprocessing(e) {
			s.pending = append(s.pending, workflow.Seed{
				ID:    e.ID,
				DOI:   e.DOI,
				PMID:  e.PMID,
				PMCID: e.PMCID,
			})
		}
		return true
	})
	s.loaded = true
}

func needsReprocessing(e *model.Entry) bool {
	return !e.HasValidOAURL || !e.HasValidPDF || !e.HasValidTEI ||
		!e.HasValidRefAnnot || !e.HasValidThumbnail
}

// Next implements dispatcher.Source.
func (s *reprocessSource) Next() (workflow.Seed, bool) {
	if !s.loaded {
		s.load()
	}
	if len(s.pending) == 0 {
		return workflow.Seed{}, false
	}
	seed := s.pending[0]
	s.pending = s.pending[1:]
	return seed, true
}
