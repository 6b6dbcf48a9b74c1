package kvstore

import (
	"encoding/json"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
	"github.com/kermitt2/article-dataset-builder/internal/model"
)

// identifierCacheSize bounds the in-memory LRU front for the uuid map: the
// dispatcher re-checks the same handful of identifiers repeatedly across a
// run's resumability checks, and this avoids round-tripping to Badger for
// every one.
const identifierCacheSize = 100_000

// Store bundles the two writable workspace maps (entries, uuid) required by
// every run. The read-only pmc_oa resource map is managed separately by
// package resources since it lives under a distinct resource root and has
// its own one-time build step.
type Store struct {
	Entries *Map
	UUID    *Map
	log     logrus.FieldLogger

	idCache *lru.Cache[string, string]
}

// OpenStore opens the entries and uuid maps under dataPath.
func OpenStore(dataPath string, log logrus.FieldLogger) (*Store, error) {
	entries, err := Open("entries", filepath.Join(dataPath, "entries"), false, log)
	if err != nil {
		return nil, err
	}
	uuidMap, err := Open("uuid", filepath.Join(dataPath, "uuid"), false, log)
	if err != nil {
		entries.Close()
		return nil, err
	}
	cache, err := lru.New[string, string](identifierCacheSize)
	if err != nil {
		entries.Close()
		uuidMap.Close()
		return nil, errs.Config("create identifier cache", err)
	}
	return &Store{Entries: entries, UUID: uuidMap, log: log, idCache: cache}, nil
}

// Close releases both maps.
func (s *Store) Close() error {
	e1 := s.Entries.Close()
	e2 := s.UUID.Close()
	if e1 != nil {
		return e1
	}
	return e2
}

// Reset destroys all entries and clears both maps, per §3 Lifecycles.
func (s *Store) Reset() error {
	if err := s.Entries.DropAll(); err != nil {
		return err
	}
	s.idCache.Purge()
	return s.UUID.DropAll()
}

// PutEntry serializes and stores an entry keyed by its own id.
func (s *Store) PutEntry(e *model.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errs.Storage("marshal entry", err)
	}
	return s.Entries.Put([]byte(e.ID), data)
}

// GetEntry loads an entry by id, returning (nil, nil) if absent.
func (s *Store) GetEntry(id string) (*model.Entry, error) {
	data, err := s.Entries.Get([]byte(id))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var e model.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errs.Storage("unmarshal entry", err)
	}
	return &e, nil
}

// UUIDForIdentifier resolves a strong identifier to an entry id, or ""
// if the identifier has never been seen. A bounded in-memory LRU fronts
// the Badger lookup for identifiers the dispatcher has already resolved
// this run.
func (s *Store) UUIDForIdentifier(identifier string) (string, error) {
	if id, ok := s.idCache.Get(identifier); ok {
		return id, nil
	}
	data, err := s.UUID.Get([]byte(identifier))
	if err != nil {
		return "", err
	}
	if data == nil {
		return "", nil
	}
	id := string(data)
	s.idCache.Add(identifier, id)
	return id, nil
}

// IndexIdentifiers writes every strong identifier of e into the uuid map,
// per §4.8 step 2.
func (s *Store) IndexIdentifiers(e *model.Entry) error {
	for _, ident := range e.StrongIdentifiers() {
		if err := s.UUID.Put([]byte(ident), []byte(e.ID)); err != nil {
			return err
		}
		s.idCache.Add(ident, e.ID)
	}
	return nil
}

// IterateEntries walks every stored entry, stopping early if fn returns false.
func (s *Store) IterateEntries(fn func(*model.Entry) bool) error {
	return s.Entries.Iterate(func(kv KV) bool {
		var e model.Entry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			s.log.WithError(err).Warn("skipping malformed entry record")
			return true
		}
		return fn(&e)
	})
}
