// Package kvstore implements the two writable on-disk maps (entries, uuid)
// and the read-only pmc_oa resource map on top of Badger, grounded on the
// badger usage patterns in the posting/index and badger/table packages of
// the Dgraph example corpus. Badger stands in for the original's LMDB
// environments: each named map is its own Badger directory, opened with a
// size budget large enough for tens of millions of small records.
package kvstore

import (
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pbnjay/memory"
	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
	"github.com/kermitt2/article-dataset-builder/internal/metrics"
)

// memTableSizeFraction and valueLogSizeFraction pick Badger's in-memory
// write buffer and on-disk value-log segment size off the host's total RAM
// (pbnjay/memory.TotalMemory), the same system-resource probe the teacher
// uses to size its own worker/memory tuning (nmProcs, PrintStats' Mmry
// line) rather than a flat constant tuned for one machine.
const (
	memTableSizeFraction = 256            // total RAM / this = memtable size
	valueLogSizeFraction = 32             // total RAM / this = value log file size
	minMemTableSize      = 16 << 20       // 16 MiB
	maxMemTableSize      = 128 << 20      // 128 MiB
	minValueLogSize      = 256 << 20      // 256 MiB
	maxValueLogSize      = (2 << 30) - 1  // Badger's hard ceiling, just under 2 GiB
)

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// badgerSizeOptions derives Badger's memtable and value-log sizing from the
// host's total memory, so the ">=100 GiB virtual" budget the LMDB
// environments reserved is backed by RAM actually available on this host
// rather than copied blindly onto every machine.
func badgerSizeOptions(opts badger.Options) badger.Options {
	total := int64(memory.TotalMemory())
	if total <= 0 {
		return opts
	}
	memTable := clamp(total/memTableSizeFraction, minMemTableSize, maxMemTableSize)
	valueLog := clamp(total/valueLogSizeFraction, minValueLogSize, maxValueLogSize)
	return opts.WithMemTableSize(memTable).WithValueLogFileSize(valueLog)
}

// Map is a single named byte-keyed, byte-valued store.
type Map struct {
	name     string
	dir      string
	readOnly bool
	db       *badger.DB
	log      logrus.FieldLogger
	metrics  *metrics.Collectors
}

// WithMetrics attaches a metrics collector so subsequent operations record
// latency histograms.
func (m *Map) WithMetrics(c *metrics.Collectors) *Map {
	m.metrics = c
	return m
}

func (m *Map) observe(op string, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.KVOperationLatency.WithLabelValues(m.name, op).Observe(time.Since(start).Seconds())
}

// Open opens (creating if absent) the map at dir. Memtable and value-log
// sizes are derived from the host's total RAM via badgerSizeOptions, scaling
// toward the ~100 GiB virtual target the original LMDB environments
// reserved on hosts that actually have the memory to back it.
func Open(name, dir string, readOnly bool, log logrus.FieldLogger) (*Map, error) {
	opts := badgerSizeOptions(badger.DefaultOptions(dir)).
		WithLogger(nil).
		WithReadOnly(readOnly)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Storage(fmt.Sprintf("open map %s", name), err)
	}
	return &Map{name: name, dir: dir, readOnly: readOnly, db: db, log: log}, nil
}

// Put writes a single key atomically.
func (m *Map) Put(key, value []byte) error {
	defer m.observe("put", time.Now())
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return errs.Storage(fmt.Sprintf("put into %s", m.name), err)
	}
	return nil
}

// Get returns the value for key, or (nil, nil) if absent.
func (m *Map) Get(key []byte) ([]byte, error) {
	defer m.observe("get", time.Now())
	var out []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Storage(fmt.Sprintf("get from %s", m.name), err)
	}
	return out, nil
}

// Count returns the number of keys currently stored.
func (m *Map) Count() (int64, error) {
	var n int64
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, errs.Storage(fmt.Sprintf("count %s", m.name), err)
	}
	return n, nil
}

// KV is a single key/value pair yielded by Iterate.
type KV struct {
	Key   []byte
	Value []byte
}

// Iterate performs an ordered traversal, calling fn for every key/value
// pair. Order is Badger's own key order, which is stable across calls
// within a process. Iteration stops early if fn returns false.
func (m *Map) Iterate(fn func(KV) bool) error {
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := append([]byte(nil), item.KeyCopy(nil)...)
			var val []byte
			if err := item.Value(func(v []byte) error {
				val = append([]byte(nil), v...)
				return nil
			}); err != nil {
				return err
			}
			if !fn(KV{Key: key, Value: val}) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return errs.Storage(fmt.Sprintf("iterate %s", m.name), err)
	}
	return nil
}

// Close releases the underlying Badger handles.
func (m *Map) Close() error {
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	if err != nil {
		return errs.Storage(fmt.Sprintf("close %s", m.name), err)
	}
	return nil
}

// Reopen closes and reopens the map, optionally switching its access mode.
// Used after (re)building the read-only pmc_oa resource map.
func (m *Map) Reopen(readOnly bool) error {
	if err := m.Close(); err != nil {
		return err
	}
	reopened, err := Open(m.name, m.dir, readOnly, m.log)
	if err != nil {
		return err
	}
	*m = *reopened
	return nil
}

// DropAll deletes every key in the map, used by the reset operation.
func (m *Map) DropAll() error {
	if err := m.db.DropAll(); err != nil {
		return errs.Storage(fmt.Sprintf("drop all in %s", m.name), err)
	}
	return nil
}
