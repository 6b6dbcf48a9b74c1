// Package reporter implements the reporting operations (C11): dumping all
// entry records, writing a lightweight catalogue, computing diagnostic
// counts, and (per the supplemented CORD-19 coverage feature) comparing
// the official CORD-19 cord_uid list against the stored entries.
package reporter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
	"github.com/kermitt2/article-dataset-builder/internal/kvstore"
	"github.com/kermitt2/article-dataset-builder/internal/model"
	"github.com/kermitt2/article-dataset-builder/internal/objectstore"
)

// Reporter runs read-only aggregate operations over the entries map.
type Reporter struct {
	Store       *kvstore.Store
	ObjectStore *objectstore.Store
	LocalRoot   string
	Log         logrus.FieldLogger
}

// DumpMetadata writes one JSON object per line (keys sorted) to dumpPath,
// optionally uploading the result afterward.
func (r *Reporter) DumpMetadata(dumpPath string) error {
	f, err := os.Create(dumpPath)
	if err != nil {
		return errs.Storage("create metadata dump file", err)
	}
	defer f.Close()

	err = r.Store.IterateEntries(func(e *model.Entry) bool {
		line, marshalErr := marshalSortedKeys(e)
		if marshalErr != nil {
			r.Log.WithError(marshalErr).WithField("id", e.ID).Warn("skipping unmarshalable entry in dump")
			return true
		}
		if _, writeErr := f.Write(append(line, '\n')); writeErr != nil {
			r.Log.WithError(writeErr).Warn("dump write failed, stopping")
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	if r.ObjectStore != nil {
		return r.ObjectStore.PutFile(context.Background(), filepath.Base(dumpPath), dumpPath)
	}
	return nil
}

// catalogueLine is the per-entry record written by WriteCatalogue.
type catalogueLine struct {
	ID          string   `json:"id"`
	Identifiers []string `json:"identifiers"`
	OALink      string   `json:"oaLink,omitempty"`
	PDFPath     string   `json:"pdf_file_path,omitempty"`
	TEIPath     string   `json:"tei_file_path,omitempty"`
	MetaPath    string   `json:"metadata_file_path"`
}

// WriteCatalogue writes map.json: one line per entry with its identifiers,
// oaLink, and derived artifact paths.
func (r *Reporter) WriteCatalogue(cataloguePath string) error {
	f, err := os.Create(cataloguePath)
	if err != nil {
		return errs.Storage("create catalogue file", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	return r.Store.IterateEntries(func(e *model.Entry) bool {
		shard := model.ShardedPath(e.ID)
		line := catalogueLine{
			ID:          e.ID,
			Identifiers: e.StrongIdentifiers(),
			OALink:      e.OALink,
			MetaPath:    filepath.Join(shard, e.ID+".json"),
		}
		if e.HasValidPDF {
			line.PDFPath = filepath.Join(shard, e.ID+".pdf")
		}
		if e.HasValidTEI {
			line.TEIPath = filepath.Join(shard, e.ID+".grobid.tei.xml")
		}
		if err := enc.Encode(line); err != nil {
			r.Log.WithError(err).Warn("catalogue write failed, stopping")
			return false
		}
		return true
	})
}

// Diagnostic holds the counts produced by RunDiagnostic.
type Diagnostic struct {
	Total            int
	MissingOAURL     int
	MissingPDF       int
	MissingTEI       int
	MissingEntries   int // identifiers with no corresponding entry (full diagnostic only)
	NLMStructured    int // entries whose sharded tree has an .nxml (full diagnostic only)
	GrobidStructured int
}

// RunDiagnostic counts entries failing each state flag. When full is true
// it additionally cross-checks the identifier map against the entry map
// and walks the sharded tree counting structured-XML artifacts from both
// conversion pipelines.
func (r *Reporter) RunDiagnostic(full bool) (Diagnostic, error) {
	var d Diagnostic
	err := r.Store.IterateEntries(func(e *model.Entry) bool {
		d.Total++
		if !e.HasValidOAURL {
			d.MissingOAURL++
		}
		if !e.HasValidPDF {
			d.MissingPDF++
		}
		if !e.HasValidTEI {
			d.MissingTEI++
		}
		return true
	})
	if err != nil {
		return d, err
	}
	if !full {
		return d, nil
	}

	missing, err := r.crossCheckIdentifiers()
	if err != nil {
		return d, err
	}
	d.MissingEntries = missing

	nlm, grobid, err := r.walkShardedTree()
	if err != nil {
		return d, err
	}
	d.NLMStructured = nlm
	d.GrobidStructured = grobid
	return d, nil
}

func (r *Reporter) crossCheckIdentifiers() (int, error) {
	missing := 0
	err := r.Store.UUID.Iterate(func(kv kvstore.KV) bool {
		id := string(kv.Value)
		entry, getErr := r.Store.GetEntry(id)
		if getErr != nil || entry == nil {
			missing++
		}
		return true
	})
	return missing, err
}

func (r *Reporter) walkShardedTree() (nlm, grobid int, err error) {
	if r.LocalRoot == "" {
		return 0, 0, nil
	}
	err = filepath.Walk(r.LocalRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || info == nil || info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".nxml":
			nlm++
		case ".xml":
			grobid++
		}
		return nil
	})
	if err != nil {
		return 0, 0, errs.Storage("walk sharded output tree", err)
	}
	return nlm, grobid, nil
}

func marshalSortedKeys(e *model.Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(generic))
	for k := range generic {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]byte, 0, len(data))
	out = append(out, '{')
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(generic[k])
		out = append(out, kb...)
		out = append(out, ':')
		out = append(out, vb...)
	}
	out = append(out, '}')
	return out, nil
}
