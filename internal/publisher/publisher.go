// Package publisher moves a completed entry's scratch artifacts to their
// final home (C10): either the local sharded tree or the configured
// object store, then cleans up scratch files for that id.
package publisher

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
	"github.com/kermitt2/article-dataset-builder/internal/model"
	"github.com/kermitt2/article-dataset-builder/internal/objectstore"
)

// artifactSuffixes lists every artifact that may exist in scratch for an
// entry, per §4.10.
var artifactSuffixes = []string{
	".pdf",
	".nxml",
	".grobid.tei.xml",
	".json",
	"-ref-annotations.json",
	"-thumb-small.png",
	"-thumb-medium.png",
	"-thumb-large.png",
}

// Publisher publishes scratch artifacts to a local sharded tree or an
// object store.
type Publisher struct {
	LocalRoot   string
	ObjectStore *objectstore.Store
	Log         logrus.FieldLogger
}

// New builds a Publisher. ObjectStore may be nil, in which case artifacts
// are copied to LocalRoot's sharded tree.
func New(localRoot string, store *objectstore.Store, log logrus.FieldLogger) *Publisher {
	return &Publisher{LocalRoot: localRoot, ObjectStore: store, Log: log}
}

// Publish copies every present artifact for e from scratchDir to its final
// location, then deletes the scratch copies.
func (p *Publisher) Publish(ctx context.Context, e *model.Entry, scratchDir string) error {
	shard := model.ShardedPath(e.ID)

	for _, suffix := range artifactSuffixes {
		src := filepath.Join(scratchDir, e.ID+suffix)
		info, err := os.Stat(src)
		if err != nil || info.Size() == 0 {
			continue
		}
		if suffix == ".pdf" && !e.HasValidPDF {
			continue
		}

		if p.ObjectStore != nil {
			key := shard + e.ID + suffix
			if err := p.ObjectStore.PutFile(ctx, key, src); err != nil {
				return err
			}
			continue
		}

		destDir := filepath.Join(p.LocalRoot, shard)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return errs.Storage("create sharded publish directory", err)
		}
		if err := copyFile(src, filepath.Join(destDir, e.ID+suffix)); err != nil {
			return err
		}
	}

	return p.cleanScratch(e, scratchDir)
}

func (p *Publisher) cleanScratch(e *model.Entry, scratchDir string) error {
	for _, suffix := range artifactSuffixes {
		path := filepath.Join(scratchDir, e.ID+suffix)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.Log.WithError(err).WithField("path", path).Warn("could not clean scratch artifact")
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errs.Storage("open artifact for publish", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errs.Storage("create published artifact", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return errs.Storage("copy artifact to publish destination", err)
	}
	return nil
}
