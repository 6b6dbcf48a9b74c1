// Package workflow implements the per-entry state machine (C8): load or
// synthesize an entry, index its identifiers, resolve an OA URL, acquire a
// PDF, structure it, generate thumbnails, persist, and publish. Every step
// is best-effort: a failure leaves prior flags intact so a later
// reprocess pass can resume from the earliest false flag.
package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/downloader"
	"github.com/kermitt2/article-dataset-builder/internal/kvstore"
	"github.com/kermitt2/article-dataset-builder/internal/lookup"
	"github.com/kermitt2/article-dataset-builder/internal/model"
	"github.com/kermitt2/article-dataset-builder/internal/publisher"
	"github.com/kermitt2/article-dataset-builder/internal/resolver"
	"github.com/kermitt2/article-dataset-builder/internal/structurer"
	"github.com/kermitt2/article-dataset-builder/internal/thumbnail"
)

// Options toggles the optional post-PDF stages.
type Options struct {
	EnableStructuring bool
	EnableAnnotation  bool
	EnableThumbnail   bool
}

// Processor bundles every dependency a single processTask call needs.
type Processor struct {
	Store      *kvstore.Store
	Lookup     *lookup.Client
	Resolver   resolver.Config
	Downloader *downloader.Downloader
	Structurer *structurer.Client
	Thumbnail  *thumbnail.Rasterizer
	Publisher  *publisher.Publisher
	ScratchDir string
	Options    Options
	Log        logrus.FieldLogger
}

// Seed is the minimal identifying information the dispatcher supplies for
// a not-yet-seen entry. Extra carries CORD-19 row fields that are applied
// directly to the entry, whether freshly synthesized or already stored,
// bypassing the metadata lookup service (the CSV row already is the
// metadata record).
type Seed struct {
	ID    string
	DOI   string
	PMID  string
	PMCID string
	Extra map[string]string
}

// ProcessTask runs at most one traversal of steps 1-8 for the entry
// identified by seed.
func (p *Processor) ProcessTask(ctx context.Context, seed Seed) (*model.Entry, error) {
	e, err := p.loadOrSynthesize(ctx, seed)
	if err != nil {
		return nil, err
	}

	if err := p.Store.IndexIdentifiers(e); err != nil {
		p.Log.WithError(err).WithField("id", e.ID).Warn("failed to index identifiers")
	}

	p.resolveOAURL(ctx, e)
	p.acquirePDF(ctx, e)
	p.structure(ctx, e)
	p.thumbnailStep(ctx, e)

	if err := p.persist(e); err != nil {
		return nil, err
	}

	if p.Publisher != nil {
		if err := p.Publisher.Publish(ctx, e, p.ScratchDir); err != nil {
			p.Log.WithError(err).WithField("id", e.ID).Warn("publish step failed")
		}
	}

	return e, nil
}

func (p *Processor) loadOrSynthesize(ctx context.Context, seed Seed) (*model.Entry, error) {
	existing, err := p.Store.GetEntry(seed.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if len(seed.Extra) > 0 {
			applyCORD19Row(existing, seed)
		}
		return existing, nil
	}

	e := &model.Entry{
		ID:    seed.ID,
		DOI:   model.CleanDOI(seed.DOI),
		PMID:  seed.PMID,
		PMCID: seed.PMCID,
	}

	if len(seed.Extra) > 0 {
		applyCORD19Row(e, seed)
	} else if p.Lookup != nil {
		rec, err := p.Lookup.Lookup(ctx, lookup.Identifiers{DOI: e.DOI, PMID: e.PMID, PMCID: e.PMCID})
		if err == nil {
			applyLookupRecord(e, rec)
		} else {
			p.Log.WithError(err).WithField("id", e.ID).Debug("metadata lookup failed, continuing with bare identifiers")
		}
	}

	return model.InitStateFlags(e), nil
}

// applyCORD19Row populates an entry directly from a CORD-19 metadata CSV
// row, which already carries the bibliographic record, bypassing the
// metadata-lookup service entirely.
func applyCORD19Row(e *model.Entry, seed Seed) {
	e.CordUID = seed.ID
	e.CordSHA = seed.Extra["sha"]
	e.Title = seed.Extra["title"]
	e.LicenseSimplified = seed.Extra["license"]
	e.Abstract = seed.Extra["abstract"]
	e.MAGID = seed.Extra["mag_id"]
	e.WHOCovidence = seed.Extra["who_covidence_id"]
	if e.ArxivID == "" {
		e.ArxivID = seed.Extra["arxiv_id"]
	}
	if seed.Extra["publish_time"] != "" {
		if year, _, ok := strings.Cut(seed.Extra["publish_time"], "-"); ok {
			e.Year = year
		} else {
			e.Year = seed.Extra["publish_time"]
		}
	}
	if e.Extra == nil {
		e.Extra = map[string]any{}
	}
	if seed.Extra["url"] != "" {
		e.Extra["cord19_url"] = seed.Extra["url"]
	}
}

func applyLookupRecord(e *model.Entry, rec lookup.Record) {
	if e.Extra == nil {
		e.Extra = map[string]any{}
	}
	for k, v := range rec {
		switch k {
		case "title":
			if s, ok := v.(string); ok {
				e.Title = s
			}
		case "journal":
			if s, ok := v.(string); ok {
				e.Journal = s
			}
		case "abstract":
			if s, ok := v.(string); ok {
				e.Abstract = s
			}
		case "license-simplified":
			if s, ok := v.(string); ok {
				e.LicenseSimplified = s
			}
		case "MAG_ID":
			if s, ok := v.(string); ok {
				e.MAGID = s
			}
		case "WHO_Covidence":
			if s, ok := v.(string); ok {
				e.WHOCovidence = s
			}
		case "oaLink":
			if s, ok := v.(string); ok {
				e.OALink = s
			}
		case "pii":
			if s, ok := v.(string); ok {
				e.PII = s
			}
		default:
			e.Extra[k] = v
		}
	}
}

func (p *Processor) resolveOAURL(ctx context.Context, e *model.Entry) {
	if e.HasValidOAURL {
		return
	}
	url, ok := resolver.Resolve(ctx, p.Resolver, e)
	if !ok {
		return
	}
	e.OALink = url
	e.HasValidOAURL = true
}

func (p *Processor) acquirePDF(ctx context.Context, e *model.Entry) {
	if !e.HasValidOAURL || e.HasValidPDF {
		return
	}

	dest := filepath.Join(p.ScratchDir, e.ID+".pdf")

	switch {
	case strings.HasPrefix(e.OALink, "file://"):
		src := strings.TrimPrefix(e.OALink, "file://")
		if err := copyLocalFile(src, dest); err != nil {
			p.Log.WithError(err).WithField("id", e.ID).Warn("local OA mirror copy failed")
			return
		}
		// The legacy workspace sometimes keeps a sibling NLM XML file
		// alongside the mirrored PDF; reuse it if present.
		siblingNXML := strings.TrimSuffix(src, ".pdf") + ".nxml"
		if _, statErr := os.Stat(siblingNXML); statErr == nil {
			if err := copyLocalFile(siblingNXML, filepath.Join(p.ScratchDir, e.ID+".nxml")); err != nil {
				p.Log.WithError(err).WithField("id", e.ID).Debug("legacy sibling nxml copy failed")
			}
		}
	case strings.HasSuffix(e.OALink, ".tar.gz"):
		archiveDest := filepath.Join(p.ScratchDir, e.ID+".tar.gz")
		if res := p.Downloader.Download(ctx, e.OALink, archiveDest); res != downloader.Success {
			return
		}
		if err := downloader.ExtractPMCArchive(archiveDest, p.Log); err != nil {
			p.Log.WithError(err).WithField("id", e.ID).Warn("PMC archive extraction failed")
			return
		}
		extractedPDF := strings.TrimSuffix(archiveDest, ".tar.gz") + ".pdf"
		if extractedPDF != dest {
			os.Rename(extractedPDF, dest)
		}
	default:
		if res := p.Downloader.Download(ctx, e.OALink, dest); res != downloader.Success {
			return
		}
		if err := downloader.DetectAndDecompressGzip(dest, p.Log); err != nil {
			p.Log.WithError(err).WithField("id", e.ID).Warn("post-download gzip handling failed")
			return
		}
	}

	if downloader.ValidateMIME(dest, "application/pdf") {
		e.HasValidPDF = true
	}
}

func (p *Processor) structure(ctx context.Context, e *model.Entry) {
	if !p.Options.EnableStructuring || !e.HasValidPDF || e.HasValidTEI {
		return
	}
	if p.Structurer == nil {
		return
	}

	pdfPath := filepath.Join(p.ScratchDir, e.ID+".pdf")
	teiPath := filepath.Join(p.ScratchDir, e.ID+".grobid.tei.xml")

	ok, err := p.Structurer.FullText(ctx, pdfPath, teiPath)
	if err != nil {
		p.Log.WithError(err).WithField("id", e.ID).Warn("full-text structuring call failed")
		return
	}
	if ok && downloader.ValidateMIME(teiPath, "application/xml") {
		e.HasValidTEI = true
	}

	if p.Options.EnableAnnotation {
		annotPath := filepath.Join(p.ScratchDir, e.ID+"-ref-annotations.json")
		ok, err := p.Structurer.ReferenceAnnotations(ctx, pdfPath, annotPath)
		if err != nil {
			p.Log.WithError(err).WithField("id", e.ID).Warn("reference-annotation call failed")
			return
		}
		if ok && downloader.ValidateMIME(annotPath, "application/json") {
			e.HasValidRefAnnot = true
		}
	}
}

func (p *Processor) thumbnailStep(ctx context.Context, e *model.Entry) {
	if !p.Options.EnableThumbnail || !e.HasValidPDF || p.Thumbnail == nil {
		return
	}
	pdfPath := filepath.Join(p.ScratchDir, e.ID+".pdf")
	base := filepath.Join(p.ScratchDir, e.ID)
	if p.Thumbnail.Generate(ctx, pdfPath, base) {
		e.HasValidThumbnail = true
	}
}

func (p *Processor) persist(e *model.Entry) error {
	if err := writeJSONSidecar(e, filepath.Join(p.ScratchDir, e.ID+".json")); err != nil {
		p.Log.WithError(err).WithField("id", e.ID).Warn("failed to write JSON sidecar")
	}
	return p.Store.PutEntry(e)
}

func copyLocalFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
