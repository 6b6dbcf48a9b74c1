// Command harvester drives the end-to-end article-acquisition pipeline:
// resolving open-access URLs, downloading PDFs, structuring them through
// GROBID, generating thumbnails, and publishing the results, either from
// plain identifier list files or a CORD-19 metadata CSV.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	flags "github.com/jessevdk/go-flags"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/config"
	"github.com/kermitt2/article-dataset-builder/internal/dispatcher"
	"github.com/kermitt2/article-dataset-builder/internal/downloader"
	"github.com/kermitt2/article-dataset-builder/internal/kvstore"
	"github.com/kermitt2/article-dataset-builder/internal/lookup"
	"github.com/kermitt2/article-dataset-builder/internal/metrics"
	"github.com/kermitt2/article-dataset-builder/internal/objectstore"
	"github.com/kermitt2/article-dataset-builder/internal/publisher"
	"github.com/kermitt2/article-dataset-builder/internal/reporter"
	"github.com/kermitt2/article-dataset-builder/internal/resolver"
	"github.com/kermitt2/article-dataset-builder/internal/resources"
	"github.com/kermitt2/article-dataset-builder/internal/structurer"
	"github.com/kermitt2/article-dataset-builder/internal/thumbnail"
	"github.com/kermitt2/article-dataset-builder/internal/workflow"

	"github.com/prometheus/client_golang/prometheus"
)

type inputOpts struct {
	DOIs   string `long:"dois" description:"file of one DOI per line"`
	PMIDs  string `long:"pmids" description:"file of one PMID per line"`
	PMCIDs string `long:"pmcids" description:"file of one PMCID per line"`
	CORD19 string `long:"cord19" description:"CORD-19 metadata CSV"`
}

type actionOpts struct {
	Reset      bool `long:"reset" description:"destroy the workspace (requires confirmation)"`
	Reprocess  bool `long:"reprocess" description:"resubmit entries with any false state flag"`
	Dump       bool `long:"dump" description:"write consolidated_metadata.json"`
	Diagnostic bool `long:"diagnostic" description:"print diagnostic counts"`
	Grobid     bool `long:"grobid" description:"enable full-text structuring"`
	Thumbnail  bool `long:"thumbnail" description:"enable thumbnail generation"`
	Annotation bool `long:"annotation" description:"enable reference-annotation calls"`
}

type options struct {
	Input  inputOpts  `group:"Input sources"`
	Action actionOpts `group:"Actions"`
	Config string     `long:"config" default:"./config.json" description:"path to the JSON config file"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// A redirected/piped stdout gets plain, uncolored diagnostic output and
	// no progress bar, the same check jessevdk/go-flags-driven CLIs in the
	// corpus use before committing to terminal-only rendering.
	isTTY := isatty.IsTerminal(os.Stdout.Fd())
	color.NoColor = !isTTY

	if err := run(opts, log, isTTY); err != nil {
		log.WithError(err).Error("harvester run failed")
		os.Exit(1)
	}
}

func run(opts options, log *logrus.Logger, showProgress bool) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}

	if opts.Action.Reset {
		return runReset(cfg, log)
	}

	store, err := kvstore.OpenStore(cfg.DataPath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	metricsCollectors := metrics.New(reg)
	store.Entries.WithMetrics(metricsCollectors)
	store.UUID.WithMetrics(metricsCollectors)

	if opts.Action.Diagnostic {
		return runDiagnostic(store, cfg, log)
	}
	if opts.Action.Dump {
		return runDump(store, cfg, log)
	}

	proc, err := buildProcessor(cfg, store, opts, metricsCollectors, log)
	if err != nil {
		return err
	}

	disp := &dispatcher.Dispatcher{
		Store:        store,
		Processor:    proc,
		BatchSize:    cfg.BatchSize,
		ShowProgress: showProgress,
		Log:          log,
	}

	ctx := context.Background()
	switch {
	case opts.Input.DOIs != "":
		return runListSource(ctx, disp, opts.Input.DOIs, "doi")
	case opts.Input.PMIDs != "":
		return runListSource(ctx, disp, opts.Input.PMIDs, "pmid")
	case opts.Input.PMCIDs != "":
		return runListSource(ctx, disp, opts.Input.PMCIDs, "pmcid")
	case opts.Input.CORD19 != "":
		return runCORD19Source(ctx, disp, opts.Input.CORD19)
	case opts.Action.Reprocess:
		return runReprocess(ctx, disp, store)
	}

	fmt.Fprintln(os.Stderr, "no input source or action specified")
	return nil
}

func runReset(cfg *config.Config, log *logrus.Logger) error {
	color.Yellow("This will permanently delete the workspace at %s. Continue? [y/N] ", cfg.DataPath)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	if answer != "y\n" && answer != "y" {
		fmt.Println("aborted")
		return nil
	}

	store, err := kvstore.OpenStore(cfg.DataPath, log)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Reset(); err != nil {
		return err
	}
	color.Green("workspace reset")
	return nil
}

func runDiagnostic(store *kvstore.Store, cfg *config.Config, log *logrus.Logger) error {
	rep := &reporter.Reporter{Store: store, LocalRoot: cfg.DataPath, Log: log}
	d, err := rep.RunDiagnostic(true)
	if err != nil {
		return err
	}
	color.Cyan("total entries:        %d", d.Total)
	color.Cyan("missing oa_url:       %d", d.MissingOAURL)
	color.Cyan("missing pdf:          %d", d.MissingPDF)
	color.Cyan("missing tei:          %d", d.MissingTEI)
	color.Cyan("dangling identifiers: %d", d.MissingEntries)
	color.Cyan("nlm structured:       %d", d.NLMStructured)
	color.Cyan("grobid structured:    %d", d.GrobidStructured)
	return nil
}

func runDump(store *kvstore.Store, cfg *config.Config, log *logrus.Logger) error {
	var objStore *objectstore.Store
	if cfg.UseObjectStore() {
		s, err := objectstore.New(cfg.AWSRegion, cfg.BucketName, "", cfg.AWSAccessKeyID, cfg.AWSSecretKey, log)
		if err != nil {
			return err
		}
		objStore = s
	}
	rep := &reporter.Reporter{Store: store, ObjectStore: objStore, LocalRoot: cfg.DataPath, Log: log}
	if err := rep.DumpMetadata("consolidated_metadata.json"); err != nil {
		return err
	}
	return rep.WriteCatalogue(fmt.Sprintf("%s/map.json", cfg.DataPath))
}

func buildProcessor(cfg *config.Config, store *kvstore.Store, opts options, m *metrics.Collectors, log *logrus.Logger) (*workflow.Processor, error) {
	lookupClient := lookup.New(cfg.BiblioGluttonBase, cfg.CrossrefBase, cfg.CrossrefEmail, log)

	elsevierMap, err := resources.LoadElsevierOAMap(cfg.DataPath, cfg.Cord19ElsevierMapPath, log)
	if err != nil {
		return nil, err
	}

	dl := downloader.New("curl", log)
	dl.Metrics = m

	// The PMC file list lives on an ftp:// URL, which the downloader's
	// CLI/FTP transports handle.
	fetchPMCList := func(url, dest string) error {
		if dl.Download(context.Background(), url, dest) != downloader.Success {
			return fmt.Errorf("download of %s failed", url)
		}
		return nil
	}

	var pmcOAMap *kvstore.Map
	if cfg.PMCBaseFTP != "" {
		m, err := resources.EnsurePMCOAMap(cfg.DataPath, fetchPMCList, log)
		if err != nil {
			log.WithError(err).Warn("PMC OA resource map unavailable, continuing without it")
		} else {
			pmcOAMap = m
		}
	}

	resolverCfg := resolver.Config{
		ElsevierMap:    elsevierMap,
		ElsevierMirror: cfg.Cord19ElsevierPDFPath,
		LegacyDataPath: cfg.LegacyDataPath,
		PMCOAMap:       pmcOAMap,
		PMCBaseFTP:     cfg.PMCBaseFTP,
		PMCBaseWeb:     cfg.PMCBaseWeb,
		UnpaywallBase:  cfg.UnpaywallBase,
		UnpaywallEmail: cfg.UnpaywallEmail,
		Log:            log,
	}

	var structClient *structurer.Client
	if opts.Action.Grobid {
		structClient = structurer.New(cfg.GrobidBase, cfg.GrobidPort, time.Duration(cfg.SleepTime)*time.Second, log)
		structClient.Metrics = m
		if err := structClient.IsAlive(context.Background()); err != nil {
			log.WithError(err).Warn("GROBID aliveness probe failed at startup, continuing")
		}
	}

	var rasterizer *thumbnail.Rasterizer
	if opts.Action.Thumbnail {
		rasterizer = thumbnail.New("pdftoppm", log)
	}

	var objStore *objectstore.Store
	if cfg.UseObjectStore() {
		s, err := objectstore.New(cfg.AWSRegion, cfg.BucketName, "", cfg.AWSAccessKeyID, cfg.AWSSecretKey, log)
		if err != nil {
			return nil, err
		}
		objStore = s
	}
	pub := publisher.New(cfg.DataPath, objStore, log)

	return &workflow.Processor{
		Store:      store,
		Lookup:     lookupClient,
		Resolver:   resolverCfg,
		Downloader: dl,
		Structurer: structClient,
		Thumbnail:  rasterizer,
		Publisher:  pub,
		ScratchDir: cfg.DataPath,
		Options: workflow.Options{
			EnableStructuring: opts.Action.Grobid,
			EnableAnnotation:  opts.Action.Annotation,
			EnableThumbnail:   opts.Action.Thumbnail,
		},
		Log: log,
	}, nil
}

func runListSource(ctx context.Context, disp *dispatcher.Dispatcher, path, kind string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("input file %s does not exist: %w", path, err)
	}
	defer f.Close()
	return disp.RunSource(ctx, dispatcher.NewListSource(f, kind))
}

func runCORD19Source(ctx context.Context, disp *dispatcher.Dispatcher, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("input file %s does not exist: %w", path, err)
	}
	defer f.Close()
	src, err := dispatcher.NewCORD19Source(f)
	if err != nil {
		return err
	}
	disp.RefreshAlways = true
	return disp.RunSource(ctx, src)
}

func runReprocess(ctx context.Context, disp *dispatcher.Dispatcher, store *kvstore.Store) error {
	disp.RefreshAlways = true
	src := newReprocessSource(store)
	return disp.RunSource(ctx, src)
}
