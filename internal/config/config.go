// Package config loads the harvester's JSON configuration file. The wire
// format is fixed by the specification (a flat JSON object); that is why
// this loader uses encoding/json directly rather than a third-party layered
// config library (see DESIGN.md).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/klauspost/cpuid"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
)

// Config mirrors the recognized options of the on-disk config.json.
type Config struct {
	DataPath string `json:"data_path"`

	BucketName      string `json:"bucket_name"`
	AWSRegion       string `json:"aws_region"`
	AWSAccessKeyID  string `json:"aws_access_key_id"`
	AWSSecretKey    string `json:"aws_secret_key"`

	GrobidBase string `json:"grobid_base"`
	GrobidPort int    `json:"grobid_port"`
	SleepTime  int    `json:"sleep_time"`

	BiblioGluttonBase string `json:"biblio_glutton_base"`

	UnpaywallBase  string `json:"unpaywall_base"`
	UnpaywallEmail string `json:"unpaywall_email"`

	CrossrefBase  string `json:"crossref_base"`
	CrossrefEmail string `json:"crossref_email"`

	PMCBaseWeb string `json:"pmc_base_web"`
	PMCBaseFTP string `json:"pmc_base_ftp"`

	Cord19ElsevierPDFPath string `json:"cord19_elsevier_pdf_path"`
	Cord19ElsevierMapPath string `json:"cord19_elsevier_map_path"`

	LegacyDataPath string `json:"legacy_data_path"`

	BatchSize int `json:"batch_size"`
}

// defaultBatchSize sizes the dispatcher's worker-pool width off the host's
// physical core count rather than a flat constant, the same
// cpuid.CPU.ThreadsPerCore-based tuning the teacher applies to its own
// nmProcs: hyperthreads overstate usable parallelism for a network- and
// disk-bound batch of downloads, so divide them out when known.
var defaultBatchSize = computeDefaultBatchSize()

func computeDefaultBatchSize() int {
	nCPU := runtime.NumCPU()
	cores := nCPU
	if cpuid.CPU.ThreadsPerCore > 1 {
		cores = nCPU / cpuid.CPU.ThreadsPerCore
	}
	if cores < 4 {
		cores = 4
	}
	if cores > 10 {
		cores = 10
	}
	return cores
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Config("read config file", err)
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, errs.Config("parse config json", err)
	}
	if c.DataPath == "" {
		return nil, errs.Config("validate config", fmt.Errorf("data_path is required"))
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.SleepTime <= 0 {
		c.SleepTime = 5
	}
	return &c, nil
}

// UseObjectStore reports whether an object-store bucket has been configured.
func (c *Config) UseObjectStore() bool {
	return c.BucketName != ""
}
