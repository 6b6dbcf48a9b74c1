package downloader

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
)

// ExtractPMCArchive extracts the first PDF member and every .nxml member
// from a PMC tar.gz archive, per §4.5's archive-extraction rules: each
// member is renamed to its basename, the PDF lands at
// "<archive_without_.tar.gz>.pdf", the NLM XML at "...nxml", and the
// archive is deleted on success. A subdirectory named after the first six
// characters of the archive's basename is created beside the archive and
// removed on return; members are not staged in it but written straight to
// their final "<archive_without_.tar.gz>" names.
func ExtractPMCArchive(archivePath string, log logrus.FieldLogger) error {
	base := filepath.Base(archivePath)
	trimmed := strings.TrimSuffix(base, ".tar.gz")
	dir := filepath.Dir(archivePath)

	subName := trimmed
	if len(subName) > 6 {
		subName = subName[:6]
	}
	workDir := filepath.Join(dir, subName)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return errs.Storage("create archive extraction dir", err)
	}
	defer os.RemoveAll(workDir)

	f, err := os.Open(archivePath)
	if err != nil {
		return errs.Storage("open PMC archive", err)
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errs.Validation("open gzip stream of PMC archive", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var pdfFound bool
	var nxmlFound bool

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errs.Storage("read PMC archive member", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Base(hdr.Name)
		lower := strings.ToLower(name)

		switch {
		case !pdfFound && strings.HasSuffix(lower, ".pdf"):
			if err := extractTo(tr, filepath.Join(dir, trimmed+".pdf")); err != nil {
				return err
			}
			pdfFound = true
		case strings.HasSuffix(lower, ".nxml"):
			if err := extractTo(tr, filepath.Join(dir, trimmed+".nxml")); err != nil {
				return err
			}
			nxmlFound = true
		}
	}

	if !pdfFound {
		log.WithField("archive", archivePath).Warn("no PDF member found in PMC archive")
	}
	if !pdfFound && !nxmlFound {
		return errs.Validation(fmt.Sprintf("extract %s", archivePath), fmt.Errorf("no usable member found"))
	}

	if err := os.Remove(archivePath); err != nil {
		log.WithError(err).Warn("could not delete archive after extraction")
	}
	return nil
}

func extractTo(r io.Reader, destination string) error {
	out, err := os.Create(destination)
	if err != nil {
		return errs.Storage("create extracted member", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return errs.Storage("write extracted member", err)
	}
	return nil
}
