// Package thumbnail invokes an external PDF rasterizer (C7) to produce
// three PNG sizes from page 0 of a PDF. Failures are logged but never
// fatal to the surrounding workflow.
package thumbnail

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Size names one of the three required thumbnail variants.
type Size struct {
	Suffix string
	Height int
}

var sizes = []Size{
	{"-thumb-small.png", 150},
	{"-thumb-medium.png", 300},
	{"-thumb-large.png", 500},
}

// Rasterizer invokes an external binary (e.g. a pdftoppm-compatible tool)
// once per required size.
type Rasterizer struct {
	Binary string
	Log    logrus.FieldLogger
}

// New builds a Rasterizer bound to the given external binary.
func New(binary string, log logrus.FieldLogger) *Rasterizer {
	return &Rasterizer{Binary: binary, Log: log}
}

// Generate produces all three thumbnail variants for pdfPath, named
// destBasePath+suffix (e.g. "<dir>/<id>-thumb-small.png"). Each size is
// attempted independently; a failure on one size does not prevent the
// others.
func (r *Rasterizer) Generate(ctx context.Context, pdfPath, destBasePath string) bool {
	if r.Binary == "" {
		return false
	}
	anySuccess := false
	for _, s := range sizes {
		// pdftoppm takes an output root and appends the extension itself;
		// -singlefile keeps it from also appending a page number.
		dest := destBasePath + strings.TrimSuffix(s.Suffix, ".png")
		cmd := exec.CommandContext(ctx, r.Binary,
			"-png",
			"-singlefile",
			"-f", "1", "-l", "1",
			"-r", "200",
			"-scale-to-y", fmt.Sprint(s.Height),
			"-scale-to-x", "-1",
			pdfPath,
			dest,
		)
		if err := cmd.Run(); err != nil {
			r.Log.WithError(err).WithField("size", s.Suffix).Warn("thumbnail rasterization failed")
			continue
		}
		anySuccess = true
	}
	return anySuccess
}
