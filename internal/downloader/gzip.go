package downloader

import (
	"io"
	"os"

	"github.com/klauspost/pgzip"
)

// decompressGzipFile streams src through a pgzip reader into dst, the same
// decompression dependency the teacher links for its own large-file gzip
// handling.
func decompressGzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	zr, err := pgzip.NewReader(in)
	if err != nil {
		return err
	}
	defer zr.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, zr)
	return err
}
