package core

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

const ArchiveMimeType = "application/zip"

type Archive struct {
	Name string
	Data []byte
}

func ArchiveName(baseName, suffix string) string {
	return fmt.Sprintf("%s_%s.zip", baseName, suffix)
}

type ArchiveMember struct {
	Name string
	Open func(ctx context.Context) (io.Reader, error)
}

// BuildArchive streams members into a zip written to w, in the given order and
// deflated at the best compression level. Member names are reduced to their
// base name. The archive is only valid when BuildArchive returns nil; on error
// the central directory is never written.
func BuildArchive(ctx context.Context, w io.Writer, members []ArchiveMember, modified time.Time) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := writeMember(ctx, zw, m, modified); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: failed to finalize archive: %w", ErrArchiveWriteFailed, err)
	}

	return nil
}

func writeMember(ctx context.Context, zw *zip.Writer, m ArchiveMember, modified time.Time) error {
	name := path.Base(m.Name)

	src, err := m.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to open member %s: %w", ErrArchiveWriteFailed, name, err)
	}
	if closer, ok := src.(io.Closer); ok {
		defer closer.Close()
	}

	dst, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create member %s: %w", ErrArchiveWriteFailed, name, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: failed to write member %s: %w", ErrArchiveWriteFailed, name, err)
	}

	return nil
}
