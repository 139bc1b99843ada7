package core

import (
	"context"
	"errors"
)

var (
	ErrInvalidDimensions    = errors.New("invalid image dimensions")
	ErrMissingTileParameter = errors.New("missing tile parameter")
	ErrInvalidTileParameter = errors.New("invalid tile parameter")
	ErrTileTooSmall         = errors.New("tile too small")
	ErrExtractionFailed     = errors.New("tile extraction failed")
	ErrArchiveWriteFailed   = errors.New("archive write failed")
	ErrInternal             = errors.New("internal error")
)

const (
	KindInvalidDimensions    = "InvalidDimensions"
	KindMissingTileParameter = "MissingTileParameter"
	KindInvalidTileParameter = "InvalidTileParameter"
	KindTileTooSmall         = "TileTooSmall"
	KindExtractionFailed     = "ExtractionFailed"
	KindArchiveWriteFailed   = "ArchiveWriteFailed"
	KindCanceled             = "Canceled"
	KindInternal             = "Internal"
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidDimensions, KindInvalidDimensions},
	{ErrMissingTileParameter, KindMissingTileParameter},
	{ErrInvalidTileParameter, KindInvalidTileParameter},
	{ErrTileTooSmall, KindTileTooSmall},
	{ErrExtractionFailed, KindExtractionFailed},
	{ErrArchiveWriteFailed, KindArchiveWriteFailed},
	{context.Canceled, KindCanceled},
	{context.DeadlineExceeded, KindCanceled},
}

// ErrorKind maps an error returned by the pipeline to the name of its failure
// kind. Anything outside the taxonomy is reported as Internal.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
