package core

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"runtime"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

const (
	TileExt      = "png"
	TileMimeType = "image/png"
)

type Tile struct {
	TileSpec
	Name string `json:"name"`
	Data []byte `json:"-"`
}

func TileName(baseName string, row, col int) string {
	return fmt.Sprintf("%s_%d_%d.%s", baseName, row, col, TileExt)
}

// ExtractTile copies the pixels of spec out of img and encodes them as PNG.
// Spec coordinates are relative to the image's top-left corner, whatever the
// origin of img.Bounds() is.
func ExtractTile(img image.Image, spec TileSpec) ([]byte, error) {
	bounds := img.Bounds()
	rect := spec.Rect().Add(bounds.Min)

	if spec.Width <= 0 || spec.Height <= 0 || !rect.In(bounds) {
		return nil, fmt.Errorf("%w: tile (%d,%d) region %v outside image bounds %v",
			ErrExtractionFailed, spec.Row, spec.Col, rect, bounds)
	}

	cropped := imaging.Crop(img, rect)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, fmt.Errorf("%w: failed to encode tile (%d,%d): %w", ErrExtractionFailed, spec.Row, spec.Col, err)
	}

	return buf.Bytes(), nil
}

// TileSink receives every tile as soon as it has been encoded. It is called
// concurrently from the extraction workers.
type TileSink func(ctx context.Context, tile Tile) error

// ExtractTiles extracts every cell of plan using at most workers goroutines
// (runtime.NumCPU() when workers <= 0). The returned tiles are in plan order
// regardless of completion order. Once ctx is done or any tile fails no further
// tiles are started.
func ExtractTiles(ctx context.Context, img image.Image, plan TilePlan, baseName string, workers int, sink TileSink) ([]Tile, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tiles := make([]Tile, len(plan.Tiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, spec := range plan.Tiles {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			data, err := ExtractTile(img, spec)
			if err != nil {
				return err
			}

			tile := Tile{TileSpec: spec, Name: TileName(baseName, spec.Row, spec.Col), Data: data}
			if sink != nil {
				if err := sink(gctx, tile); err != nil {
					return err
				}
			}

			tiles[i] = tile
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return tiles, nil
}
