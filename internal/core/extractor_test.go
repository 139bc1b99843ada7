package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTile_PixelExact(t *testing.T) {
	img := createGradientImage(40, 30)
	spec := TileSpec{Row: 1, Col: 2, Left: 25, Top: 12, Width: 15, Height: 18}

	data, err := ExtractTile(img, spec)
	require.NoError(t, err)

	tile, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 15, tile.Bounds().Dx())
	require.Equal(t, 18, tile.Bounds().Dy())

	for y := 0; y < spec.Height; y++ {
		for x := 0; x < spec.Width; x++ {
			want := img.NRGBAAt(spec.Left+x, spec.Top+y)
			got := color.NRGBAModel.Convert(tile.At(tile.Bounds().Min.X+x, tile.Bounds().Min.Y+y)).(color.NRGBA)
			if want != got {
				t.Fatalf("pixel (%d,%d): got %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestExtractTile_NonZeroOrigin(t *testing.T) {
	base := createGradientImage(20, 20)
	sub := base.SubImage(image.Rect(5, 5, 15, 15))

	data, err := ExtractTile(sub, TileSpec{Left: 0, Top: 0, Width: 2, Height: 2})
	require.NoError(t, err)

	tile, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	r, g, _, _ := tile.At(0, 0).RGBA()
	assert.Equal(t, uint32(5), r>>8)
	assert.Equal(t, uint32(5), g>>8)
}

func TestExtractTile_OutOfBounds(t *testing.T) {
	img := createGradientImage(10, 10)

	tests := []struct {
		name string
		spec TileSpec
	}{
		{"past right edge", TileSpec{Left: 5, Top: 0, Width: 6, Height: 5}},
		{"past bottom edge", TileSpec{Left: 0, Top: 8, Width: 2, Height: 3}},
		{"negative left", TileSpec{Left: -1, Top: 0, Width: 2, Height: 2}},
		{"empty", TileSpec{Left: 0, Top: 0, Width: 0, Height: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractTile(img, tt.spec)
			assert.ErrorIs(t, err, ErrExtractionFailed)
		})
	}
}

func TestExtractTiles_RowMajorResults(t *testing.T) {
	img := createGradientImage(100, 70)
	plan, err := PlanByEdge(100, 70, 25)
	require.NoError(t, err)

	var sunk atomic.Int32
	tiles, err := ExtractTiles(context.Background(), img, plan, "photo", 3, func(ctx context.Context, tile Tile) error {
		sunk.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, tiles, len(plan.Tiles))
	assert.Equal(t, int32(len(plan.Tiles)), sunk.Load())
	for i, tile := range tiles {
		assert.Equal(t, plan.Tiles[i], tile.TileSpec)
		assert.Equal(t, TileName("photo", plan.Tiles[i].Row, plan.Tiles[i].Col), tile.Name)
		assert.NotEmpty(t, tile.Data)
	}
}

func TestExtractTiles_SinkErrorStopsRun(t *testing.T) {
	img := createGradientImage(64, 64)
	plan, err := PlanByEdge(64, 64, 8)
	require.NoError(t, err)

	var calls atomic.Int32
	_, err = ExtractTiles(context.Background(), img, plan, "photo", 1, func(ctx context.Context, tile Tile) error {
		if calls.Add(1) == 3 {
			return errInjected
		}
		return nil
	})

	assert.ErrorIs(t, err, errInjected)
	assert.Less(t, int(calls.Load()), len(plan.Tiles))
}

func TestExtractTiles_Canceled(t *testing.T) {
	img := createGradientImage(64, 64)
	plan, err := PlanByEdge(64, 64, 8)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	_, err = ExtractTiles(ctx, img, plan, "photo", 1, func(ctx context.Context, tile Tile) error {
		if calls.Add(1) == 2 {
			cancel()
		}
		return nil
	})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, int(calls.Load()), len(plan.Tiles))
}

func TestTileName(t *testing.T) {
	assert.Equal(t, "photo_0_2.png", TileName("photo", 0, 2))
	assert.Equal(t, "my_scan_10_3.png", TileName("my_scan", 10, 3))
}
