package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func runPipeline(t *testing.T, store *faultyStore, data []byte, params TileParams) (*Result, error) {
	t.Helper()
	pipeline := NewPipeline(store, 4)
	return pipeline.Run(context.Background(), Input{
		Image:    bytes.NewReader(data),
		Filename: "uploads/holiday photo.jpeg",
		Params:   params,
	})
}

func TestPipeline_Run(t *testing.T) {
	store := newFaultyStore(t)
	src := createGradientImage(1000, 700)
	data := encodePNG(t, src)

	runId := uuid.New()
	res, err := NewPipeline(store, 0).Run(context.Background(), Input{
		RunId:    runId,
		Image:    bytes.NewReader(data),
		Filename: "holiday.png",
		Params:   TileParams{MaxTileEdge: 400},
	})
	require.NoError(t, err)

	assert.Equal(t, runId, res.RunId)
	assert.Equal(t, "holiday", res.BaseName)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 3, res.Cols)
	assert.Equal(t, int64(len(data)), res.SourceBytes)
	assert.Equal(t, fmt.Sprintf("holiday_%s.zip", runId.String()[:8]), res.Archive.Name)

	wantNames := []string{
		"holiday_0_0.png", "holiday_0_1.png", "holiday_0_2.png",
		"holiday_1_0.png", "holiday_1_1.png", "holiday_1_2.png",
	}
	var names []string
	for _, tile := range res.Tiles {
		names = append(names, tile.Name)
	}
	assert.Equal(t, wantNames, names)
	assert.Equal(t, 334, res.Tiles[2].Width)
	assert.Equal(t, 350, res.Tiles[5].Height)

	zr, err := zip.NewReader(bytes.NewReader(res.Archive.Data), int64(len(res.Archive.Data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 6)
	for i, f := range zr.File {
		assert.Equal(t, wantNames[i], f.Name)
	}

	rebuilt, err := Reassemble(res.Width, res.Height, res.Tiles)
	require.NoError(t, err)
	assert.True(t, SamePixels(src, rebuilt), "tiles do not reproduce the source")

	fromArchive, err := ReassembleArchive(res.Archive.Data)
	require.NoError(t, err)
	assert.True(t, SamePixels(src, fromArchive), "archive does not reproduce the source")

	store.requireEmpty(t)
}

func TestPipeline_ExplicitGrid(t *testing.T) {
	store := newFaultyStore(t)
	src := createGradientImage(90, 50)

	res, err := runPipeline(t, store, encodePNG(t, src), TileParams{Rows: 2, Cols: 4})
	require.NoError(t, err)

	assert.Equal(t, "holiday photo", res.BaseName)
	assert.Len(t, res.Tiles, 8)
	assert.Equal(t, "holiday photo_1_3.png", res.Tiles[7].Name)

	rebuilt, err := Reassemble(90, 50, res.Tiles)
	require.NoError(t, err)
	assert.True(t, SamePixels(src, rebuilt))

	store.requireEmpty(t)
}

func TestPipeline_ConcurrentRunsShareScratch(t *testing.T) {
	store := newFaultyStore(t)
	pipeline := NewPipeline(store, 2)

	sources := make([]*image.NRGBA, 8)
	results := make([]*Result, len(sources))
	for i := range sources {
		sources[i] = createGradientImage(40+i*7, 30+i*3)
	}

	g, ctx := errgroup.WithContext(context.Background())
	for i := range sources {
		data := encodePNG(t, sources[i])
		g.Go(func() error {
			res, err := pipeline.Run(ctx, Input{
				Image:    bytes.NewReader(data),
				Filename: fmt.Sprintf("scan%d.png", i),
				Params:   TileParams{MaxTileEdge: 16},
			})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	runIds := map[uuid.UUID]bool{}
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("scan%d", i), res.BaseName)
		runIds[res.RunId] = true

		rebuilt, err := ReassembleArchive(res.Archive.Data)
		require.NoError(t, err)
		assert.True(t, SamePixels(sources[i], rebuilt), "run %d", i)
	}
	assert.Len(t, runIds, len(sources))

	store.requireEmpty(t)
}

func TestPipeline_Deterministic(t *testing.T) {
	data := encodePNG(t, createGradientImage(130, 90))

	var runs [][]string
	for i := 0; i < 2; i++ {
		res, err := runPipeline(t, newFaultyStore(t), data, TileParams{MaxTileEdge: 32})
		require.NoError(t, err)

		var names []string
		for _, tile := range res.Tiles {
			names = append(names, tile.Name)
		}

		var members []string
		zr, err := zip.NewReader(bytes.NewReader(res.Archive.Data), int64(len(res.Archive.Data)))
		require.NoError(t, err)
		for _, f := range zr.File {
			members = append(members, f.Name)
		}
		assert.Equal(t, names, members)

		runs = append(runs, names)
	}

	assert.Equal(t, runs[0], runs[1])
}

func TestPipeline_Failures(t *testing.T) {
	valid := encodePNG(t, createGradientImage(64, 48))

	tests := []struct {
		name    string
		data    []byte
		params  TileParams
		setup   func(s *faultyStore)
		wantErr error
	}{
		{
			name:    "missing tile parameter",
			data:    valid,
			wantErr: ErrMissingTileParameter,
		},
		{
			name:    "both tile parameters",
			data:    valid,
			params:  TileParams{Rows: 1, Cols: 1, MaxTileEdge: 10},
			wantErr: ErrInvalidTileParameter,
		},
		{
			name:    "undecodable source",
			data:    []byte("definitely not an image"),
			params:  TileParams{MaxTileEdge: 10},
			wantErr: ErrExtractionFailed,
		},
		{
			name:    "grid finer than image",
			data:    valid,
			params:  TileParams{Rows: 100, Cols: 1},
			wantErr: ErrTileTooSmall,
		},
		{
			name:    "source copy fails",
			data:    valid,
			params:  TileParams{MaxTileEdge: 16},
			setup:   func(s *faultyStore) { s.failPut = contains("/source") },
			wantErr: ErrInternal,
		},
		{
			name:    "tile write fails",
			data:    valid,
			params:  TileParams{MaxTileEdge: 16},
			setup:   func(s *faultyStore) { s.failPut = contains("_1_2.png") },
			wantErr: ErrInternal,
		},
		{
			name:    "archive write fails",
			data:    valid,
			params:  TileParams{MaxTileEdge: 16},
			setup:   func(s *faultyStore) { s.failPut = contains(".zip") },
			wantErr: ErrArchiveWriteFailed,
		},
		{
			name:    "tile read during archiving fails",
			data:    valid,
			params:  TileParams{MaxTileEdge: 16},
			setup:   func(s *faultyStore) { s.failGet = contains("_2_1.png") },
			wantErr: ErrArchiveWriteFailed,
		},
		{
			name:    "archive read back fails",
			data:    valid,
			params:  TileParams{MaxTileEdge: 16},
			setup:   func(s *faultyStore) { s.failGet = contains(".zip") },
			wantErr: ErrInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFaultyStore(t)
			if tt.setup != nil {
				tt.setup(store)
			}

			res, err := runPipeline(t, store, tt.data, tt.params)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)

			store.requireEmpty(t)
		})
	}
}

func TestPipeline_SourcePixelLimit(t *testing.T) {
	t.Run("declared size over default limit", func(t *testing.T) {
		store := newFaultyStore(t)
		_, err := runPipeline(t, store, pngHeader(100_000, 100_000), TileParams{MaxTileEdge: 512})
		assert.ErrorIs(t, err, ErrInvalidDimensions)
		store.requireEmpty(t)
	})

	t.Run("configured limit", func(t *testing.T) {
		store := newFaultyStore(t)
		_, err := NewPipeline(store, 2).WithMaxPixels(64*48-1).Run(context.Background(), Input{
			Image:  bytes.NewReader(encodePNG(t, createGradientImage(64, 48))),
			Params: TileParams{MaxTileEdge: 16},
		})
		assert.ErrorIs(t, err, ErrInvalidDimensions)
		store.requireEmpty(t)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		store := newFaultyStore(t)
		res, err := NewPipeline(store, 2).WithMaxPixels(64*48).Run(context.Background(), Input{
			Image:  bytes.NewReader(encodePNG(t, createGradientImage(64, 48))),
			Params: TileParams{MaxTileEdge: 16},
		})
		require.NoError(t, err)
		assert.Len(t, res.Tiles, 12)
	})
}

func TestPipeline_CleanupFailureDoesNotMaskResult(t *testing.T) {
	store := newFaultyStore(t)
	store.failDelete = contains("_0_0.png")

	res, err := runPipeline(t, store, encodePNG(t, createGradientImage(40, 40)), TileParams{MaxTileEdge: 20})
	require.NoError(t, err)
	assert.Len(t, res.Tiles, 4)
}

func TestPipeline_Canceled(t *testing.T) {
	store := newFaultyStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPipeline(store, 2).Run(ctx, Input{
		Image:  bytes.NewReader(encodePNG(t, createGradientImage(64, 64))),
		Params: TileParams{MaxTileEdge: 8},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)

	store.requireEmpty(t)
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"photo.png":            "photo",
		"dir/sub/photo.tar.gz": "photo.tar",
		`C:\Users\me\scan.JPG`: "scan",
		"":                     "image",
		".png":                 "image",
		"noext":                "noext",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseName(in), "BaseName(%q)", in)
	}
}
