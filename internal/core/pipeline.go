package core

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"tiler-backend/internal/storage"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	fallbackBaseName = "image"

	// DefaultMaxPixels bounds the decoded size of a source image, about 1 GiB
	// of NRGBA pixels.
	DefaultMaxPixels = 1 << 28
)

// TileParams selects how the grid is derived: either an explicit Rows x Cols
// grid or a MaxTileEdge from which rows and cols are computed. Zero means unset.
type TileParams struct {
	Rows        int `json:"rows,omitempty"`
	Cols        int `json:"cols,omitempty"`
	MaxTileEdge int `json:"max_tile_edge,omitempty"`
}

func (p TileParams) Validate() error {
	hasGrid := p.Rows != 0 || p.Cols != 0
	hasEdge := p.MaxTileEdge != 0

	switch {
	case !hasGrid && !hasEdge:
		return fmt.Errorf("%w: either rows and cols or max_tile_edge must be provided", ErrMissingTileParameter)
	case hasGrid && hasEdge:
		return fmt.Errorf("%w: rows/cols and max_tile_edge are mutually exclusive", ErrInvalidTileParameter)
	case hasGrid && (p.Rows <= 0 || p.Cols <= 0):
		return fmt.Errorf("%w: rows and cols must both be positive, got rows=%d cols=%d", ErrInvalidTileParameter, p.Rows, p.Cols)
	case hasEdge && p.MaxTileEdge < 0:
		return fmt.Errorf("%w: max_tile_edge must be positive, got %d", ErrInvalidTileParameter, p.MaxTileEdge)
	}
	return nil
}

func (p TileParams) Plan(width, height int) (TilePlan, error) {
	if p.MaxTileEdge != 0 {
		return PlanByEdge(width, height, p.MaxTileEdge)
	}
	return PlanByGrid(width, height, p.Rows, p.Cols)
}

// BaseName strips directories and the extension from an uploaded filename.
func BaseName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.TrimSpace(strings.TrimSuffix(name, path.Ext(name)))
	if name == "" || name == "." || name == "/" {
		return fallbackBaseName
	}
	return name
}

type Input struct {
	// RunId is generated when left as uuid.Nil.
	RunId    uuid.UUID
	Image    io.Reader
	Filename string
	Params   TileParams
}

type Result struct {
	RunId       uuid.UUID
	BaseName    string
	Width       int
	Height      int
	Rows        int
	Cols        int
	SourceBytes int64
	Tiles       []Tile
	Archive     Archive
}

type Pipeline struct {
	store     storage.Provider
	workers   int
	maxPixels int
}

func NewPipeline(store storage.Provider, workers int) *Pipeline {
	return &Pipeline{store: store, workers: workers, maxPixels: DefaultMaxPixels}
}

// WithMaxPixels sets the largest width*height a source image may declare.
// Values <= 0 keep the default.
func (p *Pipeline) WithMaxPixels(n int) *Pipeline {
	if n > 0 {
		p.maxPixels = n
	}
	return p
}

func RunPrefix(runId uuid.UUID) string {
	return path.Join("runs", runId.String())
}

// Run splits the input image into tiles and packages them into a zip archive.
// All scratch artifacts created along the way are removed before Run returns,
// on success and on every error.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if err := in.Params.Validate(); err != nil {
		return nil, err
	}
	if in.Image == nil {
		return nil, fmt.Errorf("%w: no image provided", ErrExtractionFailed)
	}

	runId := in.RunId
	if runId == uuid.Nil {
		runId = uuid.New()
	}
	baseName := BaseName(in.Filename)

	logger := slog.With("run_id", runId, "base_name", baseName)
	start := time.Now()

	lifecycle := NewLifecycle(p.store, RunPrefix(runId), logger)
	defer lifecycle.Close(ctx)

	img, sourceBytes, err := p.loadSource(ctx, lifecycle, in.Image)
	if err != nil {
		logger.Error("failed to load source image", "error", err)
		return nil, err
	}

	bounds := img.Bounds()
	plan, err := in.Params.Plan(bounds.Dx(), bounds.Dy())
	if err != nil {
		logger.Error("failed to plan tiles", "width", bounds.Dx(), "height", bounds.Dy(), "error", err)
		return nil, err
	}
	logger.Info("planned tiles", "width", plan.Width, "height", plan.Height, "rows", plan.Rows, "cols", plan.Cols)

	handles := make([]*Handle, len(plan.Tiles))
	keys := make([]string, len(plan.Tiles))
	sink := func(ctx context.Context, tile Tile) error {
		idx := tile.Row*plan.Cols + tile.Col
		key := lifecycle.Key(path.Join("tiles", tile.Name))
		handles[idx] = lifecycle.Register(key)
		keys[idx] = key

		if err := p.store.PutObject(ctx, key, bytes.NewReader(tile.Data)); err != nil {
			return fmt.Errorf("%w: failed to store tile %s: %w", ErrInternal, tile.Name, err)
		}
		return nil
	}

	tiles, err := ExtractTiles(ctx, img, plan, baseName, p.workers, sink)
	if err != nil {
		logger.Error("failed to extract tiles", "error", err)
		return nil, err
	}

	archiveName := ArchiveName(baseName, runId.String()[:8])
	members := make([]ArchiveMember, len(tiles))
	for i, tile := range tiles {
		key := keys[i]
		members[i] = ArchiveMember{
			Name: tile.Name,
			Open: func(ctx context.Context) (io.Reader, error) {
				data, err := p.store.GetObject(ctx, key)
				if err != nil {
					return nil, err
				}
				return bytes.NewReader(data), nil
			},
		}
	}

	archiveData, err := p.buildArchive(ctx, lifecycle, archiveName, members)
	if err != nil {
		logger.Error("failed to build archive", "archive", archiveName, "error", err)
		return nil, err
	}

	// the archive holds every tile now, so the tile files are no longer needed
	for _, h := range handles {
		h.Release(ctx)
	}

	logger.Info("run completed", "tiles", len(tiles), "archive", archiveName, "archive_bytes", len(archiveData), "duration", time.Since(start))

	return &Result{
		RunId:       runId,
		BaseName:    baseName,
		Width:       plan.Width,
		Height:      plan.Height,
		Rows:        plan.Rows,
		Cols:        plan.Cols,
		SourceBytes: sourceBytes,
		Tiles:       tiles,
		Archive:     Archive{Name: archiveName, Data: archiveData},
	}, nil
}

// loadSource copies the upload into scratch storage and decodes it from that
// copy. The copy is removed as soon as decoding is done.
func (p *Pipeline) loadSource(ctx context.Context, lifecycle *Lifecycle, src io.Reader) (image.Image, int64, error) {
	key := lifecycle.Key("source")
	handle := lifecycle.Register(key)
	defer handle.Release(ctx)

	counter := &countingReader{r: src}
	if err := p.store.PutObject(ctx, key, counter); err != nil {
		return nil, 0, fmt.Errorf("%w: failed to store source image: %w", ErrInternal, err)
	}

	data, err := p.store.GetObject(ctx, key)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read source image: %w", ErrInternal, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read source image header: %w", ErrExtractionFailed, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, cfg.Width, cfg.Height)
	}
	if cfg.Width > p.maxPixels/cfg.Height {
		return nil, 0, fmt.Errorf("%w: %dx%d exceeds the limit of %d pixels", ErrInvalidDimensions, cfg.Width, cfg.Height, p.maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to decode source image: %w", ErrExtractionFailed, err)
	}

	return img, counter.n, nil
}

func (p *Pipeline) buildArchive(ctx context.Context, lifecycle *Lifecycle, name string, members []ArchiveMember) ([]byte, error) {
	key := lifecycle.Key(name)
	handle := lifecycle.Register(key)
	defer handle.Release(ctx)

	pr, pw := io.Pipe()
	buildErr := make(chan error, 1)
	go func() {
		err := BuildArchive(ctx, pw, members, time.Now())
		pw.CloseWithError(err)
		buildErr <- err
	}()

	putErr := p.store.PutObject(ctx, key, pr)
	// unblocks the builder if the store stopped reading early
	pr.Close()

	if err := <-buildErr; err != nil {
		return nil, err
	}
	if putErr != nil {
		return nil, fmt.Errorf("%w: failed to store archive: %w", ErrArchiveWriteFailed, putErr)
	}

	data, err := p.store.GetObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read archive: %w", ErrInternal, err)
	}

	return data, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
