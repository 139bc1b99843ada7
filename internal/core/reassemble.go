package core

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/anthonynsimon/bild/clone"
	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zip"
)

// ParseTileName splits a name produced by TileName back into its parts. The
// base name may itself contain underscores.
func ParseTileName(name string) (baseName string, row, col int, ok bool) {
	name = path.Base(name)
	if path.Ext(name) != "."+TileExt {
		return "", 0, 0, false
	}
	parts := strings.Split(strings.TrimSuffix(name, "."+TileExt), "_")
	if len(parts) < 3 {
		return "", 0, 0, false
	}

	row, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil || row < 0 {
		return "", 0, 0, false
	}
	col, err = strconv.Atoi(parts[len(parts)-1])
	if err != nil || col < 0 {
		return "", 0, 0, false
	}

	return strings.Join(parts[:len(parts)-2], "_"), row, col, true
}

// ReadArchive returns the tiles stored in a zip produced by BuildArchive, in
// archive order. Tile geometry is recovered from the member names and the
// decoded tile sizes.
func ReadArchive(data []byte) ([]Tile, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	tiles := make([]Tile, 0, len(zr.File))
	for _, f := range zr.File {
		_, row, col, ok := ParseTileName(f.Name)
		if !ok {
			return nil, fmt.Errorf("unexpected archive member %q", f.Name)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open member %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read member %s: %w", f.Name, err)
		}

		cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("failed to decode member %s: %w", f.Name, err)
		}

		tiles = append(tiles, Tile{
			TileSpec: TileSpec{Row: row, Col: col, Width: cfg.Width, Height: cfg.Height},
			Name:     f.Name,
			Data:     content,
		})
	}

	if err := layoutTiles(tiles); err != nil {
		return nil, err
	}
	return tiles, nil
}

// layoutTiles fills in Left and Top from the widths of row 0 and the heights of
// column 0, and checks the grid is complete and consistent.
func layoutTiles(tiles []Tile) error {
	if len(tiles) == 0 {
		return fmt.Errorf("archive contains no tiles")
	}

	rows, cols := 0, 0
	cells := make(map[[2]int]int, len(tiles))
	for i, t := range tiles {
		key := [2]int{t.Row, t.Col}
		if _, dup := cells[key]; dup {
			return fmt.Errorf("duplicate tile (%d,%d)", t.Row, t.Col)
		}
		cells[key] = i
		rows = max(rows, t.Row+1)
		cols = max(cols, t.Col+1)
	}
	if len(cells) != rows*cols {
		return fmt.Errorf("incomplete grid: %d tiles for %dx%d", len(cells), rows, cols)
	}

	lefts := make([]int, cols)
	for c := 1; c < cols; c++ {
		lefts[c] = lefts[c-1] + tiles[cells[[2]int{0, c - 1}]].Width
	}
	tops := make([]int, rows)
	for r := 1; r < rows; r++ {
		tops[r] = tops[r-1] + tiles[cells[[2]int{r - 1, 0}]].Height
	}

	for i := range tiles {
		t := &tiles[i]
		if t.Width != tiles[cells[[2]int{0, t.Col}]].Width || t.Height != tiles[cells[[2]int{t.Row, 0}]].Height {
			return fmt.Errorf("tile (%d,%d) is %dx%d, which does not line up with its row and column", t.Row, t.Col, t.Width, t.Height)
		}
		t.Left = lefts[t.Col]
		t.Top = tops[t.Row]
	}

	sort.SliceStable(tiles, func(i, j int) bool {
		if tiles[i].Row != tiles[j].Row {
			return tiles[i].Row < tiles[j].Row
		}
		return tiles[i].Col < tiles[j].Col
	})
	return nil
}

// Reassemble draws every tile at its (Left, Top) offset onto a width x height
// canvas.
func Reassemble(width, height int, tiles []Tile) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	canvas := imaging.New(width, height, color.NRGBA{})
	for _, t := range tiles {
		img, err := imaging.Decode(bytes.NewReader(t.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode tile %s: %w", t.Name, err)
		}

		dst := image.Rect(t.Left, t.Top, t.Left+img.Bounds().Dx(), t.Top+img.Bounds().Dy())
		if !dst.In(canvas.Bounds()) {
			return nil, fmt.Errorf("tile %s at %v lies outside the %dx%d canvas", t.Name, dst, width, height)
		}
		draw.Draw(canvas, dst, img, img.Bounds().Min, draw.Src)
	}

	return canvas, nil
}

// ReassembleArchive rebuilds the original image from an archive's tiles.
func ReassembleArchive(data []byte) (*image.NRGBA, error) {
	tiles, err := ReadArchive(data)
	if err != nil {
		return nil, err
	}

	last := tiles[len(tiles)-1]
	return Reassemble(last.Left+last.Width, last.Top+last.Height, tiles)
}

// SamePixels reports whether a and b have the same size and identical pixels
// once both are converted to RGBA.
func SamePixels(a, b image.Image) bool {
	if a.Bounds().Dx() != b.Bounds().Dx() || a.Bounds().Dy() != b.Bounds().Dy() {
		return false
	}
	return bytes.Equal(clone.AsRGBA(a).Pix, clone.AsRGBA(b).Pix)
}
