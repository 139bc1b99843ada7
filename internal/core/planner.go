package core

import (
	"fmt"
	"image"
)

type TileSpec struct {
	Row    int `json:"row"`
	Col    int `json:"col"`
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s TileSpec) Rect() image.Rectangle {
	return image.Rect(s.Left, s.Top, s.Left+s.Width, s.Top+s.Height)
}

// TilePlan lists the cells of a rows x cols grid in row-major order. This order
// is used for extraction results, file naming and archive members.
type TilePlan struct {
	Width  int
	Height int
	Rows   int
	Cols   int
	Tiles  []TileSpec
}

func PlanByEdge(width, height, maxEdge int) (TilePlan, error) {
	if width <= 0 || height <= 0 {
		return TilePlan{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if maxEdge <= 0 {
		return TilePlan{}, fmt.Errorf("%w: max tile edge must be positive, got %d", ErrInvalidTileParameter, maxEdge)
	}

	cols := ceilDiv(width, maxEdge)
	rows := ceilDiv(height, maxEdge)

	return planGrid(width, height, rows, cols)
}

func PlanByGrid(width, height, rows, cols int) (TilePlan, error) {
	if width <= 0 || height <= 0 {
		return TilePlan{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if rows <= 0 || cols <= 0 {
		return TilePlan{}, fmt.Errorf("%w: rows and cols must be positive, got %dx%d", ErrInvalidTileParameter, rows, cols)
	}

	return planGrid(width, height, rows, cols)
}

func planGrid(width, height, rows, cols int) (TilePlan, error) {
	tileW := width / cols
	tileH := height / rows
	if tileW <= 0 || tileH <= 0 {
		return TilePlan{}, fmt.Errorf("%w: %dx%d grid over a %dx%d image", ErrTileTooSmall, rows, cols, width, height)
	}

	plan := TilePlan{
		Width:  width,
		Height: height,
		Rows:   rows,
		Cols:   cols,
		Tiles:  make([]TileSpec, 0, rows*cols),
	}

	for row := 0; row < rows; row++ {
		top := row * tileH
		h := tileH
		if row == rows-1 {
			h = height - top
		}
		h = max(1, min(h, height-top))

		for col := 0; col < cols; col++ {
			left := col * tileW
			w := tileW
			if col == cols-1 {
				w = width - left
			}
			w = max(1, min(w, width-left))

			plan.Tiles = append(plan.Tiles, TileSpec{
				Row:    row,
				Col:    col,
				Left:   left,
				Top:    top,
				Width:  w,
				Height: h,
			})
		}
	}

	return plan, nil
}

// ceilDiv expects a >= 1 and b >= 1 and does not overflow for any such pair.
func ceilDiv(a, b int) int {
	return (a-1)/b + 1
}
