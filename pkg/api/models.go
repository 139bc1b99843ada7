package api

import (
	"time"

	"github.com/google/uuid"
)

type Tile struct {
	Name    string `json:"name"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Left    int    `json:"left"`
	Top     int    `json:"top"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Bytes   int    `json:"bytes"`
	DataURL string `json:"data_url"`
}

type Archive struct {
	Name    string `json:"name"`
	Bytes   int    `json:"bytes"`
	DataURL string `json:"data_url"`
}

type SplitResponse struct {
	RunId    uuid.UUID `json:"run_id"`
	BaseName string    `json:"base_name"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Rows     int       `json:"rows"`
	Cols     int       `json:"cols"`
	Tiles    []Tile    `json:"tiles"`

	// Parts holds the tile data urls alone, in row-major order.
	Parts []string `json:"parts"`

	Archive Archive `json:"archive"`
}

type SplitParams struct {
	Rows        int `schema:"rows"`
	Cols        int `schema:"cols"`
	MaxTileEdge int `schema:"max_tile_edge"`
}

type ListRunsParams struct {
	Limit int `schema:"limit"`
}

type Run struct {
	Id       uuid.UUID `json:"id"`
	Filename string    `json:"filename"`
	BaseName string    `json:"base_name"`
	Status   string    `json:"status"`

	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	Rows        int `json:"rows"`
	Cols        int `json:"cols"`
	MaxTileEdge int `json:"max_tile_edge,omitempty"`

	Width        int      `json:"width"`
	Height       int      `json:"height"`
	TileCount    int      `json:"tile_count"`
	SourceBytes  int64    `json:"source_bytes"`
	ArchiveName  string   `json:"archive_name,omitempty"`
	ArchiveBytes int64    `json:"archive_bytes"`
	TileNames    []string `json:"tile_names,omitempty"`

	CreationTime   time.Time  `json:"creation_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
