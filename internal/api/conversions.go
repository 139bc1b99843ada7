package api

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"tiler-backend/internal/core"
	"tiler-backend/internal/database"
	"tiler-backend/pkg/api"
)

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func convertResult(res *core.Result) api.SplitResponse {
	tiles := make([]api.Tile, len(res.Tiles))
	parts := make([]string, len(res.Tiles))
	for i, t := range res.Tiles {
		url := dataURL(core.TileMimeType, t.Data)
		tiles[i] = api.Tile{
			Name:    t.Name,
			Row:     t.Row,
			Col:     t.Col,
			Left:    t.Left,
			Top:     t.Top,
			Width:   t.Width,
			Height:  t.Height,
			Bytes:   len(t.Data),
			DataURL: url,
		}
		parts[i] = url
	}

	return api.SplitResponse{
		RunId:    res.RunId,
		BaseName: res.BaseName,
		Width:    res.Width,
		Height:   res.Height,
		Rows:     res.Rows,
		Cols:     res.Cols,
		Tiles:    tiles,
		Parts:    parts,
		Archive: api.Archive{
			Name:    res.Archive.Name,
			Bytes:   len(res.Archive.Data),
			DataURL: dataURL(core.ArchiveMimeType, res.Archive.Data),
		},
	}
}

func convertRun(r database.Run) api.Run {
	run := api.Run{
		Id:           r.Id,
		Filename:     r.Filename,
		BaseName:     r.BaseName,
		Status:       r.Status,
		ErrorKind:    r.ErrorKind,
		Error:        r.Error,
		Rows:         r.Rows,
		Cols:         r.Cols,
		MaxTileEdge:  r.MaxTileEdge,
		Width:        r.Width,
		Height:       r.Height,
		TileCount:    r.TileCount,
		SourceBytes:  r.SourceBytes,
		ArchiveName:  r.ArchiveName,
		ArchiveBytes: r.ArchiveBytes,
		CreationTime: r.CreationTime,
	}

	if r.CompletionTime.Valid {
		completed := r.CompletionTime.Time
		run.CompletionTime = &completed
	}

	if len(r.TileNames) > 0 {
		if err := json.Unmarshal(r.TileNames, &run.TileNames); err != nil {
			slog.Error("error decoding tile names", "run_id", r.Id, "error", err)
		}
	}

	return run
}

func convertRuns(rs []database.Run) []api.Run {
	runs := make([]api.Run, 0, len(rs))
	for _, r := range rs {
		runs = append(runs, convertRun(r))
	}
	return runs
}
