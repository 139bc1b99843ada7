package api

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"tiler-backend/internal/core"
	"tiler-backend/internal/database"
	"tiler-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	uploadField     = "image"
	multipartMemory = 8 << 20

	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

type TilerService struct {
	db             *gorm.DB
	pipeline       *core.Pipeline
	maxUploadBytes int64
}

func NewTilerService(db *gorm.DB, pipeline *core.Pipeline, maxUploadBytes int64) *TilerService {
	return &TilerService{db: db, pipeline: pipeline, maxUploadBytes: maxUploadBytes}
}

func (s *TilerService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/split", func(r chi.Router) {
			r.Use(s.limitUpload)
			r.Post("/", RestHandler(s.Split))
			r.Post("/archive", AttachmentHandler(s.SplitArchive))
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", RestHandler(s.ListRuns))
			r.Get("/{run_id}", RestHandler(s.GetRun))
		})
	})
}

func (s *TilerService) limitUpload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *TilerService) Split(r *http.Request) (any, error) {
	res, err := s.split(r)
	if err != nil {
		return nil, err
	}
	return convertResult(res), nil
}

func (s *TilerService) SplitArchive(r *http.Request) (Attachment, error) {
	res, err := s.split(r)
	if err != nil {
		return Attachment{}, err
	}
	return Attachment{Filename: res.Archive.Name, ContentType: core.ArchiveMimeType, Data: res.Archive.Data}, nil
}

type splitRequest struct {
	file     multipart.File
	filename string
	params   core.TileParams
}

func parseSplitRequest(r *http.Request) (splitRequest, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return splitRequest{}, KindedErrorf(http.StatusRequestEntityTooLarge, UploadTooLarge, "upload exceeds the %d byte limit", tooLarge.Limit)
		case errors.Is(err, http.ErrNotMultipart):
			return splitRequest{}, KindedErrorf(http.StatusBadRequest, MissingUpload, "request must be multipart/form-data with an '%s' file", uploadField)
		default:
			slog.Error("error parsing multipart form", "error", err)
			return splitRequest{}, KindedErrorf(http.StatusBadRequest, BadRequest, "unable to parse multipart form: %v", err)
		}
	}

	var params api.SplitParams
	if err := decodeForm(&params, r.MultipartForm.Value); err != nil {
		return splitRequest{}, err
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return splitRequest{}, KindedErrorf(http.StatusBadRequest, MissingUpload, "missing '%s' file in upload", uploadField)
		}
		return splitRequest{}, KindedErrorf(http.StatusBadRequest, BadRequest, "unable to read '%s' file: %v", uploadField, err)
	}

	return splitRequest{
		file:     file,
		filename: header.Filename,
		params:   core.TileParams{Rows: params.Rows, Cols: params.Cols, MaxTileEdge: params.MaxTileEdge},
	}, nil
}

func (s *TilerService) split(r *http.Request) (*core.Result, error) {
	req, err := parseSplitRequest(r)
	if r.MultipartForm != nil {
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				slog.Error("error removing multipart temp files", "error", err)
			}
		}()
	}
	if err != nil {
		return nil, err
	}
	defer req.file.Close()

	if err := req.params.Validate(); err != nil {
		return nil, PipelineError(err)
	}

	ctx := r.Context()

	run := database.Run{
		Id:          uuid.New(),
		Filename:    req.filename,
		BaseName:    core.BaseName(req.filename),
		Rows:        req.params.Rows,
		Cols:        req.params.Cols,
		MaxTileEdge: req.params.MaxTileEdge,
	}
	if err := database.CreateRun(ctx, s.db, &run); err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create run entry")
	}

	res, err := s.pipeline.Run(ctx, core.Input{
		RunId:    run.Id,
		Image:    req.file,
		Filename: req.filename,
		Params:   req.params,
	})
	s.recordRun(ctx, run.Id, res, err)
	if err != nil {
		return nil, PipelineError(err)
	}

	return res, nil
}

// recordRun stores the outcome of a pipeline run in the ledger. The update is
// written even when the client has already disconnected.
func (s *TilerService) recordRun(ctx context.Context, runId uuid.UUID, res *core.Result, runErr error) {
	ctx = context.WithoutCancel(ctx)

	if runErr != nil {
		_ = database.FailRun(ctx, s.db, runId, core.ErrorKind(runErr), runErr)
		return
	}

	tileNames := make([]string, len(res.Tiles))
	for i, tile := range res.Tiles {
		tileNames[i] = tile.Name
	}
	_ = database.CompleteRun(ctx, s.db, runId, database.RunOutcome{
		Width:        res.Width,
		Height:       res.Height,
		Rows:         res.Rows,
		Cols:         res.Cols,
		SourceBytes:  res.SourceBytes,
		ArchiveName:  res.Archive.Name,
		ArchiveBytes: int64(len(res.Archive.Data)),
		TileNames:    tileNames,
	})
}

func (s *TilerService) ListRuns(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListRunsParams](r)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	limit = min(limit, maxRunsLimit)

	runs, err := database.ListRuns(r.Context(), s.db, limit)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving runs")
	}

	return convertRuns(runs), nil
}

func (s *TilerService) GetRun(r *http.Request) (any, error) {
	runId, err := URLParamUUID(r, "run_id")
	if err != nil {
		return nil, err
	}

	run, err := database.GetRun(r.Context(), s.db, runId)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return nil, KindedErrorf(http.StatusNotFound, NotFound, "run %s not found", runId)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving run record")
	}

	return convertRun(run), nil
}
