package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"tiler-backend/internal/core"
	"tiler-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
)

const (
	MissingUpload    = "MissingUpload"
	UploadTooLarge   = "UploadTooLarge"
	BadRequest       = "BadRequest"
	NotFound         = "NotFound"
	internalErrorMsg = "internal error"
)

type codedError struct {
	err  error
	code int
	kind string
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

func KindedErrorf(code int, kind string, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code, kind: kind}
}

// PipelineError maps an error from core.Pipeline to the status code for its
// kind.
func PipelineError(err error) error {
	kind := core.ErrorKind(err)

	var code int
	switch kind {
	case core.KindMissingTileParameter, core.KindInvalidTileParameter:
		code = http.StatusBadRequest
	case core.KindInvalidDimensions, core.KindTileTooSmall, core.KindExtractionFailed:
		code = http.StatusUnprocessableEntity
	case core.KindCanceled:
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusInternalServerError
	}

	return &codedError{err: err, code: code, kind: kind}
}

func ParseRequestQueryParams[T any](r *http.Request) (T, error) {
	var data T
	if err := r.ParseForm(); err != nil {
		slog.Error("error parsing form", "error", err)
		return data, KindedErrorf(http.StatusBadRequest, BadRequest, "unable to parse request query params")
	}

	if err := decodeForm(&data, r.Form); err != nil {
		return data, err
	}

	return data, nil
}

var formDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func decodeForm(dst any, values map[string][]string) error {
	if err := formDecoder.Decode(dst, values); err != nil {
		slog.Error("error decoding form values", "error", err)
		return KindedErrorf(http.StatusBadRequest, core.KindInvalidTileParameter, "unable to parse request parameters: %v", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	code, kind, message := http.StatusInternalServerError, core.KindInternal, internalErrorMsg

	var cerr *codedError
	if errors.As(err, &cerr) {
		code = cerr.code
		if cerr.kind != "" {
			kind = cerr.kind
		} else if code != http.StatusInternalServerError {
			kind = http.StatusText(code)
		}
		if code != http.StatusInternalServerError {
			message = err.Error()
		}
	}

	if code == http.StatusInternalServerError {
		slog.Error("internal server error received in endpoint", "kind", kind, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if encErr := json.NewEncoder(w).Encode(api.ErrorResponse{Error: kind, Message: message}); encErr != nil {
		slog.Error("error writing error response", "error", encErr)
	}
}

func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			writeError(w, err)
			return
		}

		if res == nil {
			res = struct{}{}
		}

		WriteJsonResponse(w, res)
	}
}

// Attachment is returned by handlers that respond with a file download
// instead of JSON.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

func AttachmentHandler(handler func(r *http.Request) (Attachment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		att, err := handler(r)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", att.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
		w.Header().Set("Content-Length", fmt.Sprint(len(att.Data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(att.Data); err != nil {
			slog.Error("error writing attachment", "filename", att.Filename, "error", err)
		}
	}
}

func WriteJsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
		http.Error(w, fmt.Sprintf("error serializing response body: %v", err), http.StatusInternalServerError)
	}
}

func URLParamUUID(r *http.Request, key string) (uuid.UUID, error) {
	param := chi.URLParam(r, key)

	if len(param) == 0 {
		return uuid.Nil, KindedErrorf(http.StatusBadRequest, BadRequest, "missing {%v} url parameter", key)
	}

	id, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, KindedErrorf(http.StatusBadRequest, BadRequest, "invalid uuid '%v' url parameter provided: %v", key, err)
	}

	return id, nil
}
