package integrationtests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	backend "tiler-backend/internal/api"
	"tiler-backend/internal/core"
	"tiler-backend/internal/database"
	"tiler-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewDatabase(setupPostgresContainer(t, ctx))
	require.NoError(t, err)

	scratch := setupS3Scratch(t, ctx)

	service := backend.NewTilerService(db, core.NewPipeline(scratch, 4), 16<<20)
	router := chi.NewRouter()
	service.AddRoutes(router)

	_, data := createImage(t, 1000, 700)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/v1/split", "harbor.png", data, map[string]string{"max_tile_edge": "400"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res api.SplitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 3, res.Cols)
	assert.Equal(t, 334, res.Tiles[2].Width)
	assert.Equal(t, 350, res.Tiles[5].Height)

	requireNoScratch(t, ctx, scratch)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+res.RunId.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var run api.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, database.RunCompleted, run.Status)
	assert.Equal(t, 6, run.TileCount)
	assert.Equal(t, res.Archive.Name, run.ArchiveName)
	assert.Len(t, run.TileNames, 6)
	assert.NotNil(t, run.CompletionTime)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/v1/split", "harbor.png", data, map[string]string{"rows": "800", "cols": "1"}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	requireNoScratch(t, ctx, scratch)

	runs, err := database.ListRuns(ctx, db, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, database.RunFailed, runs[0].Status)
	assert.Equal(t, core.KindTileTooSmall, runs[0].ErrorKind)
}
