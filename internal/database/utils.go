package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("run not found")

func CreateRun(ctx context.Context, db *gorm.DB, run *Run) error {
	if run.Id == uuid.Nil {
		run.Id = uuid.New()
	}
	run.Status = RunRunning
	run.CreationTime = time.Now().UTC()

	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		slog.Error("error creating run", "run_id", run.Id, "error", err)
		return fmt.Errorf("error creating run: %w", err)
	}
	return nil
}

// RunOutcome is what a completed run records about its output.
type RunOutcome struct {
	Width        int
	Height       int
	Rows         int
	Cols         int
	SourceBytes  int64
	ArchiveName  string
	ArchiveBytes int64
	TileNames    []string
}

func CompleteRun(ctx context.Context, db *gorm.DB, runId uuid.UUID, outcome RunOutcome) error {
	names, err := json.Marshal(outcome.TileNames)
	if err != nil {
		return fmt.Errorf("error encoding tile names: %w", err)
	}

	updates := map[string]any{
		"status":          RunCompleted,
		"width":           outcome.Width,
		"height":          outcome.Height,
		"rows":            outcome.Rows,
		"cols":            outcome.Cols,
		"tile_count":      len(outcome.TileNames),
		"source_bytes":    outcome.SourceBytes,
		"archive_name":    outcome.ArchiveName,
		"archive_bytes":   outcome.ArchiveBytes,
		"tile_names":      datatypes.JSON(names),
		"completion_time": time.Now().UTC(),
	}

	if err := db.WithContext(ctx).Model(&Run{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error completing run", "run_id", runId, "error", err)
		return err
	}
	return nil
}

func FailRun(ctx context.Context, db *gorm.DB, runId uuid.UUID, kind string, runErr error) error {
	updates := map[string]any{
		"status":          RunFailed,
		"error_kind":      kind,
		"error":           runErr.Error(),
		"completion_time": time.Now().UTC(),
	}

	if err := db.WithContext(ctx).Model(&Run{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error marking run failed", "run_id", runId, "error", err)
		return err
	}
	return nil
}

func GetRun(ctx context.Context, db *gorm.DB, runId uuid.UUID) (Run, error) {
	var run Run
	if err := db.WithContext(ctx).First(&run, "id = ?", runId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Run{}, ErrRunNotFound
		}
		slog.Error("error getting run", "run_id", runId, "error", err)
		return Run{}, fmt.Errorf("error getting run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func ListRuns(ctx context.Context, db *gorm.DB, limit int) ([]Run, error) {
	query := db.WithContext(ctx).Order("creation_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []Run
	if err := query.Find(&runs).Error; err != nil {
		slog.Error("error listing runs", "error", err)
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	return runs, nil
}
