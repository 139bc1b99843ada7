package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"tiler-backend/cmd"
	"tiler-backend/internal/core"
	"tiler-backend/internal/core/utils"
	"tiler-backend/internal/storage"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"
)

type splitOptions struct {
	params      core.TileParams
	outDir      string
	scratchDir  string
	workers     int
	concurrency int
	writeTiles  bool
	quiet       bool
	logLevel    string
}

type splitOutput struct {
	archivePath string
	result      *core.Result
}

func runSplit(ctx context.Context, args []string, stdout io.Writer) error {
	var opts splitOptions

	flagSet := pflag.NewFlagSet("split", pflag.ContinueOnError)
	flagSet.IntVar(&opts.params.MaxTileEdge, "max-edge", 0, "largest tile edge in pixels; rows and cols are derived from it")
	flagSet.IntVar(&opts.params.Rows, "rows", 0, "number of tile rows (requires --cols)")
	flagSet.IntVar(&opts.params.Cols, "cols", 0, "number of tile columns (requires --rows)")
	flagSet.StringVarP(&opts.outDir, "out", "o", ".", "directory the archives are written to")
	flagSet.StringVar(&opts.scratchDir, "scratch", "", "scratch directory for intermediate files (default: a temporary directory)")
	flagSet.IntVar(&opts.workers, "workers", 0, "tile extraction workers per image (0 uses every CPU)")
	flagSet.IntVarP(&opts.concurrency, "concurrency", "j", 2, "images processed at the same time")
	flagSet.BoolVar(&opts.writeTiles, "tiles", false, "also write the individual tiles into a directory per image")
	flagSet.BoolVarP(&opts.quiet, "quiet", "q", false, "do not show a progress bar")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if err := cmd.SetupLogger(opts.logLevel); err != nil {
		return err
	}

	files := flagSet.Args()
	if len(files) == 0 {
		return fmt.Errorf("split requires at least one image file")
	}
	if err := opts.params.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(opts.outDir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	scratchDir := opts.scratchDir
	if scratchDir == "" {
		tmp, err := os.MkdirTemp("", "tiler-scratch-")
		if err != nil {
			return fmt.Errorf("error creating scratch directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		scratchDir = tmp
	}

	scratch, err := storage.NewLocalProvider(scratchDir)
	if err != nil {
		return err
	}
	pipeline := core.NewPipeline(scratch, opts.workers)

	queue := make(chan string, len(files))
	for _, f := range files {
		queue <- f
	}
	close(queue)

	completed := make(chan utils.CompletedTask[string, splitOutput], len(files))
	utils.RunInPool(ctx, func(ctx context.Context, file string) (splitOutput, error) {
		return splitFile(ctx, pipeline, file, opts)
	}, queue, completed, opts.concurrency)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("splitting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetVisibility(!opts.quiet),
	)

	failed := 0
	for task := range completed {
		_ = bar.Add(1)

		if task.Error != nil {
			failed++
			slog.Error("failed to split image", "file", task.Input, "kind", core.ErrorKind(task.Error), "error", task.Error)
			continue
		}

		res := task.Result.result
		fmt.Fprintf(stdout, "%s: %dx%d -> %d tiles (%dx%d) in %s\n",
			task.Input, res.Width, res.Height, len(res.Tiles), res.Rows, res.Cols, task.Result.archivePath)
	}
	_ = bar.Finish()

	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be split", failed, len(files))
	}
	return nil
}

func splitFile(ctx context.Context, pipeline *core.Pipeline, file string, opts splitOptions) (splitOutput, error) {
	f, err := os.Open(file)
	if err != nil {
		return splitOutput{}, fmt.Errorf("error opening %s: %w", file, err)
	}
	defer f.Close()

	res, err := pipeline.Run(ctx, core.Input{
		Image:    f,
		Filename: filepath.Base(file),
		Params:   opts.params,
	})
	if err != nil {
		return splitOutput{}, err
	}

	archivePath := filepath.Join(opts.outDir, res.Archive.Name)
	if err := os.WriteFile(archivePath, res.Archive.Data, 0644); err != nil {
		return splitOutput{}, fmt.Errorf("error writing archive: %w", err)
	}

	if opts.writeTiles {
		tileDir := filepath.Join(opts.outDir, res.BaseName)
		if err := os.MkdirAll(tileDir, 0755); err != nil {
			return splitOutput{}, fmt.Errorf("error creating tile directory: %w", err)
		}
		for _, tile := range res.Tiles {
			if err := os.WriteFile(filepath.Join(tileDir, tile.Name), tile.Data, 0644); err != nil {
				return splitOutput{}, fmt.Errorf("error writing tile %s: %w", tile.Name, err)
			}
		}
	}

	return splitOutput{archivePath: archivePath, result: res}, nil
}
