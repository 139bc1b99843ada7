package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tiler-backend/internal/core"

	"github.com/disintegration/imaging"
	"github.com/spf13/pflag"
)

func runJoin(args []string, stdout io.Writer) error {
	var out, verify string

	flagSet := pflag.NewFlagSet("join", pflag.ContinueOnError)
	flagSet.StringVarP(&out, "out", "o", "", "output image; the format follows the extension (default: ARCHIVE with .png)")
	flagSet.StringVar(&verify, "verify", "", "original image the reassembled one must match pixel for pixel")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("join requires exactly one archive")
	}

	archive := flagSet.Arg(0)
	if out == "" {
		out = strings.TrimSuffix(archive, filepath.Ext(archive)) + ".png"
	}

	data, err := os.ReadFile(archive)
	if err != nil {
		return fmt.Errorf("error reading archive: %w", err)
	}

	img, err := core.ReassembleArchive(data)
	if err != nil {
		return fmt.Errorf("error reassembling %s: %w", archive, err)
	}

	if verify != "" {
		original, err := imaging.Open(verify)
		if err != nil {
			return fmt.Errorf("error opening %s: %w", verify, err)
		}
		if !core.SamePixels(original, img) {
			return fmt.Errorf("reassembled image does not match %s", verify)
		}
	}

	if err := imaging.Save(img, out); err != nil {
		return fmt.Errorf("error saving %s: %w", out, err)
	}

	fmt.Fprintf(stdout, "%s: %dx%d image written to %s\n", archive, img.Bounds().Dx(), img.Bounds().Dy(), out)
	return nil
}
