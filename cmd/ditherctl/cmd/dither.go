package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmitchellscott/ditherbox/internal/config"
	"github.com/rmitchellscott/ditherbox/internal/imageprocessing"
	"github.com/rmitchellscott/ditherbox/internal/logging"
)

// NewDitherCmd dithers one image
func NewDitherCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dither",
		Short: "dither an image to black and white",
		Long:  "Reads an image (PNG, JPEG, GIF, BMP, TIFF or WebP), dithers it and writes a PNG. Use - for stdin or stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			inPath, _ := cmd.Flags().GetString("in")
			outPath, _ := cmd.Flags().GetString("out")
			if inPath == "" && len(args) > 0 {
				inPath = args[0]
			}
			if inPath == "" {
				return fmt.Errorf("input path is required. Use --in flag or provide as argument")
			}

			presetsFile, _ := cmd.Flags().GetString("presets-file")
			presets, err := config.LoadPresets(presetsFile)
			if err != nil {
				return err
			}

			var overrides config.Overrides
			f := cmd.Flags()
			overrides.Algorithm, _ = f.GetString("algorithm")
			if f.Changed("threshold") {
				v, _ := f.GetInt("threshold")
				overrides.Threshold = &v
			}
			if f.Changed("factor") {
				v, _ := f.GetFloat64("factor")
				overrides.Factor = &v
			}
			if f.Changed("matrix-size") {
				v, _ := f.GetInt("matrix-size")
				overrides.MatrixSize = &v
			}
			presetName, _ := f.GetString("preset")
			params, err := presets.ResolveParams(presetName, overrides)
			if err != nil {
				return err
			}

			format, _ := f.GetString("format")
			maxWidth, _ := f.GetInt("max-width")
			maxHeight, _ := f.GetInt("max-height")
			maxPixels, _ := f.GetInt("max-pixels")
			opts := imageprocessing.ProcessingOptions{
				MaxWidth:  maxWidth,
				MaxHeight: maxHeight,
				MaxPixels: maxPixels,
				Format:    imageprocessing.ParseFormat(format),
			}

			var in io.Reader
			switch inPath {
			case "-":
				in = cmd.InOrStdin()
			default:
				file, err := os.Open(inPath)
				if err != nil {
					return fmt.Errorf("failed to open file: %w", err)
				}
				defer file.Close()
				in = file
			}

			out, err := imageprocessing.Process(in, params, opts)
			if err != nil {
				return err
			}
			for _, w := range out.Result.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w.String())
			}
			logging.InfoWithComponent(logging.ComponentCLI, "Dithered image",
				"algorithm", out.Result.Params.Algorithm.String(),
				"applied", out.Result.Applied,
				"width", out.Result.Raster.Width,
				"height", out.Result.Raster.Height,
				"duration", out.Duration)

			if outPath == "" {
				outPath = imageprocessing.ExportFilename
			}
			if outPath == "-" {
				_, err := cmd.OutOrStdout().Write(out.PNG)
				return err
			}
			if err := os.WriteFile(outPath, out.PNG, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			return nil
		},
	}

	pf := cmd.Flags()
	pf.StringP("in", "i", "", "input image path, - for stdin")
	pf.StringP("out", "o", "", "output PNG path, - for stdout (default "+imageprocessing.ExportFilename+")")
	pf.StringP("algorithm", "a", "", "algorithm name, overrides the preset")
	pf.Int("threshold", 128, "Bayer threshold (0-255)")
	pf.Float64("factor", 1.0, "error diffusion factor (0.5-2.0)")
	pf.Int("matrix-size", 4, "Bayer matrix size (2 or 4)")
	pf.StringP("preset", "p", "", "named preset")
	pf.String("presets-file", os.Getenv("PRESETS_FILE"), "YAML file with extra presets")
	pf.StringP("format", "f", "rgba", "output format (rgba|mono)")
	pf.Int("max-width", 0, "scale down to at most this width")
	pf.Int("max-height", 0, "scale down to at most this height")
	pf.Int("max-pixels", imageprocessing.DefaultProcessingOptions().MaxPixels, "reject larger source images, 0 disables")
	return cmd
}
