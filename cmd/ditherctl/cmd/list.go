package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rmitchellscott/ditherbox/internal/config"
	"github.com/rmitchellscott/ditherbox/internal/dither"
)

// NewAlgorithmsCmd lists the supported algorithms
func NewAlgorithmsCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "algorithms",
		Short: "list supported algorithms",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFAMILY\tDETAIL")
			for _, a := range dither.Algorithms() {
				if k, ok := dither.KernelFor(a); ok {
					fmt.Fprintf(tw, "%s\terror-diffusion\t%d taps, weight %.3f\n", a, len(k.Taps()), k.Sum())
					continue
				}
				fmt.Fprintf(tw, "%s\tordered\tmatrix sizes %v\n", a, dither.SupportedMatrixSizes)
			}
			return tw.Flush()
		},
	}
	return cmd
}

// NewPresetsCmd lists built-in and file presets
func NewPresetsCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "list named presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			presetsFile, _ := cmd.Flags().GetString("presets-file")
			presets, err := config.LoadPresets(presetsFile)
			if err != nil {
				return err
			}
			switch format, _ := cmd.Flags().GetString("format"); format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(presets.List())
			default:
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tALGORITHM\tTHRESHOLD\tFACTOR\tMATRIX\tDESCRIPTION")
				for _, p := range presets.List() {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%d\t%s\n", p.Name, p.Params.Algorithm,
						p.Params.Threshold, p.Params.ErrorDiffusionFactor, p.Params.MatrixSize, p.Description)
				}
				return tw.Flush()
			}
		},
	}
	pf := cmd.Flags()
	pf.String("presets-file", os.Getenv("PRESETS_FILE"), "YAML file with extra presets")
	pf.StringP("format", "f", "text", "output format (text|json)")
	return cmd
}
