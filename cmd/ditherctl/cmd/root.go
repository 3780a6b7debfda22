package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmitchellscott/ditherbox/internal/logging"
	"github.com/rmitchellscott/ditherbox/internal/version"
)

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ditherctl",
		Short:         "dither images from the command line",
		Long:          "ditherctl runs the ditherbox pipeline on local files or stdin and writes a PNG.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			// logs go to stderr so stdout can carry image bytes
			logging.Setup(cmd.ErrOrStderr(), logging.Options{
				Level:  logging.ParseLevel(logLevel),
				Format: logFormat,
			})
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd.OutOrStdout(), cmd, 0)
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewDitherCmd(ctx),
		NewAlgorithmsCmd(ctx),
		NewPresetsCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "WARN", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func printCommandTree(w io.Writer, cmd *cobra.Command, indent int) {
	fmt.Fprintln(w, strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(w, subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "version and git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", version.Name, version.String(), gitsha)
		},
	}
	return cmd
}
