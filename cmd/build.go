package cmd

import (
	"fmt"
	"time"

	"github.com/conneroisu/sitepipe/internal/services"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build the site once without serving",
	Long: `Copy HTML pages, transform stylesheets and optimize images into the
output directories, one stage after another, then exit.

Files that fail are reported and skipped; the remaining files are still
written.

Examples:
  sitepipe build                # Build into dist/
  sitepipe build --clean        # Remove the output directories first
  sitepipe build --strict       # Exit non-zero when any file failed`,
	RunE: runBuild,
}

var (
	buildClean  bool
	buildStrict bool
)

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "Remove output directories before building")
	buildCmd.Flags().BoolVar(&buildStrict, "strict", false, "Fail when any file could not be processed")
}

func runBuild(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	svc := services.NewBuildService(rt.config, rt.logger, rt.reporter)
	result, err := svc.Build(cmd.Context(), services.BuildOptions{Clean: buildClean})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, stage := range result.Stages {
		fmt.Fprintf(out, "%-8s %3d written  %3d unchanged  %3d failed  %s\n",
			stage.Stage, stage.Written, stage.Skipped, stage.Failed, stage.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(out, "Built %d files in %s\n", result.Written, result.Duration.Round(time.Millisecond))

	if buildStrict && !result.Success {
		return fmt.Errorf("%d files failed", result.Failed)
	}
	return nil
}
