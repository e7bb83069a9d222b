package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forPelevin/tubebite/internal/pipeline"
	"github.com/forPelevin/tubebite/internal/types"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <url|file>",
		Short: "Generate clips from a URL or a local video into an output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return generate(cmd, args[0])
		},
	}

	cmd.Flags().String("out", "out", "Output directory")
	cmd.Flags().Int("clips", 3, "Number of clips (1-10)")
	cmd.Flags().String("duration", "auto", "Clip duration: auto or seconds (5-120)")
	cmd.Flags().String("aspect", string(types.Ratio9x16), "Aspect ratio: 9:16, 1:1, 4:5 or 16:9")
	cmd.Flags().Bool("subtitles", true, "Burn in subtitles")
	cmd.Flags().String("template", "", "Caption template id")
	return cmd
}

func generate(cmd *cobra.Command, input string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	outDir, _ := cmd.Flags().GetString("out")
	clipsN, _ := cmd.Flags().GetInt("clips")
	subs, _ := cmd.Flags().GetBool("subtitles")
	tmpl, _ := cmd.Flags().GetString("template")
	durFlag, _ := cmd.Flags().GetString("duration")
	aspectFlag, _ := cmd.Flags().GetString("aspect")

	dur, err := types.ParseClipDuration(durFlag)
	if err != nil {
		return err
	}
	aspect, err := types.ParseAspectRatio(aspectFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	res, err := pipeline.RunLocal(ctx, cfg, log, pipeline.LocalOptions{
		Source:      input,
		OutDir:      outDir,
		ClipCount:   clipsN,
		Duration:    dur,
		AspectRatio: aspect,
		Subtitles:   subs,
		Template:    tmpl,
		Progress: func(v types.RunView) {
			fmt.Fprintf(out, "[%3d%%] %s\n", v.Percent, v.Stage)
		},
	})
	if res.ManifestPath != "" {
		fmt.Fprintf(out, "%d clip(s) written, manifest: %s\n", len(res.Manifest.Clips), res.ManifestPath)
	}
	return err
}
