package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fhuszti/picsee-preprocessor/internal/config"
	"github.com/fhuszti/picsee-preprocessor/internal/executor"
	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/preprocess"
)

func main() {
	logger.InitWithWriter(os.Stderr)
	if err := newConvertCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newConvertCmd() *cobra.Command {
	var (
		outDir      string
		maxWidth    int
		quality     float64
		timeoutSec  int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "convert [files...]",
		Short: "Resize images and re-encode them as WebP",
		Long: `Convert runs every file through the image preprocessor and writes
<name>.webp into the output directory. Flags override the POOL_CONCURRENCY,
MAX_WIDTH, QUALITY and TASK_TIMEOUT environment settings.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadPreprocess()
			if err != nil {
				return err
			}
			cfg := settings.PoolConfig()
			if cmd.Flags().Changed("max-width") {
				cfg.MaxWidth = maxWidth
			}
			if cmd.Flags().Changed("quality") {
				cfg.Quality = quality
			}
			if cmd.Flags().Changed("timeout") {
				cfg.TaskTimeout = time.Duration(timeoutSec) * time.Second
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Concurrency = concurrency
			}

			factory, err := executor.NewFactory(settings.Executor, settings.TransformerBin)
			if err != nil {
				return err
			}
			pool, err := preprocess.New(cfg, factory)
			if err != nil {
				return err
			}
			defer pool.Terminate()

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			sum := convertFiles(cmd.Context(), pool, args, outDir, cmd.OutOrStdout())
			if sum.Failed > 0 {
				err := fmt.Errorf("%d of %d file(s) failed", sum.Failed, len(args))
				cmd.PrintErrln("❌ ", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().IntVar(&maxWidth, "max-width", preprocess.DefaultMaxWidth, "maximum output width in pixels")
	cmd.Flags().Float64VarP(&quality, "quality", "q", preprocess.DefaultQuality, "WebP quality in (0, 1]")
	cmd.Flags().IntVarP(&timeoutSec, "timeout", "t", int(preprocess.DefaultTaskTimeout/time.Second), "per-image timeout in seconds")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "number of execution contexts (0 derives it from the CPU count)")

	cmd.SetContext(context.Background())
	return cmd
}
