package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ktanaka/medscan/internal/audit"
	"github.com/ktanaka/medscan/internal/config"
	"github.com/ktanaka/medscan/internal/home"
	"github.com/ktanaka/medscan/internal/pipeline"
	"github.com/ktanaka/medscan/internal/providers"
	"github.com/ktanaka/medscan/internal/sink"
)

var (
	processFormat      string
	processOCRProvider string
	processNERProvider string
	processOutputDir   string
	processTimeout     time.Duration
	processWorkers     int
)

var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Process documents through the extraction pipeline",
	Long: `Process one or more documents through the full pipeline:
rasterize, OCR, entity recognition, and structured output.

Accepted inputs are PDF files and single page images (.png, .jpg, .jpeg).
Multiple documents process concurrently and independently; one failing
document does not stop the others.

Examples:
  medscan process scan.pdf
  medscan process scan.pdf --format fhir
  medscan process a.pdf b.pdf --ner-provider llm
  medscan process scan.pdf --output-dir ./results`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		format, err := sink.ParseFormat(processFormat)
		if err != nil {
			return err
		}

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		h, err := newHome()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		registry := providers.NewRegistryFromConfig(cfg.ToProviderRegistryConfig(), logger)

		// Hot-reload provider credentials and limits on config change.
		mgr.OnChange(func(cfg *config.Config) {
			registry.Reload(cfg.ToProviderRegistryConfig())
		})
		mgr.WatchConfig()

		ocrName := processOCRProvider
		if ocrName == "" {
			ocrName = cfg.Defaults.OCRProvider
		}
		nerName := processNERProvider
		if nerName == "" {
			nerName = cfg.Defaults.NERProvider
		}
		if !registry.HasOCR(ocrName) {
			return fmt.Errorf("OCR provider %q is not configured or not enabled", ocrName)
		}
		if !registry.HasNER(nerName) {
			return fmt.Errorf("NER provider %q is not configured or not enabled", nerName)
		}

		timeout := processTimeout
		if timeout <= 0 {
			timeout = cfg.Defaults.DocumentTimeout
		}
		workers := processWorkers
		if workers <= 0 {
			workers = cfg.Defaults.MaxWorkers
		}

		log := audit.Open(h.AuditLogPath())
		snk := sink.New(h, log, logger)
		runner := pipeline.New(registry, snk, log, logger, pipeline.Options{
			OCRProvider: ocrName,
			NERProvider: nerName,
			Format:      format,
			Timeout:     timeout,
			MaxWorkers:  workers,
		})

		results := runner.ProcessAll(ctx, args)

		failed := 0
		for _, res := range results {
			if res.Err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "FAILED %s: %v\n", res.Path, res.Err)
				continue
			}
			fmt.Printf("%s -> %s\n", res.Path, res.OutputPath)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed", failed, len(results))
		}
		return nil
	},
}

// newHome resolves the home directory, honoring --output-dir as an
// alternate root for this invocation.
func newHome() (*home.Dir, error) {
	if processOutputDir != "" {
		return home.New(processOutputDir)
	}
	return home.New(homeDir)
}

func init() {
	processCmd.Flags().StringVarP(&processFormat, "format", "f", "json", "output format: json or fhir")
	processCmd.Flags().StringVar(&processOCRProvider, "provider", "", "OCR provider name (default from config)")
	processCmd.Flags().StringVar(&processNERProvider, "ner-provider", "", "NER provider name (default from config)")
	processCmd.Flags().StringVar(&processOutputDir, "output-dir", "", "write outputs under this directory instead of the home")
	processCmd.Flags().DurationVar(&processTimeout, "timeout", 0, "per-document timeout (default from config)")
	processCmd.Flags().IntVar(&processWorkers, "workers", 0, "max concurrent documents (default from config)")

	rootCmd.AddCommand(processCmd)
}
