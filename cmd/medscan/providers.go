package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ktanaka/medscan/internal/config"
	"github.com/ktanaka/medscan/internal/providers"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers",
	Long: `List the OCR and NER providers available with the current
configuration. Providers without a resolved API key are omitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		registry := providers.NewRegistryFromConfig(cfg.ToProviderRegistryConfig(), logger)

		fmt.Println("OCR providers:")
		for _, name := range registry.ListOCR() {
			marker := " "
			if name == cfg.Defaults.OCRProvider {
				marker = "*"
			}
			fmt.Printf("  %s %s\n", marker, name)
		}

		fmt.Println("NER providers:")
		for _, name := range registry.ListNER() {
			marker := " "
			if name == cfg.Defaults.NERProvider {
				marker = "*"
			}
			fmt.Printf("  %s %s\n", marker, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
