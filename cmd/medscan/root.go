package main

import (
	"github.com/spf13/cobra"

	"github.com/ktanaka/medscan/version"
)

var (
	cfgFile string
	homeDir string
)

var rootCmd = &cobra.Command{
	Use:   "medscan",
	Short: "Medical document extraction pipeline",
	Long: `Medscan extracts structured medical data from scanned documents.

The pipeline includes:
  - Page rasterization for PDF and image inputs
  - Vendor-pluggable OCR with confidence filtering
  - Medical entity recognition (diagnoses, medications, tests)
  - Canonical JSON or FHIR bundle output
  - An append-only audit log of every processing stage`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.medscan/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "medscan home directory (default: ~/.medscan)",
	)

	rootCmd.AddCommand(versionCmd)
}
