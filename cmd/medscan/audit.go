package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ktanaka/medscan/internal/audit"
	"github.com/ktanaka/medscan/internal/home"
)

var auditDocumentID string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the processing audit log",
	Long: `Print audit log entries in append order. Each entry records one
stage attempt (OCR, NER, SINK) for a document.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}

		entries, err := audit.Read(h.AuditLogPath())
		if err != nil {
			return err
		}

		for _, e := range entries {
			if auditDocumentID != "" && e.DocumentID != auditDocumentID {
				continue
			}
			fmt.Printf("%s  %-16s %-4s %-6s %s\n",
				e.Timestamp.Format("2006-01-02T15:04:05Z"),
				e.DocumentID, e.Stage, e.Status, e.Detail)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditDocumentID, "document", "", "only show entries for this document ID")
	rootCmd.AddCommand(auditCmd)
}
