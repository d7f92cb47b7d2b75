package cmd

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/custodian-sh/custodian/internal/observability"
	"github.com/custodian-sh/custodian/internal/reports"
)

// newReportCmd creates the report command: it prints the most recently
// persisted ethics report as indented JSON.
func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the latest persisted ethics report.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := reports.NewFileStore(appCfg.Reports.Dir, observability.GetLogger())
			if err != nil {
				return err
			}
			report, err := store.Latest()
			if err != nil {
				return err
			}

			data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}
			cmd.Println(string(data))
			return nil
		},
	}
}
