package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/westphae/gopond/report"
)

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Compare a run's output against a control series",
		Args:  cobra.NoArgs,
		RunE:  runSummary,
	}
	cmd.Flags().StringP("output", "o", "out.csv", "Output file of a run")
	cmd.Flags().String("column", "output", "Column of the output file to compare")
	cmd.Flags().StringP("control", "c", "", "Control \"seconds,height\" file")
	cmd.MarkFlagRequired("control")
	return cmd
}

func runSummary(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	outFn, _ := cmd.Flags().GetString("output")
	col, _ := cmd.Flags().GetString("column")
	controlFn, _ := cmd.Flags().GetString("control")

	got, err := report.ReadSeriesFile(outFn, col)
	if err != nil {
		return err
	}
	control, err := report.ReadSeriesFile(controlFn, "")
	if err != nil {
		return err
	}

	s := report.Summarize(report.Residuals(got, control))
	if s.N == 0 {
		return fmt.Errorf("no overlap between %s and %s", outFn, controlFn)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s vs %s: %s\n", col, controlFn, s)
	return nil
}
