package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/westphae/gopond/calibrate"
	"github.com/westphae/gopond/report"
)

func newCalibrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate <distance,height file>",
		Short: "Fit the distance to height gauge from reference measurements",
		Args:  cobra.ExactArgs(1),
		RunE:  runCalibrate,
	}
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	series, err := report.ReadSeriesFile(args[0], "")
	if err != nil {
		return err
	}

	pts := make([]calibrate.Point, len(series))
	for i, p := range series {
		pts[i] = calibrate.Point{Distance: p.T, Height: p.V}
	}
	g, rms, err := calibrate.Fit(pts)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(map[string]calibrate.Gauge{"gauge": g})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "# %s, rms residual %.3f cm over %d points\n", g, rms, len(pts))
	w.Write(out)
	return nil
}
