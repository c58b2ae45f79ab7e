package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/westphae/gopond/errcache"
)

func newErrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "List stored sensor link failures",
		Args:  cobra.NoArgs,
		RunE:  runErrors,
	}
	cmd.Flags().String("controller-cache", "", "Directory of the sensor error cache (default from config)")
	cmd.Flags().String("near", "", "Only show the failure nearest to this RFC 3339 time")
	return cmd
}

func runErrors(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir := cfg.Output.ErrorCache
	if cmd.Flags().Changed("controller-cache") {
		dir, _ = cmd.Flags().GetString("controller-cache")
	}
	if dir == "" {
		return fmt.Errorf("no error cache configured")
	}

	cache, err := errcache.Open(dir)
	if err != nil {
		return err
	}
	defer cache.Close()

	var reports []errcache.Report
	if near, _ := cmd.Flags().GetString("near"); near != "" {
		t, err := time.Parse(time.RFC3339, near)
		if err != nil {
			return fmt.Errorf("bad --near time: %s", err)
		}
		r, ok, err := cache.Nearest(t)
		if err != nil {
			return err
		}
		if ok {
			reports = append(reports, r)
		}
	} else if reports, err = cache.All(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, r := range reports {
		fmt.Fprintf(w, "%d#%s#%s", r.ID, r.Time.Format(time.DateTime), r.Message)
		if len(r.Lines) > 0 {
			fmt.Fprintf(w, ";%s", strings.Join(r.Lines, ";"))
		}
		fmt.Fprintln(w)
	}
	return nil
}
