package main

import (
	"context"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/westphae/gopond/sensors/serial"
)

func newPumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pump <percent>",
		Short: "Set the pump speed on the sensor controller",
		Args:  cobra.ExactArgs(1),
		RunE:  runPump,
	}
	cmd.Flags().String("port", "", "Serial port of the sensor controller (default from config)")
	return cmd
}

func runPump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Link.Port, _ = cmd.Flags().GetString("port")
	}
	percent, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}

	c, err := serial.Open(cfg.Link.Port, cfg.Link.Baud)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Link.ReadTimeout)
	defer cancel()
	if err := c.SetPump(ctx, percent); err != nil {
		return err
	}
	log.WithField("percent", percent).Info("pump updated")
	return nil
}
