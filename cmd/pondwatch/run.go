package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/westphae/gopond/clock"
	"github.com/westphae/gopond/config"
	"github.com/westphae/gopond/errcache"
	"github.com/westphae/gopond/kalman"
	"github.com/westphae/gopond/monitor"
	"github.com/westphae/gopond/pond"
	"github.com/westphae/gopond/rain"
	"github.com/westphae/gopond/report"
	"github.com/westphae/gopond/sensors"
	"github.com/westphae/gopond/sensors/headless"
	"github.com/westphae/gopond/sensors/serial"
	"github.com/westphae/gopond/sensors/srf02"
)

func newRunCmd() *cobra.Command {
	const (
		defaultMode      = ""
		modeUsage        = "Sensor link: headless, serial or srf02"
		defaultData      = ""
		dataUsage        = "Recorded \"seconds,reading\" file replayed in headless mode"
		defaultRain      = ""
		rainUsage        = "Rain prediction file, \"seconds,mm\""
		defaultConstRain = 0.0
		constRainUsage   = "Constant rain in mm, used without a rain file"
		defaultTime      = 0
		timeUsage        = "Seconds to run for, 0 runs forever when paced"
		defaultOut       = ""
		outUsage         = "Output file"
		defaultKalman    = ""
		kalmanUsage      = "Filter bank output file"
		defaultName      = ""
		nameUsage        = "Run name, prefixed to the output files"
		defaultCache     = ""
		cacheUsage       = "Directory of the sensor error cache"
		defaultFailAt    = 0
		failAtUsage      = "Headless only: lose the link at this many seconds"
		defaultPort      = ""
		portUsage        = "Serial port of the sensor controller"
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitor",
		Args:  cobra.NoArgs,
		RunE:  runMonitor,
	}
	f := cmd.Flags()
	f.StringP("mode", "m", defaultMode, modeUsage)
	f.StringP("data", "d", defaultData, dataUsage)
	f.StringP("rain", "r", defaultRain, rainUsage)
	f.Float64("constant-rain", defaultConstRain, constRainUsage)
	f.IntP("time", "t", defaultTime, timeUsage)
	f.StringP("output", "o", defaultOut, outUsage)
	f.StringP("kalman-bank", "k", defaultKalman, kalmanUsage)
	f.StringP("name", "n", defaultName, nameUsage)
	f.String("controller-cache", defaultCache, cacheUsage)
	f.Int("fail-at", defaultFailAt, failAtUsage)
	f.String("port", defaultPort, portUsage)
	return cmd
}

// loadConfig reads --config and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	fn, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(fn)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if l, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(l)
	}
	return cfg, nil
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("mode") {
		cfg.Link.Mode, _ = f.GetString("mode")
	}
	if f.Changed("data") {
		cfg.Link.Data, _ = f.GetString("data")
	}
	if f.Changed("port") {
		cfg.Link.Port, _ = f.GetString("port")
	}
	if f.Changed("fail-at") {
		s, _ := f.GetInt("fail-at")
		cfg.Link.FailAt = time.Duration(s) * time.Second
	}
	if f.Changed("rain") {
		cfg.Rain.File, _ = f.GetString("rain")
	}
	if f.Changed("constant-rain") {
		cfg.Rain.Constant, _ = f.GetFloat64("constant-rain")
		cfg.Rain.File = ""
	}
	if f.Changed("time") {
		s, _ := f.GetInt("time")
		cfg.Duration = time.Duration(s) * time.Second
	}
	if f.Changed("output") {
		cfg.Output.File, _ = f.GetString("output")
	}
	if f.Changed("kalman-bank") {
		cfg.Output.KalmanBank, _ = f.GetString("kalman-bank")
	}
	if f.Changed("controller-cache") {
		cfg.Output.ErrorCache, _ = f.GetString("controller-cache")
	}
	if name, _ := f.GetString("name"); name != "" {
		cfg.Output.File = prefixed(name, cfg.Output.File)
		if cfg.Output.KalmanBank != "" {
			cfg.Output.KalmanBank = prefixed(name, cfg.Output.KalmanBank)
		}
	}
}

func prefixed(name, fn string) string {
	dir, base := filepath.Split(fn)
	return filepath.Join(dir, name+"-"+base)
}

func openLink(cfg *config.Config, clk *clock.Clock) (sensors.Link, func(), error) {
	switch strings.ToLower(cfg.Link.Mode) {
	case "serial":
		c, err := serial.Open(cfg.Link.Port, cfg.Link.Baud)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	case "srf02":
		if err := embd.InitI2C(); err != nil {
			return nil, nil, fmt.Errorf("couldn't start I2C: %s", err)
		}
		srf, err := srf02.NewSRF02(embd.NewI2CBus(cfg.Link.I2CBus), srf02.Address)
		if err != nil {
			embd.CloseI2C()
			return nil, nil, err
		}
		return srf, func() { embd.CloseI2C() }, nil
	default:
		rp, err := headless.Load(cfg.Link.Data, clk.Elapsed)
		if err != nil {
			return nil, nil, err
		}
		rp.FailAt = cfg.Link.FailAt
		return rp, func() {}, nil
	}
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	faults, _ := cfg.KalmanFaults()

	var rs rain.Source = rain.Const(cfg.Rain.Constant)
	if cfg.Rain.File != "" {
		if rs, err = rain.LoadFile(cfg.Rain.File); err != nil {
			return err
		}
	}

	clk, err := clock.New(cfg.Tick)
	if err != nil {
		return err
	}
	model := pond.NewModel(cfg.PondParams(), rs)

	bank := kalman.NewBank(kalman.NewEstimator(
		cfg.Filter.InitialState, cfg.Filter.InitialVariance, cfg.Filter.ProcessNoise, clk.TickSeconds()))
	bank.SymmetricModelCheck = cfg.Filter.SymmetricModelCheck
	bank.AddAll(faults...)

	link, closeLink, err := openLink(cfg, clk)
	if err != nil {
		return err
	}
	defer closeLink()

	sink, err := report.NewCSVSink(cfg.Output.File, cfg.Output.KalmanBank)
	if err != nil {
		return err
	}
	defer sink.Close()

	deltas := report.NewDeltaWindow(report.DefaultDeltaWindow)

	eng := monitor.NewEngine(clk, model, bank, monitor.NewArbiter(cfg.SettlingDelay), link)
	eng.Gauge = cfg.Gauge
	eng.Sink = report.Tee(sink, deltas)
	eng.ReadTimeout = cfg.Link.ReadTimeout

	if cfg.Output.ErrorCache != "" {
		cache, err := errcache.Open(cfg.Output.ErrorCache)
		if err != nil {
			return err
		}
		defer cache.Close()
		eng.Errors = cache
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.WithFields(log.Fields{
		"mode":    cfg.Link.Mode,
		"tick":    cfg.Tick,
		"faults":  len(faults),
		"orifice": cfg.Pond.Orifice,
	}).Info("starting pond monitor")

	var ticks int
	if strings.ToLower(cfg.Link.Mode) == "headless" {
		ticks = eng.Run(ctx, cfg.Duration)
	} else {
		ticks = runPaced(ctx, eng, cfg.Tick, cfg.Duration)
	}

	for i, s := range deltas.Summaries() {
		name := "nominal"
		if f := bank.Member(i).Fault; f != nil {
			name = f.String()
		}
		log.WithField("filter", name).Info(s)
	}
	log.WithFields(log.Fields{
		"ticks": ticks,
		"mode":  eng.Arbiter.Mode(),
		"reads": eng.Reads(),
	}).Info("monitor stopped")
	return nil
}

// runPaced ticks once per wall-clock tick until the run time reaches until
// (forever if until is 0) or ctx is done. It returns the number of ticks run.
func runPaced(ctx context.Context, eng *monitor.Engine, tick, until time.Duration) (n int) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for until == 0 || eng.Clock.Elapsed() < until {
		eng.Tick(ctx)
		n++
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	return
}
