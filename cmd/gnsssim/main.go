// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	m "github.com/mkhts/gnsssim"
	"github.com/mkhts/gnsssim/internal/logging"
	"github.com/mkhts/gnsssim/internal/observability"
)

func main() {
	cobra.CheckErr(NewCmd().ExecuteContext(context.Background()))
}

func NewCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "gnsssim [command] [flags] [args]",
		Short:         "gnsssim simulates a stand-alone GNSS receiver over a motion profile",
		SilenceUsage:  true,
		SilenceErrors: false,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.PersistentFlags().String("log-level", "", "`<Level>` of log output: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().String("log-format", "", "`<Format>` of log output: text or json (overrides config)")
	rootCmd.PersistentFlags().String("log-file", "", "`<Path>` of a rotated log file. If not specified, log to stderr.")

	runCmd := &cobra.Command{
		Use:   "run [flags] <profile.csv>",
		Short: "Run the simulation over a motion profile",
		RunE:  doRun,
	}
	runCmd.Args = cobra.ExactArgs(1)
	runCmd.Flags().StringP("config", "c", "", "`<Path>` of a YAML configuration file. Defaults are used for missing keys.")
	runCmd.Flags().StringP("out", "o", "", "`<Prefix>` of output files <prefix>_fix.csv, <prefix>_err.csv, <prefix>_clk.csv. If not specified, fixes are written to stdout.")
	runCmd.Flags().Uint64("seed", 0, "`<Seed>` of the random generator (overrides config when set)")
	runCmd.Flags().String("metrics-file", "", "`<Path>` of a Prometheus textfile written at the end of the run")
	runCmd.Flags().Bool("trace", false, "Export trace spans of the run to stderr")

	def := m.NewProfileOpt()
	profCmd := &cobra.Command{
		Use:   "profile [flags]",
		Short: "Generate a constant-velocity motion profile",
		RunE:  doProfile,
	}
	profCmd.Flags().Var(&def.Start, "start", "Start latitude/longitude/ellipsoidal height. Enclose in quotes like --start \"35.73101206 139.7396917 80.33\"")
	profCmd.Flags().Float64("vn", 0, "North velocity [m/s]")
	profCmd.Flags().Float64("ve", 0, "East velocity [m/s]")
	profCmd.Flags().Float64("vd", 0, "Down velocity [m/s]")
	profCmd.Flags().Float64("yaw", 0, "Heading [deg]")
	profCmd.Flags().Float64("duration", def.Duration, "Duration [s]")
	profCmd.Flags().Float64("step", def.Step, "Sample interval [s]")
	profCmd.Flags().StringP("out", "o", "", "Output profile path. If not specified, output to stdout.")

	rootCmd.AddCommand(
		runCmd,
		profCmd,
	)
	return rootCmd
}

// Settings of a run. The simulator keys are at the top level of the file.
type appConfig struct {
	m.Config    `yaml:",inline"`
	Log         logging.Config              `yaml:"log"`
	Tracing     observability.TracingConfig `yaml:"tracing"`
	MetricsFile string                      `yaml:"metrics_file"`
}

// Load the configuration file on top of the defaults
func loadConfig(fn string) (*appConfig, error) {
	app := &appConfig{
		Config: *m.NewConfig(),
		Log:    logging.Config{Level: "info", Format: "text", MaxSize: 10, MaxBackups: 3},
	}
	if len(fn) == 0 {
		return app, nil
	}

	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := m.DecodeConfig(f, app); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return app, nil
}

// Apply the command line overrides
func applyFlags(cmd *cobra.Command, app *appConfig) error {
	flags := cmd.Flags()
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"log-level", &app.Log.Level},
		{"log-format", &app.Log.Format},
		{"log-file", &app.Log.Filename},
	} {
		v, err := flags.GetString(f.name)
		if err != nil {
			return err
		}
		if len(v) > 0 {
			*f.dst = v
		}
	}
	if flags.Changed("seed") {
		seed, err := flags.GetUint64("seed")
		if err != nil {
			return err
		}
		app.Seed = seed
	}
	if flags.Changed("metrics-file") {
		fn, err := flags.GetString("metrics-file")
		if err != nil {
			return err
		}
		app.MetricsFile = fn
	}
	if flags.Changed("trace") {
		on, err := flags.GetBool("trace")
		if err != nil {
			return err
		}
		app.Tracing.Enabled = on
	}
	return nil
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfgFn, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	app, err := loadConfig(cfgFn)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, app); err != nil {
		return err
	}
	if err := app.Validate(); err != nil {
		return err
	}

	log, closer := logging.New(app.Log)
	defer closer.Close()

	shutdown, err := observability.InitTracing(ctx, app.Tracing, log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	// Load input file
	prof, err := m.ReadProfileFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}
	log.Info(ctx, "profile loaded", logging.String("file", args[0]), logging.Int("samples", len(prof)))

	reg := prometheus.NewRegistry()
	collector, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	sim, err := m.NewSimulator(&app.Config, m.WithLogger(log), m.WithRecorder(collector))
	if err != nil {
		return err
	}
	res, err := sim.Run(ctx, prof)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	// Output results
	prefix, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	if err := writeOutputs(prefix, res, cmd.OutOrStdout()); err != nil {
		return err
	}
	logSummary(ctx, log, res)

	if len(app.MetricsFile) > 0 {
		if err := collector.WriteTextfile(app.MetricsFile); err != nil {
			return err
		}
	}
	return nil
}

// Write the output files. Without a prefix only the fixes are written, to stdout.
func writeOutputs(prefix string, res *m.Result, stdout io.Writer) error {
	if len(prefix) == 0 {
		return m.WriteFixes(stdout, res.Fixes)
	}

	outputs := []struct {
		suffix string
		write  func(io.Writer) error
	}{
		{"_fix.csv", func(w io.Writer) error { return m.WriteFixes(w, res.Fixes) }},
		{"_err.csv", func(w io.Writer) error { return m.WriteErrors(w, res.Errors) }},
		{"_clk.csv", func(w io.Writer) error { return m.WriteClocks(w, res.Clocks) }},
	}
	for _, o := range outputs {
		if err := writeFile(prefix+o.suffix, o.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(fn string, write func(io.Writer) error) error {
	f, err := os.Create(fn)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", fn, err)
	}
	return f.Close()
}

// Log RMS position and velocity errors of the run
func logSummary(ctx context.Context, log logging.Logger, res *m.Result) {
	n := len(res.Errors)
	if n == 0 {
		log.Warn(ctx, "no fix", logging.Int("skipped", len(res.Skipped)))
		return
	}
	var sh, sv, svel float64
	for _, e := range res.Errors {
		sh += m.SQ(e.Horizontal())
		sv += m.SQ(e.Pos.D)
		svel += m.SQ(e.Vel.N) + m.SQ(e.Vel.E) + m.SQ(e.Vel.D)
	}
	log.Info(ctx, "summary",
		logging.Int("fixes", n),
		logging.Int("skipped", len(res.Skipped)),
		logging.Float64("rms_horizontal", math.Sqrt(sh/float64(n))),
		logging.Float64("rms_vertical", math.Sqrt(sv/float64(n))),
		logging.Float64("rms_velocity", math.Sqrt(svel/float64(n))),
	)
}

func doProfile(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	opt := m.NewProfileOpt()

	// Set values from the flags
	if flags.Changed("start") {
		if err := opt.Start.Set(flags.Lookup("start").Value.String()); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"vn", &opt.Vel.N},
		{"ve", &opt.Vel.E},
		{"vd", &opt.Vel.D},
		{"yaw", &opt.Att.Yaw},
		{"duration", &opt.Duration},
		{"step", &opt.Step},
	} {
		v, err := flags.GetFloat64(f.name)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	opt.Att.Yaw = m.ToRad(opt.Att.Yaw)

	prof, err := m.GenerateProfile(opt)
	if err != nil {
		return err
	}

	fn, err := flags.GetString("out")
	if err != nil {
		return err
	}
	if len(fn) == 0 {
		return m.WriteProfile(cmd.OutOrStdout(), prof)
	}
	return writeFile(fn, func(w io.Writer) error { return m.WriteProfile(w, prof) })
}
