package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cncworks/spindletune"
	"github.com/cncworks/spindletune/config"
	"github.com/cncworks/spindletune/datalog"
	"github.com/cncworks/spindletune/hal"
	"github.com/cncworks/spindletune/monitor"
	"github.com/cncworks/spindletune/procedure"
	"github.com/cncworks/spindletune/profile"
)

var (
	flagMock    bool
	flagHalCmd  string
	flagConfig  string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "spindle-tune",
		Short:         "Spindle PID tuning companion for LinuxCNC",
		Version:       spindletune.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flagMock, "mock", false, "use the simulated spindle instead of halcmd")
	root.PersistentFlags().StringVar(&flagHalCmd, "halcmd", "halcmd", "halcmd invocation, may include a wrapper like 'sudo halcmd'")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "optional TOML settings file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(monitorCmd(), testCmd(), paramsCmd(), exportCmd(), diagnoseCmd(), iniCmd(), profileCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newBackend(logger *slog.Logger) (hal.Interface, error) {
	override, err := config.LoadOverride(flagConfig)
	if err != nil {
		return nil, err
	}
	if override.HalCmd != "" && flagHalCmd == "halcmd" {
		flagHalCmd = override.HalCmd
	}
	if override.Mock {
		flagMock = true
	}

	if flagMock {
		return hal.NewMock(logger), nil
	}
	return hal.NewLive(flagHalCmd, logger)
}

func monitorCmd() *cobra.Command {
	var duration time.Duration
	var csvPath string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll the spindle signal chain and print live values",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			backend, err := newBackend(logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			sink := datalog.New(spindletune.HistoryDuration, spindletune.UpdateInterval, logger)
			if csvPath != "" {
				sink.SetRecording(true)
			}
			poller := monitor.New(backend, sink, spindletune.UpdateInterval, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			go poller.Run(ctx)

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					if csvPath != "" && !sink.ExportCSV(csvPath, map[string]string{
						"session": sink.Session().String(),
					}) {
						return fmt.Errorf("export to %q failed", csvPath)
					}
					return nil
				case <-ticker.C:
				}

				snap := poller.Latest()
				if snap == nil {
					fmt.Printf("[%s] waiting for data...\n", backend.State())
					continue
				}
				fmt.Printf("[%s] cmd %7.1f  fb %7.1f  err %6.1f  errI %6.1f  at-speed %v\n",
					snap.State,
					snap.Values["cmd_raw"], snap.Values["feedback"],
					snap.Values["error"], snap.Values["errorI"],
					snap.Values["at_speed"] > 0.5)
			}
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = until interrupted)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "record and export to this CSV file on exit")
	return cmd
}

func testCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "test [procedure]",
		Short:     "Run a tuning test procedure",
		ValidArgs: procedure.Names(),
		Args:      cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Println("Available procedures:")
				for _, name := range procedure.Names() {
					fmt.Println("  " + name)
				}
				return nil
			}

			proc, ok := procedure.ByName()[args[0]]
			if !ok {
				return fmt.Errorf("unknown procedure %q", args[0])
			}

			logger := newLogger()
			backend, err := newBackend(logger)
			if err != nil {
				return err
			}
			defer backend.Close()
			if !backend.State().Live() {
				return fmt.Errorf("backend is %s, cannot run procedures", backend.State())
			}

			runner := procedure.NewRunner(backend, logger)
			runner.OnProgress(func(pct int, msg string) {
				fmt.Printf("  [%3d%%] %s\n", pct, msg)
			})

			ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stopSignals()

			if !runner.Start(proc) {
				return fmt.Errorf("runner is busy")
			}
			select {
			case <-ctx.Done():
				runner.Abort()
				<-runner.Done()
			case <-runner.Done():
			}

			res := runner.Result()
			fmt.Printf("\n%s: %s\n", res.Procedure, res.Verdict)
			for _, c := range res.Checks {
				status := "PASS"
				if !c.OK {
					status = "FAIL"
				}
				fmt.Printf("  %-4s %s (%s)\n", status, c.Name, c.Detail)
			}
			if len(res.Metrics) > 0 {
				names := make([]string, 0, len(res.Metrics))
				for name := range res.Metrics {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Println("Metrics:")
				for _, name := range names {
					fmt.Printf("  %s = %.3f\n", name, res.Metrics[name])
				}
			}
			if res.Verdict == procedure.VerdictFail {
				return fmt.Errorf("procedure failed")
			}
			return nil
		},
	}
	return cmd
}

func paramsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Read and write tuning parameters",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print every tuning parameter",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := newBackend(newLogger())
			if err != nil {
				return err
			}
			defer backend.Close()

			params := backend.AllParams()
			names := make([]string, 0, len(params))
			for name := range params {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%-10s = %g\n", name, params[name])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> <value>",
		Short: "Set one tuning parameter (clamped and snapped to its range)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("bad value %q: %w", args[1], err)
			}
			if err := hal.ValidateParam(args[0], value); err != nil {
				return err
			}

			backend, err := newBackend(newLogger())
			if err != nil {
				return err
			}
			defer backend.Close()

			if !backend.SetParam(args[0], value) {
				return fmt.Errorf("could not set %s", args[0])
			}
			applied, _ := backend.Param(args[0])
			fmt.Printf("%s = %g\n", args[0], applied)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "preset <name>",
		Short: "Apply a tuning preset (conservative, baseline, aggressive)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preset, ok := config.Presets[args[0]]
			if !ok {
				return fmt.Errorf("unknown preset %q", args[0])
			}

			backend, err := newBackend(newLogger())
			if err != nil {
				return err
			}
			defer backend.Close()

			if !backend.SetParamsBulk(preset) {
				return fmt.Errorf("some preset values did not apply")
			}
			fmt.Printf("applied preset %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func exportCmd() *cobra.Command {
	var chartPath string
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "export <csv-path>",
		Short: "Record a session and export it as CSV (and optionally an HTML chart)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			backend, err := newBackend(logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			sink := datalog.New(spindletune.HistoryDuration, spindletune.UpdateInterval, logger)
			sink.SetRecording(true)
			poller := monitor.New(backend, sink, spindletune.UpdateInterval, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, duration)
			defer cancel()

			fmt.Printf("recording for up to %s (Ctrl-C to stop early)...\n", duration)
			poller.Run(ctx)

			if !sink.ExportCSV(args[0], map[string]string{
				"session": sink.Session().String(),
				"backend": backend.State().String(),
			}) {
				return fmt.Errorf("export to %q failed", args[0])
			}
			fmt.Printf("wrote %d points to %s\n", sink.PointCount(), args[0])

			if chartPath != "" {
				if err := sink.ExportChartHTML(chartPath, "Spindle Session"); err != nil {
					return err
				}
				fmt.Printf("wrote chart to %s\n", chartPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chartPath, "chart", "", "also write an HTML chart here")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "how long to record")
	return cmd
}

func diagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Print backend diagnostics and the troubleshooting table",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := newBackend(newLogger())
			if err != nil {
				return err
			}
			defer backend.Close()

			d := backend.Diagnostics()
			fmt.Printf("state:      %s\n", d.State)
			fmt.Printf("attempts:   %d\n", d.Attempts)
			if d.LastError != "" {
				fmt.Printf("last error: %s\n", d.LastError)
			}
			fmt.Printf("cache:      %d entries\n", d.CacheSize)
			if d.AvgReadTime > 0 {
				fmt.Printf("read time:  avg %s, max %s\n", d.AvgReadTime, d.MaxReadTime)
			}

			fmt.Println("\nSymptom guide:")
			for _, s := range config.Symptoms {
				fmt.Printf("  [%s] %s\n", s.Severity, s.Name)
				for _, c := range s.Checks {
					fmt.Printf("      - %s\n", c)
				}
			}
			return nil
		},
	}
}

func iniCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ini",
		Short: "Read, generate, and back up the LinuxCNC INI spindle section",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "read <ini-path>",
		Short: "Read the SPINDLE_0 section and compare it against the baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := profile.ReadSpindleParams(args[0])
			if err != nil {
				return err
			}
			diff := profile.CompareWithBaseline(params)
			names := make([]string, 0, len(params))
			for name := range params {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%-10s = %-10g (%s vs baseline)\n", name, params[name], diff[name])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Print an INI section from the live parameter values",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := newBackend(newLogger())
			if err != nil {
				return err
			}
			defer backend.Close()

			fmt.Print(profile.GenerateSection(backend.AllParams()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "backup <ini-path>",
		Short: "Copy the INI file to a timestamped backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backup, err := profile.Backup(args[0])
			if err != nil {
				return err
			}
			fmt.Println("backed up to", backup)
			return nil
		},
	})

	return cmd
}

func profileCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Save and restore tuning parameter profiles",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "profile directory (default ~/.spindle_tuner_profiles)")

	cmd.AddCommand(&cobra.Command{
		Use:   "save <name>",
		Short: "Save the live parameters as a named profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := newBackend(newLogger())
			if err != nil {
				return err
			}
			defer backend.Close()

			store, err := profile.NewStore(dir)
			if err != nil {
				return err
			}
			if err := store.Save(profile.Profile{Name: args[0], Params: backend.AllParams()}); err != nil {
				return err
			}
			fmt.Printf("saved profile %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "load <name>",
		Short: "Apply a saved profile to the live parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := profile.NewStore(dir)
			if err != nil {
				return err
			}
			p, err := store.Load(args[0])
			if err != nil {
				return err
			}

			backend, err := newBackend(newLogger())
			if err != nil {
				return err
			}
			defer backend.Close()

			if !backend.SetParamsBulk(p.Params) {
				return fmt.Errorf("some profile values did not apply")
			}
			fmt.Printf("applied profile %s\n", p.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved profiles, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := profile.NewStore(dir)
			if err != nil {
				return err
			}
			profiles, err := store.List()
			if err != nil {
				return err
			}
			for _, p := range profiles {
				fmt.Printf("%-20s %s  %s\n", p.Name, p.Timestamp.Format("2006-01-02 15:04"), p.Notes)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := profile.NewStore(dir)
			if err != nil {
				return err
			}
			return store.Delete(args[0])
		},
	})

	return cmd
}
