package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DenDanskeSamler/scraperd"
	"github.com/DenDanskeSamler/scraperd/internal/logger"
	"github.com/DenDanskeSamler/scraperd/pkg/client"
	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// StatusFlags holds flags for the status command
type StatusFlags struct {
	StatusFile string
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createRunCommand(globalFlags),
		createStatusCommand(globalFlags),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "scraperd",
		Short: "Scraper pipeline orchestration daemon",
		Long: `Scraperd runs a fixed sequence of scraper stages on a schedule and
publishes progress to a JSON status file that external tools can poll.

Examples:
  scraperd serve --config=config.toml   # Start the daemon
  scraperd run --config=config.toml     # Run one cycle and exit
  scraperd status                       # Show the last published status`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the scraper daemon",
		Long: `Start the daemon loop: run all stages immediately, then again every
interval. The daemon stops cleanly on SIGINT or SIGTERM, finishing the
stage in flight first.

Examples:
  scraperd serve --config=config.toml
  scraperd serve config.toml
  scraperd serve config.toml --daemonize --pidfile=/run/scraperd.pid`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServe(serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")
	return cmd
}

func runServe(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required. Use --config=config.toml or provide as argument")
	}

	cfg, err := scraperd.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		logfile := flags.LogFile
		if logfile == "" {
			logfile = cfg.LogFile
		}
		return daemonize(flags.PidFile, logfile)
	}

	logFile := flags.LogFile
	if logFile == "" {
		logFile = cfg.LogFile
	}
	lg := cfg.DaemonLog.NewDaemonLogger(logFile, logger.ParseLevel(cfg.LogLevel))

	metricsEnabled := cfg.Metrics != nil && cfg.Metrics.Enabled
	if metricsEnabled {
		if err := scraperd.RegisterMetricsDefault(); err != nil {
			lg.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := scraperd.ServeMetrics(cfg.Metrics.Listen); err != nil {
					lg.Error("metrics server error", "error", err)
				}
			}()
		}
	}

	var sink scraperd.HistorySink
	if cfg.History != nil && cfg.History.Enabled {
		sink, err = scraperd.NewHistorySinkFromDSN(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("failed to open history sink: %w", err)
		}
	}

	d, err := scraperd.New(cfg, lg, sink)
	if err != nil {
		return err
	}

	if cfg.Server != nil && cfg.Server.Listen != "" {
		// Mount /metrics on the status API only when no dedicated
		// metrics listener exists.
		withMetrics := metricsEnabled && cfg.Metrics.Listen == ""
		srv, err := scraperd.NewStatusServer(*cfg.Server, d.StatusFile(), withMetrics)
		if err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() { _ = srv.Close() }()
		lg.Info("status API listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		lg.Info("signal received, shutting down after current stage", "signal", sig.String())
		d.RequestShutdown()
	}()

	err = d.Run()
	if flags.PidFile != "" {
		_ = removePidFile(flags.PidFile)
	}
	return err
}

func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run [config.toml]",
		Short: "Run a single pipeline cycle and exit",
		Long: `Run every configured stage once, in order, publish the status file,
and exit. Useful for manual runs and cron-driven setups.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			if configPath == "" {
				return fmt.Errorf("config file required. Use --config=config.toml or provide as argument")
			}
			cfg, err := scraperd.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			lg := cfg.DaemonLog.NewDaemonLogger(cfg.LogFile, logger.ParseLevel(cfg.LogLevel))

			var sink scraperd.HistorySink
			if cfg.History != nil && cfg.History.Enabled {
				sink, err = scraperd.NewHistorySinkFromDSN(cfg.History.DSN)
				if err != nil {
					return fmt.Errorf("failed to open history sink: %w", err)
				}
			}
			d, err := scraperd.New(cfg, lg, sink)
			if err != nil {
				return err
			}
			if err := d.RunOnce(); err != nil {
				return err
			}
			doc, err := scraperd.LoadStatus(d.StatusFile())
			if err != nil {
				return err
			}
			for _, st := range doc.StagesCompleted {
				if st.ExitCode != 0 {
					return fmt.Errorf("stage %s failed with exit code %d", st.Name, st.ExitCode)
				}
			}
			return nil
		},
	}
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	statusFlags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last published pipeline status",
		Long: `Print the current status document. By default it is read from the
status file on disk; with --api-url it is fetched from a running daemon.

Examples:
  scraperd status --config=config.toml
  scraperd status --status-file=/var/lib/scraperd/scraper_status.json
  scraperd status --api-url=http://remote:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := fetchStatus(globalFlags, statusFlags)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFlags.StatusFile, "status-file", "", "path to the status JSON file")
	cmd.Flags().StringVar(&statusFlags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&statusFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&statusFlags.Insecure, "insecure", false, "skip TLS verification")
	return cmd
}

func fetchStatus(globalFlags *GlobalFlags, flags *StatusFlags) (scraperd.Status, error) {
	if flags.APIUrl != "" {
		c := client.New(client.Config{
			BaseURL:  flags.APIUrl,
			Timeout:  flags.APITimeout,
			Insecure: flags.Insecure,
		})
		ctx, cancel := context.WithTimeout(context.Background(), flags.APITimeout)
		defer cancel()
		return c.GetStatus(ctx)
	}

	path := flags.StatusFile
	if path == "" && globalFlags.ConfigPath != "" {
		cfg, err := scraperd.LoadConfig(globalFlags.ConfigPath)
		if err != nil {
			return scraperd.Status{}, fmt.Errorf("error loading config: %w", err)
		}
		path = cfg.StatusFile
	}
	if path == "" {
		return scraperd.Status{}, fmt.Errorf("one of --status-file, --config or --api-url is required")
	}
	doc, err := scraperd.LoadStatus(path)
	if err != nil {
		if os.IsNotExist(err) {
			return scraperd.Status{}, fmt.Errorf("no status published yet at %s", path)
		}
		return scraperd.Status{}, err
	}
	return doc, nil
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the scraperd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("scraperd", version)
		},
	}
}
