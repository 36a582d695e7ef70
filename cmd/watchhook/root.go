package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/watchhook/watchhook/internal/config"
	"github.com/watchhook/watchhook/internal/hooks"
	"github.com/watchhook/watchhook/internal/logging"
	"github.com/watchhook/watchhook/internal/metrics"
	"github.com/watchhook/watchhook/internal/notify"
	"github.com/watchhook/watchhook/internal/screenshot"
)

// app carries per-invocation state shared by the subcommands.
type app struct {
	cfgFile  string
	logLevel string
	logFile  string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	command string
	cfg     *config.Config
	log     zerolog.Logger
	client  *http.Client
	cleanup func()
}

// execute runs one CLI invocation. finish runs whether or not the command
// failed, so metrics are pushed and the log file closed after errors too.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr, log: zerolog.Nop()}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.Execute()
	a.finish(context.Background())
	return err
}

func newRootCmd(a *app) *cobra.Command {

	root := &cobra.Command{
		Use:   "watchhook",
		Short: "urlwatch hooks that send detected changes to Discord, Slack and Telegram",
		Long: `watchhook is called from a urlwatch hooks file at two points of every job:

  watchhook filter --job job.json        before a check; prints true or false
  watchhook process-job --job job.json   before a check; prints the job to use
  watchhook report --job job.json --report report.json
                                         after a check; notifies on changes

Use "-" as a path to read from stdin.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.command = cmd.Name()
			return a.setup()
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", os.Getenv("WATCHHOOK_CONFIG"),
		"config file (YAML or JSON); defaults to $WATCHHOOK_CONFIG")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "append logs to this file (overrides config)")

	root.AddCommand(
		newFilterCmd(a),
		newProcessJobCmd(a),
		newReportCmd(a),
		newValidateCmd(a),
	)
	return root
}

// setup loads configuration with precedence defaults < file < env < flags and
// initializes logging.
func (a *app) setup() error {
	cfg := config.DefaultConfig()
	if a.cfgFile != "" {
		c, err := config.LoadConfigFromFile(a.cfgFile)
		if err != nil {
			return fmt.Errorf("failed loading config: %w", err)
		}
		cfg = c
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		return fmt.Errorf("invalid environment configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFile != "" {
		cfg.LogFile = a.logFile
	}
	a.cfg = cfg

	cleanup, err := logging.InitWriter(a.stderr, cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cleanup = cleanup
	a.log = logging.Get().With().Str("run_id", uuid.NewString()).Logger()
	a.client = &http.Client{Timeout: notify.SendTimeout}
	return nil
}

// hooks wires the dispatcher and screenshot capturer for this invocation.
func (a *app) hooks() *hooks.Hooks {
	d := notify.NewDispatcher(a.cfg, a.client, a.component("notify"))
	c := screenshot.New(a.cfg.ScreenshotServiceURL(), a.client, a.component("screenshot"))
	return hooks.New(a.cfg, d, c, a.component("hooks"))
}

func (a *app) component(name string) zerolog.Logger {
	return a.log.With().Str("component", name).Logger()
}

// finish pushes metrics (best effort) and closes the log file. It is a no-op
// when setup never ran.
func (a *app) finish(ctx context.Context) {
	if a.cfg == nil {
		return
	}
	metrics.SetLastRun(time.Now())
	m := a.cfg.Metrics
	if err := metrics.PushGateway(ctx, m.PushgatewayURL, m.PushJob, a.command, nil); err != nil {
		a.log.Warn().Err(err).Msg("metrics push failed")
	}
	target := metrics.InfluxTarget{URL: m.InfluxURL, Token: m.InfluxToken, Org: m.InfluxOrg, Bucket: m.InfluxBucket}
	if err := metrics.PushInflux(ctx, target, nil); err != nil {
		a.log.Warn().Err(err).Msg("influxdb push failed")
	}
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}
