package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tensororder/tensororder/config"
	"github.com/tensororder/tensororder/plan"
	"github.com/tensororder/tensororder/report"
)

type options struct {
	cfg        config.Config
	configPath string
	debug      bool
	joinTree   string
	maxModels  int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{cfg: config.Default()}

	cmd := &cobra.Command{
		Use:          "tensororder",
		Short:        "Weighted model counting by tensor network contraction along join trees",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.loadConfig(cmd.Flags())
		},
	}
	cmd.PersistentFlags().BoolVar(&o.debug, "debug", false, "use debug log level")
	cmd.PersistentFlags().StringVar(&o.configPath, "config", "", "YAML file to read settings from; flags given explicitly take precedence")
	cmd.PersistentFlags().StringVar(&o.cfg.Format, "format", o.cfg.Format, "output format, text or yaml")
	cmd.PersistentFlags().StringVar(&o.cfg.MetricsFile, "metrics-file", o.cfg.MetricsFile, "write prometheus metrics to this file when done")

	cmd.AddCommand(newCountCmd(o), newRecordCmd(o), newBruteForceCmd(o))
	return cmd
}

// loadConfig reads the configuration file, if any, then applies the flags that were explicitly set on top of it.
func (o *options) loadConfig(flags *pflag.FlagSet) error {
	if o.configPath == "" {
		return o.cfg.Validate()
	}
	changed := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	o.cfg = cfg
	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return errors.Wrapf(err, "could not apply flag --%s", name)
		}
	}
	return o.cfg.Validate()
}

// logger returns the logger of a run. Logs are JSON unless stderr is a terminal.
func (o *options) logger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if fd := os.Stderr.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if o.debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger.WithField("run", uuid.NewString())
}

func (o *options) output(w io.Writer) (*report.Output, error) {
	format, err := report.ParseFormat(o.cfg.Format)
	if err != nil {
		return nil, err
	}
	return report.NewOutput(w, format), nil
}

func (o *options) metrics() *report.Metrics {
	if o.cfg.MetricsFile == "" {
		return nil
	}
	return report.NewMetrics()
}

func (o *options) planOptions() plan.Options {
	return plan.Options{
		MaxWidth:          o.cfg.MaxWidth,
		PerformanceFactor: o.cfg.PerformanceFactor,
		PlanTimeout:       o.cfg.PlanTimeoutDuration(),
		Timeout:           o.cfg.TimeoutDuration(),
		TargetWidth:       o.cfg.TargetWidth,
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
