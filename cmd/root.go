package cmd

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cocoonstack/localnet/config"
	"github.com/cocoonstack/localnet/metrics"
)

var (
	cfgFile string
	conf    *config.Config
	// promReg is non-nil when metrics_file is configured.
	promReg *prometheus.Registry
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "localnet",
		Short:         "localnet - run a local network of storage nodes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(commandContext(cmd))
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().String("root-dir", "", "root data directory")
	cmd.PersistentFlags().String("run-dir", "", "runtime directory (service definitions, PID files)")
	cmd.PersistentFlags().String("log-dir", "", "node log directory")
	cmd.PersistentFlags().String("metrics-file", "", "write metrics in node-exporter textfile format to this path")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("root_dir", cmd.PersistentFlags().Lookup("root-dir"))
	_ = viper.BindPFlag("run_dir", cmd.PersistentFlags().Lookup("run-dir"))
	_ = viper.BindPFlag("log_dir", cmd.PersistentFlags().Lookup("log-dir"))
	_ = viper.BindPFlag("metrics_file", cmd.PersistentFlags().Lookup("metrics-file"))
	_ = viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))

	viper.SetEnvPrefix("LOCALNET")
	viper.AutomaticEnv()

	cmd.AddCommand(
		runCmd,
		joinCmd,
		killCmd,
		statusCmd,
		inspectCmd,
		gcCmd,
		versionCmd,
	)

	return cmd
}()

func initConfig(ctx context.Context) error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	_ = viper.ReadInConfig() // optional; missing file is OK

	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	conf.Normalize()
	if conf.Log.Level == "" {
		conf.Log.Level = "info"
	}

	if err := conf.EnsureDirs(); err != nil {
		return fmt.Errorf("ensure dirs: %w", err)
	}
	if conf.MetricsFile != "" {
		promReg = prometheus.NewRegistry()
		if err := metrics.Register(promReg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	return log.SetupLog(ctx, &conf.Log, "")
}

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := newCommandContext()
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	flushMetrics(ctx)
	return err
}

func flushMetrics(ctx context.Context) {
	if promReg == nil || conf == nil {
		return
	}
	if err := metrics.WriteTextfile(conf.MetricsFile, promReg); err != nil {
		log.WithFunc("cmd.flushMetrics").Warnf(ctx, "write metrics %s: %v", conf.MetricsFile, err)
	}
}
