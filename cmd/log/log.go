package log

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seubert/gammalog/internal/pkg/logger"
	"github.com/seubert/gammalog/internal/pkg/session"
	"github.com/seubert/gammalog/internal/pkg/signals"
)

var LogCmd = &cobra.Command{
	Use:   "log",
	Short: "Start a logging session",
	Long: `Start a logging session. All activated devices are polled once per
log cycle until interrupted; every cycle appends one record to the logfile.`,
	RunE: runLog,
}

var (
	cycleSeconds float64
	logFile      string
)

func runLog(cmd *cobra.Command, args []string) error {
	// Flags override the config file
	if cmd.Flags().Changed("cycle") {
		viper.Set("logging.cycle_seconds", cycleSeconds)
	}
	if cmd.Flags().Changed("file") {
		viper.Set("logging.file", logFile)
	}

	cfg, err := session.FromViper(viper.GetViper())
	if err != nil {
		return err
	}

	s, err := session.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	cleanup := signals.SetupHandler(ctx, cancel)
	defer cleanup()

	logger.Info("Starting logging session",
		"session", s.ID.String(), "file", cfg.LogFile, "cycle", cfg.Cycle)
	return s.Run(ctx)
}

func init() {
	LogCmd.Flags().Float64VarP(&cycleSeconds, "cycle", "c", 1.0, "log cycle in seconds")
	LogCmd.Flags().StringVarP(&logFile, "file", "f", "gammalog.log", "logfile to append records to")
}
