package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ubifsck/ubifsck/cfg"
	"github.com/ubifsck/ubifsck/internal/check"
	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/fsck"
	"github.com/ubifsck/ubifsck/internal/logger"
	"github.com/ubifsck/ubifsck/internal/metrics"
	"github.com/ubifsck/ubifsck/internal/problem"
)

// version is overridden at build time via -ldflags, the same mechanism
// the teacher's own getVersion uses for its release builds.
var version = "dev"

// modeTable translates the config-resolved cfg.Mode into the
// problem-policy Mode the consistency engine actually gates decisions on.
var modeTable = map[cfg.Mode]problem.Mode{
	cfg.ModeCheck:   problem.ModeCheck,
	cfg.ModeNormal:  problem.ModeNormal,
	cfg.ModeSafe:    problem.ModeSafe,
	cfg.ModeDanger0: problem.ModeDanger0,
	cfg.ModeDanger1: problem.ModeDanger1,
}

// logLevelTable translates the config-resolved cfg.LogSeverity into
// internal/logger's Level.
var logLevelTable = map[cfg.LogSeverity]logger.Level{
	cfg.TraceLogSeverity:   logger.LevelTrace,
	cfg.DebugLogSeverity:   logger.LevelDebug,
	cfg.InfoLogSeverity:    logger.LevelInfo,
	cfg.WarningLogSeverity: logger.LevelWarn,
	cfg.ErrorLogSeverity:   logger.LevelError,
	cfg.OffLogSeverity:     logger.LevelOff,
}

// runFsck translates a fully rationalized and validated Config into one
// internal/fsck.Run invocation: it wires up logging and metrics, opens
// the volume, builds an interactive prompt for normal mode, runs the
// check, and turns the result into the process's exit status.
func runFsck(cmd *cobra.Command, c *cfg.Config) error {
	if c.PrintVersion {
		fmt.Fprintf(cmd.OutOrStdout(), "ubifsck version %s\n", version)
		return nil
	}

	logger.SetLevel(logLevelTable[c.LogSeverity])
	logger.SetFormat(c.LogFormat)
	if c.LogFile != "" {
		if err := logger.InitLogFile(c.LogFormat, logLevelTable[c.LogSeverity], logger.RotateConfig{
			FilePath:        c.LogFile,
			MaxFileSizeMB:   c.LogRotate.MaxFileSizeMb,
			BackupFileCount: c.LogRotate.BackupFileCount,
			Compress:        c.LogRotate.Compress,
		}); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
	}

	handle := metrics.Handle(metrics.NoOp{})
	if c.MetricsAddr != "" {
		h, err := metrics.New()
		if err != nil {
			return fmt.Errorf("initializing metrics: %w", err)
		}
		handle = h
		stop, err := metrics.StartPrometheusExporter(c.MetricsAddr)
		if err != nil {
			return fmt.Errorf("starting metrics exporter: %w", err)
		}
		defer stop()
	}

	lebCount, err := lebCountFor(c.Volume, c.LebSize)
	if err != nil {
		return fmt.Errorf("sizing volume: %w", err)
	}
	vol, err := device.OpenFileVolume(c.Volume, lebCount, c.LebSize, c.MinIOSize, c.MaxWriteSize, false)
	if err != nil {
		return fmt.Errorf("opening volume: %w", err)
	}

	mode, ok := modeTable[c.Mode]
	if !ok {
		mode = problem.ModeNormal
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	res, err := fsck.Run(ctx, vol, fsck.Options{
		Mode:    mode,
		Metrics: handle,
		Ask:     interactiveAsk(cmd),
	})
	if err != nil {
		return err
	}

	logger.Infof("fsck: run %s complete, rebuilt=%v, exit_code=%d", res.RunID, res.Rebuilt, res.ExitCode)
	if res.ExitCode != problem.ExitNoErrors {
		os.Exit(int(res.ExitCode))
	}
	return nil
}

// lebCountFor derives the volume's LEB count from the image file's size,
// since a flat image carries no geometry of its own to read back (device-
// node autodetection is out of scope; see DESIGN.md).
func lebCountFor(path string, lebSize uint32) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if lebSize == 0 || info.Size()%int64(lebSize) != 0 {
		return 0, fmt.Errorf("volume size %d is not a multiple of leb-size %d", info.Size(), lebSize)
	}
	return int(info.Size() / int64(lebSize)), nil
}

// interactiveAsk builds the check.AskFunc a normal-mode run prompts
// through on stdin/stdout; other modes never call it (problem.Decide
// only invokes ask when the mode is itself interactive).
func interactiveAsk(cmd *cobra.Command) check.AskFunc {
	reader := bufio.NewReader(cmd.InOrStdin())
	return func(kind problem.Kind) problem.Answer {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: fix? [y/N] ", kind)
		line, err := reader.ReadString('\n')
		if err != nil {
			return problem.AnswerNo
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return problem.AnswerYes
		default:
			return problem.AnswerNo
		}
	}
}
