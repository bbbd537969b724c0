package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/depgate-dev/depgate/internal/infrastructure/redaction"
	"github.com/depgate-dev/depgate/internal/infrastructure/sensitivedata"
)

var (
	cfgFile    string
	logLevel   string
	quiet      bool
	setFlags   []string

	// stderrRedactor scrubs gitleaks-style secret patterns from every log
	// line before it reaches the terminal. Built once in setupLogging and
	// reused by application.New so the CLI and the Container agree on one
	// redactor instance.
	stderrRedactor *redaction.Redactor
)

// rootCmd is the application entry point.
var rootCmd = &cobra.Command{
	Use:   "depgate",
	Short: "Dependency supply-chain risk analyzer and policy gate",
	Long: `DepGate inspects npm, PyPI, Maven, and NuGet dependencies for
supply-chain risk signals (repository existence, trust signatures,
release cadence) and enforces a configurable allow/deny policy, either
as an offline scan or as a package-manager proxy.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setupLogging()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "policy/config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all log output (equivalent to --log-level=error)")
	rootCmd.PersistentFlags().StringArrayVar(&setFlags, "set", nil, "override a policy value, e.g. --set fail_fast=true (repeatable)")
}

// initConfig pre-reads the config file with viper for env var + flag
// precedence; the actual typed policy load happens per-command through
// internal/infrastructure/config, which validates the schema.
func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		slog.Warn("could not pre-read config file for env overlay", "file", cfgFile, "error", err)
		return
	}
	slog.Debug("using config file", "file", viper.ConfigFileUsed())
}

// setupLogging builds the default logger, writing through a
// sensitivedata.Writer so a GITHUB_TOKEN/GITLAB_TOKEN/OSM token value
// that ends up in a log line's arguments is scrubbed before it reaches
// os.Stderr rather than just tracked for error-message redaction.
func setupLogging() {
	level := parseLogLevel(logLevel)
	if quiet {
		level = slog.LevelError + 1
	}

	if stderrRedactor == nil {
		r, err := redaction.New(redaction.Config{})
		if err != nil {
			// Pattern compilation failure in our own defaults would be a
			// programming error, not a runtime condition; fail open to an
			// unredacted writer rather than lose logging entirely.
			slog.New(slog.NewTextHandler(os.Stderr, nil)).Warn("redactor init failed, stderr logging is unredacted", "error", err)
		} else {
			stderrRedactor = r
		}
	}

	writer := sensitivedata.NewWriter(os.Stderr, stderrRedactor)
	logger := slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// exitCodeFor maps a returned error to the §6 exit code contract. Errors
// that don't carry one of our typed causes fall back to 1 (file-error is
// the closest general-purpose "something about the input was wrong").
func exitCodeFor(err error) int {
	if code, ok := exitCodeFromError(err); ok {
		return code
	}
	return 1
}
