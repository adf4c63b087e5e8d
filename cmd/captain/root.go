package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/captain/config"
	"github.com/BaSui01/captain/internal/telemetry"
)

// =============================================================================
// 🎯 命令定义
// =============================================================================

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "captain",
		Short:         "Screen-aware autocomplete driven by a vision-language model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to config file (YAML)")

	root.AddCommand(newAutocompleteCmd(), newShellCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Captain %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func newAutocompleteCmd() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "autocomplete",
		Short: "Capture the screen and type model completions on demand",
		Long: `Starts a capture loop that records screenshots into the session trajectory.
Press Enter to request a completion; it is printed to stdout. Type "q" to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, appOptions{Query: query, Out: cmd.OutOrStdout()}, (*app).Run)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Retrieval query used to recall older screenshots")
	return cmd
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Chat with the model about what is on the screen",
		Long: `Starts a capture loop and an interactive chat. Each line is sent to the model
together with a fresh screenshot and the session history. Type "exit" to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, appOptions{Out: cmd.OutOrStdout()}, (*app).RunShell)
		},
	}
}

// runSession 加载配置、初始化日志与追踪、装配 app 后执行 run
func runSession(cmd *cobra.Command, opts appOptions, run func(*app, context.Context, io.Reader) error) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Captain",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("mode", cmd.Name()),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	if otelProviders != nil {
		defer func() {
			if err := otelProviders.Shutdown(cmd.Context()); err != nil {
				logger.Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	return run(a, ctx, cmd.InOrStdin())
}

// loadConfig 加载并校验配置，未指定路径时只使用默认值与环境变量
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
