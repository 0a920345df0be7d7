package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"lm-cli/internal/agent"
	"lm-cli/internal/config"
	"lm-cli/internal/llm"
	"lm-cli/internal/render"
	"lm-cli/internal/tools"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lm-cli [question]",
		Short:         "lm-cli - chat with a locally hosted model, with tool calling",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			cfg, err := config.Load(cmd)
			if err != nil {
				return err
			}

			logger := buildLogger(cfg.Verbose)
			defer func() { _ = logger.Sync() }()

			registry := tools.NewRegistry(tools.NewCalculatorTool(logger))

			var client llm.Client
			if os.Getenv("LMCLI_MOCK_LLM") == "1" {
				client = llm.NewMockClient()
			} else {
				client = llm.NewOllamaClient(cfg.Model, cfg.Host, logger)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()

			if cfg.JSON {
				ag := agent.NewAgent(client, registry, nil, logger, cfg)
				result, err := ag.Run(ctx, question)
				if cfg.PersistRuns {
					persistRun(logger, result)
				}
				payload, _ := json.MarshalIndent(result, "", "  ")
				fmt.Fprintln(os.Stdout, string(payload))
				return err
			}

			writer := io.Writer(os.Stdout)
			var logFile *os.File
			if cfg.LogFile != "" {
				file, err := os.Create(cfg.LogFile)
				if err != nil {
					return err
				}
				logFile = file
				writer = io.MultiWriter(os.Stdout, logFile)
			}
			renderer := render.NewStdoutRenderer(writer, cfg.Verbose, cfg.Quiet)
			ag := agent.NewAgent(client, registry, renderer, logger, cfg)
			runResult, runErr := ag.Run(ctx, question)
			_ = renderer.Close()
			if logFile != nil {
				_ = logFile.Close()
			}
			if cfg.PersistRuns {
				persistRun(logger, runResult)
			}
			return runErr
		},
	}

	cmd.Flags().String("model", config.DefaultModel, "Model name")
	cmd.Flags().String("host", config.DefaultHost, "Model server address")
	cmd.Flags().Int("max-steps", config.DefaultMaxSteps, "Maximum tool steps")
	cmd.Flags().String("timeout", config.DefaultTimeout.String(), "Timeout (e.g. 120s)")
	cmd.Flags().Bool("quiet", false, "Only print final answer")
	cmd.Flags().Bool("json", false, "Output JSON only")
	cmd.Flags().Bool("verbose", false, "Enable verbose logging")
	cmd.Flags().Bool("no-stream", false, "Disable streaming of the final answer")
	cmd.Flags().String("log-file", "", "Write plain-text output to a file")

	return cmd
}

func buildLogger(verbose bool) *zap.Logger {
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

func persistRun(logger *zap.Logger, result agent.RunResult) {
	home, err := os.UserHomeDir()
	if err != nil {
		logger.Warn("failed to get home dir", zap.Error(err))
		return
	}
	path := filepath.Join(home, ".local", "share", "lm-cli", "runs")
	if err := os.MkdirAll(path, 0o755); err != nil {
		logger.Warn("failed to create run directory", zap.Error(err))
		return
	}
	file := filepath.Join(path, result.RunID+".json")
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Warn("failed to marshal run log", zap.Error(err))
		return
	}
	if err := os.WriteFile(file, payload, 0o600); err != nil {
		logger.Warn("failed to write run log", zap.Error(err))
	}
}
