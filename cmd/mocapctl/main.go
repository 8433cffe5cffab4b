// mocapctl — инструмент командной строки для mocapd:
// постановка видео в очередь, просмотр tasks и скачивание результатов.
//
// Использование:
//
//	mocapctl [--api-url URL] [--json] <command> [subcommand] [flags]
//
// Команды:
//
//	task     Управление tasks
//	queue    Состояние очереди
//	stats    Счётчики tasks
//	history  Журнал tasks
//	cleanup  Внеплановая очистка
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/mocapd/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "mocapctl",
		Short:         "mocapctl — client for the mocap task orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("MOCAP_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8000"
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewQueueCmd(clientFn, outputFn),
		cli.NewStatsCmd(clientFn, outputFn),
		cli.NewHistoryCmd(clientFn, outputFn),
		cli.NewCleanupCmd(clientFn, outputFn),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
