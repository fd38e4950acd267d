//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/judgebox/judgebox/logger"
	"github.com/judgebox/judgebox/options"
	"github.com/judgebox/judgebox/sandbox"
)

/**
 * Application entry point.
 */
func main() {
	// Parse command-line options.
	result, err := options.ParseCli(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parsing error:", err)
		os.Exit(1)
	} else if result == nil {
		// No options means help or version was printed.
		os.Exit(0)
	}

	// Create the application logger.
	log := logger.CreateLogger(&logger.LoggerOpts{
		LogLevel:  result.LogLevel,
		LogFormat: result.LogFormat,
	})
	log.Info("config", slog.Any("cfg", result.Config))

	info, err := sandbox.Run(result.Config)
	if err != nil {
		log.Error("error while running sandbox", slog.Any("err", err))
		os.Exit(1)
	}

	fmt.Printf("result: %s\n", info.Result)
	fmt.Printf("wall_time: %s\n", info.WallTime)
	fmt.Printf("user_time: %s\n", info.UserTime)
	fmt.Printf("memory: %s\n", info.Memory)
	if info.Result == sandbox.NonZeroExitStatus {
		fmt.Printf("exit_status: %d\n", info.ExitStatus)
	}
	if info.Result == sandbox.KilledBySignal {
		fmt.Printf("signal: %d\n", info.Signal)
	}

	if info.IsSuccess() {
		os.Exit(0)
	}
	os.Exit(1)
}
