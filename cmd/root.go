//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// logger is the process-wide root logger. Engines receive sub-loggers
// derived from it.
var logger zerolog.Logger

// rootCmd is the base command for the optionflow pipeline. All
// subcommands are registered as children of this command.
var rootCmd = &cobra.Command{
	Use:           "optionflow",
	Short:         "Market data ingestion pipeline for US equities and options",
	Long:          "A pipeline that pulls stock bars, option contracts, trades, and quotes from upstream vendors and writes them into a QuestDB time-series store.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a non-zero status code
// if any error occurs during command execution.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// init loads environment variables from the .env file if present and
// configures the root logger before any command runs.
func init() {
	cobra.OnInitialize(loadEnv, initLogger)
}

// loadEnv attempts to load environment variables from a .env file in
// the current working directory. Errors are silently ignored since the
// .env file is optional.
func loadEnv() {
	_ = godotenv.Load()
}

// initLogger builds the console logger at the level named by LOG_LEVEL,
// defaulting to info when unset or unrecognized.
func initLogger() {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// status prints a green progress line to stdout.
func status(format string, args ...interface{}) {
	color.Green(format, args...)
}

// warnStatus prints a yellow progress line to stdout.
func warnStatus(format string, args ...interface{}) {
	color.Yellow(format, args...)
}

// fail prints a red error line and returns an error carrying the same
// message for cobra to propagate.
func fail(format string, args ...interface{}) error {
	color.Red(format, args...)
	return fmt.Errorf(format, args...)
}
