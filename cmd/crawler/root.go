package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alvmarrod/wiki-weaver/internal/config"
	"github.com/alvmarrod/wiki-weaver/internal/version"
)

// Exit codes
const (
	exitOK          = 0
	exitRuntimeErr  = 1
	exitInvalidConf = 2
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Weave word and link graphs out of a wiki neighbourhood",
		Long: `crawler walks a bounded breadth-first neighbourhood of a wiki from one seed
article, then builds a word co-occurrence graph and an article link graph,
prunes both and exports them as CSV, SQLite snapshot and a Markdown report.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("json-logs", false, "Log in JSON instead of text")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return exitCode(err)
}

// exitCode maps configuration problems to 2 and every other error to 1
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrInvalid):
		return exitInvalidConf
	default:
		return exitRuntimeErr
	}
}

// setupLogging configures the standard logrus logger from the global flags
func setupLogging(cmd *cobra.Command) {
	logrus.SetLevel(logrus.InfoLevel)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if jsonLogs, _ := cmd.Flags().GetBool("json-logs"); jsonLogs {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}
