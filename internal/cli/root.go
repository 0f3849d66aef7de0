// Package cli implements the pew command line.
package cli

import (
	"fmt"
	"os"

	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose bool

	// log is shared by every command and injected into the packages they drive.
	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "pew",
	Short: "PyEverywhere - build Python web-UI apps for every platform",
	Long: `pew turns a Python project with a web UI into native applications.

It stages the project's sources, drives the platform packaging tools
(python-for-android, Xcode, PyInstaller), signs and notarizes macOS
bundles and produces installers.

Project commands run from the directory holding project_info.json.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging()
	},
}

// Execute runs the command line and exits with the status for the error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(pewerr.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func configureLogging() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}
