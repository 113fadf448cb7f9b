package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quayside/stevedore/internal/config"
	"github.com/quayside/stevedore/internal/run"
)

// Exit codes. Load failures and a held lock are distinguished so cron
// wrappers can tell them apart from configuration problems.
const (
	exitOK             = 0
	exitFatal          = 1
	exitLoadFailures   = 2
	exitAlreadyRunning = 3
)

func NewRootCommand() *cobra.Command {
	var settingsPath string

	cmd := &cobra.Command{
		Use:           "stevedore",
		Short:         "Loads staged data files through the platform bulk loader",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Invoking the bare program with -f runs a load pass, matching how
		// operators call the tool from cron.
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, settingsPath)
		},
	}
	cmd.Flags().StringVarP(&settingsPath, "settings", "f", "", "Path to the settings file")

	cmd.AddCommand(newRunCommand())

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cmd := NewRootCommand()
	err := cmd.Execute()
	if err == nil {
		os.Exit(exitOK)
	}

	fmt.Fprintln(os.Stderr, err)

	var cfgErr *config.Error
	switch {
	case errors.Is(err, run.ErrLoadFailures):
		os.Exit(exitLoadFailures)
	case errors.Is(err, run.ErrAlreadyRunning):
		os.Exit(exitAlreadyRunning)
	case errors.As(err, &cfgErr):
		os.Exit(exitFatal)
	default:
		os.Exit(exitFatal)
	}
}
