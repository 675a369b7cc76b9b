// automaker is the run orchestrator CLI: it serves the daemon, submits
// feature runs, and resolves plan approvals against a running daemon.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ahmedshikashaker/automaker/pkg/config"
	"github.com/ahmedshikashaker/automaker/pkg/version"
)

var serverURL string

func main() {
	rootCmd := &cobra.Command{
		Use:     "automaker",
		Short:   "AI feature-run orchestrator",
		Long:    "automaker plans, gates, and executes AI-agent feature runs against a project repository.",
		Version: version.String(),
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer(), "automaker daemon URL")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newApprovalsCommand())
	rootCmd.AddCommand(newApproveCommand())
	rootCmd.AddCommand(newRejectCommand())
	rootCmd.AddCommand(newCancelCommand())
	rootCmd.AddCommand(newFeaturesCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultServer() string {
	if server := os.Getenv("AUTOMAKER_SERVER"); server != "" {
		return server
	}
	return "http://" + config.DefaultListenAddr
}
