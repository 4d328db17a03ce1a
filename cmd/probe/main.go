package main

import (
	"fmt"
	"os"

	"campus-assistant-be/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	backendURL string
)

var rootCmd = &cobra.Command{
	Use:          "probe",
	Short:        "Operator checks for the campus assistant backend",
	SilenceUsage: true,
	Long: `probe verifies that the primary model server is reachable, that a vision
model is installed, that generation works, and that the backend answers.
Running it without a sub-command performs every check.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
	},
	RunE: runAll,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "http://localhost:5000", "backend base URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
