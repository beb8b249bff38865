package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opextools/portal_agent/internal/config"
	"github.com/opextools/portal_agent/internal/preflight"
)

var checkFlags struct {
	input  string
	output string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the environment without touching the portal",
	Long: `Check loads the selector file, parses the input workbook, probes for a
usable browser and verifies that the output locations are writable. No
login is attempted and nothing is changed beyond creating output
directories.`,
	RunE: runCheck,
}

func init() {
	f := checkCmd.Flags()
	f.StringVar(&checkFlags.input, "input", "", "Input workbook with a CPF column")
	f.StringVar(&checkFlags.output, "output", "", "Planned destination for the consolidated workbook")

	_ = checkCmd.MarkFlagRequired("input")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadRun()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	return preflight.Run(cmd.Context(), cmd.OutOrStdout(), preflight.Stages(cfg, checkFlags.input, checkFlags.output))
}
