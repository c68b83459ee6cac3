package main

import (
	"github.com/spf13/cobra"

	"lanea/internal/types"
)

var stalenessCmd = &cobra.Command{
	Use:   "staleness [scope]",
	Short: "Evaluate staleness for a scope (default: system)",
	Long: `Evaluates the staleness policy for a scope and records an observation.

Scopes:
  system         aggregate across all active repos
  repo:<id>      one repository

Examples:
  lanea staleness
  lanea staleness repo:api-core`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		scope := types.ScopeSystem
		if len(args) == 1 {
			scope = args[0]
		}

		snap, err := a.stale.EvaluateScope(cmd.Context(), scope)
		if err != nil {
			return err
		}
		if _, err := a.stale.RecordObservation(scope, snap); err != nil {
			return err
		}

		printJSON(snap)
		return exitFor(!snap.HardStale)
	},
}
