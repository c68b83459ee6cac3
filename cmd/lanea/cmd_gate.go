package main

import (
	"github.com/spf13/cobra"

	"lanea/internal/gate"
	"lanea/internal/types"
)

var flagGateActor string

var gateCmd = &cobra.Command{
	Use:   "gate [scope]",
	Short: "Check the delivery gate for a scope",
	Long: `Read-only guard consulted by downstream exporters: passes when the
scope (or system, for repo scopes) is sufficient at the current knowledge
version and the scope is not hard-stale.

Examples:
  lanea gate
  lanea gate repo:api-core
  lanea gate repo:api-core --force --actor alice`,
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

		dec, err := a.gate.RequireConfirmedSufficiencyForDelivery(cmd.Context(), gate.Request{
			Scope:         scope,
			ForceOverride: flagForce,
			Actor:         flagGateActor,
		})
		if err != nil {
			return err
		}
		printJSON(dec)
		return exitFor(dec.OK)
	},
}

func init() {
	gateCmd.Flags().StringVar(&flagGateActor, "actor", "", "human recorded on a forced override")
}
