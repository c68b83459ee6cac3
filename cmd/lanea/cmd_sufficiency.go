package main

import (
	"github.com/spf13/cobra"

	"lanea/internal/types"
)

var (
	flagSuffVersion   string
	flagSuffRationale string
	flagSuffNotes     string
)

var sufficiencyCmd = &cobra.Command{
	Use:   "sufficiency",
	Short: "Propose, approve, or reject knowledge sufficiency",
	Long: `Manages the versioned sufficiency ledger.

Examples:
  lanea sufficiency propose system
  lanea sufficiency approve system --by alice
  lanea sufficiency reject system --by bob --notes "integration edges unverified"
  lanea sufficiency status system
  lanea sufficiency bump minor`,
}

func suffVersion(a *app) (string, error) {
	if flagSuffVersion != "" {
		return flagSuffVersion, nil
	}
	return a.ledger.CurrentVersion()
}

var suffProposeCmd = &cobra.Command{
	Use:   "propose <scope>",
	Short: "Record a proposed_sufficient state with computed blockers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		version, err := suffVersion(a)
		if err != nil {
			return err
		}

		rec, err := a.ledger.Propose(cmd.Context(), args[0], version, flagSuffRationale, nil)
		if err != nil {
			return err
		}
		printJSON(rec)
		return nil
	},
}

var flagSuffBy string

var suffApproveCmd = &cobra.Command{
	Use:   "approve <scope>",
	Short: "Approve sufficiency (gated on staleness, coverage, decisions)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		version, err := suffVersion(a)
		if err != nil {
			return err
		}

		res, err := a.ledger.Approve(cmd.Context(), args[0], version, flagSuffBy)
		if err != nil {
			return err
		}
		printJSON(res)
		return exitFor(res.OK)
	},
}

var suffRejectCmd = &cobra.Command{
	Use:   "reject <scope>",
	Short: "Reject sufficiency with human notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		version, err := suffVersion(a)
		if err != nil {
			return err
		}

		rec, err := a.ledger.Reject(cmd.Context(), args[0], version, flagSuffBy, flagSuffNotes)
		if err != nil {
			return err
		}
		printJSON(rec)
		return nil
	},
}

var suffStatusCmd = &cobra.Command{
	Use:   "status [scope]",
	Short: "Show the latest sufficiency record for a scope",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		scope := types.ScopeSystem
		if len(args) == 1 {
			scope = args[0]
		}

		rec, ok, err := a.ledger.Latest(scope)
		if err != nil {
			return err
		}
		version, err := a.ledger.CurrentVersion()
		if err != nil {
			return err
		}
		status, err := a.ledger.Status(scope, version)
		if err != nil {
			return err
		}

		printJSON(map[string]any{
			"scope":           scope,
			"current_version": version,
			"status":          status,
			"latest_record":   ifOK(ok, rec),
		})
		return nil
	},
}

var suffBumpCmd = &cobra.Command{
	Use:   "bump <patch|minor|major>",
	Short: "Advance the current knowledge version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		version, err := a.ledger.Bump("bump_" + args[0])
		if err != nil {
			return err
		}
		printJSON(map[string]string{"current_version": version})
		return nil
	},
}

func ifOK(ok bool, rec types.SufficiencyRecord) any {
	if !ok {
		return nil
	}
	return rec
}

func init() {
	sufficiencyCmd.PersistentFlags().StringVar(&flagSuffVersion, "version", "", "knowledge version (default: current)")
	sufficiencyCmd.PersistentFlags().StringVar(&flagSuffBy, "by", "", "human making the decision")
	sufficiencyCmd.PersistentFlags().StringVar(&flagSuffNotes, "notes", "", "human notes")
	suffProposeCmd.Flags().StringVar(&flagSuffRationale, "rationale", "", "path to a rationale Markdown file")
	sufficiencyCmd.AddCommand(suffProposeCmd, suffApproveCmd, suffRejectCmd, suffStatusCmd, suffBumpCmd)
}
