package main

import (
	"github.com/spf13/cobra"

	"lanea/internal/committee"
)

var committeeCmd = &cobra.Command{
	Use:   "committee",
	Short: "Run evidence-grounded committee reviews",
	Long: `Runs the committee roles over the scanned knowledge base.

Examples:
  lanea committee repo api-core
  lanea committee all
  lanea committee integration
  lanea committee qa`,
}

var committeeRepoCmd = &cobra.Command{
	Use:   "repo <repo-id>",
	Short: "Run architect and skeptic for one repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		orch, err := a.orchestrator()
		if err != nil {
			return err
		}

		res, err := orch.RunRepo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJSON(res)
		return exitFor(res.State == committee.StateEvidenceValid)
	},
}

var committeeAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Run every repo committee, then the integration chair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		orch, err := a.orchestrator()
		if err != nil {
			return err
		}

		results, err := orch.RunAll(cmd.Context(), nil)
		if err != nil {
			return err
		}
		printJSON(results)

		for _, res := range results {
			if res.State != committee.StateEvidenceValid {
				return errRefused
			}
		}
		return nil
	},
}

var committeeIntegrationCmd = &cobra.Command{
	Use:   "integration",
	Short: "Run the integration chair across repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		orch, err := a.orchestrator()
		if err != nil {
			return err
		}

		res, err := orch.RunIntegration(cmd.Context())
		if err != nil {
			return err
		}
		printJSON(res)
		return exitFor(res.State == committee.StateEvidenceValid)
	},
}

var committeeQACmd = &cobra.Command{
	Use:   "qa",
	Short: "Run the QA strategist across repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		orch, err := a.orchestrator()
		if err != nil {
			return err
		}

		res, err := orch.RunQAStrategist(cmd.Context())
		if err != nil {
			return err
		}
		printJSON(res)
		return exitFor(res.State == committee.StateEvidenceValid)
	},
}

func init() {
	committeeCmd.AddCommand(committeeRepoCmd, committeeAllCmd, committeeIntegrationCmd, committeeQACmd)
}
