package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lanea/internal/workstatus"
)

var (
	flagWorkNote    string
	flagWorkBlocked bool
	flagWorkReason  string
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Work status checkpoints",
	Long: `Tracks per-work-item stage transitions with rolling snapshots.

Examples:
  lanea work update w-1042 ROUTED --note "routed to platform team"
  lanea work show w-1042`,
}

var workUpdateCmd = &cobra.Command{
	Use:   "update <work-id> <stage>",
	Short: "Checkpoint a work item at a stage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		ws, err := a.work.Apply(args[0], workstatus.Update{
			Stage:          args[1],
			Note:           flagWorkNote,
			Blocked:        flagWorkBlocked,
			BlockingReason: flagWorkReason,
		})
		if err != nil {
			return err
		}
		printJSON(ws)
		return nil
	},
}

var workShowCmd = &cobra.Command{
	Use:   "show <work-id>",
	Short: "Show a work item's checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		ws, ok, err := a.work.Load(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("work item %s has no checkpoint", args[0])
		}
		printJSON(ws)
		return nil
	},
}

func init() {
	workUpdateCmd.Flags().StringVar(&flagWorkNote, "note", "", "note for the history entry")
	workUpdateCmd.Flags().BoolVar(&flagWorkBlocked, "blocked", false, "mark the work item blocked")
	workUpdateCmd.Flags().StringVar(&flagWorkReason, "reason", "", "blocking reason")
	workCmd.AddCommand(workUpdateCmd, workShowCmd)
}
