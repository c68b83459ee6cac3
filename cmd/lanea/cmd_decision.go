package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lanea/internal/types"
)

var decisionCmd = &cobra.Command{
	Use:   "decision",
	Short: "List and answer decision packets",
	Long: `Decision packets escalate automation blocks to humans.

Examples:
  lanea decision list system
  lanea decision answer 1a2b3c4d5e6f7a8b q1="rescan"`,
}

var decisionListCmd = &cobra.Command{
	Use:   "list [scope]",
	Short: "List open decision packets for a scope",
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
		open, err := a.decisions.ListOpen(scope)
		if err != nil {
			return err
		}
		printJSON(open)
		return nil
	},
}

var decisionAnswerCmd = &cobra.Command{
	Use:   "answer <decision-id> <qid=answer>...",
	Short: "Answer every question on an open packet",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		answers := map[string]string{}
		for _, pair := range args[1:] {
			qid, body, found := strings.Cut(pair, "=")
			if !found {
				return fmt.Errorf("answer %q is not qid=answer", pair)
			}
			answers[qid] = body
		}

		res, err := a.decisions.Answer(args[0], answers)
		if err != nil {
			return err
		}
		printJSON(res)
		return exitFor(res.OK)
	},
}

func init() {
	decisionCmd.AddCommand(decisionListCmd, decisionAnswerCmd)
}
