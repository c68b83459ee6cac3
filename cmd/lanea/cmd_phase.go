package main

import (
	"github.com/spf13/cobra"
)

var (
	flagPhaseSession string
	flagPhaseBy      string
	flagPhaseNotes   string
)

var phaseCmd = &cobra.Command{
	Use:   "phase",
	Short: "Drive the reverse/forward phase lifecycle",
	Long: `Manages the two-phase lifecycle and its forward prerequisites.

Examples:
  lanea phase kickoff reverse
  lanea phase close reverse --by alice
  lanea phase confirm-v1 --by alice
  lanea phase kickoff forward
  lanea phase refresh
  lanea phase show`,
}

var phaseKickoffCmd = &cobra.Command{
	Use:   "kickoff <reverse|forward>",
	Short: "Kick off a phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		switch args[0] {
		case "reverse":
			res, err := a.phase.KickoffReverse(flagPhaseSession)
			if err != nil {
				return err
			}
			printJSON(res)
			return exitFor(res.OK)
		case "forward":
			res, reasons, err := a.phase.KickoffForward(flagPhaseSession)
			if err != nil {
				return err
			}
			printJSON(map[string]any{"ok": res.OK, "message": res.Message, "reasons": reasons})
			return exitFor(res.OK)
		default:
			return cmd.Usage()
		}
	},
}

var phaseCloseCmd = &cobra.Command{
	Use:   "close <reverse|forward>",
	Short: "Close a phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		res, err := a.phase.Close(args[0], flagPhaseBy, flagPhaseNotes)
		if err != nil {
			return err
		}
		printJSON(res)
		return exitFor(res.OK)
	},
}

var phaseConfirmV1Cmd = &cobra.Command{
	Use:   "confirm-v1",
	Short: "Record the human v1 confirmation",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		res, err := a.phase.ConfirmV1(flagPhaseBy, flagPhaseNotes)
		if err != nil {
			return err
		}
		printJSON(res)
		return exitFor(res.OK)
	},
}

var phaseRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute scan and sufficiency prerequisites",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		state, err := a.phase.RefreshPrereqs(cmd.Context())
		if err != nil {
			return err
		}
		printJSON(state)
		return nil
	},
}

var phaseShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the phase state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		state, err := a.phase.Load()
		if err != nil {
			return err
		}
		printJSON(state)
		return nil
	},
}

func init() {
	phaseCmd.PersistentFlags().StringVar(&flagPhaseSession, "session", "", "session id to record on the phase")
	phaseCmd.PersistentFlags().StringVar(&flagPhaseBy, "by", "", "human driving the transition")
	phaseCmd.PersistentFlags().StringVar(&flagPhaseNotes, "notes", "", "notes to record")
	phaseCmd.AddCommand(phaseKickoffCmd, phaseCloseCmd, phaseConfirmV1Cmd, phaseRefreshCmd, phaseShowCmd)
}
