package main

import (
	"github.com/spf13/cobra"

	"lanea/internal/types"
)

var (
	flagMeetingKind  string
	flagMeetingBy    string
	flagMeetingNotes string
)

var meetingCmd = &cobra.Command{
	Use:   "meeting",
	Short: "Run review/update meetings",
	Long: `Drives the question-at-a-time review meeting subprotocol.

Examples:
  lanea meeting start system --kind update
  lanea meeting continue UM-20260601_120000__system
  lanea meeting answer UM-20260601_120000__system "ship the intake flow first" --by alice
  lanea meeting close UM-20260601_120000__system approve_intake --by alice`,
}

var meetingStartCmd = &cobra.Command{
	Use:   "start <scope>",
	Short: "Start a meeting for a scope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		mgr, err := a.meetings()
		if err != nil {
			return err
		}

		sess, err := mgr.Start(cmd.Context(), args[0], flagMeetingKind)
		if err != nil {
			return err
		}
		printJSON(sess)
		return nil
	},
}

var meetingContinueCmd = &cobra.Command{
	Use:   "continue <meeting-id>",
	Short: "Advance a meeting by one step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		mgr, err := a.meetings()
		if err != nil {
			return err
		}

		sess, err := mgr.Continue(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJSON(sess)
		return nil
	},
}

var meetingAnswerCmd = &cobra.Command{
	Use:   "answer <meeting-id> <answer-text>",
	Short: "Answer the pending question",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		mgr, err := a.meetings()
		if err != nil {
			return err
		}

		sess, err := mgr.Answer(args[0], args[1], flagMeetingBy)
		if err != nil {
			return err
		}
		printJSON(sess)
		return nil
	},
}

var meetingCloseCmd = &cobra.Command{
	Use:   "close <meeting-id> <decision>",
	Short: "Close a meeting with a decision",
	Long: `Closes a meeting. Update meetings accept approve_intake, revise_scans,
open_decisions, abort, bump_patch, bump_minor, bump_major, no_bump.
Review meetings accept confirm_sufficiency, reject_sufficiency, defer.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		mgr, err := a.meetings()
		if err != nil {
			return err
		}

		res, err := mgr.Close(cmd.Context(), args[0], args[1], flagMeetingBy, flagMeetingNotes)
		if err != nil {
			return err
		}
		printJSON(res)
		return exitFor(res.OK)
	},
}

var crCmd = &cobra.Command{
	Use:   "cr",
	Short: "File and list change requests",
}

var (
	flagCRType     string
	flagCRSeverity string
)

var crFileCmd = &cobra.Command{
	Use:   "file <id> <scope> <title>",
	Short: "File a change request",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		cr, err := a.crs.File(args[0], flagCRType, args[2], flagCRSeverity, args[1])
		if err != nil {
			return err
		}
		printJSON(cr)
		return nil
	},
}

var crListCmd = &cobra.Command{
	Use:   "list",
	Short: "List change requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		list, err := a.crs.List()
		if err != nil {
			return err
		}
		printJSON(list)
		return nil
	},
}

func init() {
	meetingStartCmd.Flags().StringVar(&flagMeetingKind, "kind", types.MeetingKindUpdate, "meeting kind: update or review")
	meetingCmd.PersistentFlags().StringVar(&flagMeetingBy, "by", "", "human answering or deciding")
	meetingCmd.PersistentFlags().StringVar(&flagMeetingNotes, "notes", "", "notes recorded with the close decision")
	meetingCmd.AddCommand(meetingStartCmd, meetingContinueCmd, meetingAnswerCmd, meetingCloseCmd)

	crFileCmd.Flags().StringVar(&flagCRType, "type", "change", "change request type")
	crFileCmd.Flags().StringVar(&flagCRSeverity, "severity", "medium", "severity: low, medium, high")
	crCmd.AddCommand(crFileCmd, crListCmd)
}
