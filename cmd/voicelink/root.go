package main

import (
	"github.com/spf13/cobra"
)

var debugFlag bool

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "voicelink",
		Short:         "Voice dictation handoff between an input extension and its host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(newHostCommand())
	root.AddCommand(newSendCommand())
	root.AddCommand(newOpenCommand())
	root.AddCommand(newUndoCommand())
	return root
}
