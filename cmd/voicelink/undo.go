package main

import (
	"github.com/spf13/cobra"

	"voicelink/internal/domain"
)

func newUndoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Reverse the most recent automatic correction",
		RunE: func(_ *cobra.Command, _ []string) error {
			return sendIntent(domain.IntentKindVoiceControl, &sendFlags{payload: "undo"})
		},
	}
}
