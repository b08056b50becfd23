package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"voicelink/internal/config"
	"voicelink/internal/domain"
	"voicelink/internal/intentstore"
)

// sendFlags carries the return-target hints the extension side knows about
// itself at the moment it hands off to the host.
type sendFlags struct {
	payload     string
	hostBundle  string
	hostPID     int
	hostProcess string
}

func newSendCommand() *cobra.Command {
	flags := &sendFlags{}

	cmd := &cobra.Command{
		Use:       "send <voice|voice-control|settings>",
		Short:     "Queue an intent for the host",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"voice", "voice-control", "settings"},
		RunE: func(_ *cobra.Command, args []string) error {
			kind, err := intentKind(args[0])
			if err != nil {
				return err
			}
			return sendIntent(kind, flags)
		},
	}

	cmd.Flags().StringVar(&flags.payload, "payload", "", "intent payload (e.g. undo)")
	cmd.Flags().StringVar(&flags.hostBundle, "host-bundle", "", "application id to return focus to")
	cmd.Flags().IntVar(&flags.hostPID, "host-pid", 0, "process id to return focus to")
	cmd.Flags().StringVar(&flags.hostProcess, "host-process-name", "", "process name to return focus to")
	return cmd
}

func intentKind(name string) (domain.IntentKind, error) {
	switch name {
	case "voice":
		return domain.IntentKindVoice, nil
	case "voice-control":
		return domain.IntentKindVoiceControl, nil
	case "settings":
		return domain.IntentKindSettings, nil
	}
	return "", fmt.Errorf("unknown intent %q", name)
}

func sendIntent(kind domain.IntentKind, flags *sendFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := intentstore.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}

	target := domain.ReturnTarget{
		BundleID:    flags.hostBundle,
		PID:         flags.hostPID,
		ProcessName: flags.hostProcess,
	}
	// Capture the target before the intent so the host never consumes an
	// intent whose return routing has not landed yet.
	if !target.IsZero() {
		if err := store.SetReturnTarget(target); err != nil {
			return err
		}
	}

	if err := store.SetPendingIntent(domain.PendingIntent{
		Kind:      kind,
		Payload:   flags.payload,
		CreatedAt: time.Now(),
	}); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "queued %s intent\n", kind)
	return nil
}
