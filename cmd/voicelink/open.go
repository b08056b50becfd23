package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"voicelink/internal/config"
	"voicelink/internal/deeplink"
	"voicelink/internal/intentstore"
)

func newOpenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Handle a voicelink:// deep link",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return openLink(args[0])
		},
	}
}

func openLink(raw string) error {
	link, err := deeplink.Parse(raw)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := intentstore.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}

	if !link.Target.IsZero() {
		if err := store.SetReturnTarget(link.Target); err != nil {
			return err
		}
	}
	if err := store.SetPendingIntent(link.Intent(time.Now())); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "queued %s intent from deep link\n", link.Route)
	return nil
}
