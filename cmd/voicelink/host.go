package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voicelink/internal/bootstrap"
	"voicelink/internal/config"
	"voicelink/internal/domain"
	"voicelink/internal/logging"
)

func newHostCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Run the dictation host daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHost(cmd.Context())
		},
	}
}

func runHost(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(debugFlag || cfg.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	services, err := bootstrap.BuildWith(cfg, logSink{log: log}, log)
	if err != nil {
		return err
	}
	defer services.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go services.Watcher.Run(ctx)

	log.Info("host started", zap.String("state_dir", services.Config.StateDir))
	services.Consumer.Run(ctx)
	log.Info("host stopped")
	return nil
}

// logSink reports session events through the process logger. The host is
// headless; logs are its only surface.
type logSink struct {
	log *zap.Logger
}

func (s logSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	s.log.Info("session state",
		zap.String("state", string(state)),
		zap.String("reason", string(reason)))
}

func (s logSink) PartialTranscript(text string) {
	s.log.Debug("partial transcript", zap.Int("length", len(text)))
}

func (s logSink) FinalTranscript(raw, final string) {
	s.log.Info("final transcript",
		zap.Int("raw_length", len(raw)),
		zap.Int("final_length", len(final)))
}

func (s logSink) SessionError(code domain.ErrorCode, detail string) {
	s.log.Warn("session error",
		zap.String("code", string(code)),
		zap.String("detail", detail))
}
