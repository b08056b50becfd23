// Package bootstrap assembles the runtime graph for the host process.
package bootstrap

import (
	"go.uber.org/zap"

	"voicelink/internal/audio"
	"voicelink/internal/audit"
	"voicelink/internal/config"
	"voicelink/internal/consumer"
	"voicelink/internal/insertion"
	"voicelink/internal/intentstore"
	"voicelink/internal/platform"
	"voicelink/internal/polish"
	"voicelink/internal/ports"
	"voicelink/internal/providers/deepgram"
	"voicelink/internal/resolver"
	"voicelink/internal/usecase"
	"voicelink/internal/vocab"
)

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Controller *usecase.SessionController
	Consumer   *consumer.Consumer
	Watcher    *intentstore.Watcher
	Store      *intentstore.Store
	Polish     *polish.Coordinator
	Audit      *audit.Store
}

// Close releases resources held by the graph.
func (s Services) Close() {
	if s.Audit != nil {
		s.Audit.Close()
	}
}

// Build wires all host dependencies from configuration.
func Build(eventSink ports.EventSink, log *zap.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWith(cfg, eventSink, log)
}

// BuildWith wires the graph from an explicit configuration.
func BuildWith(cfg config.Config, eventSink ports.EventSink, log *zap.Logger) (Services, error) {
	auditStore, err := audit.NewStore(cfg.StateDir)
	if err != nil {
		return Services{}, err
	}

	store, err := intentstore.NewStore(cfg.StateDir)
	if err != nil {
		auditStore.Close()
		return Services{}, err
	}

	watcher, err := intentstore.NewWatcher(store, log)
	if err != nil {
		auditStore.Close()
		return Services{}, err
	}

	vocabEngine, err := vocab.NewEngine(cfg.Vocab.RulesFile, cfg.Vocab.IterationLimit)
	if err != nil {
		auditStore.Close()
		return Services{}, err
	}

	var target ports.TextTarget = platform.UnavailableTarget{}
	if helper := platform.NewHelperTarget(cfg.Insertion.TargetCommand); helper != nil {
		target = helper
	}
	engine := insertion.NewEngine(target, platform.NewCommandTypist(cfg.Insertion.TypistCommand), auditStore, log)
	engine.SetRetryBackoff(cfg.Insertion.RetryBackoff)

	returnResolver := resolver.New(
		platform.NewDesktopAppDirectory(cfg.Resolver.ApplicationDirs),
		platform.NewProcTable(),
		platform.NewCommandActivator(cfg.Resolver.ActivateCommand, cfg.Resolver.YieldCommand, log),
		auditStore,
		log,
	)

	var polishProvider ports.PolishProvider
	if cfg.Polish.Enabled {
		client, err := polish.NewClient(polish.ClientConfig{
			BaseURL: cfg.Polish.BaseURL,
			APIKey:  cfg.Polish.AuthToken,
			Timeout: cfg.Polish.Timeout,
		})
		if err != nil {
			auditStore.Close()
			return Services{}, err
		}
		polishProvider = client
	}

	coordinator := polish.NewCoordinator(engine, returnResolver, nil, auditStore, log, polish.Options{
		Timeout:        cfg.Polish.Timeout,
		UndoTTL:        cfg.Polish.UndoTTL,
		RequireConfirm: cfg.Polish.RequireConfirmation,
	})

	controller := usecase.NewSessionController(
		audio.NewFFmpegCapture(cfg.Audio.RecorderCommand),
		deepgram.NewProvider(deepgram.Config{
			APIKey:     cfg.Deepgram.APIKey,
			APIBaseURL: cfg.Deepgram.APIBaseURL,
			Model:      cfg.Deepgram.Model,
		}),
		engine,
		vocabEngine,
		coordinator,
		polishProvider,
		returnResolver,
		store,
		eventSink,
		log,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: cfg.Deepgram.InterimResults,
				Language:       cfg.Deepgram.Language,
			},
			ChunkSize:         cfg.Session.ChunkSize,
			StreamingGrace:    cfg.Session.StreamingGrace,
			StreamingMode:     cfg.Session.StreamingMode,
			FastPathEnabled:   cfg.Session.FastPathEnabled,
			CorrectionEnabled: cfg.Polish.Enabled,
			ErrorRecovery:     cfg.Session.ErrorRecovery,
		},
	)

	intentConsumer := consumer.New(store, controller, coordinator, watcher.Ticks(), log, consumer.Options{
		PollInterval:  cfg.Consumer.PollInterval,
		MaxIntentAge:  cfg.Consumer.MaxIntentAge,
		IdleLogWindow: cfg.Consumer.IdleLogWindow,
	})

	return Services{
		Config:     cfg,
		Controller: controller,
		Consumer:   intentConsumer,
		Watcher:    watcher,
		Store:      store,
		Polish:     coordinator,
		Audit:      auditStore,
	}, nil
}
