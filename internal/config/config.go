// Package config resolves runtime configuration from an optional YAML file
// and VOICELINK_* environment overrides.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores runtime configuration for the host and the sender CLI.
type Config struct {
	StateDir  string
	Debug     bool
	Deepgram  DeepgramConfig
	Audio     AudioConfig
	Vocab     VocabConfig
	Session   SessionConfig
	Consumer  ConsumerConfig
	Polish    PolishConfig
	Insertion InsertionConfig
	Resolver  ResolverConfig
}

type DeepgramConfig struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	Language       string
	InterimResults bool
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type VocabConfig struct {
	RulesFile      string
	IterationLimit int
}

type SessionConfig struct {
	ChunkSize       int
	StreamingGrace  time.Duration
	ErrorRecovery   time.Duration
	StreamingMode   bool
	FastPathEnabled bool
}

type ConsumerConfig struct {
	PollInterval  time.Duration
	MaxIntentAge  time.Duration
	IdleLogWindow time.Duration
}

type PolishConfig struct {
	Enabled             bool
	BaseURL             string
	AuthToken           string
	Timeout             time.Duration
	UndoTTL             time.Duration
	RequireConfirmation bool
}

type InsertionConfig struct {
	TargetCommand string
	TypistCommand string
	RetryBackoff  time.Duration
}

type ResolverConfig struct {
	ActivateCommand string
	YieldCommand    string
	ApplicationDirs []string
}

// Load reads `$XDG_CONFIG_HOME/voicelink/config.yaml` when present, applies
// VOICELINK_* environment overrides, and clamps values into sane ranges. A
// missing config file is the normal case.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir := configDir(); dir != "" {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix("VOICELINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	cfg := Config{
		StateDir: v.GetString("state_dir"),
		Debug:    v.GetBool("debug"),
		Deepgram: DeepgramConfig{
			APIKey:         strings.TrimSpace(v.GetString("deepgram.api_key")),
			APIBaseURL:     v.GetString("deepgram.api_base"),
			Model:          v.GetString("deepgram.model"),
			Language:       strings.TrimSpace(v.GetString("deepgram.language")),
			InterimResults: v.GetBool("deepgram.interim_results"),
		},
		Audio: AudioConfig{
			RecorderCommand: v.GetString("audio.recorder_command"),
			InputFormat:     v.GetString("audio.input_format"),
			InputDevice:     v.GetString("audio.input_device"),
			SampleRate:      v.GetInt("audio.sample_rate"),
			Channels:        v.GetInt("audio.channels"),
		},
		Vocab: VocabConfig{
			RulesFile:      v.GetString("vocab.rules_file"),
			IterationLimit: v.GetInt("vocab.iteration_limit"),
		},
		Session: SessionConfig{
			ChunkSize:       v.GetInt("session.chunk_size"),
			StreamingGrace:  v.GetDuration("session.streaming_grace"),
			ErrorRecovery:   v.GetDuration("session.error_recovery"),
			StreamingMode:   v.GetBool("session.streaming_mode"),
			FastPathEnabled: v.GetBool("session.fast_path"),
		},
		Consumer: ConsumerConfig{
			PollInterval:  v.GetDuration("consumer.poll_interval"),
			MaxIntentAge:  v.GetDuration("consumer.max_intent_age"),
			IdleLogWindow: v.GetDuration("consumer.idle_log_window"),
		},
		Polish: PolishConfig{
			Enabled:             v.GetBool("polish.enabled"),
			BaseURL:             strings.TrimSpace(v.GetString("polish.base_url")),
			AuthToken:           strings.TrimSpace(v.GetString("polish.auth_token")),
			Timeout:             v.GetDuration("polish.timeout"),
			UndoTTL:             v.GetDuration("polish.undo_ttl"),
			RequireConfirmation: v.GetBool("polish.require_confirmation"),
		},
		Insertion: InsertionConfig{
			TargetCommand: v.GetString("insertion.target_command"),
			TypistCommand: v.GetString("insertion.typist_command"),
			RetryBackoff:  v.GetDuration("insertion.retry_backoff"),
		},
		Resolver: ResolverConfig{
			ActivateCommand: v.GetString("resolver.activate_command"),
			YieldCommand:    v.GetString("resolver.yield_command"),
			ApplicationDirs: v.GetStringSlice("resolver.application_dirs"),
		},
	}

	clamp(&cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("state_dir", defaultStateDir())
	v.SetDefault("debug", false)

	v.SetDefault("deepgram.api_base", "wss://api.deepgram.com/v1/listen")
	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.interim_results", true)

	v.SetDefault("audio.recorder_command", "ffmpeg")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)

	if dir := configDir(); dir != "" {
		v.SetDefault("vocab.rules_file", filepath.Join(dir, "vocab.rules"))
	}
	v.SetDefault("vocab.iteration_limit", 10)

	v.SetDefault("session.chunk_size", 4096)
	v.SetDefault("session.streaming_grace", time.Second)
	v.SetDefault("session.error_recovery", 3*time.Second)
	v.SetDefault("session.streaming_mode", true)
	v.SetDefault("session.fast_path", true)

	v.SetDefault("consumer.poll_interval", 750*time.Millisecond)
	v.SetDefault("consumer.max_intent_age", 30*time.Second)
	v.SetDefault("consumer.idle_log_window", time.Minute)

	v.SetDefault("polish.enabled", false)
	v.SetDefault("polish.timeout", 12*time.Second)
	v.SetDefault("polish.undo_ttl", 180*time.Second)
	v.SetDefault("polish.require_confirmation", false)

	v.SetDefault("insertion.retry_backoff", 150*time.Millisecond)

	v.SetDefault("resolver.activate_command", "gtk-launch")
	v.SetDefault("resolver.application_dirs", defaultApplicationDirs())
}

func clamp(cfg *Config) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Vocab.IterationLimit <= 0 {
		cfg.Vocab.IterationLimit = 10
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.StreamingGrace < 0 {
		cfg.Session.StreamingGrace = 0
	}
	if cfg.Session.ErrorRecovery <= 0 {
		cfg.Session.ErrorRecovery = 3 * time.Second
	}
	if cfg.Consumer.PollInterval < 100*time.Millisecond {
		cfg.Consumer.PollInterval = 750 * time.Millisecond
	}
	if cfg.Consumer.MaxIntentAge <= 0 {
		cfg.Consumer.MaxIntentAge = 30 * time.Second
	}
	if cfg.Polish.Timeout <= 0 {
		cfg.Polish.Timeout = 12 * time.Second
	}
	if cfg.Polish.UndoTTL <= 0 {
		cfg.Polish.UndoTTL = 180 * time.Second
	}
	if cfg.Insertion.RetryBackoff < 0 {
		cfg.Insertion.RetryBackoff = 150 * time.Millisecond
	}
	if cfg.Polish.Enabled && cfg.Polish.BaseURL == "" {
		cfg.Polish.Enabled = false
	}
}

func configDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "voicelink")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voicelink")
}

func defaultStateDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "voicelink")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(home, ".local", "state", "voicelink")
}

func defaultApplicationDirs() []string {
	dirs := []string{"/usr/share/applications", "/usr/local/share/applications"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "applications"))
	}
	return dirs
}
