package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"voicedeck/internal/speech/native"
)

// EngineKind selects which speech capture implementation backs the recorder.
type EngineKind string

const (
	// EngineBrowser delegates capture to the recognition engine running in
	// the frontend webview.
	EngineBrowser EngineKind = "browser"
	// EngineNative captures the microphone with ffmpeg and streams audio to
	// Deepgram directly.
	EngineNative EngineKind = "native"
)

// Config stores runtime configuration. Values come from an optional yaml
// file, overridden by environment variables.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Speech    SpeechConfig    `yaml:"speech"`
	Reminders RemindersConfig `yaml:"reminders"`
	Parser    ParserConfig    `yaml:"parser"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type SpeechConfig struct {
	Engine   EngineKind            `yaml:"engine"`
	Deepgram native.DeepgramConfig `yaml:"deepgram"`
	Audio    native.AudioConfig    `yaml:"audio"`
}

type RemindersConfig struct {
	StorePath     string        `yaml:"store_path"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

type ParserConfig struct {
	RulesPath          string `yaml:"rules_path"`
	RuleIterationLimit int    `yaml:"rule_iteration_limit"`
}

// Load resolves configuration from the yaml file, environment variables, and
// sensible defaults, in increasing order of precedence. The file path comes
// from VOICEDECK_CONFIG, falling back to ~/.config/voicedeck/config.yaml; a
// missing file is fine, a malformed one is not.
func Load() (Config, error) {
	cfg := defaults()

	path := strings.TrimSpace(os.Getenv("VOICEDECK_CONFIG"))
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".config", "voicedeck", "config.yaml")
		}
	}
	if path != "" {
		contents, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(contents, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %q: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Log:    LogConfig{Level: "info"},
		Speech: SpeechConfig{Engine: EngineBrowser},
		Reminders: RemindersConfig{
			StorePath:     filepath.Join(home, ".local", "share", "voicedeck", "reminders.json"),
			CheckInterval: 15 * time.Second,
		},
		Parser: ParserConfig{
			RulesPath:          filepath.Join(home, ".config", "voicedeck", "substitutions.rules"),
			RuleIterationLimit: 30,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Log.Level = envOrDefault("VOICEDECK_LOG_LEVEL", cfg.Log.Level)

	if engine := strings.TrimSpace(os.Getenv("VOICEDECK_SPEECH_ENGINE")); engine != "" {
		cfg.Speech.Engine = EngineKind(strings.ToLower(engine))
	}
	cfg.Speech.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", cfg.Speech.Deepgram.APIKey)
	cfg.Speech.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", cfg.Speech.Deepgram.APIBaseURL)
	cfg.Speech.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", cfg.Speech.Deepgram.Model)
	cfg.Speech.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", cfg.Speech.Deepgram.Language)
	cfg.Speech.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", cfg.Speech.Deepgram.SmartFormat)

	cfg.Speech.Audio.Command = envOrDefault("VOICEDECK_FFMPEG_COMMAND", cfg.Speech.Audio.Command)
	cfg.Speech.Audio.InputFormat = envOrDefault("VOICEDECK_AUDIO_INPUT_FORMAT", cfg.Speech.Audio.InputFormat)
	cfg.Speech.Audio.InputDevice = envOrDefault("VOICEDECK_AUDIO_INPUT_DEVICE", cfg.Speech.Audio.InputDevice)
	cfg.Speech.Audio.SampleRate = envOrDefaultInt("VOICEDECK_SAMPLE_RATE", cfg.Speech.Audio.SampleRate)
	cfg.Speech.Audio.Channels = envOrDefaultInt("VOICEDECK_CHANNELS", cfg.Speech.Audio.Channels)

	cfg.Reminders.StorePath = envOrDefault("VOICEDECK_REMINDERS_FILE", cfg.Reminders.StorePath)
	if ms := envOrDefaultInt("VOICEDECK_REMINDER_CHECK_MS", 0); ms > 0 {
		cfg.Reminders.CheckInterval = time.Duration(ms) * time.Millisecond
	}

	cfg.Parser.RulesPath = envOrDefault("VOICEDECK_RULES_FILE", cfg.Parser.RulesPath)
	cfg.Parser.RuleIterationLimit = envOrDefaultInt("VOICEDECK_RULE_ITERATION_LIMIT", cfg.Parser.RuleIterationLimit)
}

func normalize(cfg *Config) {
	if cfg.Speech.Engine != EngineNative {
		cfg.Speech.Engine = EngineBrowser
	}
	if cfg.Reminders.CheckInterval <= 0 {
		cfg.Reminders.CheckInterval = 15 * time.Second
	}
	if cfg.Parser.RuleIterationLimit <= 0 {
		cfg.Parser.RuleIterationLimit = 30
	}
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
