package bootstrap

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"voicedeck/internal/config"
	"voicedeck/internal/domain"
	"voicedeck/internal/parse"
	"voicedeck/internal/ports"
	"voicedeck/internal/processing"
	"voicedeck/internal/recorder"
	"voicedeck/internal/reminders"
	"voicedeck/internal/speech"
	"voicedeck/internal/speech/native"
)

// Services is the assembled runtime graph.
type Services struct {
	Machine   *recorder.Machine
	Store     *reminders.Store
	Scheduler *reminders.Scheduler
	Config    config.Config
	Logger    zerolog.Logger

	// Set when the browser engine is active; the app surface forwards
	// frontend speech events into them.
	SpeechBridge     *speech.Bridge
	PermissionBridge *speech.PermissionBridge
}

// Build wires all backend dependencies for the current runtime. The commander
// is only exercised by the browser engine; the native engine captures audio
// itself.
func Build(sink ports.EventSink, notifier ports.Notifier, commander speech.Commander) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger := newLogger(cfg.Log)

	normalizer, err := parse.NewNormalizer(cfg.Parser.RulesPath, cfg.Parser.RuleIterationLimit)
	if err != nil {
		return Services{}, err
	}
	parser := parse.NewParser(normalizer)

	store, err := reminders.NewStore(cfg.Reminders.StorePath, logger)
	if err != nil {
		return Services{}, err
	}
	scheduler := reminders.NewScheduler(store, notifier, cfg.Reminders.CheckInterval, logger)

	services := Services{
		Store:     store,
		Scheduler: scheduler,
		Config:    cfg,
		Logger:    logger,
	}

	var capture ports.SpeechCapture
	var permission ports.MicrophonePermission
	switch cfg.Speech.Engine {
	case config.EngineNative:
		capture = native.NewEngine(native.Config{
			Deepgram: cfg.Speech.Deepgram,
			Audio:    cfg.Speech.Audio,
		}, logger)
		permission = native.Permission{}
	default:
		bridge := speech.NewBridge(commander, logger)
		permissionBridge := speech.NewPermissionBridge(commander)
		services.SpeechBridge = bridge
		services.PermissionBridge = permissionBridge
		capture = bridge
		permission = permissionBridge
	}

	services.Machine = recorder.NewMachine(
		capture,
		permission,
		processing.NewBridge(parser, logger),
		sink,
		domain.Environment{OS: domain.OSDesktop},
		logger,
	)

	return services, nil
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}
