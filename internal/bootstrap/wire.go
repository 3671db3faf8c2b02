package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"vocalwrite/internal/audio"
	"vocalwrite/internal/audio/portaudio"
	"vocalwrite/internal/config"
	"vocalwrite/internal/history"
	"vocalwrite/internal/logging"
	"vocalwrite/internal/notify"
	"vocalwrite/internal/polish"
	"vocalwrite/internal/ports"
	"vocalwrite/internal/providers/tencent"
	"vocalwrite/internal/telemetry"
	"vocalwrite/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	History    ports.HistoryStore
	Logger     *slog.Logger

	closers []func() error
}

// Close stops recording and releases every owned resource.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Build wires all backend dependencies for the desktop runtime. The config
// file path is taken from VOCALWRITE_CONFIG when set.
func Build(eventSink ports.EventSink, clipboard ports.Clipboard) (*Services, error) {
	cfg, err := config.Load(os.Getenv("VOCALWRITE_CONFIG"))
	if err != nil {
		return nil, err
	}
	return BuildWithConfig(cfg, eventSink, clipboard)
}

func BuildWithConfig(cfg config.Config, eventSink ports.EventSink, clipboard ports.Clipboard) (*Services, error) {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	services := &Services{Config: cfg, Logger: logger}

	capture, err := newCapture(cfg.Audio)
	if err != nil {
		return nil, err
	}

	adapters := usecase.Adapters{
		Signer:    newSigner(cfg),
		Transport: tencent.NewTransport(logging.Component(logger, "recognition")),
		Capture:   capture,
		Polisher:  newPolisher(cfg, logger),
		Clipboard: clipboard,
	}

	if cfg.Audio.RecordDir != "" {
		adapters.Recorder = audio.NewWAVRecorder(cfg.Audio.RecordDir)
	}
	if cfg.Notify.Enabled {
		adapters.Notifier = notify.NewDesktop("VocalWrite", logging.Component(logger, "notify"))
	}

	if cfg.History.Enabled {
		store, err := history.Open(context.Background(), cfg.History.Path, logging.Component(logger, "history"))
		if err != nil {
			logger.Warn("history disabled", slog.String("path", cfg.History.Path), slog.String("error", err.Error()))
		} else {
			adapters.History = store
			services.History = store
			services.closers = append(services.closers, store.Close)
		}
	}

	tel, err := telemetry.Setup("vocalwrite", logging.Component(logger, "telemetry"))
	if err != nil {
		_ = services.Close()
		return nil, err
	}
	adapters.Metrics = tel
	services.closers = append(services.closers, func() error { return tel.Shutdown(context.Background()) })
	if bind := cfg.Telemetry.PrometheusBind; bind != "" {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := tel.Serve(ctx, bind); err != nil {
				logger.Warn("metrics listener stopped", slog.String("error", err.Error()))
			}
		}()
		services.closers = append(services.closers, func() error {
			cancel()
			<-done
			return nil
		})
	}

	services.Controller = usecase.NewSessionController(adapters, eventSink, usecase.Config{
		Session: usecase.SessionConfig{
			Audio: ports.AudioConfig{
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			FrameSize:    cfg.Audio.FrameSize,
			FrameQueue:   cfg.Session.FrameQueue,
			DrainTimeout: cfg.Session.DrainTimeout,
		},
		TickInterval: cfg.Session.TickInterval,
		MaxDuration:  cfg.Session.MaxDuration,
	}, logging.Component(logger, "session"))
	services.closers = append(services.closers, services.Controller.Close)

	logger.Info("services ready",
		slog.String("audio_backend", cfg.Audio.Backend),
		slog.Bool("remote_backend", cfg.Backend.URL != ""),
		slog.Bool("polish", adapters.Polisher != nil),
		slog.Bool("history", adapters.History != nil),
	)
	return services, nil
}

func newCapture(cfg config.AudioConfig) (ports.AudioCapture, error) {
	switch cfg.Backend {
	case "", "ffmpeg":
		return audio.NewFFMPEGCapture(cfg.FFMPEGCommand), nil
	case "portaudio":
		return portaudio.NewCapture(), nil
	default:
		return nil, fmt.Errorf("unsupported audio backend %q", cfg.Backend)
	}
}

func newSigner(cfg config.Config) ports.SignedURLSource {
	if cfg.Backend.URL != "" {
		return tencent.NewRemoteSigner(cfg.Backend.URL, cfg.Backend.APIKey, nil)
	}
	return tencent.NewLocalSigner(tencent.SignerConfig{
		AppID:           cfg.Tencent.AppID,
		SecretID:        cfg.Tencent.SecretID,
		SecretKey:       cfg.Tencent.SecretKey,
		Host:            cfg.Tencent.Host,
		EngineModelType: cfg.Tencent.EngineModelType,
		TTL:             cfg.Tencent.URLTTL,
	})
}

// newPolisher returns nil when polishing is disabled or has no credentials.
func newPolisher(cfg config.Config, logger *slog.Logger) ports.Polisher {
	if !cfg.Polish.Enabled {
		return nil
	}
	if cfg.Backend.URL != "" {
		return polish.NewRemotePolisher(cfg.Backend.URL, cfg.Backend.APIKey, nil)
	}
	if cfg.LLM.APIKey == "" {
		logger.Warn("polishing disabled: LLM_API_KEY is not set")
		return nil
	}
	return polish.NewChatPolisher(polish.ChatConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, nil, logging.Component(logger, "polish"))
}
