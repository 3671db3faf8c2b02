package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"vocalwrite/internal/bootstrap"
	"vocalwrite/internal/domain"
	"vocalwrite/internal/usecase"
)

const (
	eventTranscript = "vocalwrite:transcript"
	eventInterim    = "vocalwrite:interim"
	eventRecording  = "vocalwrite:recording"
	eventLevel      = "vocalwrite:level"
	eventError      = "vocalwrite:error"
	eventCompleted  = "vocalwrite:completed"
	eventDuration   = "vocalwrite:duration"
	eventPolish     = "vocalwrite:polish"
	eventPolished   = "vocalwrite:polished"

	defaultHistoryLimit = 50
)

// App is the Wails application root.
type App struct {
	ctx  context.Context
	emit func(ctx context.Context, name string, data ...interface{})

	services *bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsClipboard{})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.services = services
}

func (a *App) shutdown(_ context.Context) {
	if a.services == nil {
		return
	}
	if err := a.services.Close(); err != nil {
		a.services.Logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}
}

// StartRecording opens the microphone and the recognition connection.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Start(a.ctx); err != nil {
		if errors.Is(err, usecase.ErrStartCancelled) {
			return a.services.Controller.Status(), nil
		}
		return domain.Status{}, err
	}
	return a.services.Controller.Status(), nil
}

// StopRecording ends the recording; the final transcript arrives as events.
func (a *App) StopRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.services.Controller.Stop()
	return a.services.Controller.Status(), nil
}

// ToggleRecording starts when idle and stops otherwise.
func (a *App) ToggleRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Toggle(a.ctx); err != nil && !errors.Is(err, usecase.ErrStartCancelled) {
		return domain.Status{}, err
	}
	return a.services.Controller.Status(), nil
}

func (a *App) PauseRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.services.Controller.Pause()
	return a.services.Controller.Status(), nil
}

func (a *App) ResumeRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.services.Controller.Resume()
	return a.services.Controller.Status(), nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.services == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateIdle, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle}
	}
	return a.services.Controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	signing := "local"
	if cfg.Backend.URL != "" {
		signing = cfg.Backend.URL
	}
	return map[string]string{
		"provider":         "Tencent Cloud ASR",
		"engineModel":      cfg.Tencent.EngineModelType,
		"signing":          signing,
		"polishModel":      cfg.LLM.Model,
		"polishEnabled":    fmt.Sprintf("%t", cfg.Polish.Enabled),
		"audioBackend":     cfg.Audio.Backend,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"maxDuration":      cfg.Session.MaxDuration.String(),
	}
}

// ListHistory returns recent transcripts, newest first.
func (a *App) ListHistory(limit int) ([]domain.TranscriptRecord, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	if a.services.History == nil {
		return []domain.TranscriptRecord{}, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return a.services.History.List(a.ctx, limit)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) send(name string, payload any) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

func (a *App) TranscriptChanged(text string) {
	a.send(eventTranscript, map[string]string{"text": text})
}

func (a *App) InterimTranscriptChanged(text string) {
	a.send(eventInterim, map[string]string{"text": text})
}

func (a *App) RecordingStateChanged(recording bool) {
	a.send(eventRecording, map[string]bool{"recording": recording})
}

func (a *App) AudioLevelChanged(level float64) {
	a.send(eventLevel, map[string]float64{"level": level})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) StreamCompleted(transcript string) {
	a.send(eventCompleted, map[string]string{"text": transcript})
}

func (a *App) DurationChanged(elapsed time.Duration) {
	a.send(eventDuration, map[string]any{
		"elapsedMs": elapsed.Milliseconds(),
		"display":   formatElapsed(elapsed),
	})
}

func (a *App) PolishStateChanged(polishing bool) {
	a.send(eventPolish, map[string]bool{"polishing": polishing})
}

func (a *App) PolishedTranscript(raw string, polished string, copied bool) {
	a.send(eventPolished, map[string]any{
		"raw":      raw,
		"polished": polished,
		"copied":   copied,
	})
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAcquisition:
		return "Could not start recording"
	case domain.ErrorCodeProtocol:
		return "Speech recognition error"
	case domain.ErrorCodeTransport:
		return "Connection to the speech service was lost"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeDurationLimit:
		return "Recording limit reached"
	case domain.ErrorCodePolish:
		return "Polishing failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

// formatElapsed renders mm:ss.
func formatElapsed(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	total := int(elapsed / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
