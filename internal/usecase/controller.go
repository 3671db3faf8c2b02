package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vocalwrite/internal/domain"
	"vocalwrite/internal/ports"
)

// Config controls recording behavior.
type Config struct {
	Session      SessionConfig
	TickInterval time.Duration
	MaxDuration  time.Duration
}

// Adapters are the outer-layer collaborators of the controller. Polisher,
// Clipboard, History, Notifier, Recorder and Metrics are optional.
type Adapters struct {
	Signer    ports.SignedURLSource
	Transport ports.RecognitionTransport
	Capture   ports.AudioCapture
	Polisher  ports.Polisher
	Clipboard ports.Clipboard
	History   ports.HistoryStore
	Notifier  ports.Notifier
	Recorder  ports.AudioRecorder
	Metrics   ports.SessionMetrics
}

// SessionController ties the recognition session to the duration guard and
// the transcript finalizer, and relays session callbacks to the UI.
type SessionController struct {
	session   *RecognitionSession
	guard     *DurationGuard
	finalizer transcriptFinalizer
	events    ports.EventSink
	notifier  ports.Notifier
	logger    *slog.Logger
	limit     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	startedAt time.Time
	now       func() time.Time
}

func NewSessionController(adapters Adapters, events ports.EventSink, cfg Config, logger *slog.Logger) *SessionController {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaultMaxDuration
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &SessionController{
		events:   events,
		notifier: adapters.Notifier,
		logger:   logger,
		limit:    cfg.MaxDuration,
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
	c.finalizer = transcriptFinalizer{
		polisher:  adapters.Polisher,
		clipboard: adapters.Clipboard,
		history:   adapters.History,
		notifier:  adapters.Notifier,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
	c.guard = NewDurationGuard(cfg.TickInterval, cfg.MaxDuration, events.DurationChanged, c.durationLimitReached)

	opts := []SessionOption{WithLogger(logger), WithMetrics(adapters.Metrics)}
	if adapters.Recorder != nil {
		opts = append(opts, WithRecorder(adapters.Recorder))
	}
	c.session = NewRecognitionSession(adapters.Signer, adapters.Transport, adapters.Capture, c, cfg.Session, opts...)
	return c
}

// Start begins recording.
func (c *SessionController) Start(ctx context.Context) error {
	return c.session.Start(ctx)
}

// Stop ends recording; the transcript is finalized when the backend completes.
func (c *SessionController) Stop() {
	c.session.Stop()
}

// Toggle starts recording when idle and stops it otherwise.
func (c *SessionController) Toggle(ctx context.Context) error {
	if c.session.Status().State == domain.SessionStateIdle {
		return c.session.Start(ctx)
	}
	c.session.Stop()
	return nil
}

func (c *SessionController) Pause() {
	c.session.Pause()
}

func (c *SessionController) Resume() {
	c.session.Resume()
}

// Status returns the current session status.
func (c *SessionController) Status() domain.Status {
	return c.session.Status()
}

func (c *SessionController) CurrentTranscript() string {
	return c.session.CurrentTranscript()
}

// Close stops any recording and waits for pending finalization.
func (c *SessionController) Close() error {
	err := c.session.Close()
	c.guard.Stop()
	c.cancel()
	c.wg.Wait()
	return err
}

func (c *SessionController) TranscriptChanged(text string) {
	c.events.TranscriptChanged(text)
}

func (c *SessionController) InterimTranscriptChanged(text string) {
	c.events.InterimTranscriptChanged(text)
}

func (c *SessionController) RecordingStateChanged(recording bool) {
	c.mu.Lock()
	if recording {
		c.startedAt = c.now()
	}
	c.mu.Unlock()

	if recording {
		c.guard.Start()
	} else {
		c.guard.Stop()
	}
	c.events.RecordingStateChanged(recording)
}

func (c *SessionController) AudioLevelChanged(level float64) {
	c.events.AudioLevelChanged(level)
}

func (c *SessionController) SessionError(code domain.ErrorCode, detail string) {
	c.events.SessionError(code, detail)
}

// StreamCompleted hands the transcript to the finalizer off the session loop.
func (c *SessionController) StreamCompleted(transcript string) {
	c.events.StreamCompleted(transcript)

	c.mu.Lock()
	elapsed := c.now().Sub(c.startedAt)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		result, ok := c.finalizer.Finalize(c.ctx, transcript, elapsed)
		if !ok || result.Polished == "" {
			return
		}
		c.events.PolishedTranscript(result.Raw, result.Polished, result.Copied)
	}()
}

func (c *SessionController) durationLimitReached() {
	c.logger.Warn("recording duration limit reached", slog.Duration("limit", c.limit))
	c.session.Stop()

	message := fmt.Sprintf("recording stopped after reaching the %s limit", formatLimit(c.limit))
	c.events.SessionError(domain.ErrorCodeDurationLimit, message)
	if c.notifier != nil {
		if err := c.notifier.Notify("VocalWrite", message); err != nil {
			c.logger.Debug("notification failed", slog.String("error", err.Error()))
		}
	}
}

func formatLimit(limit time.Duration) string {
	if limit >= time.Minute && limit%time.Minute == 0 {
		return fmt.Sprintf("%d minute", int(limit/time.Minute))
	}
	return limit.String()
}
