package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vocalwrite/internal/domain"
	"vocalwrite/internal/ports"
)

var (
	// ErrStartCancelled is returned by Start when the attempt was torn down
	// before the connection opened.
	ErrStartCancelled = errors.New("recording start cancelled")
	// ErrSessionClosed is returned once the session has been closed.
	ErrSessionClosed = errors.New("recognition session closed")
)

const (
	defaultFrameQueue   = 64
	defaultDrainTimeout = 5 * time.Second
)

// SessionConfig controls a RecognitionSession.
type SessionConfig struct {
	Audio        ports.AudioConfig
	FrameSize    int
	FrameQueue   int
	DrainTimeout time.Duration
}

// SessionOption customises optional collaborators.
type SessionOption func(*RecognitionSession)

// WithRecorder writes every forwarded frame to a per-recording tap.
func WithRecorder(recorder ports.AudioRecorder) SessionOption {
	return func(s *RecognitionSession) { s.recorder = recorder }
}

// WithMetrics records session counters.
func WithMetrics(metrics ports.SessionMetrics) SessionOption {
	return func(s *RecognitionSession) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *RecognitionSession) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// RecognitionSession streams one recording at a time to the recognition
// backend. All state is owned by a single loop goroutine; public methods post
// commands into it. Sink callbacks run on that goroutine and must not call
// back into the session synchronously.
type RecognitionSession struct {
	signer    ports.SignedURLSource
	transport ports.RecognitionTransport
	capture   ports.AudioCapture
	sink      ports.RecognitionSink
	recorder  ports.AudioRecorder
	metrics   ports.SessionMetrics
	logger    *slog.Logger
	cfg       SessionConfig

	now   func() time.Time
	newID func() string

	inbox  chan any
	frames chan taggedFrame

	baseCtx    context.Context
	baseCancel context.CancelFunc
	closeOnce  sync.Once
	quit       chan struct{}
	done       chan struct{}

	// Loop-owned state below.
	state        domain.SessionState
	attempt      uint64
	sessionID    string
	startedAt    time.Time
	recording    bool
	paused       bool
	pendingStart chan error
	ctx          context.Context
	cancel       context.CancelFunc
	conn         ports.RecognitionConn
	audio        ports.AudioSource
	tap          ports.FrameTap
	drainTimer   *time.Timer
	transcript   transcriptState
}

func NewRecognitionSession(
	signer ports.SignedURLSource,
	transport ports.RecognitionTransport,
	capture ports.AudioCapture,
	sink ports.RecognitionSink,
	cfg SessionConfig,
	opts ...SessionOption,
) *RecognitionSession {
	if cfg.FrameQueue <= 0 {
		cfg.FrameQueue = defaultFrameQueue
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := &RecognitionSession{
		signer:     signer,
		transport:  transport,
		capture:    capture,
		sink:       sink,
		metrics:    noopMetrics{},
		logger:     slog.New(slog.DiscardHandler),
		cfg:        cfg,
		now:        time.Now,
		newID:      uuid.NewString,
		inbox:      make(chan any),
		frames:     make(chan taggedFrame, cfg.FrameQueue),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		state:      domain.SessionStateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.run()
	return s
}

// Start begins a recording and returns once audio is streaming. It is a
// no-op while a recording is already in progress. If ctx ends first the
// attempt is abandoned and ctx.Err() is returned.
func (s *RecognitionSession) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if !s.post(startCmd{reply: reply}) {
		return ErrSessionClosed
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
	}

	s.post(cancelStartCmd{reply: reply})
	if err := <-reply; err != nil {
		return ctx.Err()
	}
	return nil
}

// Stop ends the recording. The microphone is released at once while the
// connection stays open until the backend sends its final result.
func (s *RecognitionSession) Stop() {
	s.call(s.handleStop)
}

// Pause stops forwarding audio without releasing the microphone.
func (s *RecognitionSession) Pause() {
	s.call(func() { s.setPaused(true) })
}

// Resume undoes Pause.
func (s *RecognitionSession) Resume() {
	s.call(func() { s.setPaused(false) })
}

// CurrentTranscript returns the accumulated stable transcript.
func (s *RecognitionSession) CurrentTranscript() string {
	var out string
	s.call(func() { out = s.transcript.final })
	return out
}

// Status returns a snapshot of the session.
func (s *RecognitionSession) Status() domain.Status {
	status := domain.Status{State: domain.SessionStateIdle}
	s.call(func() {
		status = domain.Status{
			State:      s.state,
			SessionID:  s.sessionID,
			Recording:  s.recording,
			Paused:     s.paused,
			Transcript: s.transcript.final,
			Interim:    s.transcript.interim,
		}
	})
	return status
}

// Close tears down any active attempt and stops the loop.
func (s *RecognitionSession) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
	s.baseCancel()
	return nil
}

func (s *RecognitionSession) post(ev any) bool {
	select {
	case s.inbox <- ev:
		return true
	case <-s.quit:
		return false
	}
}

func (s *RecognitionSession) call(fn func()) bool {
	done := make(chan struct{})
	if !s.post(callCmd{fn: fn, done: done}) {
		return false
	}
	<-done
	return true
}

func (s *RecognitionSession) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			s.cleanup()
			return
		case f := <-s.frames:
			s.handleFrame(f)
		case ev := <-s.inbox:
			s.dispatch(ev)
		}
	}
}

func (s *RecognitionSession) dispatch(ev any) {
	switch ev := ev.(type) {
	case callCmd:
		ev.fn()
		close(ev.done)
	case startCmd:
		s.handleStart(ev.reply)
	case cancelStartCmd:
		if s.pendingStart == ev.reply {
			s.logger.Info("start abandoned by caller", slog.String("session_id", s.sessionID))
			s.cleanup()
		}
	case signedEvent:
		s.handleSigned(ev)
	case connectedEvent:
		s.handleConnected(ev)
	case micEvent:
		s.handleMic(ev)
	case messageEvent:
		s.handleMessage(ev)
	case closedEvent:
		s.handleClosed(ev)
	case pumpEndedEvent:
		s.handlePumpEnded(ev)
	case drainTimeoutEvent:
		s.handleDrainTimeout(ev)
	}
}

func (s *RecognitionSession) handleStart(reply chan error) {
	if s.state != domain.SessionStateIdle {
		reply <- nil
		return
	}

	s.transcript.reset()
	s.sink.TranscriptChanged("")
	s.sink.InterimTranscriptChanged("")

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.ctx = ctx
	s.cancel = cancel
	s.state = domain.SessionStateConnecting
	s.sessionID = s.newID()
	s.startedAt = s.now()
	s.pendingStart = reply
	s.metrics.SessionStarted(s.baseCtx)
	s.logger.Info("session connecting", slog.String("session_id", s.sessionID))

	attempt := s.attempt
	go func() {
		url, err := s.signer.SignedURL(ctx)
		s.post(signedEvent{attempt: attempt, url: url, err: err})
	}()
}

func (s *RecognitionSession) handleSigned(ev signedEvent) {
	if ev.attempt != s.attempt {
		return
	}
	if ev.err != nil {
		s.fail(domain.ErrorCodeAcquisition, fmt.Errorf("request signed url: %w", ev.err))
		return
	}

	ctx := s.ctx
	attempt := s.attempt
	go func() {
		conn, err := s.transport.Dial(ctx, ev.url)
		if !s.post(connectedEvent{attempt: attempt, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
	go func() {
		source, err := s.capture.Start(ctx, s.cfg.Audio)
		if !s.post(micEvent{attempt: attempt, source: source, err: err}) && source != nil {
			_ = source.Stop()
		}
	}()
}

func (s *RecognitionSession) handleConnected(ev connectedEvent) {
	if ev.attempt != s.attempt {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	if ev.err != nil {
		s.fail(domain.ErrorCodeTransport, fmt.Errorf("connect recognition backend: %w", ev.err))
		return
	}

	s.conn = ev.conn
	go s.forwardMessages(s.attempt, ev.conn)

	if s.recorder != nil {
		tap, err := s.recorder.Open(s.sessionID)
		if err != nil {
			s.logger.Warn("recording tap unavailable", slog.String("session_id", s.sessionID), slog.String("error", err.Error()))
		} else {
			s.tap = tap
		}
	}

	s.state = domain.SessionStateStreaming
	s.recording = true
	s.sink.RecordingStateChanged(true)
	s.resolveStart(nil)
	s.logger.Info("session streaming", slog.String("session_id", s.sessionID))
}

func (s *RecognitionSession) handleMic(ev micEvent) {
	if ev.attempt != s.attempt {
		if ev.source != nil {
			_ = ev.source.Stop()
		}
		return
	}
	if ev.err != nil {
		s.fail(domain.ErrorCodeAcquisition, fmt.Errorf("acquire microphone: %w", ev.err))
		return
	}

	s.audio = ev.source
	attempt := s.attempt
	go pumpAudioFrames(attempt, ev.source, s.cfg.FrameSize, s.frames,
		func() {
			s.metrics.FrameDropped(s.baseCtx)
			s.logger.Warn("audio frame dropped", slog.Uint64("attempt", attempt))
		},
		func(err error) {
			s.post(pumpEndedEvent{attempt: attempt, source: ev.source, err: err})
		},
	)
}

func (s *RecognitionSession) handleFrame(f taggedFrame) {
	if f.attempt != s.attempt || s.audio == nil || s.state == domain.SessionStateStopping {
		return
	}
	s.sink.AudioLevelChanged(f.frame.Volume * 100)

	if s.state != domain.SessionStateStreaming || s.paused || s.conn == nil {
		return
	}
	pcm := f.frame.Bytes()
	if err := s.conn.SendAudio(pcm); err != nil {
		if errors.Is(err, ports.ErrConnClosed) {
			// The server hung up; its closed event finishes the session.
			s.logger.Debug("dropping frame after connection closed")
			return
		}
		s.fail(domain.ErrorCodeTransport, fmt.Errorf("send audio: %w", err))
		return
	}
	s.metrics.FrameSent(s.baseCtx, len(pcm))

	if s.tap != nil {
		if err := s.tap.WriteFrame(f.frame); err != nil {
			s.logger.Warn("recording tap failed", slog.String("session_id", s.sessionID), slog.String("error", err.Error()))
			_ = s.tap.Close()
			s.tap = nil
		}
	}
}

func (s *RecognitionSession) handleStop() {
	switch s.state {
	case domain.SessionStateConnecting:
		s.logger.Info("stop requested while connecting", slog.String("session_id", s.sessionID))
		s.cleanup()
	case domain.SessionStateStreaming:
		s.flushQueuedFrames()
		if s.state != domain.SessionStateStreaming {
			return
		}
		s.state = domain.SessionStateStopping
		s.releaseAudio()
		if s.conn == nil {
			s.cleanup()
			return
		}
		if err := s.conn.SendEnd(); err != nil {
			if errors.Is(err, ports.ErrConnClosed) {
				s.cleanup()
				return
			}
			s.fail(domain.ErrorCodeTransport, fmt.Errorf("send end of stream: %w", err))
			return
		}
		attempt := s.attempt
		s.drainTimer = time.AfterFunc(s.cfg.DrainTimeout, func() {
			s.post(drainTimeoutEvent{attempt: attempt})
		})
		s.logger.Info("session draining", slog.String("session_id", s.sessionID))
	}
}

func (s *RecognitionSession) setPaused(paused bool) {
	if s.state != domain.SessionStateStreaming {
		return
	}
	s.paused = paused
}

func (s *RecognitionSession) handleMessage(ev messageEvent) {
	if ev.attempt != s.attempt {
		return
	}

	msg := ev.event
	switch msg.Kind {
	case domain.RecognitionEventError:
		s.fail(domain.ErrorCodeProtocol, &domain.RecognitionError{Code: msg.Code, Message: msg.Message})
	case domain.RecognitionEventTranscript:
		if msg.Stable {
			s.transcript.appendStable(msg.Text)
			s.sink.TranscriptChanged(s.transcript.final)
			s.sink.InterimTranscriptChanged("")
			return
		}
		s.transcript.replaceInterim(msg.Text)
		s.sink.InterimTranscriptChanged(msg.Text)
	case domain.RecognitionEventFinal:
		s.sink.StreamCompleted(s.transcript.final)
		s.cleanup()
	}
}

func (s *RecognitionSession) handleClosed(ev closedEvent) {
	if ev.attempt != s.attempt {
		return
	}
	if ev.err != nil {
		s.fail(domain.ErrorCodeTransport, fmt.Errorf("recognition connection closed: %w", ev.err))
		return
	}
	s.cleanup()
}

func (s *RecognitionSession) handlePumpEnded(ev pumpEndedEvent) {
	if ev.attempt != s.attempt || s.audio == nil || s.audio != ev.source {
		return
	}
	err := ev.err
	if errors.Is(err, io.EOF) {
		err = errors.New("microphone stream ended")
	}
	s.fail(domain.ErrorCodeAudioStream, fmt.Errorf("audio capture: %w", err))
}

func (s *RecognitionSession) handleDrainTimeout(ev drainTimeoutEvent) {
	if ev.attempt != s.attempt || s.state != domain.SessionStateStopping {
		return
	}
	s.logger.Warn("final result not received before drain timeout",
		slog.String("session_id", s.sessionID),
		slog.Duration("timeout", s.cfg.DrainTimeout),
	)
	s.sink.StreamCompleted(s.transcript.final)
	s.cleanup()
}

func (s *RecognitionSession) forwardMessages(attempt uint64, conn ports.RecognitionConn) {
	for msg := range conn.Events() {
		if !s.post(messageEvent{attempt: attempt, event: msg}) {
			return
		}
	}
	s.post(closedEvent{attempt: attempt, err: conn.Wait()})
}

// flushQueuedFrames forwards frames captured before a stop request so the
// backend receives all audio ahead of the end-of-stream message.
func (s *RecognitionSession) flushQueuedFrames() {
	for {
		select {
		case f := <-s.frames:
			s.handleFrame(f)
		default:
			return
		}
	}
}

func (s *RecognitionSession) fail(code domain.ErrorCode, err error) {
	s.logger.Error("session failed",
		slog.String("session_id", s.sessionID),
		slog.String("code", string(code)),
		slog.String("error", err.Error()),
	)
	s.metrics.SessionError(s.baseCtx, code)
	s.sink.SessionError(code, err.Error())
	s.resolveStart(err)
	s.cleanup()
}

func (s *RecognitionSession) resolveStart(err error) {
	if s.pendingStart == nil {
		return
	}
	s.pendingStart <- err
	s.pendingStart = nil
}

func (s *RecognitionSession) releaseAudio() {
	if s.audio == nil {
		return
	}
	source := s.audio
	s.audio = nil
	if err := source.Stop(); err != nil {
		s.logger.Warn("microphone stop failed", slog.String("session_id", s.sessionID), slog.String("error", err.Error()))
	}
}

// cleanup releases everything the current attempt holds. It is the only
// teardown path and does nothing when the session is already idle.
func (s *RecognitionSession) cleanup() {
	if s.state == domain.SessionStateIdle {
		return
	}

	s.releaseAudio()
	if s.drainTimer != nil {
		s.drainTimer.Stop()
		s.drainTimer = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("connection close failed", slog.String("session_id", s.sessionID), slog.String("error", err.Error()))
		}
		s.conn = nil
	}
	if s.tap != nil {
		if err := s.tap.Close(); err != nil {
			s.logger.Warn("recording tap close failed", slog.String("session_id", s.sessionID), slog.String("error", err.Error()))
		}
		s.tap = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.ctx = nil
	}

	s.attempt++
	s.resolveStart(ErrStartCancelled)
	s.metrics.SessionEnded(s.baseCtx, s.now().Sub(s.startedAt))
	s.logger.Info("session ended", slog.String("session_id", s.sessionID))

	s.state = domain.SessionStateIdle
	s.sessionID = ""
	s.paused = false
	if s.recording {
		s.recording = false
		s.sink.AudioLevelChanged(0)
		s.sink.RecordingStateChanged(false)
	}
}

type noopMetrics struct{}

func (noopMetrics) SessionStarted(context.Context) {}

func (noopMetrics) SessionEnded(context.Context, time.Duration) {}

func (noopMetrics) FrameSent(context.Context, int) {}

func (noopMetrics) FrameDropped(context.Context) {}

func (noopMetrics) SessionError(context.Context, domain.ErrorCode) {}
