package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"vocalwrite/internal/domain"
	"vocalwrite/internal/ports"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeSigner struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
}

func (f *fakeSigner) SignedURL(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.url == "" {
		return "wss://asr.example/asr/v2/1?signature=x", nil
	}
	return f.url, nil
}

func (f *fakeSigner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTransport struct {
	mu     sync.Mutex
	conns  []*fakeConn
	err    error
	calls  int
	urls   []string
	gate   chan struct{}
	dialed chan struct{}
}

func (f *fakeTransport) Dial(_ context.Context, url string) (ports.RecognitionConn, error) {
	f.mu.Lock()
	f.calls++
	f.urls = append(f.urls, url)
	gate, dialed := f.gate, f.dialed
	f.mu.Unlock()

	if dialed != nil {
		close(dialed)
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.conns) == 0 {
		return nil, errors.New("no connection configured")
	}
	conn := f.conns[0]
	f.conns = f.conns[1:]
	return conn, nil
}

type fakeConn struct {
	mu         sync.Mutex
	events     chan domain.RecognitionEvent
	sent       [][]byte
	endCalls   int
	closeCalls int
	closed     bool
	waitErr    error
	sendErr    error
	endErr     error
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan domain.RecognitionEvent, 16)}
}

func (f *fakeConn) SendAudio(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), pcm...))
	return nil
}

func (f *fakeConn) SendEnd() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endCalls++
	return f.endErr
}

func (f *fakeConn) Events() <-chan domain.RecognitionEvent { return f.events }

func (f *fakeConn) Wait() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitErr
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.shutdown()
	return nil
}

// push delivers a server message unless the connection is already closed.
func (f *fakeConn) push(ev domain.RecognitionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.events <- ev
	}
}

// drop simulates the server closing the connection.
func (f *fakeConn) drop(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitErr = err
	f.shutdown()
}

func (f *fakeConn) shutdown() {
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

func (f *fakeConn) snapshot() (sent int, ends int, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent), f.endCalls, f.closeCalls
}

type fakeCapture struct {
	mu      sync.Mutex
	sources []*fakeSource
	err     error
	calls   int
	gate    chan struct{}
}

func (f *fakeCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSource, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sources) == 0 {
		return nil, errors.New("no microphone configured")
	}
	source := f.sources[0]
	f.sources = f.sources[1:]
	return source, nil
}

func (f *fakeCapture) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSource hands out queued sample chunks and blocks until stopped.
type fakeSource struct {
	samples chan []float32
	readErr chan error
	stopped chan struct{}

	mu        sync.Mutex
	stopCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		samples: make(chan []float32, 16),
		readErr: make(chan error, 1),
		stopped: make(chan struct{}),
	}
}

func (f *fakeSource) ReadSamples(buf []float32) (int, error) {
	select {
	case chunk := <-f.samples:
		return copy(buf, chunk), nil
	case err := <-f.readErr:
		return 0, err
	case <-f.stopped:
		return 0, io.EOF
	}
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopCalls == 1 {
		close(f.stopped)
	}
	return nil
}

func (f *fakeSource) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type polishedEvent struct {
	raw      string
	polished string
	copied   bool
}

// fakeEventSink records every callback. It satisfies ports.EventSink and
// therefore ports.RecognitionSink.
type fakeEventSink struct {
	mu sync.Mutex

	transcripts []string
	interims    []string
	recording   []bool
	levels      []float64
	errors      []errEvent
	completed   []string
	durations   []time.Duration
	polishing   []bool
	polished    []polishedEvent
}

func (f *fakeEventSink) TranscriptChanged(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
}

func (f *fakeEventSink) InterimTranscriptChanged(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interims = append(f.interims, text)
}

func (f *fakeEventSink) RecordingStateChanged(recording bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = append(f.recording, recording)
}

func (f *fakeEventSink) AudioLevelChanged(level float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) StreamCompleted(transcript string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, transcript)
}

func (f *fakeEventSink) DurationChanged(elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durations = append(f.durations, elapsed)
}

func (f *fakeEventSink) PolishStateChanged(polishing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polishing = append(f.polishing, polishing)
}

func (f *fakeEventSink) PolishedTranscript(raw string, polished string, copied bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polished = append(f.polished, polishedEvent{raw: raw, polished: polished, copied: copied})
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotRecording() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.recording...)
}

func (f *fakeEventSink) snapshotCompleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.completed...)
}

func (f *fakeEventSink) snapshotInterims() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.interims...)
}

func (f *fakeEventSink) snapshotLevels() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.levels...)
}

func (f *fakeEventSink) snapshotPolished() []polishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]polishedEvent(nil), f.polished...)
}

func (f *fakeEventSink) durationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.durations)
}

type fakePolisher struct {
	mu    sync.Mutex
	out   string
	err   error
	calls []string
}

func (f *fakePolisher) Polish(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func (f *fakePolisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeClipboard struct {
	mu       sync.Mutex
	lastText string
	calls    int
	err      error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastText = text
	return f.err
}

func (f *fakeClipboard) snapshot() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastText, f.calls
}

type fakeHistory struct {
	mu      sync.Mutex
	records []domain.TranscriptRecord
	err     error
}

func (f *fakeHistory) Save(_ context.Context, record domain.TranscriptRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeHistory) List(_ context.Context, limit int) ([]domain.TranscriptRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.records) {
		limit = len(f.records)
	}
	return append([]domain.TranscriptRecord(nil), f.records[:limit]...), nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(_ string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type fakeMetrics struct {
	mu       sync.Mutex
	started  int
	ended    int
	sent     int
	dropped  int
	failures []domain.ErrorCode
}

func (f *fakeMetrics) SessionStarted(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeMetrics) SessionEnded(context.Context, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
}

func (f *fakeMetrics) FrameSent(context.Context, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
}

func (f *fakeMetrics) FrameDropped(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped++
}

func (f *fakeMetrics) SessionError(_ context.Context, code domain.ErrorCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, code)
}

func (f *fakeMetrics) snapshot() (started, ended int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.ended
}

type fakeTap struct {
	mu     sync.Mutex
	frames int
	closed int
}

func (f *fakeTap) WriteFrame(domain.AudioFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	return nil
}

func (f *fakeTap) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

type fakeRecorder struct {
	tap *fakeTap
	ids []string
}

func (f *fakeRecorder) Open(sessionID string) (ports.FrameTap, error) {
	f.ids = append(f.ids, sessionID)
	return f.tap, nil
}
