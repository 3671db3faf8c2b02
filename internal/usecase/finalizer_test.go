package usecase

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"vocalwrite/internal/domain"
)

func newTestFinalizer(events *fakeEventSink) transcriptFinalizer {
	return transcriptFinalizer{
		events: events,
		logger: slog.New(slog.DiscardHandler),
		now:    func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func TestTranscriptFinalizerWithoutPolisherCopiesRaw(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	clipboard := &fakeClipboard{}
	history := &fakeHistory{}
	f := newTestFinalizer(events)
	f.clipboard = clipboard
	f.history = history

	result, ok := f.Finalize(context.Background(), "raw", 3*time.Second)
	if !ok {
		t.Fatalf("expected transcript to be finalized")
	}
	if result.Polished != "raw" || !result.Copied {
		t.Fatalf("unexpected result: %+v", result)
	}
	if text, _ := clipboard.snapshot(); text != "raw" {
		t.Fatalf("clipboard received %q", text)
	}
	if len(history.records) != 1 || history.records[0].Duration != 3*time.Second {
		t.Fatalf("unexpected history: %+v", history.records)
	}
	if !history.records[0].CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected timestamp %v", history.records[0].CreatedAt)
	}
}

func TestTranscriptFinalizerIgnoresBlank(t *testing.T) {
	t.Parallel()

	polisher := &fakePolisher{out: "x"}
	f := newTestFinalizer(&fakeEventSink{})
	f.polisher = polisher

	if _, ok := f.Finalize(context.Background(), "  \n", 0); ok {
		t.Fatalf("blank transcript should be skipped")
	}
	if polisher.callCount() != 0 {
		t.Fatalf("polisher called for blank transcript")
	}
}

func TestTranscriptFinalizerHistoryFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	f := newTestFinalizer(&fakeEventSink{})
	f.history = &fakeHistory{err: errors.New("disk full")}

	result, ok := f.Finalize(context.Background(), "raw", 0)
	if !ok || result.Polished != "raw" {
		t.Fatalf("unexpected result: %+v ok=%v", result, ok)
	}
}

func TestTranscriptFinalizerPolishFailure(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	f := newTestFinalizer(events)
	f.polisher = &fakePolisher{err: errors.New("timeout")}
	f.clipboard = &fakeClipboard{}

	result, ok := f.Finalize(context.Background(), "raw", 0)
	if !ok || result.Polished != "" || result.Raw != "raw" {
		t.Fatalf("unexpected result: %+v", result)
	}
	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodePolish {
		t.Fatalf("expected polish error, got %+v", errs)
	}
}
