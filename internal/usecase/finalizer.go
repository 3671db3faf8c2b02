package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vocalwrite/internal/domain"
	"vocalwrite/internal/ports"
)

// FinalizeResult is what the UI receives once a transcript has been handled.
type FinalizeResult struct {
	Raw      string
	Polished string
	Copied   bool
}

// transcriptFinalizer polishes a completed transcript, copies it, and records
// it in history. Only polishing failures leave the result without polished
// text; clipboard, history and notification failures are reported and skipped.
type transcriptFinalizer struct {
	polisher  ports.Polisher
	clipboard ports.Clipboard
	history   ports.HistoryStore
	notifier  ports.Notifier
	events    ports.EventSink
	logger    *slog.Logger
	now       func() time.Time
}

func (f transcriptFinalizer) Finalize(ctx context.Context, raw string, elapsed time.Duration) (FinalizeResult, bool) {
	if strings.TrimSpace(raw) == "" {
		return FinalizeResult{}, false
	}

	result := FinalizeResult{Raw: raw, Polished: raw}
	if f.polisher != nil {
		f.events.PolishStateChanged(true)
		polished, err := f.polisher.Polish(ctx, raw)
		f.events.PolishStateChanged(false)
		if err != nil {
			f.logger.Error("polish failed", slog.String("error", err.Error()))
			f.events.SessionError(domain.ErrorCodePolish, err.Error())
			return FinalizeResult{Raw: raw}, true
		}
		result.Polished = polished
	}

	if f.clipboard != nil {
		if err := f.clipboard.SetText(ctx, result.Polished); err != nil {
			f.logger.Warn("clipboard write failed", slog.String("error", err.Error()))
			f.events.SessionError(domain.ErrorCodeClipboard, "transcript ready but clipboard write failed")
		} else {
			result.Copied = true
		}
	}

	if f.history != nil {
		record := domain.TranscriptRecord{
			ID:        uuid.NewString(),
			Raw:       result.Raw,
			Polished:  result.Polished,
			Duration:  elapsed,
			Copied:    result.Copied,
			CreatedAt: f.now(),
		}
		if err := f.history.Save(ctx, record); err != nil {
			f.logger.Warn("history save failed", slog.String("error", err.Error()))
		}
	}

	if f.notifier != nil && result.Copied {
		if err := f.notifier.Notify("VocalWrite", "Copied to clipboard"); err != nil {
			f.logger.Debug("notification failed", slog.String("error", err.Error()))
		}
	}

	return result, true
}
