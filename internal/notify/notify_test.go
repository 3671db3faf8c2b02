package notify

import (
	"errors"
	"testing"

	"vocalwrite/internal/ports"
)

var _ ports.Notifier = (*Desktop)(nil)

func TestDesktopNotifyUsesAppNameForEmptyTitle(t *testing.T) {
	t.Parallel()

	d := NewDesktop("VocalWrite", nil)
	var gotTitle, gotMessage string
	d.send = func(title string, message string, _ string) error {
		gotTitle, gotMessage = title, message
		return nil
	}

	if err := d.Notify("", "Copied to clipboard"); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if gotTitle != "VocalWrite" || gotMessage != "Copied to clipboard" {
		t.Fatalf("unexpected notification %q/%q", gotTitle, gotMessage)
	}
}

func TestDesktopNotifyWrapsErrors(t *testing.T) {
	t.Parallel()

	d := NewDesktop("VocalWrite", nil)
	boom := errors.New("no dbus")
	d.send = func(string, string, string) error { return boom }

	if err := d.Notify("t", "m"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
