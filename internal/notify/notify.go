package notify

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Desktop shows native notifications through beeep.
type Desktop struct {
	appName string
	logger  *slog.Logger
	send    func(title string, message string, icon string) error
}

func NewDesktop(appName string, logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Desktop{
		appName: appName,
		logger:  logger,
		send: func(title string, message string, icon string) error {
			return beeep.Notify(title, message, icon)
		},
	}
}

// Notify prefixes empty titles with the application name.
func (d *Desktop) Notify(title string, message string) error {
	if title == "" {
		title = d.appName
	}
	if err := d.send(title, message, ""); err != nil {
		d.logger.Debug("desktop notification failed", slog.String("error", err.Error()))
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
