// Package notify delivers operational reports through shoutrrr service URLs
// (smtp://, slack://, logger:// and the rest shoutrrr understands).
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"EBMS/internal/ports"
	"EBMS/pkg/htmltext"
	"EBMS/pkg/logger"
)

// ErrNoRecipients is returned when no notification URL is configured.
var ErrNoRecipients = errors.New("no report recipients configured")

type sender interface {
	Send(message string, params *stypes.Params) []error
}

// Mailer sends reports to every configured service URL.
type Mailer struct {
	sender sender
	logger *slog.Logger
}

var _ ports.Notifier = (*Mailer)(nil)

// NewMailer validates the service URLs and prepares a shared sender.
func NewMailer(urls []string, timeout time.Duration, log *slog.Logger) (*Mailer, error) {
	if log == nil {
		log = slog.Default()
	}
	m := &Mailer{logger: log}
	if len(urls) == 0 {
		return m, nil
	}

	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("create notification sender: %w", err)
	}
	if timeout > 0 {
		router.Timeout = timeout
	}
	router.SetLogger(logger.New("shoutrrr", logger.WithHandler(log.Handler(), slog.LevelDebug)))
	m.sender = router
	return m, nil
}

// PublishReport renders the HTML report as text and sends it with the subject as title.
func (m *Mailer) PublishReport(_ context.Context, subject, body string) error {
	if m.sender == nil {
		m.logger.Error("report not sent", "subject", subject, "error", ErrNoRecipients)
		return ErrNoRecipients
	}

	params := stypes.Params{}
	params.SetTitle(subject)
	for _, err := range m.sender.Send(htmltext.MustText(body), &params) {
		if err != nil {
			return fmt.Errorf("send report: %w", err)
		}
	}
	m.logger.Info("report sent", "subject", subject)
	return nil
}
