// Package notify fans operator alerts out to every configured channel.
package notify

import (
	"context"
	"errors"
	"fmt"

	"optionsBot/internal/ports"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier implements ports.Alerter. Every alert is logged; delivery to
// senders is best effort and one failing sender does not block the others.
type Notifier struct {
	senders []Sender
	logger  ports.Logger
}

// NewNotifier creates a Notifier over senders (which may be empty).
func NewNotifier(logger ports.Logger, senders ...Sender) *Notifier {
	return &Notifier{senders: senders, logger: logger}
}

// Alert logs the alert and dispatches it to all senders.
func (n *Notifier) Alert(ctx context.Context, title, message string) error {
	n.logger.Warn(ctx, "ALERT: "+title, map[string]interface{}{"message": message})

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error(ctx, err, "Alert sender failed", map[string]interface{}{"sender": s.Name()})
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.Debug(ctx, "Alert sent", map[string]interface{}{"sender": s.Name(), "title": title})
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

var _ ports.Alerter = (*Notifier)(nil)
