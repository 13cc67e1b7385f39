// Package notify delivers administrative alerts through pluggable providers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Provider defines the interface for alert delivery implementations.
type Provider interface {
	// Send delivers message privately to the account named by handle.
	Send(ctx context.Context, handle, message string) error
}

// Sender reports failures to the bot administrator.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	admin    string
}

// New creates a new alert sender for admin.
func New(provider Provider, logger *slog.Logger, admin string) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
		admin:    admin,
	}
}

// AlertMessage formats a crash report addressed to admin.
func AlertMessage(admin string, cause error) string {
	return "@" + admin + " ぐえー\n" + cause.Error()
}

// Alert sends cause to the administrator. Without a configured admin the
// alert is only logged.
func (s *Sender) Alert(ctx context.Context, cause error) error {
	if s.admin == "" {
		s.logger.Warn("No admin configured, alert not delivered", "error", cause)
		return nil
	}

	s.logger.Info("Sending admin alert", "admin", s.admin, "error", cause)
	if err := s.provider.Send(ctx, s.admin, AlertMessage(s.admin, cause)); err != nil {
		return fmt.Errorf("send admin alert: %w", err)
	}
	return nil
}
