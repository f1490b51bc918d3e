package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"poll-api/internal/email"
)

const defaultEmailTimeout = 10 * time.Second

// Notifier despacha correos en segundo plano. Un fallo de envio se registra y nunca
// se propaga a la request que lo origino.
type Notifier struct {
	logger  *zap.Logger
	sender  email.Sender
	timeout time.Duration
}

func NewNotifier(logger *zap.Logger, sender email.Sender, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultEmailTimeout
	}
	if sender == nil {
		sender = email.NewDisabledSender("email sender not configured")
	}
	return &Notifier{logger: logger, sender: sender, timeout: timeout}
}

func (n *Notifier) Dispatch(msg email.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.sender.Send(ctx, msg); err != nil && n.logger != nil {
			n.logger.Warn("email dispatch failed",
				zap.Error(err),
				zap.String("to", msg.To),
				zap.String("subject", msg.Subject),
			)
		}
	}()
}
