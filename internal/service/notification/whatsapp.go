package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/pkg/clients/whatsapp"
)

// WhatsAppSink texts recipients that have a phone number on file.
type WhatsAppSink struct {
	client whatsapp.Client
	logger *zap.Logger
}

var _ Sink = (*WhatsAppSink)(nil)

// NewWhatsAppSink wraps client.
func NewWhatsAppSink(client whatsapp.Client, logger *zap.Logger) *WhatsAppSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhatsAppSink{client: client, logger: logger}
}

// Name identifies the sink in logs.
func (w *WhatsAppSink) Name() string { return "whatsapp" }

// Deliver sends one text per reachable recipient.
func (w *WhatsAppSink) Deliver(ctx context.Context, event models.Event, recipients []models.User) error {
	var errs []error
	for _, u := range recipients {
		if u.Phone == "" {
			continue
		}
		id, err := w.client.SendText(ctx, u.Phone, event.Message)
		if err != nil {
			errs = append(errs, fmt.Errorf("text %s: %w", u.ID, err))
			continue
		}
		w.logger.Debug("whatsapp notification sent", zap.String("user_id", u.ID), zap.String("message_id", id))
	}
	return errors.Join(errs...)
}
