// Package paymentclients provides the concrete collaborators
// internal/contract's Store-adjacent interfaces (StripeClient, ICPayClient,
// ReceiptSequencer, InvoiceRenderer, ReceiptNotifier) are wired against at
// process start. Real Stripe/ICPay wire integration and PDF rendering are
// external collaborators out of scope here; these stand in as
// "not configured" stubs until a deployment supplies real credentials,
// following the teacher's pattern of keeping third-party wire protocols
// behind a narrow interface (core/escrow.go's EscrowBackend shape).
package paymentclients

import (
	"context"
	"encoding/hex"
	"errors"
	"strconv"

	"decent-cloud/internal/contract"
	"decent-cloud/internal/notify"

	"github.com/sirupsen/logrus"
)

var ErrNotConfigured = errors.New("paymentclients: not configured")

// NoopStripeClient rejects every call; swap in a real Stripe client once
// STRIPE_SECRET_KEY is set and routed through here.
type NoopStripeClient struct{}

func (NoopStripeClient) CreateCheckoutSession(amountCents int64, currency, productName, contractIDHex string) (string, error) {
	return "", ErrNotConfigured
}

func (NoopStripeClient) Refund(paymentIntentID string) error { return ErrNotConfigured }

// NoopICPayClient mirrors NoopStripeClient for the ICPay rail.
type NoopICPayClient struct{}

func (NoopICPayClient) CreateRefund(paymentID string, amount *uint64) error { return ErrNotConfigured }

// NoInvoiceRenderer reports no invoice is available, which ConfirmPayment
// treats as "send the receipt email without a PDF attachment".
type NoInvoiceRenderer struct{}

func (NoInvoiceRenderer) RenderInvoicePDF(ctx context.Context, contractID [32]byte, receiptNumber int64) ([]byte, bool, error) {
	return nil, false, nil
}

// DispatcherNotifier adapts notify.Dispatcher to contract.ReceiptNotifier.
// notify.Message carries no attachment field, so the invoice PDF (when one
// is rendered) is not attached to the queued email; this is the narrow gap
// left by keeping notify's Non-goal of raw SMTP/MIME handling out of scope.
type DispatcherNotifier struct {
	Dispatcher *notify.Dispatcher
}

func (n DispatcherNotifier) QueueReceiptEmail(ctx context.Context, to string, contractID [32]byte, receiptNumber int64, attachment *contract.InvoiceAttachment) error {
	return n.Dispatcher.Enqueue(notify.Message{
		Channel:   notify.ChannelEmail,
		Recipient: to,
		Subject:   "Your rental receipt",
		Body:      receiptBody(contractID, receiptNumber),
	})
}

func receiptBody(contractID [32]byte, receiptNumber int64) string {
	return "Receipt #" + strconv.FormatInt(receiptNumber, 10) + " for contract " + hex.EncodeToString(contractID[:])
}

// LoggingSender stands in for the real SMTP/Telegram/SMS collaborators
// (explicitly out of scope): it logs the message it would have sent so the
// receipt/escalation flows remain exercised end to end without a live
// downstream.
type LoggingSender struct {
	Log *logrus.Logger
}

func (s LoggingSender) Send(ctx context.Context, msg notify.Message) error {
	s.Log.WithFields(logrus.Fields{
		"channel": msg.Channel, "recipient": msg.Recipient, "subject": msg.Subject,
	}).Info("paymentclients: notification delivery stubbed")
	return nil
}
