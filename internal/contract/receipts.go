package contract

import (
	"context"
	"errors"
	"fmt"
)

var ErrIllegalPaymentTransition = errors.New("contract: illegal payment status transition")

// ReceiptSequencer allocates the next receipt number. The Postgres store
// draws it with nextval from the receipt_number_seq sequence, so numbers are
// unique and increasing across concurrent confirmations; a number drawn by a
// confirmation that later fails is not reused, so gaps are possible.
type ReceiptSequencer interface {
	NextReceiptNumber(ctx context.Context) (int64, error)
}

// InvoiceAttachment is the optional PDF attached to a receipt email.
type InvoiceAttachment struct {
	ContentType string
	Filename    string
	Data        []byte
}

// InvoiceRenderer produces an invoice PDF for a confirmed payment, when one
// is available. The PDF rendering itself is an external collaborator
// (Non-goal); this interface is the seam this package depends on.
type InvoiceRenderer interface {
	RenderInvoicePDF(ctx context.Context, contractID [32]byte, receiptNumber int64) ([]byte, bool, error)
}

// ReceiptNotifier queues the receipt email, attaching the invoice PDF when
// one was rendered.
type ReceiptNotifier interface {
	QueueReceiptEmail(ctx context.Context, to string, contractID [32]byte, receiptNumber int64, attachment *InvoiceAttachment) error
}

// ConfirmPayment transitions a contract's payment from pending to
// succeeded, allocates its receipt number, and queues the receipt email
// (with an invoice PDF attachment when the renderer has one).
func ConfirmPayment(ctx context.Context, store Store, seq ReceiptSequencer, invoices InvoiceRenderer, notifier ReceiptNotifier, id [32]byte, to string) (int64, error) {
	c, ok, err := store.GetContract(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("contract: lookup: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("contract: %x: not found", id)
	}
	if !CanTransitionPaymentStatus(c.PaymentStatus, PaymentSucceeded) {
		return 0, ErrIllegalPaymentTransition
	}

	receiptNumber, err := seq.NextReceiptNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("contract: allocate receipt number: %w", err)
	}
	if err := store.SetPaymentStatus(ctx, id, PaymentSucceeded); err != nil {
		return 0, fmt.Errorf("contract: set payment status: %w", err)
	}
	if err := store.SetReceiptNumber(ctx, id, receiptNumber); err != nil {
		return 0, fmt.Errorf("contract: set receipt number: %w", err)
	}

	var attachment *InvoiceAttachment
	if invoices != nil {
		if pdf, ok, err := invoices.RenderInvoicePDF(ctx, id, receiptNumber); err == nil && ok {
			attachment = &InvoiceAttachment{
				ContentType: "application/pdf",
				Filename:    fmt.Sprintf("%d.pdf", receiptNumber),
				Data:        pdf,
			}
		}
	}
	if notifier != nil {
		if err := notifier.QueueReceiptEmail(ctx, to, id, receiptNumber, attachment); err != nil {
			return receiptNumber, fmt.Errorf("contract: queue receipt email: %w", err)
		}
	}
	return receiptNumber, nil
}

// FailPayment marks a pending payment as failed. Per spec, failures never
// automatically transition contract status; that remains an explicit
// admin/cron action.
func FailPayment(ctx context.Context, store Store, id [32]byte) error {
	c, ok, err := store.GetContract(ctx, id)
	if err != nil {
		return fmt.Errorf("contract: lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("contract: %x: not found", id)
	}
	if !CanTransitionPaymentStatus(c.PaymentStatus, PaymentFailed) {
		return ErrIllegalPaymentTransition
	}
	return store.SetPaymentStatus(ctx, id, PaymentFailed)
}

// MarkPending moves a freshly-created unpaid contract into pending once the
// payment provider has acknowledged the attempt (e.g. a Stripe webhook for
// "processing", or an ICPay transaction id attached by the requester).
func MarkPending(ctx context.Context, store Store, id [32]byte) error {
	c, ok, err := store.GetContract(ctx, id)
	if err != nil {
		return fmt.Errorf("contract: lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("contract: %x: not found", id)
	}
	if !CanTransitionPaymentStatus(c.PaymentStatus, PaymentPending) {
		return ErrIllegalPaymentTransition
	}
	return store.SetPaymentStatus(ctx, id, PaymentPending)
}
