package contract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSequencer struct{ next int64 }

func (f *fakeSequencer) NextReceiptNumber(ctx context.Context) (int64, error) {
	f.next++
	return f.next, nil
}

type fakeInvoices struct {
	pdf      []byte
	available bool
}

func (f fakeInvoices) RenderInvoicePDF(ctx context.Context, contractID [32]byte, receiptNumber int64) ([]byte, bool, error) {
	return f.pdf, f.available, nil
}

type fakeNotifier struct {
	to            string
	receiptNumber int64
	attachment    *InvoiceAttachment
	called        bool
}

func (f *fakeNotifier) QueueReceiptEmail(ctx context.Context, to string, contractID [32]byte, receiptNumber int64, attachment *InvoiceAttachment) error {
	f.called = true
	f.to = to
	f.receiptNumber = receiptNumber
	f.attachment = attachment
	return nil
}

func TestConfirmPaymentHappyPathWithInvoice(t *testing.T) {
	store := newMemStore()
	id, _ := NewContractID()
	store.contracts[id] = Contract{ID: id, PaymentStatus: PaymentPending}

	seq := &fakeSequencer{next: 41}
	invoices := fakeInvoices{pdf: []byte("%PDF-1.4"), available: true}
	notifier := &fakeNotifier{}

	receiptNumber, err := ConfirmPayment(context.Background(), store, seq, invoices, notifier, id, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, int64(42), receiptNumber)
	require.True(t, notifier.called)
	require.NotNil(t, notifier.attachment)
	require.Equal(t, "application/pdf", notifier.attachment.ContentType)
	require.Equal(t, "42.pdf", notifier.attachment.Filename)

	updated, _, _ := store.GetContract(context.Background(), id)
	require.Equal(t, PaymentSucceeded, updated.PaymentStatus)
	require.Equal(t, int64(42), *updated.ReceiptNumber)
}

func TestConfirmPaymentWithoutInvoiceAvailable(t *testing.T) {
	store := newMemStore()
	id, _ := NewContractID()
	store.contracts[id] = Contract{ID: id, PaymentStatus: PaymentPending}

	seq := &fakeSequencer{}
	invoices := fakeInvoices{available: false}
	notifier := &fakeNotifier{}

	_, err := ConfirmPayment(context.Background(), store, seq, invoices, notifier, id, "user@example.com")
	require.NoError(t, err)
	require.Nil(t, notifier.attachment)
}

func TestConfirmPaymentRejectsIllegalTransition(t *testing.T) {
	store := newMemStore()
	id, _ := NewContractID()
	store.contracts[id] = Contract{ID: id, PaymentStatus: PaymentSucceeded}

	seq := &fakeSequencer{}
	_, err := ConfirmPayment(context.Background(), store, seq, nil, nil, id, "user@example.com")
	require.ErrorIs(t, err, ErrIllegalPaymentTransition)
}

func TestFailPaymentHappyPath(t *testing.T) {
	store := newMemStore()
	id, _ := NewContractID()
	store.contracts[id] = Contract{ID: id, PaymentStatus: PaymentPending}

	err := FailPayment(context.Background(), store, id)
	require.NoError(t, err)
	updated, _, _ := store.GetContract(context.Background(), id)
	require.Equal(t, PaymentFailed, updated.PaymentStatus)
}

func TestMarkPendingHappyPath(t *testing.T) {
	store := newMemStore()
	id, _ := NewContractID()
	store.contracts[id] = Contract{ID: id, PaymentStatus: PaymentUnpaid}

	err := MarkPending(context.Background(), store, id)
	require.NoError(t, err)
	updated, _, _ := store.GetContract(context.Background(), id)
	require.Equal(t, PaymentPending, updated.PaymentStatus)
}

func TestMarkPendingRejectsFromTerminal(t *testing.T) {
	store := newMemStore()
	id, _ := NewContractID()
	store.contracts[id] = Contract{ID: id, PaymentStatus: PaymentRefunded}

	err := MarkPending(context.Background(), store, id)
	require.ErrorIs(t, err, ErrIllegalPaymentTransition)
}
