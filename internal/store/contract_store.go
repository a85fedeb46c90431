package store

import (
	"context"
	"fmt"

	"decent-cloud/internal/contract"
)

// CreateContract implements contract.Store.
func (s *Store) CreateContract(ctx context.Context, c contract.Contract) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (
			id, requester_pubkey, provider_pubkey, offering_db_id, payment_amount_e9s,
			price_per_hour_e9s, currency, payment_method, payment_status, duration_hours,
			start_ns, end_ns, status, icpay_payment_id, stripe_payment_intent_id,
			stripe_checkout_url, receipt_number, requester_contact, ssh_pubkey, memo
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, c.ID[:], c.RequesterPubkey[:], c.ProviderPubkey[:], c.OfferingDBID, c.PaymentAmountE9s,
		c.PricePerHourE9s, int(c.Currency), int(c.PaymentMethod), int(c.PaymentStatus), c.DurationHours,
		c.StartNs, c.EndNs, int(c.Status), c.ICPayPaymentID, c.StripePaymentIntentID,
		c.StripeCheckoutURL, c.ReceiptNumber, c.RequesterContact, c.SSHPubkey, c.Memo)
	if err != nil {
		return fmt.Errorf("store: create contract: %w", err)
	}
	return nil
}

// GetContract implements contract.Store.
func (s *Store) GetContract(ctx context.Context, id [32]byte) (contract.Contract, bool, error) {
	var c contract.Contract
	var cid, requesterRaw, providerRaw []byte
	var currency, paymentMethod, paymentStatus, status int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, requester_pubkey, provider_pubkey, offering_db_id, payment_amount_e9s,
			price_per_hour_e9s, currency, payment_method, payment_status, duration_hours,
			start_ns, end_ns, status, icpay_payment_id, stripe_payment_intent_id,
			stripe_checkout_url, receipt_number, requester_contact, ssh_pubkey, memo
		FROM contracts WHERE id = $1
	`, id[:]).Scan(&cid, &requesterRaw, &providerRaw, &c.OfferingDBID, &c.PaymentAmountE9s,
		&c.PricePerHourE9s, &currency, &paymentMethod, &paymentStatus, &c.DurationHours,
		&c.StartNs, &c.EndNs, &status, &c.ICPayPaymentID, &c.StripePaymentIntentID,
		&c.StripeCheckoutURL, &c.ReceiptNumber, &c.RequesterContact, &c.SSHPubkey, &c.Memo)
	if err == errNoRows {
		return contract.Contract{}, false, nil
	}
	if err != nil {
		return contract.Contract{}, false, fmt.Errorf("store: get contract: %w", err)
	}
	copy(c.ID[:], cid)
	copy(c.RequesterPubkey[:], requesterRaw)
	copy(c.ProviderPubkey[:], providerRaw)
	c.Currency = contract.Currency(currency)
	c.PaymentMethod = contract.PaymentMethod(paymentMethod)
	c.PaymentStatus = contract.PaymentStatus(paymentStatus)
	c.Status = contract.Status(status)
	return c, true, nil
}

// UpdateStatus implements contract.Store.
func (s *Store) UpdateStatus(ctx context.Context, id [32]byte, next contract.Status) error {
	_, err := s.db.ExecContext(ctx, `UPDATE contracts SET status = $1 WHERE id = $2`, int(next), id[:])
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	return nil
}

// SetStripeCheckout implements contract.Store.
func (s *Store) SetStripeCheckout(ctx context.Context, id [32]byte, paymentIntentID, checkoutURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contracts SET stripe_payment_intent_id = $1, stripe_checkout_url = $2 WHERE id = $3
	`, paymentIntentID, checkoutURL, id[:])
	if err != nil {
		return fmt.Errorf("store: set stripe checkout: %w", err)
	}
	return nil
}

// SetPaymentStatus implements contract.Store.
func (s *Store) SetPaymentStatus(ctx context.Context, id [32]byte, status contract.PaymentStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE contracts SET payment_status = $1 WHERE id = $2`, int(status), id[:])
	if err != nil {
		return fmt.Errorf("store: set payment status: %w", err)
	}
	return nil
}

// SetReceiptNumber implements contract.Store.
func (s *Store) SetReceiptNumber(ctx context.Context, id [32]byte, receiptNumber int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE contracts SET receipt_number = $1 WHERE id = $2`, receiptNumber, id[:])
	if err != nil {
		return fmt.Errorf("store: set receipt number: %w", err)
	}
	return nil
}

// AppendExtension implements contract.Store.
func (s *Store) AppendExtension(ctx context.Context, ext contract.ContractExtension) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contract_extensions (contract_id, extension_hours, amount_e9s, memo, created_at_ns)
		VALUES ($1, $2, $3, $4, $5)
	`, ext.ContractID[:], ext.ExtensionHours, ext.AmountE9s, ext.Memo, ext.CreatedAtNs)
	if err != nil {
		return fmt.Errorf("store: append extension: %w", err)
	}
	return nil
}

// ExtendEndTimestamp implements contract.Store.
func (s *Store) ExtendEndTimestamp(ctx context.Context, id [32]byte, addNs int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE contracts SET end_ns = COALESCE(end_ns, 0) + $1 WHERE id = $2`, addNs, id[:])
	if err != nil {
		return fmt.Errorf("store: extend end timestamp: %w", err)
	}
	return nil
}

// NextReceiptNumber draws the next value from the shared sequence,
// grounded on the ON CONFLICT...DO UPDATE RETURNING idiom from the pack's
// postgres-consumer sink, generalized to a sequence-backed counter since
// receipts have no natural conflict key to upsert against.
func (s *Store) NextReceiptNumber(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT nextval('receipt_number_seq')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: next receipt number: %w", err)
	}
	return n, nil
}
