package contract

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"decent-cloud/internal/crypto"

	"github.com/sirupsen/logrus"
)

const monthHours = 730

var (
	ErrPaymentMethodRequired  = errors.New("contract: payment_method is required")
	ErrOfferingNotFound       = errors.New("contract: offering not found")
	ErrCurrencyNotStripeReady = errors.New("contract: currency not supported by stripe")
	ErrNotOperational         = errors.New("contract: not operational")
	ErrNotCancellable         = errors.New("contract: not cancellable")
)

// Contract is a rental agreement between a requester and a provider over an
// offering, carrying its own payment and lifecycle state.
type Contract struct {
	ID                    [32]byte
	RequesterPubkey       crypto.Principal
	ProviderPubkey        crypto.Principal
	OfferingDBID          int64
	PaymentAmountE9s      uint64
	PricePerHourE9s       uint64
	Currency              Currency
	PaymentMethod         PaymentMethod
	PaymentStatus         PaymentStatus
	DurationHours         uint32
	StartNs               *int64
	EndNs                 *int64
	Status                Status
	ICPayPaymentID        *string
	StripePaymentIntentID *string
	StripeCheckoutURL     *string
	ReceiptNumber         *int64
	RequesterContact      string
	SSHPubkey             string
	Memo                  string
	CreatedAtNs           int64
}

// ContractExtension is one append-only row of a contract's extension
// history.
type ContractExtension struct {
	ContractID     [32]byte
	ExtensionHours uint32
	AmountE9s      uint64
	Memo           string
	CreatedAtNs    int64
}

// OfferingInfo is the subset of an offering a contract needs at creation
// time.
type OfferingInfo struct {
	MonthlyPriceE9s uint64
	Currency        Currency
	Name            string
	ProviderPubkey  crypto.Principal
}

// OfferingLookup resolves an offering_db_id to its pricing info.
type OfferingLookup interface {
	GetOffering(ctx context.Context, offeringDBID int64) (OfferingInfo, bool, error)
}

// Store persists contracts and their extension history.
type Store interface {
	CreateContract(ctx context.Context, c Contract) error
	GetContract(ctx context.Context, id [32]byte) (Contract, bool, error)
	UpdateStatus(ctx context.Context, id [32]byte, next Status) error
	SetStripeCheckout(ctx context.Context, id [32]byte, paymentIntentID, checkoutURL string) error
	SetPaymentStatus(ctx context.Context, id [32]byte, status PaymentStatus) error
	SetReceiptNumber(ctx context.Context, id [32]byte, receiptNumber int64) error
	AppendExtension(ctx context.Context, ext ContractExtension) error
	ExtendEndTimestamp(ctx context.Context, id [32]byte, addNs int64) error
}

// NewContractID draws a random 32-byte contract identifier.
func NewContractID() ([32]byte, error) {
	var id [32]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("contract: generate id: %w", err)
	}
	return id, nil
}

// RentalRequestParams are the user-supplied inputs to CreateRentalRequest.
type RentalRequestParams struct {
	OfferingDBID     int64
	PaymentMethod    PaymentMethod
	SSHPubkey        string
	RequesterContact string
	DurationHours    uint32
	Memo             string
}

// CreateRentalRequest writes a new Requested/unpaid contract and, for
// Stripe, synchronously opens a checkout session bound to the contract id.
func CreateRentalRequest(ctx context.Context, store Store, offerings OfferingLookup, stripe StripeClient, id [32]byte, requesterPk crypto.Principal, nowNs int64, params RentalRequestParams) (Contract, error) {
	offering, ok, err := offerings.GetOffering(ctx, params.OfferingDBID)
	if err != nil {
		return Contract{}, fmt.Errorf("contract: lookup offering: %w", err)
	}
	if !ok {
		return Contract{}, ErrOfferingNotFound
	}

	pricePerHour := offering.MonthlyPriceE9s / monthHours
	amount := offering.MonthlyPriceE9s * uint64(params.DurationHours) / monthHours

	c := Contract{
		ID:               id,
		RequesterPubkey:  requesterPk,
		ProviderPubkey:   offering.ProviderPubkey,
		OfferingDBID:     params.OfferingDBID,
		PaymentAmountE9s: amount,
		PricePerHourE9s:  pricePerHour,
		Currency:         offering.Currency,
		PaymentMethod:    params.PaymentMethod,
		PaymentStatus:    PaymentUnpaid,
		DurationHours:    params.DurationHours,
		Status:           Requested,
		RequesterContact: params.RequesterContact,
		SSHPubkey:        params.SSHPubkey,
		Memo:             params.Memo,
		CreatedAtNs:      nowNs,
	}

	if params.PaymentMethod == PaymentStripe {
		if !offering.Currency.IsStripeSupported() {
			return Contract{}, fmt.Errorf("%w: %s", ErrCurrencyNotStripeReady, offering.Currency)
		}
		amountCents := int64(amount / 10_000_000)
		contractIDHex := fmt.Sprintf("%x", id)
		url, err := stripe.CreateCheckoutSession(amountCents, offering.Currency.String(), offering.Name, contractIDHex)
		if err != nil {
			return Contract{}, fmt.Errorf("contract: stripe checkout: %w", err)
		}
		c.StripeCheckoutURL = &url
	}

	if err := store.CreateContract(ctx, c); err != nil {
		return Contract{}, fmt.Errorf("contract: create: %w", err)
	}
	if c.StripeCheckoutURL != nil {
		if err := store.SetStripeCheckout(ctx, id, "", *c.StripeCheckoutURL); err != nil {
			return Contract{}, fmt.Errorf("contract: persist checkout: %w", err)
		}
	}
	return c, nil
}

const hourNs = int64(3600) * 1_000_000_000

// ExtendContract appends an extension row and pushes the contract's end
// timestamp out by extensionHours. The contract must be operational.
func ExtendContract(ctx context.Context, store Store, id [32]byte, extensionHours uint32, memo string, nowNs int64) (uint64, error) {
	c, ok, err := store.GetContract(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("contract: lookup: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("contract: %x: not found", id)
	}
	if !IsOperational(c.Status) {
		return 0, ErrNotOperational
	}

	amount := c.PricePerHourE9s * uint64(extensionHours)
	if err := store.AppendExtension(ctx, ContractExtension{
		ContractID: id, ExtensionHours: extensionHours, AmountE9s: amount, Memo: memo, CreatedAtNs: nowNs,
	}); err != nil {
		return 0, fmt.Errorf("contract: append extension: %w", err)
	}
	if err := store.ExtendEndTimestamp(ctx, id, int64(extensionHours)*hourNs); err != nil {
		return 0, fmt.Errorf("contract: extend end timestamp: %w", err)
	}
	return amount, nil
}

// CancelContract transitions a contract to Cancelled and, if payment had
// succeeded, attempts a best-effort refund through the matching rail.
// Refund failures are logged but never block the cancellation itself.
func CancelContract(ctx context.Context, store Store, stripe StripeClient, icpay ICPayClient, id [32]byte, log *logrus.Logger) error {
	c, ok, err := store.GetContract(ctx, id)
	if err != nil {
		return fmt.Errorf("contract: lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("contract: %x: not found", id)
	}
	if !IsCancellable(c.Status) {
		return ErrNotCancellable
	}

	if err := store.UpdateStatus(ctx, id, Cancelled); err != nil {
		return fmt.Errorf("contract: transition: %w", err)
	}

	if c.PaymentStatus != PaymentSucceeded {
		return nil
	}

	switch {
	case c.PaymentMethod == PaymentStripe && c.StripePaymentIntentID != nil && stripe != nil:
		if err := stripe.Refund(*c.StripePaymentIntentID); err != nil {
			logOrDiscard(log).WithError(err).WithField("contract_id", fmt.Sprintf("%x", id)).
				Warn("stripe refund failed during cancellation")
		}
	case c.PaymentMethod == PaymentICPay && c.ICPayPaymentID != nil && icpay != nil:
		if err := icpay.CreateRefund(*c.ICPayPaymentID, nil); err != nil {
			logOrDiscard(log).WithError(err).WithField("contract_id", fmt.Sprintf("%x", id)).
				Warn("icpay refund failed during cancellation")
		}
	}
	return nil
}

func logOrDiscard(log *logrus.Logger) *logrus.Logger {
	if log != nil {
		return log
	}
	discarded := logrus.New()
	discarded.SetOutput(io.Discard)
	return discarded
}
