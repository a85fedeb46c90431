package contract

import (
	"fmt"
	"strings"
)

// Currency is the settlement currency of a contract's payment.
type Currency int

const (
	USD Currency = iota
	EUR
	USDT
)

var currencyNames = map[Currency]string{USD: "USD", EUR: "EUR", USDT: "USDT"}

func (c Currency) String() string {
	if name, ok := currencyNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCurrency is case-insensitive.
func ParseCurrency(s string) (Currency, error) {
	switch strings.ToUpper(s) {
	case "USD":
		return USD, nil
	case "EUR":
		return EUR, nil
	case "USDT":
		return USDT, nil
	default:
		return 0, fmt.Errorf("contract: invalid currency %q", s)
	}
}

// IsStripeSupported reports whether Stripe can settle a checkout in c.
// Stablecoin settlement (USDT) routes through ICPay/DCT instead.
func (c Currency) IsStripeSupported() bool {
	return c == USD || c == EUR
}

// PaymentMethod is the rail a requester chose to pay a contract.
type PaymentMethod int

const (
	PaymentStripe PaymentMethod = iota
	PaymentICPay
	PaymentDCT
)

var paymentMethodNames = map[PaymentMethod]string{
	PaymentStripe: "stripe", PaymentICPay: "icpay", PaymentDCT: "dct",
}

func (m PaymentMethod) String() string {
	if name, ok := paymentMethodNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParsePaymentMethod is case-insensitive.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToLower(s) {
	case "stripe":
		return PaymentStripe, nil
	case "icpay":
		return PaymentICPay, nil
	case "dct":
		return PaymentDCT, nil
	default:
		return 0, fmt.Errorf("contract: invalid payment method %q", s)
	}
}

// PaymentStatus tracks a contract's payment through unpaid -> pending ->
// {succeeded, failed, refunded}.
type PaymentStatus int

const (
	PaymentUnpaid PaymentStatus = iota
	PaymentPending
	PaymentSucceeded
	PaymentFailed
	PaymentRefunded
)

var paymentStatusNames = map[PaymentStatus]string{
	PaymentUnpaid: "unpaid", PaymentPending: "pending", PaymentSucceeded: "succeeded",
	PaymentFailed: "failed", PaymentRefunded: "refunded",
}

func (s PaymentStatus) String() string {
	if name, ok := paymentStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParsePaymentStatus is case-insensitive.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch strings.ToLower(s) {
	case "unpaid":
		return PaymentUnpaid, nil
	case "pending":
		return PaymentPending, nil
	case "succeeded":
		return PaymentSucceeded, nil
	case "failed":
		return PaymentFailed, nil
	case "refunded":
		return PaymentRefunded, nil
	default:
		return 0, fmt.Errorf("contract: invalid payment status %q", s)
	}
}

var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid:    {PaymentPending},
	PaymentPending:   {PaymentSucceeded, PaymentFailed, PaymentRefunded},
	PaymentSucceeded: {PaymentRefunded},
	PaymentFailed:    {},
	PaymentRefunded:  {},
}

// CanTransitionPaymentStatus enforces unpaid -> pending -> {succeeded,
// failed, refunded}; failures never flow back to contract status directly
// (spec: only through explicit admin/cron action).
func CanTransitionPaymentStatus(current, next PaymentStatus) bool {
	for _, t := range paymentStatusTransitions[current] {
		if t == next {
			return true
		}
	}
	return false
}

// StripeClient is the subset of Stripe's checkout/refund API this repo
// drives. The wire protocol itself is an external collaborator (Non-goal);
// this interface is what lifecycle.go and receipts.go depend on.
type StripeClient interface {
	CreateCheckoutSession(amountCents int64, currency, productName, contractIDHex string) (checkoutURL string, err error)
	Refund(paymentIntentID string) error
}

// ICPayClient is the subset of ICPay's API this repo drives.
type ICPayClient interface {
	CreateRefund(paymentID string, amount *uint64) error
}
