package api

import (
	"context"

	"decent-cloud/internal/account"
	"decent-cloud/internal/contract"
	"decent-cloud/internal/crypto"
	"decent-cloud/internal/delegation"
	"decent-cloud/internal/offering"
	"decent-cloud/internal/rewards"
	"decent-cloud/internal/token"

	"github.com/sirupsen/logrus"
)

// Server bundles the handler dependencies: persistence, the in-memory
// token/offering state, and domain stores, mirroring the teacher's
// WalletController-holds-a-WalletService composition generalized to one
// struct per HTTP surface rather than one service per wallet concern.
type Server struct {
	Log *logrus.Logger

	Accounts    account.Store
	Delegations delegation.Store
	Contracts   contract.Store
	Offerings   OfferingLookup
	OfferingReg *offering.Registry
	Tokens      *token.Ledger
	Rewards     *rewards.Engine

	StripeClient contract.StripeClient
	ICPayClient  contract.ICPayClient
	ReceiptSeq   contract.ReceiptSequencer
	Invoices     contract.InvoiceRenderer
	Notifier     contract.ReceiptNotifier
}

// OfferingLookup is the read surface the HTTP handlers need over the
// marketplace registry; *offering.Registry satisfies it directly. Contract
// pricing goes through the single-offering adapter in contract_handlers.go.
type OfferingLookup interface {
	Get(provider crypto.Principal, id string) (offering.Offering, bool)
	ByProvider(provider crypto.Principal) []offering.Offering
	Search(f offering.Filter) []offering.Offering
	Count() int
}

// IsAdmin satisfies auth.AccountLookup, letting Server itself back
// RequireAdmin checks in the handlers below.
func (s *Server) IsAdmin(principal crypto.Principal) (bool, error) {
	a, err := s.Accounts.GetAccount(context.Background(), principal)
	if err != nil {
		if err == account.ErrAccountNotFound {
			return false, nil
		}
		return false, err
	}
	return a.IsAdmin, nil
}
