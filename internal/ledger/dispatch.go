package ledger

import (
	"decent-cloud/internal/crypto"
	"decent-cloud/internal/token"
)

// tokenFoldingDispatcher layers the in-memory token ledger fold on top of
// the durable index Dispatcher: token balance/allowance state is owned
// exclusively by *token.Ledger under its single-writer discipline, while
// every other entry kind (provider/user registration, check-ins, profiles,
// reputation, reward checkpoints, block commits) still flows straight
// through to the SQL-backed Dispatcher.
type tokenFoldingDispatcher struct {
	Dispatcher
	tokens *token.Ledger
}

// MultiDispatcher composes the SQL index dispatcher with the in-memory
// token ledger fold, so a single sync engine tick updates both.
func MultiDispatcher(base Dispatcher, tokens *token.Ledger) Dispatcher {
	return tokenFoldingDispatcher{Dispatcher: base, tokens: tokens}
}

func (d tokenFoldingDispatcher) DCTokenTransfer(e DCTokenTransferEntry) error {
	from := token.Account{Owner: crypto.Principal(e.From), Subaccount: e.FromSubaccount}
	to := token.Account{Owner: crypto.Principal(e.To), Subaccount: e.ToSubaccount}
	if err := d.tokens.ApplyCommittedTransfer(from, to, e.Amount, e.Fee); err != nil {
		return err
	}
	return d.Dispatcher.DCTokenTransfer(e)
}

func (d tokenFoldingDispatcher) DCTokenApproval(e DCTokenApprovalEntry) error {
	owner := token.Account{Owner: crypto.Principal(e.Owner)}
	spender := token.Account{Owner: crypto.Principal(e.Spender)}
	d.tokens.ApplyCommittedApproval(owner, spender, e.Amount, e.ExpiresAtNs)
	return d.Dispatcher.DCTokenApproval(e)
}

// tokenOnlyDispatcher folds token entries into the in-memory ledger and
// discards every other entry kind; used once at startup to rebuild
// balances/allowances from the local mirror without re-applying history
// that is already durably indexed in SQL.
type tokenOnlyDispatcher struct {
	tokens *token.Ledger
}

// TokenOnlyDispatcher builds a Dispatcher suitable for ReplayMirror: it
// folds DCTokenTransfer/DCTokenApproval into tokens and no-ops everything
// else.
func TokenOnlyDispatcher(tokens *token.Ledger) Dispatcher {
	return tokenOnlyDispatcher{tokens: tokens}
}

func (d tokenOnlyDispatcher) ProvRegister(ProvRegisterEntry) error { return nil }
func (d tokenOnlyDispatcher) UserRegister(UserRegisterEntry) error { return nil }
func (d tokenOnlyDispatcher) ProvCheckIn(ProvCheckInEntry) error   { return nil }
func (d tokenOnlyDispatcher) ProvProfile(ProvProfileEntry) error   { return nil }

func (d tokenOnlyDispatcher) DCTokenTransfer(e DCTokenTransferEntry) error {
	from := token.Account{Owner: crypto.Principal(e.From), Subaccount: e.FromSubaccount}
	to := token.Account{Owner: crypto.Principal(e.To), Subaccount: e.ToSubaccount}
	return d.tokens.ApplyCommittedTransfer(from, to, e.Amount, e.Fee)
}

func (d tokenOnlyDispatcher) DCTokenApproval(e DCTokenApprovalEntry) error {
	owner := token.Account{Owner: crypto.Principal(e.Owner)}
	spender := token.Account{Owner: crypto.Principal(e.Spender)}
	d.tokens.ApplyCommittedApproval(owner, spender, e.Amount, e.ExpiresAtNs)
	return nil
}

func (d tokenOnlyDispatcher) ReputationChange(ReputationChangeEntry) error         { return nil }
func (d tokenOnlyDispatcher) RewardDistribution(RewardDistributionEntry) error     { return nil }
func (d tokenOnlyDispatcher) Unknown(UnknownEntry)                                {}
func (d tokenOnlyDispatcher) BlockCommitted(hash [32]byte, timestampNs int64) error { return nil }
