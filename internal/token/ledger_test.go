package token

import (
	"testing"

	"decent-cloud/internal/crypto"

	"github.com/stretchr/testify/require"
)

func acct(b byte) Account {
	var p crypto.Principal
	p[0] = b
	p[28] = 0x02
	return Account{Owner: p}
}

func fund(t *testing.T, l *Ledger, a Account, amount uint64) {
	t.Helper()
	mint := Account{Owner: crypto.ZeroPrincipal}
	_, err := l.Transfer(1000, TransferArgs{From: mint, To: a, Amount: amount, Fee: ptrU64(0)})
	require.NoError(t, err)
}

func ptrU64(v uint64) *uint64 { return &v }

func TestTransferHappyPath(t *testing.T) {
	l := NewLedger()
	a := acct(1)
	b := acct(2)
	fund(t, l, a, 1_000_000)

	res, err := l.Transfer(2000, TransferArgs{From: a, To: b, Amount: 100_000, Fee: ptrU64(TransferFeeE9s)})
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000-100_000-TransferFeeE9s), res.BalanceFromAfter)
	require.Equal(t, uint64(100_000), res.BalanceToAfter)
	require.Equal(t, l.BalanceOf(a), res.BalanceFromAfter)
	require.Equal(t, l.BalanceOf(b), res.BalanceToAfter)
}

func TestTransferBadMemo(t *testing.T) {
	l := NewLedger()
	memo := make([]byte, MemoBytesMax+1)
	_, err := l.Transfer(1, TransferArgs{From: acct(1), To: acct(2), Amount: 1, Memo: memo})
	require.ErrorIs(t, err, ErrBadMemo)
}

func TestTransferMemoExactlyMaxAccepted(t *testing.T) {
	l := NewLedger()
	a := acct(1)
	fund(t, l, a, 1_000_000)
	memo := make([]byte, MemoBytesMax)
	_, err := l.Transfer(2000, TransferArgs{From: a, To: acct(2), Amount: 1, Fee: ptrU64(TransferFeeE9s), Memo: memo})
	require.NoError(t, err)
}

func TestTransferTooOld(t *testing.T) {
	l := NewLedger()
	old := uint64(0)
	_, err := l.Transfer(TxWindowNs+PermittedDriftNs+1, TransferArgs{From: acct(1), To: acct(2), Amount: 1, CreatedAtNs: &old})
	require.ErrorIs(t, err, ErrTooOld)
}

func TestTransferCreatedInFuture(t *testing.T) {
	l := NewLedger()
	future := uint64(PermittedDriftNs*2 + 100)
	_, err := l.Transfer(0, TransferArgs{From: acct(1), To: acct(2), Amount: 1, CreatedAtNs: &future})
	require.ErrorIs(t, err, ErrCreatedInFuture)
}

func TestTransferDuplicateRejected(t *testing.T) {
	l := NewLedger()
	a := acct(1)
	fund(t, l, a, 1_000_000)
	args := TransferArgs{From: a, To: acct(2), Amount: 100, Fee: ptrU64(TransferFeeE9s)}
	_, err := l.Transfer(2000, args)
	require.NoError(t, err)
	_, err = l.Transfer(2000, args)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestTransferInsufficientFunds(t *testing.T) {
	l := NewLedger()
	a := acct(1)
	fund(t, l, a, 10)
	_, err := l.Transfer(2000, TransferArgs{From: a, To: acct(2), Amount: 1_000_000, Fee: ptrU64(TransferFeeE9s)})
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestTransferBadFeeRejected(t *testing.T) {
	l := NewLedger()
	a := acct(1)
	fund(t, l, a, 1_000_000)
	_, err := l.Transfer(2000, TransferArgs{From: a, To: acct(2), Amount: 10, Fee: ptrU64(1)})
	require.ErrorIs(t, err, ErrBadFee)
}

func TestBurnRequiresZeroFee(t *testing.T) {
	l := NewLedger()
	a := acct(1)
	fund(t, l, a, 1_000_000)
	burnTo := Account{Owner: crypto.ZeroPrincipal}
	_, err := l.Transfer(2000, TransferArgs{From: a, To: burnTo, Amount: 50_000, Fee: ptrU64(5)})
	require.ErrorIs(t, err, ErrBadFee)
}

func TestBurnBelowMinimumRejected(t *testing.T) {
	l := NewLedger()
	a := acct(1)
	fund(t, l, a, 1_000_000)
	burnTo := Account{Owner: crypto.ZeroPrincipal}
	_, err := l.Transfer(2000, TransferArgs{From: a, To: burnTo, Amount: 1, Fee: ptrU64(0)})
	require.ErrorIs(t, err, ErrBadBurn)
}

func TestApproveSelfRejected(t *testing.T) {
	l := NewLedger()
	a := acct(1)
	fund(t, l, a, 1_000_000)
	err := l.Approve(2000, ApproveArgs{Owner: a, Spender: a, Amount: 100})
	require.ErrorIs(t, err, ErrSelfApproval)
}

func TestApproveExpectedAllowanceMismatch(t *testing.T) {
	l := NewLedger()
	a := acct(1)
	fund(t, l, a, 1_000_000)
	mismatch := uint64(999)
	err := l.Approve(2000, ApproveArgs{Owner: a, Spender: acct(2), Amount: 100, ExpectedAllowance: &mismatch})
	require.ErrorIs(t, err, ErrAllowanceChanged)
}

func TestApproveThenTransferFrom(t *testing.T) {
	l := NewLedger()
	owner := acct(1)
	spender := acct(2)
	dest := acct(3)
	fund(t, l, owner, 1_000_000)

	err := l.Approve(2000, ApproveArgs{Owner: owner, Spender: spender, Amount: 200_000})
	require.NoError(t, err)

	res, err := l.TransferFrom(3000, owner, spender, TransferArgs{To: dest, Amount: 50_000, Fee: ptrU64(TransferFeeE9s)})
	require.NoError(t, err)
	require.Equal(t, uint64(50_000), res.BalanceToAfter)

	remaining, _ := l.Allowance(owner, spender)
	require.Equal(t, uint64(200_000-50_000-TransferFeeE9s), remaining)
}

func TestTransferFromInsufficientAllowance(t *testing.T) {
	l := NewLedger()
	owner := acct(1)
	spender := acct(2)
	fund(t, l, owner, 1_000_000)
	require.NoError(t, l.Approve(2000, ApproveArgs{Owner: owner, Spender: spender, Amount: 100}))

	_, err := l.TransferFrom(3000, owner, spender, TransferArgs{To: acct(3), Amount: 1000, Fee: ptrU64(TransferFeeE9s)})
	require.ErrorIs(t, err, ErrInsufficientAllowance)
}

func TestSweepDedupEvictsOldEntries(t *testing.T) {
	l := NewLedger()
	a := acct(1)
	fund(t, l, a, 1_000_000)
	_, err := l.Transfer(2000, TransferArgs{From: a, To: acct(2), Amount: 10, Fee: ptrU64(TransferFeeE9s)})
	require.NoError(t, err)

	// Both the funding mint at t=1000 and the transfer at t=2000 are recorded
	// for dedup, and both are older than TxWindowNs at the sweep time.
	evicted := l.SweepDedup(2000 + TxWindowNs + 1)
	require.Equal(t, 2, evicted)
}
