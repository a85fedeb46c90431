// Package token implements the fungible token ledger semantics: a balance
// fold maintained as a hot in-memory map, transfer/approval validation, and
// the per-process dedup window. It is owned exclusively by the ledger sync
// task (single-writer discipline); HTTP handlers only read through Ledger's
// exported query methods.
package token

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"decent-cloud/internal/crypto"
)

const (
	MemoBytesMax           = 32
	TransferMemoBytesMax   = 96
	ValidationMemoBytesMax = 32
	TxWindowNs             = int64(24 * 60 * 60 * 1_000_000_000)
	PermittedDriftNs       = int64(2 * 60 * 1_000_000_000)
	TransferFeeE9s         = uint64(10_000)
)

var (
	ErrBadMemo              = errors.New("token: memo too long")
	ErrTooOld               = errors.New("token: transaction too old")
	ErrCreatedInFuture      = errors.New("token: created_at is in the future")
	ErrDuplicate            = errors.New("token: duplicate transaction")
	ErrBadBurn              = errors.New("token: invalid burn amount")
	ErrBadFee               = errors.New("token: invalid fee")
	ErrInsufficientFunds    = errors.New("token: insufficient funds")
	ErrAllowanceChanged     = errors.New("token: allowance changed")
	ErrSelfApproval         = errors.New("token: cannot approve self as spender")
	ErrApprovalExpired      = errors.New("token: approval expired")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Account identifies a token holder by owner principal and optional
// subaccount; the zero subaccount is the default.
type Account struct {
	Owner      crypto.Principal
	Subaccount [32]byte
}

func (a Account) key() [61]byte {
	var k [61]byte
	copy(k[:29], a.Owner[:])
	copy(k[29:], a.Subaccount[:])
	return k
}

// TransferArgs is the validated input to Transfer.
type TransferArgs struct {
	From        Account
	To          Account
	Amount      uint64
	Fee         *uint64
	Memo        []byte
	CreatedAtNs *uint64
}

// TransferResult carries the post-transfer balances, mirroring what gets
// written into the committed ledger entry.
type TransferResult struct {
	TxID             [32]byte
	BalanceFromAfter uint64
	BalanceToAfter   uint64
}

// ApproveArgs is the validated input to Approve.
type ApproveArgs struct {
	Owner             Account
	Spender           Account
	Amount            uint64
	ExpiresAtNs       *uint64
	ExpectedAllowance *uint64
	CreatedAtNs       *uint64
}

type approval struct {
	amount      uint64
	expiresAtNs *uint64
}

// Ledger is the single-writer balance/allowance/dedup state.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[[61]byte]uint64
	allowances map[[122]byte]approval
	dedup      map[[32]byte]int64 // tx hash -> inserted_at_ns
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[[61]byte]uint64),
		allowances: make(map[[122]byte]approval),
		dedup:      make(map[[32]byte]int64),
	}
}

func allowanceKey(owner, spender Account) [122]byte {
	var k [122]byte
	ok := owner.key()
	sk := spender.key()
	copy(k[:61], ok[:])
	copy(k[61:], sk[:])
	return k
}

// BalanceOf returns the current folded balance for account.
func (l *Ledger) BalanceOf(a Account) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[a.key()]
}

// Allowance returns the current (amount, expiresAtNs) for (owner, spender).
func (l *Ledger) Allowance(owner, spender Account) (uint64, *uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.allowances[allowanceKey(owner, spender)]
	if !ok {
		return 0, nil
	}
	return a.amount, a.expiresAtNs
}

func dedupHash(caller Account, args TransferArgs) [32]byte {
	h := sha256.New()
	ok := caller.key()
	h.Write(ok[:])
	tk := args.To.key()
	h.Write(tk[:])
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], args.Amount)
	h.Write(amt[:])
	if args.Fee != nil {
		var f [8]byte
		binary.BigEndian.PutUint64(f[:], *args.Fee)
		h.Write(f[:])
	}
	h.Write(args.Memo)
	if args.CreatedAtNs != nil {
		var c [8]byte
		binary.BigEndian.PutUint64(c[:], *args.CreatedAtNs)
		h.Write(c[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func checkTimingWindow(nowNs int64, createdAtNs *uint64) error {
	if createdAtNs == nil {
		return nil
	}
	created := int64(*createdAtNs)
	if nowNs-created > TxWindowNs+PermittedDriftNs {
		return ErrTooOld
	}
	if created-nowNs > PermittedDriftNs {
		return ErrCreatedInFuture
	}
	return nil
}

// Transfer validates and applies a transfer at time nowNs. The caller is
// assumed equal to args.From (no delegated transfer_from semantics here;
// see TransferFrom).
func (l *Ledger) Transfer(nowNs int64, args TransferArgs) (TransferResult, error) {
	if len(args.Memo) > MemoBytesMax {
		return TransferResult{}, ErrBadMemo
	}
	if err := checkTimingWindow(nowNs, args.CreatedAtNs); err != nil {
		return TransferResult{}, err
	}

	dedupKey := dedupHash(args.From, args)

	l.mu.Lock()
	defer l.mu.Unlock()

	if ts, ok := l.dedup[dedupKey]; ok {
		_ = ts
		return TransferResult{}, ErrDuplicate
	}

	fromBal := l.balances[args.From.key()]
	isBurn := args.To.Owner == crypto.ZeroPrincipal
	isMint := args.From.Owner == crypto.ZeroPrincipal

	var fee uint64
	switch {
	case isBurn:
		if args.Fee != nil && *args.Fee != 0 {
			return TransferResult{}, ErrBadFee
		}
		minBurn := TransferFeeE9s
		if fromBal < minBurn {
			minBurn = fromBal
		}
		if args.Amount < minBurn {
			return TransferResult{}, ErrBadBurn
		}
		fee = 0
	case isMint:
		if args.Fee != nil && *args.Fee != 0 {
			return TransferResult{}, ErrBadFee
		}
		fee = 0
	default:
		if args.Fee != nil && *args.Fee != TransferFeeE9s {
			return TransferResult{}, ErrBadFee
		}
		fee = TransferFeeE9s
	}

	total := args.Amount + fee
	if !isMint && fromBal < total {
		return TransferResult{}, ErrInsufficientFunds
	}

	var newFromBal uint64
	if isMint {
		// The minting account has unbounded supply; its own balance entry
		// is never tracked or decremented.
		newFromBal = 0
	} else {
		newFromBal = fromBal - total
		l.balances[args.From.key()] = newFromBal
	}

	var newToBal uint64
	if !isBurn {
		toBal := l.balances[args.To.key()]
		newToBal = toBal + args.Amount
		l.balances[args.To.key()] = newToBal
	}

	l.dedup[dedupKey] = nowNs

	txID := sha256.Sum256(EncodeTransferHashInput(args, nowNs))
	return TransferResult{TxID: txID, BalanceFromAfter: newFromBal, BalanceToAfter: newToBal}, nil
}

// EncodeTransferHashInput renders the canonical byte layout hashed to
// produce a transaction id; exported so internal/ledger's wire codec and
// this package agree on the same bytes.
func EncodeTransferHashInput(args TransferArgs, nowNs int64) []byte {
	out := make([]byte, 0, 61+61+8+8+len(args.Memo)+8)
	fk := args.From.key()
	tk := args.To.key()
	out = append(out, fk[:]...)
	out = append(out, tk[:]...)
	var amt, fee, ts [8]byte
	binary.BigEndian.PutUint64(amt[:], args.Amount)
	if args.Fee != nil {
		binary.BigEndian.PutUint64(fee[:], *args.Fee)
	}
	createdAt := uint64(nowNs)
	if args.CreatedAtNs != nil {
		createdAt = *args.CreatedAtNs
	}
	binary.BigEndian.PutUint64(ts[:], createdAt)
	out = append(out, amt[:]...)
	out = append(out, fee[:]...)
	out = append(out, args.Memo...)
	out = append(out, ts[:]...)
	return out
}

// Approve validates and applies icrc2_approve semantics.
func (l *Ledger) Approve(nowNs int64, args ApproveArgs) error {
	if args.Owner.Owner == args.Spender.Owner && args.Owner.Subaccount == args.Spender.Subaccount {
		return ErrSelfApproval
	}
	if err := checkTimingWindow(nowNs, args.CreatedAtNs); err != nil {
		return err
	}
	if args.ExpiresAtNs != nil && int64(*args.ExpiresAtNs) <= nowNs {
		return ErrApprovalExpired
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[args.Owner.key()] < TransferFeeE9s {
		return ErrInsufficientFunds
	}

	key := allowanceKey(args.Owner, args.Spender)
	if args.ExpectedAllowance != nil {
		cur := l.allowances[key]
		if cur.amount != *args.ExpectedAllowance {
			return ErrAllowanceChanged
		}
	}
	l.allowances[key] = approval{amount: args.Amount, expiresAtNs: args.ExpiresAtNs}
	l.balances[args.Owner.key()] -= TransferFeeE9s
	return nil
}

// TransferFrom consumes amount+fee from the spender's allowance over owner
// funds, leaving any remaining allowance intact.
func (l *Ledger) TransferFrom(nowNs int64, owner, spender Account, args TransferArgs) (TransferResult, error) {
	key := allowanceKey(owner, spender)

	l.mu.Lock()
	cur, ok := l.allowances[key]
	l.mu.Unlock()
	if !ok {
		return TransferResult{}, ErrInsufficientAllowance
	}
	if cur.expiresAtNs != nil && int64(*cur.expiresAtNs) <= nowNs {
		return TransferResult{}, ErrApprovalExpired
	}

	fee := TransferFeeE9s
	if args.Fee != nil {
		fee = *args.Fee
	}
	needed := args.Amount + fee
	if cur.amount < needed {
		return TransferResult{}, ErrInsufficientAllowance
	}

	args.From = owner
	result, err := l.Transfer(nowNs, args)
	if err != nil {
		return TransferResult{}, err
	}

	l.mu.Lock()
	cur.amount -= needed
	l.allowances[key] = cur
	l.mu.Unlock()
	return result, nil
}

// SweepDedup evicts dedup entries older than TxWindowNs relative to nowNs.
func (l *Ledger) SweepDedup(nowNs int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for k, ts := range l.dedup {
		if nowNs-ts > TxWindowNs {
			delete(l.dedup, k)
			evicted++
		}
	}
	return evicted
}

// ApplyCommittedTransfer folds an already-committed ledger entry into the
// balance map; used by the sync dispatcher to replay history from the
// mirrored log rather than re-validating it.
func (l *Ledger) ApplyCommittedTransfer(from, to Account, amount, fee uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from.Owner != crypto.ZeroPrincipal {
		fromBal := l.balances[from.key()]
		total := amount + fee
		if fromBal < total {
			return fmt.Errorf("%w: mirrored transfer exceeds recorded balance", ErrInsufficientFunds)
		}
		l.balances[from.key()] = fromBal - total
	}
	if to.Owner != crypto.ZeroPrincipal {
		l.balances[to.key()] += amount
	}
	return nil
}

// ApplyCommittedApproval folds an already-committed approval entry.
func (l *Ledger) ApplyCommittedApproval(owner, spender Account, amount uint64, expiresAtNs *uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey(owner, spender)] = approval{amount: amount, expiresAtNs: expiresAtNs}
}
