package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Entry labels, per the authoritative label table.
const (
	LabelProvRegister      = "ProvRegister"
	LabelUserRegister      = "UserRegister"
	LabelProvCheckIn       = "ProvCheckIn"
	LabelProvProfile       = "ProvProfile"
	LabelDCTokenTransfer   = "DCTokenTransfer"
	LabelDCTokenApproval   = "DCTokenApproval"
	LabelReputationChange  = "ReputationChange"
	LabelRewardDistribution = "RewardDistribution"
)

const principalSize = 29

// ProvRegisterEntry binds a provider's verifying key.
type ProvRegisterEntry struct {
	Pubkey    []byte
	Signature []byte
}

// UserRegisterEntry binds a user's verifying key.
type UserRegisterEntry struct {
	Pubkey    []byte
	Signature []byte
}

// ProvCheckInEntry is a signed liveness beacon.
type ProvCheckInEntry struct {
	Pubkey   []byte
	Memo     string
	NonceSig []byte
}

// ProvProfileEntry is a provider's published profile.
//
// The original system encodes this with Borsh; no Borsh codec is present
// anywhere in the reference corpus, so profiles are encoded as JSON here
// instead (a structurally equivalent substitute, noted in the design
// ledger). Contacts are flattened into the same structure.
type ProvProfileEntry struct {
	Pubkey   []byte
	Name     string
	Contacts map[string]string
}

// DCTokenTransferEntry mirrors a committed balance-changing transfer.
type DCTokenTransferEntry struct {
	From             [principalSize]byte
	FromSubaccount   [32]byte
	To               [principalSize]byte
	ToSubaccount     [32]byte
	Amount           uint64
	Fee              uint64
	Memo             []byte
	CreatedAtNs      uint64
	BalanceFromAfter uint64
	BalanceToAfter   uint64
}

// DCTokenApprovalEntry is an allowance grant; uniqueness is (owner, spender).
type DCTokenApprovalEntry struct {
	Owner        [principalSize]byte
	Spender      [principalSize]byte
	Amount       uint64
	ExpiresAtNs  *uint64
}

// ReputationChangeEntry is a signed batch of reputation deltas.
type ReputationChangeEntry struct {
	Deltas []ReputationDelta
}

type ReputationDelta struct {
	Principal [principalSize]byte
	Delta     int64
}

// RewardDistributionEntry is the last-distribution-timestamp checkpoint.
type RewardDistributionEntry struct {
	LastDistributionNs uint64
}

// UnknownEntry passes through anything this codec does not recognize; it is
// logged at warn level by the caller and otherwise ignored.
type UnknownEntry struct {
	Label string
	Key   []byte
	Value []byte
}

// Dispatcher receives decoded entries during a sync tick. Implementations
// own the index tables and any derived in-memory state (balances,
// reputations); the sync engine itself holds no domain knowledge beyond
// "decode and dispatch".
type Dispatcher interface {
	ProvRegister(ProvRegisterEntry) error
	UserRegister(UserRegisterEntry) error
	ProvCheckIn(ProvCheckInEntry) error
	ProvProfile(ProvProfileEntry) error
	DCTokenTransfer(DCTokenTransferEntry) error
	DCTokenApproval(DCTokenApprovalEntry) error
	ReputationChange(ReputationChangeEntry) error
	RewardDistribution(RewardDistributionEntry) error
	Unknown(UnknownEntry)

	// BlockCommitted records one decoded block's chain-level facts (its
	// content hash and body timestamp) so ChainInfo queries
	// (block count, latest hash, latest timestamp) have a durable source
	// independent of the entry-level index tables.
	BlockCommitted(hash [32]byte, timestampNs int64) error
}

// DecodeAndDispatch decodes e by its label and delivers it to d. Decode
// errors are returned (the caller is responsible for logging+skipping per
// the sync engine's failure model); unknown labels are delivered to
// d.Unknown and never produce an error.
func DecodeAndDispatch(e Entry, d Dispatcher) error {
	switch e.Label {
	case LabelProvRegister:
		return d.ProvRegister(ProvRegisterEntry{Pubkey: e.Key, Signature: e.Value})
	case LabelUserRegister:
		return d.UserRegister(UserRegisterEntry{Pubkey: e.Key, Signature: e.Value})
	case LabelProvCheckIn:
		entry, err := decodeCheckIn(e)
		if err != nil {
			return err
		}
		return d.ProvCheckIn(entry)
	case LabelProvProfile:
		var payload struct {
			Name     string            `json:"name"`
			Contacts map[string]string `json:"contacts"`
		}
		if err := json.Unmarshal(e.Value, &payload); err != nil {
			return fmt.Errorf("ledger: decode ProvProfile: %w", err)
		}
		return d.ProvProfile(ProvProfileEntry{Pubkey: e.Key, Name: payload.Name, Contacts: payload.Contacts})
	case LabelDCTokenTransfer:
		entry, err := decodeTokenTransfer(e.Value)
		if err != nil {
			return err
		}
		return d.DCTokenTransfer(entry)
	case LabelDCTokenApproval:
		entry, err := decodeTokenApproval(e)
		if err != nil {
			return err
		}
		return d.DCTokenApproval(entry)
	case LabelReputationChange:
		var deltas []ReputationDelta
		if err := json.Unmarshal(e.Value, &deltas); err != nil {
			return fmt.Errorf("ledger: decode ReputationChange: %w", err)
		}
		return d.ReputationChange(ReputationChangeEntry{Deltas: deltas})
	case LabelRewardDistribution:
		var payload struct {
			LastDistributionNs uint64 `json:"last_distribution_ns"`
		}
		if err := json.Unmarshal(e.Value, &payload); err != nil {
			return fmt.Errorf("ledger: decode RewardDistribution: %w", err)
		}
		return d.RewardDistribution(RewardDistributionEntry{LastDistributionNs: payload.LastDistributionNs})
	default:
		d.Unknown(UnknownEntry{Label: e.Label, Key: e.Key, Value: e.Value})
		return nil
	}
}

// decodeCheckIn tolerates the legacy bare-64-byte-signature payload in
// addition to the current JSON {memo, nonce_sig} form.
func decodeCheckIn(e Entry) (ProvCheckInEntry, error) {
	if len(e.Value) == 64 {
		return ProvCheckInEntry{Pubkey: e.Key, Memo: "", NonceSig: e.Value}, nil
	}
	var payload struct {
		Memo     string `json:"memo"`
		NonceSig []byte `json:"nonce_sig"`
	}
	if err := json.Unmarshal(e.Value, &payload); err != nil {
		return ProvCheckInEntry{}, fmt.Errorf("ledger: decode ProvCheckIn: %w", err)
	}
	return ProvCheckInEntry{Pubkey: e.Key, Memo: payload.Memo, NonceSig: payload.NonceSig}, nil
}

// tokenTransferFixedWidth is the byte width of every field in the transfer
// wire layout except memo, which is variable and sits second-to-last; its
// length is therefore recoverable as total_len - tokenTransferFixedWidth.
const tokenTransferFixedWidth = principalSize + 32 + principalSize + 32 + 8 + 8 + 8

func decodeTokenTransfer(value []byte) (DCTokenTransferEntry, error) {
	if len(value) < tokenTransferFixedWidth {
		return DCTokenTransferEntry{}, fmt.Errorf("ledger: decode DCTokenTransfer: short payload (%d bytes)", len(value))
	}
	memoLen := len(value) - tokenTransferFixedWidth
	var e DCTokenTransferEntry
	off := 0
	copy(e.From[:], value[off:off+principalSize])
	off += principalSize
	copy(e.FromSubaccount[:], value[off:off+32])
	off += 32
	copy(e.To[:], value[off:off+principalSize])
	off += principalSize
	copy(e.ToSubaccount[:], value[off:off+32])
	off += 32
	e.Amount = binary.BigEndian.Uint64(value[off : off+8])
	off += 8
	e.Fee = binary.BigEndian.Uint64(value[off : off+8])
	off += 8
	e.Memo = append([]byte(nil), value[off:off+memoLen]...)
	off += memoLen
	e.CreatedAtNs = binary.BigEndian.Uint64(value[off : off+8])
	return e, nil
}

// EncodeTokenTransferLayout renders the canonical binary layout used both as
// the DCTokenTransfer entry value and, hashed with SHA-256, as the
// transaction id.
func EncodeTokenTransferLayout(e DCTokenTransferEntry) []byte {
	out := make([]byte, 0, tokenTransferFixedWidth+len(e.Memo))
	out = append(out, e.From[:]...)
	out = append(out, e.FromSubaccount[:]...)
	out = append(out, e.To[:]...)
	out = append(out, e.ToSubaccount[:]...)
	var amt, fee, ts [8]byte
	binary.BigEndian.PutUint64(amt[:], e.Amount)
	binary.BigEndian.PutUint64(fee[:], e.Fee)
	binary.BigEndian.PutUint64(ts[:], e.CreatedAtNs)
	out = append(out, amt[:]...)
	out = append(out, fee[:]...)
	out = append(out, e.Memo...)
	out = append(out, ts[:]...)
	return out
}

func decodeTokenApproval(e Entry) (DCTokenApprovalEntry, error) {
	if len(e.Key) != principalSize*2 {
		return DCTokenApprovalEntry{}, fmt.Errorf("ledger: decode DCTokenApproval: bad key length %d", len(e.Key))
	}
	var out DCTokenApprovalEntry
	copy(out.Owner[:], e.Key[:principalSize])
	copy(out.Spender[:], e.Key[principalSize:])

	var payload struct {
		Amount      uint64  `json:"amount"`
		ExpiresAtNs *uint64 `json:"expires_at_ns,omitempty"`
	}
	if err := json.Unmarshal(e.Value, &payload); err != nil {
		return DCTokenApprovalEntry{}, fmt.Errorf("ledger: decode DCTokenApproval: %w", err)
	}
	out.Amount = payload.Amount
	out.ExpiresAtNs = payload.ExpiresAtNs
	return out, nil
}
