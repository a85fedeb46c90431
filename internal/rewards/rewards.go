// Package rewards implements block-reward halving, pending-reward
// accounting, fair-split distribution, and the provider check-in flow.
package rewards

import (
	"context"
	"errors"
	"fmt"

	"decent-cloud/internal/crypto"
	"decent-cloud/internal/token"
)

const (
	BaseRewardE9s          uint64 = 50_000_000_000
	RewardHalvingAfterBlocks uint64 = 210_000
	BlockIntervalSecs      int64  = 600
	FirstBlockTimestampNs  int64  = 1_700_000_000_000_000_000
	CheckInFeeDivisor      uint64 = 100
)

var (
	ErrMemoTooLong         = errors.New("rewards: memo too long")
	ErrProviderNotRegistered = errors.New("rewards: provider not registered")
	ErrBadNonceSignature   = errors.New("rewards: nonce signature invalid")
)

// RewardPerBlock recomputes the current per-block reward from elapsed time
// since genesis, halving every RewardHalvingAfterBlocks block-intervals.
func RewardPerBlock(nowNs int64) uint64 {
	if nowNs <= FirstBlockTimestampNs {
		return BaseRewardE9s
	}
	elapsedSecs := (nowNs - FirstBlockTimestampNs) / 1_000_000_000
	blocksElapsed := uint64(elapsedSecs / BlockIntervalSecs)
	halvings := blocksElapsed / RewardHalvingAfterBlocks
	if halvings >= 64 {
		return 0
	}
	return BaseRewardE9s >> halvings
}

// PendingReward computes the reward accrued since timestamp lastTs, given
// the current per-block reward.
func PendingReward(nowNs, lastTs int64, rewardPerBlock uint64) uint64 {
	if nowNs <= lastTs {
		return 0
	}
	elapsedSecs := (nowNs - lastTs) / 1_000_000_000
	return rewardPerBlock * uint64(elapsedSecs) / uint64(BlockIntervalSecs)
}

// ChainInfo exposes the minimal ledger facts the distribution and check-in
// flows need, without coupling this package to the sync/index internals.
type ChainInfo interface {
	BlockCount(ctx context.Context) (uint64, error)
	LatestBlockHash(ctx context.Context) ([]byte, error)
	LatestBlockTimestampNs(ctx context.Context) (int64, bool, error)
}

// RewardState persists the last-distribution checkpoint, under the
// RewardDistribution label (§4.5).
type RewardState interface {
	LastDistributionTs(ctx context.Context) (int64, bool, error)
	SetLastDistributionTs(ctx context.Context, ts int64) error
}

// ProviderRegistry checks registration and collects the next block's
// eligible (checked-in) providers.
type ProviderRegistry interface {
	IsRegistered(ctx context.Context, pubkey crypto.Principal) (bool, error)
	EligibleForNextDistribution(ctx context.Context) ([]crypto.Principal, error)
	AppendCheckIn(ctx context.Context, pubkey crypto.Principal, memo string, nonceSig []byte) error
}

// Engine wires the token ledger to the reward/check-in flows.
type Engine struct {
	tokens    *token.Ledger
	chain     ChainInfo
	state     RewardState
	providers ProviderRegistry
}

func NewEngine(tokens *token.Ledger, chain ChainInfo, state RewardState, providers ProviderRegistry) *Engine {
	return &Engine{tokens: tokens, chain: chain, state: state, providers: providers}
}

// DistributionResult summarizes a Distribute call for the HTTP response
// message (see scenario S2).
type DistributionResult struct {
	Distributed  bool
	PerProvider  uint64
	ProviderCount int
	TotalPaid    uint64
}

// Distribute pays out exactly one distribution per call: pending reward
// split evenly among providers eligible via the next block's check-ins.
func (e *Engine) Distribute(ctx context.Context, nowNs int64) (DistributionResult, error) {
	last, err := e.lastDistributionTs(ctx)
	if err != nil {
		return DistributionResult{}, err
	}

	rewardPerBlock := RewardPerBlock(nowNs)
	pending := PendingReward(nowNs, last, rewardPerBlock)

	eligible, err := e.providers.EligibleForNextDistribution(ctx)
	if err != nil {
		return DistributionResult{}, fmt.Errorf("rewards: collect eligible providers: %w", err)
	}
	if len(eligible) == 0 || pending == 0 {
		if err := e.state.SetLastDistributionTs(ctx, nowNs); err != nil {
			return DistributionResult{}, err
		}
		return DistributionResult{Distributed: false}, nil
	}

	perProvider := pending / uint64(len(eligible))
	mint := token.Account{Owner: crypto.ZeroPrincipal}
	var total uint64
	for _, p := range eligible {
		dest := token.Account{Owner: p}
		zeroFee := uint64(0)
		if _, err := e.tokens.Transfer(nowNs, token.TransferArgs{
			From: mint, To: dest, Amount: perProvider, Fee: &zeroFee,
		}); err != nil {
			return DistributionResult{}, fmt.Errorf("rewards: mint to provider: %w", err)
		}
		total += perProvider
	}

	if err := e.state.SetLastDistributionTs(ctx, nowNs); err != nil {
		return DistributionResult{}, err
	}
	return DistributionResult{Distributed: true, PerProvider: perProvider, ProviderCount: len(eligible), TotalPaid: total}, nil
}

func (e *Engine) lastDistributionTs(ctx context.Context) (int64, error) {
	if ts, ok, err := e.state.LastDistributionTs(ctx); err != nil {
		return 0, err
	} else if ok {
		return ts, nil
	}
	if ts, ok, err := e.chain.LatestBlockTimestampNs(ctx); err != nil {
		return 0, err
	} else if ok {
		return ts, nil
	}
	return FirstBlockTimestampNs, nil
}

// CheckInResult carries the fee charged and final reward-per-block, echoed
// in the HTTP response message.
type CheckInResult struct {
	FeeCharged     uint64
	RewardPerBlock uint64
}

// CheckIn validates and applies a provider's signed liveness beacon.
func (e *Engine) CheckIn(ctx context.Context, nowNs int64, signer crypto.Identity, pubkey crypto.Principal, memo string, nonceSig []byte, memoMax int) (CheckInResult, error) {
	if len(memo) > memoMax {
		return CheckInResult{}, ErrMemoTooLong
	}
	registered, err := e.providers.IsRegistered(ctx, pubkey)
	if err != nil {
		return CheckInResult{}, err
	}
	if !registered {
		return CheckInResult{}, ErrProviderNotRegistered
	}

	latestHash, err := e.chain.LatestBlockHash(ctx)
	if err != nil {
		return CheckInResult{}, err
	}
	if err := signer.Verify(latestHash, nonceSig); err != nil {
		return CheckInResult{}, ErrBadNonceSignature
	}

	blockCount, err := e.chain.BlockCount(ctx)
	if err != nil {
		return CheckInResult{}, err
	}

	rewardPerBlock := RewardPerBlock(nowNs)
	var feeCharged uint64
	if blockCount > 0 {
		feeCharged = rewardPerBlock / CheckInFeeDivisor
		feeMemo := fmt.Sprintf("check-in-%s-%d-%s", pubkey.Short(), blockCount, memo)
		if len(feeMemo) > token.TransferMemoBytesMax {
			feeMemo = feeMemo[:token.TransferMemoBytesMax]
		}
		zeroFee := uint64(0)
		from := token.Account{Owner: pubkey}
		burnTo := token.Account{Owner: crypto.ZeroPrincipal}
		if _, err := e.tokens.Transfer(nowNs, token.TransferArgs{
			From: from, To: burnTo, Amount: feeCharged, Fee: &zeroFee, Memo: []byte(feeMemo),
		}); err != nil {
			return CheckInResult{}, fmt.Errorf("rewards: charge check-in fee: %w", err)
		}
	}

	if err := e.providers.AppendCheckIn(ctx, pubkey, memo, nonceSig); err != nil {
		return CheckInResult{}, fmt.Errorf("rewards: append check-in: %w", err)
	}

	return CheckInResult{FeeCharged: feeCharged, RewardPerBlock: rewardPerBlock}, nil
}
