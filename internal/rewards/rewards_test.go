package rewards

import (
	"context"
	"testing"

	"decent-cloud/internal/crypto"
	"decent-cloud/internal/token"

	"github.com/stretchr/testify/require"
)

func TestRewardPerBlockAtGenesis(t *testing.T) {
	require.Equal(t, BaseRewardE9s, RewardPerBlock(FirstBlockTimestampNs))
}

func TestRewardPerBlockHalvesOnSchedule(t *testing.T) {
	oneHalvingNs := FirstBlockTimestampNs + int64(RewardHalvingAfterBlocks)*BlockIntervalSecs*1_000_000_000
	require.Equal(t, BaseRewardE9s/2, RewardPerBlock(oneHalvingNs))

	twoHalvingsNs := FirstBlockTimestampNs + 2*int64(RewardHalvingAfterBlocks)*BlockIntervalSecs*1_000_000_000
	require.Equal(t, BaseRewardE9s/4, RewardPerBlock(twoHalvingsNs))
}

func TestPendingRewardNonDecreasing(t *testing.T) {
	last := FirstBlockTimestampNs
	r := RewardPerBlock(last)
	p1 := PendingReward(last+int64(BlockIntervalSecs)*1_000_000_000, last, r)
	p2 := PendingReward(last+2*int64(BlockIntervalSecs)*1_000_000_000, last, r)
	require.Greater(t, p2, p1)
}

type fakeChain struct {
	blockCount  uint64
	latestHash  []byte
	latestTs    int64
	hasLatestTs bool
}

func (f *fakeChain) BlockCount(ctx context.Context) (uint64, error) { return f.blockCount, nil }
func (f *fakeChain) LatestBlockHash(ctx context.Context) ([]byte, error) { return f.latestHash, nil }
func (f *fakeChain) LatestBlockTimestampNs(ctx context.Context) (int64, bool, error) {
	return f.latestTs, f.hasLatestTs, nil
}

type fakeState struct {
	ts int64
	ok bool
}

func (f *fakeState) LastDistributionTs(ctx context.Context) (int64, bool, error) { return f.ts, f.ok, nil }
func (f *fakeState) SetLastDistributionTs(ctx context.Context, ts int64) error {
	f.ts, f.ok = ts, true
	return nil
}

type fakeRegistry struct {
	registered map[crypto.Principal]bool
	eligible   []crypto.Principal
	checkIns   int
}

func (f *fakeRegistry) IsRegistered(ctx context.Context, pk crypto.Principal) (bool, error) {
	return f.registered[pk], nil
}
func (f *fakeRegistry) EligibleForNextDistribution(ctx context.Context) ([]crypto.Principal, error) {
	return f.eligible, nil
}
func (f *fakeRegistry) AppendCheckIn(ctx context.Context, pk crypto.Principal, memo string, sig []byte) error {
	f.checkIns++
	return nil
}

func principalWithByte(b byte) crypto.Principal {
	var p crypto.Principal
	p[0] = b
	p[28] = 0x02
	return p
}

func TestDistributeTwoEligibleProviders(t *testing.T) {
	p1 := principalWithByte(1)
	p2 := principalWithByte(2)

	tokens := token.NewLedger()
	chain := &fakeChain{latestTs: FirstBlockTimestampNs, hasLatestTs: true}
	state := &fakeState{}
	registry := &fakeRegistry{eligible: []crypto.Principal{p1, p2}}
	engine := NewEngine(tokens, chain, state, registry)

	now := FirstBlockTimestampNs + int64(BlockIntervalSecs)*1_000_000_000
	result, err := engine.Distribute(context.Background(), now)
	require.NoError(t, err)
	require.True(t, result.Distributed)
	require.Equal(t, 2, result.ProviderCount)

	bal1 := tokens.BalanceOf(token.Account{Owner: p1})
	bal2 := tokens.BalanceOf(token.Account{Owner: p2})
	require.Equal(t, result.PerProvider, bal1)
	require.Equal(t, bal1, bal2)

	second, err := engine.Distribute(context.Background(), now)
	require.NoError(t, err)
	require.False(t, second.Distributed)
}

func TestDistributeNoEligibleProvidersIsNoOp(t *testing.T) {
	tokens := token.NewLedger()
	chain := &fakeChain{latestTs: FirstBlockTimestampNs, hasLatestTs: true}
	state := &fakeState{}
	registry := &fakeRegistry{}
	engine := NewEngine(tokens, chain, state, registry)

	result, err := engine.Distribute(context.Background(), FirstBlockTimestampNs+1_000_000_000)
	require.NoError(t, err)
	require.False(t, result.Distributed)
}

func TestCheckInHappyPath(t *testing.T) {
	tokens := token.NewLedger()
	p1 := principalWithByte(1)
	mint := token.Account{Owner: crypto.ZeroPrincipal}
	zeroFee := uint64(0)
	_, err := tokens.Transfer(1, token.TransferArgs{From: mint, To: token.Account{Owner: p1}, Amount: 1_000_000_000, Fee: &zeroFee})
	require.NoError(t, err)

	chain := &fakeChain{blockCount: 5, latestHash: []byte("latest-block-hash")}
	state := &fakeState{}
	registry := &fakeRegistry{registered: map[crypto.Principal]bool{p1: true}}
	engine := NewEngine(tokens, chain, state, registry)

	sig, err := dummySigner().Sign(chain.latestHash)
	require.NoError(t, err)

	result, err := engine.CheckIn(context.Background(), FirstBlockTimestampNs, dummySigner(), p1, "hello", sig, token.ValidationMemoBytesMax)
	require.NoError(t, err)
	require.Greater(t, result.FeeCharged, uint64(0))
	require.Equal(t, 1, registry.checkIns)
}

func TestCheckInRejectsUnregisteredProvider(t *testing.T) {
	tokens := token.NewLedger()
	p1 := principalWithByte(1)
	chain := &fakeChain{blockCount: 1, latestHash: []byte("hash")}
	state := &fakeState{}
	registry := &fakeRegistry{}
	engine := NewEngine(tokens, chain, state, registry)

	_, err := engine.CheckIn(context.Background(), 1, dummySigner(), p1, "hi", []byte{}, token.ValidationMemoBytesMax)
	require.ErrorIs(t, err, ErrProviderNotRegistered)
}

func TestCheckInRejectsMemoTooLong(t *testing.T) {
	tokens := token.NewLedger()
	p1 := principalWithByte(1)
	chain := &fakeChain{}
	state := &fakeState{}
	registry := &fakeRegistry{registered: map[crypto.Principal]bool{p1: true}}
	engine := NewEngine(tokens, chain, state, registry)

	longMemo := make([]byte, token.ValidationMemoBytesMax+1)
	_, err := engine.CheckIn(context.Background(), 1, dummySigner(), p1, string(longMemo), []byte{}, token.ValidationMemoBytesMax)
	require.ErrorIs(t, err, ErrMemoTooLong)
}

func dummySigner() crypto.Identity {
	seed := make([]byte, 32)
	seed[0] = 0x42
	id, _ := crypto.NewSigningFromSeed(seed)
	return id
}
