package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	registered []ProvRegisterEntry
	checkIns   []ProvCheckInEntry
	transfers  []DCTokenTransferEntry
	approvals  []DCTokenApprovalEntry
	unknown    []UnknownEntry
	blocks     [][32]byte
}

func (r *recordingDispatcher) ProvRegister(e ProvRegisterEntry) error {
	r.registered = append(r.registered, e)
	return nil
}
func (r *recordingDispatcher) UserRegister(UserRegisterEntry) error { return nil }
func (r *recordingDispatcher) ProvCheckIn(e ProvCheckInEntry) error {
	r.checkIns = append(r.checkIns, e)
	return nil
}
func (r *recordingDispatcher) ProvProfile(ProvProfileEntry) error { return nil }
func (r *recordingDispatcher) DCTokenTransfer(e DCTokenTransferEntry) error {
	r.transfers = append(r.transfers, e)
	return nil
}
func (r *recordingDispatcher) DCTokenApproval(e DCTokenApprovalEntry) error {
	r.approvals = append(r.approvals, e)
	return nil
}
func (r *recordingDispatcher) ReputationChange(ReputationChangeEntry) error     { return nil }
func (r *recordingDispatcher) RewardDistribution(RewardDistributionEntry) error { return nil }
func (r *recordingDispatcher) Unknown(e UnknownEntry)                          { r.unknown = append(r.unknown, e) }
func (r *recordingDispatcher) BlockCommitted(hash [32]byte, timestampNs int64) error {
	r.blocks = append(r.blocks, hash)
	return nil
}

func TestDecodeAndDispatchProvRegister(t *testing.T) {
	d := &recordingDispatcher{}
	err := DecodeAndDispatch(Entry{Label: LabelProvRegister, Key: []byte("pk"), Value: []byte("sig")}, d)
	require.NoError(t, err)
	require.Len(t, d.registered, 1)
	require.Equal(t, []byte("pk"), d.registered[0].Pubkey)
}

func TestDecodeAndDispatchCheckInLegacy64Byte(t *testing.T) {
	d := &recordingDispatcher{}
	sig := make([]byte, 64)
	err := DecodeAndDispatch(Entry{Label: LabelProvCheckIn, Key: []byte("pk"), Value: sig}, d)
	require.NoError(t, err)
	require.Len(t, d.checkIns, 1)
	require.Equal(t, "", d.checkIns[0].Memo)
	require.Equal(t, sig, d.checkIns[0].NonceSig)
}

func TestDecodeAndDispatchCheckInJSON(t *testing.T) {
	d := &recordingDispatcher{}
	payload, err := json.Marshal(map[string]interface{}{"memo": "hello", "nonce_sig": []byte("abc")})
	require.NoError(t, err)
	err = DecodeAndDispatch(Entry{Label: LabelProvCheckIn, Key: []byte("pk"), Value: payload}, d)
	require.NoError(t, err)
	require.Equal(t, "hello", d.checkIns[0].Memo)
}

func TestDecodeAndDispatchUnknownLabel(t *testing.T) {
	d := &recordingDispatcher{}
	err := DecodeAndDispatch(Entry{Label: "SomethingNew", Key: []byte("k"), Value: []byte("v")}, d)
	require.NoError(t, err)
	require.Len(t, d.unknown, 1)
	require.Equal(t, "SomethingNew", d.unknown[0].Label)
}

func TestTokenTransferLayoutRoundTrip(t *testing.T) {
	var e DCTokenTransferEntry
	e.From[0] = 0xAA
	e.To[0] = 0xBB
	e.Amount = 1000
	e.Fee = 10
	e.Memo = []byte("payment for rental")
	e.CreatedAtNs = 1_700_000_000_000_000_000

	layout := EncodeTokenTransferLayout(e)
	decoded, err := decodeTokenTransfer(layout)
	require.NoError(t, err)
	require.Equal(t, e.From, decoded.From)
	require.Equal(t, e.To, decoded.To)
	require.Equal(t, e.Amount, decoded.Amount)
	require.Equal(t, e.Fee, decoded.Fee)
	require.Equal(t, e.Memo, decoded.Memo)
	require.Equal(t, e.CreatedAtNs, decoded.CreatedAtNs)
}

func TestTokenTransferLayoutEmptyMemo(t *testing.T) {
	var e DCTokenTransferEntry
	layout := EncodeTokenTransferLayout(e)
	decoded, err := decodeTokenTransfer(layout)
	require.NoError(t, err)
	require.Empty(t, decoded.Memo)
}

func TestDecodeAndDispatchTokenApproval(t *testing.T) {
	d := &recordingDispatcher{}
	var owner, spender [principalSize]byte
	owner[0] = 1
	spender[0] = 2
	key := append(append([]byte{}, owner[:]...), spender[:]...)
	value, err := json.Marshal(map[string]interface{}{"amount": 500})
	require.NoError(t, err)

	err = DecodeAndDispatch(Entry{Label: LabelDCTokenApproval, Key: key, Value: value}, d)
	require.NoError(t, err)
	require.Len(t, d.approvals, 1)
	require.Equal(t, uint64(500), d.approvals[0].Amount)
	require.Nil(t, d.approvals[0].ExpiresAtNs)
}

func TestDecodeAndDispatchTokenApprovalBadKey(t *testing.T) {
	d := &recordingDispatcher{}
	err := DecodeAndDispatch(Entry{Label: LabelDCTokenApproval, Key: []byte("short"), Value: []byte("{}")}, d)
	require.Error(t, err)
}
