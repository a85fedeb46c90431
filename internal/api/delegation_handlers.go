package api

import (
	"net/http"
	"time"

	"decent-cloud/internal/crypto"
	"decent-cloud/internal/delegation"

	"github.com/gorilla/mux"
)

type createDelegationRequest struct {
	AgentPubkey    string                  `json:"agent_pubkey"`
	ProviderPubkey string                  `json:"provider_pubkey"`
	Permissions    []delegation.Permission `json:"permissions"`
	ExpiresAtNs    *uint64                 `json:"expires_at_ns"`
	Label          *string                 `json:"label"`
	SignatureHex   string                  `json:"signature"`
}

// CreateDelegation handles POST /delegations: the provider signs off on an
// agent's scoped authority; the signature is over delegation.SigningMessage,
// not the outer signed-request envelope. Both pubkeys travel as raw
// (32-byte) hex-encoded Ed25519 keys, since the provider key must still be
// recoverable for Verify -- a Principal alone cannot be turned back into a
// verifying key.
func (s *Server) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	var req createDelegationRequest
	if _, ok := decodeJSON(w, r, &req); !ok {
		return
	}

	agentRaw, agentPk, err := parsePublicKeyHex(req.AgentPubkey)
	if err != nil {
		http.Error(w, "invalid agent_pubkey", http.StatusBadRequest)
		return
	}
	providerRaw, providerPk, err := parsePublicKeyHex(req.ProviderPubkey)
	if err != nil {
		http.Error(w, "invalid provider_pubkey", http.StatusBadRequest)
		return
	}
	sig, err := hexDecode(req.SignatureHex)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	msg, err := delegation.SigningMessage(agentRaw, providerRaw, req.Permissions, req.ExpiresAtNs, req.Label)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	providerIdentity, err := crypto.NewVerifyingFromBytes(providerRaw[:])
	if err != nil {
		http.Error(w, "cannot verify provider key", http.StatusBadRequest)
		return
	}
	if err := providerIdentity.Verify(msg, sig); err != nil {
		http.Error(w, "signature verification failed", http.StatusUnauthorized)
		return
	}

	d := delegation.Delegation{
		AgentPubkey: agentPk, AgentPubkeyRaw: agentRaw, ProviderPubkey: providerPk, ProviderPubkeyRaw: providerRaw,
		Permissions: req.Permissions, ExpiresAtNs: req.ExpiresAtNs, Label: req.Label, Signature: sig,
		CreatedAtNs: time.Now().UnixNano(),
	}
	if err := s.Delegations.Upsert(r.Context(), d); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"active": true})
}

// RevokeDelegation handles DELETE /delegations/{agent_pubkey}.
func (s *Server) RevokeDelegation(w http.ResponseWriter, r *http.Request) {
	agentPk, err := crypto.ParsePrincipal(mux.Vars(r)["agent_pubkey"])
	if err != nil {
		http.Error(w, "invalid agent_pubkey", http.StatusBadRequest)
		return
	}
	if _, ok := verifySignedRequest(w, r, nil); !ok {
		return
	}
	if err := s.Delegations.Revoke(r.Context(), agentPk, time.Now().UnixNano()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

type heartbeatRequest struct {
	ProviderPubkey  string   `json:"provider_pubkey"`
	Version         string   `json:"version"`
	ProvisionerType string   `json:"provisioner_type"`
	Capabilities    []string `json:"capabilities"`
	ActiveContracts int      `json:"active_contracts"`
}

// Heartbeat handles POST /delegations/heartbeat: called by an agent on its
// own behalf or (per delegation.Authorize) on a provider's behalf.
func (s *Server) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	body, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}
	v, ok := verifySignedRequest(w, r, body)
	if !ok {
		return
	}
	providerPk, err := crypto.ParsePrincipal(req.ProviderPubkey)
	if err != nil {
		http.Error(w, "invalid provider_pubkey", http.StatusBadRequest)
		return
	}
	now := time.Now().UnixNano()
	if err := delegation.Authorize(r.Context(), s.Delegations, v.Principal, providerPk, delegation.PermHeartbeat, now); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	hb := delegation.Heartbeat{
		ProviderPubkey: providerPk, LastHeartbeatNs: now, Version: req.Version,
		ProvisionerType: req.ProvisionerType, Capabilities: req.Capabilities,
		ActiveContracts: req.ActiveContracts, Online: true,
	}
	if err := s.Delegations.UpsertHeartbeat(r.Context(), hb); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GetHeartbeat handles GET /delegations/heartbeat/{provider_pubkey}.
func (s *Server) GetHeartbeat(w http.ResponseWriter, r *http.Request) {
	providerPk, err := crypto.ParsePrincipal(mux.Vars(r)["provider_pubkey"])
	if err != nil {
		http.Error(w, "invalid provider_pubkey", http.StatusBadRequest)
		return
	}
	hb, ok, err := s.Delegations.HeartbeatByProvider(r.Context(), providerPk)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no heartbeat on file", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, hb)
}
