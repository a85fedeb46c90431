package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"decent-cloud/internal/contract"
	"decent-cloud/internal/crypto"

	"github.com/gorilla/mux"
)

type createContractRequest struct {
	ProviderPubkey   string `json:"provider_pubkey"`
	OfferingID       string `json:"offering_id"`
	PaymentMethod    string `json:"payment_method"`
	SSHPubkey        string `json:"ssh_pubkey"`
	RequesterContact string `json:"requester_contact"`
	DurationHours    uint32 `json:"duration_hours"`
	Memo             string `json:"memo"`
}

// fixedOffering implements contract.OfferingLookup over a single offering
// already resolved from the marketplace registry, bridging its
// (provider, string id) key to the int64-id-keyed lookup CreateRentalRequest
// expects: the registry is an in-memory index with no integer row id of its
// own, so the offering_db_id parameter degenerates to a constant for the one
// offering actually being requested.
type fixedOffering struct {
	id   int64
	info contract.OfferingInfo
}

func (f fixedOffering) GetOffering(ctx context.Context, offeringDBID int64) (contract.OfferingInfo, bool, error) {
	if offeringDBID != f.id {
		return contract.OfferingInfo{}, false, nil
	}
	return f.info, true, nil
}

func contractResponse(c contract.Contract) map[string]interface{} {
	resp := map[string]interface{}{
		"id":                 hexEncode(c.ID[:]),
		"requester_pubkey":   c.RequesterPubkey.String(),
		"provider_pubkey":    c.ProviderPubkey.String(),
		"payment_amount_e9s": c.PaymentAmountE9s,
		"currency":           c.Currency.String(),
		"payment_method":     c.PaymentMethod.String(),
		"payment_status":     c.PaymentStatus.String(),
		"status":             c.Status.String(),
		"duration_hours":     c.DurationHours,
	}
	if c.StripeCheckoutURL != nil {
		resp["stripe_checkout_url"] = *c.StripeCheckoutURL
	}
	return resp
}

// CreateContract handles POST /contracts: opens a rental request and, for
// Stripe-paid offerings, returns a checkout URL to redirect the caller to.
func (s *Server) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req createContractRequest
	body, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}
	v, ok := verifySignedRequest(w, r, body)
	if !ok {
		return
	}

	method, err := contract.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	providerPk, err := crypto.ParsePrincipal(req.ProviderPubkey)
	if err != nil {
		http.Error(w, "invalid provider_pubkey", http.StatusBadRequest)
		return
	}
	listed, ok := s.Offerings.Get(providerPk, req.OfferingID)
	if !ok {
		http.Error(w, "offering not found", http.StatusNotFound)
		return
	}
	id, err := contract.NewContractID()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	offeringDBID := int64(1)
	lookup := fixedOffering{id: offeringDBID, info: contract.OfferingInfo{
		MonthlyPriceE9s: uint64(listed.Server.MonthlyPrice * 1e9),
		Currency:        contract.Currency(listed.Server.Currency),
		Name:            listed.Server.OfferName,
		ProviderPubkey:  listed.Provider,
	}}

	c, err := contract.CreateRentalRequest(r.Context(), s.Contracts, lookup, s.StripeClient, id, v.Principal, time.Now().UnixNano(), contract.RentalRequestParams{
		OfferingDBID: offeringDBID, PaymentMethod: method, SSHPubkey: req.SSHPubkey,
		RequesterContact: req.RequesterContact, DurationHours: req.DurationHours, Memo: req.Memo,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, contractResponse(c))
}

// GetContract handles GET /contracts/{id}.
func (s *Server) GetContract(w http.ResponseWriter, r *http.Request) {
	id, err := parseContractID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, ok, err := s.Contracts.GetContract(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "contract not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, contractResponse(c))
}

type extendContractRequest struct {
	ExtensionHours uint32 `json:"extension_hours"`
	Memo           string `json:"memo"`
}

// ExtendContract handles POST /contracts/{id}/extend.
func (s *Server) ExtendContract(w http.ResponseWriter, r *http.Request) {
	id, err := parseContractID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req extendContractRequest
	body, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}
	if _, ok := verifySignedRequest(w, r, body); !ok {
		return
	}

	amount, err := contract.ExtendContract(r.Context(), s.Contracts, id, req.ExtensionHours, req.Memo, time.Now().UnixNano())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount_e9s": amount})
}

// CancelContract handles POST /contracts/{id}/cancel.
func (s *Server) CancelContract(w http.ResponseWriter, r *http.Request) {
	id, err := parseContractID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := verifySignedRequest(w, r, nil); !ok {
		return
	}
	if err := contract.CancelContract(r.Context(), s.Contracts, s.StripeClient, s.ICPayClient, id, s.Log); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

type confirmPaymentRequest struct {
	NotifyEmail string `json:"notify_email"`
}

// ConfirmPayment handles POST /contracts/{id}/confirm-payment, called by the
// payment webhook relay once Stripe/ICPay report success.
func (s *Server) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := parseContractID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req confirmPaymentRequest
	if _, ok := decodeJSON(w, r, &req); !ok {
		return
	}

	receiptNumber, err := contract.ConfirmPayment(r.Context(), s.Contracts, s.ReceiptSeq, s.Invoices, s.Notifier, id, req.NotifyEmail)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"receipt_number": receiptNumber})
}

func parseContractID(s string) ([32]byte, error) {
	var id [32]byte
	raw, err := hexDecode(s)
	if err != nil || len(raw) != 32 {
		return id, fmt.Errorf("invalid contract id")
	}
	copy(id[:], raw)
	return id, nil
}
