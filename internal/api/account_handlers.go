package api

import (
	"net/http"
	"time"

	"decent-cloud/internal/account"
	"decent-cloud/internal/auth"
	"decent-cloud/internal/crypto"

	"github.com/gorilla/mux"
)

type createAccountRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PublicKey   string `json:"public_key"`
}

type accountResponse struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	IsAdmin       bool   `json:"is_admin"`
	EmailVerified bool   `json:"email_verified"`
	CreatedAtNs   int64  `json:"created_at_ns"`
}

func toAccountResponse(a account.Account) accountResponse {
	return accountResponse{
		ID:            a.ID.String(),
		Username:      a.Username,
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		IsAdmin:       a.IsAdmin,
		EmailVerified: a.EmailVerified,
		CreatedAtNs:   a.CreatedAtNs,
	}
}

// CreateAccount handles POST /accounts: sign-up with the first bound key.
func (s *Server) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if _, ok := decodeJSON(w, r, &req); !ok {
		return
	}

	pub, principal, err := parsePublicKeyHex(req.PublicKey)
	if err != nil {
		http.Error(w, "invalid public_key", http.StatusBadRequest)
		return
	}

	a, err := account.CreateAccount(r.Context(), s.Accounts, principal, req.Username, req.Email, req.DisplayName, pub, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(a))
}

// GetAccount handles GET /accounts/{principal}.
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := crypto.ParsePrincipal(mux.Vars(r)["principal"])
	if err != nil {
		http.Error(w, "invalid principal", http.StatusBadRequest)
		return
	}
	a, err := s.Accounts.GetAccount(r.Context(), id)
	if err != nil {
		if err == account.ErrAccountNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

type bindKeyRequest struct {
	PublicKey string `json:"public_key"`
}

// BindKey handles POST /accounts/{principal}/keys: the caller must already
// be signed in as the account owner (checked via the signed-request
// headers) to add a second key.
func (s *Server) BindKey(w http.ResponseWriter, r *http.Request) {
	var req bindKeyRequest
	body, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}

	accountID, err := crypto.ParsePrincipal(mux.Vars(r)["principal"])
	if err != nil {
		http.Error(w, "invalid principal", http.StatusBadRequest)
		return
	}
	v, ok := verifySignedRequest(w, r, body)
	if !ok {
		return
	}
	if v.Principal != accountID {
		http.Error(w, "cannot bind a key to another account", http.StatusForbidden)
		return
	}

	pub, _, err := parsePublicKeyHex(req.PublicKey)
	if err != nil {
		http.Error(w, "invalid public_key", http.StatusBadRequest)
		return
	}
	binding, err := account.BindKey(r.Context(), s.Accounts, accountID, pub, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key_id": hexEncode(binding.ID[:])})
}

type setAdminRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// SetAdmin handles PUT /accounts/{principal}/admin: admin-only.
func (s *Server) SetAdmin(w http.ResponseWriter, r *http.Request) {
	var req setAdminRequest
	body, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}

	v, ok := verifySignedRequest(w, r, body)
	if !ok {
		return
	}
	if err := auth.RequireAdmin(v, s); err != nil {
		writeAuthErr(w, err)
		return
	}

	target, err := crypto.ParsePrincipal(mux.Vars(r)["principal"])
	if err != nil {
		http.Error(w, "invalid principal", http.StatusBadRequest)
		return
	}
	if err := account.SetAdmin(r.Context(), s.Accounts, target, req.IsAdmin); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_admin": req.IsAdmin})
}
