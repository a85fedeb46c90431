package api

import (
	"net/http"

	"decent-cloud/internal/crypto"
	"decent-cloud/internal/token"

	"github.com/gorilla/mux"
)

// BalanceOf handles GET /token/balance/{principal}: a read-only query over
// the in-memory ledger fold maintained exclusively by the sync task.
func (s *Server) BalanceOf(w http.ResponseWriter, r *http.Request) {
	owner, err := crypto.ParsePrincipal(mux.Vars(r)["principal"])
	if err != nil {
		http.Error(w, "invalid principal", http.StatusBadRequest)
		return
	}
	balance := s.Tokens.BalanceOf(token.Account{Owner: owner})
	writeJSON(w, http.StatusOK, map[string]uint64{"balance_e9s": balance})
}

// Allowance handles GET /token/allowance/{owner}/{spender}.
func (s *Server) Allowance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner, err := crypto.ParsePrincipal(vars["owner"])
	if err != nil {
		http.Error(w, "invalid owner", http.StatusBadRequest)
		return
	}
	spender, err := crypto.ParsePrincipal(vars["spender"])
	if err != nil {
		http.Error(w, "invalid spender", http.StatusBadRequest)
		return
	}
	amount, expiresAtNs := s.Tokens.Allowance(token.Account{Owner: owner}, token.Account{Owner: spender})
	resp := map[string]interface{}{"allowance_e9s": amount}
	if expiresAtNs != nil {
		resp["expires_at_ns"] = *expiresAtNs
	}
	writeJSON(w, http.StatusOK, resp)
}
