package api

import (
	"github.com/gorilla/mux"
)

// Register mounts every handler onto r, following the teacher's
// Register(r *mux.Router, controller) convention generalized to one
// Server holding every domain's dependencies instead of one controller per
// wallet concern.
func Register(r *mux.Router, s *Server) {
	r.Use(Logger(s.Log))

	r.HandleFunc("/accounts", s.CreateAccount).Methods("POST")
	r.HandleFunc("/accounts/{principal}", s.GetAccount).Methods("GET")
	r.HandleFunc("/accounts/{principal}/keys", s.BindKey).Methods("POST")
	r.HandleFunc("/accounts/{principal}/admin", s.SetAdmin).Methods("PUT")

	r.HandleFunc("/delegations", s.CreateDelegation).Methods("POST")
	r.HandleFunc("/delegations/{agent_pubkey}", s.RevokeDelegation).Methods("DELETE")
	r.HandleFunc("/delegations/heartbeat", s.Heartbeat).Methods("POST")
	r.HandleFunc("/delegations/heartbeat/{provider_pubkey}", s.GetHeartbeat).Methods("GET")

	r.HandleFunc("/contracts", s.CreateContract).Methods("POST")
	r.HandleFunc("/contracts/{id}", s.GetContract).Methods("GET")
	r.HandleFunc("/contracts/{id}/extend", s.ExtendContract).Methods("POST")
	r.HandleFunc("/contracts/{id}/cancel", s.CancelContract).Methods("POST")
	r.HandleFunc("/contracts/{id}/confirm-payment", s.ConfirmPayment).Methods("POST")

	r.HandleFunc("/offerings", s.SearchOfferings).Methods("GET")
	r.HandleFunc("/offerings/provider/{pubkey}", s.ByProvider).Methods("GET")
	r.HandleFunc("/offerings/provider/{pubkey}", s.UploadOfferings).Methods("POST")
	r.HandleFunc("/offerings/provider/{pubkey}", s.RemoveOfferings).Methods("DELETE")
	r.HandleFunc("/offerings/provider/{pubkey}/{id}", s.GetOffering).Methods("GET")

	r.HandleFunc("/token/balance/{principal}", s.BalanceOf).Methods("GET")
	r.HandleFunc("/token/allowance/{owner}/{spender}", s.Allowance).Methods("GET")
}
