package api

import (
	"net/http"
	"strconv"

	"decent-cloud/internal/crypto"
	"decent-cloud/internal/offering"

	"github.com/gorilla/mux"
)

// SearchOfferings handles GET /offerings?country=&product_type=&min_price=&max_price=&has_gpu=.
func (s *Server) SearchOfferings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f offering.Filter
	f.Country = q.Get("country")
	if v := q.Get("product_type"); v != "" {
		pt, err := offering.ParseProductType(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.ProductType = &pt
	}
	if v := q.Get("min_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid min_price", http.StatusBadRequest)
			return
		}
		f.MinPrice = &p
	}
	if v := q.Get("max_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid max_price", http.StatusBadRequest)
			return
		}
		f.MaxPrice = &p
	}
	if v := q.Get("has_gpu"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid has_gpu", http.StatusBadRequest)
			return
		}
		f.HasGPU = &b
	}

	results := s.Offerings.Search(f)
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(results), "offerings": results})
}

// ByProvider handles GET /offerings/provider/{pubkey}.
func (s *Server) ByProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := crypto.ParsePrincipal(mux.Vars(r)["pubkey"])
	if err != nil {
		http.Error(w, "invalid pubkey", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.Offerings.ByProvider(provider))
}

// GetOffering handles GET /offerings/provider/{pubkey}/{id}.
func (s *Server) GetOffering(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	provider, err := crypto.ParsePrincipal(vars["pubkey"])
	if err != nil {
		http.Error(w, "invalid pubkey", http.StatusBadRequest)
		return
	}
	o, ok := s.Offerings.Get(provider, vars["id"])
	if !ok {
		http.Error(w, "offering not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// UploadOfferings handles POST /offerings/provider/{pubkey}, replacing a
// provider's published catalog with a fresh CSV body.
func (s *Server) UploadOfferings(w http.ResponseWriter, r *http.Request) {
	provider, err := crypto.ParsePrincipal(mux.Vars(r)["pubkey"])
	if err != nil {
		http.Error(w, "invalid pubkey", http.StatusBadRequest)
		return
	}
	body, err := readAndRestoreBody(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if _, ok := verifySignedRequest(w, r, body); !ok {
		return
	}
	n, errs := s.OfferingReg.LoadCSV(provider, r.Body)
	resp := map[string]interface{}{"loaded": n}
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		resp["errors"] = msgs
	}
	writeJSON(w, http.StatusOK, resp)
}

// RemoveOfferings handles DELETE /offerings/provider/{pubkey}.
func (s *Server) RemoveOfferings(w http.ResponseWriter, r *http.Request) {
	provider, err := crypto.ParsePrincipal(mux.Vars(r)["pubkey"])
	if err != nil {
		http.Error(w, "invalid pubkey", http.StatusBadRequest)
		return
	}
	if _, ok := verifySignedRequest(w, r, nil); !ok {
		return
	}
	n := s.OfferingReg.RemoveProvider(provider)
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}
