// Package api wires the decentralized marketplace's HTTP surface: a
// gorilla/mux router, a logging middleware, and per-domain controllers that
// translate JSON requests into calls against the internal/* packages,
// generalized from the teacher's wallet server routing layer.
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"decent-cloud/internal/auth"

	"github.com/sirupsen/logrus"
)

// Logger logs method, path, status and duration for every request, grounded
// on the teacher's walletserver middleware.
func Logger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   sw.status,
				"duration": time.Since(start).String(),
			}).Info("api request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// verifySignedRequest re-derives auth.Headers/Verify for one request body,
// returning the verified caller or writing the appropriate error response.
func verifySignedRequest(w http.ResponseWriter, r *http.Request, body []byte) (auth.Verified, bool) {
	hdr, err := auth.ExtractHeaders(r.Header)
	if err != nil {
		writeAuthErr(w, err)
		return auth.Verified{}, false
	}
	v, err := auth.Verify(hdr, r.Method, r.URL.Path, body, time.Now())
	if err != nil {
		writeAuthErr(w, err)
		return auth.Verified{}, false
	}
	return v, true
}

func writeAuthErr(w http.ResponseWriter, err error) {
	if f, ok := err.(*auth.Failure); ok {
		http.Error(w, f.Reason, f.Status)
		return
	}
	http.Error(w, err.Error(), http.StatusUnauthorized)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) ([]byte, bool) {
	body, err := readAndRestoreBody(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			http.Error(w, "malformed JSON body", http.StatusBadRequest)
			return nil, false
		}
	}
	return body, true
}
