package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPUpstream implements Upstream against the canonical ledger's read-only
// HTTP metadata/fetch endpoints. The upstream's own runtime (the on-chain
// canister and its replication protocol) is an external collaborator this
// repo only ever reads from; this client is the thin, generalized stand-in
// for it, in the spirit of the teacher's plain net/http clients elsewhere
// in the codebase.
type HTTPUpstream struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPUpstream builds a client with the teacher's usual bounded timeout.
func NewHTTPUpstream(baseURL string) *HTTPUpstream {
	return &HTTPUpstream{BaseURL: baseURL, Client: &http.Client{Timeout: 30 * time.Second}}
}

type metadataResponse struct {
	DataBegin         int64 `json:"data_begin"`
	NextWritePosition int64 `json:"next_write_position"`
	StorageBytes      int64 `json:"storage_bytes"`
}

func (u *HTTPUpstream) Metadata(ctx context.Context) (UpstreamMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.BaseURL+"/metadata", nil)
	if err != nil {
		return UpstreamMetadata{}, fmt.Errorf("ledger: build metadata request: %w", err)
	}
	resp, err := u.Client.Do(req)
	if err != nil {
		return UpstreamMetadata{}, fmt.Errorf("ledger: fetch metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return UpstreamMetadata{}, fmt.Errorf("ledger: metadata status %d", resp.StatusCode)
	}
	var m metadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return UpstreamMetadata{}, fmt.Errorf("ledger: decode metadata: %w", err)
	}
	return UpstreamMetadata{DataBegin: m.DataBegin, NextWritePosition: m.NextWritePosition, StorageBytes: m.StorageBytes}, nil
}

func (u *HTTPUpstream) Fetch(ctx context.Context, position, length int64) ([]byte, error) {
	url := fmt.Sprintf("%s/fetch?position=%d&length=%d", u.BaseURL, position, length)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: build fetch request: %w", err)
	}
	resp, err := u.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger: fetch chunk: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ledger: fetch status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ledger: read fetch body: %w", err)
	}
	return b, nil
}
