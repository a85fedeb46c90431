package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const cloudflareAPIBase = "https://api.cloudflare.com/client/v4"

var (
	ErrInvalidDCID = errors.New("gateway: invalid dc_id")
	ErrInvalidSlug = errors.New("gateway: invalid slug")
)

// DNSConfig carries the Cloudflare credentials and naming scheme read from
// CF_API_TOKEN / CF_ZONE_ID / CF_DOMAIN / CF_GW_PREFIX.
type DNSConfig struct {
	APIToken string
	ZoneID   string
	Domain   string
	GWPrefix string
}

// DNSCoordinator manages gateway A/TXT records against the Cloudflare v4
// API.
type DNSCoordinator struct {
	cfg    DNSConfig
	client *http.Client
}

// NewDNSCoordinator builds a coordinator from cfg, defaulting Domain and
// GWPrefix when unset.
func NewDNSCoordinator(cfg DNSConfig) *DNSCoordinator {
	if cfg.Domain == "" {
		cfg.Domain = "decent-cloud.org"
	}
	if cfg.GWPrefix == "" {
		cfg.GWPrefix = "gw"
	}
	return &DNSCoordinator{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}
}

// GatewayFQDN builds {slug}.{dc_id}.{gw_prefix}.{domain}.
func (d *DNSCoordinator) GatewayFQDN(slug, dcID string) string {
	return fmt.Sprintf("%s.%s.%s.%s", slug, dcID, d.cfg.GWPrefix, d.cfg.Domain)
}

// ValidateDCID enforces 2-20 chars, [a-z0-9-], no leading/trailing hyphen.
func ValidateDCID(dcID string) error {
	if len(dcID) < 2 || len(dcID) > 20 {
		return fmt.Errorf("%w: must be 2-20 characters, got %d", ErrInvalidDCID, len(dcID))
	}
	for _, r := range dcID {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' {
			return fmt.Errorf("%w: must contain only [a-z0-9-]", ErrInvalidDCID)
		}
	}
	if strings.HasPrefix(dcID, "-") || strings.HasSuffix(dcID, "-") {
		return fmt.Errorf("%w: must not start or end with a hyphen", ErrInvalidDCID)
	}
	return nil
}

// ValidateSlug enforces exactly 6 of [a-z0-9].
func ValidateSlug(slug string) error {
	if len(slug) != slugLength {
		return fmt.Errorf("%w: must be exactly %d characters", ErrInvalidSlug, slugLength)
	}
	for _, r := range slug {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return fmt.Errorf("%w: must contain only [a-z0-9]", ErrInvalidSlug)
		}
	}
	return nil
}

type cfResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []cfError       `json:"errors"`
}

type cfError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

type cfRecord struct {
	ID string `json:"id"`
}

type cfCreateRecord struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

func (d *DNSCoordinator) do(ctx context.Context, method, url string, body any) (*cfResponse, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gateway: marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: cloudflare request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read cloudflare response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway: cloudflare api error (%d): %s", resp.StatusCode, string(data))
	}

	var parsed cfResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("gateway: parse cloudflare response: %w", err)
	}
	if !parsed.Success {
		var msgs []string
		for _, e := range parsed.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("gateway: cloudflare errors: %s", strings.Join(msgs, ", "))
	}
	return &parsed, nil
}

// CreateRecord creates an A record for slug.dcID.gwPrefix -> publicIP.
func (d *DNSCoordinator) CreateRecord(ctx context.Context, slug, dcID, publicIP string) error {
	if err := ValidateSlug(slug); err != nil {
		return err
	}
	if err := ValidateDCID(dcID); err != nil {
		return err
	}
	name := fmt.Sprintf("%s.%s.%s", slug, dcID, d.cfg.GWPrefix)
	url := fmt.Sprintf("%s/zones/%s/dns_records", cloudflareAPIBase, d.cfg.ZoneID)
	_, err := d.do(ctx, http.MethodPost, url, cfCreateRecord{Type: "A", Name: name, Content: publicIP, TTL: 300, Proxied: false})
	return err
}

// DeleteRecord removes the A record for slug.dcID; a record that is already
// gone is treated as success.
func (d *DNSCoordinator) DeleteRecord(ctx context.Context, slug, dcID string) error {
	fqdn := d.GatewayFQDN(slug, dcID)
	id, found, err := d.findRecordID(ctx, fqdn, "A")
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	url := fmt.Sprintf("%s/zones/%s/dns_records/%s", cloudflareAPIBase, d.cfg.ZoneID, id)
	_, err = d.do(ctx, http.MethodDelete, url, nil)
	return err
}

// UpsertTXT idempotently creates or updates a TXT record (e.g. DKIM) by
// name.
func (d *DNSCoordinator) UpsertTXT(ctx context.Context, name, content string) error {
	full := fmt.Sprintf("%s.%s", name, d.cfg.Domain)
	id, found, err := d.findRecordID(ctx, full, "TXT")
	if err != nil {
		return err
	}
	record := cfCreateRecord{Type: "TXT", Name: name, Content: content, TTL: 300}
	if found {
		url := fmt.Sprintf("%s/zones/%s/dns_records/%s", cloudflareAPIBase, d.cfg.ZoneID, id)
		_, err := d.do(ctx, http.MethodPut, url, record)
		return err
	}
	url := fmt.Sprintf("%s/zones/%s/dns_records", cloudflareAPIBase, d.cfg.ZoneID)
	_, err = d.do(ctx, http.MethodPost, url, record)
	return err
}

func (d *DNSCoordinator) findRecordID(ctx context.Context, name, recordType string) (string, bool, error) {
	url := fmt.Sprintf("%s/zones/%s/dns_records?type=%s&name=%s", cloudflareAPIBase, d.cfg.ZoneID, recordType, name)
	resp, err := d.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	var records []cfRecord
	if err := json.Unmarshal(resp.Result, &records); err != nil {
		return "", false, fmt.Errorf("gateway: parse dns records: %w", err)
	}
	if len(records) == 0 {
		return "", false, nil
	}
	return records[0].ID, true, nil
}
