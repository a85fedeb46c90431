// Command dc-agent is the provider-side companion process: it holds its own
// Ed25519 keypair (init) and sends one signed heartbeat to the apiserver on a
// delegating provider's behalf per heartbeat invocation. It does not register
// itself with the provider or schedule heartbeats on its own; it is
// generalized from original_source/dc-agent's registration/gateway flow
// into the teacher's cobra CLI idiom (cmd/synnergy/main.go).
package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"decent-cloud/internal/auth"
	"decent-cloud/internal/crypto"
	"decent-cloud/internal/delegation"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func defaultAgentDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".dc-agent")
}

func main() {
	rootCmd := &cobra.Command{Use: "dc-agent"}
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(heartbeatCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "generate (or reuse) the agent's signing keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := defaultAgentDir()
			_, pubHex, err := loadOrGenerateKeypair(dir, force)
			if err != nil {
				return err
			}
			fmt.Printf("agent public key: %s\n", pubHex)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing keypair")
	return cmd
}

func heartbeatCmd() *cobra.Command {
	var apiURL, providerPubkeyHex, version, provisionerType string
	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "send one signed heartbeat to the apiserver on a provider's behalf",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, _, err := loadOrGenerateKeypair(defaultAgentDir(), false)
			if err != nil {
				return err
			}
			return sendHeartbeat(apiURL, priv, providerPubkeyHex, version, provisionerType)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "apiserver base URL")
	cmd.Flags().StringVar(&providerPubkeyHex, "provider", "", "provider principal this agent acts on behalf of")
	cmd.Flags().StringVar(&version, "version", "dev", "agent version string")
	cmd.Flags().StringVar(&provisionerType, "provisioner", "generic", "backend provisioner type")
	return cmd
}

func loadOrGenerateKeypair(dir string, force bool) (ed25519.PrivateKey, string, error) {
	privPath := filepath.Join(dir, "agent.key")
	pubPath := filepath.Join(dir, "agent.pub")

	if !force {
		if privBytes, err := os.ReadFile(privPath); err == nil {
			pubHex, err := os.ReadFile(pubPath)
			if err != nil {
				return nil, "", fmt.Errorf("agent: read existing public key: %w", err)
			}
			priv, err := hex.DecodeString(string(privBytes))
			if err != nil {
				return nil, "", fmt.Errorf("agent: decode existing private key: %w", err)
			}
			return ed25519.PrivateKey(priv), string(pubHex), nil
		}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, "", fmt.Errorf("agent: create key directory: %w", err)
	}
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, "", fmt.Errorf("agent: generate keypair: %w", err)
	}
	pubHex := hex.EncodeToString(pub)
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
		return nil, "", fmt.Errorf("agent: write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(pubHex), 0o644); err != nil {
		return nil, "", fmt.Errorf("agent: write public key: %w", err)
	}
	return priv, pubHex, nil
}

func sendHeartbeat(apiURL string, priv ed25519.PrivateKey, providerPubkeyHex, version, provisionerType string) error {
	if providerPubkeyHex == "" {
		return fmt.Errorf("agent: --provider is required")
	}
	if _, err := crypto.ParsePrincipal(providerPubkeyHex); err != nil {
		return fmt.Errorf("agent: invalid --provider: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"provider_pubkey":  providerPubkeyHex,
		"version":          version,
		"provisioner_type": provisionerType,
		"capabilities":     []delegation.Permission{delegation.PermHeartbeat, delegation.PermHealthCheck},
	})
	if err != nil {
		return fmt.Errorf("agent: encode heartbeat body: %w", err)
	}

	const method, path = http.MethodPost, "/delegations/heartbeat"
	nonce := uuid.NewString()
	timestamp := fmt.Sprintf("%d", time.Now().UnixNano())
	msg := auth.CanonicalMessage(timestamp, nonce, method, path, body)
	sig, err := priv.Sign(nil, msg, &ed25519.Options{Context: crypto.DomainContext})
	if err != nil {
		return fmt.Errorf("agent: sign heartbeat: %w", err)
	}

	req, err := http.NewRequest(method, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("agent: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderPublicKey, hex.EncodeToString(priv.Public().(ed25519.PublicKey)))
	req.Header.Set(auth.HeaderSignature, hex.EncodeToString(sig))
	req.Header.Set(auth.HeaderTimestamp, timestamp)
	req.Header.Set(auth.HeaderNonce, nonce)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent: send heartbeat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("agent: heartbeat rejected with status %d", resp.StatusCode)
	}
	fmt.Println("heartbeat accepted")
	return nil
}
