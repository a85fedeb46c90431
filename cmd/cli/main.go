// Command dc is the end-user command line client for the marketplace API:
// account sign-up and key management, offering search and catalog upload,
// contract lifecycle, delegation issuance, and token balance lookups,
// generalized from the teacher's cobra CLI (cmd/synnergy/main.go) against
// the signed-request HTTP surface in internal/api instead of a local opcode
// dispatcher.
package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
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

func defaultKeyDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".dc-cli")
}

func main() {
	rootCmd := &cobra.Command{Use: "dc"}
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(offeringsCmd())
	rootCmd.AddCommand(contractsCmd())
	rootCmd.AddCommand(delegationsCmd())
	rootCmd.AddCommand(tokenCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// keyCmd manages the local signing key every other command signs requests
// with, mirroring dc-agent's own keypair lifecycle.
func keyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "key", Short: "manage the local signing keypair"}
	var force bool
	gen := &cobra.Command{
		Use:   "init",
		Short: "generate (or reuse) the CLI's signing keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, pubHex, err := loadOrGenerateKeypair(defaultKeyDir(), force)
			if err != nil {
				return err
			}
			fmt.Printf("public key: %s\n", pubHex)
			return nil
		},
	}
	gen.Flags().BoolVar(&force, "force", false, "overwrite an existing keypair")
	cmd.AddCommand(gen)
	return cmd
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "account", Short: "account sign-up and key management"}
	cmd.AddCommand(accountCreateCmd())
	cmd.AddCommand(accountGetCmd())
	cmd.AddCommand(accountBindKeyCmd())
	return cmd
}

func accountCreateCmd() *cobra.Command {
	var username, email, displayName string
	apiURL := ""
	cmd := &cobra.Command{
		Use:   "create",
		Short: "sign up with the local keypair's public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, pubHex, err := loadOrGenerateKeypair(defaultKeyDir(), false)
			if err != nil {
				return err
			}
			body, _ := json.Marshal(map[string]string{
				"username": username, "email": email, "display_name": displayName, "public_key": pubHex,
			})
			return printResponse(http.Post(apiURL+"/accounts", "application/json", bytes.NewReader(body)))
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "apiserver base URL")
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	return cmd
}

func accountGetCmd() *cobra.Command {
	var apiURL, principal string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "fetch an account by principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(apiURL + "/accounts/" + principal)
			return printResponse(resp, err)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "apiserver base URL")
	cmd.Flags().StringVar(&principal, "principal", "", "account principal")
	return cmd
}

func accountBindKeyCmd() *cobra.Command {
	var apiURL, principal, publicKey string
	cmd := &cobra.Command{
		Use:   "bind-key",
		Short: "bind an additional public key to the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, _, err := loadOrGenerateKeypair(defaultKeyDir(), false)
			if err != nil {
				return err
			}
			body, _ := json.Marshal(map[string]string{"public_key": publicKey})
			return doSigned(priv, http.MethodPost, apiURL, "/accounts/"+principal+"/keys", body)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "apiserver base URL")
	cmd.Flags().StringVar(&principal, "principal", "", "account principal")
	cmd.Flags().StringVar(&publicKey, "public-key", "", "the new raw public key, hex encoded")
	return cmd
}

func offeringsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "offerings", Short: "search and manage marketplace offerings"}
	cmd.AddCommand(offeringsSearchCmd())
	cmd.AddCommand(offeringsUploadCmd())
	return cmd
}

func offeringsSearchCmd() *cobra.Command {
	var apiURL, country, productType string
	cmd := &cobra.Command{
		Use:   "search",
		Short: "search published offerings",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := "?country=" + country + "&product_type=" + productType
			resp, err := http.Get(apiURL + "/offerings" + q)
			return printResponse(resp, err)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "apiserver base URL")
	cmd.Flags().StringVar(&country, "country", "", "country filter")
	cmd.Flags().StringVar(&productType, "product-type", "", "product type filter")
	return cmd
}

func offeringsUploadCmd() *cobra.Command {
	var apiURL, provider, csvFile string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "replace a provider's published catalog from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, _, err := loadOrGenerateKeypair(defaultKeyDir(), false)
			if err != nil {
				return err
			}
			var body []byte
			if csvFile != "" {
				body, err = os.ReadFile(csvFile)
				if err != nil {
					return fmt.Errorf("dc: read csv file: %w", err)
				}
			}
			return doSignedWithType(priv, http.MethodPost, apiURL, "/offerings/provider/"+provider, body, "text/csv")
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "apiserver base URL")
	cmd.Flags().StringVar(&provider, "provider", "", "provider principal")
	cmd.Flags().StringVar(&csvFile, "csv-file", "", "path to the offering catalog CSV")
	return cmd
}

func contractsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "contracts", Short: "rent and manage contracts"}
	cmd.AddCommand(contractsCreateCmd())
	cmd.AddCommand(contractsGetCmd())
	cmd.AddCommand(contractsCancelCmd())
	return cmd
}

func contractsCreateCmd() *cobra.Command {
	var apiURL, provider, offeringID, paymentMethod, sshPubkey, contact, memo string
	var duration uint32
	cmd := &cobra.Command{
		Use:   "create",
		Short: "open a rental request against a published offering",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, _, err := loadOrGenerateKeypair(defaultKeyDir(), false)
			if err != nil {
				return err
			}
			body, _ := json.Marshal(map[string]interface{}{
				"provider_pubkey":   provider,
				"offering_id":       offeringID,
				"payment_method":    paymentMethod,
				"ssh_pubkey":        sshPubkey,
				"requester_contact": contact,
				"duration_hours":    duration,
				"memo":              memo,
			})
			return doSigned(priv, http.MethodPost, apiURL, "/contracts", body)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "apiserver base URL")
	cmd.Flags().StringVar(&provider, "provider", "", "provider principal")
	cmd.Flags().StringVar(&offeringID, "offering-id", "", "offering id within the provider's catalog")
	cmd.Flags().StringVar(&paymentMethod, "payment-method", "stripe", "stripe, icpay, or dct")
	cmd.Flags().StringVar(&sshPubkey, "ssh-pubkey", "", "SSH public key for provisioning")
	cmd.Flags().StringVar(&contact, "contact", "", "requester contact info")
	cmd.Flags().Uint32Var(&duration, "hours", 1, "rental duration in hours")
	cmd.Flags().StringVar(&memo, "memo", "", "optional memo")
	return cmd
}

func contractsGetCmd() *cobra.Command {
	var apiURL, id string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "fetch a contract by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(apiURL + "/contracts/" + id)
			return printResponse(resp, err)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "apiserver base URL")
	cmd.Flags().StringVar(&id, "id", "", "contract id, hex encoded")
	return cmd
}

func contractsCancelCmd() *cobra.Command {
	var apiURL, id string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "cancel a contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, _, err := loadOrGenerateKeypair(defaultKeyDir(), false)
			if err != nil {
				return err
			}
			return doSigned(priv, http.MethodPost, apiURL, "/contracts/"+id+"/cancel", nil)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "apiserver base URL")
	cmd.Flags().StringVar(&id, "id", "", "contract id, hex encoded")
	return cmd
}

func delegationsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "delegations", Short: "issue agent delegations"}
	cmd.AddCommand(delegationsCreateCmd())
	return cmd
}

func delegationsCreateCmd() *cobra.Command {
	var apiURL, agentPubkey string
	var expiresAtNs uint64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "delegate heartbeat/provisioning authority to an agent, signed with the local keypair as the provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, pubHex, err := loadOrGenerateKeypair(defaultKeyDir(), false)
			if err != nil {
				return err
			}
			perms := []delegation.Permission{delegation.PermHeartbeat, delegation.PermHealthCheck, delegation.PermFetchContracts}
			var expires *uint64
			if expiresAtNs != 0 {
				expires = &expiresAtNs
			}

			agentRawSlice, err := hex.DecodeString(agentPubkey)
			if err != nil || len(agentRawSlice) != 32 {
				return fmt.Errorf("dc: invalid --agent-pubkey")
			}
			providerRawSlice, err := hex.DecodeString(pubHex)
			if err != nil || len(providerRawSlice) != 32 {
				return fmt.Errorf("dc: invalid local public key")
			}
			var agentRaw, providerRaw [32]byte
			copy(agentRaw[:], agentRawSlice)
			copy(providerRaw[:], providerRawSlice)

			// The signature covers the raw 32-byte Ed25519 keys directly, not
			// their derived Principals, so the message is built straight from
			// the hex-decoded bytes rather than round-tripping through crypto.
			msg, err := delegation.SigningMessage(agentRaw, providerRaw, perms, expires, nil)
			if err != nil {
				return err
			}
			sig, err := priv.Sign(nil, msg, &ed25519.Options{Context: crypto.DomainContext})
			if err != nil {
				return err
			}

			body, _ := json.Marshal(map[string]interface{}{
				"agent_pubkey":    agentPubkey,
				"provider_pubkey": pubHex,
				"permissions":     perms,
				"expires_at_ns":   expires,
				"signature":       hex.EncodeToString(sig),
			})
			return printResponse(http.Post(apiURL+"/delegations", "application/json", bytes.NewReader(body)))
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "apiserver base URL")
	cmd.Flags().StringVar(&agentPubkey, "agent-pubkey", "", "the agent's raw public key, hex encoded")
	cmd.Flags().Uint64Var(&expiresAtNs, "expires-at-ns", 0, "unix nanosecond expiry, 0 for none")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "token balance lookups"}
	var apiURL, principal string
	balance := &cobra.Command{
		Use:   "balance",
		Short: "look up a principal's token balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(apiURL + "/token/balance/" + principal)
			return printResponse(resp, err)
		},
	}
	balance.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "apiserver base URL")
	balance.Flags().StringVar(&principal, "principal", "", "account principal")
	cmd.AddCommand(balance)
	return cmd
}

func loadOrGenerateKeypair(dir string, force bool) (ed25519.PrivateKey, string, error) {
	privPath := filepath.Join(dir, "cli.key")
	pubPath := filepath.Join(dir, "cli.pub")

	if !force {
		if privBytes, err := os.ReadFile(privPath); err == nil {
			pubHex, err := os.ReadFile(pubPath)
			if err != nil {
				return nil, "", fmt.Errorf("dc: read existing public key: %w", err)
			}
			priv, err := hex.DecodeString(string(privBytes))
			if err != nil {
				return nil, "", fmt.Errorf("dc: decode existing private key: %w", err)
			}
			return ed25519.PrivateKey(priv), string(pubHex), nil
		}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, "", fmt.Errorf("dc: create key directory: %w", err)
	}
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, "", fmt.Errorf("dc: generate keypair: %w", err)
	}
	pubHex := hex.EncodeToString(pub)
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
		return nil, "", fmt.Errorf("dc: write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(pubHex), 0o644); err != nil {
		return nil, "", fmt.Errorf("dc: write public key: %w", err)
	}
	return priv, pubHex, nil
}

// doSigned sends a signed-request envelope the way dc-agent's heartbeat
// does: headers over the canonical message, body passed through unmodified.
func doSigned(priv ed25519.PrivateKey, method, apiURL, path string, body []byte) error {
	return doSignedWithType(priv, method, apiURL, path, body, "application/json")
}

func doSignedWithType(priv ed25519.PrivateKey, method, apiURL, path string, body []byte, contentType string) error {
	nonce := uuid.NewString()
	timestamp := fmt.Sprintf("%d", time.Now().UnixNano())
	msg := auth.CanonicalMessage(timestamp, nonce, method, path, body)
	sig, err := priv.Sign(nil, msg, &ed25519.Options{Context: crypto.DomainContext})
	if err != nil {
		return fmt.Errorf("dc: sign request: %w", err)
	}

	req, err := http.NewRequest(method, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dc: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(auth.HeaderPublicKey, hex.EncodeToString(priv.Public().(ed25519.PublicKey)))
	req.Header.Set(auth.HeaderSignature, hex.EncodeToString(sig))
	req.Header.Set(auth.HeaderTimestamp, timestamp)
	req.Header.Set(auth.HeaderNonce, nonce)

	resp, err := http.DefaultClient.Do(req)
	return printResponse(resp, err)
}

func printResponse(resp *http.Response, err error) error {
	if err != nil {
		return fmt.Errorf("dc: request failed: %w", err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("dc: read response: %w", err)
	}
	fmt.Println(string(out))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("dc: server responded with status %d", resp.StatusCode)
	}
	return nil
}
