// Package custody talks to the external wallet service. The engine never
// moves funds; it only resolves wallet references so escrow records point at
// the custody wallet whose lock backs them.
package custody

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// HTTPDirectory implements domain.WalletDirectory against the wallet
// service's REST API.
type HTTPDirectory struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPDirectory creates a directory client for the given wallet service.
func NewHTTPDirectory(baseURL, apiKey string, timeout time.Duration) *HTTPDirectory {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDirectory{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type walletResponse struct {
	WalletID string `json:"wallet_id"`
	Address  string `json:"address"`
}

// WalletRef resolves the user's custody wallet reference on a network.
func (d *HTTPDirectory) WalletRef(ctx context.Context, userID int64, network string) (string, error) {
	url := fmt.Sprintf("%s/v1/users/%d/wallets/%s", d.baseURL, userID, network)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("custody: create request: %w", err)
	}
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("custody: wallet lookup user %d network %s: %w", userID, network, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("custody: wallet for user %d on %s: %w", userID, network, domain.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("custody: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var wr walletResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return "", fmt.Errorf("custody: decode wallet response: %w", err)
	}
	if wr.WalletID == "" {
		return "", fmt.Errorf("custody: empty wallet_id for user %d on %s", userID, network)
	}
	return wr.WalletID, nil
}

// Compile-time interface check.
var _ domain.WalletDirectory = (*HTTPDirectory)(nil)
