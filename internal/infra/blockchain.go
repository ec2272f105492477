package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProvenanceEvent is one entry submitted to the blockchain middleware. The
// middleware owns keys, signing and the ledger; this service only sends the
// event and stores the returned address.
type ProvenanceEvent struct {
	Kind      string    `json:"kind"` // transaction | claim
	ID        string    `json:"id"`
	NodeID    string    `json:"node_id"`
	PeerID    string    `json:"peer_id,omitempty"`
	Quantity  string    `json:"quantity,omitempty"`
	Inputs    []string  `json:"inputs,omitempty"`
	Outputs   []string  `json:"outputs,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LogReceipt is returned by the middleware once the event is accepted.
type LogReceipt struct {
	Address string `json:"address"`
}

// BlockchainClient submits provenance events over HTTP. Each request carries
// a short-lived HS256 token so the middleware can authenticate the caller.
type BlockchainClient struct {
	baseURL    string
	secret     []byte
	httpClient *http.Client
}

func NewBlockchainClient(baseURL, secret string) *BlockchainClient {
	return &BlockchainClient{
		baseURL:    baseURL,
		secret:     []byte(secret),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Log sends ev to the middleware and returns its ledger address.
func (c *BlockchainClient) Log(ctx context.Context, ev ProvenanceEvent) (*LogReceipt, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("blockchain: marshal event: %w", err)
	}

	token, err := c.sign(ev.ID)
	if err != nil {
		return nil, fmt.Errorf("blockchain: sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/logs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("blockchain: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blockchain: middleware unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("blockchain: middleware returned %d", resp.StatusCode)
	}

	var receipt LogReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("blockchain: decode response: %w", err)
	}
	if receipt.Address == "" {
		return nil, fmt.Errorf("blockchain: empty address for %s %s", ev.Kind, ev.ID)
	}
	return &receipt, nil
}

func (c *BlockchainClient) sign(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "fairtrace",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}
