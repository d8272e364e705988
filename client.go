// Package tapthat is a Go client for the tap-to-execute relay API.
package tapthat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/ports"
	"github.com/layer-3/tapthat/service"
)

var _ ports.BridgeRequestSource = (*Client)(nil)

const defaultTimeout = 30 * time.Second

// TapRequest is the JSON body of a tap relay request
type TapRequest struct {
	Owner         string `json:"owner"`
	Chip          string `json:"chip"`
	ChipSignature string `json:"chipSignature"`
	Timestamp     string `json:"timestamp"`
	Nonce         string `json:"nonce"`
	ChainID       uint64 `json:"chainId"`
	Value         string `json:"value,omitempty"`
}

// PaymentRequest is the JSON body of a payment relay request
type PaymentRequest struct {
	Payer          string `json:"payer"`
	PayerChip      string `json:"payerChip"`
	Payee          string `json:"payee"`
	PayeeChip      string `json:"payeeChip"`
	Token          string `json:"token"`
	Amount         string `json:"amount"`
	Timestamp      string `json:"timestamp"`
	Nonce          string `json:"nonce"`
	PayerSignature string `json:"payerSignature"`
	ChainID        uint64 `json:"chainId"`
}

// Client talks to a relay over HTTP. It is the request source of an
// approval flow running on a second device.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the relay at baseURL. A nil httpClient
// uses one with a 30 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ExecuteTap forwards a chip authorization to the relay
func (c *Client) ExecuteTap(ctx context.Context, req TapRequest) (*service.TapResult, error) {
	var res service.TapResult
	if err := c.do(ctx, http.MethodPost, "/relay/execute-tap", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExecutePayment forwards a payer chip authorization to the relay
func (c *Client) ExecutePayment(ctx context.Context, req PaymentRequest) (*service.TxResult, error) {
	var res service.TxResult
	if err := c.do(ctx, http.MethodPost, "/relay/execute-payment", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetBridgeRequest(ctx context.Context, requestID string) (*core.BridgeRequest, error) {
	var res core.BridgeRequest
	if err := c.do(ctx, http.MethodGet, bridgePath(requestID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) CompleteBridgeRequest(ctx context.Context, requestID, txHash string) error {
	body := map[string]string{"txHash": txHash}
	return c.do(ctx, http.MethodPost, bridgePath(requestID)+"/complete", body, nil)
}

// VerifyBridgeRequest asks the relay to check a request against a wallet
func (c *Client) VerifyBridgeRequest(ctx context.Context, requestID, connectedWallet string) (*service.VerificationResult, error) {
	var res service.VerificationResult
	body := map[string]string{"connectedWallet": connectedWallet}
	if err := c.do(ctx, http.MethodPost, bridgePath(requestID)+"/verify", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Subscribe registers a browser push subscription for userAddress
func (c *Client) Subscribe(ctx context.Context, userAddress string, sub core.PushSubscription) error {
	body := map[string]any{
		"userAddress": userAddress,
		"subscription": map[string]any{
			"endpoint": sub.Endpoint,
			"keys":     sub.Keys,
		},
	}
	return c.do(ctx, http.MethodPost, "/push/subscribe", body, nil)
}

// VAPIDPublicKey returns the key browsers subscribe with
func (c *Client) VAPIDPublicKey(ctx context.Context) (string, error) {
	var res struct {
		PublicKey string `json:"publicKey"`
	}
	if err := c.do(ctx, http.MethodGet, "/push/subscribe", nil, &res); err != nil {
		return "", err
	}
	return res.PublicKey, nil
}

func bridgePath(requestID string) string {
	return "/bridge-requests/" + url.PathEscape(requestID)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if err := json.Unmarshal(raw, &eb); err != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: eb.Error, Shortfall: eb.shortfall()}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
