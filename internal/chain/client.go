package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Client is a JSON-RPC ledger client.
type Client struct {
	rpcURL     string
	httpClient *http.Client

	sendAttempts int
	retryDelay   time.Duration
	confirmPoll  time.Duration

	nextID atomic.Int64
}

// Config holds client configuration.
type Config struct {
	RPCURL       string
	Timeout      time.Duration // per HTTP call, default 30s
	SendAttempts int           // bounded submission retries, default 3
	RetryDelay   time.Duration // delay between submission retries, default 2s
	ConfirmPoll  time.Duration // confirmation poll interval, default 2s
}

// NewClient creates a new ledger client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SendAttempts == 0 {
		cfg.SendAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.ConfirmPoll == 0 {
		cfg.ConfirmPoll = 2 * time.Second
	}

	return &Client{
		rpcURL:       cfg.RPCURL,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		sendAttempts: cfg.SendAttempts,
		retryDelay:   cfg.RetryDelay,
		confirmPoll:  cfg.ConfirmPoll,
	}, nil
}

// =============================================================================
// Core RPC Methods
// =============================================================================

// Call makes an RPC call to the ledger node.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      int(c.nextID.Add(1)),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// =============================================================================
// Account Reads
// =============================================================================

type keyedAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data []string `json:"data"` // [payload, encoding]
	} `json:"account"`
}

// ListProgramAccounts enumerates all state objects owned by programID.
func (c *Client) ListProgramAccounts(ctx context.Context, programID Address) ([]Account, error) {
	params := []any{
		programID.String(),
		map[string]any{"encoding": "base64"},
	}
	result, err := c.Call(ctx, "getProgramAccounts", params)
	if err != nil {
		return nil, fmt.Errorf("list program accounts: %w", err)
	}

	var keyed []keyedAccount
	if err := json.Unmarshal(result, &keyed); err != nil {
		return nil, fmt.Errorf("unmarshal program accounts: %w", err)
	}

	accounts := make([]Account, 0, len(keyed))
	for _, ka := range keyed {
		addr, err := AddressFromBase58(ka.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", ka.Pubkey, err)
		}
		data, err := decodeAccountData(ka.Account.Data)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", ka.Pubkey, err)
		}
		accounts = append(accounts, Account{Address: addr, Data: data})
	}
	return accounts, nil
}

// GetAccount reads a single account. Returns nil data if the account does
// not exist.
func (c *Client) GetAccount(ctx context.Context, addr Address) ([]byte, error) {
	params := []any{
		addr.String(),
		map[string]any{"encoding": "base64"},
	}
	result, err := c.Call(ctx, "getAccountInfo", params)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	var resp struct {
		Value *struct {
			Data []string `json:"data"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	if resp.Value == nil {
		return nil, nil
	}
	return decodeAccountData(resp.Value.Data)
}

func decodeAccountData(data []string) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(data[0])
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return raw, nil
}

// =============================================================================
// Transaction Submission
// =============================================================================

// LatestBlockhash fetches a recent blockhash to anchor a transaction.
func (c *Client) LatestBlockhash(ctx context.Context) (Blockhash, error) {
	var bh Blockhash

	result, err := c.Call(ctx, "getLatestBlockhash", nil)
	if err != nil {
		return bh, fmt.Errorf("get latest blockhash: %w", err)
	}

	var resp struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return bh, fmt.Errorf("unmarshal blockhash: %w", err)
	}

	raw, err := AddressFromBase58(resp.Value.Blockhash)
	if err != nil {
		return bh, fmt.Errorf("blockhash: %w", err)
	}
	copy(bh[:], raw[:])
	return bh, nil
}

// SendAndConfirm submits a signed transaction and waits for confirmation,
// retrying submission a bounded number of times. Once a send succeeds the
// transaction is an immutable external event; only the send itself retries.
func (c *Client) SendAndConfirm(ctx context.Context, tx *Transaction) (Signature, error) {
	wire, err := tx.Serialize()
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= c.sendAttempts; attempt++ {
		sig, err := c.sendTransaction(ctx, wire)
		if err == nil {
			if err := c.waitForConfirmation(ctx, sig); err != nil {
				return "", err
			}
			return sig, nil
		}

		lastErr = err
		if attempt < c.sendAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return "", fmt.Errorf("send failed after %d attempts: %w", c.sendAttempts, lastErr)
}

func (c *Client) sendTransaction(ctx context.Context, wire string) (Signature, error) {
	params := []any{
		wire,
		map[string]any{"encoding": "base64"},
	}
	result, err := c.Call(ctx, "sendTransaction", params)
	if err != nil {
		return "", err
	}

	var sig string
	if err := json.Unmarshal(result, &sig); err != nil {
		return "", fmt.Errorf("unmarshal signature: %w", err)
	}
	return Signature(sig), nil
}

// waitForConfirmation polls signature status until the transaction confirms
// or the context expires.
func (c *Client) waitForConfirmation(ctx context.Context, sig Signature) error {
	ticker := time.NewTicker(c.confirmPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm %s: %w", sig, ctx.Err())
		case <-ticker.C:
			confirmed, err := c.signatureConfirmed(ctx, sig)
			if err != nil {
				return err
			}
			if confirmed {
				return nil
			}
		}
	}
}

func (c *Client) signatureConfirmed(ctx context.Context, sig Signature) (bool, error) {
	result, err := c.Call(ctx, "getSignatureStatuses", []any{[]string{string(sig)}})
	if err != nil {
		return false, fmt.Errorf("signature status: %w", err)
	}

	var resp struct {
		Value []*struct {
			ConfirmationStatus string `json:"confirmationStatus"`
			Err                any    `json:"err"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return false, fmt.Errorf("unmarshal signature status: %w", err)
	}
	if len(resp.Value) == 0 || resp.Value[0] == nil {
		return false, nil
	}
	status := resp.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("transaction %s failed on ledger: %v", sig, status.Err)
	}
	return status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized", nil
}
