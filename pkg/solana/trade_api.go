package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/time/rate"
)

// Trade API pools.
const (
	PoolPump    = "pump"
	PoolPumpAmm = "pump-amm"
)

// Trade API actions.
const (
	ActionBuy               = "buy"
	ActionCollectCreatorFee = "collectCreatorFee"
)

// TradeRequest is the body of a trade-local request. The API answers with an
// unsigned serialized transaction for PublicKey to sign.
type TradeRequest struct {
	PublicKey        string  `json:"publicKey"`
	Action           string  `json:"action"`
	Mint             string  `json:"mint,omitempty"`
	Amount           float64 `json:"amount,omitempty"`
	DenominatedInSol string  `json:"denominatedInSol,omitempty"`
	Slippage         float64 `json:"slippage"`
	PriorityFee      float64 `json:"priorityFee"`
	Pool             string  `json:"pool,omitempty"`
}

// TradeAPIClient builds pump transactions through a trade-local HTTP endpoint.
type TradeAPIClient struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewTradeAPIClient(endpoint string, rps float64, httpClient *http.Client) *TradeAPIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &TradeAPIClient{
		endpoint:   endpoint,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// BuildTransaction requests and decodes an unsigned transaction.
// Throttling, server errors and network failures are ErrTransient.
func (c *TradeAPIClient) BuildTransaction(ctx context.Context, req TradeRequest) (*solana.Transaction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal trade request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build trade request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: trade api %s: %v", ErrTransient, req.Action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read trade api response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: trade api %s: status %d", ErrTransient, req.Action, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("trade api %s: status %d: %s", req.Action, resp.StatusCode, truncate(string(raw), 200))
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode trade api transaction: %w", err)
	}
	return tx, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
