package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// WSolMintAddress is the wrapped SOL mint, used as the quote side of every price.
const WSolMintAddress = "So11111111111111111111111111111111111111112"

// ErrPriceUnavailable is returned when no quote could be fetched and no cached price exists.
var ErrPriceUnavailable = errors.New("price unavailable")

// JupiterQuoteResponse is the subset of the Jupiter quote payload the price feed reads.
type JupiterQuoteResponse struct {
	InputMint      string      `json:"inputMint"`
	InAmount       string      `json:"inAmount"`
	OutputMint     string      `json:"outputMint"`
	OutAmount      string      `json:"outAmount"`
	SwapMode       string      `json:"swapMode"`
	SlippageBps    int         `json:"slippageBps"`
	PriceImpactPct string      `json:"priceImpactPct"`
	RoutePlan      []RoutePlan `json:"routePlan"`
	ContextSlot    int         `json:"contextSlot"`
}

// RoutePlan represents a route plan in the Jupiter response
type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
	Bps      int      `json:"bps"`
}

// SwapInfo represents swap information in a route plan
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

type tokenPriceCacheEntry struct {
	price     float64
	updatedAt time.Time
}

// JupiterPriceFeed quotes the SOL price of one whole token through the Jupiter quote API.
// The last good price per mint is cached and served when the API fails.
type JupiterPriceFeed struct {
	baseURL    string
	httpClient *http.Client
	// sampleAmount is the raw token amount quoted; the price is outAmount/sampleAmount scaled by decimals.
	sampleAmount uint64
	decimals     uint8

	mu    sync.RWMutex
	cache map[string]tokenPriceCacheEntry
}

// NewJupiterPriceFeed creates a price feed against baseURL (the /swap/v1/quote endpoint).
// Pump tokens use 6 decimals.
func NewJupiterPriceFeed(baseURL string, httpClient *http.Client) *JupiterPriceFeed {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &JupiterPriceFeed{
		baseURL:      baseURL,
		httpClient:   httpClient,
		sampleAmount: 1_000_000_000_000,
		decimals:     6,
		cache:        make(map[string]tokenPriceCacheEntry),
	}
}

// GetSwapResult retrieves an ExactIn quote from inputMint to outputMint.
func (f *JupiterPriceFeed) GetSwapResult(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*JupiterQuoteResponse, error) {
	params := url.Values{}
	params.Add("inputMint", inputMint)
	params.Add("outputMint", outputMint)
	params.Add("amount", strconv.FormatUint(amount, 10))
	params.Add("slippageBps", strconv.Itoa(slippageBps))
	params.Add("restrictIntermediateTokens", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP request failed with status: %d", resp.StatusCode)
	}

	var quote JupiterQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return &quote, nil
}

// GetSpotPrice returns the price of one token in SOL. On a failed quote it falls
// back to the cached price; with nothing cached it returns ErrPriceUnavailable.
func (f *JupiterPriceFeed) GetSpotPrice(ctx context.Context, mint string) (float64, error) {
	if mint == WSolMintAddress {
		return 1.0, nil
	}

	price, err := f.fetch(ctx, mint)
	if err == nil {
		f.mu.Lock()
		f.cache[mint] = tokenPriceCacheEntry{price: price, updatedAt: time.Now()}
		f.mu.Unlock()
		return price, nil
	}

	f.mu.RLock()
	entry, ok := f.cache[mint]
	f.mu.RUnlock()
	if ok {
		return entry.price, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
}

func (f *JupiterPriceFeed) fetch(ctx context.Context, mint string) (float64, error) {
	quote, err := f.GetSwapResult(ctx, mint, WSolMintAddress, f.sampleAmount, 50)
	if err != nil {
		return 0, err
	}

	outLamports, err := strconv.ParseFloat(quote.OutAmount, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse outAmount: %w", err)
	}
	if outLamports <= 0 {
		return 0, errors.New("quote returned no output")
	}

	tokens := float64(f.sampleAmount)
	for i := uint8(0); i < f.decimals; i++ {
		tokens /= 10
	}
	return outLamports / 1e9 / tokens, nil
}
