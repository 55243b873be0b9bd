// Package exchange talks to the Hyperliquid HTTP and websocket APIs.
// It implements the PriceSource, PositionSource and OrderExecutor ports.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"savantbot/internal/model"
)

const (
	defaultAPIURL = "https://api.hyperliquid.xyz"

	// Rate-limit retry schedule for the info endpoint.
	maxInfoRetries = 3
	retryBaseDelay = 2 * time.Second
)

// Config configures the HTTP client.
type Config struct {
	APIURL        string
	WalletAddress string
	PrivateKey    string
	Timeout       time.Duration // default: 7s
}

// Client is the Hyperliquid HTTP client.
type Client struct {
	apiURL        string
	walletAddress string
	privateKey    string
	httpClient    *http.Client
}

// NewClient creates a Hyperliquid client. Wallet credentials are only
// needed for trading calls; read-only callers may leave them empty.
func NewClient(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Client{
		apiURL:        strings.TrimRight(cfg.APIURL, "/"),
		walletAddress: cfg.WalletAddress,
		privateKey:    cfg.PrivateKey,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) post(ctx context.Context, path string, payload any, signed bool) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("exchange: marshal request: %w", err)
	}

	// Order submissions are never retried here: a request that timed out
	// may still have filled, and a duplicate market order is worse than a
	// surfaced error.
	retries := maxInfoRetries
	if signed {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			log.Printf("[exchange] retrying %s in %s (attempt %d/%d)", path, delay, attempt, maxInfoRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("exchange: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if signed {
			req.Header.Set("X-Wallet-Address", c.walletAddress)
			req.Header.Set("X-Private-Key", c.privateKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("exchange: %s: %w", path, err)
			continue
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("exchange: read %s response: %w", path, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("exchange: %s: rate limited (429)", path)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("exchange: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return raw, nil
	}
	return nil, lastErr
}

// Mid returns the current mid price for asset from the allMids feed.
func (c *Client) Mid(ctx context.Context, asset string) (float64, error) {
	raw, err := c.post(ctx, "/info", map[string]any{"type": "allMids"}, false)
	if err != nil {
		return 0, err
	}

	var mids map[string]string
	if err := json.Unmarshal(raw, &mids); err != nil {
		return 0, fmt.Errorf("exchange: parse allMids: %w", err)
	}
	s, ok := mids[asset]
	if !ok {
		return 0, fmt.Errorf("exchange: no mid for %s", asset)
	}
	mid, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("exchange: bad mid %q for %s: %w", s, asset, err)
	}
	if mid <= 0 {
		return 0, fmt.Errorf("exchange: non-positive mid %v for %s", mid, asset)
	}
	return mid, nil
}

// clearinghouseState is the subset of the user state response we need.
type clearinghouseState struct {
	AssetPositions []struct {
		Position struct {
			Coin           string `json:"coin"`
			Szi            string `json:"szi"`
			EntryPx        string `json:"entryPx"`
			UnrealizedPnl  string `json:"unrealizedPnl"`
			ReturnOnEquity string `json:"returnOnEquity"`
		} `json:"position"`
	} `json:"assetPositions"`
}

// OpenPositions returns the wallet's currently open perp positions.
// Positions with zero size are filtered out.
func (c *Client) OpenPositions(ctx context.Context) ([]model.Position, error) {
	raw, err := c.post(ctx, "/info", map[string]any{
		"type": "clearinghouseState",
		"user": c.walletAddress,
	}, false)
	if err != nil {
		return nil, err
	}

	var state clearinghouseState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("exchange: parse clearinghouseState: %w", err)
	}

	var out []model.Position
	for _, ap := range state.AssetPositions {
		p := ap.Position
		szi, err := strconv.ParseFloat(p.Szi, 64)
		if err != nil || szi == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPx, 64)
		roe, _ := strconv.ParseFloat(p.ReturnOnEquity, 64)
		pnl, _ := strconv.ParseFloat(p.UnrealizedPnl, 64)

		pos := model.Position{
			Asset:          p.Coin,
			Size:           szi,
			EntryPrice:     entry,
			ReturnOnEquity: roe,
			UnrealizedPnL:  pnl,
		}
		if szi > 0 {
			pos.Direction = model.DirectionLong
		} else {
			pos.Direction = model.DirectionShort
			pos.Size = -szi
		}
		out = append(out, pos)
	}
	return out, nil
}

// orderResponse mirrors the exchange endpoint response envelope.
type orderResponse struct {
	Status   string `json:"status"`
	Response struct {
		Data struct {
			Statuses []struct {
				Filled *struct {
					AvgPx   string `json:"avgPx"`
					TotalSz string `json:"totalSz"`
				} `json:"filled,omitempty"`
				Error string `json:"error,omitempty"`
			} `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

// MarketOrder submits an IOC market order. isBuy=true opens or adds long
// exposure, isBuy=false sells (used for closes).
func (c *Client) MarketOrder(ctx context.Context, asset string, isBuy bool, size float64) (model.OrderResult, error) {
	if c.walletAddress == "" || c.privateKey == "" {
		return model.OrderResult{}, fmt.Errorf("exchange: trading credentials not configured")
	}

	payload := map[string]any{
		"action": map[string]any{
			"type": "order",
			"orders": []map[string]any{{
				"coin":       asset,
				"is_buy":     isBuy,
				"sz":         size,
				"order_type": map[string]any{"market": map[string]any{"tif": "Ioc"}},
			}},
		},
		"wallet": c.walletAddress,
		"nonce":  time.Now().UnixMilli(),
	}

	raw, err := c.post(ctx, "/exchange", payload, true)
	if err != nil {
		return model.OrderResult{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.OrderResult{}, fmt.Errorf("exchange: parse order response: %w", err)
	}
	if resp.Status != "ok" {
		return model.OrderResult{OK: false, Message: resp.Status}, nil
	}
	for _, st := range resp.Response.Data.Statuses {
		if st.Error != "" {
			return model.OrderResult{OK: false, Message: st.Error}, nil
		}
		if st.Filled != nil {
			avg, _ := strconv.ParseFloat(st.Filled.AvgPx, 64)
			return model.OrderResult{OK: true, AvgPrice: avg}, nil
		}
	}
	return model.OrderResult{OK: true}, nil
}
