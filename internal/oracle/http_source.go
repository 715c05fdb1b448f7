package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
)

// Source fetches a fresh SOL/USD price.
type Source interface {
	Fetch(ctx context.Context) (decimal.Decimal, error)
	Name() string
}

// HTTPSource reads a CoinGecko-style simple price document:
//
//	{"solana": {"usd": 142.37}}
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{url: url, client: client}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return decimal.Zero, fmt.Errorf("fetch price: status %d", resp.StatusCode)
	}

	var doc struct {
		Solana struct {
			USD decimal.Decimal `json:"usd"`
		} `json:"solana"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&doc); err != nil {
		return decimal.Zero, fmt.Errorf("decode price: %w", err)
	}
	if !doc.Solana.USD.IsPositive() {
		return decimal.Zero, fmt.Errorf("price %s: %w", doc.Solana.USD, ErrInvalidPrice)
	}
	return doc.Solana.USD, nil
}
