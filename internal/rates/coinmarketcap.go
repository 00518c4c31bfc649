package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/congo-pay/fxledger/internal/ledger"
)

const DefaultCoinMarketCapURL = "https://pro-api.coinmarketcap.com/v1/cryptocurrency/quotes/latest"

var (
	cryptos = []ledger.Currency{ledger.BTC, ledger.ETH, ledger.DOGE, ledger.USDT}
	fiats   = []ledger.Currency{ledger.EUR, ledger.AUD, ledger.CAD, ledger.ARS, ledger.PLN}
)

// CoinMarketCapProvider prices crypto directly in USD and derives each fiat
// value from the USDT quote in that fiat.
type CoinMarketCapProvider struct {
	endpoint   string
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
	maxElapsed time.Duration
}

// NewCoinMarketCapProvider builds a throttled client. rps <= 0 disables
// throttling.
func NewCoinMarketCapProvider(endpoint, apiKey string, rps float64) *CoinMarketCapProvider {
	if endpoint == "" {
		endpoint = DefaultCoinMarketCapURL
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &CoinMarketCapProvider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(limit, 1),
		maxElapsed: 30 * time.Second,
	}
}

type quotesResponse struct {
	Data map[string]struct {
		Quote map[string]struct {
			Price decimal.Decimal `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

func (p *CoinMarketCapProvider) USDValues(ctx context.Context) (map[ledger.Currency]decimal.Decimal, error) {
	values := map[ledger.Currency]decimal.Decimal{ledger.USD: decimal.NewFromInt(1)}

	symbols := make([]string, len(cryptos))
	for i, c := range cryptos {
		symbols[i] = string(c)
	}
	quotes, err := p.fetch(ctx, url.Values{"symbol": {strings.Join(symbols, ",")}})
	if err != nil {
		return nil, err
	}
	for _, c := range cryptos {
		price, err := quotes.price(string(c), "USD")
		if err != nil {
			return nil, err
		}
		values[c] = price
	}

	for _, fiat := range fiats {
		quotes, err := p.fetch(ctx, url.Values{"symbol": {"USDT"}, "convert": {string(fiat)}})
		if err != nil {
			return nil, err
		}
		price, err := quotes.price("USDT", string(fiat))
		if err != nil {
			return nil, err
		}
		if price.IsZero() {
			continue
		}
		values[fiat] = decimal.NewFromInt(1).Div(price)
	}
	return values, nil
}

func (q quotesResponse) price(symbol, convert string) (decimal.Decimal, error) {
	entry, ok := q.Data[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("coinmarketcap: no data for %s", symbol)
	}
	quote, ok := entry.Quote[convert]
	if !ok {
		return decimal.Zero, fmt.Errorf("coinmarketcap: no %s quote for %s", convert, symbol)
	}
	return quote.Price, nil
}

func (p *CoinMarketCapProvider) fetch(ctx context.Context, params url.Values) (quotesResponse, error) {
	var out quotesResponse
	operation := func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-CMC_PRO_API_KEY", p.apiKey)

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("coinmarketcap: status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("coinmarketcap: status %d", resp.StatusCode))
		}
		out = quotesResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("coinmarketcap: decode: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = p.maxElapsed
	var policy backoff.BackOff = b
	if singleAttempt(ctx) {
		policy = backoff.WithMaxRetries(b, 0)
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return quotesResponse{}, err
	}
	return out, nil
}
