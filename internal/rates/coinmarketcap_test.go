package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/congo-pay/fxledger/internal/ledger"
)

func TestCoinMarketCapProvider(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("X-CMC_PRO_API_KEY") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		if convert := q.Get("convert"); convert != "" {
			fmt.Fprintf(w, `{"data":{"USDT":{"quote":{%q:{"price":0.8}}}}}`, convert)
			return
		}
		if q.Get("symbol") != "BTC,ETH,DOGE,USDT" {
			t.Errorf("unexpected symbols %q", q.Get("symbol"))
		}
		fmt.Fprint(w, `{"data":{
			"BTC":{"quote":{"USD":{"price":60000.5}}},
			"ETH":{"quote":{"USD":{"price":3000}}},
			"DOGE":{"quote":{"USD":{"price":0.1}}},
			"USDT":{"quote":{"USD":{"price":1}}}}}`)
	}))
	defer srv.Close()

	provider := NewCoinMarketCapProvider(srv.URL, "secret", 0)
	values, err := provider.USDValues(context.Background())
	if err != nil {
		t.Fatalf("usd values: %v", err)
	}
	if !values[ledger.BTC].Equal(d("60000.5")) {
		t.Fatalf("BTC: expected 60000.5, got %s", values[ledger.BTC])
	}
	if !values[ledger.EUR].Equal(d("1.25")) {
		t.Fatalf("EUR: expected 1.25, got %s", values[ledger.EUR])
	}
	if !values[ledger.USD].Equal(d("1")) {
		t.Fatalf("USD must be 1, got %s", values[ledger.USD])
	}
	if got := requests.Load(); got != 6 {
		t.Fatalf("expected 6 requests (1 crypto + 5 fiat), got %d", got)
	}
}

func TestCoinMarketCapProviderRetriesServerErrors(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if convert := r.URL.Query().Get("convert"); convert != "" {
			fmt.Fprintf(w, `{"data":{"USDT":{"quote":{%q:{"price":2}}}}}`, convert)
			return
		}
		fmt.Fprint(w, `{"data":{"BTC":{"quote":{"USD":{"price":1}}},"ETH":{"quote":{"USD":{"price":1}}},"DOGE":{"quote":{"USD":{"price":1}}},"USDT":{"quote":{"USD":{"price":1}}}}}`)
	}))
	defer srv.Close()

	provider := NewCoinMarketCapProvider(srv.URL, "", 0)
	if _, err := provider.USDValues(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if requests.Load() != 7 {
		t.Fatalf("expected one retried request, got %d total", requests.Load())
	}
}

func TestCoinMarketCapProviderClientErrorIsPermanent(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	provider := NewCoinMarketCapProvider(srv.URL, "bad", 0)
	provider.maxElapsed = time.Second
	if _, err := provider.USDValues(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if requests.Load() != 1 {
		t.Fatalf("client errors must not be retried, got %d requests", requests.Load())
	}
}

func TestLookupMissMakesSingleUpstreamAttempt(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	provider := NewCoinMarketCapProvider(srv.URL, "", 0)
	cache := NewMemoryCache()
	lookup := NewLookup(cache, NewUpdater(provider, cache, time.Hour, nil))

	start := time.Now()
	if _, err := lookup.GetRates(context.Background(), ledger.USD); !errors.Is(err, ledger.ErrRateFetchFailure) {
		t.Fatalf("expected rate fetch failure, got %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected a single upstream request, got %d", got)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("lookup waited %s on a failing upstream", elapsed)
	}
}
