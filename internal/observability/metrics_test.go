package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutcome(t *testing.T) {
	rejected := errors.New("rejected")
	isBusiness := func(err error) bool { return errors.Is(err, rejected) }

	if got := Outcome(nil, isBusiness); got != "success" {
		t.Fatalf("expected success, got %s", got)
	}
	if got := Outcome(rejected, isBusiness); got != "rejected" {
		t.Fatalf("expected rejected, got %s", got)
	}
	if got := Outcome(errors.New("db down"), isBusiness); got != "error" {
		t.Fatalf("expected error, got %s", got)
	}
}

func TestLedgerOperationsCounter(t *testing.T) {
	counter := LedgerOperations.WithLabelValues("test_op", "success")
	before := testutil.ToFloat64(counter)
	counter.Inc()
	if after := testutil.ToFloat64(counter); after != before+1 {
		t.Fatalf("expected counter to grow by one, got %v -> %v", before, after)
	}
}
