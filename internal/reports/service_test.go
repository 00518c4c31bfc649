package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"

	"github.com/congo-pay/fxledger/internal/ledger"
	"github.com/congo-pay/fxledger/internal/logging"
)

type fakeUsers []time.Time

func (f fakeUsers) CreatedBetween(context.Context, time.Time, time.Time) ([]time.Time, error) {
	return f, nil
}

type fakeTxs struct {
	txs []ledger.Transaction
	err error
}

func (f fakeTxs) TransactionsBetween(context.Context, time.Time, time.Time) ([]ledger.Transaction, error) {
	return f.txs, f.err
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestGenerateStoresArtifacts(t *testing.T) {
	store, mr := newRedisStore(t)
	now := time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)
	txs := fakeTxs{txs: []ledger.Transaction{
		{SenderID: 1, Type: ledger.Exchange, Status: ledger.Processed, Amount: d("2"), FromCurrency: cur(ledger.USD), ToCurrency: cur(ledger.BTC), CreatedAt: now.AddDate(0, 0, -7)},
	}}
	svc := NewService(fakeUsers{now.AddDate(0, 0, -8)}, txs, store, time.Hour, logging.Discard())
	svc.now = func() time.Time { return now }

	if err := svc.Generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ttl := mr.TTL(KeyJSON); ttl != time.Hour {
		t.Fatalf("expected 1h ttl on json, got %s", ttl)
	}

	raw, ok, err := svc.JSON(context.Background())
	if err != nil || !ok {
		t.Fatalf("json: ok=%v err=%v", ok, err)
	}
	var weeks []Week
	if err := json.Unmarshal(raw, &weeks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(weeks) != Weeks {
		t.Fatalf("expected %d weeks, got %d", Weeks, len(weeks))
	}

	workbook, ok, err := svc.Excel(context.Background())
	if err != nil || !ok {
		t.Fatalf("excel: ok=%v err=%v", ok, err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(workbook))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != "Weekly Report" || sheets[1] != "Conversions" || sheets[2] != "Dynamics" {
		t.Fatalf("unexpected sheets %v", sheets)
	}
	rows, err := f.GetRows("Weekly Report")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != Weeks+1 || rows[0][0] != "week_start" {
		t.Fatalf("expected header plus %d rows, got %d", Weeks, len(rows))
	}
	conv, _ := f.GetRows("Conversions")
	found := false
	for _, row := range conv {
		if len(row) > 2 && row[2] == "usd-to-btc" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a usd-to-btc conversion row")
	}
}

func TestEnqueueTracksTaskState(t *testing.T) {
	svc := NewService(fakeUsers{}, fakeTxs{}, NewMemoryStore(), time.Hour, logging.Discard())
	ctx := context.Background()

	id, err := svc.Enqueue(ctx)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	svc.Wait()

	state, ok, err := svc.Status(ctx, id)
	if err != nil || !ok || state != TaskSuccess {
		t.Fatalf("expected SUCCESS, got %s ok=%v err=%v", state, ok, err)
	}
	if _, ok, _ := svc.Status(ctx, "missing"); ok {
		t.Fatalf("unknown task must not resolve")
	}

	failing := NewService(fakeUsers{}, fakeTxs{err: errors.New("db down")}, NewMemoryStore(), time.Hour, logging.Discard())
	id, _ = failing.Enqueue(ctx)
	failing.Wait()
	if state, _, _ := failing.Status(ctx, id); state != TaskFailure {
		t.Fatalf("expected FAILURE, got %s", state)
	}
}

func TestHandlerQueuesOnColdCache(t *testing.T) {
	svc := NewService(fakeUsers{}, fakeTxs{}, NewMemoryStore(), time.Hour, logging.Discard())
	h := NewHandler(svc)
	app := fiber.New()
	app.Get("/reports/weekly/json", h.JSON)
	app.Get("/reports/weekly/excel", h.Excel)
	app.Get("/reports/weekly/status/:taskId", h.Status)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/reports/weekly/json", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var queued struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
		t.Fatalf("decode: %v", err)
	}
	svc.Wait()

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/reports/weekly/status/"+queued.TaskID, nil))
	var status struct {
		Status string          `json:"status"`
		Report json.RawMessage `json:"report"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != "completed" || len(status.Report) == 0 || status.Report[0] != '[' {
		t.Fatalf("unexpected status body: %s %s", status.Status, status.Report)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/reports/weekly/excel", nil))
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != xlsxContentType {
		t.Fatalf("expected cached workbook, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("PK")) {
		t.Fatalf("expected a zip container")
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/reports/weekly/status/nope", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d", resp.StatusCode)
	}
}
