package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits balances are stored with.
const AmountScale = 6

// MaxAmount is the largest value a NUMERIC(18,6) balance column holds.
var MaxAmount = decimal.RequireFromString("999999999999.999999")

// Currency is a supported ISO or crypto currency code.
type Currency string

const (
	USD  Currency = "USD"
	EUR  Currency = "EUR"
	AUD  Currency = "AUD"
	CAD  Currency = "CAD"
	ARS  Currency = "ARS"
	PLN  Currency = "PLN"
	BTC  Currency = "BTC"
	ETH  Currency = "ETH"
	DOGE Currency = "DOGE"
	USDT Currency = "USDT"
)

var currencies = []Currency{USD, EUR, AUD, CAD, ARS, PLN, BTC, ETH, DOGE, USDT}

// SupportedCurrencies returns every currency a balance is provisioned for.
func SupportedCurrencies() []Currency {
	out := make([]Currency, len(currencies))
	copy(out, currencies)
	return out
}

// ParseCurrency validates a currency code, ignoring case and surrounding space.
func ParseCurrency(raw string) (Currency, error) {
	return parseEnum("currency", strings.ToUpper(raw), currencies)
}

// Valid reports whether c is a supported currency.
func (c Currency) Valid() bool { return contains(currencies, c) }

// UnmarshalJSON rejects unsupported codes.
func (c *Currency) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, c, ParseCurrency)
}

// TransactionType is the kind of balance mutation a transaction recorded.
type TransactionType string

const (
	Deposit    TransactionType = "DEPOSIT"
	Withdrawal TransactionType = "WITHDRAWAL"
	Transfer   TransactionType = "TRANSFER"
	Exchange   TransactionType = "EXCHANGE"
)

var transactionTypes = []TransactionType{Deposit, Withdrawal, Transfer, Exchange}

// ParseTransactionType validates a transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	return parseEnum("transaction type", strings.ToUpper(raw), transactionTypes)
}

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool { return contains(transactionTypes, t) }

// UnmarshalJSON rejects unknown transaction types.
func (t *TransactionType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, t, ParseTransactionType)
}

// TransactionStatus moves once, from PROCESSED to ROLLBACKED.
type TransactionStatus string

const (
	Processed  TransactionStatus = "PROCESSED"
	Rollbacked TransactionStatus = "ROLLBACKED"
)

var transactionStatuses = []TransactionStatus{Processed, Rollbacked}

// ParseTransactionStatus validates a transaction status.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	return parseEnum("transaction status", strings.ToUpper(raw), transactionStatuses)
}

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool { return contains(transactionStatuses, s) }

// UnmarshalJSON rejects unknown statuses.
func (s *TransactionStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, s, ParseTransactionStatus)
}

// Direction filters a user's transactions by the side they were on.
type Direction string

const (
	Received Direction = "RECEIVED"
	Sent     Direction = "SENT"
)

var directions = []Direction{Received, Sent}

// ParseDirection validates a listing direction.
func ParseDirection(raw string) (Direction, error) {
	return parseEnum("direction", strings.ToUpper(raw), directions)
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool { return contains(directions, d) }

func parseEnum[T ~string](kind, raw string, allowed []T) (T, error) {
	v := T(strings.TrimSpace(raw))
	if !contains(allowed, v) {
		return "", badRequest("unsupported %s %q", kind, raw)
	}
	return v, nil
}

func unmarshalEnum[T ~string](data []byte, dst *T, parse func(string) (T, error)) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := parse(raw)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func contains[T comparable](items []T, v T) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

// BalanceKey addresses one balance row.
type BalanceKey struct {
	UserID   int64
	Currency Currency
}

func (k BalanceKey) String() string { return fmt.Sprintf("%d/%s", k.UserID, k.Currency) }

func (k BalanceKey) less(o BalanceKey) bool {
	if k.UserID != o.UserID {
		return k.UserID < o.UserID
	}
	return k.Currency < o.Currency
}

// sortedKeys returns keys deduplicated in lock order.
func sortedKeys(keys []BalanceKey) []BalanceKey {
	seen := make(map[BalanceKey]struct{}, len(keys))
	out := make([]BalanceKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// Balance is the amount a user holds in one currency.
type Balance struct {
	UserID   int64           `json:"user_id"`
	Currency Currency        `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// SortBalances orders balances by amount, largest first, then by currency.
func SortBalances(balances []Balance) {
	sort.SliceStable(balances, func(i, j int) bool {
		if c := balances[i].Amount.Cmp(balances[j].Amount); c != 0 {
			return c > 0
		}
		return balances[i].Currency < balances[j].Currency
	})
}

// Transaction is an immutable record of an applied mutation. Only Status
// changes after creation.
type Transaction struct {
	ID           int64             `json:"id"`
	SenderID     int64             `json:"sender_id"`
	RecipientID  *int64            `json:"recipient_id"`
	Currency     Currency          `json:"currency"`
	Amount       decimal.Decimal   `json:"amount"`
	Type         TransactionType   `json:"type"`
	Status       TransactionStatus `json:"status"`
	FromCurrency *Currency         `json:"from_currency,omitempty"`
	ToCurrency   *Currency         `json:"to_currency,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Involves reports whether the user is the sender or the recipient.
func (t Transaction) Involves(userID int64) bool {
	return t.SenderID == userID || (t.RecipientID != nil && *t.RecipientID == userID)
}

// Filter narrows list queries. A zero UserID lists every transaction.
type Filter struct {
	UserID    int64
	Direction Direction
}

// Matches applies the received/sent semantics to a single transaction.
func (f Filter) Matches(t Transaction) bool {
	if f.UserID == 0 {
		return true
	}
	recipient := t.RecipientID != nil && *t.RecipientID == f.UserID
	switch f.Direction {
	case Received:
		return (t.Type == Deposit && t.SenderID == f.UserID) || (t.Type == Transfer && recipient)
	case Sent:
		return (t.Type == Withdrawal || t.Type == Transfer) && t.SenderID == f.UserID
	default:
		return t.Involves(f.UserID)
	}
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return badRequest("amount must be positive")
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return badRequest("amount supports at most %d decimal places", AmountScale)
	}
	if amount.GreaterThan(MaxAmount) {
		return badRequest("amount exceeds %s", MaxAmount)
	}
	return nil
}

// credit adds amount to balance, refusing results the balance column cannot hold.
func credit(key BalanceKey, balance, amount decimal.Decimal) (decimal.Decimal, error) {
	sum := balance.Add(amount)
	if sum.GreaterThan(MaxAmount) {
		return decimal.Decimal{}, badRequest("balance %s would exceed %s", key, MaxAmount)
	}
	return sum, nil
}

func int64Ptr(v int64) *int64 { return &v }

func currencyPtr(c Currency) *Currency { return &c }
