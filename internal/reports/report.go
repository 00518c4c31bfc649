package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/ledger"
)

// Weeks is the number of weekly buckets in a report.
const Weeks = 52

const dateLayout = "2006-01-02"

// Conversion aggregates processed exchanges for one currency pair.
type Conversion struct {
	Count     int             `json:"count"`
	SumAmount decimal.Decimal `json:"sum_amount"`
}

// Delta compares a metric with the previous week. PctChange is nil when the
// previous value is zero.
type Delta struct {
	Delta     decimal.Decimal  `json:"delta"`
	PctChange *decimal.Decimal `json:"pct_change"`
}

// Week holds the metrics of one Monday-to-Sunday bucket.
type Week struct {
	WeekStart             string                `json:"week_start"`
	WeekEnd               string                `json:"week_end"`
	NewUsers              int                   `json:"new_users"`
	DepositUsers          int                   `json:"deposit_users"`
	TransactionUsers      int                   `json:"transaction_users"`
	SumDeposits           decimal.Decimal       `json:"sum_deposits"`
	SumWithdrawals        decimal.Decimal       `json:"sum_withdrawals"`
	SumTransfers          decimal.Decimal       `json:"sum_transfers"`
	TotalTransactions     int                   `json:"total_transactions"`
	CompletedTransactions int                   `json:"completed_transactions"`
	Conversions           map[string]Conversion `json:"conversions"`
	AvgDeposit            decimal.Decimal       `json:"avg_deposit"`
	AvgWithdrawal         decimal.Decimal       `json:"avg_withdrawal"`
	ActiveUsers           int                   `json:"active_users"`
	Dynamics              map[string]Delta      `json:"dynamics"`
}

// Window returns the half-open time range covered by a report generated at
// now: from the Monday 52 weeks before the current week up to that week.
func Window(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monday := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
	start := monday.AddDate(0, 0, -7*Weeks)
	return start, start.AddDate(0, 0, 7*Weeks)
}

// Build buckets user registrations and transactions into weekly metrics.
// Amounts are summed nominally across currencies.
func Build(now time.Time, registrations []time.Time, txs []ledger.Transaction) []Week {
	start, _ := Window(now)
	weeks := make([]Week, 0, Weeks)
	var previous *Week

	for i := 0; i < Weeks; i++ {
		from := start.AddDate(0, 0, 7*i)
		to := from.AddDate(0, 0, 7)
		week := collect(from, to, registrations, txs)
		week.Dynamics = dynamics(week, previous)
		weeks = append(weeks, week)
		previous = &weeks[len(weeks)-1]
	}
	return weeks
}

func collect(from, to time.Time, registrations []time.Time, txs []ledger.Transaction) Week {
	week := Week{
		WeekStart:      from.Format(dateLayout),
		WeekEnd:        to.AddDate(0, 0, -1).Format(dateLayout),
		SumDeposits:    decimal.Zero,
		SumWithdrawals: decimal.Zero,
		SumTransfers:   decimal.Zero,
		AvgDeposit:     decimal.Zero,
		AvgWithdrawal:  decimal.Zero,
		Conversions:    map[string]Conversion{},
	}
	in := func(t time.Time) bool {
		t = t.UTC()
		return !t.Before(from) && t.Before(to)
	}

	for _, created := range registrations {
		if in(created) {
			week.NewUsers++
		}
	}

	senders := map[int64]struct{}{}
	depositors := map[int64]struct{}{}
	var deposits, withdrawals int64
	for _, tx := range txs {
		if !in(tx.CreatedAt) {
			continue
		}
		week.TotalTransactions++
		senders[tx.SenderID] = struct{}{}
		if tx.Type == ledger.Deposit {
			depositors[tx.SenderID] = struct{}{}
		}
		if tx.Status != ledger.Processed {
			continue
		}
		week.CompletedTransactions++

		switch tx.Type {
		case ledger.Deposit:
			week.SumDeposits = week.SumDeposits.Add(tx.Amount)
			deposits++
		case ledger.Withdrawal:
			week.SumWithdrawals = week.SumWithdrawals.Add(tx.Amount)
			withdrawals++
		case ledger.Transfer:
			week.SumTransfers = week.SumTransfers.Add(tx.Amount)
		case ledger.Exchange:
			if tx.FromCurrency == nil || tx.ToCurrency == nil {
				continue
			}
			key := string(*tx.FromCurrency) + "_to_" + string(*tx.ToCurrency)
			conv := week.Conversions[key]
			conv.Count++
			conv.SumAmount = conv.SumAmount.Add(tx.Amount)
			week.Conversions[key] = conv
		}
	}

	week.TransactionUsers = len(senders)
	week.ActiveUsers = len(senders)
	week.DepositUsers = len(depositors)
	if deposits > 0 {
		week.AvgDeposit = week.SumDeposits.DivRound(decimal.NewFromInt(deposits), ledger.AmountScale)
	}
	if withdrawals > 0 {
		week.AvgWithdrawal = week.SumWithdrawals.DivRound(decimal.NewFromInt(withdrawals), ledger.AmountScale)
	}
	return week
}

var hundred = decimal.NewFromInt(100)

// DynamicMetrics lists the metrics compared week over week, in report order.
var DynamicMetrics = []string{"new_users", "sum_deposits", "sum_withdrawals", "sum_transfers", "total_transactions"}

func dynamics(current Week, previous *Week) map[string]Delta {
	out := map[string]Delta{}
	if previous == nil {
		return out
	}
	out["new_users"] = delta(decimal.NewFromInt(int64(current.NewUsers)), decimal.NewFromInt(int64(previous.NewUsers)))
	out["sum_deposits"] = delta(current.SumDeposits, previous.SumDeposits)
	out["sum_withdrawals"] = delta(current.SumWithdrawals, previous.SumWithdrawals)
	out["sum_transfers"] = delta(current.SumTransfers, previous.SumTransfers)
	out["total_transactions"] = delta(decimal.NewFromInt(int64(current.TotalTransactions)), decimal.NewFromInt(int64(previous.TotalTransactions)))
	return out
}

func delta(current, previous decimal.Decimal) Delta {
	d := Delta{Delta: current.Sub(previous)}
	if !previous.IsZero() {
		pct := d.Delta.Div(previous).Mul(hundred).Round(2)
		d.PctChange = &pct
	}
	return d
}
