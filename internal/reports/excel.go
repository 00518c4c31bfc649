package reports

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	sheetWeekly      = "Weekly Report"
	sheetConversions = "Conversions"
	sheetDynamics    = "Dynamics"
)

var weeklyHeaders = []any{
	"week_start", "week_end", "new_users", "deposit_users", "transaction_users",
	"sum_deposits", "sum_withdrawals", "sum_transfers", "total_transactions",
	"completed_transactions", "avg_deposit", "avg_withdrawal", "active_users",
}

// Excel renders the weeks as an XLSX workbook with weekly, conversion and
// dynamics sheets.
func Excel(weeks []Week) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetWeekly); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetConversions, sheetDynamics} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	weekly := [][]any{weeklyHeaders}
	conversions := [][]any{{"week_start", "week_end", "direction", "count", "sum_amount"}}
	dynamics := [][]any{{"week_start", "week_end", "metric", "delta", "pct_change"}}

	for _, w := range weeks {
		weekly = append(weekly, []any{
			w.WeekStart, w.WeekEnd, w.NewUsers, w.DepositUsers, w.TransactionUsers,
			w.SumDeposits.InexactFloat64(), w.SumWithdrawals.InexactFloat64(), w.SumTransfers.InexactFloat64(),
			w.TotalTransactions, w.CompletedTransactions,
			w.AvgDeposit.InexactFloat64(), w.AvgWithdrawal.InexactFloat64(), w.ActiveUsers,
		})

		if len(w.Conversions) == 0 {
			conversions = append(conversions, []any{w.WeekStart, w.WeekEnd, "No conversions", "", ""})
		}
		pairs := make([]string, 0, len(w.Conversions))
		for pair := range w.Conversions {
			pairs = append(pairs, pair)
		}
		sort.Strings(pairs)
		for _, pair := range pairs {
			c := w.Conversions[pair]
			direction := strings.ReplaceAll(strings.ToLower(pair), "_", "-")
			conversions = append(conversions, []any{w.WeekStart, w.WeekEnd, direction, c.Count, c.SumAmount.InexactFloat64()})
		}

		if len(w.Dynamics) == 0 {
			dynamics = append(dynamics, []any{w.WeekStart, w.WeekEnd, "No dynamics", "", ""})
		}
		for _, metric := range DynamicMetrics {
			d, ok := w.Dynamics[metric]
			if !ok {
				continue
			}
			var pct any = ""
			if d.PctChange != nil {
				pct = d.PctChange.InexactFloat64()
			}
			dynamics = append(dynamics, []any{w.WeekStart, w.WeekEnd, metric, d.Delta.InexactFloat64(), pct})
		}
	}

	for sheet, rows := range map[string][][]any{sheetWeekly: weekly, sheetConversions: conversions, sheetDynamics: dynamics} {
		if err := writeRows(f, sheet, rows); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	widths := map[int]int{}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
		for col, v := range row {
			if n := len(fmt.Sprint(v)); n > widths[col] {
				widths[col] = n
			}
		}
	}
	for col, w := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, float64(w+2)); err != nil {
			return err
		}
	}
	return nil
}
