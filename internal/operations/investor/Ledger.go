package investor

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	summaryColumns = []string{
		"final money", "total profit", "profit rate", "fees", "net profit", "net profit rate",
		"trades", "win rate", "pnl", "expectation", "reentry", "reentry win rate", "reentry profit",
	}
	ledgerColumns = []string{
		"code", "ma", "buy date", "buy price", "shares", "remaining", "sell date", "sell price",
		"profit", "fee", "cumulative profit", "balance", "reason",
	}
)

// Ledger renders the report as tab separated text with CRLF line endings:
// a run header, the summary header and values, the column header, then
// one row per sell.
func (r *Report) Ledger() string {
	s := r.Summary
	lines := make([]string, 0, len(r.Closed)+4)

	lines = append(lines, row(
		"entry date", dayKey(s.EntryDate),
		"exit date", dayKey(s.ExitDate),
		"entry strategy", r.Entry,
		"exit strategy", strings.Join(r.Exits, "+"),
	))
	lines = append(lines, row(summaryColumns...))
	lines = append(lines, row(
		money(s.FinalMoney),
		money(s.TotalProfit),
		num(s.ProfitRate),
		money(s.Fees),
		money(s.NetProfit),
		num(s.NetProfitRate),
		strconv.Itoa(s.TradeCount),
		num(s.WinRate),
		num(s.PnL),
		num(s.Expectation),
		strconv.Itoa(s.Reentry),
		num(s.ReentryWinRate),
		money(s.ReentryProfit),
	))
	lines = append(lines, row(ledgerColumns...))

	for _, h := range r.Closed {
		lines = append(lines, row(
			h.Code,
			strconv.Itoa(h.MA),
			dayKey(h.EntryDate),
			price(h.EntryPrice),
			strconv.FormatInt(h.Amount, 10),
			money(h.EntryBalance),
			dayKey(h.ExitDate),
			price(h.ExitPrice),
			money(h.Profit),
			money(h.Fee),
			money(h.CumProfit),
			money(h.Balance),
			h.ExitReason,
		))
	}
	return strings.Join(lines, "\r\n")
}

// cellCleaner keeps multi-line partial exit reasons on one row.
var cellCleaner = strings.NewReplacer("\t", " ", "\r\n", "; ", "\n", "; ", "\r", " ")

func row(fields ...string) string {
	cells := make([]string, len(fields))
	for i, f := range fields {
		cells[i] = cellCleaner.Replace(f)
	}
	return strings.Join(cells, "\t")
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// price keeps every significant decimal of a quote.
func price(d decimal.Decimal) string {
	return d.String()
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
