package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"strategylab/internal/backtest"
	"strategylab/internal/metrics"
	"strategylab/internal/sweep"
)

var titler = cases.Title(language.English)

// metricLabel turns a JSON key such as "win_rate" into "Win Rate".
func metricLabel(key string) string {
	return titler.String(strings.ReplaceAll(key, "_", " "))
}

// formatMoney formats v with two decimals and comma-separated thousands.
func formatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	whole := fmt.Sprintf("%.2f", v)
	intPart, frac, _ := strings.Cut(whole, ".")
	var b strings.Builder
	b.WriteString(sign)
	start := len(intPart) % 3
	if start > 0 {
		b.WriteString(intPart[:start])
	}
	for i := start; i < len(intPart); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return b.String() + "." + frac
}

// formatPct formats a fraction as a signed percentage.
func formatPct(f float64) string {
	return fmt.Sprintf("%+.2f%%", f*100)
}

func summaryRows(m *metrics.Summary) [][2]string {
	return [][2]string{
		{metricLabel("total_return"), formatPct(m.TotalReturn)},
		{metricLabel("total_trades"), fmt.Sprint(m.TotalTrades)},
		{metricLabel("win_rate"), fmt.Sprintf("%.2f%%", m.WinRate*100)},
		{metricLabel("avg_return_per_trade"), formatMoney(m.AvgReturnPerTrade)},
		{metricLabel("max_drawdown"), fmt.Sprintf("%.2f%%", m.MaxDrawdown*100)},
		{metricLabel("sharpe_ratio"), fmt.Sprintf("%.3f", m.SharpeRatio)},
		{metricLabel("profit_factor"), fmt.Sprintf("%.3f", m.ProfitFactor)},
	}
}

func printReport(w io.Writer, rep *backtest.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Run\t%s\n", rep.RunID)
	fmt.Fprintf(tw, "Strategy\t%s\n", rep.Strategy)
	fmt.Fprintf(tw, "Final Equity\t%s\n", formatMoney(rep.FinalEquity))
	fmt.Fprintf(tw, "Open Positions\t%d\n", len(rep.OpenTrades))
	if rep.Metrics == nil {
		fmt.Fprintln(tw, "Metrics\tno closed trades")
	} else {
		for _, row := range summaryRows(rep.Metrics) {
			fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
		}
	}
	tw.Flush()

	if len(rep.Trades) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Symbol\tQty\tEntry\tEntry Date\tExit\tExit Date\tPnL\tReason\t")
	for _, t := range rep.Trades {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\t%.2f\t%s\t%s\t%s\t\n",
			t.Symbol, t.Qty, t.EntryPrice, t.EntryTime.Format("2006-01-02"),
			*t.ExitPrice, t.ExitTime.Format("2006-01-02"), formatMoney(t.RealizedPnL()), t.ExitReason)
	}
	tw.Flush()
}

func printSweep(w io.Writer, outcomes []sweep.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Candidate\t%s\t%s\t%s\t%s\n",
		metricLabel("total_return"), metricLabel("total_trades"),
		metricLabel("sharpe_ratio"), metricLabel("max_drawdown"))
	for _, o := range outcomes {
		m := o.Report.Metrics
		if m == nil {
			fmt.Fprintf(tw, "%s\t-\t0\t-\t-\n", o.Label)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.3f\t%.2f%%\n",
			o.Label, formatPct(m.TotalReturn), m.TotalTrades, m.SharpeRatio, m.MaxDrawdown*100)
	}
	tw.Flush()
}
