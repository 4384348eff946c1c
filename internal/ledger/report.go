package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"poultryledger/backend/internal/domain"
)

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PeriodBounds returns the [from, to) business-date range of a report
// range name, relative to now. Weekly is the seven calendar days ending
// today.
func PeriodBounds(rangeName string, now time.Time) (time.Time, time.Time, error) {
	today := startOfDay(now)
	switch rangeName {
	case domain.RangeDaily:
		return today, today.AddDate(0, 0, 1), nil
	case domain.RangeWeekly:
		return today.AddDate(0, 0, -6), today.AddDate(0, 0, 1), nil
	case domain.RangeMonthly:
		from := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0), nil
	case domain.RangeYearly:
		from := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown report range %q", rangeName)
	}
}

func inRange(date time.Time, from time.Time, to time.Time) bool {
	return !date.Before(from) && date.Before(to)
}

// BuildReport totals one period by business date. Cash-count adjustments
// count as profit (excess) or loss (shortage).
func BuildReport(rangeName string, from time.Time, to time.Time, purchases []domain.Purchase, sales []domain.Sale, expenses []domain.Expense, cashLogs []domain.CashLog) domain.PeriodReport {
	report := domain.PeriodReport{
		Range:         rangeName,
		From:          from,
		To:            to,
		TotalPurchase: decimal.Zero,
		TotalSale:     decimal.Zero,
		TotalExpense:  decimal.Zero,
		Adjustment:    decimal.Zero,
	}

	for _, p := range purchases {
		if inRange(p.Date, from, to) {
			report.TotalPurchase = report.TotalPurchase.Add(p.Total)
		}
	}
	for _, s := range sales {
		if inRange(s.Date, from, to) {
			report.TotalSale = report.TotalSale.Add(s.Total)
		}
	}
	for _, e := range expenses {
		if inRange(e.Date, from, to) {
			report.TotalExpense = report.TotalExpense.Add(e.Amount)
		}
	}
	for _, l := range cashLogs {
		if l.IsCashCount() && inRange(l.Date, from, to) {
			report.Adjustment = report.Adjustment.Add(SignedCash(l))
		}
	}

	report.NetProfit = report.TotalSale.Sub(report.TotalPurchase).Sub(report.TotalExpense).Add(report.Adjustment)
	return report
}
