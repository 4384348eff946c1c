package ledger

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"poultryledger/backend/internal/domain"
)

// DueTotals replays a log history into the cached Amount (all DUE logs)
// and Paid (all ADD logs) of a due record.
func DueTotals(logs []domain.DueLog) (amount decimal.Decimal, paid decimal.Decimal) {
	amount, paid = decimal.Zero, decimal.Zero
	for _, l := range logs {
		switch l.Type {
		case domain.DueLogDue:
			amount = amount.Add(l.Amount)
		case domain.DueLogAdd:
			paid = paid.Add(l.Amount)
		}
	}
	return amount, paid
}

// ApplyDueLogs replaces the log history of rec and rewrites both totals
// from it.
func ApplyDueLogs(rec *domain.DueRecord, logs []domain.DueLog) {
	rec.Logs = slices.Clone(logs)
	if rec.Logs == nil {
		rec.Logs = []domain.DueLog{}
	}
	rec.Amount, rec.Paid = DueTotals(rec.Logs)
}

func LastDueLogID(logs []domain.DueLog) int64 {
	var last int64
	for _, l := range logs {
		if l.ID > last {
			last = l.ID
		}
	}
	return last
}

func compareDueLogs(a, b domain.DueLog) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// DueHistory orders logs by (date, id), replays them to tag every entry
// with the balance right after it, and returns the entries newest first.
func DueHistory(logs []domain.DueLog) []domain.DueHistoryEntry {
	ordered := slices.Clone(logs)
	slices.SortStableFunc(ordered, compareDueLogs)

	history := make([]domain.DueHistoryEntry, 0, len(ordered))
	balance := decimal.Zero
	for _, l := range ordered {
		switch l.Type {
		case domain.DueLogDue:
			balance = balance.Add(l.Amount)
		case domain.DueLogAdd:
			balance = balance.Sub(l.Amount)
		}
		history = append(history, domain.DueHistoryEntry{DueLog: l, RunningBalance: balance})
	}
	slices.Reverse(history)
	return history
}

// SortDues orders customers newest first by date, then by id.
func SortDues(dues []domain.DueRecord) {
	slices.SortStableFunc(dues, func(a, b domain.DueRecord) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

func TotalOutstanding(dues []domain.DueRecord) decimal.Decimal {
	total := decimal.Zero
	for _, d := range dues {
		total = total.Add(d.Balance())
	}
	return total
}

// RemovedDueLogs returns the logs of before that are missing from after.
func RemovedDueLogs(before []domain.DueLog, after []domain.DueLog) []domain.DueLog {
	kept := make(map[int64]struct{}, len(after))
	for _, l := range after {
		kept[l.ID] = struct{}{}
	}
	removed := make([]domain.DueLog, 0)
	for _, l := range before {
		if _, ok := kept[l.ID]; !ok {
			removed = append(removed, l)
		}
	}
	return removed
}
