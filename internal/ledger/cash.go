package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"poultryledger/backend/internal/domain"
)

const refPrefix = "[ref:"

// RefToken renders the back-reference embedded in a cash mirror note.
func RefToken(kind string, id string) string {
	return refPrefix + kind + ":" + id + "]"
}

// HasRef matches by containment: notes carry a free-text label before the
// token.
func HasRef(note string, kind string, id string) bool {
	return strings.Contains(note, RefToken(kind, id))
}

// ParseRef extracts the first back-reference token from a note.
func ParseRef(note string) (kind string, id string, ok bool) {
	start := strings.Index(note, refPrefix)
	if start < 0 {
		return "", "", false
	}
	rest := note[start+len(refPrefix):]
	end := strings.Index(rest, "]")
	if end < 0 {
		return "", "", false
	}
	kind, id, ok = strings.Cut(rest[:end], ":")
	if !ok || kind == "" || id == "" {
		return "", "", false
	}
	return kind, id, true
}

// CarriesRef reports whether a note holds anything that reads as a
// back-reference token.
func CarriesRef(note string) bool {
	return strings.Contains(note, refPrefix)
}

func MirrorNote(label string, kind string, id string) string {
	return label + " " + RefToken(kind, id)
}

// DueLogSourceID identifies the cash mirror of a single due log entry.
func DueLogSourceID(dueID string, logID int64) string {
	return dueID + "/" + strconv.FormatInt(logID, 10)
}

// CashBalance is ADD + OPENING - WITHDRAW over all logs, in any order.
func CashBalance(logs []domain.CashLog) decimal.Decimal {
	balance := decimal.Zero
	for _, l := range logs {
		balance = balance.Add(SignedCash(l))
	}
	return balance
}

func SignedCash(l domain.CashLog) decimal.Decimal {
	if l.Type == domain.CashWithdraw {
		return l.Amount.Neg()
	}
	return l.Amount
}

// CountCash totals a physical note count. Only non-zero counts are kept in
// the returned denominations, stored as strings the way clients send them.
func CountCash(counts map[string]int) (decimal.Decimal, map[string]string, error) {
	known := make(map[string]struct{}, len(domain.CurrencyNotes))
	for _, n := range domain.CurrencyNotes {
		known[strconv.FormatInt(n, 10)] = struct{}{}
	}

	physical := decimal.Zero
	denominations := make(map[string]string, len(counts))
	for note, count := range counts {
		if _, ok := known[note]; !ok {
			return decimal.Zero, nil, fmt.Errorf("unknown note %q", note)
		}
		if count < 0 {
			return decimal.Zero, nil, fmt.Errorf("negative count for note %s", note)
		}
		if count == 0 {
			continue
		}
		value, _ := decimal.NewFromString(note)
		physical = physical.Add(value.Mul(decimal.NewFromInt(int64(count))))
		denominations[note] = strconv.Itoa(count)
	}
	return physical, denominations, nil
}

// CashAdjustment turns the gap between counted and booked cash into the
// log that reconciles them.
func CashAdjustment(physical decimal.Decimal, booked decimal.Decimal) (logType string, amount decimal.Decimal, note string) {
	gap := physical.Sub(booked)
	switch {
	case gap.IsZero():
		return domain.CashAdd, decimal.Zero, "Cash matched"
	case gap.IsPositive():
		return domain.CashAdd, gap, fmt.Sprintf("Cash adjustment (excess %s)", gap.StringFixed(2))
	default:
		return domain.CashWithdraw, gap.Abs(), fmt.Sprintf("Cash adjustment (short %s)", gap.Abs().StringFixed(2))
	}
}
