package service

import (
	"context"
	"strings"

	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/ledger"
	"poultryledger/backend/internal/store"
)

type mirrorStats struct {
	created int
	updated int
	removed int
}

func (m *mirrorStats) add(other mirrorStats) {
	m.created += other.created
	m.updated += other.updated
	m.removed += other.removed
}

func newMirror(userID string, kind string, sourceID string, logType string, label string, source domain.CashLog) *domain.CashLog {
	source.UserID = userID
	source.Type = logType
	source.Note = ledger.MirrorNote(label, kind, sourceID)
	source.SourceKind = kind
	source.SourceID = sourceID
	return &source
}

// purchaseMirror is nil for credit purchases: no cash left the box.
func purchaseMirror(p domain.Purchase) *domain.CashLog {
	if p.IsCredit || !p.Total.IsPositive() {
		return nil
	}
	return newMirror(p.UserID, domain.SourcePurchase, p.ID, domain.CashWithdraw, "Purchase: "+p.ProductType,
		domain.CashLog{Amount: p.Total, Date: p.Date})
}

func saleMirror(sale domain.Sale) *domain.CashLog {
	if !sale.Total.IsPositive() {
		return nil
	}
	return newMirror(sale.UserID, domain.SourceSale, sale.ID, domain.CashAdd, "Sale income: "+sale.ProductType,
		domain.CashLog{Amount: sale.Total, Date: sale.Date})
}

func expenseLabel(e domain.Expense) string {
	label := "Expense: " + e.Category
	if note := strings.TrimSpace(e.Note); note != "" {
		label += " - " + note
	}
	return label
}

func expenseMirror(e domain.Expense) *domain.CashLog {
	if !e.Amount.IsPositive() {
		return nil
	}
	return newMirror(e.UserID, domain.SourceExpense, e.ID, domain.CashWithdraw, expenseLabel(e),
		domain.CashLog{Amount: e.Amount, Date: e.Date})
}

// dueLogMirror books a collection (ADD) as cash in and a payout (DUE) as
// cash out.
func dueLogMirror(due domain.DueRecord, l domain.DueLog) *domain.CashLog {
	logType, label := domain.CashAdd, "Due collection: "+due.CustomerName
	if l.Type == domain.DueLogDue {
		logType, label = domain.CashWithdraw, "Due payout: "+due.CustomerName
	}
	return newMirror(due.UserID, domain.SourceDue, ledger.DueLogSourceID(due.ID, l.ID), logType, label,
		domain.CashLog{Amount: l.Amount, Date: l.Date})
}

func mirrorDiffers(existing domain.CashLog, want domain.CashLog) bool {
	return existing.Type != want.Type ||
		!existing.Amount.Equal(want.Amount) ||
		!existing.Date.Equal(want.Date) ||
		existing.Note != want.Note ||
		existing.SourceKind != want.SourceKind ||
		existing.SourceID != want.SourceID
}

// syncMirror makes the cash box hold exactly want for one source record:
// it creates or rewrites a single mirror, drops duplicates, and removes
// every mirror when want is nil. With createMissing false an absent mirror
// stays absent.
func syncMirror(ctx context.Context, tx store.Repository, userID string, kind string, sourceID string, want *domain.CashLog, createMissing bool) (mirrorStats, error) {
	var stats mirrorStats
	existing, err := tx.FindCashLogsBySource(ctx, userID, kind, sourceID)
	if err != nil {
		return stats, err
	}

	if want == nil {
		for _, l := range existing {
			if err := tx.DeleteCashLog(ctx, userID, l.ID); err != nil {
				return stats, err
			}
			stats.removed++
		}
		return stats, nil
	}

	if len(existing) == 0 {
		if !createMissing {
			return stats, nil
		}
		if _, err := tx.CreateCashLog(ctx, *want); err != nil {
			return stats, err
		}
		stats.created++
		return stats, nil
	}

	keep := existing[0]
	if mirrorDiffers(keep, *want) {
		next := *want
		next.ID = keep.ID
		if _, err := tx.UpdateCashLog(ctx, next); err != nil {
			return stats, err
		}
		stats.updated++
	}
	for _, dup := range existing[1:] {
		if err := tx.DeleteCashLog(ctx, userID, dup.ID); err != nil {
			return stats, err
		}
		stats.removed++
	}
	return stats, nil
}

func removeMirrors(ctx context.Context, tx store.Repository, userID string, kind string, sourceID string) error {
	_, err := syncMirror(ctx, tx, userID, kind, sourceID, nil, false)
	return err
}
