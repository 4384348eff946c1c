package service

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/ledger"
	"poultryledger/backend/internal/store"
)

// Reconcile repairs one user's derived data: every cash mirror is brought
// back in line with its source, orphaned mirrors are dropped and the
// archives of every product type are rebuilt.
func (s *Service) Reconcile(ctx context.Context) (domain.ReconcileReport, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.ReconcileReport{}, err
	}
	return s.reconcileUser(ctx, userID)
}

// ReconcileAll runs Reconcile for every account. A failing user is logged
// and skipped.
func (s *Service) ReconcileAll(ctx context.Context) (domain.ReconcileReport, error) {
	ids, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return domain.ReconcileReport{}, err
	}

	var total domain.ReconcileReport
	for _, userID := range ids {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		report, err := s.reconcileUser(ctx, userID)
		if err != nil {
			s.logger.Error("reconcile user", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		total.MirrorsCreated += report.MirrorsCreated
		total.MirrorsUpdated += report.MirrorsUpdated
		total.MirrorsRemoved += report.MirrorsRemoved
		total.ArchivesRebuilt += report.ArchivesRebuilt
		total.TypesReconciled += report.TypesReconciled
	}
	return total, nil
}

func (s *Service) reconcileUser(ctx context.Context, userID string) (domain.ReconcileReport, error) {
	var report domain.ReconcileReport
	err := s.mutate(ctx, userID, domain.ProductTypes, func(tx store.Repository) error {
		report = domain.ReconcileReport{}
		stats, err := s.repairMirrors(ctx, tx, userID)
		if err != nil {
			return err
		}
		report.MirrorsCreated = stats.created
		report.MirrorsUpdated = stats.updated
		report.MirrorsRemoved = stats.removed

		for _, t := range domain.ProductTypes {
			archives, err := s.rebuildArchives(ctx, tx, userID, t)
			if err != nil {
				return err
			}
			report.ArchivesRebuilt += len(archives)
			report.TypesReconciled++
		}
		return nil
	})
	if err != nil {
		return domain.ReconcileReport{}, err
	}

	s.logger.Info("reconciled",
		zap.String("user_id", userID),
		zap.Int("mirrors_created", report.MirrorsCreated),
		zap.Int("mirrors_updated", report.MirrorsUpdated),
		zap.Int("mirrors_removed", report.MirrorsRemoved),
		zap.Int("archives", report.ArchivesRebuilt),
	)
	return report, nil
}

func (s *Service) repairMirrors(ctx context.Context, tx store.Repository, userID string) (mirrorStats, error) {
	var stats mirrorStats
	sources := make(map[string]struct{})
	track := func(kind string, id string) { sources[kind+":"+id] = struct{}{} }

	purchases, err := tx.ListPurchases(ctx, userID, store.RecordFilter{})
	if err != nil {
		return stats, err
	}
	for _, p := range purchases {
		track(domain.SourcePurchase, p.ID)
		st, err := syncMirror(ctx, tx, userID, domain.SourcePurchase, p.ID, purchaseMirror(p), true)
		if err != nil {
			return stats, err
		}
		stats.add(st)
	}

	sales, err := tx.ListSales(ctx, userID, store.RecordFilter{})
	if err != nil {
		return stats, err
	}
	for _, sale := range sales {
		track(domain.SourceSale, sale.ID)
		st, err := syncMirror(ctx, tx, userID, domain.SourceSale, sale.ID, saleMirror(sale), true)
		if err != nil {
			return stats, err
		}
		stats.add(st)
	}

	expenses, err := tx.ListExpenses(ctx, userID)
	if err != nil {
		return stats, err
	}
	for _, e := range expenses {
		track(domain.SourceExpense, e.ID)
		st, err := syncMirror(ctx, tx, userID, domain.SourceExpense, e.ID, expenseMirror(e), true)
		if err != nil {
			return stats, err
		}
		stats.add(st)
	}

	// Which due logs were meant to move cash is not recorded, so due mirrors
	// are only corrected or removed, never created.
	dues, err := tx.ListDues(ctx, userID)
	if err != nil {
		return stats, err
	}
	for _, d := range dues {
		track(domain.SourceDue, d.ID)
		for _, l := range d.Logs {
			sourceID := ledger.DueLogSourceID(d.ID, l.ID)
			track(domain.SourceDue, sourceID)
			st, err := syncMirror(ctx, tx, userID, domain.SourceDue, sourceID, dueLogMirror(d, l), false)
			if err != nil {
				return stats, err
			}
			stats.add(st)
		}
	}

	cashLogs, err := tx.ListCashLogs(ctx, userID)
	if err != nil {
		return stats, err
	}
	for _, l := range cashLogs {
		kind, sourceID, ok := mirrorSource(l)
		if !ok {
			continue
		}
		if _, exists := sources[kind+":"+sourceID]; exists {
			continue
		}
		if err := tx.DeleteCashLog(ctx, userID, l.ID); err != nil {
			return stats, err
		}
		stats.removed++
	}
	return stats, nil
}

// mirrorSource reports the source a cash log mirrors, from its columns or,
// for rows written before those columns existed, its note token. Unknown
// kinds are not treated as mirrors.
func mirrorSource(l domain.CashLog) (string, string, bool) {
	kind, sourceID := l.SourceKind, l.SourceID
	if kind == "" {
		var ok bool
		kind, sourceID, ok = ledger.ParseRef(l.Note)
		if !ok {
			return "", "", false
		}
	}
	if sourceID == "" {
		return "", "", false
	}
	switch kind {
	case domain.SourcePurchase, domain.SourceSale, domain.SourceExpense:
		return kind, sourceID, true
	case domain.SourceDue:
		if dueID, logID, found := strings.Cut(sourceID, "/"); found {
			if _, err := strconv.ParseInt(logID, 10, 64); err != nil || dueID == "" {
				return "", "", false
			}
		}
		return kind, sourceID, true
	default:
		return "", "", false
	}
}
