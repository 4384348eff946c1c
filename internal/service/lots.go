package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/ledger"
	"poultryledger/backend/internal/store"
)

// closeOutIfSoldThrough archives the open lot of productType once every
// purchased bird is sold or dead, and opens a new lot by appending a reset
// marker at the close-out instant.
func (s *Service) closeOutIfSoldThrough(ctx context.Context, tx store.Repository, userID string, productType string) error {
	resets, err := tx.LatestResetMarkers(ctx, userID)
	if err != nil {
		return err
	}
	last := resets[productType]
	filter := store.RecordFilter{ProductType: productType, After: last}

	purchases, err := tx.ListPurchases(ctx, userID, filter)
	if err != nil {
		return err
	}
	sales, err := tx.ListSales(ctx, userID, filter)
	if err != nil {
		return err
	}

	out, err := ledger.EvaluateCloseOut(productType, purchases, sales, ledger.OpenWindow(last))
	if err != nil {
		var inconsistency *ledger.InconsistencyError
		if errors.As(err, &inconsistency) {
			s.logger.Warn("skip lot close-out", zap.String("user_id", userID), zap.Error(err))
			return nil
		}
		return err
	}
	if !out.Ready() {
		return nil
	}

	closedAt := s.now()
	if !closedAt.After(last) {
		closedAt = last.Add(time.Millisecond)
	}
	archive := out.Archive(closedAt)
	archive.UserID = userID
	if _, err := tx.CreateLotArchive(ctx, archive); err != nil {
		return err
	}
	if err := tx.AppendResetMarker(ctx, domain.ResetMarker{UserID: userID, ProductType: productType, ResetAt: closedAt}); err != nil {
		return err
	}

	s.logger.Info("lot closed out",
		zap.String("user_id", userID),
		zap.String("product_type", productType),
		zap.String("profit", archive.Profit.String()),
	)
	return nil
}

// rebuildArchives replaces every archive of productType with one derived
// from the full record set and the reset history.
func (s *Service) rebuildArchives(ctx context.Context, tx store.Repository, userID string, productType string) ([]domain.LotArchive, error) {
	markers, err := tx.ListResetMarkers(ctx, userID, productType)
	if err != nil {
		return nil, err
	}
	filter := store.RecordFilter{ProductType: productType}
	purchases, err := tx.ListPurchases(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	sales, err := tx.ListSales(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	archives, err := ledger.RebuildArchives(productType, purchases, sales, markers)
	if err != nil {
		var inconsistency *ledger.InconsistencyError
		if !errors.As(err, &inconsistency) {
			return nil, err
		}
		s.logger.Warn("rebuild skipped inconsistent lots", zap.String("user_id", userID), zap.Error(err))
	}

	if _, err := tx.DeleteLotArchivesByType(ctx, userID, productType); err != nil {
		return nil, err
	}
	created := make([]domain.LotArchive, 0, len(archives))
	for _, a := range archives {
		a.UserID = userID
		saved, err := tx.CreateLotArchive(ctx, a)
		if err != nil {
			return nil, err
		}
		created = append(created, *saved)
	}
	return created, nil
}

// settleLots runs after a purchase or sale changed. A record stamped before
// an existing reset belongs to a closed lot, so the archives of its type are
// rebuilt first; then each type gets its close-out check.
func (s *Service) settleLots(ctx context.Context, tx store.Repository, userID string, itemTime time.Time, productTypes ...string) error {
	seen := make(map[string]struct{}, len(productTypes))
	for _, t := range productTypes {
		if _, dup := seen[t]; dup || t == "" {
			continue
		}
		seen[t] = struct{}{}

		if !itemTime.IsZero() {
			markers, err := tx.ListResetMarkers(ctx, userID, t)
			if err != nil {
				return err
			}
			if ledger.IsArchived(itemTime, markers) {
				if _, err := s.rebuildArchives(ctx, tx, userID, t); err != nil {
					return err
				}
			}
		}
		if err := s.closeOutIfSoldThrough(ctx, tx, userID, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListLotArchives(ctx context.Context) ([]domain.LotArchive, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListLotArchives(ctx, userID)
}

func (s *Service) CurrentLots(ctx context.Context) ([]domain.LotSummary, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	purchases, sales, resets, err := s.loadLotInputs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ledger.CurrentLots(purchases, sales, resets), nil
}

// RebuildLots regenerates the archive history of one product type.
func (s *Service) RebuildLots(ctx context.Context, productType string) ([]domain.LotArchive, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	if !domain.IsProductType(productType) {
		return nil, invalid("product_type", "oneof")
	}

	var rebuilt []domain.LotArchive
	err = s.mutate(ctx, userID, []string{productType}, func(tx store.Repository) error {
		var err error
		rebuilt, err = s.rebuildArchives(ctx, tx, userID, productType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rebuilt, nil
}

func (s *Service) loadLotInputs(ctx context.Context, userID string) ([]domain.Purchase, []domain.Sale, map[string]time.Time, error) {
	purchases, err := s.repo.ListPurchases(ctx, userID, store.RecordFilter{})
	if err != nil {
		return nil, nil, nil, err
	}
	sales, err := s.repo.ListSales(ctx, userID, store.RecordFilter{})
	if err != nil {
		return nil, nil, nil, err
	}
	resets, err := s.repo.LatestResetMarkers(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	return purchases, sales, resets, nil
}
