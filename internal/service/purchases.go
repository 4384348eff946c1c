package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/ledger"
	"poultryledger/backend/internal/store"
)

func (s *Service) checkPurchase(req domain.PurchaseRequest) error {
	extra := map[string]string{}
	if req.Pieces < 1 {
		extra["pieces"] = "gt"
	}
	if !req.Total.IsPositive() {
		extra["total"] = "gt"
	}
	if req.WeightKG.IsNegative() {
		extra["weight_kg"] = "gte"
	}
	if req.Rate.IsNegative() {
		extra["rate"] = "gte"
	}
	checkScale(extra,
		map[string]decimal.Decimal{"total": req.Total, "rate": req.Rate},
		map[string]decimal.Decimal{"weight_kg": req.WeightKG})
	return s.check(req, extra)
}

func purchaseFromRequest(userID string, req domain.PurchaseRequest) domain.Purchase {
	return domain.Purchase{
		UserID:      userID,
		ProductType: req.ProductType,
		Pieces:      req.Pieces,
		WeightKG:    req.WeightKG,
		Rate:        req.Rate,
		Total:       req.Total,
		Date:        mustDate(req.Date),
		IsCredit:    req.IsCredit,
	}
}

func (s *Service) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPurchases(ctx, userID, store.RecordFilter{})
}

// CreatePurchase records a batch of birds bought. A cash purchase books a
// withdrawal mirror; a credit purchase books none.
func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseRequest) (domain.Purchase, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.Purchase{}, err
	}
	if err := s.checkPurchase(req); err != nil {
		return domain.Purchase{}, err
	}

	purchase := purchaseFromRequest(userID, req)
	purchase.CreatedAt = s.now()

	var created *domain.Purchase
	err = s.mutate(ctx, userID, []string{purchase.ProductType}, func(tx store.Repository) error {
		var err error
		created, err = tx.CreatePurchase(ctx, purchase)
		if err != nil {
			return err
		}
		if _, err := syncMirror(ctx, tx, userID, domain.SourcePurchase, created.ID, purchaseMirror(*created), true); err != nil {
			return err
		}
		return s.settleLots(ctx, tx, userID, created.CreatedAt, created.ProductType)
	})
	if err != nil {
		return domain.Purchase{}, err
	}
	return *created, nil
}

// UpdatePurchase rewrites a purchase and its cash mirror. Flipping the
// credit flag creates or deletes the mirror.
func (s *Service) UpdatePurchase(ctx context.Context, id string, req domain.PurchaseRequest) (domain.Purchase, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.Purchase{}, err
	}
	if err := s.checkPurchase(req); err != nil {
		return domain.Purchase{}, err
	}

	existing, err := s.repo.GetPurchase(ctx, userID, id)
	if err != nil {
		return domain.Purchase{}, err
	}

	next := purchaseFromRequest(userID, req)
	next.ID = id

	var updated *domain.Purchase
	err = s.mutate(ctx, userID, []string{existing.ProductType, next.ProductType}, func(tx store.Repository) error {
		var err error
		updated, err = tx.UpdatePurchase(ctx, next)
		if err != nil {
			return err
		}
		if _, err := syncMirror(ctx, tx, userID, domain.SourcePurchase, id, purchaseMirror(*updated), true); err != nil {
			return err
		}
		itemTime := ledger.ItemTime(existing.CreatedAt, existing.Date)
		return s.settleLots(ctx, tx, userID, itemTime, existing.ProductType, updated.ProductType)
	})
	if err != nil {
		return domain.Purchase{}, err
	}
	return *updated, nil
}

// DeletePurchase removes a purchase with its cash mirror. Deleting an
// unknown id is a no-op.
func (s *Service) DeletePurchase(ctx context.Context, id string) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}

	existing, err := s.repo.GetPurchase(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.mutate(ctx, userID, []string{existing.ProductType}, func(tx store.Repository) error {
		if err := tx.DeletePurchase(ctx, userID, id); err != nil {
			return err
		}
		if err := removeMirrors(ctx, tx, userID, domain.SourcePurchase, id); err != nil {
			return err
		}
		return s.settleLots(ctx, tx, userID, ledger.ItemTime(existing.CreatedAt, existing.Date), existing.ProductType)
	})
}
