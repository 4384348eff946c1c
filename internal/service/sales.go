package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/ledger"
	"poultryledger/backend/internal/store"
)

// checkSale allows a zero total only for a mortality-only entry.
func (s *Service) checkSale(req domain.SaleRequest) error {
	extra := map[string]string{}
	if req.Pieces+req.Mortality < 1 {
		extra["pieces"] = "gt"
	}
	mortalityOnly := req.Pieces == 0 && req.Mortality > 0
	switch {
	case req.Total.IsNegative():
		extra["total"] = "gte"
	case req.Total.IsZero() && !mortalityOnly:
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

func saleFromRequest(userID string, req domain.SaleRequest) domain.Sale {
	return domain.Sale{
		UserID:      userID,
		ProductType: req.ProductType,
		Pieces:      req.Pieces,
		WeightKG:    req.WeightKG,
		Rate:        req.Rate,
		Mortality:   req.Mortality,
		Total:       req.Total,
		Date:        mustDate(req.Date),
	}
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, userID, store.RecordFilter{})
}

// CreateSale records sold and dead birds, books the income mirror and closes
// the lot out when it is sold through.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.checkSale(req); err != nil {
		return domain.Sale{}, err
	}

	sale := saleFromRequest(userID, req)
	sale.CreatedAt = s.now()

	var created *domain.Sale
	err = s.mutate(ctx, userID, []string{sale.ProductType}, func(tx store.Repository) error {
		var err error
		created, err = tx.CreateSale(ctx, sale)
		if err != nil {
			return err
		}
		if _, err := syncMirror(ctx, tx, userID, domain.SourceSale, created.ID, saleMirror(*created), true); err != nil {
			return err
		}
		return s.settleLots(ctx, tx, userID, created.CreatedAt, created.ProductType)
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return *created, nil
}

func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleRequest) (domain.Sale, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.checkSale(req); err != nil {
		return domain.Sale{}, err
	}

	existing, err := s.repo.GetSale(ctx, userID, id)
	if err != nil {
		return domain.Sale{}, err
	}

	next := saleFromRequest(userID, req)
	next.ID = id

	var updated *domain.Sale
	err = s.mutate(ctx, userID, []string{existing.ProductType, next.ProductType}, func(tx store.Repository) error {
		var err error
		updated, err = tx.UpdateSale(ctx, next)
		if err != nil {
			return err
		}
		if _, err := syncMirror(ctx, tx, userID, domain.SourceSale, id, saleMirror(*updated), true); err != nil {
			return err
		}
		itemTime := ledger.ItemTime(existing.CreatedAt, existing.Date)
		return s.settleLots(ctx, tx, userID, itemTime, existing.ProductType, updated.ProductType)
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}

	existing, err := s.repo.GetSale(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.mutate(ctx, userID, []string{existing.ProductType}, func(tx store.Repository) error {
		if err := tx.DeleteSale(ctx, userID, id); err != nil {
			return err
		}
		if err := removeMirrors(ctx, tx, userID, domain.SourceSale, id); err != nil {
			return err
		}
		return s.settleLots(ctx, tx, userID, ledger.ItemTime(existing.CreatedAt, existing.Date), existing.ProductType)
	})
}
