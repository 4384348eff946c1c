package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/ledger"
	"poultryledger/backend/internal/store"
)

func (s *Service) ListCashLogs(ctx context.Context) ([]domain.CashLog, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCashLogs(ctx, userID)
}

func (s *Service) CashBalance(ctx context.Context) (domain.CashBalanceResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.CashBalanceResponse{}, err
	}
	logs, err := s.repo.ListCashLogs(ctx, userID)
	if err != nil {
		return domain.CashBalanceResponse{}, err
	}
	return domain.CashBalanceResponse{Balance: ledger.CashBalance(logs)}, nil
}

func (s *Service) checkCashLog(req *domain.CashLogRequest) error {
	req.Note = strings.TrimSpace(req.Note)
	extra := map[string]string{}
	if !req.Amount.IsPositive() {
		extra["amount"] = "gt"
	}
	checkScale(extra, map[string]decimal.Decimal{"amount": req.Amount}, nil)
	// Back-reference tokens are reserved for mirrors.
	if ledger.CarriesRef(req.Note) {
		extra["note"] = "excludes"
	}
	return s.check(req, extra)
}

// CreateCashLog books a manual cash movement.
func (s *Service) CreateCashLog(ctx context.Context, req domain.CashLogRequest) (domain.CashLog, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.CashLog{}, err
	}
	if err := s.checkCashLog(&req); err != nil {
		return domain.CashLog{}, err
	}

	entry := domain.CashLog{
		UserID:    userID,
		Type:      req.Type,
		Amount:    req.Amount,
		Date:      mustDate(req.Date),
		Note:      req.Note,
		CreatedAt: s.now(),
	}
	var created *domain.CashLog
	err = s.mutate(ctx, userID, nil, func(tx store.Repository) error {
		var err error
		created, err = tx.CreateCashLog(ctx, entry)
		return err
	})
	if err != nil {
		return domain.CashLog{}, err
	}
	return *created, nil
}

// UpdateCashLog edits a manual entry. Source links and denominations of the
// existing entry are kept.
func (s *Service) UpdateCashLog(ctx context.Context, id string, req domain.CashLogRequest) (domain.CashLog, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.CashLog{}, err
	}
	if err := s.checkCashLog(&req); err != nil {
		return domain.CashLog{}, err
	}

	var updated *domain.CashLog
	err = s.mutate(ctx, userID, nil, func(tx store.Repository) error {
		existing, err := tx.GetCashLog(ctx, userID, id)
		if err != nil {
			return err
		}
		next := *existing
		next.Type = req.Type
		next.Amount = req.Amount
		next.Date = mustDate(req.Date)
		next.Note = req.Note
		updated, err = tx.UpdateCashLog(ctx, next)
		return err
	})
	if err != nil {
		return domain.CashLog{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteCashLog(ctx context.Context, id string) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}
	return s.mutate(ctx, userID, nil, func(tx store.Repository) error {
		return tx.DeleteCashLog(ctx, userID, id)
	})
}

func (s *Service) checkCashCount(req domain.CashCountRequest) (decimal.Decimal, map[string]string, error) {
	if err := s.check(req, nil); err != nil {
		return decimal.Zero, nil, err
	}
	physical, denominations, err := ledger.CountCash(req.Counts)
	if err != nil {
		return decimal.Zero, nil, invalid("counts", "denomination")
	}
	if !physical.IsPositive() {
		return decimal.Zero, nil, invalid("counts", "gt")
	}
	return physical, denominations, nil
}

// CreateCashCount reconciles a physical note count against the booked
// balance by writing the adjusting entry.
func (s *Service) CreateCashCount(ctx context.Context, req domain.CashCountRequest) (domain.CashLog, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.CashLog{}, err
	}
	physical, denominations, err := s.checkCashCount(req)
	if err != nil {
		return domain.CashLog{}, err
	}
	date := s.today()
	if req.Date != "" {
		date = mustDate(req.Date)
	}

	var created *domain.CashLog
	err = s.mutate(ctx, userID, nil, func(tx store.Repository) error {
		logs, err := tx.ListCashLogs(ctx, userID)
		if err != nil {
			return err
		}
		logType, amount, note := ledger.CashAdjustment(physical, ledger.CashBalance(logs))
		created, err = tx.CreateCashLog(ctx, domain.CashLog{
			UserID:        userID,
			Type:          logType,
			Amount:        amount,
			Date:          date,
			Note:          note,
			Denominations: denominations,
			CreatedAt:     s.now(),
		})
		return err
	})
	if err != nil {
		return domain.CashLog{}, err
	}
	return *created, nil
}

// UpdateCashCount recounts an earlier cash count. The booked balance used
// for the gap leaves out the entry being edited.
func (s *Service) UpdateCashCount(ctx context.Context, id string, req domain.CashCountRequest) (domain.CashLog, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.CashLog{}, err
	}
	physical, denominations, err := s.checkCashCount(req)
	if err != nil {
		return domain.CashLog{}, err
	}

	var updated *domain.CashLog
	err = s.mutate(ctx, userID, nil, func(tx store.Repository) error {
		existing, err := tx.GetCashLog(ctx, userID, id)
		if err != nil {
			return err
		}
		if !existing.IsCashCount() {
			return invalid("id", "cash_count")
		}
		logs, err := tx.ListCashLogs(ctx, userID)
		if err != nil {
			return err
		}
		others := make([]domain.CashLog, 0, len(logs))
		for _, l := range logs {
			if l.ID != id {
				others = append(others, l)
			}
		}

		logType, amount, note := ledger.CashAdjustment(physical, ledger.CashBalance(others))
		next := *existing
		next.Type = logType
		next.Amount = amount
		next.Note = note
		next.Denominations = denominations
		if req.Date != "" {
			next.Date = mustDate(req.Date)
		}
		updated, err = tx.UpdateCashLog(ctx, next)
		return err
	})
	if err != nil {
		return domain.CashLog{}, err
	}
	return *updated, nil
}
