package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/store"
)

func (s *Service) checkExpense(req *domain.ExpenseRequest) error {
	req.Category = strings.TrimSpace(req.Category)
	req.Note = strings.TrimSpace(req.Note)
	extra := map[string]string{}
	if !req.Amount.IsPositive() {
		extra["amount"] = "gt"
	}
	checkScale(extra, map[string]decimal.Decimal{"amount": req.Amount}, nil)
	return s.check(req, extra)
}

func (s *Service) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, userID)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseRequest) (domain.Expense, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.Expense{}, err
	}
	if err := s.checkExpense(&req); err != nil {
		return domain.Expense{}, err
	}

	expense := domain.Expense{
		UserID:    userID,
		Category:  req.Category,
		Amount:    req.Amount,
		Note:      req.Note,
		Date:      mustDate(req.Date),
		CreatedAt: s.now(),
	}

	var created *domain.Expense
	err = s.mutate(ctx, userID, nil, func(tx store.Repository) error {
		var err error
		created, err = tx.CreateExpense(ctx, expense)
		if err != nil {
			return err
		}
		_, err = syncMirror(ctx, tx, userID, domain.SourceExpense, created.ID, expenseMirror(*created), true)
		return err
	})
	if err != nil {
		return domain.Expense{}, err
	}
	return *created, nil
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseRequest) (domain.Expense, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.Expense{}, err
	}
	if err := s.checkExpense(&req); err != nil {
		return domain.Expense{}, err
	}

	next := domain.Expense{
		ID:       id,
		UserID:   userID,
		Category: req.Category,
		Amount:   req.Amount,
		Note:     req.Note,
		Date:     mustDate(req.Date),
	}

	var updated *domain.Expense
	err = s.mutate(ctx, userID, nil, func(tx store.Repository) error {
		var err error
		updated, err = tx.UpdateExpense(ctx, next)
		if err != nil {
			return err
		}
		_, err = syncMirror(ctx, tx, userID, domain.SourceExpense, id, expenseMirror(*updated), true)
		return err
	})
	if err != nil {
		return domain.Expense{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetExpense(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	return s.mutate(ctx, userID, nil, func(tx store.Repository) error {
		if err := tx.DeleteExpense(ctx, userID, id); err != nil {
			return err
		}
		return removeMirrors(ctx, tx, userID, domain.SourceExpense, id)
	})
}
