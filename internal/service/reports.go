package service

import (
	"context"

	"go.uber.org/zap"

	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/ledger"
)

// Dashboard returns the full per-user snapshot the client renders from. A
// cached copy is served until the next mutation invalidates it. The cache
// generation is read before loading so a snapshot overtaken by a write is
// not stored.
func (s *Service) Dashboard(ctx context.Context) (domain.DashboardResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	cacheable := true
	version, err := s.snapshots.Version(ctx, userID)
	if err != nil {
		cacheable = false
		s.logger.Warn("read snapshot version", zap.String("user_id", userID), zap.Error(err))
	}
	cached, ok, err := s.snapshots.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("read snapshot", zap.String("user_id", userID), zap.Error(err))
	}
	if ok && cached != nil {
		return *cached, nil
	}

	purchases, sales, resets, err := s.loadLotInputs(ctx, userID)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, userID)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	dues, err := s.repo.ListDues(ctx, userID)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	ledger.SortDues(dues)
	cashLogs, err := s.repo.ListCashLogs(ctx, userID)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	archives, err := s.repo.ListLotArchives(ctx, userID)
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	snapshot := domain.DashboardResponse{
		Purchases:   purchases,
		Sales:       sales,
		Expenses:    expenses,
		Dues:        dues,
		CashLogs:    cashLogs,
		LotHistory:  archives,
		Resets:      resets,
		Stock:       ledger.CalculateStock(purchases, sales, resets),
		CurrentLots: ledger.CurrentLots(purchases, sales, resets),
		CashBalance: ledger.CashBalance(cashLogs),
	}

	if cacheable {
		if err := s.snapshots.Set(ctx, userID, version, &snapshot, s.snapshotTTL); err != nil {
			s.logger.Warn("write snapshot", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return snapshot, nil
}

func (s *Service) Stock(ctx context.Context) (domain.StockResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.StockResponse{}, err
	}
	purchases, sales, resets, err := s.loadLotInputs(ctx, userID)
	if err != nil {
		return domain.StockResponse{}, err
	}

	stock := ledger.CalculateStock(purchases, sales, resets)
	total := 0
	for _, st := range stock {
		total += st.Pieces
	}
	return domain.StockResponse{Stock: stock, TotalPieces: total}, nil
}

// Report totals one period by business date. An empty range means daily.
func (s *Service) Report(ctx context.Context, rangeName string) (domain.PeriodReport, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.PeriodReport{}, err
	}
	if rangeName == "" {
		rangeName = domain.RangeDaily
	}
	from, to, err := ledger.PeriodBounds(rangeName, s.now())
	if err != nil {
		return domain.PeriodReport{}, invalid("range", "oneof")
	}

	purchases, sales, _, err := s.loadLotInputs(ctx, userID)
	if err != nil {
		return domain.PeriodReport{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, userID)
	if err != nil {
		return domain.PeriodReport{}, err
	}
	cashLogs, err := s.repo.ListCashLogs(ctx, userID)
	if err != nil {
		return domain.PeriodReport{}, err
	}
	return ledger.BuildReport(rangeName, from, to, purchases, sales, expenses, cashLogs), nil
}
