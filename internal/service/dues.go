package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/ledger"
	"poultryledger/backend/internal/lock"
	"poultryledger/backend/internal/store"
	"poultryledger/backend/internal/xid"
)

func (s *Service) ListDues(ctx context.Context) (domain.DueListResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.DueListResponse{}, err
	}
	dues, err := s.repo.ListDues(ctx, userID)
	if err != nil {
		return domain.DueListResponse{}, err
	}
	ledger.SortDues(dues)
	return domain.DueListResponse{Dues: dues, TotalOutstanding: ledger.TotalOutstanding(dues)}, nil
}

// GetDue returns a customer with the log history newest first, each entry
// carrying the balance right after it.
func (s *Service) GetDue(ctx context.Context, id string) (domain.DueHistoryResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.DueHistoryResponse{}, err
	}
	due, err := s.repo.GetDue(ctx, userID, id)
	if err != nil {
		return domain.DueHistoryResponse{}, err
	}
	return domain.DueHistoryResponse{
		Due:     *due,
		Balance: due.Balance(),
		History: ledger.DueHistory(due.Logs),
	}, nil
}

// CreateDue opens a customer account. An opening due becomes the first DUE
// log; it is goods on credit, so no cash moves.
func (s *Service) CreateDue(ctx context.Context, req domain.DueCreateRequest) (domain.DueRecord, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.DueRecord{}, err
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Mobile = strings.TrimSpace(req.Mobile)
	extra := map[string]string{}
	if req.OpeningDue.IsNegative() {
		extra["opening_due"] = "gte"
	}
	checkScale(extra, map[string]decimal.Decimal{"opening_due": req.OpeningDue}, nil)
	if err := s.check(req, extra); err != nil {
		return domain.DueRecord{}, err
	}

	now := s.now()
	due := domain.DueRecord{
		UserID:       userID,
		CustomerName: req.CustomerName,
		Mobile:       req.Mobile,
		Date:         mustDate(req.Date),
		Image:        req.Image,
		CreatedAt:    now,
	}
	logs := []domain.DueLog{}
	if req.OpeningDue.IsPositive() {
		logs = append(logs, domain.DueLog{
			ID:     xid.NextLogID(now, 0),
			Date:   due.Date,
			Time:   now.Format("15:04"),
			Type:   domain.DueLogDue,
			Amount: req.OpeningDue,
		})
	}
	ledger.ApplyDueLogs(&due, logs)

	var created *domain.DueRecord
	err = s.mutate(ctx, userID, nil, func(tx store.Repository) error {
		var err error
		created, err = tx.CreateDue(ctx, due)
		return err
	})
	if err != nil {
		return domain.DueRecord{}, err
	}
	return *created, nil
}

// UpdateDue patches customer fields. A supplied log list replaces the whole
// history: removed logs lose their cash mirror, added logs gain one.
func (s *Service) UpdateDue(ctx context.Context, id string, req domain.DueUpdateRequest) (domain.DueRecord, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.DueRecord{}, err
	}
	extra := map[string]string{}
	if req.CustomerName != nil && strings.TrimSpace(*req.CustomerName) == "" {
		extra["customer_name"] = "required"
	}
	if req.Logs != nil {
		for field, rule := range checkDueLogs(*req.Logs) {
			extra[field] = rule
		}
	}
	if err := s.check(req, extra); err != nil {
		return domain.DueRecord{}, err
	}

	return s.editDue(ctx, userID, id, func(existing domain.DueRecord) (domain.DueRecord, bool) {
		next := existing
		if req.CustomerName != nil {
			next.CustomerName = strings.TrimSpace(*req.CustomerName)
		}
		if req.Mobile != nil {
			next.Mobile = strings.TrimSpace(*req.Mobile)
		}
		if req.Date != nil {
			next.Date = mustDate(*req.Date)
		}
		if req.Image != nil {
			next.Image = *req.Image
		}
		logs := existing.Logs
		if req.Logs != nil {
			logs = s.assignLogIDs(*req.Logs)
		}
		ledger.ApplyDueLogs(&next, logs)
		return next, true
	})
}

// AddDueLog appends one DUE or ADD entry and books its cash mirror.
func (s *Service) AddDueLog(ctx context.Context, id string, req domain.DueLogRequest) (domain.DueRecord, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.DueRecord{}, err
	}
	extra := map[string]string{}
	if !req.Amount.IsPositive() {
		extra["amount"] = "gt"
	}
	checkScale(extra, map[string]decimal.Decimal{"amount": req.Amount}, nil)
	if err := s.check(req, extra); err != nil {
		return domain.DueRecord{}, err
	}

	return s.editDue(ctx, userID, id, func(existing domain.DueRecord) (domain.DueRecord, bool) {
		now := s.now()
		entry := domain.DueLog{
			ID:     xid.NextLogID(now, ledger.LastDueLogID(existing.Logs)),
			Date:   mustDate(req.Date),
			Time:   req.Time,
			Type:   req.Type,
			Amount: req.Amount,
		}
		if entry.Time == "" {
			entry.Time = now.Format("15:04")
		}

		next := existing
		logs := append(append([]domain.DueLog{}, existing.Logs...), entry)
		ledger.ApplyDueLogs(&next, logs)
		return next, true
	})
}

// DeleteDueLog drops one entry and retracts its cash mirror. An unknown log
// id is a no-op.
func (s *Service) DeleteDueLog(ctx context.Context, id string, logID int64) (domain.DueRecord, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return domain.DueRecord{}, err
	}

	return s.editDue(ctx, userID, id, func(existing domain.DueRecord) (domain.DueRecord, bool) {
		logs := make([]domain.DueLog, 0, len(existing.Logs))
		for _, l := range existing.Logs {
			if l.ID != logID {
				logs = append(logs, l)
			}
		}
		if len(logs) == len(existing.Logs) {
			return existing, false
		}
		next := existing
		ledger.ApplyDueLogs(&next, logs)
		return next, true
	})
}

// DeleteDue removes a customer and every cash mirror of their logs.
func (s *Service) DeleteDue(ctx context.Context, id string) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}

	return s.mutateLocked(ctx, userID, []string{lock.DueKey(userID, id)}, func(tx store.Repository) error {
		existing, err := tx.GetDue(ctx, userID, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.DeleteDue(ctx, userID, id); err != nil {
			return err
		}
		for _, l := range existing.Logs {
			if err := removeMirrors(ctx, tx, userID, domain.SourceDue, ledger.DueLogSourceID(id, l.ID)); err != nil {
				return err
			}
		}
		return removeMirrors(ctx, tx, userID, domain.SourceDue, id)
	})
}

// editDue reads the due inside the transaction while holding its lock, so
// concurrent edits of one customer apply in turn. edit reporting false
// leaves the record as stored.
func (s *Service) editDue(ctx context.Context, userID string, id string, edit func(existing domain.DueRecord) (domain.DueRecord, bool)) (domain.DueRecord, error) {
	var saved domain.DueRecord
	err := s.mutateLocked(ctx, userID, []string{lock.DueKey(userID, id)}, func(tx store.Repository) error {
		existing, err := tx.GetDue(ctx, userID, id)
		if err != nil {
			return err
		}
		next, changed := edit(*existing)
		if !changed {
			saved = *existing
			return nil
		}
		updated, err := syncDueMirrors(ctx, tx, userID, *existing, next)
		if err != nil {
			return err
		}
		saved = *updated
		return nil
	})
	if err != nil {
		return domain.DueRecord{}, err
	}
	return saved, nil
}

// syncDueMirrors stores next and brings the cash mirrors of its logs in
// line. Only logs added by this edit gain a mirror.
func syncDueMirrors(ctx context.Context, tx store.Repository, userID string, before domain.DueRecord, next domain.DueRecord) (*domain.DueRecord, error) {
	known := make(map[int64]struct{}, len(before.Logs))
	for _, l := range before.Logs {
		known[l.ID] = struct{}{}
	}
	grew := len(next.Logs) > len(before.Logs)

	saved, err := tx.UpdateDue(ctx, next)
	if err != nil {
		return nil, err
	}
	for _, l := range ledger.RemovedDueLogs(before.Logs, saved.Logs) {
		if err := removeMirrors(ctx, tx, userID, domain.SourceDue, ledger.DueLogSourceID(saved.ID, l.ID)); err != nil {
			return nil, err
		}
	}
	for _, l := range saved.Logs {
		_, existed := known[l.ID]
		sourceID := ledger.DueLogSourceID(saved.ID, l.ID)
		if _, err := syncMirror(ctx, tx, userID, domain.SourceDue, sourceID, dueLogMirror(*saved, l), grew && !existed); err != nil {
			return nil, err
		}
	}
	return saved, nil
}

// assignLogIDs gives client-built logs without an id a fresh one.
func (s *Service) assignLogIDs(logs []domain.DueLog) []domain.DueLog {
	out := make([]domain.DueLog, len(logs))
	copy(out, logs)
	last := ledger.LastDueLogID(out)
	now := s.now()
	for i := range out {
		if out[i].ID == 0 {
			last = xid.NextLogID(now, last)
			out[i].ID = last
		}
		if out[i].Time == "" {
			out[i].Time = now.Format("15:04")
		}
	}
	return out
}

func checkDueLogs(logs []domain.DueLog) map[string]string {
	fields := map[string]string{}
	seen := make(map[int64]struct{}, len(logs))
	for i, l := range logs {
		if l.Type != domain.DueLogDue && l.Type != domain.DueLogAdd {
			fields[fmt.Sprintf("logs[%d].type", i)] = "oneof"
		}
		if !l.Amount.IsPositive() {
			fields[fmt.Sprintf("logs[%d].amount", i)] = "gt"
		} else if overScale(l.Amount, moneyPlaces) {
			fields[fmt.Sprintf("logs[%d].amount", i)] = "scale"
		}
		if l.Date.IsZero() {
			fields[fmt.Sprintf("logs[%d].date", i)] = "required"
		}
		if l.ID != 0 {
			if _, dup := seen[l.ID]; dup {
				fields[fmt.Sprintf("logs[%d].id", i)] = "unique"
			}
			seen[l.ID] = struct{}{}
		}
	}
	return fields
}
