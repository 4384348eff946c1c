package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"poultryledger/backend/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// PersistenceError wraps a failed write or read of the backing store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// RecordFilter narrows purchase and sale listings. Zero fields match all.
type RecordFilter struct {
	ProductType string
	After       time.Time
}

// Repository is the per-user store of every ledger entity. Update fails with
// ErrNotFound when the record is absent; Delete of an absent record is a
// no-op.
type Repository interface {
	ListPurchases(ctx context.Context, userID string, filter RecordFilter) ([]domain.Purchase, error)
	GetPurchase(ctx context.Context, userID string, id string) (*domain.Purchase, error)
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	UpdatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	DeletePurchase(ctx context.Context, userID string, id string) error

	ListSales(ctx context.Context, userID string, filter RecordFilter) ([]domain.Sale, error)
	GetSale(ctx context.Context, userID string, id string) (*domain.Sale, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, userID string, id string) error

	ListExpenses(ctx context.Context, userID string) ([]domain.Expense, error)
	GetExpense(ctx context.Context, userID string, id string) (*domain.Expense, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, userID string, id string) error

	ListDues(ctx context.Context, userID string) ([]domain.DueRecord, error)
	GetDue(ctx context.Context, userID string, id string) (*domain.DueRecord, error)
	CreateDue(ctx context.Context, due domain.DueRecord) (*domain.DueRecord, error)
	UpdateDue(ctx context.Context, due domain.DueRecord) (*domain.DueRecord, error)
	DeleteDue(ctx context.Context, userID string, id string) error

	ListCashLogs(ctx context.Context, userID string) ([]domain.CashLog, error)
	GetCashLog(ctx context.Context, userID string, id string) (*domain.CashLog, error)
	CreateCashLog(ctx context.Context, log domain.CashLog) (*domain.CashLog, error)
	UpdateCashLog(ctx context.Context, log domain.CashLog) (*domain.CashLog, error)
	DeleteCashLog(ctx context.Context, userID string, id string) error
	// FindCashLogsBySource returns the cash mirrors of one source record,
	// matched by source columns or by the note back-reference.
	FindCashLogsBySource(ctx context.Context, userID string, kind string, sourceID string) ([]domain.CashLog, error)

	ListLotArchives(ctx context.Context, userID string) ([]domain.LotArchive, error)
	CreateLotArchive(ctx context.Context, archive domain.LotArchive) (*domain.LotArchive, error)
	DeleteLotArchivesByType(ctx context.Context, userID string, productType string) (int, error)

	// ListResetMarkers returns every reset of one product type, oldest first.
	ListResetMarkers(ctx context.Context, userID string, productType string) ([]time.Time, error)
	LatestResetMarkers(ctx context.Context, userID string) (map[string]time.Time, error)
	// AppendResetMarker fails with ErrDuplicate when the same instant is
	// already recorded for the type.
	AppendResetMarker(ctx context.Context, marker domain.ResetMarker) error

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUserIDs(ctx context.Context) ([]string, error)

	// Atomically runs fn against a transactional view of the repository.
	// Every write made through that view is discarded when fn returns an
	// error.
	Atomically(ctx context.Context, fn func(Repository) error) error
}
