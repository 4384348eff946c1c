package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseRequest struct {
	ProductType string          `json:"product_type" validate:"required,oneof=broiler sonali layer deshi cock"`
	Pieces      int             `json:"pieces" validate:"gte=0"`
	WeightKG    decimal.Decimal `json:"weight_kg"`
	Rate        decimal.Decimal `json:"rate"`
	Total       decimal.Decimal `json:"total"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	IsCredit    bool            `json:"is_credit"`
}

type SaleRequest struct {
	ProductType string          `json:"product_type" validate:"required,oneof=broiler sonali layer deshi cock"`
	Pieces      int             `json:"pieces" validate:"gte=0"`
	WeightKG    decimal.Decimal `json:"weight_kg"`
	Rate        decimal.Decimal `json:"rate"`
	Mortality   int             `json:"mortality" validate:"gte=0"`
	Total       decimal.Decimal `json:"total"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
}

type ExpenseRequest struct {
	Category string          `json:"category" validate:"required,max=80"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note" validate:"max=255"`
	Date     string          `json:"date" validate:"required,datetime=2006-01-02"`
}

type DueCreateRequest struct {
	CustomerName string          `json:"customer_name" validate:"required,max=120"`
	Mobile       string          `json:"mobile" validate:"omitempty,max=20"`
	Date         string          `json:"date" validate:"required,datetime=2006-01-02"`
	Image        string          `json:"image"`
	OpeningDue   decimal.Decimal `json:"opening_due"`
}

// DueUpdateRequest patches a due record. A non-nil Logs replaces the whole
// log history; totals are always recomputed from it.
type DueUpdateRequest struct {
	CustomerName *string   `json:"customer_name,omitempty" validate:"omitempty,min=1,max=120"`
	Mobile       *string   `json:"mobile,omitempty" validate:"omitempty,max=20"`
	Date         *string   `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Image        *string   `json:"image,omitempty"`
	Logs         *[]DueLog `json:"logs,omitempty"`
}

type DueLogRequest struct {
	Type   string          `json:"type" validate:"required,oneof=DUE ADD"`
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date" validate:"required,datetime=2006-01-02"`
	Time   string          `json:"time" validate:"omitempty,datetime=15:04"`
}

type CashLogRequest struct {
	Type   string          `json:"type" validate:"required,oneof=OPENING ADD WITHDRAW"`
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date" validate:"required,datetime=2006-01-02"`
	Note   string          `json:"note" validate:"max=255"`
}

// CashCountRequest maps a note value ("500") to the number of notes counted.
type CashCountRequest struct {
	Counts map[string]int `json:"counts" validate:"required,min=1,dive,gte=0"`
	Date   string         `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,max=120"`
	Username string `json:"username" validate:"required,min=4,max=40"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID   string
	Username string
}

type DashboardResponse struct {
	Purchases   []Purchase           `json:"purchases"`
	Sales       []Sale               `json:"sales"`
	Expenses    []Expense            `json:"expenses"`
	Dues        []DueRecord          `json:"dues"`
	CashLogs    []CashLog            `json:"cash_logs"`
	LotHistory  []LotArchive         `json:"lot_history"`
	Resets      map[string]time.Time `json:"resets"`
	Stock       map[string]Stock     `json:"stock"`
	CurrentLots []LotSummary         `json:"current_lots"`
	CashBalance decimal.Decimal      `json:"cash_balance"`
}

type StockResponse struct {
	Stock       map[string]Stock `json:"stock"`
	TotalPieces int              `json:"total_pieces"`
}

type DueListResponse struct {
	Dues             []DueRecord     `json:"dues"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
}

type DueHistoryEntry struct {
	DueLog
	RunningBalance decimal.Decimal `json:"running_balance"`
}

type DueHistoryResponse struct {
	Due     DueRecord         `json:"due"`
	Balance decimal.Decimal   `json:"balance"`
	History []DueHistoryEntry `json:"history"`
}

type CashBalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

const (
	RangeDaily   = "daily"
	RangeWeekly  = "weekly"
	RangeMonthly = "monthly"
	RangeYearly  = "yearly"
)

type PeriodReport struct {
	Range         string          `json:"range"`
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	TotalPurchase decimal.Decimal `json:"total_purchase"`
	TotalSale     decimal.Decimal `json:"total_sale"`
	TotalExpense  decimal.Decimal `json:"total_expense"`
	Adjustment    decimal.Decimal `json:"adjustment"`
	NetProfit     decimal.Decimal `json:"net_profit"`
}

// ReconcileReport summarises one repair pass for a user.
type ReconcileReport struct {
	MirrorsCreated  int `json:"mirrors_created"`
	MirrorsUpdated  int `json:"mirrors_updated"`
	MirrorsRemoved  int `json:"mirrors_removed"`
	ArchivesRebuilt int `json:"archives_rebuilt"`
	TypesReconciled int `json:"types_reconciled"`
}
