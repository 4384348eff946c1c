package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProductBroiler = "broiler"
	ProductSonali  = "sonali"
	ProductLayer   = "layer"
	ProductDeshi   = "deshi"
	ProductCock    = "cock"
)

// ProductTypes lists every poultry type the shop trades, in display order.
var ProductTypes = []string{ProductBroiler, ProductSonali, ProductLayer, ProductDeshi, ProductCock}

// CurrencyNotes are the note values accepted by a physical cash count.
var CurrencyNotes = []int64{1000, 500, 200, 100, 50, 20, 10, 5, 2, 1}

func IsProductType(value string) bool {
	for _, t := range ProductTypes {
		if t == value {
			return true
		}
	}
	return false
}

const DateLayout = "2006-01-02"

type Purchase struct {
	ID          string          `json:"id"`
	UserID      string          `json:"-"`
	ProductType string          `json:"product_type"`
	Pieces      int             `json:"pieces"`
	WeightKG    decimal.Decimal `json:"weight_kg"`
	Rate        decimal.Decimal `json:"rate"`
	Total       decimal.Decimal `json:"total"`
	Date        time.Time       `json:"date"`
	IsCredit    bool            `json:"is_credit"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Sale struct {
	ID          string          `json:"id"`
	UserID      string          `json:"-"`
	ProductType string          `json:"product_type"`
	Pieces      int             `json:"pieces"`
	WeightKG    decimal.Decimal `json:"weight_kg"`
	Rate        decimal.Decimal `json:"rate"`
	Mortality   int             `json:"mortality"`
	Total       decimal.Decimal `json:"total"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Expense struct {
	ID        string          `json:"id"`
	UserID    string          `json:"-"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note"`
	Date      time.Time       `json:"date"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	DueLogDue = "DUE"
	DueLogAdd = "ADD"
)

// DueLog is one entry of a customer's append-only debt history. DUE raises
// the debt, ADD records a payment.
type DueLog struct {
	ID     int64           `json:"id"`
	Date   time.Time       `json:"date"`
	Time   string          `json:"time"`
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// DueRecord caches Amount and Paid; both are always recomputed from Logs.
type DueRecord struct {
	ID           string          `json:"id"`
	UserID       string          `json:"-"`
	CustomerName string          `json:"customer_name"`
	Mobile       string          `json:"mobile,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Paid         decimal.Decimal `json:"paid"`
	Date         time.Time       `json:"date"`
	Image        string          `json:"image,omitempty"`
	Logs         []DueLog        `json:"logs"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (d DueRecord) Balance() decimal.Decimal {
	return d.Amount.Sub(d.Paid)
}

const (
	CashOpening  = "OPENING"
	CashAdd      = "ADD"
	CashWithdraw = "WITHDRAW"
)

const (
	SourcePurchase = "purchase"
	SourceSale     = "sale"
	SourceExpense  = "expense"
	SourceDue      = "due"
)

// CashLog is a cash box movement. Entries derived from another record carry
// SourceKind/SourceID and the matching [ref:kind:id] token in Note.
type CashLog struct {
	ID            string            `json:"id"`
	UserID        string            `json:"-"`
	Type          string            `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	Date          time.Time         `json:"date"`
	Note          string            `json:"note,omitempty"`
	Denominations map[string]string `json:"denominations,omitempty"`
	SourceKind    string            `json:"source_kind,omitempty"`
	SourceID      string            `json:"source_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (c CashLog) IsCashCount() bool {
	return len(c.Denominations) > 0
}

type LotArchive struct {
	ID            string          `json:"id"`
	UserID        string          `json:"-"`
	ProductType   string          `json:"product_type"`
	TotalPurchase decimal.Decimal `json:"total_purchase"`
	TotalSale     decimal.Decimal `json:"total_sale"`
	Profit        decimal.Decimal `json:"profit"`
	Date          time.Time       `json:"date"`
}

type ResetMarker struct {
	UserID      string    `json:"-"`
	ProductType string    `json:"product_type"`
	ResetAt     time.Time `json:"reset_at"`
}

type Stock struct {
	Pieces int             `json:"pieces"`
	KG     decimal.Decimal `json:"kg"`
	Dead   int             `json:"dead"`
}

type LotSummary struct {
	ProductType   string          `json:"product_type"`
	TotalPurchase decimal.Decimal `json:"total_purchase"`
	TotalSale     decimal.Decimal `json:"total_sale"`
	Profit        decimal.Decimal `json:"profit"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	FullName  string
	CreatedAt time.Time
}
