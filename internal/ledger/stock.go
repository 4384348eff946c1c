// Package ledger holds the pure reconciliation rules of the shop ledger:
// stock per product type, lot close-out and archive partitioning, due log
// replay, cash balances and the back-reference tokens linking cash mirrors
// to their source records. Nothing here touches a store.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"poultryledger/backend/internal/domain"
)

// ItemTime is the instant used to place a record in a lot window: the
// creation timestamp, or the business date when no creation time is known.
func ItemTime(createdAt time.Time, date time.Time) time.Time {
	if !createdAt.IsZero() {
		return createdAt
	}
	return date
}

// Window is the half-open interval (Start, End]. A zero Start means the
// beginning of time and a zero End means "still open".
type Window struct {
	Start time.Time
	End   time.Time
}

func OpenWindow(lastReset time.Time) Window {
	return Window{Start: lastReset}
}

func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && !t.After(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

func PurchasesIn(purchases []domain.Purchase, productType string, w Window) []domain.Purchase {
	out := make([]domain.Purchase, 0, len(purchases))
	for _, p := range purchases {
		if p.ProductType != productType {
			continue
		}
		if w.Contains(ItemTime(p.CreatedAt, p.Date)) {
			out = append(out, p)
		}
	}
	return out
}

func SalesIn(sales []domain.Sale, productType string, w Window) []domain.Sale {
	out := make([]domain.Sale, 0, len(sales))
	for _, s := range sales {
		if s.ProductType != productType {
			continue
		}
		if w.Contains(ItemTime(s.CreatedAt, s.Date)) {
			out = append(out, s)
		}
	}
	return out
}

// CalculateStock returns the open-lot stock of every known product type.
// Records at or before a type's reset marker are ignored. Pieces may go
// negative when a lot boundary was saved before all sales were entered.
func CalculateStock(purchases []domain.Purchase, sales []domain.Sale, resets map[string]time.Time) map[string]domain.Stock {
	stock := make(map[string]domain.Stock, len(domain.ProductTypes))
	for _, t := range domain.ProductTypes {
		stock[t] = domain.Stock{KG: decimal.Zero}
	}

	for _, p := range purchases {
		current, known := stock[p.ProductType]
		if !known || !OpenWindow(resets[p.ProductType]).Contains(ItemTime(p.CreatedAt, p.Date)) {
			continue
		}
		current.Pieces += p.Pieces
		current.KG = current.KG.Add(p.WeightKG)
		stock[p.ProductType] = current
	}

	for _, s := range sales {
		current, known := stock[s.ProductType]
		if !known || !OpenWindow(resets[s.ProductType]).Contains(ItemTime(s.CreatedAt, s.Date)) {
			continue
		}
		current.Pieces -= s.Pieces + s.Mortality
		current.Dead += s.Mortality
		stock[s.ProductType] = current
	}

	return stock
}

// CurrentLots summarises the open lot of each product type that has any
// money moved through it since its last reset.
func CurrentLots(purchases []domain.Purchase, sales []domain.Sale, resets map[string]time.Time) []domain.LotSummary {
	lots := make([]domain.LotSummary, 0, len(domain.ProductTypes))
	for _, t := range domain.ProductTypes {
		w := OpenWindow(resets[t])
		buy := sumPurchases(PurchasesIn(purchases, t, w))
		sell := sumSales(SalesIn(sales, t, w))
		if buy.IsZero() && sell.IsZero() {
			continue
		}
		lots = append(lots, domain.LotSummary{
			ProductType:   t,
			TotalPurchase: buy,
			TotalSale:     sell,
			Profit:        sell.Sub(buy),
		})
	}
	return lots
}

func sumPurchases(purchases []domain.Purchase) decimal.Decimal {
	total := decimal.Zero
	for _, p := range purchases {
		total = total.Add(p.Total)
	}
	return total
}

func sumSales(sales []domain.Sale) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sales {
		total = total.Add(s.Total)
	}
	return total
}
