package ledger

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"poultryledger/backend/internal/domain"
)

// InconsistencyError reports a lot whose derived totals break an invariant.
// Callers log it and skip the archive; it never fails a read.
type InconsistencyError struct {
	ProductType string
	WindowEnd   time.Time
	Reason      string
}

func (e *InconsistencyError) Error() string {
	if e.WindowEnd.IsZero() {
		return fmt.Sprintf("inconsistent lot %s: %s", e.ProductType, e.Reason)
	}
	return fmt.Sprintf("inconsistent lot %s closed %s: %s", e.ProductType, e.WindowEnd.Format(time.RFC3339), e.Reason)
}

// CloseOut is the evaluation of one open lot window.
type CloseOut struct {
	ProductType     string
	PurchasedPieces int
	AccountedPieces int
	TotalPurchase   decimal.Decimal
	TotalSale       decimal.Decimal
}

// SoldThrough reports whether every purchased bird is sold or dead.
func (c CloseOut) SoldThrough() bool {
	return c.PurchasedPieces > 0 && c.PurchasedPieces-c.AccountedPieces <= 0
}

// Ready reports whether the lot should be archived now. A sold-through lot
// with no money on either side is left open.
func (c CloseOut) Ready() bool {
	if !c.SoldThrough() {
		return false
	}
	return !(c.TotalPurchase.IsZero() && c.TotalSale.IsZero())
}

func (c CloseOut) Archive(closedAt time.Time) domain.LotArchive {
	return domain.LotArchive{
		ProductType:   c.ProductType,
		TotalPurchase: c.TotalPurchase,
		TotalSale:     c.TotalSale,
		Profit:        c.TotalSale.Sub(c.TotalPurchase),
		Date:          closedAt,
	}
}

// EvaluateCloseOut totals the records of productType inside w.
func EvaluateCloseOut(productType string, purchases []domain.Purchase, sales []domain.Sale, w Window) (CloseOut, error) {
	out := CloseOut{ProductType: productType, TotalPurchase: decimal.Zero, TotalSale: decimal.Zero}
	for _, p := range PurchasesIn(purchases, productType, w) {
		out.PurchasedPieces += p.Pieces
		out.TotalPurchase = out.TotalPurchase.Add(p.Total)
	}
	for _, s := range SalesIn(sales, productType, w) {
		out.AccountedPieces += s.Pieces + s.Mortality
		out.TotalSale = out.TotalSale.Add(s.Total)
	}

	if out.TotalPurchase.IsNegative() || out.TotalSale.IsNegative() {
		return out, &InconsistencyError{
			ProductType: productType,
			WindowEnd:   w.End,
			Reason:      fmt.Sprintf("negative totals purchase=%s sale=%s", out.TotalPurchase, out.TotalSale),
		}
	}
	return out, nil
}

// RebuildArchives regenerates the closed-lot history of one product type
// from the full record set and its ordered reset markers. Each marker m
// closes the window (previous marker, m]; windows with no money are
// skipped. Inconsistent windows are left out and reported through the
// joined error while the remaining archives are still returned.
func RebuildArchives(productType string, purchases []domain.Purchase, sales []domain.Sale, markers []time.Time) ([]domain.LotArchive, error) {
	ordered := slices.Clone(markers)
	slices.SortFunc(ordered, func(a, b time.Time) int { return a.Compare(b) })

	archives := make([]domain.LotArchive, 0, len(ordered))
	var errs []error
	start := time.Time{}
	for _, end := range ordered {
		w := Window{Start: start, End: end}
		start = end

		out, err := EvaluateCloseOut(productType, purchases, sales, w)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if out.TotalPurchase.IsPositive() || out.TotalSale.IsPositive() {
			archives = append(archives, out.Archive(end))
		}
	}
	return archives, errors.Join(errs...)
}

// IsArchived reports whether a record stamped at t belongs to a lot that a
// later reset already closed.
func IsArchived(t time.Time, markers []time.Time) bool {
	for _, m := range markers {
		if m.After(t) {
			return true
		}
	}
	return false
}
