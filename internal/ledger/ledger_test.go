package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"poultryledger/backend/internal/domain"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func purchase(id string, productType string, pieces int, total string, createdAt time.Time) domain.Purchase {
	return domain.Purchase{
		ID:          id,
		ProductType: productType,
		Pieces:      pieces,
		WeightKG:    dec("1.5").Mul(decimal.NewFromInt(int64(pieces))),
		Total:       dec(total),
		Date:        time.Date(createdAt.Year(), createdAt.Month(), createdAt.Day(), 0, 0, 0, 0, time.UTC),
		CreatedAt:   createdAt,
	}
}

func sale(id string, productType string, pieces int, mortality int, total string, createdAt time.Time) domain.Sale {
	return domain.Sale{
		ID:          id,
		ProductType: productType,
		Pieces:      pieces,
		Mortality:   mortality,
		Total:       dec(total),
		Date:        time.Date(createdAt.Year(), createdAt.Month(), createdAt.Day(), 0, 0, 0, 0, time.UTC),
		CreatedAt:   createdAt,
	}
}

func TestCalculateStockCountsOpenLotOnly(t *testing.T) {
	purchases := []domain.Purchase{
		purchase("p1", domain.ProductBroiler, 100, "15000", at(0)),
		purchase("p2", domain.ProductBroiler, 50, "7500", at(30)),
		purchase("p3", domain.ProductSonali, 20, "4000", at(5)),
	}
	sales := []domain.Sale{
		sale("s1", domain.ProductBroiler, 90, 10, "20000", at(10)),
		sale("s2", domain.ProductBroiler, 20, 2, "4400", at(40)),
	}
	resets := map[string]time.Time{domain.ProductBroiler: at(20)}

	stock := CalculateStock(purchases, sales, resets)

	require.Len(t, stock, len(domain.ProductTypes))
	require.Equal(t, 28, stock[domain.ProductBroiler].Pieces)
	require.Equal(t, 2, stock[domain.ProductBroiler].Dead)
	require.True(t, dec("75").Equal(stock[domain.ProductBroiler].KG))
	require.Equal(t, 20, stock[domain.ProductSonali].Pieces)
	require.Equal(t, 0, stock[domain.ProductCock].Pieces)
}

func TestCalculateStockIgnoresRecordAtResetInstant(t *testing.T) {
	purchases := []domain.Purchase{purchase("p1", domain.ProductLayer, 10, "1000", at(20))}
	stock := CalculateStock(purchases, nil, map[string]time.Time{domain.ProductLayer: at(20)})
	require.Equal(t, 0, stock[domain.ProductLayer].Pieces)
}

func TestCalculateStockFallsBackToBusinessDate(t *testing.T) {
	p := purchase("p1", domain.ProductDeshi, 10, "1000", at(0))
	p.CreatedAt = time.Time{}
	p.Date = base.AddDate(0, 0, 1)

	stock := CalculateStock([]domain.Purchase{p}, nil, map[string]time.Time{domain.ProductDeshi: at(60)})
	require.Equal(t, 10, stock[domain.ProductDeshi].Pieces)
}

func TestCalculateStockMayGoNegative(t *testing.T) {
	sales := []domain.Sale{sale("s1", domain.ProductCock, 5, 0, "500", at(1))}
	stock := CalculateStock(nil, sales, nil)
	require.Equal(t, -5, stock[domain.ProductCock].Pieces)
}

func TestCalculateStockSkipsUnknownTypes(t *testing.T) {
	purchases := []domain.Purchase{purchase("p1", "duck", 10, "1000", at(0))}
	stock := CalculateStock(purchases, nil, nil)
	_, ok := stock["duck"]
	require.False(t, ok)
}

func TestEvaluateCloseOutThreshold(t *testing.T) {
	purchases := []domain.Purchase{purchase("p1", domain.ProductBroiler, 500, "50000", at(0))}
	sales := []domain.Sale{
		sale("s1", domain.ProductBroiler, 300, 0, "36000", at(10)),
	}

	out, err := EvaluateCloseOut(domain.ProductBroiler, purchases, sales, OpenWindow(time.Time{}))
	require.NoError(t, err)
	require.False(t, out.Ready())

	sales = append(sales, sale("s2", domain.ProductBroiler, 190, 10, "24000", at(20)))
	out, err = EvaluateCloseOut(domain.ProductBroiler, purchases, sales, OpenWindow(time.Time{}))
	require.NoError(t, err)
	require.True(t, out.Ready())

	archive := out.Archive(at(21))
	require.True(t, dec("50000").Equal(archive.TotalPurchase))
	require.True(t, dec("60000").Equal(archive.TotalSale))
	require.True(t, dec("10000").Equal(archive.Profit))
	require.Equal(t, at(21), archive.Date)
}

func TestEvaluateCloseOutNeedsPurchases(t *testing.T) {
	sales := []domain.Sale{sale("s1", domain.ProductSonali, 10, 0, "1000", at(0))}
	out, err := EvaluateCloseOut(domain.ProductSonali, nil, sales, OpenWindow(time.Time{}))
	require.NoError(t, err)
	require.False(t, out.Ready())
}

func TestEvaluateCloseOutSkipsZeroMoneyLot(t *testing.T) {
	purchases := []domain.Purchase{purchase("p1", domain.ProductSonali, 10, "0", at(0))}
	sales := []domain.Sale{sale("s1", domain.ProductSonali, 10, 0, "0", at(1))}
	out, err := EvaluateCloseOut(domain.ProductSonali, purchases, sales, OpenWindow(time.Time{}))
	require.NoError(t, err)
	require.True(t, out.SoldThrough())
	require.False(t, out.Ready())
}

func TestEvaluateCloseOutReportsNegativeTotals(t *testing.T) {
	purchases := []domain.Purchase{purchase("p1", domain.ProductLayer, 10, "-5", at(0))}
	_, err := EvaluateCloseOut(domain.ProductLayer, purchases, nil, OpenWindow(time.Time{}))

	var inconsistency *InconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	require.Equal(t, domain.ProductLayer, inconsistency.ProductType)
}

func TestRebuildArchivesPartitionsByMarkers(t *testing.T) {
	purchases := []domain.Purchase{
		purchase("p1", domain.ProductBroiler, 10, "1000", at(0)),
		purchase("p2", domain.ProductBroiler, 20, "2000", at(20)),
		purchase("p3", domain.ProductBroiler, 5, "500", at(40)),
	}
	sales := []domain.Sale{
		sale("s1", domain.ProductBroiler, 10, 0, "1200", at(5)),
		sale("s2", domain.ProductBroiler, 20, 0, "2600", at(25)),
	}
	markers := []time.Time{at(30), at(10), at(15)}

	archives, err := RebuildArchives(domain.ProductBroiler, purchases, sales, markers)
	require.NoError(t, err)
	require.Len(t, archives, 2)

	require.Equal(t, at(10), archives[0].Date)
	require.True(t, dec("1000").Equal(archives[0].TotalPurchase))
	require.True(t, dec("200").Equal(archives[0].Profit))

	require.Equal(t, at(30), archives[1].Date)
	require.True(t, dec("2000").Equal(archives[1].TotalPurchase))
	require.True(t, dec("2600").Equal(archives[1].TotalSale))

	again, err := RebuildArchives(domain.ProductBroiler, purchases, sales, markers)
	require.NoError(t, err)
	require.Equal(t, archives, again)
}

func TestRebuildArchivesKeepsGoodWindowsOnInconsistency(t *testing.T) {
	purchases := []domain.Purchase{
		purchase("p1", domain.ProductCock, 10, "-1000", at(0)),
		purchase("p2", domain.ProductCock, 10, "1000", at(20)),
	}
	archives, err := RebuildArchives(domain.ProductCock, purchases, nil, []time.Time{at(10), at(30)})

	var inconsistency *InconsistencyError
	require.True(t, errors.As(err, &inconsistency))
	require.Len(t, archives, 1)
	require.Equal(t, at(30), archives[0].Date)
}

func TestIsArchived(t *testing.T) {
	markers := []time.Time{at(10), at(20)}
	require.True(t, IsArchived(at(5), markers))
	require.True(t, IsArchived(at(15), markers))
	require.False(t, IsArchived(at(20), markers))
	require.False(t, IsArchived(at(25), markers))
	require.False(t, IsArchived(at(25), nil))
}

func TestCurrentLotsSkipsIdleTypes(t *testing.T) {
	purchases := []domain.Purchase{purchase("p1", domain.ProductSonali, 10, "1000", at(0))}
	sales := []domain.Sale{sale("s1", domain.ProductSonali, 4, 0, "600", at(1))}

	lots := CurrentLots(purchases, sales, nil)
	require.Len(t, lots, 1)
	require.Equal(t, domain.ProductSonali, lots[0].ProductType)
	require.True(t, dec("-400").Equal(lots[0].Profit))
}
