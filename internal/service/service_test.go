package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"poultryledger/backend/internal/cache"
	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/ledger"
	"poultryledger/backend/internal/store"
	"poultryledger/backend/internal/store/memory"
)

// tickingClock advances one second per reading so every record gets a
// distinct creation instant.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T) (*Service, *memory.Store, context.Context) {
	t.Helper()
	repo := memory.New()
	clock := &tickingClock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	svc := New(repo, Options{Now: clock.Now})
	ctx := WithActor(context.Background(), domain.Actor{UserID: "user-1", Username: "shop"})
	return svc, repo, ctx
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func buy(t *testing.T, svc *Service, ctx context.Context, productType string, pieces int, total string, credit bool) domain.Purchase {
	t.Helper()
	p, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		ProductType: productType,
		Pieces:      pieces,
		WeightKG:    dec("100"),
		Rate:        dec("1"),
		Total:       dec(total),
		Date:        "2026-03-10",
		IsCredit:    credit,
	})
	require.NoError(t, err)
	return p
}

func sell(t *testing.T, svc *Service, ctx context.Context, productType string, pieces int, mortality int, total string) domain.Sale {
	t.Helper()
	s, err := svc.CreateSale(ctx, domain.SaleRequest{
		ProductType: productType,
		Pieces:      pieces,
		Mortality:   mortality,
		Total:       dec(total),
		Date:        "2026-03-10",
	})
	require.NoError(t, err)
	return s
}

func requireValidation(t *testing.T, err error, field string) {
	t.Helper()
	require.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, field)
}

func TestRequiresActor(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ListPurchases(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLotClosesOutWhenSoldThrough(t *testing.T) {
	svc, _, ctx := newTestService(t)

	buy(t, svc, ctx, domain.ProductBroiler, 500, "50000", false)
	sell(t, svc, ctx, domain.ProductBroiler, 300, 0, "40000")

	archives, err := svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Empty(t, archives)

	sell(t, svc, ctx, domain.ProductBroiler, 200, 0, "30000")

	archives, err = svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.Equal(t, domain.ProductBroiler, archives[0].ProductType)
	require.True(t, archives[0].TotalPurchase.Equal(dec("50000")))
	require.True(t, archives[0].TotalSale.Equal(dec("70000")))
	require.True(t, archives[0].Profit.Equal(dec("20000")))

	stock, err := svc.Stock(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stock.Stock[domain.ProductBroiler].Pieces)

	buy(t, svc, ctx, domain.ProductBroiler, 100, "9000", false)
	stock, err = svc.Stock(ctx)
	require.NoError(t, err)
	require.Equal(t, 100, stock.Stock[domain.ProductBroiler].Pieces)
	require.Equal(t, 100, stock.TotalPieces)

	lots, err := svc.CurrentLots(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	require.True(t, lots[0].TotalPurchase.Equal(dec("9000")))
}

func TestSaleWithMortalityClosesLotAndStartsFresh(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	buy(t, svc, ctx, domain.ProductBroiler, 500, "60000", false)
	sell(t, svc, ctx, domain.ProductBroiler, 300, 200, "45000")

	archives, err := svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.True(t, archives[0].Profit.Equal(dec("-15000")))

	markers, err := repo.ListResetMarkers(context.Background(), "user-1", domain.ProductBroiler)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	require.True(t, markers[0].Equal(archives[0].Date))

	buy(t, svc, ctx, domain.ProductBroiler, 50, "6000", false)
	stock, err := svc.Stock(ctx)
	require.NoError(t, err)
	require.Equal(t, 50, stock.Stock[domain.ProductBroiler].Pieces)
	require.Zero(t, stock.Stock[domain.ProductBroiler].Dead)
}

func TestMortalityCountsTowardsCloseOut(t *testing.T) {
	svc, _, ctx := newTestService(t)

	buy(t, svc, ctx, domain.ProductSonali, 10, "1000", false)
	sell(t, svc, ctx, domain.ProductSonali, 8, 0, "1200")
	sell(t, svc, ctx, domain.ProductSonali, 0, 2, "0")

	archives, err := svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.True(t, archives[0].Profit.Equal(dec("200")))

	logs, err := svc.ListCashLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 2, "mortality-only sale books no cash")
}

func TestLotTypesAreIndependent(t *testing.T) {
	svc, _, ctx := newTestService(t)

	buy(t, svc, ctx, domain.ProductBroiler, 10, "1000", false)
	buy(t, svc, ctx, domain.ProductLayer, 5, "500", false)
	sell(t, svc, ctx, domain.ProductBroiler, 10, 0, "1500")

	archives, err := svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.Equal(t, domain.ProductBroiler, archives[0].ProductType)

	stock, err := svc.Stock(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, stock.Stock[domain.ProductLayer].Pieces)
}

func TestPurchaseCashMirrorFollowsCreditFlag(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := buy(t, svc, ctx, domain.ProductDeshi, 20, "4000", false)
	balance, err := svc.CashBalance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(dec("-4000")))

	logs, err := svc.ListCashLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, domain.CashWithdraw, logs[0].Type)
	require.Equal(t, domain.SourcePurchase, logs[0].SourceKind)
	require.Equal(t, p.ID, logs[0].SourceID)
	require.True(t, ledger.HasRef(logs[0].Note, domain.SourcePurchase, p.ID))

	_, err = svc.UpdatePurchase(ctx, p.ID, domain.PurchaseRequest{
		ProductType: domain.ProductDeshi,
		Pieces:      20,
		Total:       dec("4000"),
		Date:        "2026-03-10",
		IsCredit:    true,
	})
	require.NoError(t, err)
	logs, err = svc.ListCashLogs(ctx)
	require.NoError(t, err)
	require.Empty(t, logs)

	_, err = svc.UpdatePurchase(ctx, p.ID, domain.PurchaseRequest{
		ProductType: domain.ProductDeshi,
		Pieces:      20,
		Total:       dec("4500"),
		Date:        "2026-03-10",
	})
	require.NoError(t, err)
	balance, err = svc.CashBalance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(dec("-4500")))

	require.NoError(t, svc.DeletePurchase(ctx, p.ID))
	logs, err = svc.ListCashLogs(ctx)
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	svc, _, ctx := newTestService(t)

	require.NoError(t, svc.DeletePurchase(ctx, "missing"))
	require.NoError(t, svc.DeleteSale(ctx, "missing"))
	require.NoError(t, svc.DeleteExpense(ctx, "missing"))
	require.NoError(t, svc.DeleteDue(ctx, "missing"))

	_, err := svc.UpdateExpense(ctx, "missing", domain.ExpenseRequest{Category: "Feed", Amount: dec("10"), Date: "2026-03-10"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestValidationWritesNothing(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{ProductType: "duck", Pieces: 0, Total: dec("0"), Date: "10/03/2026"})
	requireValidation(t, err, "product_type")
	requireValidation(t, err, "pieces")
	requireValidation(t, err, "total")
	requireValidation(t, err, "date")

	_, err = svc.CreateSale(ctx, domain.SaleRequest{ProductType: domain.ProductBroiler, Pieces: 5, Total: dec("0"), Date: "2026-03-10"})
	requireValidation(t, err, "total")

	_, err = svc.CreateExpense(ctx, domain.ExpenseRequest{Category: "  ", Amount: dec("-1"), Date: "2026-03-10"})
	requireValidation(t, err, "category")
	requireValidation(t, err, "amount")

	_, err = svc.CreateCashLog(ctx, domain.CashLogRequest{Type: "BORROW", Amount: dec("5"), Date: "2026-03-10"})
	requireValidation(t, err, "type")

	purchases, err := svc.ListPurchases(ctx)
	require.NoError(t, err)
	require.Empty(t, purchases)
	logs, err := svc.ListCashLogs(ctx)
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestExpenseMirrorLabel(t *testing.T) {
	svc, _, ctx := newTestService(t)

	e, err := svc.CreateExpense(ctx, domain.ExpenseRequest{Category: "Transport", Amount: dec("250"), Note: "van", Date: "2026-03-10"})
	require.NoError(t, err)

	logs, err := svc.ListCashLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, ledger.MirrorNote("Expense: Transport - van", domain.SourceExpense, e.ID), logs[0].Note)

	_, err = svc.UpdateExpense(ctx, e.ID, domain.ExpenseRequest{Category: "Transport", Amount: dec("300"), Date: "2026-03-10"})
	require.NoError(t, err)
	logs, err = svc.ListCashLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.True(t, logs[0].Amount.Equal(dec("300")))
	require.Equal(t, ledger.MirrorNote("Expense: Transport", domain.SourceExpense, e.ID), logs[0].Note)
}

func TestDueLifecycle(t *testing.T) {
	svc, _, ctx := newTestService(t)

	due, err := svc.CreateDue(ctx, domain.DueCreateRequest{CustomerName: "Karim", Date: "2026-03-10", OpeningDue: dec("100")})
	require.NoError(t, err)
	require.Len(t, due.Logs, 1)
	require.True(t, due.Amount.Equal(dec("100")))

	logs, err := svc.ListCashLogs(ctx)
	require.NoError(t, err)
	require.Empty(t, logs, "opening due moves no cash")

	due, err = svc.AddDueLog(ctx, due.ID, domain.DueLogRequest{Type: domain.DueLogAdd, Amount: dec("40"), Date: "2026-03-11"})
	require.NoError(t, err)
	require.True(t, due.Paid.Equal(dec("40")))
	payment := due.Logs[1]

	balance, err := svc.CashBalance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(dec("40")))

	due, err = svc.AddDueLog(ctx, due.ID, domain.DueLogRequest{Type: domain.DueLogDue, Amount: dec("10"), Date: "2026-03-12"})
	require.NoError(t, err)

	history, err := svc.GetDue(ctx, due.ID)
	require.NoError(t, err)
	require.True(t, history.Balance.Equal(dec("70")))
	require.Len(t, history.History, 3)
	require.True(t, history.History[0].RunningBalance.Equal(dec("70")))

	due, err = svc.DeleteDueLog(ctx, due.ID, payment.ID)
	require.NoError(t, err)
	require.True(t, due.Paid.IsZero())
	balance, err = svc.CashBalance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(dec("-10")))

	list, err := svc.ListDues(ctx)
	require.NoError(t, err)
	require.Len(t, list.Dues, 1)
	require.True(t, list.TotalOutstanding.Equal(dec("110")))

	require.NoError(t, svc.DeleteDue(ctx, due.ID))
	logs, err = svc.ListCashLogs(ctx)
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestUpdateDueReplacesLogs(t *testing.T) {
	svc, _, ctx := newTestService(t)

	due, err := svc.CreateDue(ctx, domain.DueCreateRequest{CustomerName: "Rahim", Date: "2026-03-10", OpeningDue: dec("200")})
	require.NoError(t, err)

	logs := append([]domain.DueLog{}, due.Logs...)
	logs = append(logs, domain.DueLog{Type: domain.DueLogAdd, Amount: dec("50"), Date: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)})
	name := "Rahim Uddin"
	due, err = svc.UpdateDue(ctx, due.ID, domain.DueUpdateRequest{CustomerName: &name, Logs: &logs})
	require.NoError(t, err)
	require.Equal(t, "Rahim Uddin", due.CustomerName)
	require.True(t, due.Balance().Equal(dec("150")))
	require.NotZero(t, due.Logs[1].ID)

	cash, err := svc.ListCashLogs(ctx)
	require.NoError(t, err)
	require.Len(t, cash, 1)
	require.Equal(t, domain.CashAdd, cash[0].Type)
	require.Equal(t, ledger.MirrorNote("Due collection: Rahim Uddin", domain.SourceDue, ledger.DueLogSourceID(due.ID, due.Logs[1].ID)), cash[0].Note)

	bad := []domain.DueLog{{Type: "LOAN", Amount: dec("0")}}
	_, err = svc.UpdateDue(ctx, due.ID, domain.DueUpdateRequest{Logs: &bad})
	requireValidation(t, err, "logs[0].type")
	requireValidation(t, err, "logs[0].amount")
}

func TestCashCountAdjustsBalance(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.CreateCashLog(ctx, domain.CashLogRequest{Type: domain.CashOpening, Amount: dec("1000"), Date: "2026-03-10"})
	require.NoError(t, err)

	count, err := svc.CreateCashCount(ctx, domain.CashCountRequest{Counts: map[string]int{"500": 2, "100": 1}})
	require.NoError(t, err)
	require.Equal(t, domain.CashAdd, count.Type)
	require.True(t, count.Amount.Equal(dec("100")))
	require.Equal(t, "1", count.Denominations["100"])

	balance, err := svc.CashBalance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(dec("1100")))

	recount, err := svc.UpdateCashCount(ctx, count.ID, domain.CashCountRequest{Counts: map[string]int{"500": 1}})
	require.NoError(t, err)
	require.Equal(t, domain.CashWithdraw, recount.Type)
	require.True(t, recount.Amount.Equal(dec("500")))

	balance, err = svc.CashBalance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(dec("500")))

	_, err = svc.CreateCashCount(ctx, domain.CashCountRequest{Counts: map[string]int{"3": 1}})
	requireValidation(t, err, "counts")
}

type failingCashRepo struct {
	store.Repository
}

var errBoom = errors.New("boom")

func (r failingCashRepo) Atomically(ctx context.Context, fn func(store.Repository) error) error {
	return r.Repository.Atomically(ctx, func(tx store.Repository) error {
		return fn(failingCashRepo{Repository: tx})
	})
}

func (r failingCashRepo) CreateCashLog(context.Context, domain.CashLog) (*domain.CashLog, error) {
	return nil, errBoom
}

func TestFailedMirrorRollsBackRecord(t *testing.T) {
	repo := memory.New()
	svc := New(failingCashRepo{Repository: repo}, Options{})
	ctx := WithActor(context.Background(), domain.Actor{UserID: "user-1"})

	_, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{ProductType: domain.ProductCock, Pieces: 3, Total: dec("900"), Date: "2026-03-10"})
	require.ErrorIs(t, err, errBoom)

	purchases, err := repo.ListPurchases(context.Background(), "user-1", store.RecordFilter{})
	require.NoError(t, err)
	require.Empty(t, purchases)
}

func TestRetroactiveEditRebuildsArchive(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := buy(t, svc, ctx, domain.ProductBroiler, 10, "1000", false)
	sell(t, svc, ctx, domain.ProductBroiler, 10, 0, "1500")

	_, err := svc.UpdatePurchase(ctx, p.ID, domain.PurchaseRequest{
		ProductType: domain.ProductBroiler,
		Pieces:      10,
		Total:       dec("1200"),
		Date:        "2026-03-10",
	})
	require.NoError(t, err)

	archives, err := svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.True(t, archives[0].Profit.Equal(dec("300")))
}

func TestReconcileRepairsMirrors(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	p := buy(t, svc, ctx, domain.ProductLayer, 4, "800", false)
	logs, err := repo.FindCashLogsBySource(context.Background(), "user-1", domain.SourcePurchase, p.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NoError(t, repo.DeleteCashLog(context.Background(), "user-1", logs[0].ID))

	_, err = repo.CreateCashLog(context.Background(), domain.CashLog{
		UserID: "user-1",
		Type:   domain.CashAdd,
		Amount: dec("50"),
		Note:   ledger.MirrorNote("Sale income: layer", domain.SourceSale, "gone"),
	})
	require.NoError(t, err)

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.MirrorsCreated)
	require.Equal(t, 1, report.MirrorsRemoved)
	require.Equal(t, len(domain.ProductTypes), report.TypesReconciled)

	balance, err := svc.CashBalance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(dec("-800")))

	again, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, again.MirrorsCreated)
	require.Zero(t, again.MirrorsUpdated)
	require.Zero(t, again.MirrorsRemoved)
}

func TestReconcileAllCoversRegisteredUsers(t *testing.T) {
	svc, repo, _ := newTestService(t)

	user, err := repo.CreateUser(context.Background(), domain.UserAccount{Username: "shop", Password: "x"})
	require.NoError(t, err)
	ctx := WithActor(context.Background(), domain.Actor{UserID: user.ID})
	buy(t, svc, ctx, domain.ProductBroiler, 2, "200", false)
	sell(t, svc, ctx, domain.ProductBroiler, 2, 0, "260")

	report, err := svc.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.ArchivesRebuilt)
	require.Equal(t, len(domain.ProductTypes), report.TypesReconciled)
}

func TestReportNetsAdjustment(t *testing.T) {
	svc, _, ctx := newTestService(t)

	buy(t, svc, ctx, domain.ProductBroiler, 10, "1000", true)
	sell(t, svc, ctx, domain.ProductBroiler, 5, 0, "800")
	_, err := svc.CreateExpense(ctx, domain.ExpenseRequest{Category: "Feed", Amount: dec("100"), Date: "2026-03-10"})
	require.NoError(t, err)

	report, err := svc.Report(ctx, "")
	require.NoError(t, err)
	require.Equal(t, domain.RangeDaily, report.Range)
	require.True(t, report.NetProfit.Equal(dec("-300")))

	_, err = svc.Report(ctx, "hourly")
	requireValidation(t, err, "range")
}

type countingCache struct {
	mu          sync.Mutex
	value       *domain.DashboardResponse
	version     int64
	sets        int
	invalidated int
}

func (c *countingCache) Version(context.Context, string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version, nil
}

func (c *countingCache) Get(context.Context, string) (*domain.DashboardResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.value != nil, nil
}

func (c *countingCache) Set(_ context.Context, _ string, version int64, value *domain.DashboardResponse, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version != c.version {
		return nil
	}
	c.value = value
	c.sets++
	return nil
}

func (c *countingCache) Invalidate(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
	c.version++
	c.invalidated++
	return nil
}

func TestDashboardCacheInvalidatedOnWrite(t *testing.T) {
	snapshots := &countingCache{}
	svc := New(memory.New(), Options{Snapshots: snapshots})
	ctx := WithActor(context.Background(), domain.Actor{UserID: "user-1"})

	first, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	require.Empty(t, first.Purchases)
	_, err = svc.Dashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, snapshots.sets)

	buy(t, svc, ctx, domain.ProductBroiler, 1, "100", false)
	require.Equal(t, 1, snapshots.invalidated)

	next, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, next.Purchases, 1)
	require.True(t, next.CashBalance.Equal(dec("-100")))
	require.Equal(t, 2, snapshots.sets)
}

// pausingRepo holds the first ListLotArchives call open until resume is
// closed, which parks a Dashboard after all of its reads.
type pausingRepo struct {
	*memory.Store
	once    sync.Once
	reached chan struct{}
	resume  chan struct{}
}

func (r *pausingRepo) ListLotArchives(ctx context.Context, userID string) ([]domain.LotArchive, error) {
	archives, err := r.Store.ListLotArchives(ctx, userID)
	r.once.Do(func() {
		close(r.reached)
		<-r.resume
	})
	return archives, err
}

func TestDashboardOvertakenByWriteIsNotCached(t *testing.T) {
	repo := &pausingRepo{Store: memory.New(), reached: make(chan struct{}), resume: make(chan struct{})}
	svc := New(repo, Options{Snapshots: cache.NewMemorySnapshotCache()})
	ctx := WithActor(context.Background(), domain.Actor{UserID: "user-1"})

	type result struct {
		dashboard domain.DashboardResponse
		err       error
	}
	done := make(chan result, 1)
	go func() {
		d, err := svc.Dashboard(ctx)
		done <- result{dashboard: d, err: err}
	}()

	<-repo.reached
	buy(t, svc, ctx, domain.ProductBroiler, 1, "100", false)
	close(repo.resume)

	stale := <-done
	require.NoError(t, stale.err)
	require.Empty(t, stale.dashboard.Purchases)

	fresh, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, fresh.Purchases, 1)
	require.True(t, fresh.CashBalance.Equal(dec("-100")))
}

func TestManualCashNoteCannotCarryRef(t *testing.T) {
	svc, _, ctx := newTestService(t)
	p := buy(t, svc, ctx, domain.ProductBroiler, 10, "1000", false)

	_, err := svc.CreateCashLog(ctx, domain.CashLogRequest{
		Type:   domain.CashOpening,
		Amount: dec("5000"),
		Date:   "2026-03-10",
		Note:   "float " + ledger.RefToken(domain.SourcePurchase, p.ID),
	})
	requireValidation(t, err, "note")

	opening, err := svc.CreateCashLog(ctx, domain.CashLogRequest{Type: domain.CashOpening, Amount: dec("5000"), Date: "2026-03-10", Note: "float"})
	require.NoError(t, err)
	_, err = svc.UpdateCashLog(ctx, opening.ID, domain.CashLogRequest{
		Type:   domain.CashOpening,
		Amount: dec("5000"),
		Date:   "2026-03-10",
		Note:   "[ref:sale:old-receipt]",
	})
	requireValidation(t, err, "note")

	require.NoError(t, svc.DeletePurchase(ctx, p.ID))
	_, err = svc.Reconcile(ctx)
	require.NoError(t, err)

	balance, err := svc.CashBalance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(dec("5000")))
}

func TestSourcedMirrorIgnoresForeignToken(t *testing.T) {
	svc, _, ctx := newTestService(t)
	p := buy(t, svc, ctx, domain.ProductBroiler, 10, "1000", false)

	_, err := svc.CreateExpense(ctx, domain.ExpenseRequest{
		Category: "Transport",
		Amount:   dec("200"),
		Note:     "return trip " + ledger.RefToken(domain.SourcePurchase, p.ID),
		Date:     "2026-03-10",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePurchase(ctx, p.ID))
	balance, err := svc.CashBalance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(dec("-200")))

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, report.MirrorsRemoved)
	balance, err = svc.CashBalance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(dec("-200")))
}

func TestConcurrentDueLogsAreAllKept(t *testing.T) {
	svc, _, ctx := newTestService(t)
	due, err := svc.CreateDue(ctx, domain.DueCreateRequest{CustomerName: "Karim", Date: "2026-03-10", OpeningDue: dec("500")})
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddDueLog(ctx, due.ID, domain.DueLogRequest{Type: domain.DueLogAdd, Amount: dec("10"), Date: "2026-03-11"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	history, err := svc.GetDue(ctx, due.ID)
	require.NoError(t, err)
	require.Len(t, history.Due.Logs, writers+1)
	require.True(t, history.Due.Paid.Equal(dec("80")))
	require.True(t, history.Balance.Equal(dec("420")))

	ids := make(map[int64]struct{}, writers+1)
	for _, l := range history.Due.Logs {
		ids[l.ID] = struct{}{}
	}
	require.Len(t, ids, writers+1)

	logs, err := svc.ListCashLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, writers)
	balance, err := svc.CashBalance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(dec("80")))
}

func TestRetroactiveDeleteRebuildsArchive(t *testing.T) {
	svc, _, ctx := newTestService(t)

	buy(t, svc, ctx, domain.ProductBroiler, 10, "1000", false)
	sell(t, svc, ctx, domain.ProductBroiler, 6, 0, "900")
	last := sell(t, svc, ctx, domain.ProductBroiler, 4, 0, "600")

	archives, err := svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.True(t, archives[0].Profit.Equal(dec("500")))

	require.NoError(t, svc.DeleteSale(ctx, last.ID))

	archives, err = svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.True(t, archives[0].TotalSale.Equal(dec("900")))
	require.True(t, archives[0].Profit.Equal(dec("-100")))
}

func TestSaleMirrorFollowsEdits(t *testing.T) {
	svc, _, ctx := newTestService(t)
	sale := sell(t, svc, ctx, domain.ProductSonali, 5, 0, "800")

	requireSaleCash := func(want string) {
		t.Helper()
		logs, err := svc.ListCashLogs(ctx)
		require.NoError(t, err)
		if want == "" {
			require.Empty(t, logs)
			return
		}
		require.Len(t, logs, 1)
		require.Equal(t, domain.CashAdd, logs[0].Type)
		require.Equal(t, domain.SourceSale, logs[0].SourceKind)
		require.Equal(t, sale.ID, logs[0].SourceID)
		require.True(t, logs[0].Amount.Equal(dec(want)))
	}
	requireSaleCash("800")

	_, err := svc.UpdateSale(ctx, sale.ID, domain.SaleRequest{ProductType: domain.ProductSonali, Pieces: 5, Total: dec("900"), Date: "2026-03-10"})
	require.NoError(t, err)
	requireSaleCash("900")

	_, err = svc.UpdateSale(ctx, sale.ID, domain.SaleRequest{ProductType: domain.ProductSonali, Mortality: 5, Total: dec("0"), Date: "2026-03-10"})
	require.NoError(t, err)
	requireSaleCash("")

	_, err = svc.UpdateSale(ctx, sale.ID, domain.SaleRequest{ProductType: domain.ProductSonali, Pieces: 5, Total: dec("700"), Date: "2026-03-10"})
	require.NoError(t, err)
	requireSaleCash("700")

	require.NoError(t, svc.DeleteSale(ctx, sale.ID))
	requireSaleCash("")
}

func TestTypeChangeSettlesBothTypes(t *testing.T) {
	svc, _, ctx := newTestService(t)

	p := buy(t, svc, ctx, domain.ProductLayer, 10, "1000", false)
	sell(t, svc, ctx, domain.ProductBroiler, 10, 0, "1500")

	archives, err := svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Empty(t, archives)

	_, err = svc.UpdatePurchase(ctx, p.ID, domain.PurchaseRequest{
		ProductType: domain.ProductBroiler,
		Pieces:      10,
		Total:       dec("1000"),
		Date:        "2026-03-10",
	})
	require.NoError(t, err)

	archives, err = svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.Equal(t, domain.ProductBroiler, archives[0].ProductType)
	require.True(t, archives[0].Profit.Equal(dec("500")))

	stock, err := svc.Stock(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stock.Stock[domain.ProductLayer].Pieces)
	require.Equal(t, 0, stock.Stock[domain.ProductBroiler].Pieces)
}

func TestConcurrentClosingSalesArchiveOnce(t *testing.T) {
	svc, repo, ctx := newTestService(t)
	buy(t, svc, ctx, domain.ProductBroiler, 10, "1000", false)

	const sellers = 6
	var wg sync.WaitGroup
	errs := make(chan error, sellers)
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(ctx, domain.SaleRequest{ProductType: domain.ProductBroiler, Pieces: 10, Total: dec("1500"), Date: "2026-03-10"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	archives, err := svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)

	markers, err := repo.ListResetMarkers(context.Background(), "user-1", domain.ProductBroiler)
	require.NoError(t, err)
	require.Len(t, markers, 1)
}

func TestRebuildLotsRestoresArchives(t *testing.T) {
	svc, repo, ctx := newTestService(t)
	buy(t, svc, ctx, domain.ProductDeshi, 10, "1000", false)
	sell(t, svc, ctx, domain.ProductDeshi, 10, 0, "1500")

	_, err := repo.DeleteLotArchivesByType(context.Background(), "user-1", domain.ProductDeshi)
	require.NoError(t, err)
	archives, err := svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Empty(t, archives)

	rebuilt, err := svc.RebuildLots(ctx, domain.ProductDeshi)
	require.NoError(t, err)
	require.Len(t, rebuilt, 1)
	require.True(t, rebuilt[0].Profit.Equal(dec("500")))

	archives, err = svc.ListLotArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)

	_, err = svc.RebuildLots(ctx, "duck")
	requireValidation(t, err, "product_type")
}

func TestAmountsBeyondStoredScaleAreRejected(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		ProductType: domain.ProductBroiler,
		Pieces:      10,
		WeightKG:    dec("12.3456"),
		Rate:        dec("80.125"),
		Total:       dec("1000.005"),
		Date:        "2026-03-10",
	})
	requireValidation(t, err, "total")
	requireValidation(t, err, "rate")
	requireValidation(t, err, "weight_kg")

	_, err = svc.CreateExpense(ctx, domain.ExpenseRequest{Category: "Feed", Amount: dec("10.001"), Date: "2026-03-10"})
	requireValidation(t, err, "amount")

	due, err := svc.CreateDue(ctx, domain.DueCreateRequest{CustomerName: "Karim", Date: "2026-03-10", OpeningDue: dec("100.50")})
	require.NoError(t, err)
	_, err = svc.AddDueLog(ctx, due.ID, domain.DueLogRequest{Type: domain.DueLogAdd, Amount: dec("0.125"), Date: "2026-03-11"})
	requireValidation(t, err, "amount")

	p, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		ProductType: domain.ProductBroiler,
		Pieces:      10,
		WeightKG:    dec("12.345"),
		Rate:        dec("80.10"),
		Total:       dec("1000.500"),
		Date:        "2026-03-10",
	})
	require.NoError(t, err)
	require.True(t, p.Total.Equal(dec("1000.5")))
}
