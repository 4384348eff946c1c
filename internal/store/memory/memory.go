package memory

import (
	"context"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/ledger"
	"poultryledger/backend/internal/store"
	"poultryledger/backend/internal/xid"
)

type state struct {
	purchases       map[string]domain.Purchase
	sales           map[string]domain.Sale
	expenses        map[string]domain.Expense
	dues            map[string]domain.DueRecord
	cashLogs        map[string]domain.CashLog
	archives        map[string]domain.LotArchive
	resets          []domain.ResetMarker
	usersByUsername map[string]domain.UserAccount
}

func newState() *state {
	return &state{
		purchases:       make(map[string]domain.Purchase),
		sales:           make(map[string]domain.Sale),
		expenses:        make(map[string]domain.Expense),
		dues:            make(map[string]domain.DueRecord),
		cashLogs:        make(map[string]domain.CashLog),
		archives:        make(map[string]domain.LotArchive),
		resets:          make([]domain.ResetMarker, 0, 16),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

func (st *state) clone() *state {
	dup := &state{
		purchases:       maps.Clone(st.purchases),
		sales:           maps.Clone(st.sales),
		expenses:        maps.Clone(st.expenses),
		dues:            make(map[string]domain.DueRecord, len(st.dues)),
		cashLogs:        make(map[string]domain.CashLog, len(st.cashLogs)),
		archives:        maps.Clone(st.archives),
		resets:          slices.Clone(st.resets),
		usersByUsername: maps.Clone(st.usersByUsername),
	}
	for id, due := range st.dues {
		dup.dues[id] = cloneDue(due)
	}
	for id, log := range st.cashLogs {
		dup.cashLogs[id] = cloneCashLog(log)
	}
	return dup
}

// Store keeps every ledger entity in process memory. A Store handed to an
// Atomically callback shares the parent's state and already holds its lock.
type Store struct {
	mu   *sync.RWMutex
	st   *state
	inTx bool
}

func New() *Store {
	return &Store{mu: &sync.RWMutex{}, st: newState()}
}

// NewSeeded returns a store with a single demo account for local runs. The
// password comes from SEED_DEMO_PASSWORD; a dev default is used otherwise.
func NewSeeded() *Store {
	s := New()
	password := os.Getenv("SEED_DEMO_PASSWORD")
	if password == "" {
		password = "demo1234"
		zap.L().Named("memory-store").Warn("using default demo credentials, set SEED_DEMO_PASSWORD to override")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		zap.L().Named("memory-store").Fatal("hash seed password", zap.Error(err))
	}
	s.st.usersByUsername["demo"] = domain.UserAccount{
		ID:        xid.New(),
		Username:  "demo",
		Password:  string(hash),
		FullName:  "Demo Shop",
		CreatedAt: time.Now().UTC(),
	}
	return s
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) Atomically(_ context.Context, fn func(store.Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	tx := &Store{mu: s.mu, st: s.st, inTx: true}
	if err := fn(tx); err != nil {
		*s.st = *snapshot
		return err
	}
	return nil
}

func stamp(createdAt time.Time) time.Time {
	if createdAt.IsZero() {
		return time.Now().UTC()
	}
	return createdAt
}

func matchesFilter(productType string, itemTime time.Time, filter store.RecordFilter) bool {
	if filter.ProductType != "" && productType != filter.ProductType {
		return false
	}
	if !filter.After.IsZero() && !itemTime.After(filter.After) {
		return false
	}
	return true
}

func newestFirst(dateA, createdA, dateB, createdB time.Time, idA, idB string) int {
	if c := dateB.Compare(dateA); c != 0 {
		return c
	}
	if c := createdB.Compare(createdA); c != 0 {
		return c
	}
	return strings.Compare(idB, idA)
}

func (s *Store) ListPurchases(_ context.Context, userID string, filter store.RecordFilter) ([]domain.Purchase, error) {
	defer s.rlock()()

	out := make([]domain.Purchase, 0, len(s.st.purchases))
	for _, p := range s.st.purchases {
		if p.UserID != userID || !matchesFilter(p.ProductType, ledger.ItemTime(p.CreatedAt, p.Date), filter) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Purchase) int {
		return newestFirst(a.Date, a.CreatedAt, b.Date, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetPurchase(_ context.Context, userID string, id string) (*domain.Purchase, error) {
	defer s.rlock()()

	p, ok := s.st.purchases[id]
	if !ok || p.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	defer s.lock()()

	if purchase.ID == "" {
		purchase.ID = xid.New()
	}
	purchase.CreatedAt = stamp(purchase.CreatedAt)
	s.st.purchases[purchase.ID] = purchase
	return &purchase, nil
}

func (s *Store) UpdatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	defer s.lock()()

	existing, ok := s.st.purchases[purchase.ID]
	if !ok || existing.UserID != purchase.UserID {
		return nil, store.ErrNotFound
	}
	purchase.CreatedAt = existing.CreatedAt
	s.st.purchases[purchase.ID] = purchase
	return &purchase, nil
}

func (s *Store) DeletePurchase(_ context.Context, userID string, id string) error {
	defer s.lock()()

	if p, ok := s.st.purchases[id]; ok && p.UserID == userID {
		delete(s.st.purchases, id)
	}
	return nil
}

func (s *Store) ListSales(_ context.Context, userID string, filter store.RecordFilter) ([]domain.Sale, error) {
	defer s.rlock()()

	out := make([]domain.Sale, 0, len(s.st.sales))
	for _, sale := range s.st.sales {
		if sale.UserID != userID || !matchesFilter(sale.ProductType, ledger.ItemTime(sale.CreatedAt, sale.Date), filter) {
			continue
		}
		out = append(out, sale)
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		return newestFirst(a.Date, a.CreatedAt, b.Date, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetSale(_ context.Context, userID string, id string) (*domain.Sale, error) {
	defer s.rlock()()

	sale, ok := s.st.sales[id]
	if !ok || sale.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	defer s.lock()()

	if sale.ID == "" {
		sale.ID = xid.New()
	}
	sale.CreatedAt = stamp(sale.CreatedAt)
	s.st.sales[sale.ID] = sale
	return &sale, nil
}

func (s *Store) UpdateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	defer s.lock()()

	existing, ok := s.st.sales[sale.ID]
	if !ok || existing.UserID != sale.UserID {
		return nil, store.ErrNotFound
	}
	sale.CreatedAt = existing.CreatedAt
	s.st.sales[sale.ID] = sale
	return &sale, nil
}

func (s *Store) DeleteSale(_ context.Context, userID string, id string) error {
	defer s.lock()()

	if sale, ok := s.st.sales[id]; ok && sale.UserID == userID {
		delete(s.st.sales, id)
	}
	return nil
}

func (s *Store) ListExpenses(_ context.Context, userID string) ([]domain.Expense, error) {
	defer s.rlock()()

	out := make([]domain.Expense, 0, len(s.st.expenses))
	for _, e := range s.st.expenses {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b domain.Expense) int {
		return newestFirst(a.Date, a.CreatedAt, b.Date, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, userID string, id string) (*domain.Expense, error) {
	defer s.rlock()()

	e, ok := s.st.expenses[id]
	if !ok || e.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	defer s.lock()()

	if expense.ID == "" {
		expense.ID = xid.New()
	}
	expense.CreatedAt = stamp(expense.CreatedAt)
	s.st.expenses[expense.ID] = expense
	return &expense, nil
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	defer s.lock()()

	existing, ok := s.st.expenses[expense.ID]
	if !ok || existing.UserID != expense.UserID {
		return nil, store.ErrNotFound
	}
	expense.CreatedAt = existing.CreatedAt
	s.st.expenses[expense.ID] = expense
	return &expense, nil
}

func (s *Store) DeleteExpense(_ context.Context, userID string, id string) error {
	defer s.lock()()

	if e, ok := s.st.expenses[id]; ok && e.UserID == userID {
		delete(s.st.expenses, id)
	}
	return nil
}

func (s *Store) ListDues(_ context.Context, userID string) ([]domain.DueRecord, error) {
	defer s.rlock()()

	out := make([]domain.DueRecord, 0, len(s.st.dues))
	for _, d := range s.st.dues {
		if d.UserID == userID {
			out = append(out, cloneDue(d))
		}
	}
	ledger.SortDues(out)
	return out, nil
}

func (s *Store) GetDue(_ context.Context, userID string, id string) (*domain.DueRecord, error) {
	defer s.rlock()()

	d, ok := s.st.dues[id]
	if !ok || d.UserID != userID {
		return nil, store.ErrNotFound
	}
	dup := cloneDue(d)
	return &dup, nil
}

func (s *Store) CreateDue(_ context.Context, due domain.DueRecord) (*domain.DueRecord, error) {
	defer s.lock()()

	if due.ID == "" {
		due.ID = xid.New()
	}
	due.CreatedAt = stamp(due.CreatedAt)
	due = cloneDue(due)
	s.st.dues[due.ID] = due
	dup := cloneDue(due)
	return &dup, nil
}

func (s *Store) UpdateDue(_ context.Context, due domain.DueRecord) (*domain.DueRecord, error) {
	defer s.lock()()

	existing, ok := s.st.dues[due.ID]
	if !ok || existing.UserID != due.UserID {
		return nil, store.ErrNotFound
	}
	due.CreatedAt = existing.CreatedAt
	due = cloneDue(due)
	s.st.dues[due.ID] = due
	dup := cloneDue(due)
	return &dup, nil
}

func (s *Store) DeleteDue(_ context.Context, userID string, id string) error {
	defer s.lock()()

	if d, ok := s.st.dues[id]; ok && d.UserID == userID {
		delete(s.st.dues, id)
	}
	return nil
}

func (s *Store) ListCashLogs(_ context.Context, userID string) ([]domain.CashLog, error) {
	defer s.rlock()()

	out := make([]domain.CashLog, 0, len(s.st.cashLogs))
	for _, l := range s.st.cashLogs {
		if l.UserID == userID {
			out = append(out, cloneCashLog(l))
		}
	}
	slices.SortFunc(out, func(a, b domain.CashLog) int {
		return newestFirst(a.Date, a.CreatedAt, b.Date, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetCashLog(_ context.Context, userID string, id string) (*domain.CashLog, error) {
	defer s.rlock()()

	l, ok := s.st.cashLogs[id]
	if !ok || l.UserID != userID {
		return nil, store.ErrNotFound
	}
	dup := cloneCashLog(l)
	return &dup, nil
}

func (s *Store) CreateCashLog(_ context.Context, log domain.CashLog) (*domain.CashLog, error) {
	defer s.lock()()

	if log.ID == "" {
		log.ID = xid.New()
	}
	log.CreatedAt = stamp(log.CreatedAt)
	log = cloneCashLog(log)
	s.st.cashLogs[log.ID] = log
	dup := cloneCashLog(log)
	return &dup, nil
}

func (s *Store) UpdateCashLog(_ context.Context, log domain.CashLog) (*domain.CashLog, error) {
	defer s.lock()()

	existing, ok := s.st.cashLogs[log.ID]
	if !ok || existing.UserID != log.UserID {
		return nil, store.ErrNotFound
	}
	log.CreatedAt = existing.CreatedAt
	log = cloneCashLog(log)
	s.st.cashLogs[log.ID] = log
	dup := cloneCashLog(log)
	return &dup, nil
}

func (s *Store) DeleteCashLog(_ context.Context, userID string, id string) error {
	defer s.lock()()

	if l, ok := s.st.cashLogs[id]; ok && l.UserID == userID {
		delete(s.st.cashLogs, id)
	}
	return nil
}

func (s *Store) FindCashLogsBySource(_ context.Context, userID string, kind string, sourceID string) ([]domain.CashLog, error) {
	defer s.rlock()()

	out := make([]domain.CashLog, 0, 1)
	for _, l := range s.st.cashLogs {
		if l.UserID != userID {
			continue
		}
		if (l.SourceKind == kind && l.SourceID == sourceID) || (l.SourceKind == "" && ledger.HasRef(l.Note, kind, sourceID)) {
			out = append(out, cloneCashLog(l))
		}
	}
	slices.SortFunc(out, func(a, b domain.CashLog) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) ListLotArchives(_ context.Context, userID string) ([]domain.LotArchive, error) {
	defer s.rlock()()

	out := make([]domain.LotArchive, 0, len(s.st.archives))
	for _, a := range s.st.archives {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.LotArchive) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ProductType, b.ProductType)
	})
	return out, nil
}

func (s *Store) CreateLotArchive(_ context.Context, archive domain.LotArchive) (*domain.LotArchive, error) {
	defer s.lock()()

	if archive.ID == "" {
		archive.ID = xid.New()
	}
	s.st.archives[archive.ID] = archive
	return &archive, nil
}

func (s *Store) DeleteLotArchivesByType(_ context.Context, userID string, productType string) (int, error) {
	defer s.lock()()

	removed := 0
	for id, a := range s.st.archives {
		if a.UserID == userID && a.ProductType == productType {
			delete(s.st.archives, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) ListResetMarkers(_ context.Context, userID string, productType string) ([]time.Time, error) {
	defer s.rlock()()

	out := make([]time.Time, 0, 8)
	for _, m := range s.st.resets {
		if m.UserID == userID && m.ProductType == productType {
			out = append(out, m.ResetAt)
		}
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out, nil
}

func (s *Store) LatestResetMarkers(_ context.Context, userID string) (map[string]time.Time, error) {
	defer s.rlock()()

	out := make(map[string]time.Time, len(domain.ProductTypes))
	for _, m := range s.st.resets {
		if m.UserID != userID {
			continue
		}
		if current, ok := out[m.ProductType]; !ok || m.ResetAt.After(current) {
			out[m.ProductType] = m.ResetAt
		}
	}
	return out, nil
}

func (s *Store) AppendResetMarker(_ context.Context, marker domain.ResetMarker) error {
	defer s.lock()()

	for _, m := range s.st.resets {
		if m.UserID == marker.UserID && m.ProductType == marker.ProductType && m.ResetAt.Equal(marker.ResetAt) {
			return store.ErrDuplicate
		}
	}
	s.st.resets = append(s.st.resets, marker)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	defer s.lock()()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if _, exists := s.st.usersByUsername[user.Username]; exists {
		return nil, store.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = xid.New()
	}
	user.CreatedAt = stamp(user.CreatedAt)
	s.st.usersByUsername[user.Username] = user
	return &user, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	defer s.rlock()()

	user, ok := s.st.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	defer s.rlock()()

	ids := make([]string, 0, len(s.st.usersByUsername))
	for _, u := range s.st.usersByUsername {
		ids = append(ids, u.ID)
	}
	slices.Sort(ids)
	return ids, nil
}

func cloneDue(src domain.DueRecord) domain.DueRecord {
	dup := src
	dup.Logs = slices.Clone(src.Logs)
	if dup.Logs == nil {
		dup.Logs = []domain.DueLog{}
	}
	return dup
}

func cloneCashLog(src domain.CashLog) domain.CashLog {
	dup := src
	dup.Denominations = maps.Clone(src.Denominations)
	return dup
}
