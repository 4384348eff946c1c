package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"poultryledger/backend/internal/domain"
	"poultryledger/backend/internal/ledger"
	"poultryledger/backend/internal/store"
	"poultryledger/backend/internal/xid"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	q  querier
	tx bool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, q: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return wrap("migrate", err)
	}
	return nil
}

func (s *Store) Atomically(ctx context.Context, fn func(store.Repository) error) error {
	if s.tx {
		return fn(s)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return wrap("begin tx", err)
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(&Store{db: s.db, q: pgTx, tx: true}); err != nil {
		return err
	}
	if err := pgTx.Commit(); err != nil {
		return wrap("commit tx", err)
	}
	return nil
}

// lockClause row-locks single reads made inside a transaction.
func (s *Store) lockClause() string {
	if s.tx {
		return " FOR UPDATE"
	}
	return ""
}

const purchaseColumns = `id, user_id, product_type, pieces, weight_kg, rate, total, date, is_credit, created_at`

func scanPurchase(row interface{ Scan(...any) error }) (domain.Purchase, error) {
	var p domain.Purchase
	err := row.Scan(&p.ID, &p.UserID, &p.ProductType, &p.Pieces, &p.WeightKG, &p.Rate, &p.Total, &p.Date, &p.IsCredit, &p.CreatedAt)
	return p, err
}

func (s *Store) ListPurchases(ctx context.Context, userID string, filter store.RecordFilter) ([]domain.Purchase, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE user_id = $1
			AND ($2 = '' OR product_type = $2)
			AND ($3::timestamptz IS NULL OR created_at > $3)
		ORDER BY date DESC, created_at DESC, id DESC
	`, userID, filter.ProductType, nullTime(filter.After))
	if err != nil {
		return nil, wrap("list purchases", err)
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 64)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, wrap("scan purchase", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list purchases", err)
	}
	return purchases, nil
}

func (s *Store) GetPurchase(ctx context.Context, userID string, id string) (*domain.Purchase, error) {
	p, err := scanPurchase(s.q.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE user_id = $1 AND id = $2`+s.lockClause(), userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrap("get purchase", err)
	}
	return &p, nil
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.ID == "" {
		purchase.ID = xid.New()
	}
	purchase.CreatedAt = stamp(purchase.CreatedAt)

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO purchases (`+purchaseColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, purchase.ID, purchase.UserID, purchase.ProductType, purchase.Pieces, purchase.WeightKG, purchase.Rate,
		purchase.Total, purchase.Date, purchase.IsCredit, purchase.CreatedAt)
	if err != nil {
		return nil, wrap("create purchase", err)
	}
	return &purchase, nil
}

func (s *Store) UpdatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	err := s.q.QueryRowContext(ctx, `
		UPDATE purchases
		SET product_type = $3, pieces = $4, weight_kg = $5, rate = $6, total = $7, date = $8, is_credit = $9
		WHERE user_id = $1 AND id = $2
		RETURNING created_at
	`, purchase.UserID, purchase.ID, purchase.ProductType, purchase.Pieces, purchase.WeightKG, purchase.Rate,
		purchase.Total, purchase.Date, purchase.IsCredit).Scan(&purchase.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrap("update purchase", err)
	}
	return &purchase, nil
}

func (s *Store) DeletePurchase(ctx context.Context, userID string, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM purchases WHERE user_id = $1 AND id = $2`, userID, id)
	return wrap("delete purchase", err)
}

const saleColumns = `id, user_id, product_type, pieces, weight_kg, rate, mortality, total, date, created_at`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.UserID, &sale.ProductType, &sale.Pieces, &sale.WeightKG, &sale.Rate, &sale.Mortality, &sale.Total, &sale.Date, &sale.CreatedAt)
	return sale, err
}

func (s *Store) ListSales(ctx context.Context, userID string, filter store.RecordFilter) ([]domain.Sale, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE user_id = $1
			AND ($2 = '' OR product_type = $2)
			AND ($3::timestamptz IS NULL OR created_at > $3)
		ORDER BY date DESC, created_at DESC, id DESC
	`, userID, filter.ProductType, nullTime(filter.After))
	if err != nil {
		return nil, wrap("list sales", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, wrap("scan sale", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list sales", err)
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, userID string, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.q.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE user_id = $1 AND id = $2`+s.lockClause(), userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrap("get sale", err)
	}
	return &sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New()
	}
	sale.CreatedAt = stamp(sale.CreatedAt)

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sale.ID, sale.UserID, sale.ProductType, sale.Pieces, sale.WeightKG, sale.Rate, sale.Mortality,
		sale.Total, sale.Date, sale.CreatedAt)
	if err != nil {
		return nil, wrap("create sale", err)
	}
	return &sale, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	err := s.q.QueryRowContext(ctx, `
		UPDATE sales
		SET product_type = $3, pieces = $4, weight_kg = $5, rate = $6, mortality = $7, total = $8, date = $9
		WHERE user_id = $1 AND id = $2
		RETURNING created_at
	`, sale.UserID, sale.ID, sale.ProductType, sale.Pieces, sale.WeightKG, sale.Rate, sale.Mortality,
		sale.Total, sale.Date).Scan(&sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrap("update sale", err)
	}
	return &sale, nil
}

func (s *Store) DeleteSale(ctx context.Context, userID string, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM sales WHERE user_id = $1 AND id = $2`, userID, id)
	return wrap("delete sale", err)
}

const expenseColumns = `id, user_id, category, amount, note, date, created_at`

func scanExpense(row interface{ Scan(...any) error }) (domain.Expense, error) {
	var e domain.Expense
	err := row.Scan(&e.ID, &e.UserID, &e.Category, &e.Amount, &e.Note, &e.Date, &e.CreatedAt)
	return e, err
}

func (s *Store) ListExpenses(ctx context.Context, userID string) ([]domain.Expense, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE user_id = $1
		ORDER BY date DESC, created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, wrap("list expenses", err)
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 64)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, wrap("scan expense", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list expenses", err)
	}
	return expenses, nil
}

func (s *Store) GetExpense(ctx context.Context, userID string, id string) (*domain.Expense, error) {
	e, err := scanExpense(s.q.QueryRowContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE user_id = $1 AND id = $2`+s.lockClause(), userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrap("get expense", err)
	}
	return &e, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New()
	}
	expense.CreatedAt = stamp(expense.CreatedAt)

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, expense.ID, expense.UserID, expense.Category, expense.Amount, expense.Note, expense.Date, expense.CreatedAt)
	if err != nil {
		return nil, wrap("create expense", err)
	}
	return &expense, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	err := s.q.QueryRowContext(ctx, `
		UPDATE expenses
		SET category = $3, amount = $4, note = $5, date = $6
		WHERE user_id = $1 AND id = $2
		RETURNING created_at
	`, expense.UserID, expense.ID, expense.Category, expense.Amount, expense.Note, expense.Date).Scan(&expense.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrap("update expense", err)
	}
	return &expense, nil
}

func (s *Store) DeleteExpense(ctx context.Context, userID string, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = $1 AND id = $2`, userID, id)
	return wrap("delete expense", err)
}

const dueColumns = `id, user_id, customer_name, mobile, amount, paid, date, image, logs, created_at`

func scanDue(row interface{ Scan(...any) error }) (domain.DueRecord, error) {
	var d domain.DueRecord
	var logs []byte
	if err := row.Scan(&d.ID, &d.UserID, &d.CustomerName, &d.Mobile, &d.Amount, &d.Paid, &d.Date, &d.Image, &logs, &d.CreatedAt); err != nil {
		return d, err
	}
	d.Logs = []domain.DueLog{}
	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &d.Logs); err != nil {
			return d, err
		}
	}
	return d, nil
}

func (s *Store) ListDues(ctx context.Context, userID string) ([]domain.DueRecord, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+dueColumns+`
		FROM dues
		WHERE user_id = $1
		ORDER BY date DESC, id DESC
	`, userID)
	if err != nil {
		return nil, wrap("list dues", err)
	}
	defer rows.Close()

	dues := make([]domain.DueRecord, 0, 32)
	for rows.Next() {
		d, err := scanDue(rows)
		if err != nil {
			return nil, wrap("scan due", err)
		}
		dues = append(dues, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list dues", err)
	}
	return dues, nil
}

func (s *Store) GetDue(ctx context.Context, userID string, id string) (*domain.DueRecord, error) {
	d, err := scanDue(s.q.QueryRowContext(ctx, `
		SELECT `+dueColumns+`
		FROM dues
		WHERE user_id = $1 AND id = $2`+s.lockClause(), userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrap("get due", err)
	}
	return &d, nil
}

func (s *Store) CreateDue(ctx context.Context, due domain.DueRecord) (*domain.DueRecord, error) {
	if due.ID == "" {
		due.ID = xid.New()
	}
	due.CreatedAt = stamp(due.CreatedAt)
	if due.Logs == nil {
		due.Logs = []domain.DueLog{}
	}
	logs, err := json.Marshal(due.Logs)
	if err != nil {
		return nil, wrap("encode due logs", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO dues (`+dueColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, due.ID, due.UserID, due.CustomerName, due.Mobile, due.Amount, due.Paid, due.Date, due.Image, logs, due.CreatedAt)
	if err != nil {
		return nil, wrap("create due", err)
	}
	return &due, nil
}

func (s *Store) UpdateDue(ctx context.Context, due domain.DueRecord) (*domain.DueRecord, error) {
	if due.Logs == nil {
		due.Logs = []domain.DueLog{}
	}
	logs, err := json.Marshal(due.Logs)
	if err != nil {
		return nil, wrap("encode due logs", err)
	}

	err = s.q.QueryRowContext(ctx, `
		UPDATE dues
		SET customer_name = $3, mobile = $4, amount = $5, paid = $6, date = $7, image = $8, logs = $9
		WHERE user_id = $1 AND id = $2
		RETURNING created_at
	`, due.UserID, due.ID, due.CustomerName, due.Mobile, due.Amount, due.Paid, due.Date, due.Image, logs).Scan(&due.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrap("update due", err)
	}
	return &due, nil
}

func (s *Store) DeleteDue(ctx context.Context, userID string, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM dues WHERE user_id = $1 AND id = $2`, userID, id)
	return wrap("delete due", err)
}

const cashLogColumns = `id, user_id, type, amount, date, note, denominations, source_kind, source_id, created_at`

func scanCashLog(row interface{ Scan(...any) error }) (domain.CashLog, error) {
	var l domain.CashLog
	var denominations []byte
	if err := row.Scan(&l.ID, &l.UserID, &l.Type, &l.Amount, &l.Date, &l.Note, &denominations, &l.SourceKind, &l.SourceID, &l.CreatedAt); err != nil {
		return l, err
	}
	if len(denominations) > 0 {
		if err := json.Unmarshal(denominations, &l.Denominations); err != nil {
			return l, err
		}
	}
	return l, nil
}

func encodeDenominations(denominations map[string]string) (any, error) {
	if len(denominations) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(denominations)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Store) queryCashLogs(ctx context.Context, op string, query string, args ...any) ([]domain.CashLog, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	logs := make([]domain.CashLog, 0, 64)
	for rows.Next() {
		l, err := scanCashLog(rows)
		if err != nil {
			return nil, wrap("scan cash log", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return logs, nil
}

func (s *Store) ListCashLogs(ctx context.Context, userID string) ([]domain.CashLog, error) {
	return s.queryCashLogs(ctx, "list cash logs", `
		SELECT `+cashLogColumns+`
		FROM cash_logs
		WHERE user_id = $1
		ORDER BY date DESC, created_at DESC, id DESC
	`, userID)
}

func (s *Store) GetCashLog(ctx context.Context, userID string, id string) (*domain.CashLog, error) {
	l, err := scanCashLog(s.q.QueryRowContext(ctx, `
		SELECT `+cashLogColumns+`
		FROM cash_logs
		WHERE user_id = $1 AND id = $2`+s.lockClause(), userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrap("get cash log", err)
	}
	return &l, nil
}

func (s *Store) CreateCashLog(ctx context.Context, log domain.CashLog) (*domain.CashLog, error) {
	if log.ID == "" {
		log.ID = xid.New()
	}
	log.CreatedAt = stamp(log.CreatedAt)
	denominations, err := encodeDenominations(log.Denominations)
	if err != nil {
		return nil, wrap("encode denominations", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO cash_logs (`+cashLogColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, log.ID, log.UserID, log.Type, log.Amount, log.Date, log.Note, denominations, log.SourceKind, log.SourceID, log.CreatedAt)
	if err != nil {
		return nil, wrap("create cash log", err)
	}
	return &log, nil
}

func (s *Store) UpdateCashLog(ctx context.Context, log domain.CashLog) (*domain.CashLog, error) {
	denominations, err := encodeDenominations(log.Denominations)
	if err != nil {
		return nil, wrap("encode denominations", err)
	}

	err = s.q.QueryRowContext(ctx, `
		UPDATE cash_logs
		SET type = $3, amount = $4, date = $5, note = $6, denominations = $7, source_kind = $8, source_id = $9
		WHERE user_id = $1 AND id = $2
		RETURNING created_at
	`, log.UserID, log.ID, log.Type, log.Amount, log.Date, log.Note, denominations, log.SourceKind, log.SourceID).Scan(&log.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrap("update cash log", err)
	}
	return &log, nil
}

func (s *Store) DeleteCashLog(ctx context.Context, userID string, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM cash_logs WHERE user_id = $1 AND id = $2`, userID, id)
	return wrap("delete cash log", err)
}

func (s *Store) FindCashLogsBySource(ctx context.Context, userID string, kind string, sourceID string) ([]domain.CashLog, error) {
	return s.queryCashLogs(ctx, "find cash logs by source", `
		SELECT `+cashLogColumns+`
		FROM cash_logs
		WHERE user_id = $1
			AND ((source_kind = $2 AND source_id = $3) OR (source_kind = '' AND strpos(note, $4) > 0))
		ORDER BY created_at, id
	`, userID, kind, sourceID, ledger.RefToken(kind, sourceID))
}

func (s *Store) ListLotArchives(ctx context.Context, userID string) ([]domain.LotArchive, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, product_type, total_purchase, total_sale, profit, date
		FROM lot_archives
		WHERE user_id = $1
		ORDER BY date DESC, product_type
	`, userID)
	if err != nil {
		return nil, wrap("list lot archives", err)
	}
	defer rows.Close()

	archives := make([]domain.LotArchive, 0, 32)
	for rows.Next() {
		var a domain.LotArchive
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProductType, &a.TotalPurchase, &a.TotalSale, &a.Profit, &a.Date); err != nil {
			return nil, wrap("scan lot archive", err)
		}
		archives = append(archives, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list lot archives", err)
	}
	return archives, nil
}

func (s *Store) CreateLotArchive(ctx context.Context, archive domain.LotArchive) (*domain.LotArchive, error) {
	if archive.ID == "" {
		archive.ID = xid.New()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO lot_archives (id, user_id, product_type, total_purchase, total_sale, profit, date)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, archive.ID, archive.UserID, archive.ProductType, archive.TotalPurchase, archive.TotalSale, archive.Profit, archive.Date)
	if err != nil {
		return nil, wrap("create lot archive", err)
	}
	return &archive, nil
}

func (s *Store) DeleteLotArchivesByType(ctx context.Context, userID string, productType string) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM lot_archives WHERE user_id = $1 AND product_type = $2`, userID, productType)
	if err != nil {
		return 0, wrap("delete lot archives", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("delete lot archives", err)
	}
	return int(affected), nil
}

func (s *Store) ListResetMarkers(ctx context.Context, userID string, productType string) ([]time.Time, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT reset_at
		FROM lot_resets
		WHERE user_id = $1 AND product_type = $2
		ORDER BY reset_at
	`, userID, productType)
	if err != nil {
		return nil, wrap("list reset markers", err)
	}
	defer rows.Close()

	markers := make([]time.Time, 0, 8)
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return nil, wrap("scan reset marker", err)
		}
		markers = append(markers, at.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list reset markers", err)
	}
	return markers, nil
}

func (s *Store) LatestResetMarkers(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT product_type, max(reset_at)
		FROM lot_resets
		WHERE user_id = $1
		GROUP BY product_type
	`, userID)
	if err != nil {
		return nil, wrap("latest reset markers", err)
	}
	defer rows.Close()

	markers := make(map[string]time.Time, len(domain.ProductTypes))
	for rows.Next() {
		var productType string
		var at time.Time
		if err := rows.Scan(&productType, &at); err != nil {
			return nil, wrap("scan reset marker", err)
		}
		markers[productType] = at.UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("latest reset markers", err)
	}
	return markers, nil
}

func (s *Store) AppendResetMarker(ctx context.Context, marker domain.ResetMarker) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO lot_resets (user_id, product_type, reset_at)
		VALUES ($1,$2,$3)
	`, marker.UserID, marker.ProductType, marker.ResetAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return wrap("append reset marker", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.ID == "" {
		user.ID = xid.New()
	}
	user.CreatedAt = stamp(user.CreatedAt)

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, username, password, full_name, created_at)
		VALUES ($1, lower(trim($2)), $3, $4, $5)
	`, user.ID, user.Username, user.Password, user.FullName, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, wrap("create user", err)
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.q.QueryRowContext(ctx, `
		SELECT id, username, password, full_name, created_at
		FROM users
		WHERE username = lower(trim($1))
	`, username).Scan(&user.ID, &user.Username, &user.Password, &user.FullName, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrap("get user", err)
	}
	return &user, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, wrap("list users", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrap("scan user", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list users", err)
	}
	return ids, nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &store.PersistenceError{Op: op, Err: err}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func stamp(createdAt time.Time) time.Time {
	if createdAt.IsZero() {
		return time.Now().UTC()
	}
	return createdAt
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
