package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite keeps records in a local database; staff mark orders paid through
// the admin API instead of a hosted table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return NewSQLite(db)
}

// NewSQLite wraps db and creates the orders table if needed.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to init sqlite orders: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS orders (
		number INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id TEXT NOT NULL UNIQUE,
		customer_info TEXT NOT NULL,
		order_details TEXT NOT NULL,
		total_price INTEGER NOT NULL DEFAULT 0,
		delivery_address TEXT NOT NULL DEFAULT '',
		is_paid INTEGER NOT NULL DEFAULT 0,
		kitchen_status TEXT NOT NULL DEFAULT 'Waiting',
		payment_receipt TEXT NOT NULL DEFAULT '',
		receipt_reference TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return err
	}
	_, err := s.db.ExecContext(context.Background(), `CREATE INDEX IF NOT EXISTS orders_paid_status ON orders (is_paid, kitchen_status)`)
	return err
}

// Close releases the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

var sqliteColumns = map[string]string{
	FieldIsPaid:           "is_paid",
	FieldKitchenStatus:    "kitchen_status",
	FieldPaymentReceipt:   "payment_receipt",
	FieldReceiptReference: "receipt_reference",
}

// Create inserts rec under a new "rec"-prefixed id.
func (s *SQLite) Create(ctx context.Context, rec Record) (string, error) {
	id := "rec" + strings.ReplaceAll(uuid.NewString(), "-", "")
	now := time.Now().UTC().Format(time.RFC3339Nano)
	status := rec.KitchenStatus
	if status == "" {
		status = KitchenWaiting
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO orders (
		record_id, customer_info, order_details, total_price, delivery_address, is_paid, kitchen_status, payment_receipt, receipt_reference, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.CustomerInfo, rec.OrderDetails, rec.TotalPrice, rec.DeliveryAddress, boolInt(rec.Paid), status, rec.ReceiptURL, rec.ReceiptReference, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert order: %w", err)
	}
	return id, nil
}

// UpdateStatus sets one whitelisted field.
func (s *SQLite) UpdateStatus(ctx context.Context, id, field string, value any) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyRecordID
	}
	normalized, err := normalizeStatus(field, value)
	if err != nil {
		return err
	}
	if b, ok := normalized.(bool); ok {
		normalized = boolInt(b)
	}
	query := fmt.Sprintf(`UPDATE orders SET %s = ?, updated_at = ? WHERE record_id = ?`, sqliteColumns[field])
	res, err := s.db.ExecContext(ctx, query, normalized, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const sqliteSelect = `SELECT number, record_id, customer_info, order_details, total_price, delivery_address, is_paid, kitchen_status, payment_receipt, receipt_reference FROM orders`

// Query lists records matching f in creation order.
func (s *SQLite) Query(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Paid != nil {
		where = append(where, "is_paid = ?")
		args = append(args, boolInt(*f.Paid))
	}
	if f.KitchenStatus != "" {
		where = append(where, "kitchen_status = ?")
		args = append(args, f.KitchenStatus)
	}
	query := sqliteSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY number"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get fetches one record.
func (s *SQLite) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+" WHERE record_id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec    Record
		number int64
		paid   int
	)
	if err := row.Scan(&number, &rec.ID, &rec.CustomerInfo, &rec.OrderDetails, &rec.TotalPrice, &rec.DeliveryAddress, &paid, &rec.KitchenStatus, &rec.ReceiptURL, &rec.ReceiptReference); err != nil {
		return Record{}, err
	}
	rec.Number = strconv.FormatInt(number, 10)
	rec.Paid = paid != 0
	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
