package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/tradedesk/internal/account"
	"github.com/wonny/tradedesk/internal/order"
)

const schema = `
	CREATE SCHEMA IF NOT EXISTS journal;

	CREATE TABLE IF NOT EXISTS journal.order_events (
		id          BIGSERIAL PRIMARY KEY,
		order_id    TEXT        NOT NULL,
		event_type  TEXT        NOT NULL,
		symbol      TEXT        NOT NULL,
		side        TEXT        NOT NULL,
		status      TEXT        NOT NULL,
		quantity    NUMERIC     NOT NULL,
		price       NUMERIC     NOT NULL,
		filled_qty  NUMERIC     NOT NULL,
		fill_qty    NUMERIC,
		fill_price  NUMERIC,
		reason      TEXT,
		occurred_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS order_events_order_id_idx ON journal.order_events (order_id);

	CREATE TABLE IF NOT EXISTS journal.transactions (
		id            TEXT PRIMARY KEY,
		account_id    TEXT        NOT NULL,
		tx_type       TEXT        NOT NULL,
		amount        NUMERIC     NOT NULL,
		balance_after NUMERIC     NOT NULL,
		description   TEXT        NOT NULL,
		occurred_at   TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS transactions_account_idx ON journal.transactions (account_id, occurred_at);
`

// OrderEventRecord is a stored order event
type OrderEventRecord struct {
	OrderID    string          `json:"order_id"`
	EventType  order.EventType `json:"event_type"`
	Symbol     string          `json:"symbol"`
	Side       order.Side      `json:"side"`
	Status     order.Status    `json:"status"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	FilledQty  decimal.Decimal `json:"filled_qty"`
	FillQty    decimal.Decimal `json:"fill_qty"`
	FillPrice  decimal.Decimal `json:"fill_price"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Repository persists order events and ledger entries
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new journal repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the journal tables if they do not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// SaveOrderEvent appends an order event
func (r *Repository) SaveOrderEvent(ctx context.Context, e order.Event) error {
	query := `
		INSERT INTO journal.order_events (
			order_id, event_type, symbol, side, status, quantity, price,
			filled_qty, fill_qty, fill_price, reason, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	var fillQty, fillPrice *string
	if e.IsFill() {
		q, p := e.FillQty.String(), e.FillPrice.String()
		fillQty, fillPrice = &q, &p
	}

	_, err := r.pool.Exec(ctx, query,
		e.OrderID, string(e.Type), e.Order.Symbol, string(e.Order.Side), string(e.Order.Status),
		e.Order.Quantity.String(), e.Order.Price.String(), e.Order.FilledQuantity.String(),
		fillQty, fillPrice, e.Reason, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save order event: %w", err)
	}
	return nil
}

// SaveTransaction appends a ledger entry. Saving the same entry twice is a no-op.
func (r *Repository) SaveTransaction(ctx context.Context, tx account.Transaction) error {
	query := `
		INSERT INTO journal.transactions (
			id, account_id, tx_type, amount, balance_after, description, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		tx.ID, tx.AccountID, string(tx.Type), tx.Amount.String(), tx.BalanceAfter.String(),
		tx.Description, tx.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// OrderHistory returns the stored events of one order, oldest first
func (r *Repository) OrderHistory(ctx context.Context, orderID string) ([]OrderEventRecord, error) {
	query := `
		SELECT order_id, event_type, symbol, side, status, quantity::text, price::text,
		       filled_qty::text, COALESCE(fill_qty, 0)::text, COALESCE(fill_price, 0)::text,
		       COALESCE(reason, ''), occurred_at
		FROM journal.order_events
		WHERE order_id = $1
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order history: %w", err)
	}
	defer rows.Close()

	records := make([]OrderEventRecord, 0)
	for rows.Next() {
		var rec OrderEventRecord
		var eventType, side, status string
		var qty, price, filled, fillQty, fillPrice string
		if err := rows.Scan(&rec.OrderID, &eventType, &rec.Symbol, &side, &status,
			&qty, &price, &filled, &fillQty, &fillPrice, &rec.Reason, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan order event: %w", err)
		}
		rec.EventType = order.EventType(eventType)
		rec.Side = order.Side(side)
		rec.Status = order.Status(status)

		if err := parseDecimals(
			decimalField{qty, &rec.Quantity},
			decimalField{price, &rec.Price},
			decimalField{filled, &rec.FilledQty},
			decimalField{fillQty, &rec.FillQty},
			decimalField{fillPrice, &rec.FillPrice},
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Transactions returns the latest limit ledger entries of an account, oldest first
func (r *Repository) Transactions(ctx context.Context, accountID string, limit int) ([]account.Transaction, error) {
	query := `
		SELECT id, account_id, tx_type, amount::text, balance_after::text, description, occurred_at
		FROM (
			SELECT * FROM journal.transactions
			WHERE account_id = $1
			ORDER BY occurred_at DESC
			LIMIT $2
		) recent
		ORDER BY occurred_at ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]account.Transaction, 0)
	for rows.Next() {
		var tx account.Transaction
		var txType, amount, balance string
		if err := rows.Scan(&tx.ID, &tx.AccountID, &txType, &amount, &balance, &tx.Description, &tx.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Type = account.TransactionType(txType)
		if err := parseDecimals(decimalField{amount, &tx.Amount}, decimalField{balance, &tx.BalanceAfter}); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

type decimalField struct {
	raw string
	dst *decimal.Decimal
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("invalid numeric %q: %w", f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
