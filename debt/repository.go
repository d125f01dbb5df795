package debt

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rachaio/racha/money"
)

// Store persists debt records so the in-memory ledger can be rebuilt at
// startup. The ledger stays the computation authority; the store only
// mirrors its mutations.
type Store interface {
	Insert(ctx context.Context, d Debt) error
	MarkSettled(ctx context.Context, id uuid.UUID, settledAt time.Time) error
	LoadAll(ctx context.Context) ([]Debt, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, d Debt) error {
	query := `INSERT INTO debts (id, creditor, debtor, amount, scale, created_at, settled) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		d.ID,
		d.Creditor,
		d.Debtor,
		d.Amount.Amount(),
		int16(d.Amount.Scale()),
		d.CreatedAt,
		d.Settled,
	)
	if err != nil {
		return fmt.Errorf("inserting debt: %w", err)
	}
	return nil
}

func (r *repository) MarkSettled(ctx context.Context, id uuid.UUID, settledAt time.Time) error {
	query := `UPDATE debts SET settled = TRUE, settled_at = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, settledAt, id)
	if err != nil {
		return fmt.Errorf("settling debt: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *repository) LoadAll(ctx context.Context) ([]Debt, error) {
	query := `SELECT id, creditor, debtor, amount, scale, created_at, settled, settled_at FROM debts ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying debts: %w", err)
	}
	defer rows.Close()

	var debts []Debt
	for rows.Next() {
		var (
			d         Debt
			amount    int64
			scale     int16
			settledAt sql.NullTime
		)
		err := rows.Scan(&d.ID, &d.Creditor, &d.Debtor, &amount, &scale, &d.CreatedAt, &d.Settled, &settledAt)
		if err != nil {
			return nil, err
		}
		d.Amount = money.New(amount, uint8(scale))
		if settledAt.Valid {
			d.SettledAt = settledAt.Time
		}
		debts = append(debts, d)
	}

	return debts, rows.Err()
}
