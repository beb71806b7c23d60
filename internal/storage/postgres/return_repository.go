package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type returnRepository struct {
	db *sql.DB
}

// NewReturnRepository создаёт PostgreSQL-реализацию ReturnRepository.
func NewReturnRepository(store *Store) domain.ReturnRepository {
	return &returnRepository{db: store.DB()}
}

const returnColumns = `
	id, order_id, type, status, reason, lines,
	requested_amount_minor, approved_amount_minor,
	created_at, updated_at, processed_at`

func (r *returnRepository) Create(req domain.ReturnRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	lines, err := json.Marshal(req.Lines)
	if err != nil {
		return fmt.Errorf("marshal return lines: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO return_requests (`+returnColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		req.ID, req.OrderID, string(req.Type), string(req.Status), req.Reason, lines,
		req.RequestedAmountMinor, req.ApprovedAmountMinor,
		req.CreatedAt, req.UpdatedAt, req.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert return request: %w", err)
	}
	return nil
}

func (r *returnRepository) Get(id string) (domain.ReturnRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+returnColumns+` FROM return_requests WHERE id = $1
	`, id)
	req, err := scanReturn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReturnRequest{}, domain.ErrReturnNotFound
		}
		return domain.ReturnRequest{}, fmt.Errorf("select return request: %w", err)
	}
	return req, nil
}

func (r *returnRepository) ListByOrder(orderID string) ([]domain.ReturnRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+returnColumns+`
		FROM return_requests
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list return requests: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ReturnRequest, 0)
	for rows.Next() {
		req, err := scanReturn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return row: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate return rows: %w", err)
	}
	return out, nil
}

func (r *returnRepository) Save(req domain.ReturnRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	lines, err := json.Marshal(req.Lines)
	if err != nil {
		return fmt.Errorf("marshal return lines: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE return_requests
		SET status = $1,
		    reason = $2,
		    lines = $3,
		    requested_amount_minor = $4,
		    approved_amount_minor = $5,
		    updated_at = $6,
		    processed_at = $7
		WHERE id = $8
	`,
		string(req.Status), req.Reason, lines,
		req.RequestedAmountMinor, req.ApprovedAmountMinor,
		req.UpdatedAt, req.ProcessedAt, req.ID,
	)
	if err != nil {
		return fmt.Errorf("update return request: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrReturnNotFound
	}
	return nil
}

func scanReturn(row rowScanner) (domain.ReturnRequest, error) {
	var (
		req     domain.ReturnRequest
		retType string
		status  string
		lines   []byte
	)
	err := row.Scan(
		&req.ID, &req.OrderID, &retType, &status, &req.Reason, &lines,
		&req.RequestedAmountMinor, &req.ApprovedAmountMinor,
		&req.CreatedAt, &req.UpdatedAt, &req.ProcessedAt,
	)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	req.Type = domain.ReturnType(retType)
	req.Status = domain.ReturnStatus(status)
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &req.Lines); err != nil {
			return domain.ReturnRequest{}, fmt.Errorf("unmarshal return lines: %w", err)
		}
	}
	return req, nil
}

var _ domain.ReturnRepository = (*returnRepository)(nil)
