package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type bulkRepository struct {
	db *sql.DB
}

// NewBulkRepository создаёт PostgreSQL-реализацию BulkRepository.
func NewBulkRepository(store *Store) domain.BulkRepository {
	return &bulkRepository{db: store.DB()}
}

const bulkColumns = `
	id, type, target_ids, changes, status, progress, processed_items, total_items,
	errors, cancelled, version, created_at, updated_at, started_at, finished_at`

func (r *bulkRepository) Create(op domain.BulkOperation) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	targets, changes, opErrors, err := marshalBulkFields(op)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO bulk_operations (`+bulkColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		op.ID, string(op.Type), targets, changes, string(op.Status),
		op.Progress, op.ProcessedItems, op.TotalItems, opErrors, op.Cancelled,
		op.Version, op.CreatedAt, op.UpdatedAt, op.StartedAt, op.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bulk operation: %w", err)
	}
	return nil
}

func (r *bulkRepository) Get(id string) (domain.BulkOperation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+bulkColumns+` FROM bulk_operations WHERE id = $1
	`, id)
	op, err := scanBulk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BulkOperation{}, domain.ErrOperationNotFound
		}
		return domain.BulkOperation{}, fmt.Errorf("select bulk operation: %w", err)
	}
	return op, nil
}

// Save перезаписывает операцию с CAS по версии; завершённые операции неизменяемы.
func (r *bulkRepository) Save(op domain.BulkOperation) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, changes, opErrors, err := marshalBulkFields(op)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE bulk_operations
		SET changes = $1,
		    status = $2,
		    progress = $3,
		    processed_items = $4,
		    errors = $5,
		    cancelled = $6,
		    version = version + 1,
		    updated_at = $7,
		    started_at = $8,
		    finished_at = $9
		WHERE id = $10
		  AND version = $11
		  AND status NOT IN ('completed', 'failed')
	`,
		changes, string(op.Status), op.Progress, op.ProcessedItems,
		opErrors, op.Cancelled, op.UpdatedAt, op.StartedAt, op.FinishedAt,
		op.ID, op.Version,
	)
	if err != nil {
		return fmt.Errorf("update bulk operation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var found string
		err := r.db.QueryRowContext(ctx, `SELECT id FROM bulk_operations WHERE id = $1`, op.ID).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOperationNotFound
		}
		if err != nil {
			return fmt.Errorf("check bulk operation exists: %w", err)
		}
		return domain.ErrVersionConflict
	}
	return nil
}

func marshalBulkFields(op domain.BulkOperation) ([]byte, []byte, []byte, error) {
	targets, err := json.Marshal(op.TargetIDs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal target ids: %w", err)
	}
	changes, err := json.Marshal(op.Changes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal changes: %w", err)
	}
	if op.Errors == nil {
		op.Errors = []domain.BulkError{}
	}
	opErrors, err := json.Marshal(op.Errors)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal errors: %w", err)
	}
	return targets, changes, opErrors, nil
}

func scanBulk(row rowScanner) (domain.BulkOperation, error) {
	var (
		op       domain.BulkOperation
		opType   string
		status   string
		targets  []byte
		changes  []byte
		opErrors []byte
	)
	err := row.Scan(
		&op.ID, &opType, &targets, &changes, &status,
		&op.Progress, &op.ProcessedItems, &op.TotalItems, &opErrors, &op.Cancelled,
		&op.Version, &op.CreatedAt, &op.UpdatedAt, &op.StartedAt, &op.FinishedAt,
	)
	if err != nil {
		return domain.BulkOperation{}, err
	}
	op.Type = domain.BulkOperationType(opType)
	op.Status = domain.BulkStatus(status)
	if err := json.Unmarshal(targets, &op.TargetIDs); err != nil {
		return domain.BulkOperation{}, fmt.Errorf("unmarshal target ids: %w", err)
	}
	if err := json.Unmarshal(changes, &op.Changes); err != nil {
		return domain.BulkOperation{}, fmt.Errorf("unmarshal changes: %w", err)
	}
	if err := json.Unmarshal(opErrors, &op.Errors); err != nil {
		return domain.BulkOperation{}, fmt.Errorf("unmarshal errors: %w", err)
	}
	return op, nil
}

var _ domain.BulkRepository = (*bulkRepository)(nil)
