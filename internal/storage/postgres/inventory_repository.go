package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository создаёт PostgreSQL-реализацию InventoryRepository.
func NewInventoryRepository(store *Store) domain.InventoryRepository {
	return &inventoryRepository{db: store.DB()}
}

const inventoryColumns = `
	product_id, variant_id, quantity, low_stock_threshold, allow_backorder, tracked,
	price_minor, tags, version, created_at, updated_at`

func (r *inventoryRepository) Get(key domain.InventoryKey) (domain.InventoryRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_records
		WHERE product_id = $1 AND variant_id = $2
	`, key.ProductID, key.VariantID)

	rec, err := scanInventory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryRecord{}, domain.ErrInventoryNotFound
		}
		return domain.InventoryRecord{}, fmt.Errorf("select inventory record: %w", err)
	}
	return rec, nil
}

// Put создаёт или полностью замещает запись, сохраняя created_at и наращивая версию.
func (r *inventoryRepository) Put(rec domain.InventoryRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tags, err := json.Marshal(tagsOrEmpty(rec.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO inventory_records (`+inventoryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9,$9)
		ON CONFLICT (product_id, variant_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    low_stock_threshold = EXCLUDED.low_stock_threshold,
		    allow_backorder = EXCLUDED.allow_backorder,
		    tracked = EXCLUDED.tracked,
		    price_minor = EXCLUDED.price_minor,
		    tags = EXCLUDED.tags,
		    version = inventory_records.version + 1,
		    updated_at = EXCLUDED.updated_at
	`,
		rec.ProductID, rec.VariantID, rec.Quantity, rec.LowStockThreshold,
		rec.AllowBackorder, rec.Tracked, rec.PriceMinor, tags, now,
	)
	if err != nil {
		return fmt.Errorf("upsert inventory record: %w", err)
	}
	return nil
}

func (r *inventoryRepository) Save(rec domain.InventoryRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tags, err := json.Marshal(tagsOrEmpty(rec.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE inventory_records
		SET quantity = $1,
		    low_stock_threshold = $2,
		    allow_backorder = $3,
		    tracked = $4,
		    price_minor = $5,
		    tags = $6,
		    version = version + 1,
		    updated_at = NOW()
		WHERE product_id = $7
		  AND variant_id = $8
		  AND version = $9
	`,
		rec.Quantity, rec.LowStockThreshold, rec.AllowBackorder, rec.Tracked,
		rec.PriceMinor, tags, rec.ProductID, rec.VariantID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update inventory record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var found string
		err := r.db.QueryRowContext(ctx, `
			SELECT product_id FROM inventory_records WHERE product_id = $1 AND variant_id = $2
		`, rec.ProductID, rec.VariantID).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInventoryNotFound
		}
		if err != nil {
			return fmt.Errorf("check inventory exists: %w", err)
		}
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *inventoryRepository) List() ([]domain.InventoryRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_records
		ORDER BY product_id ASC, variant_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list inventory records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.InventoryRecord, 0)
	for rows.Next() {
		rec, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory rows: %w", err)
	}
	return records, nil
}

func scanInventory(row rowScanner) (domain.InventoryRecord, error) {
	var (
		rec  domain.InventoryRecord
		tags []byte
	)
	err := row.Scan(
		&rec.ProductID, &rec.VariantID, &rec.Quantity, &rec.LowStockThreshold,
		&rec.AllowBackorder, &rec.Tracked, &rec.PriceMinor, &tags,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &rec.Tags); err != nil {
			return domain.InventoryRecord{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return rec, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
