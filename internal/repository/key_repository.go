package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fansignhq/fansign-backend/internal/models"
)

type KeyRepository struct {
	db *sql.DB
}

func NewKeyRepository(db *sql.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

func (r *KeyRepository) DB() *sql.DB {
	return r.db
}

const keyColumns = `id, key_value, key_type, credits, used_by, used_at, created_at`

func (r *KeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	const query = `
INSERT INTO api_keys (key_value, key_type, credits)
VALUES ($1, $2, $3)
RETURNING id, created_at`
	row := r.db.QueryRowContext(ctx, query, key.KeyValue, key.KeyType, key.Credits)
	if err := row.Scan(&key.ID, &key.CreatedAt); err != nil {
		return fmt.Errorf("insert key: %w", err)
	}
	return nil
}

func (r *KeyRepository) List(ctx context.Context) ([]models.APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.KeyValue, &k.KeyType, &k.Credits, &k.UsedBy, &k.UsedAt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan key list: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
