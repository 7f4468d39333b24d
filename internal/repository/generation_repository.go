package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fansignhq/fansign-backend/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Log(ctx context.Context, gen *models.Generation) error {
	const query = `
INSERT INTO generations (user_id, style, text_content, image_url, credits_used)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)`
	if _, err := r.db.ExecContext(ctx, query, gen.UserID, gen.Style, gen.TextContent, gen.ImageURL, gen.CreditsUsed); err != nil {
		return fmt.Errorf("insert generation log: %w", err)
	}
	return nil
}

func (r *GenerationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Generation, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, user_id, style, COALESCE(text_content, ''), COALESCE(image_url, ''), credits_used, created_at
FROM generations
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var gens []models.Generation
	for rows.Next() {
		var g models.Generation
		if err := rows.Scan(&g.ID, &g.UserID, &g.Style, &g.TextContent, &g.ImageURL, &g.CreditsUsed, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		gens = append(gens, g)
	}
	return gens, rows.Err()
}
