package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fansignhq/fansign-backend/internal/models"
	"github.com/fansignhq/fansign-backend/internal/repository"
)

// GenerationService charges the per-style cost and records the generation.
type GenerationService struct {
	log         *slog.Logger
	credits     *CreditService
	generations *repository.GenerationRepository
}

func NewGenerationService(log *slog.Logger, credits *CreditService, generations *repository.GenerationRepository) *GenerationService {
	return &GenerationService{
		log:         log,
		credits:     credits,
		generations: generations,
	}
}

type GenerateRequest struct {
	UserID      string
	Style       string
	TextContent string
	ImageURL    string
}

type GenerateResult struct {
	CreditsUsed      int
	RemainingCredits int
}

// Generate deducts the style's credit cost and logs the generation. The
// deduction is atomic; a failure to record the generation row afterwards is
// logged and swallowed, it does not refund the deduction.
func (s *GenerationService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if req.UserID == "" || req.Style == "" {
		return nil, fmt.Errorf("user id and style are required")
	}

	cost := models.GenerationCost(req.Style)

	remaining, err := s.credits.Deduct(ctx, req.UserID, cost, models.TransactionGeneration, "style: "+req.Style)
	if err != nil {
		return nil, err
	}

	gen := &models.Generation{
		UserID:      req.UserID,
		Style:       req.Style,
		TextContent: req.TextContent,
		ImageURL:    req.ImageURL,
		CreditsUsed: cost,
	}
	if err := s.generations.Log(ctx, gen); err != nil {
		s.log.Error("failed to log generation", "user", req.UserID, "style", req.Style, "err", err)
	}

	return &GenerateResult{CreditsUsed: cost, RemainingCredits: remaining}, nil
}

// History returns a user's recent generations.
func (s *GenerationService) History(ctx context.Context, userID string, limit int) ([]models.Generation, error) {
	return s.generations.ListByUser(ctx, userID, limit)
}
