package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fansignhq/fansign-backend/internal/models"
	"github.com/fansignhq/fansign-backend/internal/notify"
	"github.com/fansignhq/fansign-backend/internal/repository"
)

var ErrKeyInvalidOrUsed = errors.New("invalid or already used key")
var ErrUnknownKeyType = errors.New("unknown key type")

type KeyService struct {
	keys     *repository.KeyRepository
	notifier *notify.Notifier
}

func NewKeyService(keys *repository.KeyRepository, notifier *notify.Notifier) *KeyService {
	return &KeyService{keys: keys, notifier: notifier}
}

type RedeemResult struct {
	CreditsAdded int
	KeyType      string
	NewBalance   int
}

// Redeem consumes a single-use key and grants its credits. The unused check
// and the used_by claim are a single conditional UPDATE inside one database
// transaction, so two requests racing on the same code produce exactly one
// success.
func (s *KeyService) Redeem(ctx context.Context, userID, keyCode string) (*RedeemResult, error) {
	keyCode = strings.TrimSpace(keyCode)
	if keyCode == "" {
		return nil, ErrKeyInvalidOrUsed
	}

	tx, err := s.keys.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// First contact may well be a redemption; make sure the ledger row exists.
	if _, err := tx.ExecContext(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	var keyType string
	var credits int
	row := tx.QueryRowContext(ctx, `
UPDATE api_keys SET used_by = $1, used_at = NOW()
WHERE key_value = $2 AND used_by IS NULL
RETURNING key_type, credits`, userID, keyCode)
	if err := row.Scan(&keyType, &credits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyInvalidOrUsed
		}
		return nil, fmt.Errorf("claim key: %w", err)
	}

	if credits <= 0 {
		credits = models.KeyTierCredits(keyType)
	}

	var balance int
	row = tx.QueryRowContext(ctx, `
UPDATE users SET credits = credits + $1, updated_at = NOW()
WHERE id = $2
RETURNING credits`, credits, userID)
	if err := row.Scan(&balance); err != nil {
		return nil, fmt.Errorf("grant key credits: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO credit_transactions (user_id, amount, type, key_value)
VALUES ($1, $2, $3, $4)`, userID, credits, models.TransactionRedeem, keyCode); err != nil {
		return nil, fmt.Errorf("insert redeem transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit redeem: %w", err)
	}

	s.notifier.KeyRedeemed(userID, credits)

	return &RedeemResult{CreditsAdded: credits, KeyType: keyType, NewBalance: balance}, nil
}

// Generate mints count fresh keys of the given tier.
func (s *KeyService) Generate(ctx context.Context, keyType string, count int) ([]models.APIKey, error) {
	keyType = strings.ToUpper(strings.TrimSpace(keyType))
	if !models.ValidKeyType(keyType) {
		return nil, ErrUnknownKeyType
	}
	if count <= 0 {
		count = 1
	}
	if count > 100 {
		count = 100
	}

	keys := make([]models.APIKey, 0, count)
	for i := 0; i < count; i++ {
		key := models.APIKey{
			KeyValue: NewKeyCode(keyType),
			KeyType:  keyType,
			Credits:  models.KeyTierCredits(keyType),
		}
		if err := s.keys.Create(ctx, &key); err != nil {
			return nil, fmt.Errorf("create key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *KeyService) List(ctx context.Context) ([]models.APIKey, error) {
	return s.keys.List(ctx)
}

// NewKeyCode builds a code like PRE-1A2B3C4D-5E6F7A8B-9C0D1E2F: the tier's
// three-letter prefix plus three random segments.
func NewKeyCode(keyType string) string {
	prefix := keyType
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	raw = strings.ToUpper(raw)
	return fmt.Sprintf("%s-%s-%s-%s", prefix, raw[0:8], raw[8:16], raw[16:24])
}
