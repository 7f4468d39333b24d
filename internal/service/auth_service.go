package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/fansignhq/fansign-backend/internal/models"
	"github.com/fansignhq/fansign-backend/internal/repository"
)

var ErrUsernameTaken = errors.New("username already exists")
var ErrInvalidCredentials = errors.New("invalid username or password")

const bcryptCost = 12

type AuthService struct {
	users        *repository.UserRepository
	signupCredit int
}

func NewAuthService(users *repository.UserRepository, signupCredit int) *AuthService {
	return &AuthService{users: users, signupCredit: signupCredit}
}

// Register creates a password account with the signup bonus. The user row
// and the bonus ledger entry commit together.
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}

	existing, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Credits:      s.signupCredit,
	}

	tx, err := s.users.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO users (id, username, password_hash, credits)
VALUES ($1, $2, $3, $4)`, user.ID, user.Username, user.PasswordHash, user.Credits); err != nil {
		// Two registrations racing past the pre-check land here; the unique
		// constraint on username is the authority.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if s.signupCredit > 0 {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO credit_transactions (user_id, amount, type, details)
VALUES ($1, $2, $3, 'signup bonus')`, user.ID, s.signupCredit, models.TransactionPurchase); err != nil {
			return nil, fmt.Errorf("insert signup bonus transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit registration: %w", err)
	}
	return user, nil
}

// Login verifies a username/password pair.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
