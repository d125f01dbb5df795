package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is an account on the service. WalletAddress is the participant
// identity used in splits and debts; the core treats it as an opaque token.
type User struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	WalletAddress string    `json:"wallet_address"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

type Repository interface {
	Register(ctx context.Context, email, password, walletAddress string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	VerifyPassword(hashedPassword, password string) error
	UpdateName(ctx context.Context, userID uuid.UUID, name string) error
	UpdateWalletAddress(ctx context.Context, userID uuid.UUID, walletAddress string) error
}
