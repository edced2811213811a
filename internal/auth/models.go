package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Account is a platform login bound to a ledger address. The address is
// the identity every registry operation attributes state to.
type Account struct {
	Address      string    `json:"address" db:"address"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

const (
	RoleCompany  = "company"
	RoleVerifier = "verifier"
	RoleAdmin    = "admin"
)

// Claims is the JWT payload issued at login.
type Claims struct {
	Address string `json:"address"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrInvalidToken       = errors.New("auth: invalid or expired token")
	ErrAccountNotFound    = errors.New("auth: account not found")
)
