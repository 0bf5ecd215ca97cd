package account

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the slice of persistence the account service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// Service owns resource-owner lookups and credential checks. Account
// management proper (signup, password reset, mailbox provisioning) lives in
// the account-management collaborator; this subsystem only authenticates.
type Service struct {
	Users UserStore
}

func NewService(users UserStore) *Service {
	return &Service{Users: users}
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return s.Users.GetUserByID(ctx, id)
}

// Login verifies an email/password pair and returns the matching user.
// A bcrypt compare runs even for unknown emails so the response time does
// not reveal whether the address exists.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	user, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, err
	}
	return user, nil
}

// HashPassword hashes a resource-owner password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// dummyHash is a valid bcrypt hash of an unguessable value, used to
// equalize login timing for unknown emails.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
