package auth

import (
	"errors"
	"log"
	"time"

	"github.com/user/marfanet-crm/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials - unknown username or wrong password. One error for
// both cases so login responses do not reveal which usernames exist.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Repository - persistence required by the auth service
type Repository interface {
	GetUserByUsername(username string) (*models.User, error)
	CreateUser(user *models.User) error
	UpdateUserLastLogin(id uint, at time.Time) error
	CountUsers() (int64, error)
}

// Service - admin authentication
type Service struct {
	repo Repository
}

// NewService creates a new auth service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Login checks credentials and issues a session token.
func (s *Service) Login(username, password string) (string, *models.User, error) {
	user, err := s.repo.GetUserByUsername(username)
	if err != nil {
		return "", nil, err
	}
	if user == nil || !user.IsActive {
		return "", nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateJWT(user.ID, user.Username, user.Role)
	if err != nil {
		return "", nil, err
	}

	if err := s.repo.UpdateUserLastLogin(user.ID, time.Now()); err != nil {
		log.Printf("[Auth] Update last login for %s: %v", user.Username, err)
	}

	return token, user, nil
}

// CreateUser creates an admin user with a bcrypt-hashed password.
func (s *Service) CreateUser(username, password, role string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.repo.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureDefaultAdmin seeds the first admin account on an empty users table.
// The password must be rotated after first login.
func (s *Service) EnsureDefaultAdmin(username, password string) error {
	count, err := s.repo.CountUsers()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if _, err := s.CreateUser(username, password, "admin"); err != nil {
		return err
	}
	log.Printf("[Auth] Seeded default admin user %q", username)
	return nil
}
