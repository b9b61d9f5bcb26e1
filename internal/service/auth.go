package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/market-permanences/internal/model"
	"github.com/iliyamo/market-permanences/internal/utils"
)

// ErrBadCredentials is returned by Login for an unknown user, an inactive
// account or a wrong password alike.
var ErrBadCredentials = errors.New("invalid username or password")

// AuthService checks passwords and issues session tokens.  Account
// management itself lives outside the scheduler; CreateUser exists for the
// createuser command.
type AuthService struct {
	users      UserStore
	secret     string
	ttl        time.Duration
	bcryptCost int
}

func NewAuthService(users UserStore, secret string, ttl time.Duration, bcryptCost int) *AuthService {
	return &AuthService{users: users, secret: secret, ttl: ttl, bcryptCost: bcryptCost}
}

// Login verifies the credentials and returns a signed session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (utils.SessionToken, model.User, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return utils.SessionToken{}, model.User{}, ErrBadCredentials
		}
		return utils.SessionToken{}, model.User{}, err
	}
	if !u.Active || !utils.VerifyPassword(u.PasswordHash, password) {
		return utils.SessionToken{}, model.User{}, ErrBadCredentials
	}
	tok, err := utils.NewSessionToken(s.secret, utils.SessionClaims{
		UserID:    u.ID,
		Username:  u.Username,
		Superuser: u.Superuser,
	}, s.ttl)
	if err != nil {
		return utils.SessionToken{}, model.User{}, fmt.Errorf("sign session: %w", err)
	}
	return tok, u, nil
}

// NewUser is the input of CreateUser.
type NewUser struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Superuser bool
}

// CreateUser hashes the password and stores an active account.
func (s *AuthService) CreateUser(ctx context.Context, in NewUser) (uint64, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return 0, model.Invalid("username is required")
	}
	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return 0, model.Invalid(err.Error())
	}
	return s.users.Create(ctx, model.User{
		Username:     in.Username,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Superuser:    in.Superuser,
		Active:       true,
	})
}
