package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/harlequingg/taskd/internal/data"
	"github.com/harlequingg/taskd/internal/validator"
)

type UserInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserService struct {
	store    Store
	log      *zap.SugaredLogger
	hashCost int
}

type UserOption func(*UserService)

// WithHashCost overrides the bcrypt cost, tests use bcrypt.MinCost.
func WithHashCost(cost int) UserOption {
	return func(s *UserService) {
		s.hashCost = cost
	}
}

func NewUserService(store Store, log *zap.SugaredLogger, opts ...UserOption) *UserService {
	s := &UserService{
		store:    store,
		log:      log.Named("service.user"),
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *UserService) Create(ctx context.Context, in UserInput) (*data.User, error) {
	v := validator.New()
	v.CheckUsername(in.Username)
	v.CheckEmail(in.Email)
	v.CheckPassword(in.Password)
	if !v.Valid() {
		return nil, v.Err()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &data.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
	}
	err = s.store.InsertUser(ctx, u)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrDuplicateUsername):
			v.Check(false, "username", "a user with this username already exists")
			return nil, v.Err()
		default:
			return nil, err
		}
	}
	s.log.Infow("user created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Authenticate returns the user matching username and password, or
// ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*data.User, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			return nil, ErrInvalidCredentials
		default:
			return nil, err
		}
	}

	err = bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password))
	if err != nil {
		switch {
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return nil, ErrInvalidCredentials
		default:
			return nil, err
		}
	}
	return u, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*data.User, error) {
	return s.store.GetUserByID(ctx, id)
}
