package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/repository"
	"github.com/natours/natours/internal/resource"
	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/middleware"
	"github.com/natours/natours/pkg/query"
)

// SignupInput holds the parameters of a new account.
type SignupInput struct {
	Name            string
	Email           string
	Photo           string
	Password        string
	PasswordConfirm string
}

// UpdatePasswordInput holds the parameters of a password change.
type UpdatePasswordInput struct {
	PasswordCurrent string
	Password        string
	PasswordConfirm string
}

// UpdateMeInput is what users may change on their own account. Password
// fields are rejected.
type UpdateMeInput struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	Password        *string `json:"password"`
	PasswordConfirm *string `json:"passwordConfirm"`
}

// UserInput is what admins may change on any account.
type UserInput struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Photo *string `json:"photo"`
	Role  *string `json:"role"`
}

// UserService implements accounts and authentication.
type UserService struct {
	users  repository.UserRepository
	res    *resource.Service[domain.User]
	jwt    *auth.JWTManager
	hasher *auth.PasswordHasher
	logger *slog.Logger
	now    func() time.Time
}

// NewUserService creates a UserService.
func NewUserService(users repository.UserRepository, jwt *auth.JWTManager, hasher *auth.PasswordHasher, logger *slog.Logger) *UserService {
	s := &UserService{users: users, jwt: jwt, hasher: hasher, logger: logger, now: time.Now}
	s.res = resource.New[domain.User](users, resource.Config[domain.User]{
		Name:     "user",
		Identity: func(u *domain.User) *string { return &u.ID },
		Prepare: func(op resource.Op, u *domain.User) {
			if op == resource.OpCreate {
				u.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
				u.Active = true
			}
		},
		Validate: domain.ValidateUser,
		Scope:    repository.UserScope,
	}, logger)
	return s
}

func checkPassword(password, confirm string) error {
	fields := map[string]string{}
	if len(password) < domain.MinPasswordLength {
		fields["password"] = fmt.Sprintf("A password must have at least %d characters.", domain.MinPasswordLength)
	}
	if password != confirm {
		fields["passwordConfirm"] = "Passwords are not the same!"
	}
	if len(fields) == 0 {
		return nil
	}
	msg := "Invalid input data."
	for _, k := range []string{"password", "passwordConfirm"} {
		if m, ok := fields[k]; ok {
			msg += " " + m
		}
	}
	return apperrors.Validation(msg, fields)
}

// Signup creates a user account with the user role and returns it with a
// fresh token.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*domain.User, string, error) {
	if err := checkPassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, "", err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", err
	}

	u := &domain.User{
		Name:     in.Name,
		Email:    in.Email,
		Photo:    in.Photo,
		Role:     domain.RoleUser,
		Password: hash,
	}
	if _, err := s.res.CreateOne(ctx, u); err != nil {
		return nil, "", err
	}

	token, err := s.jwt.Generate(u.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.InfoContext(ctx, "user signed up", slog.String("user_id", u.ID))
	return u, token, nil
}

// Login checks the credentials of an active user and returns a token.
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	if email == "" || password == "" {
		return nil, "", apperrors.InvalidInput("Please provide email and password!")
	}

	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, "", err
	}
	if u == nil || !s.hasher.Matches(u.Password, password) {
		return nil, "", apperrors.Unauthorized("Incorrect email or password")
	}

	token, err := s.jwt.Generate(u.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", u.ID))
	return u, token, nil
}

// Authenticate resolves a token to its active user. Tokens issued before
// the user's last password change are rejected.
func (s *UserService) Authenticate(ctx context.Context, token string) (*middleware.Principal, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperrors.Unauthorized("Your token has expired! Please log in again.")
		}
		return nil, apperrors.Unauthorized("Invalid token. Please log in again!")
	}

	u, err := s.res.GetOne(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("The user belonging to this token does no longer exist.")
		}
		return nil, err
	}
	if u.ChangedPasswordAfter(claims.IssuedAtTime()) {
		return nil, apperrors.Unauthorized("User recently changed password! Please log in again.")
	}
	return &middleware.Principal{UserID: u.ID, Role: u.Role}, nil
}

// UpdatePassword changes the password of userID after checking the current
// one, and returns a new token. Tokens issued earlier stop working.
func (s *UserService) UpdatePassword(ctx context.Context, userID string, in UpdatePasswordInput) (*domain.User, string, error) {
	if err := checkPassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, "", err
	}

	u, err := s.res.UpdateOne(ctx, userID, func(u *domain.User) error {
		if !s.hasher.Matches(u.Password, in.PasswordCurrent) {
			return apperrors.Unauthorized("Your current password is wrong.")
		}
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return err
		}
		// One second back so a token issued right after is still valid.
		changed := s.now().UTC().Add(-time.Second)
		u.Password = hash
		u.PasswordChangedAt = &changed
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	token, err := s.jwt.Generate(u.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", u.ID))
	return u, token, nil
}

// GetUser returns an active user.
func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.res.GetOne(ctx, id)
}

// ListUsers returns the active users matching q.
func (s *UserService) ListUsers(ctx context.Context, q query.Params) ([]domain.User, error) {
	return s.res.ListAll(ctx, q)
}

// CreateUser is not supported; accounts are created through Signup.
func (s *UserService) CreateUser(context.Context) error {
	return apperrors.NotImplemented("This route is not yet defined! Please use /signup instead.")
}

// UpdateMe changes the name and email of the caller's account.
func (s *UserService) UpdateMe(ctx context.Context, userID string, in UpdateMeInput) (*domain.User, error) {
	if in.Password != nil || in.PasswordConfirm != nil {
		return nil, apperrors.InvalidInput("This route is not for password updates. Please use /update-my-password.")
	}
	return s.res.UpdateOne(ctx, userID, func(u *domain.User) error {
		set(&u.Name, in.Name)
		set(&u.Email, in.Email)
		return nil
	})
}

// DeleteMe deactivates the caller's account.
func (s *UserService) DeleteMe(ctx context.Context, userID string) error {
	_, err := s.res.UpdateOne(ctx, userID, func(u *domain.User) error {
		u.Active = false
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user deactivated", slog.String("user_id", userID))
	return nil
}

// UpdateUser changes any account. Passwords cannot be changed this way.
func (s *UserService) UpdateUser(ctx context.Context, id string, in UserInput) (*domain.User, error) {
	return s.res.UpdateOne(ctx, id, func(u *domain.User) error {
		set(&u.Name, in.Name)
		set(&u.Email, in.Email)
		set(&u.Photo, in.Photo)
		set(&u.Role, in.Role)
		return nil
	})
}

// DeleteUser removes an account.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	return s.res.DeleteOne(ctx, id, nil)
}
