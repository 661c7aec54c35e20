// Package account manages users, credentials and token issuance.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/quizdesk/internal/apperr"
	"github.com/pavelanni/quizdesk/internal/auth"
	"github.com/pavelanni/quizdesk/internal/model"
	"github.com/pavelanni/quizdesk/internal/store"
	"github.com/pavelanni/quizdesk/internal/validate"
)

// Session is the result of a successful login or registration.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      model.User `json:"user"`
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type CreateUserInput struct {
	Name     string     `json:"name" validate:"required,max=200"`
	Email    string     `json:"email" validate:"required,email"`
	Password string     `json:"password" validate:"required,min=8,max=72"`
	Role     model.Role `json:"role" validate:"required,oneof=trainee admin superadmin"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type Service struct {
	users  store.Users
	issuer *auth.Issuer
	cost   int
	now    func() time.Time
}

func New(users store.Users, issuer *auth.Issuer) *Service {
	return &Service{users: users, issuer: issuer, cost: bcrypt.DefaultCost, now: time.Now}
}

// Register creates a trainee account and logs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.Email = model.NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return Session{}, err
	}
	if err := checkPasswordBytes("password", in.Password); err != nil {
		return Session{}, err
	}
	u, err := s.create(ctx, in.Name, in.Email, in.Password, model.RoleTrainee)
	if err != nil {
		return Session{}, err
	}
	return s.session(u)
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	if err := validate.Struct(in); err != nil {
		return Session{}, err
	}
	u, err := s.users.GetUserByEmail(ctx, model.NormalizeEmail(in.Email))
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, errInvalidLogin()
	}
	if err != nil {
		return Session{}, store.Unavailable("get user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		slog.Info("failed login", "email", u.Email)
		return Session{}, errInvalidLogin()
	}
	return s.session(u)
}

func errInvalidLogin() error {
	return apperr.Unauthenticated("InvalidLogin", "invalid email or password")
}

func (s *Service) Get(ctx context.Context, id string) (model.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return model.User{}, userErr("get user", err)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]model.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, store.Unavailable("list users", err)
	}
	return users, nil
}

// Create adds an account with any role.
func (s *Service) Create(ctx context.Context, in CreateUserInput) (model.User, error) {
	in.Email = model.NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return model.User{}, err
	}
	if err := checkPasswordBytes("password", in.Password); err != nil {
		return model.User{}, err
	}
	return s.create(ctx, in.Name, in.Email, in.Password, in.Role)
}

// ChangePassword replaces the caller's own password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, id model.Identity, in ChangePasswordInput) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	if err := checkPasswordBytes("newPassword", in.NewPassword); err != nil {
		return err
	}
	u, err := s.users.GetUser(ctx, id.ID)
	if err != nil {
		return userErr("get user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)); err != nil {
		return apperr.Validation("WrongPassword", "current password is incorrect",
			map[string]string{"currentPassword": "is incorrect"})
	}
	return s.setPassword(ctx, u, in.NewPassword)
}

// ResetPassword sets another user's password.
func (s *Service) ResetPassword(ctx context.Context, userID, password string) error {
	in := struct {
		Password string `json:"password" validate:"required,min=8,max=72"`
	}{password}
	if err := validate.Struct(in); err != nil {
		return err
	}
	if err := checkPasswordBytes("password", password); err != nil {
		return err
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return userErr("get user", err)
	}
	return s.setPassword(ctx, u, password)
}

// SetRole changes the role of another user.
func (s *Service) SetRole(ctx context.Context, actor model.Identity, userID string, role model.Role) (model.User, error) {
	if !role.Valid() {
		return model.User{}, apperr.Validation("InvalidInput", "unknown role",
			map[string]string{"role": "must be one of: trainee admin superadmin"})
	}
	if actor.ID == userID {
		return model.User{}, apperr.Forbidden("OwnAccount", "cannot change your own role")
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, userErr("get user", err)
	}
	u.Role = role
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return model.User{}, userErr("update user", err)
	}
	slog.Info("user role changed", "id", u.ID, "role", role, "by", actor.ID)
	return u, nil
}

// Delete removes another user's account.
func (s *Service) Delete(ctx context.Context, actor model.Identity, userID string) error {
	if actor.ID == userID {
		return apperr.Forbidden("OwnAccount", "cannot delete your own account")
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return userErr("delete user", err)
	}
	slog.Info("user deleted", "id", userID, "by", actor.ID)
	return nil
}

// EnsureSuperadmin seeds a superadmin when the store has no users yet.
// It reports whether an account was created.
func (s *Service) EnsureSuperadmin(ctx context.Context, email, password string) (bool, error) {
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return false, store.Unavailable("count users", err)
	}
	if n > 0 {
		return false, nil
	}
	if email == "" || password == "" {
		slog.Warn("no users exist and no superadmin credentials are configured")
		return false, nil
	}
	if _, err := s.create(ctx, "Superadmin", email, password, model.RoleSuperadmin); err != nil {
		return false, fmt.Errorf("seed superadmin: %w", err)
	}
	return true, nil
}

func (s *Service) create(ctx context.Context, name, email, password string, role model.Role) (model.User, error) {
	hash, err := s.hashPassword("password", password)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        model.NormalizeEmail(email),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return model.User{}, apperr.Conflict("EmailTaken", "email is already registered").
				WithData(map[string]any{"Email": u.Email})
		}
		return model.User{}, store.Unavailable("create user", err)
	}
	return u, nil
}

func (s *Service) setPassword(ctx context.Context, u model.User, password string) error {
	hash, err := s.hashPassword("password", password)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return userErr("update user", err)
	}
	slog.Info("password changed", "id", u.ID)
	return nil
}

// maxPasswordBytes is the longest input bcrypt accepts. The validator's
// max=72 counts runes, so multi-byte passwords need this extra check.
const maxPasswordBytes = 72

func checkPasswordBytes(field, password string) error {
	if len(password) > maxPasswordBytes {
		return errPasswordTooLong(field)
	}
	return nil
}

func errPasswordTooLong(field string) error {
	return apperr.Validation("InvalidInput", "password is too long",
		map[string]string{field: "must be at most 72 bytes"})
}

func (s *Service) hashPassword(field, password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, errPasswordTooLong(field)
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (s *Service) session(u model.User) (Session, error) {
	token, exp, err := s.issuer.Issue(u)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func userErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("UserNotFound", "user not found")
	}
	return store.Unavailable(op, err)
}
