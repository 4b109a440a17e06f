// Package accounts manages user accounts: admin provisioning with emailed
// credentials, self registration, login and logout.
package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand/v2"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"golang.org/x/crypto/bcrypt"

	"github.com/nhle/taskflow/internal/activity"
	"github.com/nhle/taskflow/internal/apperr"
	"github.com/nhle/taskflow/internal/identity"
	"github.com/nhle/taskflow/internal/mailer"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/policy"
	"github.com/nhle/taskflow/internal/store"
)

const (
	minPasswordLength = 6

	// usernameAttempts bounds retries when a generated username is taken.
	usernameAttempts = 5

	mailFailureNote = "Email service unavailable. Please share these credentials manually."
)

// ProvisionRequest is an admin's request to create an account.
type ProvisionRequest struct {
	Email    string     `json:"email"`
	FullName string     `json:"fullName"`
	Role     model.Role `json:"role"`
}

// ProvisionResult is the created account. TemporaryPassword and Note are
// set only when the credentials email could not be delivered.
type ProvisionResult struct {
	User              model.User `json:"user"`
	TemporaryPassword string     `json:"temporaryPassword,omitempty"`
	Note              string     `json:"note,omitempty"`
	EmailSent         bool       `json:"-"`
}

// Message describes the outcome for the response envelope.
func (r ProvisionResult) Message() string {
	switch {
	case r.EmailSent:
		return "User account created and credentials sent via email"
	case r.TemporaryPassword != "":
		return "User account created. Email service unavailable - credentials included in response."
	default:
		return "User account created. Email service unavailable."
	}
}

// RegisterRequest is a self-registration.
type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest authenticates by email or username.
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is an issued access token and the user it belongs to.
type Session struct {
	User        model.User `json:"user"`
	AccessToken string     `json:"accessToken"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

// Service implements the account operations.
type Service struct {
	store    store.Store
	resolver *identity.Resolver
	recorder *activity.Recorder
	mailer   mailer.Sender
	cfg      model.AccountsConfig
	logger   *slog.Logger
	cost     int
}

// NewService creates a Service.
func NewService(
	s store.Store,
	resolver *identity.Resolver,
	recorder *activity.Recorder,
	sender mailer.Sender,
	cfg model.AccountsConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:    s,
		resolver: resolver,
		recorder: recorder,
		mailer:   sender,
		cfg:      cfg,
		logger:   logger,
		cost:     bcrypt.DefaultCost,
	}
}

// Provision creates an account on an admin's behalf with a random
// password and emails the credentials to the new user.
func (s *Service) Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return ProvisionResult{}, err
	}
	if err := policy.CanProvision(actor).Err(); err != nil {
		return ProvisionResult{}, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	fullName := strings.TrimSpace(req.FullName)
	if email == "" || fullName == "" {
		return ProvisionResult{}, apperr.Invalidf("Email and full name are required")
	}
	if !validEmail(email) {
		return ProvisionResult{}, apperr.Invalidf("Invalid email address")
	}
	role := req.Role
	if role == "" {
		role = model.RoleEmployee
	}
	if !role.Valid() {
		return ProvisionResult{}, apperr.Invalidf("Invalid role value")
	}

	if err := s.requireEmailFree(ctx, email); err != nil {
		return ProvisionResult{}, err
	}

	password, err := randomPassword()
	if err != nil {
		return ProvisionResult{}, apperr.Wrap(apperr.Internal, "generating password", err)
	}
	hash, err := s.hash(password)
	if err != nil {
		return ProvisionResult{}, err
	}

	user := model.User{
		FullName:     fullName,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	user, err = s.createWithGeneratedUsername(ctx, user)
	if err != nil {
		return ProvisionResult{}, err
	}

	s.recorder.Record(ctx, actor.ID, model.ActionRegister, activity.UserTarget(user.ID),
		map[string]any{"email": user.Email, "role": string(user.Role), "provisioned": true})

	result := ProvisionResult{User: user, EmailSent: true}
	if err := s.sendWelcome(ctx, user, password); err != nil {
		s.logger.Warn("credentials email not delivered", "user_id", user.ID, "error", err)
		result.EmailSent = false
		result.Note = mailFailureNote
		if s.cfg.RevealPasswordOnMailFailure {
			result.TemporaryPassword = password
		} else {
			result.Note = "Email service unavailable. The credentials could not be delivered."
		}
	}

	return result, nil
}

func (s *Service) sendWelcome(ctx context.Context, user model.User, password string) error {
	msg, err := welcomeMessage(user, password, s.cfg.LoginURL)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}

// createWithGeneratedUsername derives a username from the email's local
// part plus a random suffix, retrying when the username is taken.
func (s *Service) createWithGeneratedUsername(ctx context.Context, user model.User) (model.User, error) {
	local, _, _ := strings.Cut(user.Email, "@")
	for attempt := 0; attempt < usernameAttempts; attempt++ {
		user.ID = model.NewID()
		user.Username = fmt.Sprintf("%s%d", local, mathrand.IntN(1000))
		err := s.store.CreateUser(ctx, user)
		if err == nil {
			return s.reload(ctx, user.ID)
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return model.User{}, apperr.Wrap(apperr.Internal, "creating user", err)
		}
		// Either the email was taken concurrently or the username
		// collided; only the latter is worth another attempt.
		if err := s.requireEmailFree(ctx, user.Email); err != nil {
			return model.User{}, err
		}
	}
	return model.User{}, apperr.Conflictf("Could not generate a unique username")
}

// Register creates an Employee account with a chosen password.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (model.User, error) {
	fullName := strings.TrimSpace(req.FullName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if fullName == "" || email == "" || username == "" || req.Password == "" {
		return model.User{}, apperr.Invalidf("All fields are required")
	}
	if !validEmail(email) {
		return model.User{}, apperr.Invalidf("Invalid email address")
	}
	if len(req.Password) < minPasswordLength {
		return model.User{}, apperr.Invalidf("Password must be at least %d characters", minPasswordLength)
	}

	hash, err := s.hash(req.Password)
	if err != nil {
		return model.User{}, err
	}

	user := model.User{
		ID:           model.NewID(),
		FullName:     fullName,
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         model.RoleEmployee,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return model.User{}, apperr.Conflictf("User with email or username already exists")
		}
		return model.User{}, apperr.Wrap(apperr.Internal, "creating user", err)
	}

	user, err = s.reload(ctx, user.ID)
	if err != nil {
		return model.User{}, err
	}
	s.recorder.Record(ctx, user.ID, model.ActionRegister, activity.UserTarget(user.ID),
		map[string]any{"email": user.Email})
	return user, nil
}

// Login checks the password and issues an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (Session, error) {
	login := strings.TrimSpace(req.Email)
	if login == "" {
		login = strings.TrimSpace(req.Username)
	}
	if login == "" {
		return Session{}, apperr.Invalidf("Email or username is required")
	}
	if req.Password == "" {
		return Session{}, apperr.Invalidf("Password is required")
	}

	user, err := s.store.GetUserByLogin(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, apperr.Unauthenticatedf("Invalid user credentials")
	}
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, "loading user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return Session{}, apperr.Unauthenticatedf("Invalid user credentials")
	}

	wire, token, err := s.resolver.Issuer().Mint(user.ID)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, "issuing token", err)
	}

	s.recorder.Record(ctx, user.ID, model.ActionLogin, activity.UserTarget(user.ID), nil)
	return Session{User: *user, AccessToken: wire, ExpiresAt: token.Expiry()}, nil
}

// Logout revokes the token the request was authenticated with.
func (s *Service) Logout(ctx context.Context) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if token, ok := identity.TokenFrom(ctx); ok {
		s.resolver.Revoke(token)
	}
	s.recorder.Record(ctx, actor.ID, model.ActionLogout, activity.UserTarget(actor.ID), nil)
	return nil
}

// Current returns the authenticated user.
func (s *Service) Current(ctx context.Context) (model.User, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return model.User{}, err
	}
	return s.reload(ctx, actor.ID)
}

// ListUsers returns every user's public identity, for assignment pickers.
func (s *Service) ListUsers(ctx context.Context) ([]model.UserSummary, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	users, err := s.store.GetUsers(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "listing users", err)
	}
	summaries := make([]model.UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, u.Summary())
	}
	return summaries, nil
}

// SeedAdmin creates an Admin account unless one with the email exists.
// It reports whether an account was created.
func (s *Service) SeedAdmin(ctx context.Context, email, fullName, password string) (model.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return model.User{}, false, fmt.Errorf("seeding admin: invalid email %q", email)
	}
	if len(password) < minPasswordLength {
		return model.User{}, false, fmt.Errorf("seeding admin: password must be at least %d characters", minPasswordLength)
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return *existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.User{}, false, fmt.Errorf("seeding admin: %w", err)
	}

	if strings.TrimSpace(fullName) == "" {
		fullName = "Administrator"
	}
	hash, err := s.hash(password)
	if err != nil {
		return model.User{}, false, fmt.Errorf("seeding admin: %w", err)
	}
	local, _, _ := strings.Cut(email, "@")
	user := model.User{
		ID:           model.NewID(),
		FullName:     strings.TrimSpace(fullName),
		Email:        email,
		Username:     local,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return model.User{}, false, fmt.Errorf("seeding admin: %w", err)
	}
	s.logger.Info("admin account created", "user_id", user.ID, "email", email)

	user, err = s.reload(ctx, user.ID)
	if err != nil {
		return model.User{}, false, fmt.Errorf("seeding admin: %w", err)
	}
	return user, true, nil
}

func (s *Service) requireEmailFree(ctx context.Context, email string) error {
	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return apperr.Conflictf("User with this email already exists")
	}
	if !errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(apperr.Internal, "checking email", err)
	}
	return nil
}

func (s *Service) reload(ctx context.Context, id string) (model.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, apperr.NotFoundf("User not found")
	}
	if err != nil {
		return model.User{}, apperr.Wrap(apperr.Internal, "loading user", err)
	}
	return *user, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "hashing password", err)
	}
	return string(hash), nil
}

func requireActor(ctx context.Context) (identity.Actor, error) {
	actor, ok := identity.ActorFrom(ctx)
	if !ok || actor.ID == "" {
		return identity.Actor{}, apperr.Unauthenticatedf("Unauthorized request")
	}
	return actor, nil
}

// randomPassword returns 16 hex characters from 8 random bytes.
func randomPassword() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
