// Package session owns the authenticated principal and the bearer token.
//
// The token is written to durable storage in the same critical section as the state
// transition that creates or destroys it, so Snapshot and the stored token never disagree.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"taskdash/internal/apperr"
	"taskdash/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

const MinPasswordLen = 6

// State is the observable session. IsAuthenticated is true iff Principal is set.
type State struct {
	Principal       *model.Principal `json:"principal,omitempty"`
	IsAuthenticated bool             `json:"isAuthenticated"`
	IsLoading       bool             `json:"isLoading"`
	LastError       string           `json:"lastError,omitempty"`
}

// Role returns the principal's role, or "" when unauthenticated.
func (s State) Role() model.Role {
	if s.Principal == nil {
		return ""
	}
	return s.Principal.Role
}

func (s State) PrincipalID() string {
	if s.Principal == nil {
		return ""
	}
	return s.Principal.ID
}

// API is the subset of the HTTP adapter the session needs.
type API interface {
	Register(ctx context.Context, name, email, password string) (model.AuthResult, error)
	Login(ctx context.Context, email, password string) (model.AuthResult, error)
	Me(ctx context.Context) (model.Principal, error)
	UpdateUser(ctx context.Context, id string, in model.UserInput) (model.User, error)
}

// TokenStore is durable storage for the bearer token. LoadToken returns "" when unset.
type TokenStore interface {
	LoadToken() (string, error)
	SaveToken(token string) error
	DeleteToken() error
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

type Store struct {
	api    API
	tokens TokenStore
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State
	token string
	subs  []func()
}

func New(api API, tokens TokenStore, opts ...Option) *Store {
	s := &Store{
		api:    api,
		tokens: tokens,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyState()
}

func (s *Store) copyState() State {
	st := s.state
	if st.Principal != nil {
		p := *st.Principal
		st.Principal = &p
	}
	return st
}

// Token is the bearer token attached to outbound requests.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Subscribe registers fn to run after every state transition. Callbacks run outside
// the store lock and may call Snapshot.
func (s *Store) Subscribe(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	subs := append([]func(){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// mutate applies fn under the lock and notifies subscribers afterwards.
func (s *Store) mutate(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) begin() {
	s.mutate(func(st *State) {
		st.IsLoading = true
		st.LastError = ""
	})
}

func (s *Store) fail(op string, err error) error {
	err = apperr.WithOp(err, op)
	s.logger.Debug("session operation failed", "op", op, "error", err)
	s.mutate(func(st *State) {
		st.IsLoading = false
		st.LastError = apperr.Message(err)
	})
	return err
}

// signIn stores the token and sets the principal in one critical section.
func (s *Store) signIn(op string, res model.AuthResult) (model.Principal, error) {
	s.mu.Lock()
	if err := s.tokens.SaveToken(res.Token); err != nil {
		s.mu.Unlock()
		return model.Principal{}, s.fail(op, &apperr.Error{Kind: apperr.KindFetch, Message: "Failed to store credentials", Err: err})
	}
	p := res.Principal
	s.token = res.Token
	s.state = State{Principal: &p, IsAuthenticated: true}
	s.mu.Unlock()
	s.notify()
	return p, nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.Validation("Email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.Validation("Please enter a valid email address")
	}
	return nil
}

// ValidatePassword applies the client-side password rule shared with user management.
func ValidatePassword(password string) error {
	if password == "" {
		return apperr.Validation("Password is required")
	}
	if len(password) < MinPasswordLen {
		return apperr.Validation("Password must be at least %d characters", MinPasswordLen)
	}
	return nil
}

// Register validates locally, then creates the account. A server rejection of the
// payload (400, or 409 for a duplicate email) is reported as a validation error.
func (s *Store) Register(ctx context.Context, name, email, password, confirm string) (model.Principal, error) {
	const op = "session.register"
	if err := validateEmail(email); err != nil {
		return model.Principal{}, s.fail(op, err)
	}
	if err := ValidatePassword(password); err != nil {
		return model.Principal{}, s.fail(op, err)
	}
	if password != confirm {
		return model.Principal{}, s.fail(op, apperr.Validation("Passwords do not match"))
	}

	s.begin()
	res, err := s.api.Register(ctx, strings.TrimSpace(name), strings.TrimSpace(email), password)
	if err != nil {
		return model.Principal{}, s.fail(op, apperr.Remap(err, apperr.KindConflict, apperr.KindValidation))
	}
	return s.signIn(op, res)
}

func (s *Store) Login(ctx context.Context, email, password string) (model.Principal, error) {
	const op = "session.login"
	if strings.TrimSpace(email) == "" || password == "" {
		return model.Principal{}, s.fail(op, apperr.Validation("Email and password are required"))
	}
	s.begin()
	res, err := s.api.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return model.Principal{}, s.fail(op, err)
	}
	return s.signIn(op, res)
}

// FetchProfile refreshes the principal for the current token. An auth failure clears
// the session and the stored token.
func (s *Store) FetchProfile(ctx context.Context) (model.Principal, error) {
	const op = "session.profile"
	s.begin()
	p, err := s.api.Me(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrAuth) {
			s.clear(apperr.Message(err))
			return model.Principal{}, apperr.WithOp(err, op)
		}
		return model.Principal{}, s.fail(op, err)
	}
	s.mutate(func(st *State) {
		*st = State{Principal: &p, IsAuthenticated: true}
	})
	return p, nil
}

// UpdateProfile lets the current principal change their own name, email or password.
func (s *Store) UpdateProfile(ctx context.Context, in model.UserInput) (model.Principal, error) {
	const op = "session.profile_update"
	cur := s.Snapshot()
	if cur.Principal == nil {
		return model.Principal{}, s.fail(op, apperr.New(apperr.KindAuth, "Not authenticated"))
	}
	in.Role = ""
	if in.Email != "" {
		if err := validateEmail(in.Email); err != nil {
			return model.Principal{}, s.fail(op, err)
		}
	}
	if in.Password != "" {
		if err := ValidatePassword(in.Password); err != nil {
			return model.Principal{}, s.fail(op, err)
		}
	}
	s.begin()
	u, err := s.api.UpdateUser(ctx, cur.Principal.ID, in)
	if err != nil {
		return model.Principal{}, s.fail(op, err)
	}
	s.mutate(func(st *State) {
		*st = State{Principal: &u, IsAuthenticated: true}
	})
	return u, nil
}

// Logout clears the session and deletes the stored token. It never fails; storage
// errors are logged.
func (s *Store) Logout() {
	s.clear("")
}

func (s *Store) clear(lastErr string) {
	s.mu.Lock()
	if err := s.tokens.DeleteToken(); err != nil {
		s.logger.Warn("delete stored token", "error", err)
	}
	s.token = ""
	s.state = State{LastError: lastErr}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) ClearError() {
	s.mutate(func(st *State) { st.LastError = "" })
}

// Restore rehydrates the session at startup. persisted is the principal from the
// rehydration cache, if any. No request is made unless a live token exists without
// a cached principal.
func (s *Store) Restore(ctx context.Context, persisted *model.Principal) (State, error) {
	tok, err := s.tokens.LoadToken()
	if err != nil {
		s.logger.Warn("load stored token", "error", err)
		tok = ""
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		s.mu.Lock()
		s.token = ""
		s.state = State{}
		s.mu.Unlock()
		s.notify()
		return s.Snapshot(), nil
	}
	if tokenExpired(tok, s.now()) {
		s.logger.Debug("stored token expired")
		s.clear("")
		return s.Snapshot(), nil
	}

	s.mu.Lock()
	s.token = tok
	if persisted != nil && strings.TrimSpace(persisted.ID) != "" {
		p := *persisted
		s.state = State{Principal: &p, IsAuthenticated: true}
		s.mu.Unlock()
		s.notify()
		return s.Snapshot(), nil
	}
	s.mu.Unlock()

	if _, err := s.FetchProfile(ctx); err != nil {
		return s.Snapshot(), err
	}
	return s.Snapshot(), nil
}

// tokenExpired reads the exp claim without verifying the signature. Tokens that are not
// JWTs, or carry no exp, are treated as live and left for the server to judge.
func tokenExpired(tok string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
