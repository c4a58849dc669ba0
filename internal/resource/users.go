package resource

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"

	"taskdash/internal/apperr"
	"taskdash/internal/model"
	"taskdash/internal/session"
)

type UserAPI interface {
	ListUsers(ctx context.Context, q model.UserQuery) (model.Page[model.User], error)
	GetUser(ctx context.Context, id string) (model.User, error)
	CreateUser(ctx context.Context, in model.UserInput) (model.User, error)
	UpdateUser(ctx context.Context, id string, in model.UserInput) (model.User, error)
	DeleteUser(ctx context.Context, id string) (string, error)
}

type userBackend struct{ api UserAPI }

func (b userBackend) List(ctx context.Context, q model.UserQuery) (model.Page[model.User], error) {
	return b.api.ListUsers(ctx, q)
}

func (b userBackend) Get(ctx context.Context, id string) (model.User, error) {
	return b.api.GetUser(ctx, id)
}

func (b userBackend) Create(ctx context.Context, in model.UserInput) (model.User, error) {
	if in.Role == "" {
		in.Role = model.RoleUser
	}
	return b.api.CreateUser(ctx, in)
}

func (b userBackend) Update(ctx context.Context, id string, in model.UserInput) (model.User, error) {
	return b.api.UpdateUser(ctx, id, in)
}

func (b userBackend) Delete(ctx context.Context, id string) (string, error) {
	return b.api.DeleteUser(ctx, id)
}

type UserStore struct {
	*Store[model.User, model.UserFilter, model.UserInput]
}

func NewUserStore(api UserAPI, logger *slog.Logger) *UserStore {
	return &UserStore{
		Store: NewStore[model.User, model.UserFilter, model.UserInput]("users", userBackend{api: api}, logger,
			WithCreateValidator[model.User, model.UserFilter, model.UserInput](func(in model.UserInput, _ *model.User) error {
				return validateUserInput(in, true)
			}),
			WithUpdateValidator[model.User, model.UserFilter, model.UserInput](func(in model.UserInput, _ *model.User) error {
				return validateUserInput(in, false)
			}),
		),
	}
}

func validateUserInput(in model.UserInput, create bool) error {
	email := strings.TrimSpace(in.Email)
	if create && (email == "" || in.Password == "") {
		return apperr.Validation("Email and password are required")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return apperr.Validation("Please enter a valid email address")
		}
	}
	if in.Password != "" {
		if err := session.ValidatePassword(in.Password); err != nil {
			return err
		}
	}
	if in.Role != "" && !in.Role.Valid() {
		return apperr.Validation("Invalid role %q", in.Role)
	}
	return nil
}
