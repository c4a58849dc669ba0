package resource

import (
	"context"
	"errors"
	"testing"

	"taskdash/internal/apperr"
	"taskdash/internal/model"
)

type fakeUsers struct {
	calls   int
	created model.UserInput
}

func (f *fakeUsers) ListUsers(context.Context, model.UserQuery) (model.Page[model.User], error) {
	f.calls++
	return model.Page[model.User]{
		Items:      []model.User{{ID: "u1", Email: "a@x.io", Role: model.RoleAdmin}, {ID: "u2", Email: "b@x.io", Role: model.RoleUser}},
		Pagination: model.Pagination{Page: 1, Limit: 10, Total: 2, Pages: 1},
	}, nil
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (model.User, error) {
	f.calls++
	return model.User{ID: id, Email: id + "@x.io"}, nil
}

func (f *fakeUsers) CreateUser(_ context.Context, in model.UserInput) (model.User, error) {
	f.calls++
	f.created = in
	return model.User{ID: "u9", Email: in.Email, Role: in.Role}, nil
}

func (f *fakeUsers) UpdateUser(_ context.Context, id string, in model.UserInput) (model.User, error) {
	f.calls++
	return model.User{ID: id, Email: in.Email, Name: in.Name}, nil
}

func (f *fakeUsers) DeleteUser(_ context.Context, id string) (string, error) {
	f.calls++
	if id == "missing" {
		return "", &apperr.Error{Kind: apperr.KindNotFound, Message: "User not found", Status: 404}
	}
	return id, nil
}

func TestUserStore_CreateValidation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   model.UserInput
		msg  string
	}{
		{"missing email", model.UserInput{Password: "secret1"}, "Email and password are required"},
		{"missing password", model.UserInput{Email: "c@x.io"}, "Email and password are required"},
		{"short password", model.UserInput{Email: "c@x.io", Password: "123"}, "Password must be at least 6 characters"},
		{"bad role", model.UserInput{Email: "c@x.io", Password: "secret1", Role: "root"}, `Invalid role "root"`},
		{"bad email", model.UserInput{Email: "nope", Password: "secret1"}, "Please enter a valid email address"},
	}
	for _, tc := range cases {
		api := &fakeUsers{}
		s := NewUserStore(api, nil)
		_, err := s.Create(context.Background(), tc.in)
		if !errors.Is(err, apperr.ErrValidation) || err.Error() != tc.msg {
			t.Fatalf("%s: got %v, want %q", tc.name, err, tc.msg)
		}
		if api.calls != 0 {
			t.Fatalf("%s: validation reached the network", tc.name)
		}
	}
}

func TestUserStore_Lifecycle(t *testing.T) {
	t.Parallel()
	api := &fakeUsers{}
	s := NewUserStore(api, nil)
	ctx := context.Background()

	if _, err := s.List(ctx, model.UserQuery{Filter: model.UserFilter{Role: model.RoleUser}}); err != nil {
		t.Fatalf("List: %v", err)
	}
	u, err := s.Create(ctx, model.UserInput{Email: "c@x.io", Password: "secret1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if api.created.Role != model.RoleUser {
		t.Fatalf("role should default to user, got %q", api.created.Role)
	}
	snap := s.Snapshot()
	if len(snap.Items) != 3 || snap.Items[0].ID != u.ID {
		t.Fatalf("created user not at head: %#v", snap.Items)
	}

	// Password is optional on update.
	if _, err := s.Update(ctx, "u2", model.UserInput{Name: "Bee", Email: "b@x.io"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s.Snapshot().Items[2].Name != "Bee" {
		t.Fatalf("update not merged: %#v", s.Snapshot().Items)
	}

	if _, err := s.Delete(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(s.Snapshot().Items) != 3 {
		t.Fatalf("failed delete changed items")
	}
	if _, err := s.Delete(ctx, "u2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(s.Snapshot().Items) != 2 {
		t.Fatalf("delete not applied")
	}
}
