package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformed marks a server payload that does not match the expected schema.
var ErrMalformed = errors.New("malformed payload")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// The server is Mongo-backed and sends `_id`; our own encoding (CLI output, the
// rehydration cache) uses `id`. Decoders accept both.
func pickID(underscore, plain string) string {
	if s := strings.TrimSpace(underscore); s != "" {
		return s
	}
	return strings.TrimSpace(plain)
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseWireTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := parseWireTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type wirePrincipal struct {
	UnderscoreID string  `json:"_id"`
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	Role         string  `json:"role"`
	CreatedAt    string  `json:"createdAt"`
	LastLoginAt  *string `json:"lastLoginAt"`
	LastLogin    *string `json:"lastLogin"`
}

func (p *Principal) UnmarshalJSON(b []byte) error {
	var w wirePrincipal
	if err := json.Unmarshal(b, &w); err != nil {
		return malformed("principal: %v", err)
	}
	out := Principal{
		ID:    pickID(w.UnderscoreID, w.ID),
		Email: strings.TrimSpace(w.Email),
		Name:  strings.TrimSpace(w.Name),
		Role:  RoleUser,
	}
	if out.ID == "" {
		return malformed("principal: missing id")
	}
	if out.Email == "" {
		return malformed("principal %s: missing email", out.ID)
	}
	if strings.TrimSpace(w.Role) != "" {
		r, err := ParseRole(w.Role)
		if err != nil {
			return malformed("principal %s: %v", out.ID, err)
		}
		out.Role = r
	}
	created, err := parseWireTime(w.CreatedAt)
	if err != nil {
		return malformed("principal %s: createdAt: %v", out.ID, err)
	}
	out.CreatedAt = created
	last := w.LastLoginAt
	if last == nil {
		last = w.LastLogin
	}
	if out.LastLoginAt, err = parseOptionalTime(last); err != nil {
		return malformed("principal %s: lastLoginAt: %v", out.ID, err)
	}
	*p = out
	return nil
}

// MarshalJSON encodes an empty reference as null so it decodes back to the zero value.
func (r PrincipalRef) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("null"), nil
	}
	type plain PrincipalRef
	return json.Marshal(plain(r))
}

func (r *PrincipalRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = PrincipalRef{}
		return nil
	}
	if b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return malformed("principal ref: %v", err)
		}
		*r = PrincipalRef{ID: strings.TrimSpace(id)}
		return nil
	}
	var w struct {
		UnderscoreID string `json:"_id"`
		ID           string `json:"id"`
		Email        string `json:"email"`
		Name         string `json:"name"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return malformed("principal ref: %v", err)
	}
	*r = PrincipalRef{
		ID:    pickID(w.UnderscoreID, w.ID),
		Email: strings.TrimSpace(w.Email),
		Name:  strings.TrimSpace(w.Name),
	}
	if r.ID == "" {
		return malformed("principal ref: missing id")
	}
	return nil
}

type wireDocument struct {
	UnderscoreID string `json:"_id"`
	ID           string `json:"id"`
	OriginalName string `json:"originalName"`
	StoredName   string `json:"storedName"`
	Filename     string `json:"filename"`
	Size         *int64 `json:"size"`
	SizeBytes    *int64 `json:"sizeBytes"`
	URL          string `json:"url"`
	Path         string `json:"path"`
	UploadedAt   string `json:"uploadedAt"`
}

func (d *Document) UnmarshalJSON(b []byte) error {
	var w wireDocument
	if err := json.Unmarshal(b, &w); err != nil {
		return malformed("document: %v", err)
	}
	out := Document{
		ID:           pickID(w.UnderscoreID, w.ID),
		OriginalName: strings.TrimSpace(w.OriginalName),
		StoredName:   strings.TrimSpace(w.StoredName),
		URL:          strings.TrimSpace(w.URL),
	}
	if out.ID == "" {
		return malformed("document: missing id")
	}
	if out.StoredName == "" {
		out.StoredName = strings.TrimSpace(w.Filename)
	}
	if out.URL == "" {
		out.URL = strings.TrimSpace(w.Path)
	}
	switch {
	case w.SizeBytes != nil:
		out.SizeBytes = *w.SizeBytes
	case w.Size != nil:
		out.SizeBytes = *w.Size
	}
	up, err := parseWireTime(w.UploadedAt)
	if err != nil {
		return malformed("document %s: uploadedAt: %v", out.ID, err)
	}
	out.UploadedAt = up
	*d = out
	return nil
}

type wireTask struct {
	UnderscoreID string       `json:"_id"`
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	DueDate      string       `json:"dueDate"`
	Priority     string       `json:"priority"`
	Status       string       `json:"status"`
	AssignedTo   PrincipalRef `json:"assignedTo"`
	CreatedBy    PrincipalRef `json:"createdBy"`
	Note         string       `json:"note"`
	Documents    []Document   `json:"documents"`
	CreatedAt    string       `json:"createdAt"`
	CompletedAt  *string      `json:"completedAt"`
}

func (t *Task) UnmarshalJSON(b []byte) error {
	var w wireTask
	if err := json.Unmarshal(b, &w); err != nil {
		if errors.Is(err, ErrMalformed) {
			return err
		}
		return malformed("task: %v", err)
	}
	out := Task{
		ID:          pickID(w.UnderscoreID, w.ID),
		Title:       w.Title,
		Description: w.Description,
		AssignedTo:  w.AssignedTo,
		CreatedBy:   w.CreatedBy,
		Note:        w.Note,
		Documents:   w.Documents,
		Status:      StatusPending,
		Priority:    PriorityMedium,
	}
	if out.ID == "" {
		return malformed("task: missing id")
	}
	if strings.TrimSpace(out.Title) == "" {
		return malformed("task %s: missing title", out.ID)
	}
	if strings.TrimSpace(w.Status) != "" {
		st, err := ParseStatus(w.Status)
		if err != nil {
			return malformed("task %s: %v", out.ID, err)
		}
		out.Status = st
	}
	if strings.TrimSpace(w.Priority) != "" {
		pr, err := ParsePriority(w.Priority)
		if err != nil {
			return malformed("task %s: %v", out.ID, err)
		}
		out.Priority = pr
	}
	var err error
	if out.DueDate, err = parseWireTime(w.DueDate); err != nil {
		return malformed("task %s: dueDate: %v", out.ID, err)
	}
	if out.CreatedAt, err = parseWireTime(w.CreatedAt); err != nil {
		return malformed("task %s: createdAt: %v", out.ID, err)
	}
	if out.CompletedAt, err = parseOptionalTime(w.CompletedAt); err != nil {
		return malformed("task %s: completedAt: %v", out.ID, err)
	}
	if out.Documents == nil {
		out.Documents = []Document{}
	}
	*t = out
	return nil
}

// DecodeAuthResult accepts `{token, principal}` (also `user`) or a principal object
// with the token merged into it, which older servers send.
func DecodeAuthResult(data json.RawMessage) (AuthResult, error) {
	var env struct {
		Token     string          `json:"token"`
		Principal json.RawMessage `json:"principal"`
		User      json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return AuthResult{}, malformed("auth result: %v", err)
	}
	if strings.TrimSpace(env.Token) == "" {
		return AuthResult{}, malformed("auth result: missing token")
	}
	raw := env.Principal
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = env.User
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = data
	}
	var p Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: strings.TrimSpace(env.Token), Principal: p}, nil
}
