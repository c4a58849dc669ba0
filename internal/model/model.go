package model

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every status a task may hold. Any status is reachable from any other.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("invalid role: %q", s)
	}
}

// ParseStatus accepts the wire values plus a few spellings people type on the command line.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "todo":
		return StatusPending, nil
	case "in-progress", "in_progress", "inprogress", "doing":
		return StatusInProgress, nil
	case "completed", "done":
		return StatusCompleted, nil
	default:
		return "", fmt.Errorf("invalid status: %q", s)
	}
}

func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("invalid priority: %q", s)
	}
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Principal is an authenticated identity.
type Principal struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	Role        Role       `json:"role"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func (p Principal) EntityID() string { return p.ID }

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// DisplayName falls back to the email when no name was given at registration.
func (p Principal) DisplayName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.Email
}

// User is the administrative view of a Principal. The wire shape is identical; the
// password is write-only and lives on UserInput.
type User = Principal

// PrincipalRef is the canonical reference to a principal embedded in a task.
// The server sends either a bare id or a populated object; both decode into this shape.
type PrincipalRef struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

func (r PrincipalRef) IsZero() bool { return strings.TrimSpace(r.ID) == "" }

type Document struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	StoredName   string    `json:"storedName,omitempty"`
	SizeBytes    int64     `json:"sizeBytes"`
	URL          string    `json:"url,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// MaxDocumentsPerTask is the server-side cap on attachments.
const MaxDocumentsPerTask = 3

type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	DueDate     time.Time    `json:"dueDate"`
	Priority    Priority     `json:"priority"`
	Status      Status       `json:"status"`
	AssignedTo  PrincipalRef `json:"assignedTo"`
	CreatedBy   PrincipalRef `json:"createdBy"`
	Note        string       `json:"note,omitempty"`
	Documents   []Document   `json:"documents"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

func (t Task) EntityID() string { return t.ID }

// HasDocument reports whether id is among the task's attachments.
func (t Task) HasDocument(id string) bool {
	for _, d := range t.Documents {
		if d.ID == id {
			return true
		}
	}
	return false
}

// Pagination mirrors the list envelope. Pages is the page count.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func (p Pagination) PageCount() int { return p.Pages }

// DefaultPagination is the state before any list call completed.
func DefaultPagination() Pagination {
	return Pagination{Page: 1, Limit: 10}
}

// Page is one list response.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// AuthResult is the payload of register/login.
type AuthResult struct {
	Token     string    `json:"token"`
	Principal Principal `json:"principal"`
}
