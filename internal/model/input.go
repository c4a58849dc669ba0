package model

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"
)

type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// TaskFilter fields are optional and combined with AND. Zero values are unset.
type TaskFilter struct {
	Status     Status    `json:"status,omitempty"`
	Priority   Priority  `json:"priority,omitempty"`
	AssignedTo string    `json:"assignedTo,omitempty"`
	StartDate  time.Time `json:"startDate,omitempty"`
	EndDate    time.Time `json:"endDate,omitempty"`
	Search     string    `json:"search,omitempty"`
}

type UserFilter struct {
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role,omitempty"`
	Search string `json:"search,omitempty"`
}

type Query[F any] struct {
	Filter  F       `json:"filter"`
	Page    int     `json:"page"`
	Limit   int     `json:"limit"`
	SortBy  string  `json:"sortBy,omitempty"`
	SortDir SortDir `json:"sortDir,omitempty"`
}

type TaskQuery = Query[TaskFilter]

type UserQuery = Query[UserFilter]

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// Normalized fills in the list defaults the server assumes.
func (q Query[F]) Normalized() Query[F] {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	return q
}

// Upload is a document part of a task create/update request.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

func UploadFromBytes(name, contentType string, b []byte) Upload {
	return Upload{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(b)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		},
	}
}

// UploadFromFile stats path now and opens it only when the request body is built.
func UploadFromFile(path, contentType string) (Upload, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Upload{}, err
	}
	return Upload{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        fi.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// TaskInput is the full-update payload; create uses the same shape.
type TaskInput struct {
	Title       string
	Description string
	DueDate     time.Time
	Priority    Priority
	Status      Status
	AssignedTo  string
	Documents   []Upload
	// RemovedDocumentIDs is only meaningful on update.
	RemovedDocumentIDs []string
}

// UserInput: empty fields are left unchanged on update.
type UserInput struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Role     Role   `json:"role,omitempty"`
}
