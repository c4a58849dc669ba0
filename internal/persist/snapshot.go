package persist

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"taskdash/internal/model"
	"taskdash/internal/resource"
	"taskdash/internal/session"
)

const SnapshotVersion = 1

// Snapshot is the JSON stored under the root key. Request state (loading flags and
// errors) is never persisted.
type Snapshot struct {
	Version int             `json:"version"`
	Session SessionSnapshot `json:"session"`
	Tasks   TasksSnapshot   `json:"tasks"`
}

type SessionSnapshot struct {
	Principal       *model.Principal `json:"principal,omitempty"`
	IsAuthenticated bool             `json:"isAuthenticated"`
}

type TasksSnapshot struct {
	Items      []model.Task     `json:"items"`
	Pagination model.Pagination `json:"pagination"`
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Version: SnapshotVersion,
		Tasks:   TasksSnapshot{Items: []model.Task{}, Pagination: model.DefaultPagination()},
	}
}

// LoadSnapshot returns the stored snapshot. Missing or unreadable data yields an empty
// snapshot; only database errors are returned.
func (d *DB) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	raw, err := d.get(ctx, keyRoot)
	if err != nil {
		return emptySnapshot(), err
	}
	if strings.TrimSpace(raw) == "" {
		return emptySnapshot(), nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		// Best-effort; if corrupted, treat as missing.
		return emptySnapshot(), nil
	}
	if snap.Version != SnapshotVersion {
		return emptySnapshot(), nil
	}
	if snap.Session.Principal == nil {
		snap.Session.IsAuthenticated = false
	}
	if snap.Tasks.Items == nil {
		snap.Tasks.Items = []model.Task{}
	}
	return snap, nil
}

func (d *DB) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	snap.Version = SnapshotVersion
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return d.put(ctx, keyRoot, string(b))
}

// TakeSnapshot builds the persisted subset of the live state.
func TakeSnapshot(s session.State, tasks resource.Collection[model.Task]) Snapshot {
	items := tasks.Items
	if items == nil {
		items = []model.Task{}
	}
	return Snapshot{
		Version: SnapshotVersion,
		Session: SessionSnapshot{Principal: s.Principal, IsAuthenticated: s.Principal != nil},
		Tasks:   TasksSnapshot{Items: items, Pagination: tasks.Pagination},
	}
}

// Saver rewrites the root snapshot whenever the session or task store changes.
type Saver struct {
	db      *DB
	session *session.Store
	tasks   *resource.TaskStore
	logger  *slog.Logger

	mu   sync.Mutex
	last string
}

func NewSaver(db *DB, s *session.Store, tasks *resource.TaskStore, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{db: db, session: s, tasks: tasks, logger: logger}
}

// Attach subscribes the saver to both stores.
func (sv *Saver) Attach() {
	sv.session.Subscribe(sv.Save)
	sv.tasks.Subscribe(sv.Save)
}

// Save writes the current snapshot. Identical consecutive snapshots are skipped;
// write failures are logged, never returned to the store that triggered them.
//
// The snapshot is taken under sv.mu so the last write always carries the latest
// state when notifications race.
func (sv *Saver) Save() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	snap := TakeSnapshot(sv.session.Snapshot(), sv.tasks.Snapshot())
	b, err := json.Marshal(snap)
	if err != nil {
		sv.logger.Warn("encode state snapshot", "error", err)
		return
	}
	if string(b) == sv.last {
		return
	}
	if err := sv.db.put(context.Background(), keyRoot, string(b)); err != nil {
		sv.logger.Warn("write state snapshot", "path", sv.db.Path(), "error", err)
		return
	}
	sv.last = string(b)
}
