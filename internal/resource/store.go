package resource

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"taskdash/internal/apperr"
	"taskdash/internal/model"
)

// Backend performs the remote calls for one collection.
type Backend[T Entity, F any, I any] interface {
	List(ctx context.Context, q model.Query[F]) (model.Page[T], error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, in I) (T, error)
	Update(ctx context.Context, id string, in I) (T, error)
	Delete(ctx context.Context, id string) (string, error)
}

// Validator runs before any request is built. cached is the entity as currently held
// by the store, or nil on create and when the id is not cached.
type Validator[T Entity, I any] func(in I, cached *T) error

// Store is the generic cache and request-state holder. Safe for concurrent use.
type Store[T Entity, F any, I any] struct {
	name    string
	backend Backend[T, F, I]
	logger  *slog.Logger

	validateCreate Validator[T, I]
	validateUpdate Validator[T, I]

	mu       sync.Mutex
	coll     Collection[T]
	seq      uint64 // last issued list request
	inflight int
	subs     []func()
}

type StoreOption[T Entity, F any, I any] func(*Store[T, F, I])

func NewStore[T Entity, F any, I any](name string, backend Backend[T, F, I], logger *slog.Logger, opts ...StoreOption[T, F, I]) *Store[T, F, I] {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store[T, F, I]{
		name:    name,
		backend: backend,
		logger:  logger,
		coll:    NewCollection[T](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithCreateValidator[T Entity, F any, I any](v Validator[T, I]) StoreOption[T, F, I] {
	return func(s *Store[T, F, I]) { s.validateCreate = v }
}

func WithUpdateValidator[T Entity, F any, I any](v Validator[T, I]) StoreOption[T, F, I] {
	return func(s *Store[T, F, I]) { s.validateUpdate = v }
}

func (s *Store[T, F, I]) Snapshot() Collection[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Clone()
}

// Subscribe registers fn to run after every transition, outside the store lock.
func (s *Store[T, F, I]) Subscribe(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Store[T, F, I]) notify() {
	s.mu.Lock()
	subs := append([]func(){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (s *Store[T, F, I]) apply(fn func(Collection[T]) Collection[T]) {
	s.mu.Lock()
	s.coll = fn(s.coll)
	s.mu.Unlock()
	s.notify()
}

func (s *Store[T, F, I]) start() {
	s.mu.Lock()
	s.inflight++
	s.coll = s.coll.started()
	s.mu.Unlock()
	s.notify()
}

// finish ends one request. apply may be nil when the result is dropped.
func (s *Store[T, F, I]) finish(apply func(Collection[T]) Collection[T]) {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	if apply != nil {
		s.coll = apply(s.coll)
	}
	s.coll.IsLoading = s.inflight > 0
	s.mu.Unlock()
	s.notify()
}

func (s *Store[T, F, I]) op(name string) string { return s.name + "." + name }

func (s *Store[T, F, I]) failed(op string, err error) error {
	err = apperr.WithOp(err, op)
	s.logger.Debug("store operation failed", "op", op, "error", err)
	msg := apperr.Message(err)
	s.finish(func(c Collection[T]) Collection[T] { return c.failed(msg) })
	return err
}

// reject records an error detected before any request was issued.
func (s *Store[T, F, I]) reject(op string, err error) error {
	err = apperr.WithOp(err, op)
	s.logger.Debug("store operation rejected", "op", op, "error", err)
	msg := apperr.Message(err)
	s.apply(func(c Collection[T]) Collection[T] { return c.failed(msg) })
	return err
}

// Fail records a locally detected error, such as an ownership denial, without touching
// the cached items.
func (s *Store[T, F, I]) Fail(err error) error {
	if err == nil {
		return nil
	}
	return s.reject(s.op("local"), err)
}

// List fetches one page. Only the result of the most recently issued list is applied;
// a superseded result is still returned to its caller.
func (s *Store[T, F, I]) List(ctx context.Context, q model.Query[F]) (model.Page[T], error) {
	return s.listWith(ctx, s.op("list"), func(ctx context.Context) (model.Page[T], error) {
		return s.backend.List(ctx, q.Normalized())
	})
}

func (s *Store[T, F, I]) listWith(ctx context.Context, op string, fetch func(context.Context) (model.Page[T], error)) (model.Page[T], error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.inflight++
	s.coll = s.coll.started()
	s.mu.Unlock()
	s.notify()

	page, err := fetch(ctx)

	s.mu.Lock()
	current := seq == s.seq
	s.mu.Unlock()
	if err != nil {
		err = apperr.WithOp(err, op)
		if !current {
			s.logger.Debug("superseded list failed", "op", op, "error", err)
			s.finish(nil)
			return page, err
		}
		s.logger.Debug("store operation failed", "op", op, "error", err)
		msg := apperr.Message(err)
		s.finish(func(c Collection[T]) Collection[T] {
			if seq != s.seq {
				return c
			}
			return c.failed(msg)
		})
		return page, err
	}
	s.finish(func(c Collection[T]) Collection[T] {
		// Re-checked under the lock: a newer list may have been issued meanwhile.
		if seq != s.seq {
			return c
		}
		return c.listed(page)
	})
	return page, nil
}

// Get fetches one entity and selects it.
func (s *Store[T, F, I]) Get(ctx context.Context, id string) (T, error) {
	op := s.op("get")
	var zero T
	id = strings.TrimSpace(id)
	if id == "" {
		return zero, s.reject(op, apperr.Validation("An id is required"))
	}
	s.start()
	item, err := s.backend.Get(ctx, id)
	if err != nil {
		return zero, s.failed(op, err)
	}
	s.finish(func(c Collection[T]) Collection[T] { return c.fetched(item) })
	return item, nil
}

func (s *Store[T, F, I]) Create(ctx context.Context, in I) (T, error) {
	op := s.op("create")
	var zero T
	if s.validateCreate != nil {
		if err := s.validateCreate(in, nil); err != nil {
			return zero, s.reject(op, err)
		}
	}
	s.start()
	item, err := s.backend.Create(ctx, in)
	if err != nil {
		return zero, s.failed(op, err)
	}
	s.finish(func(c Collection[T]) Collection[T] { return c.created(item) })
	return item, nil
}

func (s *Store[T, F, I]) Update(ctx context.Context, id string, in I) (T, error) {
	return s.mutateOne(ctx, s.op("update"), id, func(cached *T) error {
		if s.validateUpdate == nil {
			return nil
		}
		return s.validateUpdate(in, cached)
	}, func(ctx context.Context, id string) (T, error) {
		return s.backend.Update(ctx, id, in)
	})
}

// mutateOne runs a single-entity write whose result replaces the cached entry.
func (s *Store[T, F, I]) mutateOne(ctx context.Context, op, id string, validate func(cached *T) error, call func(context.Context, string) (T, error)) (T, error) {
	var zero T
	id = strings.TrimSpace(id)
	if id == "" {
		return zero, s.reject(op, apperr.Validation("An id is required"))
	}
	if validate != nil {
		if err := validate(s.cached(id)); err != nil {
			return zero, s.reject(op, err)
		}
	}
	s.start()
	item, err := call(ctx, id)
	if err != nil {
		return zero, s.failed(op, err)
	}
	s.finish(func(c Collection[T]) Collection[T] { return c.replaced(item) })
	return item, nil
}

func (s *Store[T, F, I]) cached(id string) *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll.Selected != nil && (*s.coll.Selected).EntityID() == id {
		sel := *s.coll.Selected
		return &sel
	}
	if it, ok := s.coll.Find(id); ok {
		return &it
	}
	return nil
}

// Delete removes id on the server and then from the cache.
func (s *Store[T, F, I]) Delete(ctx context.Context, id string) (string, error) {
	op := s.op("delete")
	id = strings.TrimSpace(id)
	if id == "" {
		return "", s.reject(op, apperr.Validation("An id is required"))
	}
	s.start()
	deleted, err := s.backend.Delete(ctx, id)
	if err != nil {
		return "", s.failed(op, err)
	}
	if deleted == "" {
		deleted = id
	}
	s.finish(func(c Collection[T]) Collection[T] { return c.deleted(deleted) })
	return deleted, nil
}

func (s *Store[T, F, I]) ClearSelected() {
	s.apply(func(c Collection[T]) Collection[T] {
		c.Selected = nil
		return c
	})
}

func (s *Store[T, F, I]) ClearError() {
	s.apply(func(c Collection[T]) Collection[T] {
		c.LastError = ""
		return c
	})
}

// Reset keeps the cached items and clears selection, pagination and request state.
func (s *Store[T, F, I]) Reset() {
	s.apply(func(c Collection[T]) Collection[T] {
		out := c.reset()
		out.IsLoading = s.inflight > 0
		return out
	})
}

// Clear drops everything, including items, and invalidates in-flight lists.
func (s *Store[T, F, I]) Clear() {
	s.mu.Lock()
	s.seq++
	s.coll = NewCollection[T]()
	s.coll.IsLoading = s.inflight > 0
	s.mu.Unlock()
	s.notify()
}

// Hydrate installs items restored from the rehydration cache.
func (s *Store[T, F, I]) Hydrate(items []T, p model.Pagination) {
	if items == nil {
		items = []T{}
	}
	if p.Page < 1 || p.Limit < 1 {
		p = model.DefaultPagination()
	}
	s.apply(func(c Collection[T]) Collection[T] {
		return c.listed(model.Page[T]{Items: items, Pagination: p})
	})
}
